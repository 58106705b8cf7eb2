package hooq

import (
	"errors"
)

// hookState is the reactive state shared by query and mutation hooks.
// Each hook invocation owns its own instance; state is never shared across
// call-sites.
type hookState struct {
	// Result holds the last successful payload, nil before the first
	// success.
	Result *Cell[any]

	// ErrMessage holds the human-readable message of the last failure,
	// empty after a success.
	ErrMessage *Cell[string]

	// ValidationIssues holds the structured report of the last schema
	// failure, nil otherwise.
	ValidationIssues *Cell[*ValidationError]

	// Loading is true while a request is in flight.
	Loading *Cell[bool]

	// Done becomes true once the first attempt settles, success or not.
	Done *Cell[bool]
}

func newHookState() hookState {
	return hookState{
		Result:           NewCell[any](nil),
		ErrMessage:       NewCell(""),
		ValidationIssues: NewCell[*ValidationError](nil),
		Loading:          NewCell(false),
		Done:             NewCell(false),
	}
}

// callbacks are the call-site handlers for one hook invocation.
type callbacks struct {
	onResult     func(any)
	onError      ErrorHandler
	onValidation ValidationErrorHandler
}

// settle routes a completed attempt into hook state and callbacks.
// Call-site callbacks always fire before the client-global ones.
// Cancellation never reaches here; callers swallow it first.
func (c *Client) settle(st *hookState, cb callbacks, out any, err error) {
	if err == nil {
		st.Result.Set(out)
		st.ErrMessage.Set("")
		st.ValidationIssues.Set(nil)
		if cb.onResult != nil {
			cb.onResult(out)
		}
		return
	}

	msg := errorMessage(err)
	st.ErrMessage.Set(msg)

	var valErr *ValidationError
	if errors.As(err, &valErr) {
		st.ValidationIssues.Set(valErr)
		c.fireError(cb, err, msg)
		c.fireValidation(cb, valErr)
		return
	}
	c.fireError(cb, err, msg)
}

func (c *Client) fireError(cb callbacks, err error, msg string) {
	ectx := ErrorContext{Err: err, Message: msg}
	if cb.onError != nil {
		cb.onError(ectx)
	}
	if c.onError != nil {
		c.onError(ectx)
	}
}

func (c *Client) fireValidation(cb callbacks, e *ValidationError) {
	if cb.onValidation != nil {
		cb.onValidation(e)
	}
	if c.onValidationError != nil {
		c.onValidationError(e)
	}
}

// snapshot unwraps a Watchable to its current value; plain values pass
// through.
func snapshot(v any) any {
	if w, ok := v.(Watchable); ok {
		return w.Snapshot()
	}
	return v
}

// Bool returns a pointer to v, for options like QueryOptions.LoadOnMount.
func Bool(v bool) *bool {
	return &v
}
