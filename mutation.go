package hooq

import (
	"context"
	"sync"
)

// MutationOptions configures one mutation hook invocation.
type MutationOptions struct {
	// Context is the owning scope; canceling it aborts in-flight work.
	// Defaults to context.Background().
	Context context.Context

	OnResult          func(result any)
	OnError           ErrorHandler
	OnValidationError ValidationErrorHandler

	// OnBeforeRequest runs last in the hook chain.
	OnBeforeRequest BeforeRequestHook
}

// MutateArgs are the per-attempt inputs to Mutate.
type MutateArgs struct {
	Params any
	Data   any
}

// MutationFunc creates hook instances for one mutation definition.
type MutationFunc func(opts *MutationOptions) *MutationHook

// MutationHook is one live invocation of a mutation. Unlike queries it
// never auto-runs and never watches inputs; each attempt is an explicit
// Mutate call. Calling Mutate while an attempt is in flight is a no-op.
type MutationHook struct {
	hookState

	// Progress is the upload progress of the current attempt, 0-100.
	// Reset to 0 at the start of each Mutate.
	Progress *Cell[int]

	client *Client
	ep     endpoint
	opts   MutationOptions

	mu       sync.Mutex
	seq      uint64
	cancel   context.CancelFunc
	inFlight bool
	closed   bool
}

func (c *Client) mutationFunc(name string, def *Mutation) MutationFunc {
	return func(opts *MutationOptions) *MutationHook {
		if opts == nil {
			opts = &MutationOptions{}
		}
		return &MutationHook{
			hookState: newHookState(),
			Progress:  NewCell(0),
			client:    c,
			ep:        def.endpoint(name),
			opts:      *opts,
		}
	}
}

// Mutate triggers one attempt. While an attempt is already loading the
// call returns immediately without starting a second request.
func (h *MutationHook) Mutate(args MutateArgs) {
	h.mu.Lock()
	if h.closed || h.inFlight {
		h.mu.Unlock()
		return
	}
	h.inFlight = true
	h.seq++
	seq := h.seq
	base := h.opts.Context
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	h.cancel = cancel
	// State flips under the lock so they serialize with the settle of the
	// previous attempt.
	h.Progress.Set(0)
	h.Loading.Set(true)
	h.mu.Unlock()

	go h.attempt(ctx, seq, args)
}

func (h *MutationHook) attempt(ctx context.Context, seq uint64, args MutateArgs) {
	out, err := h.client.execute(ctx, h.ep, call{
		params: snapshot(args.Params),
		data:   snapshot(args.Data),
		hook:   h.opts.OnBeforeRequest,
		progress: func(percent int) {
			h.Progress.Set(percent)
		},
	})

	h.mu.Lock()
	if seq != h.seq || h.closed {
		h.inFlight = false
		h.mu.Unlock()
		return
	}
	// Canceled-but-current attempts skip error state and callbacks, but
	// Loading and Done still settle so the hook is never stuck mid-flight.
	benign := err != nil && canceled(err)
	h.Loading.Set(false)
	h.mu.Unlock()

	if !benign {
		h.client.settle(&h.hookState, callbacks{
			onResult:     h.opts.OnResult,
			onError:      h.opts.OnError,
			onValidation: h.opts.OnValidationError,
		}, out, err)
	}
	h.Done.Set(true)

	// inFlight clears last: the next Mutate may start only once this
	// attempt's state and callbacks have fully landed.
	h.mu.Lock()
	h.inFlight = false
	h.mu.Unlock()
}

// Close tears the hook down and aborts any in-flight attempt.
func (h *MutationHook) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	cancel := h.cancel
	h.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}
