package hooq

import (
	"context"
	"sync"
	"time"
)

// QueryOptions configures one query hook invocation.
type QueryOptions struct {
	// Params supplies path + query parameters: a map, a struct, or a
	// Watchable (such as *Cell[T]) whose changes trigger a refetch.
	Params any

	// Data supplies the request body for POST queries. May also be a
	// Watchable.
	Data any

	// LoadOnMount controls the automatic first run. nil means true.
	// The first run bypasses Debounce.
	LoadOnMount *bool

	// Debounce delays watch-triggered refetches, coalescing bursts of
	// changes. Zero disables debouncing.
	Debounce time.Duration

	// Context is the owning scope; canceling it aborts in-flight work.
	// Defaults to context.Background().
	Context context.Context

	OnResult          func(result any)
	OnError           ErrorHandler
	OnValidationError ValidationErrorHandler

	// OnBeforeRequest runs last in the hook chain, after the client-global
	// and definition-level hooks.
	OnBeforeRequest BeforeRequestHook
}

// QueryFunc creates hook instances for one query definition. The built
// hook tree holds one QueryFunc per leaf.
type QueryFunc func(opts *QueryOptions) *QueryHook

// QueryHook is one live invocation of a query: reactive result/error/
// loading state plus refetch control. At most one request is in flight per
// hook; a newer run cancels the older one. Superseded attempts settle
// silently: no error state, no callbacks.
type QueryHook struct {
	hookState

	client *Client
	ep     endpoint
	opts   QueryOptions

	mu     sync.Mutex
	seq    uint64
	cancel context.CancelFunc
	stops  []func()
	timer  *time.Timer
	closed bool
}

func (c *Client) queryFunc(name string, def *Query) QueryFunc {
	return func(opts *QueryOptions) *QueryHook {
		if opts == nil {
			opts = &QueryOptions{}
		}
		h := &QueryHook{
			hookState: newHookState(),
			client:    c,
			ep:        def.endpoint(name),
			opts:      *opts,
		}

		// Subscription happens once, at creation: a watcher is registered
		// for each reactive input, never re-evaluated per call.
		for _, in := range []any{opts.Params, opts.Data} {
			if w, ok := in.(Watchable); ok {
				h.stops = append(h.stops, w.OnChange(h.scheduleRefetch))
			}
		}

		if opts.LoadOnMount == nil || *opts.LoadOnMount {
			h.Refetch()
		}
		return h
	}
}

// Refetch starts a new attempt immediately. An attempt already in flight
// is canceled first; its outcome is discarded.
func (h *QueryHook) Refetch() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.seq++
	seq := h.seq
	if h.cancel != nil {
		h.cancel()
	}
	base := h.opts.Context
	if base == nil {
		base = context.Background()
	}
	ctx, cancel := context.WithCancel(base)
	h.cancel = cancel
	// Loading flips under the lock so it serializes with the settle of any
	// older attempt.
	h.Loading.Set(true)
	h.mu.Unlock()

	go h.attempt(ctx, seq)
}

func (h *QueryHook) attempt(ctx context.Context, seq uint64) {
	out, err := h.client.execute(ctx, h.ep, call{
		params: snapshot(h.opts.Params),
		data:   snapshot(h.opts.Data),
		hook:   h.opts.OnBeforeRequest,
	})

	h.mu.Lock()
	if seq != h.seq || h.closed {
		// Superseded or torn down: stay silent. The newer attempt (or the
		// teardown) owns the state now.
		h.mu.Unlock()
		return
	}
	// A canceled attempt that is still current (the caller's own context
	// was canceled) skips error state and callbacks, but Loading and Done
	// must still settle so the hook is never stuck mid-flight.
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
}

// scheduleRefetch handles watch-triggered re-runs, applying the configured
// debounce. Direct Refetch calls are never debounced.
func (h *QueryHook) scheduleRefetch() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	d := h.opts.Debounce
	if d <= 0 {
		h.mu.Unlock()
		h.Refetch()
		return
	}
	if h.timer != nil {
		h.timer.Stop()
	}
	h.timer = time.AfterFunc(d, h.Refetch)
	h.mu.Unlock()
}

// Close tears the hook down: stops watchers and the debounce timer, and
// aborts any in-flight request. The cancellation is swallowed, not
// surfaced as error state.
func (h *QueryHook) Close() {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}
	h.closed = true
	stops := h.stops
	h.stops = nil
	if h.timer != nil {
		h.timer.Stop()
	}
	cancel := h.cancel
	h.mu.Unlock()

	for _, stop := range stops {
		stop()
	}
	if cancel != nil {
		cancel()
	}
}
