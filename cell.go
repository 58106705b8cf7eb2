package hooq

import (
	"sync"
)

// Watchable is implemented by reactive values that hooks can observe.
// Query hooks re-run automatically when a Watchable supplied as Params or
// Data reports a change. *Cell[T] is the canonical implementation.
type Watchable interface {
	// Snapshot returns the current value.
	Snapshot() any

	// OnChange registers fn to run after each update. The returned stop
	// function cancels the registration; calling it more than once is safe.
	OnChange(fn func()) (stop func())
}

// Cell holds a single value that can be read, written, and watched.
// Thread-safe for concurrent Get/Set operations.
//
// Cell represents current state, not an event stream: watchers always
// observe the latest value, and intermediate updates may be skipped if a
// watcher is slow.
//
// Example:
//
//	page := hooq.NewCell(1)
//
//	// Read current value
//	current := page.Get()
//
//	// Update and notify all watchers
//	page.Set(2)
type Cell[T any] struct {
	mu       sync.RWMutex
	value    T
	watchers map[int64]chan T
	nextID   int64
}

// NewCell creates a new Cell with the given initial value.
func NewCell[T any](initial T) *Cell[T] {
	return &Cell[T]{
		value:    initial,
		watchers: make(map[int64]chan T),
	}
}

// Get returns the current value.
func (c *Cell[T]) Get() T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.value
}

// Set updates the value and notifies all watchers.
func (c *Cell[T]) Set(value T) {
	c.mu.Lock()
	c.value = value
	chans := make([]chan T, 0, len(c.watchers))
	for _, ch := range c.watchers {
		chans = append(chans, ch)
	}
	c.mu.Unlock()

	// Notify outside the lock with non-blocking sends
	for _, ch := range chans {
		select {
		case ch <- value:
			// Delivered
		default:
			// Channel full - drain old value and send new (latest-wins)
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- value:
			default:
			}
		}
	}
}

// Update atomically applies fn to the current value.
// Useful for read-modify-write operations.
func (c *Cell[T]) Update(fn func(T) T) {
	c.mu.Lock()
	newValue := fn(c.value)
	c.mu.Unlock()
	c.Set(newValue)
}

// Watch registers fn to receive every update until the returned stop
// function is called. fn runs on a dedicated goroutine; slow consumers
// observe the latest value only.
func (c *Cell[T]) Watch(fn func(T)) (stop func()) {
	ch := make(chan T, 1)
	id := c.addWatcher(ch)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case v := <-ch:
				fn(v)
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.removeWatcher(id)
			close(done)
		})
	}
}

// Snapshot implements Watchable.
func (c *Cell[T]) Snapshot() any {
	return c.Get()
}

// OnChange implements Watchable.
func (c *Cell[T]) OnChange(fn func()) (stop func()) {
	return c.Watch(func(T) { fn() })
}

func (c *Cell[T]) addWatcher(ch chan T) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	id := c.nextID
	c.nextID++
	c.watchers[id] = ch
	return id
}

func (c *Cell[T]) removeWatcher(id int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.watchers, id)
}
