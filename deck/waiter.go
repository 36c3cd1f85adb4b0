package deck

import (
	"context"
	"sync"
	"time"
)

// Waiter waits for the client to change to one state. It is created by Client.WaitFor.
type Waiter struct {
	client *Client
	id     uint64
	state  State

	mu     sync.Mutex
	handle *Handle
	timer  *time.Timer

	once sync.Once
	done chan struct{}
	err  error
}

// WaitFor returns a Waiter resolved the first time the client changes to state.
//
// The listener is registered immediately, so a change happening before Wait is called is
// not missed. A positive timeout is measured from this call; zero means no timeout.
func (c *Client) WaitFor(state State, timeout time.Duration) *Waiter {
	w := &Waiter{
		client: c,
		id:     c.waiterSeq.Add(1),
		state:  state,
		done:   make(chan struct{}),
	}
	c.waiters.Store(w.id, w)

	w.mu.Lock()
	w.handle = c.Once(state, func() { w.resolve(nil) })
	if timeout > 0 {
		w.timer = time.AfterFunc(timeout, func() { w.resolve(ErrTimeout) })
	}
	w.mu.Unlock()

	if c.isClosed() {
		w.resolve(ErrConnClosed)
	}

	return w
}

// State returns the state waited for.
func (w *Waiter) State() State { return w.state }

// Done returns a channel closed once the waiter is resolved.
func (w *Waiter) Done() <-chan struct{} { return w.done }

// Wait blocks until the waiter is resolved.
//
// It returns nil when the state occurred, ErrTimeout when the timeout elapsed first,
// ErrConnClosed when the client was torn down and ctx.Err() when ctx ends. A waiter
// ended by its context is cancelled.
func (w *Waiter) Wait(ctx context.Context) error {
	select {
	case <-w.done:
		return w.err
	case <-ctx.Done():
		w.resolve(ctx.Err())
		<-w.done

		return w.err
	}
}

// Cancel resolves the waiter with context.Canceled unless it is already resolved.
func (w *Waiter) Cancel() {
	w.resolve(context.Canceled)
}

func (w *Waiter) resolve(err error) {
	w.once.Do(func() {
		w.mu.Lock()
		if w.handle != nil {
			w.handle.Remove()
		}
		if w.timer != nil {
			w.timer.Stop()
		}
		w.mu.Unlock()

		w.err = err
		w.client.waiters.Delete(w.id)
		close(w.done)
	})
}
