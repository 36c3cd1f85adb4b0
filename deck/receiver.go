package deck

import (
	"context"
	"errors"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/arloliu/go-plusdeck/internal/pool"
	"github.com/arloliu/go-plusdeck/internal/queue"
)

// Receiver is an ordered queue of the state changes of one subscriber.
//
// Every receiver of a client gets its own copy of every change. A receiver with a bounded
// queue drops its oldest state when full, so a slow receiver never blocks the client or
// other receivers.
type Receiver struct {
	id     string
	seq    uint64
	client *Client

	mu     sync.Mutex
	queue  *queue.Queue[State]
	reason error
	err    error

	signal    chan struct{}
	closed    chan struct{}
	closeOnce sync.Once
}

func newReceiver(c *Client, capacity int) *Receiver {
	return &Receiver{
		id:     uuid.NewString(),
		seq:    c.rcvSeq.Add(1),
		client: c,
		queue:  queue.New[State](capacity),
		signal: make(chan struct{}, 1),
		closed: make(chan struct{}),
	}
}

// ID returns the unique identifier of the receiver.
func (r *Receiver) ID() string { return r.id }

// Len returns the number of queued states.
func (r *Receiver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.queue.Length()
}

// Dropped returns the number of states dropped because the queue was full.
func (r *Receiver) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.queue.Dropped()
}

// Closed returns a channel closed when the receiver is closed.
func (r *Receiver) Closed() <-chan struct{} { return r.closed }

// Get returns the next state.
//
// A positive timeout bounds the wait and fails it with ErrTimeout. Once the receiver is
// closed and its queue drained, Get fails with ErrReceiverClosed, or ErrConnClosed when the
// client was torn down.
func (r *Receiver) Get(ctx context.Context, timeout time.Duration) (State, error) {
	t := pool.NewTimeout(timeout)
	defer t.Stop()

	return r.next(ctx, t.C())
}

// Expect discards states until state is received. The timeout bounds the whole call.
func (r *Receiver) Expect(ctx context.Context, state State, timeout time.Duration) error {
	t := pool.NewTimeout(timeout)
	defer t.Stop()

	for {
		s, err := r.next(ctx, t.C())
		if err != nil {
			return err
		}
		if s == state {
			return nil
		}
	}
}

// States returns an iterator over the received states.
//
// The iteration ends after yielding Unsubscribed, when the receiver is closed and drained,
// or when ctx ends. Err reports why an iteration ended abnormally.
func (r *Receiver) States(ctx context.Context) iter.Seq[State] {
	return func(yield func(State) bool) {
		for {
			s, err := r.next(ctx, nil)
			if err != nil {
				if !errors.Is(err, ErrReceiverClosed) {
					r.setErr(err)
				}

				return
			}

			if !yield(s) || s == Unsubscribed {
				return
			}
		}
	}
}

// Err returns the error that ended the last iteration of States, if any.
func (r *Receiver) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.err
}

// Close deregisters the receiver from its client. States already queued can still be read.
// Close is idempotent.
func (r *Receiver) Close() {
	r.close(ErrReceiverClosed)
}

func (r *Receiver) next(ctx context.Context, timeout <-chan time.Time) (State, error) {
	for {
		r.mu.Lock()
		if s, ok := r.queue.Dequeue(); ok {
			more := !r.queue.IsEmpty()
			r.mu.Unlock()
			if more {
				r.notify()
			}

			return s, nil
		}
		if r.isClosed() {
			reason := r.reason
			r.mu.Unlock()

			return 0, reason
		}
		r.mu.Unlock()

		select {
		case <-r.signal:
		case <-r.closed:
		case <-timeout:
			return 0, ErrTimeout
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

func (r *Receiver) push(s State) {
	r.mu.Lock()
	if r.isClosed() {
		r.mu.Unlock()
		return
	}
	dropped := r.queue.Enqueue(s)
	r.mu.Unlock()

	if dropped {
		r.client.metrics.incReceiverDropCount()
		r.client.logger.Warn("receiver queue full, dropped oldest state", "receiver", r.id)
	}
	r.notify()
}

func (r *Receiver) notify() {
	select {
	case r.signal <- struct{}{}:
	default:
	}
}

func (r *Receiver) close(reason error) {
	r.closeOnce.Do(func() {
		r.mu.Lock()
		r.reason = reason
		close(r.closed)
		r.mu.Unlock()

		if _, ok := r.client.receivers.LoadAndDelete(r.id); ok {
			r.client.metrics.decReceiverGauge()
		}
	})
}

func (r *Receiver) setErr(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

func (r *Receiver) isClosed() bool {
	select {
	case <-r.closed:
		return true
	default:
		return false
	}
}

func sortReceivers(rcvs []*Receiver) {
	slices.SortFunc(rcvs, func(a, b *Receiver) int {
		switch {
		case a.seq < b.seq:
			return -1
		case a.seq > b.seq:
			return 1
		default:
			return 0
		}
	})
}
