package deck

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/arloliu/go-plusdeck/logger"
)

// Client is the protocol session with one deck.
//
// All state transitions, outbound synthetic ones and inbound ones alike, are serialized by
// one mutex that is held while listeners and receivers are notified. Listeners therefore
// run synchronously in transition order. A listener may read State, call WaitFor, register
// or remove listeners and use receivers, but it must not call Send, Subscribe, Unsubscribe
// or OnBytesReceived.
type Client struct {
	mu    sync.Mutex
	state atomic.Int32

	transport      Transport
	transportClose sync.Once
	transportErr   error

	cfg     *clientConfig
	logger  logger.Logger
	metrics ClientMetrics

	listeners *registry
	receivers *xsync.MapOf[string, *Receiver]
	waiters   *xsync.MapOf[uint64, *Waiter]
	rcvSeq    atomic.Uint64
	waiterSeq atomic.Uint64

	closeOnce sync.Once
	closed    chan struct{}
	err       error
}

// NewClient creates a client writing commands to transport. The client starts in the
// Unsubscribed state.
//
// A nil transport is accepted; Send then fails with ErrNotConnected.
func NewClient(transport Transport, opts ...Option) (*Client, error) {
	cfg, err := newClientConfig(opts...)
	if err != nil {
		return nil, err
	}

	c := &Client{
		transport: transport,
		cfg:       cfg,
		logger:    cfg.logger,
		listeners: newRegistry(),
		receivers: xsync.NewMapOf[string, *Receiver](),
		waiters:   xsync.NewMapOf[uint64, *Waiter](),
		closed:    make(chan struct{}),
	}
	c.state.Store(int32(Unsubscribed))

	return c, nil
}

// State returns the current state.
func (c *Client) State() State {
	return State(c.state.Load())
}

// GetMetrics returns the metrics of the client.
func (c *Client) GetMetrics() *ClientMetrics {
	return &c.metrics
}

// Receivers returns the registered receivers in creation order.
func (c *Client) Receivers() []*Receiver {
	rcvs := make([]*Receiver, 0, c.receivers.Size())
	c.receivers.Range(func(_ string, r *Receiver) bool {
		rcvs = append(rcvs, r)
		return true
	})
	sortReceivers(rcvs)

	return rcvs
}

// Send writes cmd to the deck. It does not wait for the deck to react.
//
// Subscribe first moves the client to Subscribing and Unsubscribe to Unsubscribing. When
// that transition is refused, a *SubscriptionError is returned and nothing is written.
func (c *Client) Send(cmd Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.sendLocked(cmd)
}

func (c *Client) sendLocked(cmd Command) error {
	if !cmd.IsValid() {
		return fmt.Errorf("%w: 0x%02X", ErrUnknownCommand, byte(cmd))
	}
	if c.transport == nil {
		c.metrics.incCommandErrCount()
		return ErrNotConnected
	}
	if c.isClosed() {
		c.metrics.incCommandErrCount()
		return ErrConnClosed
	}

	switch cmd {
	case Subscribe:
		if err := c.step(Subscribing); err != nil {
			c.metrics.incCommandErrCount()
			return err
		}
	case Unsubscribe:
		if err := c.step(Unsubscribing); err != nil {
			c.metrics.incCommandErrCount()
			return err
		}
	}

	if _, err := c.transport.Write([]byte{cmd.Byte()}); err != nil {
		c.metrics.incCommandErrCount()
		if errors.Is(err, ErrConnection) {
			return err
		}

		return fmt.Errorf("%w: write %s: %w", ErrConnection, cmd, err)
	}

	c.metrics.incCommandSendCount()
	c.logger.Debug("command sent", "command", cmd.String(), "code", cmd.Byte())

	return nil
}

// PlayA plays side A.
func (c *Client) PlayA() error { return c.Send(PlayA) }

// PlayB plays side B.
func (c *Client) PlayB() error { return c.Send(PlayB) }

// FastForwardA fast-forwards side A.
func (c *Client) FastForwardA() error { return c.Send(FastForward) }

// FastForwardB fast-forwards side B, which rewinds the tape.
func (c *Client) FastForwardB() error { return c.Send(Rewind) }

// RewindA rewinds side A.
func (c *Client) RewindA() error { return c.Send(Rewind) }

// RewindB rewinds side B, which fast-forwards the tape.
func (c *Client) RewindB() error { return c.Send(FastForward) }

// Pause toggles pause.
func (c *Client) Pause() error { return c.Send(Pause) }

// Stop stops the tape.
func (c *Client) Stop() error { return c.Send(Stop) }

// Eject ejects the tape.
func (c *Client) Eject() error { return c.Send(Eject) }

// OnBytesReceived feeds bytes read from the deck through the state machine, in order.
//
// Processing stops at the first byte that fails to decode (*DecodeError) or that the
// subscription protocol refuses (*SubscriptionError); that error is returned and the
// remaining bytes of data are discarded.
func (c *Client) OnBytesReceived(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return ErrConnClosed
	}

	for i, b := range data {
		s, ok := lookupState(b)
		if !ok {
			c.metrics.incDecodeErrCount()
			c.logger.Warn("unknown state code", "code", b)

			return &DecodeError{Code: b, Offset: i}
		}
		c.metrics.incStateRecvCount()

		err := c.step(s)
		c.listeners.emit(KindReport, s)
		if err != nil {
			return err
		}
	}

	return nil
}

// step runs one transition. c.mu must be held.
func (c *Client) step(incoming State) error {
	prev := c.State()

	next, err := transition(prev, incoming)
	if err != nil {
		c.metrics.incProtocolErrCount()
		c.logger.Warn("state refused", "state", incoming.String(), "prevState", prev.String())

		return err
	}

	c.state.Store(int32(next))

	if next != prev {
		c.metrics.incStateChangeCount()
		c.logger.Debug("state changed", "state", next.String(), "prevState", prev.String())

		if next == Subscribed {
			c.listeners.emit(KindSubscribed, next)
		}
		c.listeners.emit(KindState, next)
		if next == Unsubscribed {
			c.listeners.emit(KindUnsubscribed, next)
		}

		c.receivers.Range(func(_ string, r *Receiver) bool {
			r.push(next)
			return true
		})
	}

	if next == Unsubscribed {
		c.receivers.Range(func(_ string, r *Receiver) bool {
			r.close(ErrReceiverClosed)
			return true
		})
		c.receivers.Clear()
	}

	return nil
}

// Closed returns a channel closed once the client is torn down by Close or ConnectionLost.
func (c *Client) Closed() <-chan struct{} {
	return c.closed
}

// Err returns the error the connection was lost with. It is nil while the client is open,
// after Close, and after a connection loss without error.
func (c *Client) Err() error {
	select {
	case <-c.closed:
		return c.err
	default:
		return nil
	}
}

// Close tears the client down and closes the transport.
//
// Receivers are closed and pending waiters fail with ErrConnClosed. Close is idempotent;
// every call returns the result of closing the transport.
func (c *Client) Close() error {
	c.teardown(nil)

	c.transportClose.Do(func() {
		if c.transport != nil {
			c.transportErr = c.transport.Close()
		}
	})

	return c.transportErr
}

// ConnectionLost tears the client down after the transport was lost. err is the cause,
// nil for an orderly end of stream.
func (c *Client) ConnectionLost(err error) {
	if !c.teardown(err) {
		return
	}

	if err != nil {
		c.logger.Error("connection lost", "error", err)
	} else {
		c.logger.Info("connection closed")
	}
}

// teardown reports whether this call tore the client down.
func (c *Client) teardown(cause error) (first bool) {
	c.closeOnce.Do(func() {
		first = true

		c.mu.Lock()
		defer c.mu.Unlock()

		c.err = cause
		close(c.closed)

		c.receivers.Range(func(_ string, r *Receiver) bool {
			r.close(ErrConnClosed)
			return true
		})
		c.receivers.Clear()

		c.waiters.Range(func(_ uint64, w *Waiter) bool {
			w.resolve(ErrConnClosed)
			return true
		})

		c.listeners.clear()
	})

	return first
}

func (c *Client) isClosed() bool {
	select {
	case <-c.closed:
		return true
	default:
		return false
	}
}
