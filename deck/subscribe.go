package deck

import (
	"context"
	"errors"
)

// Subscribe registers a new receiver and makes sure the deck is subscribed.
//
// From Unsubscribed it sends Subscribe and waits for Subscribed. While another subscription
// is in flight it waits for that one instead of sending a second command. In any other
// state the receiver is returned at once. Concurrent callers converge on one handshake.
//
// If the handshake fails the receiver is closed and the error returned.
func (c *Client) Subscribe(ctx context.Context, opts ...ReceiverOption) (*Receiver, error) {
	rcfg := &receiverConfig{capacity: c.cfg.receiverCapacity}
	for _, opt := range opts {
		opt(rcfg)
	}

	c.mu.Lock()
	if c.isClosed() {
		c.mu.Unlock()
		return nil, ErrConnClosed
	}

	rcv := newReceiver(c, rcfg.capacity)
	c.receivers.Store(rcv.id, rcv)
	c.metrics.incReceiverGauge()

	var w *Waiter
	switch c.State() {
	case Unsubscribed:
		c.logger.Info("subscribing", "receiver", rcv.id)
		w = c.WaitFor(Subscribed, 0)
		if err := c.sendLocked(Subscribe); err != nil {
			c.mu.Unlock()
			w.Cancel()
			rcv.Close()

			return nil, err
		}
	case Subscribing:
		w = c.WaitFor(Subscribed, 0)
	}
	c.mu.Unlock()

	if w != nil {
		if err := w.Wait(ctx); err != nil {
			rcv.Close()
			return nil, err
		}
		c.logger.Info("subscribed", "receiver", rcv.id)
	}

	return rcv, nil
}

// Unsubscribe asks the deck to stop reporting states.
//
// It does nothing while unsubscribing or unsubscribed, and waits for a subscription in
// flight to complete before sending Unsubscribe. It does not wait for Unsubscribed; use
// WaitFor for that.
func (c *Client) Unsubscribe(ctx context.Context) error {
	c.mu.Lock()
	for {
		switch c.State() {
		case Unsubscribing, Unsubscribed:
			c.mu.Unlock()
			return nil
		case Subscribing:
			w := c.WaitFor(Subscribed, 0)
			c.mu.Unlock()
			if err := w.Wait(ctx); err != nil {
				return err
			}
			c.mu.Lock()

			continue
		}

		c.logger.Info("unsubscribing")
		err := c.sendLocked(Unsubscribe)
		c.mu.Unlock()

		return err
	}
}

// Session subscribes, calls fn with the receiver and always unsubscribes afterwards, also
// when fn fails, panics or ctx is cancelled. Errors of fn and of unsubscribing are joined.
func (c *Client) Session(ctx context.Context, fn func(*Receiver) error, opts ...ReceiverOption) (err error) {
	rcv, err := c.Subscribe(ctx, opts...)
	if err != nil {
		return err
	}

	defer func() {
		if uerr := c.Unsubscribe(context.WithoutCancel(ctx)); uerr != nil {
			err = errors.Join(err, uerr)
		}
	}()

	return fn(rcv)
}
