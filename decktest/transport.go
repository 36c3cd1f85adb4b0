package decktest

import (
	"context"
	"errors"
	"sync"

	"github.com/arloliu/go-plusdeck/deck"
)

// Transport is an in-process deck.Transport connected to an Emulator.
//
// Written commands are handled by the emulator synchronously; reported states are
// delivered to the client from a separate goroutine, the way a serial read loop does.
type Transport struct {
	em     *Emulator
	client *deck.Client

	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
	done      chan struct{}

	mu         sync.Mutex
	recvErrors []error
}

var _ deck.Transport = (*Transport)(nil)

// Connect creates a client attached to the emulator through an in-process Transport.
// Closing the client stops the transport.
func (e *Emulator) Connect(opts ...deck.Option) (*deck.Client, *Transport, error) {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Transport{
		em:     e,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	client, err := deck.NewClient(t, opts...)
	if err != nil {
		cancel()
		return nil, nil, err
	}
	t.client = client

	go t.pump()

	return client, t, nil
}

// Write hands every byte of p to the emulator.
func (t *Transport) Write(p []byte) (int, error) {
	if t.ctx.Err() != nil {
		return 0, deck.ErrConnClosed
	}
	for _, b := range p {
		t.em.Handle(b)
	}

	return len(p), nil
}

// Close stops delivering states and waits for the delivery goroutine to exit.
func (t *Transport) Close() error {
	t.closeOnce.Do(t.cancel)
	<-t.done

	return nil
}

// Done returns a channel closed once the transport stopped.
func (t *Transport) Done() <-chan struct{} { return t.done }

// Errors returns the errors the client returned for delivered bytes.
func (t *Transport) Errors() []error {
	t.mu.Lock()
	defer t.mu.Unlock()

	return append([]error(nil), t.recvErrors...)
}

func (t *Transport) pump() {
	defer func() {
		close(t.done)
		t.client.ConnectionLost(nil)
	}()

	for {
		data, ok := t.em.out.wait(t.ctx)
		if !ok {
			return
		}

		if err := t.client.OnBytesReceived(data); err != nil {
			if errors.Is(err, deck.ErrConnClosed) {
				return
			}
			t.em.logger.Warn("client refused emulated bytes", "error", err)
			t.mu.Lock()
			t.recvErrors = append(t.recvErrors, err)
			t.mu.Unlock()
		}
	}
}
