// Package decktest provides an emulated Plus Deck 2C for tests and examples.
//
// The emulator reacts to command bytes the way the hardware does and queues the state
// bytes the hardware would report. It can be attached to a deck.Client in-process with
// Connect, or serve any byte stream (a net.Pipe end, a pseudo terminal) with Serve.
package decktest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/internal/queue"
	"github.com/arloliu/go-plusdeck/logger"
)

// DefaultWindDuration is how long fast-forwarding and rewinding last before the tape stops.
const DefaultWindDuration = 50 * time.Millisecond

// Emulator emulates the state machine of a Plus Deck 2C.
type Emulator struct {
	mu         sync.Mutex
	state      deck.State
	subscribed bool
	silent     bool
	commands   []deck.Command
	windTimer  *time.Timer

	windDuration time.Duration
	logger       logger.Logger

	out *outbox
}

// Option configures an Emulator.
type Option func(*Emulator)

// WithInitialState sets the state of the deck when the emulator starts. The default is
// Stopped, a loaded tape.
func WithInitialState(s deck.State) Option {
	return func(e *Emulator) { e.state = s }
}

// WithWindDuration sets how long winding lasts. Zero makes winding last until the next command.
func WithWindDuration(d time.Duration) Option {
	return func(e *Emulator) { e.windDuration = d }
}

// WithSilentUnsubscribe makes the emulator skip the pause code it reports when unsubscribed.
func WithSilentUnsubscribe() Option {
	return func(e *Emulator) { e.silent = true }
}

// WithLogger sets the logger of the emulator.
func WithLogger(l logger.Logger) Option {
	return func(e *Emulator) { e.logger = l }
}

// New creates an emulator.
func New(opts ...Option) *Emulator {
	e := &Emulator{
		state:        deck.Stopped,
		windDuration: DefaultWindDuration,
		logger:       logger.GetLogger(),
		out:          newOutbox(),
	}
	for _, opt := range opts {
		opt(e)
	}

	return e
}

// State returns the state of the emulated deck.
func (e *Emulator) State() deck.State {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.state
}

// Subscribed reports whether the emulated deck is reporting states.
func (e *Emulator) Subscribed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.subscribed
}

// Commands returns the commands received so far.
func (e *Emulator) Commands() []deck.Command {
	e.mu.Lock()
	defer e.mu.Unlock()

	return append([]deck.Command(nil), e.commands...)
}

// Handle processes one command byte and returns the state bytes it reported.
// Unknown bytes are ignored, like the hardware does.
func (e *Emulator) Handle(b byte) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	cmd := deck.Command(b)
	if !cmd.IsValid() {
		e.logger.Debug("emulator ignored byte", "code", b)
		return nil
	}
	e.commands = append(e.commands, cmd)

	return e.apply(cmd)
}

// Press acts like pressing a front-panel button: the command is applied without being
// recorded as received.
func (e *Emulator) Press(cmd deck.Command) []byte {
	e.mu.Lock()
	defer e.mu.Unlock()

	return e.apply(cmd)
}

// Heartbeat re-reports the current state if subscribed.
func (e *Emulator) Heartbeat() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.subscribed {
		e.report(e.state)
	}
}

// Insert loads a tape into an ejected deck.
func (e *Emulator) Insert() {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state == deck.Ejected {
		e.setState(deck.Stopped)
	}
}

// Inject queues raw bytes as if the deck had sent them, regardless of subscription.
func (e *Emulator) Inject(b ...byte) {
	e.out.push(b...)
}

// apply runs cmd. e.mu must be held.
func (e *Emulator) apply(cmd deck.Command) []byte {
	e.out.record()
	defer e.out.stopRecording()

	switch cmd {
	case deck.Subscribe:
		e.subscribed = true
		e.report(deck.Subscribed)
		e.report(e.state)
	case deck.Unsubscribe:
		if e.subscribed && !e.silent {
			if e.state == deck.PlayingB || e.state == deck.PausedB {
				e.report(deck.PausedB)
			} else {
				e.report(deck.PausedA)
			}
		}
		e.subscribed = false
	case deck.Eject:
		e.stopWinding()
		e.setState(deck.Ejected)
	default:
		if e.state == deck.Ejected {
			return nil
		}
		e.stopWinding()
		e.setState(next(e.state, cmd))

		if e.state == deck.FastForwarding || e.state == deck.Rewinding {
			e.startWinding()
		}
	}

	return e.out.recorded()
}

func next(s deck.State, cmd deck.Command) deck.State {
	switch cmd {
	case deck.PlayA:
		return deck.PlayingA
	case deck.PlayB:
		return deck.PlayingB
	case deck.FastForward:
		return deck.FastForwarding
	case deck.Rewind:
		return deck.Rewinding
	case deck.Stop:
		return deck.Stopped
	case deck.Pause:
		switch s {
		case deck.PlayingA:
			return deck.PausedA
		case deck.PausedA:
			return deck.PlayingA
		case deck.PlayingB:
			return deck.PausedB
		case deck.PausedB:
			return deck.PlayingB
		}
	}

	return s
}

func (e *Emulator) setState(s deck.State) {
	e.state = s
	if e.subscribed {
		e.report(s)
	}
}

func (e *Emulator) report(s deck.State) {
	b, err := s.Byte()
	if err != nil {
		e.logger.Error("emulator cannot report state", "state", s.String(), "error", err)
		return
	}
	e.out.push(b)
}

func (e *Emulator) startWinding() {
	if e.windDuration <= 0 {
		return
	}

	winding := e.state
	e.windTimer = time.AfterFunc(e.windDuration, func() {
		e.mu.Lock()
		defer e.mu.Unlock()

		if e.state == winding {
			e.setState(deck.Stopped)
		}
	})
}

func (e *Emulator) stopWinding() {
	if e.windTimer != nil {
		e.windTimer.Stop()
		e.windTimer = nil
	}
}

// Serve reads command bytes from rw and writes the reported states back until ctx ends or
// rw fails. It returns nil on ctx end or when rw reaches EOF or is closed.
func (e *Emulator) Serve(ctx context.Context, rw io.ReadWriter) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		buf := make([]byte, 16)
		for {
			n, err := rw.Read(buf)
			for _, b := range buf[:n] {
				e.Handle(b)
			}
			if err != nil {
				errCh <- err
				cancel()

				return
			}
		}
	}()

	for {
		data, ok := e.out.wait(ctx)
		if !ok {
			break
		}
		if _, err := rw.Write(data); err != nil {
			if isClosedErr(err) {
				return nil
			}

			return err
		}
	}

	select {
	case err := <-errCh:
		if isClosedErr(err) {
			return nil
		}

		return err
	default:
		return nil
	}
}

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) || errors.Is(err, context.Canceled)
}

// outbox is an unbounded byte queue the emulator reports into. While recording it also
// keeps a copy of the pushed bytes, so apply can return what one command reported.
type outbox struct {
	mu        sync.Mutex
	q         *queue.Queue[byte]
	recording bool
	history   []byte
	signal    chan struct{}
}

func newOutbox() *outbox {
	return &outbox{q: queue.New[byte](0), signal: make(chan struct{}, 1)}
}

func (o *outbox) push(b ...byte) {
	o.mu.Lock()
	for _, v := range b {
		o.q.Enqueue(v)
	}
	if o.recording {
		o.history = append(o.history, b...)
	}
	o.mu.Unlock()

	select {
	case o.signal <- struct{}{}:
	default:
	}
}

func (o *outbox) record() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.recording = true
	o.history = o.history[:0]
}

func (o *outbox) recorded() []byte {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.history) == 0 {
		return nil
	}

	return append([]byte(nil), o.history...)
}

func (o *outbox) stopRecording() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.recording = false
	o.history = o.history[:0]
}

// wait blocks until bytes are queued and returns all of them.
func (o *outbox) wait(ctx context.Context) ([]byte, bool) {
	for {
		o.mu.Lock()
		var data []byte
		for {
			b, ok := o.q.Dequeue()
			if !ok {
				break
			}
			data = append(data, b)
		}
		o.mu.Unlock()

		if len(data) > 0 {
			return data, true
		}

		select {
		case <-o.signal:
		case <-ctx.Done():
			return nil, false
		}
	}
}
