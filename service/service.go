// Package service exposes a deck on D-Bus as org.jfhbrook.plusdeck.
//
// The Service owns the deck client of the daemon. It subscribes once and re-emits every
// state change as the State signal, and it answers the method calls of the exported
// interface (see Export). Client is the matching D-Bus client.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/arloliu/go-plusdeck/config"
	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/logger"
	"github.com/arloliu/go-plusdeck/serialport"
)

const (
	// BusName is the well-known name of the service.
	BusName = "org.jfhbrook.plusdeck"
	// Interface is the D-Bus interface of the service.
	Interface = BusName
	// ObjectPath is the path the service is exported at.
	ObjectPath dbus.ObjectPath = "/"
	// StateSignal is the name of the signal carrying state changes.
	StateSignal = Interface + ".State"
)

var (
	// ErrNotStarted indicates that the service has no deck client.
	ErrNotStarted = errors.New("service: not started")
	// ErrConnectionLost indicates that the deck of the service was disconnected.
	ErrConnectionLost = errors.New("service: deck connection lost")
)

// Emitter emits D-Bus signals. *dbus.Conn implements it.
type Emitter interface {
	Emit(path dbus.ObjectPath, name string, values ...any) error
}

// Connector opens the deck described by cfg.
type Connector func(ctx context.Context, cfg *config.Config) (*deck.Client, error)

// SerialConnector opens the serial port of cfg, or the first port of the system when
// cfg has none.
func SerialConnector(l logger.Logger) Connector {
	return func(ctx context.Context, cfg *config.Config) (*deck.Client, error) {
		port := cfg.Port
		if port == "" {
			var err error
			if port, err = serialport.DefaultPort(); err != nil {
				return nil, err
			}
		}

		link, err := serialport.Open(ctx, port, serialport.WithLogger(l))
		if err != nil {
			return nil, err
		}

		return link.Client(), nil
	}
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger of the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithConnector replaces the serial connector.
func WithConnector(c Connector) Option {
	return func(s *Service) { s.connect = c }
}

// Service drives one deck on behalf of D-Bus callers.
type Service struct {
	configFile string
	emitter    Emitter
	connect    Connector
	logger     logger.Logger

	mu     sync.Mutex
	client *deck.Client
	cancel context.CancelFunc
	pumped chan struct{}

	doneOnce sync.Once
	done     chan struct{}
	err      error
}

// New creates a service reading its configuration from configFile and emitting signals
// through emitter.
func New(configFile string, emitter Emitter, opts ...Option) *Service {
	s := &Service{
		configFile: configFile,
		emitter:    emitter,
		logger:     logger.GetLogger(),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.connect == nil {
		s.connect = SerialConnector(s.logger)
	}
	s.logger = s.logger.With("service", BusName)

	return s
}

// ConfigFile returns the configuration file of the service.
func (s *Service) ConfigFile() string { return s.configFile }

// Client returns the current deck client, nil before Start.
func (s *Service) Client() *deck.Client {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.client
}

// Done returns a channel closed once the service is closed or the deck it is connected to
// is lost. It follows the client across Reload.
func (s *Service) Done() <-chan struct{} { return s.done }

// Err returns ErrConnectionLost once the deck was lost, nil otherwise.
func (s *Service) Err() error {
	select {
	case <-s.done:
		return s.err
	default:
		return nil
	}
}

func (s *Service) finish(err error) {
	s.doneOnce.Do(func() {
		s.err = err
		close(s.done)
	})
}

// Start loads the configuration, connects to the deck and starts emitting states. It
// returns once the deck confirmed the subscription or ctx ends.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	subscribed, err := s.startLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return awaitSubscribed(ctx, subscribed)
}

// startLocked installs a new client. The subscription runs in the pump goroutine, so the
// lock is never held while waiting for the deck.
func (s *Service) startLocked(ctx context.Context) (<-chan error, error) {
	cfg, err := config.LoadFile(s.configFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}

	// The service closes the client itself, after unsubscribing.
	client, err := s.connect(context.WithoutCancel(ctx), cfg)
	if err != nil {
		return nil, fmt.Errorf("service: connect: %w", err)
	}

	pumpCtx, cancel := context.WithCancel(context.Background())
	s.client = client
	s.cancel = cancel
	s.pumped = make(chan struct{})

	subscribed := make(chan error, 1)
	go s.pump(pumpCtx, client, subscribed, s.pumped)
	go s.watch(pumpCtx, client)

	s.logger.Info("service started", "port", cfg.Port)

	return subscribed, nil
}

func awaitSubscribed(ctx context.Context, subscribed <-chan error) error {
	select {
	case err := <-subscribed:
		if err != nil {
			return fmt.Errorf("service: subscribe: %w", err)
		}

		return nil
	case <-ctx.Done():
		return fmt.Errorf("service: subscribe: %w", ctx.Err())
	}
}

func (s *Service) pump(ctx context.Context, client *deck.Client, subscribed chan<- error, done chan struct{}) {
	defer close(done)

	rcv, err := client.Subscribe(ctx)
	subscribed <- err
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			s.logger.Warn("subscription failed", "error", err)
		}

		return
	}
	defer rcv.Close()

	for state := range rcv.States(ctx) {
		if err := s.emitter.Emit(ObjectPath, StateSignal, state.String()); err != nil {
			s.logger.Warn("failed to emit state", "state", state.String(), "error", err)
		}
	}

	if err := rcv.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("state stream ended", "receiver", rcv.ID(), "error", err)
	}
}

// watch finishes the service when client is torn down while it is still the current
// client. Clients replaced by Reload or closed by Close are not current any more.
func (s *Service) watch(ctx context.Context, client *deck.Client) {
	select {
	case <-client.Closed():
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	current := s.client == client
	s.mu.Unlock()

	if current {
		s.logger.Error("deck connection lost", "error", client.Err())
		s.finish(ErrConnectionLost)
	}
}

// Reload closes the deck client without unsubscribing and connects again with the
// configuration file as it is now. The lock is released before waiting for the deck, so
// other calls keep working while a reconnected deck stays silent.
func (s *Service) Reload(ctx context.Context) error {
	s.mu.Lock()
	s.logger.Info("reloading")
	if err := s.stopLocked(context.Background(), false); err != nil {
		s.logger.Warn("failed to close deck client", "error", err)
	}
	subscribed, err := s.startLocked(ctx)
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return awaitSubscribed(ctx, subscribed)
}

// Close unsubscribes, closes the deck client and stops emitting states.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	defer s.finish(nil)

	return s.stopLocked(ctx, true)
}

func (s *Service) stopLocked(ctx context.Context, unsubscribe bool) error {
	if s.client == nil {
		return nil
	}

	var errs []error
	// A deck that never confirmed the subscription is closed without the handshake.
	if unsubscribe && s.client.State() != deck.Subscribing {
		unsubscribed := s.client.WaitFor(deck.Unsubscribed, time.Second)
		if err := s.client.Unsubscribe(ctx); err != nil {
			errs = append(errs, err)
			unsubscribed.Cancel()
		}
		if err := unsubscribed.Wait(ctx); err != nil && !errors.Is(err, context.Canceled) {
			s.logger.Warn("deck did not confirm unsubscribe", "error", err)
		}
	}

	s.cancel()
	<-s.pumped

	if err := s.client.Close(); err != nil {
		errs = append(errs, err)
	}
	s.client = nil

	return errors.Join(errs...)
}

// Do runs fn with the deck client.
func (s *Service) Do(fn func(*deck.Client) error) error {
	client := s.Client()
	if client == nil {
		return ErrNotStarted
	}

	return fn(client)
}

// WaitFor waits for the deck to change to state. A negative or zero timeout means none.
func (s *Service) WaitFor(ctx context.Context, state deck.State, timeout time.Duration) error {
	client := s.Client()
	if client == nil {
		return ErrNotStarted
	}

	return client.WaitFor(state, max(timeout, 0)).Wait(ctx)
}
