package serialport

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-plusdeck/deck"
	"github.com/arloliu/go-plusdeck/logger"
)

const (
	// DefaultBaudRate is the speed of the Plus Deck 2C serial interface.
	DefaultBaudRate = 9600
	// DefaultPollTimeout bounds each read so the read loop notices Close.
	DefaultPollTimeout = 50 * time.Millisecond
	// DefaultCloseTimeout bounds how long Close waits for the read loop.
	DefaultCloseTimeout = 3 * time.Second

	readBufferSize = 64
)

type linkConfig struct {
	baudRate      int
	pollTimeout   time.Duration
	closeTimeout  time.Duration
	logger        logger.Logger
	clientOptions []deck.Option
}

func newLinkConfig(opts ...LinkOption) (*linkConfig, error) {
	cfg := &linkConfig{
		baudRate:     DefaultBaudRate,
		pollTimeout:  DefaultPollTimeout,
		closeTimeout: DefaultCloseTimeout,
		logger:       logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// LinkOption is a functional option for configuring a Link.
type LinkOption interface {
	apply(*linkConfig) error
}

type linkOptFunc func(*linkConfig) error

func (f linkOptFunc) apply(cfg *linkConfig) error { return f(cfg) }

// WithBaudRate overrides the baud rate. The deck only speaks 9600 baud; other rates are for
// adapters and emulators.
func WithBaudRate(rate int) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if rate <= 0 {
			return fmt.Errorf("serialport: invalid baud rate %d", rate)
		}
		cfg.baudRate = rate

		return nil
	})
}

// WithPollTimeout sets the read timeout of the port.
func WithPollTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d <= 0 {
			return errors.New("serialport: poll timeout must be positive")
		}
		cfg.pollTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the read loop to exit.
func WithCloseTimeout(d time.Duration) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if d <= 0 {
			return errors.New("serialport: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithLogger sets the logger of the link. The deck client uses it too unless
// WithClientOptions sets another one.
func WithLogger(l logger.Logger) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		if l == nil {
			return errors.New("serialport: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithClientOptions passes options to the deck client created by the link.
func WithClientOptions(opts ...deck.Option) LinkOption {
	return linkOptFunc(func(cfg *linkConfig) error {
		cfg.clientOptions = append(cfg.clientOptions, opts...)
		return nil
	})
}
