package deck

import (
	"errors"

	"github.com/arloliu/go-plusdeck/logger"
)

type clientConfig struct {
	logger           logger.Logger
	receiverCapacity int
}

func newClientConfig(opts ...Option) (*clientConfig, error) {
	cfg := &clientConfig{logger: logger.GetLogger()}
	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// Option is a functional option for configuring a Client.
type Option interface {
	apply(*clientConfig) error
}

type optFunc func(*clientConfig) error

func (f optFunc) apply(cfg *clientConfig) error { return f(cfg) }

// WithLogger sets the logger of the client.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *clientConfig) error {
		if l == nil {
			return errors.New("deck: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}

// WithReceiverCapacity sets the default queue capacity of receivers created by Subscribe.
// Zero, the default, means unbounded.
func WithReceiverCapacity(n int) Option {
	return optFunc(func(cfg *clientConfig) error {
		if n < 0 {
			return errors.New("deck: receiver capacity must not be negative")
		}
		cfg.receiverCapacity = n

		return nil
	})
}

type receiverConfig struct {
	capacity int
}

// ReceiverOption is a functional option for a receiver created by Subscribe.
type ReceiverOption func(*receiverConfig)

// WithQueueCapacity bounds the queue of the receiver. When the queue is full the oldest
// state is dropped. Zero means unbounded; negative values are treated as zero.
func WithQueueCapacity(n int) ReceiverOption {
	return func(cfg *receiverConfig) {
		cfg.capacity = max(n, 0)
	}
}
