package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-serialproto/correlator"
	"github.com/arloliu/go-serialproto/logger"
)

// Default configuration values.
const (
	DefaultReadBufferSize = 4096
	DefaultLoopQueueSize  = 64
	DefaultSendTimeout    = 3 * time.Second
	DefaultCloseTimeout   = 3 * time.Second
)

// Config holds the configuration of a Driver.
type Config struct {
	terminator   []byte
	maxFrameSize int

	readBufferSize int
	loopQueueSize  int

	sendTimeout    time.Duration
	closeTimeout   time.Duration
	defaultTimeout time.Duration

	stopOnFramingError bool

	logger logger.Logger
}

// NewConfig creates a Config with defaults, then applies opts in order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := &Config{
		terminator:     correlator.DefaultTerminator,
		readBufferSize: DefaultReadBufferSize,
		loopQueueSize:  DefaultLoopQueueSize,
		sendTimeout:    DefaultSendTimeout,
		closeTimeout:   DefaultCloseTimeout,
		logger:         logger.GetLogger(),
	}

	for _, opt := range opts {
		if err := opt.apply(cfg); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// --- Getters ---

// Terminator returns the frame terminator.
func (cfg *Config) Terminator() []byte { return cfg.terminator }

// MaxFrameSize returns the maximum unterminated frame size, 0 means unbounded.
func (cfg *Config) MaxFrameSize() int { return cfg.maxFrameSize }

// ReadBufferSize returns the size of the stream read buffer.
func (cfg *Config) ReadBufferSize() int { return cfg.readBufferSize }

// LoopQueueSize returns the capacity of the loop goroutine's inbox.
func (cfg *Config) LoopQueueSize() int { return cfg.loopQueueSize }

// SendTimeout returns how long Send waits to hand a request to the loop.
func (cfg *Config) SendTimeout() time.Duration { return cfg.sendTimeout }

// CloseTimeout returns how long Close waits for the goroutines to exit.
func (cfg *Config) CloseTimeout() time.Duration { return cfg.closeTimeout }

// DefaultTimeout returns the reply timeout applied to requests without one.
func (cfg *Config) DefaultTimeout() time.Duration { return cfg.defaultTimeout }

// StopOnFramingError returns whether a framing error closes the driver.
func (cfg *Config) StopOnFramingError() bool { return cfg.stopOnFramingError }

// GetLogger returns the configured logger.
func (cfg *Config) GetLogger() logger.Logger { return cfg.logger }

// --- Option ---

// Option is a functional option for configuring a Driver.
type Option interface {
	apply(*Config) error
}

type optFunc func(*Config) error

func (f optFunc) apply(cfg *Config) error { return f(cfg) }

// WithTerminator sets the frame terminator. The default is a newline.
func WithTerminator(term []byte) Option {
	return optFunc(func(cfg *Config) error {
		if len(term) == 0 {
			return errors.New("driver: terminator must not be empty")
		}
		cfg.terminator = term

		return nil
	})
}

// WithMaxFrameSize limits the size of an unterminated frame. 0 means unbounded.
func WithMaxFrameSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n < 0 {
			return fmt.Errorf("driver: max frame size %d must not be negative", n)
		}
		cfg.maxFrameSize = n

		return nil
	})
}

// WithReadBufferSize sets the size of the buffer used to read the stream.
func WithReadBufferSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("driver: read buffer size %d must be positive", n)
		}
		cfg.readBufferSize = n

		return nil
	})
}

// WithLoopQueueSize sets the capacity of the loop goroutine's inbox.
func WithLoopQueueSize(n int) Option {
	return optFunc(func(cfg *Config) error {
		if n <= 0 {
			return fmt.Errorf("driver: loop queue size %d must be positive", n)
		}
		cfg.loopQueueSize = n

		return nil
	})
}

// WithSendTimeout sets how long Send waits when the loop inbox is full.
func WithSendTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("driver: send timeout must be positive")
		}
		cfg.sendTimeout = d

		return nil
	})
}

// WithCloseTimeout sets how long Close waits for the goroutines to exit.
func WithCloseTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d <= 0 {
			return errors.New("driver: close timeout must be positive")
		}
		cfg.closeTimeout = d

		return nil
	})
}

// WithDefaultTimeout sets the reply timeout used for requests whose Timeout
// is zero. Zero, the default, leaves such requests waiting indefinitely.
func WithDefaultTimeout(d time.Duration) Option {
	return optFunc(func(cfg *Config) error {
		if d < 0 {
			return errors.New("driver: default timeout must not be negative")
		}
		cfg.defaultTimeout = d

		return nil
	})
}

// WithStopOnFramingError closes the driver on the first frame the parser
// rejects. By default the frame is logged, counted and skipped.
func WithStopOnFramingError(enabled bool) Option {
	return optFunc(func(cfg *Config) error {
		cfg.stopOnFramingError = enabled
		return nil
	})
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *Config) error {
		if l == nil {
			return errors.New("driver: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
