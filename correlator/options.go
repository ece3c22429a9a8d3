package correlator

import (
	"errors"

	"github.com/arloliu/go-serialproto/logger"
)

type config struct {
	terminator   []byte
	maxFrameSize int
	write        WriteFunc
	logger       logger.Logger
}

func defaultConfig() *config {
	return &config{
		terminator: DefaultTerminator,
		logger:     logger.GetLogger(),
	}
}

// Option configures a Correlator.
type Option interface {
	apply(*config) error
}

type optFunc func(*config) error

func (f optFunc) apply(cfg *config) error { return f(cfg) }

// WithTerminator sets the byte sequence that delimits frames.
// The default is a single newline.
func WithTerminator(term []byte) Option {
	return optFunc(func(cfg *config) error {
		if len(term) == 0 {
			return errors.New("correlator: terminator must not be empty")
		}
		cfg.terminator = term

		return nil
	})
}

// WithWriter sets the write function used by Send calls that pass a nil writer.
func WithWriter(write WriteFunc) Option {
	return optFunc(func(cfg *config) error {
		cfg.write = write
		return nil
	})
}

// WithMaxFrameSize limits how many bytes an unterminated frame may grow to.
// Zero, the default, means unbounded.
func WithMaxFrameSize(n int) Option {
	return optFunc(func(cfg *config) error {
		if n < 0 {
			return errors.New("correlator: max frame size must not be negative")
		}
		cfg.maxFrameSize = n

		return nil
	})
}

// WithLogger sets the logger for diagnostics.
func WithLogger(l logger.Logger) Option {
	return optFunc(func(cfg *config) error {
		if l == nil {
			return errors.New("correlator: logger must not be nil")
		}
		cfg.logger = l

		return nil
	})
}
