package correlator

import (
	"errors"
	"fmt"
)

var (
	// ErrNilRequest indicates that Send was called with a nil request.
	ErrNilRequest = errors.New("correlator: request is nil")

	// ErrNoWriter indicates that Send was called without a write function and
	// no default writer was configured with WithWriter.
	ErrNoWriter = errors.New("correlator: no write function")

	// ErrFrameTooLong indicates that the unterminated tail of the input grew
	// past the configured maximum frame size and was discarded.
	ErrFrameTooLong = errors.New("correlator: frame exceeds maximum size")

	// ErrNilParser indicates that a correlator was constructed without a parser.
	ErrNilParser = errors.New("correlator: parser is nil")

	// ErrEmbeddedTerminator indicates a request whose bytes carry the
	// terminator anywhere but at their end.
	ErrEmbeddedTerminator = errors.New("correlator: request contains the terminator before its end")

	// ErrNilScheduler indicates that a correlator was constructed without a scheduler.
	ErrNilScheduler = errors.New("correlator: scheduler is nil")
)

// FramingError reports a frame the parser could not interpret.
//
// Err is the parser's error, returned undisguised through Unwrap so callers
// can match protocol specific errors with errors.Is and errors.As.
type FramingError struct {
	Frame []byte
	Err   error
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("correlator: cannot interpret frame %q: %v", e.Frame, e.Err)
}

func (e *FramingError) Unwrap() error {
	return e.Err
}
