package driver

import (
	"errors"
	"fmt"
	"time"

	"github.com/arloliu/go-serialproto/correlator"
)

var (
	// ErrClosed indicates that the driver is closed. Futures still
	// outstanding when the driver closes fail with it.
	ErrClosed = errors.New("driver: closed")

	// ErrNotOpen indicates that the driver has not been opened yet.
	ErrNotOpen = errors.New("driver: not open")

	// ErrAlreadyOpen indicates a second call to Open.
	ErrAlreadyOpen = errors.New("driver: already opened")

	// ErrNilStream indicates that New was called without a stream.
	ErrNilStream = errors.New("driver: stream is nil")

	// ErrSendTimeout indicates that a request could not be handed to the
	// loop goroutine within the send timeout.
	ErrSendTimeout = errors.New("driver: send timeout")

	// ErrCloseTimeout indicates that the driver's goroutines did not exit
	// within the close timeout.
	ErrCloseTimeout = errors.New("driver: close timeout")

	// ErrRequestTimeout is matched by every *TimeoutError.
	ErrRequestTimeout = errors.New("driver: request timeout")
)

// TimeoutError is the outcome of a request whose reply did not arrive in time.
type TimeoutError struct {
	ID      correlator.RequestID
	Request correlator.Request
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("driver: request %v timed out after %v", e.ID, e.Timeout)
}

func (e *TimeoutError) Unwrap() error {
	return ErrRequestTimeout
}
