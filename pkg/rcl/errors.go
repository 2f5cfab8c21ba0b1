package rcl

import (
	"errors"
	"fmt"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

var (
	// ErrInvalidArgument is returned for nil inputs and contract violations
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrOutOfMemory is returned when an allocator refuses a request
	ErrOutOfMemory = errors.New("allocating memory failed")
	// ErrTransport is matched by every *TransportError
	ErrTransport = errors.New("transport error")
	// ErrEventTakeFailed is returned by Take when no status was pending
	ErrEventTakeFailed = errors.New("event take failed: no status pending")
	// ErrWaitSetFull is returned when a wait set kind is at capacity
	ErrWaitSetFull = errors.New("wait set full")
	// ErrTimeout is returned by Wait when nothing became ready in time
	ErrTimeout = transport.ErrTimeout
	// ErrShutdown is returned by Wait when the owning context shut down
	ErrShutdown = transport.ErrShutdown
	// ErrNotFound is returned when no security directory matches
	ErrNotFound = errors.New("not found")
	// ErrUnsupported is returned when the transport lacks an optional capability
	ErrUnsupported = errors.New("operation not supported by transport")
)

// TransportError wraps a failure reported by the transport capability.
type TransportError struct {
	// Op is the capability operation that failed
	Op string
	// Err is the adapter's error, carrying its diagnostic text
	Err error
}

// NewTransportError wraps err as a failure of op.
func NewTransportError(op string, err error) *TransportError {
	return &TransportError{Op: op, Err: err}
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport %s failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is lets errors.Is(err, ErrTransport) match any TransportError.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// InvalidArgumentf returns an error matching ErrInvalidArgument with a
// formatted description of the violated contract.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}
