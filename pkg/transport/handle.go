package transport

import (
	"github.com/google/uuid"
)

// Handle is an opaque reference to an object owned by a transport adapter.
// The zero Handle refers to nothing.
type Handle struct {
	// Implementation is the identifier of the adapter that issued the handle
	Implementation string

	// ID distinguishes handles issued by the same adapter
	ID uuid.UUID
}

// NewHandle issues a fresh handle for the given adapter identifier.
func NewHandle(implementation string) Handle {
	return Handle{
		Implementation: implementation,
		ID:             uuid.New(),
	}
}

// IsZero reports whether h refers to nothing.
func (h Handle) IsZero() bool {
	return h.ID == uuid.Nil
}

func (h Handle) String() string {
	if h.IsZero() {
		return "<none>"
	}
	return h.Implementation + "/" + h.ID.String()
}
