package waitset

import (
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// slots is a fixed-capacity array of entity references of one kind.
type slots[T comparable] struct {
	items []T
	size  int
}

func newSlots[T comparable](capacity int) slots[T] {
	return slots[T]{items: make([]T, capacity)}
}

func (s *slots[T]) add(v T) (int, error) {
	if s.size >= len(s.items) {
		return 0, rcl.ErrWaitSetFull
	}
	index := s.size
	s.items[index] = v
	s.size++
	return index, nil
}

func (s *slots[T]) clear() {
	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.size = 0
}

func (s *slots[T]) active() []T {
	return s.items[:s.size]
}

// stage copies the transport handle of every active slot into dst, which
// must have at least size elements, and returns the filled prefix.
func stage[T comparable](s *slots[T], dst []transport.Handle, handle func(T) transport.Handle) []transport.Handle {
	dst = dst[:s.size]
	var zero T
	for i, v := range s.active() {
		if v == zero {
			dst[i] = transport.Handle{}
			continue
		}
		dst[i] = handle(v)
	}
	return dst
}

// collect clears every slot whose handle the transport zeroed and returns
// the number of slots left ready.
func collect[T comparable](s *slots[T], got []transport.Handle, timedOut bool) int {
	var zero T
	ready := 0
	for i := range s.active() {
		if timedOut || i >= len(got) || got[i].IsZero() {
			s.items[i] = zero
			continue
		}
		if s.items[i] != zero {
			ready++
		}
	}
	return ready
}
