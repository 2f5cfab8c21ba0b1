// Package allocator defines the pluggable memory capability handed to every
// component that keeps implementation state.
//
// Components never reach for an implicit global allocator: the caller passes
// one explicitly to Init, and the same allocator is used to release the state
// again on Fini. Allocators may be shared between goroutines, so
// implementations must be safe for concurrent use.
package allocator

import (
	"sync"
)

// Allocator hands out and takes back blocks of memory.
type Allocator interface {
	// Allocate returns a block of exactly size bytes, or nil when the
	// allocator cannot satisfy the request.
	Allocate(size int) []byte

	// Deallocate returns a block previously obtained from Allocate.
	Deallocate(block []byte)
}

// Valid reports whether a is usable.
func Valid(a Allocator) bool {
	return a != nil
}

// heapAllocator is backed by the Go heap.
type heapAllocator struct{}

func (heapAllocator) Allocate(size int) []byte {
	if size < 0 {
		return nil
	}
	return make([]byte, size)
}

func (heapAllocator) Deallocate([]byte) {}

// Default returns an allocator backed by the Go heap.
func Default() Allocator {
	return heapAllocator{}
}

// Limited is an allocator with a fixed byte budget. It refuses any request
// that would take the bytes in use above the budget, which makes it useful
// for bounding memory and for exercising out-of-memory paths.
// It is safe for concurrent use.
type Limited struct {
	mu          sync.Mutex
	budget      int
	inUse       int
	allocations int
}

// NewLimited creates a Limited allocator with the given budget in bytes.
func NewLimited(budget int) *Limited {
	return &Limited{budget: budget}
}

// Allocate returns a block of size bytes or nil if the budget is exhausted.
func (l *Limited) Allocate(size int) []byte {
	if size < 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inUse+size > l.budget {
		return nil
	}
	l.inUse += size
	l.allocations++
	return make([]byte, size)
}

// Deallocate returns block's bytes to the budget.
func (l *Limited) Deallocate(block []byte) {
	if block == nil {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.inUse -= cap(block)
	if l.inUse < 0 {
		l.inUse = 0
	}
	l.allocations--
}

// InUse returns the number of bytes currently allocated.
func (l *Limited) InUse() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inUse
}

// Outstanding returns the number of blocks not yet deallocated.
func (l *Limited) Outstanding() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.allocations
}

// Verify that Limited implements the Allocator interface at compile time
var _ Allocator = (*Limited)(nil)
