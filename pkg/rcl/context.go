package rcl

import (
	"context"
	"sync"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// Context is the owning context of wait sets. It binds them to a transport
// and carries the shutdown signal that unblocks every pending Wait.
// It is safe for concurrent use.
type Context struct {
	mu        sync.RWMutex
	transport transport.Transport
	ctx       context.Context
	cancel    context.CancelFunc
	shutdown  bool
}

// NewContext creates a valid Context over t. Cancelling parent has the same
// effect as calling Shutdown.
func NewContext(parent context.Context, t transport.Transport) (*Context, error) {
	if parent == nil {
		return nil, InvalidArgumentf("parent context cannot be nil")
	}
	if t == nil {
		return nil, InvalidArgumentf("transport cannot be nil")
	}

	ctx, cancel := context.WithCancel(parent)
	return &Context{
		transport: t,
		ctx:       ctx,
		cancel:    cancel,
	}, nil
}

// Transport returns the transport the context was created with.
func (c *Context) Transport() transport.Transport {
	if c == nil {
		return nil
	}
	return c.transport
}

// IsValid reports whether the context has been created and not shut down.
func (c *Context) IsValid() bool {
	if c == nil || c.ctx == nil {
		return false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	return !c.shutdown && c.ctx.Err() == nil
}

// Shutdown invalidates the context and unblocks pending waits.
// Calling Shutdown more than once is a no-op.
func (c *Context) Shutdown() error {
	if c == nil || c.ctx == nil {
		return InvalidArgumentf("context is not initialized")
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.shutdown {
		return nil
	}
	c.shutdown = true
	c.cancel()

	Logger().Debug("context shut down", "transport", c.transport.Identifier())
	return nil
}

// Done is closed once the context shuts down.
func (c *Context) Done() <-chan struct{} {
	return c.ctx.Done()
}

// WaitContext returns the context.Context handed to Transport.Wait.
func (c *Context) WaitContext() context.Context {
	return c.ctx
}
