package rcl

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

type stubTransport struct{}

func (stubTransport) Identifier() string { return "stub" }

func (stubTransport) CreateEvent(transport.Handle, transport.EventType) (transport.Handle, error) {
	return transport.NewHandle("stub"), nil
}

func (stubTransport) DestroyEvent(transport.Handle) error { return nil }

func (stubTransport) PollEvent(transport.Handle, any) (bool, error) { return false, nil }

func (stubTransport) Wait(context.Context, *transport.WaitEntities, time.Duration) error {
	return transport.ErrTimeout
}

func TestTransportError(t *testing.T) {
	cause := errors.New("middleware exploded")
	err := NewTransportError("wait", cause)

	assert.True(t, errors.Is(err, ErrTransport))
	assert.True(t, errors.Is(err, cause))
	assert.False(t, errors.Is(err, ErrInvalidArgument))
	assert.Contains(t, err.Error(), "wait")
	assert.Contains(t, err.Error(), "middleware exploded")

	var te *TransportError
	require.True(t, errors.As(err, &te))
	assert.Equal(t, "wait", te.Op)
}

func TestInvalidArgumentf(t *testing.T) {
	err := InvalidArgumentf("slot %d out of range", 3)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "slot 3 out of range")
}

func TestTimeoutAliases(t *testing.T) {
	assert.ErrorIs(t, ErrTimeout, transport.ErrTimeout)
	assert.ErrorIs(t, ErrShutdown, transport.ErrShutdown)
}

func TestNewContext(t *testing.T) {
	//nolint:staticcheck // nil parent is the case under test
	_, err := NewContext(nil, stubTransport{})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = NewContext(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	ctx, err := NewContext(context.Background(), stubTransport{})
	require.NoError(t, err)
	assert.True(t, ctx.IsValid())
	assert.Equal(t, "stub", ctx.Transport().Identifier())
}

func TestContext_Shutdown(t *testing.T) {
	ctx, err := NewContext(context.Background(), stubTransport{})
	require.NoError(t, err)

	require.NoError(t, ctx.Shutdown())
	assert.False(t, ctx.IsValid())
	require.NoError(t, ctx.Shutdown())

	select {
	case <-ctx.Done():
	default:
		t.Fatal("Done not closed after Shutdown")
	}
	assert.Error(t, ctx.WaitContext().Err())
}

func TestContext_ParentCancel(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	ctx, err := NewContext(parent, stubTransport{})
	require.NoError(t, err)

	cancel()
	assert.False(t, ctx.IsValid())
}

func TestContext_Nil(t *testing.T) {
	var ctx *Context
	assert.False(t, ctx.IsValid())
	assert.Nil(t, ctx.Transport())
	assert.ErrorIs(t, ctx.Shutdown(), ErrInvalidArgument)

	assert.False(t, (&Context{}).IsValid())
}

func TestSetLogger(t *testing.T) {
	defer SetLogger(nil)

	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))

	ctx, err := NewContext(context.Background(), stubTransport{})
	require.NoError(t, err)
	require.NoError(t, ctx.Shutdown())
	assert.Contains(t, buf.String(), "context shut down")

	SetLogger(nil)
	assert.Equal(t, slog.Default(), Logger())
}

func TestEntityKind_String(t *testing.T) {
	assert.Equal(t, "subscription", KindSubscription.String())
	assert.Equal(t, "guard_condition", KindGuardCondition.String())
	assert.Equal(t, "unknown", EntityKind(42).String())
}

func TestEntityValid(t *testing.T) {
	assert.False(t, EntityValid(nil))
}
