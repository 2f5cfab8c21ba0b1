package event_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmacdonaldsmith/rcl-go/internal/transport/intraprocess"
	"github.com/rmacdonaldsmith/rcl-go/pkg/allocator"
	"github.com/rmacdonaldsmith/rcl-go/pkg/event"
	"github.com/rmacdonaldsmith/rcl-go/pkg/rcl"
	"github.com/rmacdonaldsmith/rcl-go/pkg/transport"
)

// failingTransport reports errors from the capability calls that are set.
type failingTransport struct {
	createErr  error
	destroyErr error
	pollErr    error
	zeroHandle bool

	destroyed int
}

func (f *failingTransport) Identifier() string { return "failing" }

func (f *failingTransport) CreateEvent(transport.Handle, transport.EventType) (transport.Handle, error) {
	if f.createErr != nil {
		return transport.Handle{}, f.createErr
	}
	if f.zeroHandle {
		return transport.Handle{}, nil
	}
	return transport.NewHandle("failing"), nil
}

func (f *failingTransport) DestroyEvent(transport.Handle) error {
	f.destroyed++
	return f.destroyErr
}

func (f *failingTransport) PollEvent(transport.Handle, any) (bool, error) {
	return false, f.pollErr
}

func (f *failingTransport) Wait(context.Context, *transport.WaitEntities, time.Duration) error {
	return transport.ErrTimeout
}

// stubEntity is an rcl.Entity with fixed answers.
type stubEntity struct {
	kind   rcl.EntityKind
	handle transport.Handle
	owner  transport.Transport
}

func (s *stubEntity) Kind() rcl.EntityKind { return s.kind }

func (s *stubEntity) TransportHandle() transport.Handle {
	if s == nil {
		return transport.Handle{}
	}
	return s.handle
}

func (s *stubEntity) Transport() transport.Transport { return s.owner }

func newPubSub(t *testing.T) (*intraprocess.Transport, *intraprocess.Publisher, *intraprocess.Subscription) {
	t.Helper()
	tr := intraprocess.New()
	t.Cleanup(func() { _ = tr.Close() })

	pub, err := tr.CreatePublisher("/chatter", intraprocess.QoS{})
	require.NoError(t, err)
	sub, err := tr.CreateSubscription("/chatter", intraprocess.QoS{})
	require.NoError(t, err)
	return tr, pub, sub
}

func TestTransportType(t *testing.T) {
	tests := []struct {
		owner rcl.EntityKind
		typ   event.Type
		want  transport.EventType
	}{
		{rcl.KindPublisher, event.PublisherOfferedDeadlineMissed, transport.EventOfferedDeadlineMissed},
		{rcl.KindPublisher, event.PublisherLivelinessLost, transport.EventLivelinessLost},
		{rcl.KindSubscription, event.SubscriptionRequestedDeadlineMissed, transport.EventRequestedDeadlineMissed},
		{rcl.KindSubscription, event.SubscriptionLivelinessChanged, transport.EventLivelinessChanged},
		{rcl.KindPublisher, event.SubscriptionLivelinessChanged, transport.EventInvalid},
		{rcl.KindSubscription, event.PublisherLivelinessLost, transport.EventInvalid},
		{rcl.KindGuardCondition, event.PublisherLivelinessLost, transport.EventInvalid},
		{rcl.KindPublisher, event.Type(99), transport.EventInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.owner.String()+"/"+tt.typ.String(), func(t *testing.T) {
			assert.Equal(t, tt.want, event.TransportType(tt.owner, tt.typ))
		})
	}
}

func TestInit_ValidPairs(t *testing.T) {
	_, pub, sub := newPubSub(t)

	pairs := []struct {
		owner rcl.Entity
		typ   event.Type
	}{
		{pub, event.PublisherOfferedDeadlineMissed},
		{pub, event.PublisherLivelinessLost},
		{sub, event.SubscriptionRequestedDeadlineMissed},
		{sub, event.SubscriptionLivelinessChanged},
	}

	for _, p := range pairs {
		t.Run(p.typ.String(), func(t *testing.T) {
			var ev event.Event
			require.NoError(t, ev.Init(p.owner, p.typ, allocator.Default()))
			assert.True(t, ev.IsValid())
			assert.Equal(t, p.typ, ev.Type())
			assert.Equal(t, p.owner.Kind(), ev.OwnerKind())
			assert.Equal(t, intraprocess.Identifier, ev.RawHandle().Implementation)
			require.NoError(t, ev.Fini())
			assert.False(t, ev.IsValid())
		})
	}
}

func TestInit_InvalidArguments(t *testing.T) {
	_, pub, sub := newPubSub(t)

	t.Run("nil event", func(t *testing.T) {
		var ev *event.Event
		assert.ErrorIs(t, ev.Init(pub, event.PublisherLivelinessLost, allocator.Default()), rcl.ErrInvalidArgument)
	})

	t.Run("nil allocator", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.Init(pub, event.PublisherLivelinessLost, nil), rcl.ErrInvalidArgument)
	})

	t.Run("nil owner", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.Init(nil, event.PublisherLivelinessLost, allocator.Default()), rcl.ErrInvalidArgument)
	})

	t.Run("owner without handle", func(t *testing.T) {
		var ev event.Event
		owner := &stubEntity{kind: rcl.KindPublisher, owner: &failingTransport{}}
		assert.ErrorIs(t, ev.Init(owner, event.PublisherLivelinessLost, allocator.Default()), rcl.ErrInvalidArgument)
	})

	t.Run("owner without transport", func(t *testing.T) {
		var ev event.Event
		owner := &stubEntity{kind: rcl.KindPublisher, handle: transport.NewHandle("x")}
		assert.ErrorIs(t, ev.Init(owner, event.PublisherLivelinessLost, allocator.Default()), rcl.ErrInvalidArgument)
	})

	t.Run("subscription type on publisher", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.Init(pub, event.SubscriptionLivelinessChanged, allocator.Default()), rcl.ErrInvalidArgument)
		assert.False(t, ev.IsValid())
	})

	t.Run("publisher type on subscription", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.Init(sub, event.PublisherOfferedDeadlineMissed, allocator.Default()), rcl.ErrInvalidArgument)
	})

	t.Run("already initialized", func(t *testing.T) {
		var ev event.Event
		require.NoError(t, ev.Init(sub, event.SubscriptionLivelinessChanged, allocator.Default()))
		defer ev.Fini()
		assert.ErrorIs(t, ev.Init(sub, event.SubscriptionLivelinessChanged, allocator.Default()), rcl.ErrInvalidArgument)
		assert.True(t, ev.IsValid())
	})

	t.Run("kind-restricted constructors", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.InitPublisherEvent(sub, event.PublisherLivelinessLost, allocator.Default()), rcl.ErrInvalidArgument)
		assert.ErrorIs(t, ev.InitSubscriptionEvent(pub, event.SubscriptionLivelinessChanged, allocator.Default()), rcl.ErrInvalidArgument)
		require.NoError(t, ev.InitPublisherEvent(pub, event.PublisherLivelinessLost, allocator.Default()))
		require.NoError(t, ev.Fini())
	})
}

func TestInit_OutOfMemory(t *testing.T) {
	_, pub, _ := newPubSub(t)

	alloc := allocator.NewLimited(0)
	var ev event.Event
	assert.ErrorIs(t, ev.Init(pub, event.PublisherLivelinessLost, alloc), rcl.ErrOutOfMemory)
	assert.False(t, ev.IsValid())
	assert.Equal(t, 0, alloc.Outstanding())
}

func TestInit_TransportFailure(t *testing.T) {
	alloc := allocator.NewLimited(1024)

	t.Run("create error", func(t *testing.T) {
		ft := &failingTransport{createErr: errors.New("no more event slots")}
		owner := &stubEntity{kind: rcl.KindPublisher, handle: transport.NewHandle("failing"), owner: ft}

		var ev event.Event
		err := ev.Init(owner, event.PublisherLivelinessLost, alloc)
		assert.ErrorIs(t, err, rcl.ErrTransport)
		assert.Contains(t, err.Error(), "no more event slots")
		assert.False(t, ev.IsValid())
		assert.Equal(t, 0, alloc.Outstanding())
	})

	t.Run("zero handle", func(t *testing.T) {
		ft := &failingTransport{zeroHandle: true}
		owner := &stubEntity{kind: rcl.KindPublisher, handle: transport.NewHandle("failing"), owner: ft}

		var ev event.Event
		assert.ErrorIs(t, ev.Init(owner, event.PublisherLivelinessLost, alloc), rcl.ErrTransport)
		assert.Equal(t, 0, alloc.Outstanding())
	})
}

func TestTake(t *testing.T) {
	_, _, sub := newPubSub(t)

	var ev event.Event
	require.NoError(t, ev.InitSubscriptionEvent(sub, event.SubscriptionLivelinessChanged, allocator.Default()))
	defer ev.Fini()

	var status transport.LivelinessChangedStatus
	require.NoError(t, ev.Take(&status))
	assert.Equal(t, int32(1), status.AliveCount)
	assert.Equal(t, int32(1), status.AliveCountChange)

	assert.ErrorIs(t, ev.Take(&status), rcl.ErrEventTakeFailed)
	assert.ErrorIs(t, ev.Take(&status), rcl.ErrEventTakeFailed)
}

func TestTake_InvalidArguments(t *testing.T) {
	_, _, sub := newPubSub(t)

	var uninitialized event.Event
	assert.ErrorIs(t, uninitialized.Take(&transport.LivelinessChangedStatus{}), rcl.ErrInvalidArgument)

	var nilEvent *event.Event
	assert.ErrorIs(t, nilEvent.Take(&transport.LivelinessChangedStatus{}), rcl.ErrInvalidArgument)

	var ev event.Event
	require.NoError(t, ev.Init(sub, event.SubscriptionLivelinessChanged, allocator.Default()))
	defer ev.Fini()
	assert.ErrorIs(t, ev.Take(nil), rcl.ErrInvalidArgument)

	// Wrong status type is a transport-side failure.
	assert.ErrorIs(t, ev.Take(&transport.LivelinessLostStatus{}), rcl.ErrTransport)
}

func TestTake_TransportFailure(t *testing.T) {
	ft := &failingTransport{pollErr: errors.New("poll failed")}
	owner := &stubEntity{kind: rcl.KindSubscription, handle: transport.NewHandle("failing"), owner: ft}

	var ev event.Event
	require.NoError(t, ev.Init(owner, event.SubscriptionRequestedDeadlineMissed, allocator.Default()))
	defer ev.Fini()

	err := ev.Take(&transport.RequestedDeadlineMissedStatus{})
	assert.ErrorIs(t, err, rcl.ErrTransport)
	assert.Contains(t, err.Error(), "poll failed")
}

func TestFini(t *testing.T) {
	t.Run("uninitialized", func(t *testing.T) {
		var ev event.Event
		assert.ErrorIs(t, ev.Fini(), rcl.ErrInvalidArgument)

		var nilEvent *event.Event
		assert.ErrorIs(t, nilEvent.Fini(), rcl.ErrInvalidArgument)
	})

	t.Run("second fini", func(t *testing.T) {
		_, pub, _ := newPubSub(t)
		var ev event.Event
		require.NoError(t, ev.Init(pub, event.PublisherOfferedDeadlineMissed, allocator.Default()))
		require.NoError(t, ev.Fini())
		assert.ErrorIs(t, ev.Fini(), rcl.ErrInvalidArgument)
	})

	t.Run("destroy failure still releases", func(t *testing.T) {
		alloc := allocator.NewLimited(1024)
		ft := &failingTransport{destroyErr: errors.New("destroy failed")}
		owner := &stubEntity{kind: rcl.KindPublisher, handle: transport.NewHandle("failing"), owner: ft}

		var ev event.Event
		require.NoError(t, ev.Init(owner, event.PublisherLivelinessLost, alloc))
		assert.Equal(t, 1, alloc.Outstanding())

		err := ev.Fini()
		assert.ErrorIs(t, err, rcl.ErrTransport)
		assert.False(t, ev.IsValid())
		assert.True(t, ev.RawHandle().IsZero())
		assert.Equal(t, 0, alloc.Outstanding())
		assert.Equal(t, 1, ft.destroyed)
	})
}

func TestReinitAfterFini(t *testing.T) {
	_, pub, _ := newPubSub(t)
	alloc := allocator.NewLimited(1024)

	var ev event.Event
	for i := 0; i < 3; i++ {
		require.NoError(t, ev.Init(pub, event.PublisherLivelinessLost, alloc))
		require.NoError(t, ev.Fini())
	}
	assert.Equal(t, 0, alloc.InUse())
}

func TestRawHandle_Uninitialized(t *testing.T) {
	var ev event.Event
	assert.True(t, ev.RawHandle().IsZero())
	assert.Equal(t, event.Type(0), ev.Type())
	assert.Equal(t, rcl.KindUnknown, ev.OwnerKind())

	var nilEvent *event.Event
	assert.True(t, nilEvent.RawHandle().IsZero())
	assert.False(t, nilEvent.IsValid())
}
