package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestNotifierBroadcastsToAllSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	a := Attach("sub-a")
	b := Attach("sub-b")
	defer a.Detach()
	defer b.Detach()

	n.Subscribe(a.PID())
	n.Subscribe(b.PID())
	require.Equal(t, 2, n.Count())

	sender := Attach("sender")
	defer sender.Detach()
	n.Broadcast(sender, Event("tick"))

	ma, err := a.Receive()
	require.NoError(t, err)
	require.Equal(t, "tick", ma.Tag)

	mb, err := b.Receive()
	require.NoError(t, err)
	require.Equal(t, "tick", mb.Tag)
}

func TestNotifierDropsDeadSubscribers(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	done := make(chan struct{})
	pid := Spawn(func(ctx *Context) {
		defer close(done)
	}, "short-lived")

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("short-lived process never exited")
	}
	time.Sleep(10 * time.Millisecond)

	n.Subscribe(pid)
	sender := Attach("sender")
	defer sender.Detach()
	n.Broadcast(sender, Event("tick"))

	require.Equal(t, 0, n.Count())
}

func TestEventSenderDispatchesDeclaredShape(t *testing.T) {
	defer goleak.VerifyNone(t)

	es := NewEventSender("connected", OfType(PID(0)))
	sub := Attach("sub")
	defer sub.Detach()
	es.Subscribe(sub.PID())

	sender := Attach("sender")
	defer sender.Detach()
	es.Dispatch(sender, PID(7))

	m, err := sub.Receive()
	require.NoError(t, err)
	require.Equal(t, "connected", m.Tag)
	require.Equal(t, PID(7), m.Param(0))
}

func TestEventSenderDispatchPanicsOnShapeMismatch(t *testing.T) {
	defer goleak.VerifyNone(t)

	es := NewEventSender("connected", OfType(PID(0)))
	sender := Attach("sender")
	defer sender.Detach()

	require.Panics(t, func() {
		es.Dispatch(sender, "not-a-pid")
	})
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	defer goleak.VerifyNone(t)

	n := NewNotifier()
	a := Attach("sub-a")
	defer a.Detach()

	n.Subscribe(a.PID())
	n.Unsubscribe(a.PID())
	require.Equal(t, 0, n.Count())

	sender := Attach("sender")
	defer sender.Detach()
	n.Broadcast(sender, Event("tick"))

	_, present, err := a.TryReceive()
	require.NoError(t, err)
	require.False(t, present)
}
