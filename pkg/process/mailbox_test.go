package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMailboxPutGetOrder(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(4)
	require.NoError(t, mb.Put(Command("a")))
	require.NoError(t, mb.Put(Command("b")))

	m, err := mb.Get()
	require.NoError(t, err)
	require.Equal(t, "a", m.Tag)

	m, err = mb.Get()
	require.NoError(t, err)
	require.Equal(t, "b", m.Tag)
}

func TestMailboxBlocksWhenFull(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(1)
	require.NoError(t, mb.Put(Command("a")))

	done := make(chan struct{})
	go func() {
		require.NoError(t, mb.Put(Command("b")))
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("Put on a full mailbox returned before space freed")
	case <-time.After(50 * time.Millisecond):
	}

	_, err := mb.Get()
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("blocked Put never unblocked after Get freed capacity")
	}
}

func TestMailboxGetUnlessEmpty(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(4)
	_, present, err := mb.GetUnlessEmpty()
	require.NoError(t, err)
	require.False(t, present)

	require.NoError(t, mb.Put(Command("a")))
	m, present, err := mb.GetUnlessEmpty()
	require.NoError(t, err)
	require.True(t, present)
	require.Equal(t, "a", m.Tag)
}

func TestMailboxCloseFlushDrainsBuffered(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(4)
	require.NoError(t, mb.Put(Command("a")))
	require.True(t, mb.Close(true))
	require.False(t, mb.Close(true), "second Close must report no transition")

	m, err := mb.Get()
	require.NoError(t, err)
	require.Equal(t, "a", m.Tag)

	_, err = mb.Get()
	require.ErrorIs(t, err, ErrMailboxClosed)
}

func TestMailboxCloseDiscardDropsBuffered(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(4)
	require.NoError(t, mb.Put(Command("a")))
	require.True(t, mb.Close(false))

	_, err := mb.Get()
	require.ErrorIs(t, err, ErrMailboxClosed)
}

func TestMailboxPutAfterCloseFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	mb := NewMailbox(4)
	mb.Close(true)
	err := mb.Put(Command("a"))
	require.ErrorIs(t, err, ErrMailboxClosed)
}
