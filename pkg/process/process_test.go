package process

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitStopped(t *testing.T, done chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("process did not stop in time")
	}
}

func TestSpawnGracefulStop(t *testing.T) {
	defer goleak.VerifyNone(t)

	done := make(chan struct{})
	pid := Spawn(func(ctx *Context) {
		defer close(done)
		pm := NewMatcher()
		pm.AddStopHandler()
		_ = pm.Run(ctx)
	}, "worker")

	caller := Attach("caller")
	defer caller.Detach()
	require.NoError(t, caller.Send(pid, Command("stop")))
	waitStopped(t, done)
}

func TestKillUnblocksReceive(t *testing.T) {
	defer goleak.VerifyNone(t)

	done := make(chan error, 1)
	pid := Spawn(func(ctx *Context) {
		_, err := ctx.Receive()
		done <- err
	}, "killable")

	require.True(t, Kill(pid, true))

	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrProcessKilled)
	case <-time.After(time.Second):
		t.Fatal("Receive never unblocked after Kill")
	}
}

func TestExitPropagatesToLinkedProcess(t *testing.T) {
	defer goleak.VerifyNone(t)

	parentDone := make(chan struct{})
	childDied := make(chan error, 1)

	parentPID := Spawn(func(ctx *Context) {
		defer close(parentDone)
		childPID := ctx.SpawnLinked(func(childCtx *Context) {
			_, err := childCtx.Receive()
			childDied <- err
		}, "linked-child")

		_ = childPID
		ctx.Exit("boom")
	}, "linked-parent")
	_ = parentPID

	waitStopped(t, parentDone)

	select {
	case err := <-childDied:
		require.ErrorIs(t, err, ErrProcessKilled)
	case <-time.After(time.Second):
		t.Fatal("linked child was never killed by parent's non-graceful exit")
	}
}

func TestTrapExitDeliversEventInsteadOfKilling(t *testing.T) {
	defer goleak.VerifyNone(t)

	supervisorDone := make(chan Message, 1)

	supervisorPID := Spawn(func(ctx *Context) {
		ctx.TrapExit()
		childPID := ctx.SpawnLinked(func(childCtx *Context) {
			childCtx.Exit("child failure")
		}, "trapped-child")
		_ = childPID

		m, err := ctx.Receive()
		if err == nil {
			supervisorDone <- m
		}
	}, "supervisor")
	_ = supervisorPID

	select {
	case m := <-supervisorDone:
		require.Equal(t, KindEvent, m.Kind)
		require.Equal(t, "exit", m.Tag)
		require.Equal(t, "child failure", m.Param(1))
	case <-time.After(2 * time.Second):
		t.Fatal("trap-exit supervisor never received exit event")
	}
}

func TestAttachDetachRemovesFromRegistry(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := Attach("scratch")
	pid := ctx.PID()
	_, ok := reg.get(pid)
	require.True(t, ok)

	ctx.Detach()
	_, ok = reg.get(pid)
	require.False(t, ok)
}

func TestSendToUnknownPIDFails(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx := Attach("sender")
	defer ctx.Detach()

	err := ctx.Send(PID(999999), Command("noop"))
	require.ErrorIs(t, err, ErrProcessExited)

	ok, err := ctx.TrySend(PID(999999), Command("noop"))
	require.NoError(t, err)
	require.False(t, ok)
}
