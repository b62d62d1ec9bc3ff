package test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/session"
	"github.com/pasaulais/sparkgo/pkg/transfer"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func waitForTag(t *testing.T, ctx *process.Context, tag string, timeout time.Duration) process.Message {
	t.Helper()
	deadline := time.After(timeout)
	for {
		m, present, err := ctx.TryReceive()
		require.NoError(t, err)
		if present && m.Tag == tag {
			return m
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for %q", tag)
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

func waitForFinished(t *testing.T, sub *process.Context) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		m, present, err := sub.TryReceive()
		require.NoError(t, err)
		if present && m.Tag == "transfer-state-changed" && m.Param(2) == string(transfer.StateFinished) {
			return
		}
		select {
		case <-deadline:
			t.Fatal("transfer never reached finished state")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}

// TestFileTransferOverRealSockets drives an upload from one session to
// another over an actual loopback TCP connection: a transfer actor on
// each side, with every block going through the session's "send-block"
// command and the messenger's wire codec, the same path a real deployment
// would use — unlike pkg/transfer's own tests, which hand blocks directly
// between two in-process actors and never touch a socket.
func TestFileTransferOverRealSockets(t *testing.T) {
	defer goleak.VerifyNone(t)

	tmp := t.TempDir()
	t.Setenv("HOME", tmp)
	require.NoError(t, os.MkdirAll(filepath.Join(tmp, "Desktop"), 0o755))

	data := make([]byte, 2500)
	for i := range data {
		data[i] = byte(i % 251)
	}
	srcPath := filepath.Join(tmp, "source.bin")
	require.NoError(t, os.WriteFile(srcPath, data, 0o644))

	server := session.NewService("itest-server")
	client := session.NewService("itest-client")

	serverCaller := process.Attach("itest-server-caller")
	defer serverCaller.Detach()
	clientCaller := process.Attach("itest-client-caller")
	defer clientCaller.Detach()

	serverConnected := process.Attach("itest-server-connected")
	defer serverConnected.Detach()
	server.Connected.Subscribe(serverConnected.PID())

	clientConnected := process.Attach("itest-client-connected")
	defer clientConnected.Detach()
	client.Connected.Subscribe(clientConnected.PID())

	serverSub := process.Attach("itest-server-sub")
	defer serverSub.Detach()
	server.SubscribeInbound(serverSub.PID())

	require.NoError(t, session.Bind(serverCaller, server.PID(), "127.0.0.1:4560"))
	require.NoError(t, session.Connect(clientCaller, client.PID(), "127.0.0.1:4560"))
	waitForTag(t, clientConnected, "connected", 2*time.Second)
	waitForTag(t, serverConnected, "connected", 2*time.Second)

	const transferID = int64(42)

	upload := transfer.NewTransfer(clientCaller, "itest-upload")
	download := transfer.NewTransfer(serverCaller, "itest-download")
	client.RegisterTransfer(transferID, upload.PID())
	defer client.UnregisterTransfer(transferID)
	server.RegisterTransfer(transferID, download.PID())
	defer server.UnregisterTransfer(transferID)

	downStates := process.Attach("itest-down-states")
	defer downStates.Detach()
	download.StateChanged.Subscribe(downStates.PID())

	require.NoError(t, transfer.InitTransfer(clientCaller, upload.PID(), transferID, transfer.Upload,
		transfer.FileRecord{ID: "f1", Name: "received.bin", Size: int64(len(data)), Path: srcPath}, 1, client.PID()))
	require.NoError(t, transfer.InitTransfer(serverCaller, download.PID(), transferID, transfer.Download,
		transfer.FileRecord{ID: "f1", Name: "received.bin", Size: int64(len(data))}, 1, server.PID()))

	waitForTag(t, serverSub, "transfer-created", 2*time.Second)

	require.NoError(t, transfer.StartTransfer(serverCaller, download.PID()))
	require.NoError(t, transfer.StartTransfer(clientCaller, upload.PID()))

	waitForFinished(t, downStates)

	require.NoError(t, transfer.CloseTransfer(clientCaller, upload.PID()))
	require.NoError(t, transfer.CloseTransfer(serverCaller, download.PID()))
	time.Sleep(20 * time.Millisecond)

	got, err := os.ReadFile(filepath.Join(tmp, "Desktop", "received.bin"))
	require.NoError(t, err)
	require.Equal(t, data, got)

	require.NoError(t, session.Stop(clientCaller, client.PID()))
	require.NoError(t, session.Stop(serverCaller, server.PID()))
	time.Sleep(20 * time.Millisecond)
}
