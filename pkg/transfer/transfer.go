// Package transfer implements the block-based upload/download state
// machine: one actor per active transfer, each owning exactly one open
// file stream.
package transfer

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/pasaulais/sparkgo/pkg/logging"
	"github.com/pasaulais/sparkgo/pkg/metrics"
	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/wire"
)

// BlockSize is the fixed chunk size every transfer reads and writes in,
// except for a file's final, possibly shorter, block.
const BlockSize = 1024

// Direction distinguishes which side of the transfer this actor is.
type Direction int

const (
	Upload Direction = iota
	Download
)

func (d Direction) String() string {
	if d == Upload {
		return "upload"
	}
	return "download"
}

// State is one point in a transfer's lifecycle. Only Closed is terminal.
type State string

const (
	StateCreated  State = "created"
	StateInactive State = "inactive"
	StateActive   State = "active"
	StateFinished State = "finished"
	StateClosed   State = "closed"
)

// FileRecord is the metadata a session hands a transfer actor when
// initializing it: an identity, a display name, a size, and (for uploads)
// the local path to read from.
type FileRecord struct {
	ID   string
	Name string
	Size int64
	Path string
}

// Transfer is the per-transfer actor. StateChanged is the EventSender
// every state transition is broadcast through; transfer-created remains a
// direct message to the owning session, since it answers that session's
// specific init-transfer request rather than announcing to subscribers.
type Transfer struct {
	StateChanged *process.EventSender // transfer-state-changed(transferID int64, direction string, state string)

	pid       process.PID
	logger    logging.Logger
	collector metrics.Collector

	transferID int64
	direction  Direction
	file       FileRecord
	reqID      int64
	sessionPid process.PID

	state     State
	path      string
	stream    *os.File
	blockSize int64

	totalBlocks int64
	offset      int64

	nextBlock int64 // upload cursor

	blockTable     map[int64]bool // download
	receivedBlocks int64
	completedSize  int64

	started time.Time
	ended   time.Time
}

// NewTransfer spawns a transfer actor linked to the calling (session)
// context, so that either one dying abnormally brings down the other.
func NewTransfer(ctx *process.Context, name string) *Transfer {
	t := &Transfer{
		StateChanged: process.NewEventSender("transfer-state-changed", process.Any(), process.Any(), process.Any()),
		state:        StateCreated,
		blockSize:    BlockSize,
		collector:    &metrics.NoopCollector{},
	}
	t.pid = ctx.SpawnLinked(t.run, name)
	return t
}

// PID returns the transfer actor's process identifier.
func (t *Transfer) PID() process.PID {
	return t.pid
}

// SetCollector installs the metrics.Collector this transfer records
// start/completion/failure against. Call it before StartTransfer; like
// other actor setup, it isn't guarded against concurrent dispatch.
func (t *Transfer) SetCollector(c metrics.Collector) {
	t.collector = c
}

// InitTransfer opens the backing file (read for upload, write for
// download) and transitions the transfer from created to inactive.
func InitTransfer(ctx *process.Context, transferPID process.PID, transferID int64, direction Direction, file FileRecord, reqID int64, sessionPid process.PID) error {
	return ctx.Send(transferPID, process.Command("init-transfer", transferID, direction, file, reqID, sessionPid))
}

// StartTransfer marks the transfer active and, for an upload, begins
// emitting blocks.
func StartTransfer(ctx *process.Context, transferPID process.PID) error {
	return ctx.Send(transferPID, process.Command("start-transfer"))
}

// CloseTransfer closes the backing file and ends the transfer actor.
func CloseTransfer(ctx *process.Context, transferPID process.PID) error {
	return ctx.Send(transferPID, process.Command("close-transfer"))
}

// RemoteStateChanged informs the transfer of the remote peer's declared
// transfer state.
func RemoteStateChanged(ctx *process.Context, transferPID process.PID, newState State) error {
	return ctx.Send(transferPID, process.Event("remote-state-changed", string(newState)))
}

// SendIdle tells an upload transfer that the session's outbound queue has
// drained, releasing backpressure so the next block can be emitted.
func SendIdle(ctx *process.Context, transferPID process.PID) error {
	return ctx.Send(transferPID, process.Event("send-idle"))
}

// BlockReceived delivers one downloaded block to the transfer.
func BlockReceived(ctx *process.Context, transferPID process.PID, block wire.Block) error {
	return ctx.Send(transferPID, process.Event("block-received", block))
}

func (t *Transfer) run(ctx *process.Context) {
	t.logger = ctx.Logger()

	pm := process.NewMatcher()
	pm.AddPattern(process.CommandPattern("init-transfer", process.Any(), process.Any(), process.Any(), process.Any(), process.Any()),
		func(ctx *process.Context, m process.Message) { t.handleInitTransfer(ctx, m) }, true)
	pm.AddPattern(process.CommandPattern("start-transfer"),
		func(ctx *process.Context, m process.Message) { t.handleStartTransfer(ctx) }, true)
	pm.AddPattern(process.CommandPattern("close-transfer"),
		func(ctx *process.Context, m process.Message) { ctx.Exit(nil) }, true)
	pm.AddPattern(process.EventPattern("remote-state-changed", process.Any()),
		func(ctx *process.Context, m process.Message) { t.handleRemoteStateChanged(ctx, m) }, true)
	pm.AddPattern(process.EventPattern("send-idle"),
		func(ctx *process.Context, m process.Message) { t.handleSendIdle(ctx) }, true)
	pm.AddPattern(process.EventPattern("block-received", process.Any()),
		func(ctx *process.Context, m process.Message) { t.handleBlockReceived(ctx, m) }, true)
	pm.AddStopHandler()

	defer t.cleanup(ctx)
	_ = pm.Run(ctx)
}

func (t *Transfer) cleanup(ctx *process.Context) {
	if t.stream != nil {
		t.stream.Close()
		t.logger.Infof("closed file %q", t.path)
		t.stream = nil
	}
	t.changeState(ctx, StateClosed)
}

func (t *Transfer) changeState(ctx *process.Context, s State) {
	if t.state == s {
		return
	}
	t.logger.Infof("transfer state changed from %q to %q", t.state, s)
	t.state = s
	t.StateChanged.Dispatch(ctx, t.transferID, t.direction.String(), string(s))
}

func (t *Transfer) handleInitTransfer(ctx *process.Context, m process.Message) {
	t.transferID = m.Param(0).(int64)
	t.direction = m.Param(1).(Direction)
	t.file = m.Param(2).(FileRecord)
	t.reqID = m.Param(3).(int64)
	t.sessionPid = m.Param(4).(process.PID)

	t.logger.Infof("initializing transfer for file %q", t.file.ID)
	t.totalBlocks = int64(math.Ceil(float64(t.file.Size) / float64(t.blockSize)))

	var err error
	switch t.direction {
	case Upload:
		t.path = t.file.Path
		t.stream, err = os.Open(t.path)
	case Download:
		t.blockTable = make(map[int64]bool)
		t.path, err = resolveDesktopPath(t.file.Name)
		if err == nil {
			t.stream, err = os.OpenFile(t.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
		}
	}
	if err != nil {
		t.logger.Errorf("failed opening file for transfer %d: %v", t.transferID, err)
		ctx.Exit(err.Error())
		return
	}
	t.logger.Infof("opened file %q", t.path)

	ctx.Send(t.sessionPid, process.Event("transfer-created", t.transferID, t.direction.String(), t.file.ID, t.reqID))
	t.changeState(ctx, StateInactive)
}

func (t *Transfer) handleStartTransfer(ctx *process.Context) {
	t.startTransfer(ctx)
}

func (t *Transfer) startTransfer(ctx *process.Context) {
	t.started = time.Now()
	t.collector.TransferStarted(t.direction.String())
	t.changeState(ctx, StateActive)
	if t.totalBlocks == 0 {
		// Nothing to move: both sides finish as soon as they're started.
		t.transferComplete(ctx)
		return
	}
	if t.direction == Upload {
		t.sendNextBlock(ctx)
	}
}

func (t *Transfer) sendNextBlock(ctx *process.Context) {
	if t.state != StateActive {
		return
	}
	if t.nextBlock >= t.totalBlocks {
		t.transferComplete(ctx)
		return
	}

	buf := make([]byte, t.blockSize)
	n, err := t.stream.Read(buf)
	if err != nil && n == 0 {
		t.logger.Errorf("failed reading block %d of transfer %d: %v", t.nextBlock, t.transferID, err)
		t.collector.TransferFailed(t.direction.String())
		ctx.Exit(err.Error())
		return
	}
	data := buf[:n]
	t.offset += int64(n)
	t.completedSize += int64(n)

	block := wire.Block{TransferID: t.transferID, BlockID: t.nextBlock, Data: data}
	ctx.Send(t.sessionPid, process.Command("send-block", block))
	t.nextBlock++
}

func (t *Transfer) handleSendIdle(ctx *process.Context) {
	if t.direction == Upload && !t.started.IsZero() {
		t.sendNextBlock(ctx)
	}
}

func (t *Transfer) handleBlockReceived(ctx *process.Context, m process.Message) {
	block := m.Param(0).(wire.Block)
	if !t.blockTable[block.BlockID] && block.BlockID < t.totalBlocks {
		fileOffset := block.BlockID * t.blockSize
		if t.offset != fileOffset {
			if _, err := t.stream.Seek(fileOffset, 0); err != nil {
				t.logger.Errorf("failed seeking to block %d of transfer %d: %v", block.BlockID, t.transferID, err)
				t.collector.TransferFailed(t.direction.String())
				ctx.Exit(err.Error())
				return
			}
			t.offset = fileOffset
		}
		if _, err := t.stream.Write(block.Data); err != nil {
			t.logger.Errorf("failed writing block %d of transfer %d: %v", block.BlockID, t.transferID, err)
			t.collector.TransferFailed(t.direction.String())
			ctx.Exit(err.Error())
			return
		}
		t.offset += int64(len(block.Data))
		t.blockTable[block.BlockID] = true
		t.receivedBlocks++
		t.completedSize += int64(len(block.Data))
	}
	if t.receivedBlocks == t.totalBlocks {
		t.transferComplete(ctx)
	}
}

func (t *Transfer) transferComplete(ctx *process.Context) {
	t.ended = time.Now()
	t.changeState(ctx, StateFinished)
	duration := t.ended.Sub(t.started)
	var rate float64
	if duration > 0 {
		rate = float64(t.completedSize) / duration.Seconds()
	}
	t.logger.Infof("transfer complete: %d bytes in %s (%.2f bytes/s)", t.completedSize, duration, rate)
	t.collector.TransferCompleted(t.direction.String(), t.completedSize, duration.Seconds())
}

func (t *Transfer) handleRemoteStateChanged(ctx *process.Context, m process.Message) {
	newState := State(m.Param(0).(string))
	t.changeState(ctx, newState)
	switch newState {
	case StateActive:
		t.startTransfer(ctx)
	case StateClosed:
		ctx.Exit(nil)
	}
}

func resolveDesktopPath(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("transfer: resolving desktop directory: %w", err)
	}
	return filepath.Join(home, "Desktop", name), nil
}
