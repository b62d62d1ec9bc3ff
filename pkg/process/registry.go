// Package process implements an Erlang-inspired process runtime: isolated
// actors, each with its own bounded mailbox and link set, communicating
// only by message passing. This is the concurrency substrate the rest of
// the repository (wire transport, transfer state machine, session façade)
// is built on top of.
package process

import (
	"fmt"
	"sync"

	"github.com/pasaulais/sparkgo/pkg/logging"
)

// PID is an opaque, monotonically increasing identifier for a process.
type PID int64

func (pid PID) String() string {
	return fmt.Sprintf("pid-%d", int64(pid))
}

type procEntry struct {
	pid      PID
	name     string
	mailbox  *Mailbox
	mu       sync.Mutex
	linked   map[PID]struct{}
	trapExit bool
	logger   logging.Logger
}

func (p *procEntry) displayName() string {
	if p.name != "" {
		return fmt.Sprintf("%s-%d", p.name, p.pid)
	}
	return fmt.Sprintf("process-%d", p.pid)
}

type registry struct {
	mu      sync.Mutex
	procs   map[PID]*procEntry
	nextPID PID
}

var reg = &registry{
	procs:   make(map[PID]*procEntry),
	nextPID: 1,
}

func (r *registry) create(name string) *procEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	pid := r.nextPID
	r.nextPID++
	p := &procEntry{
		pid:     pid,
		name:    name,
		mailbox: NewMailbox(DefaultMailboxCapacity),
		linked:  make(map[PID]struct{}),
	}
	p.logger = logging.For(p.displayName())
	r.procs[pid] = p
	return p
}

func (r *registry) get(pid PID) (*procEntry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.procs[pid]
	return p, ok
}

func (r *registry) link(a, b PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if pa, ok := r.procs[a]; ok {
		pa.mu.Lock()
		pa.linked[b] = struct{}{}
		pa.mu.Unlock()
	}
	if pb, ok := r.procs[b]; ok {
		pb.mu.Lock()
		pb.linked[a] = struct{}{}
		pb.mu.Unlock()
	}
}

func (r *registry) remove(pid PID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.procs, pid)
}

// linkedSnapshot returns a snapshot of the process' link set, safe to
// iterate without holding any lock across a (possibly blocking) Send.
func (p *procEntry) linkedSnapshot() []PID {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]PID, 0, len(p.linked))
	for pid := range p.linked {
		out = append(out, pid)
	}
	return out
}

func (p *procEntry) setTrapExit(v bool) {
	p.mu.Lock()
	p.trapExit = v
	p.mu.Unlock()
}

func (p *procEntry) isTrapExit() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.trapExit
}

// Context is the per-process execution handle threaded explicitly through
// an actor's body and its helper functions. It stands in for the
// thread-local "current process" binding of the runtime this was adapted
// from: rather than reaching into a global registry by an implicit
// goroutine identity, every operation that needs "the current process"
// takes a *Context argument.
type Context struct {
	pid   PID
	mu    sync.Mutex
	reason    interface{}
	graceful  bool
	hasResult bool
}

// PID returns the bound process' identifier.
func (ctx *Context) PID() PID {
	return ctx.pid
}

// Current is the explicit-context equivalent of the runtime's current()
// operation.
func (ctx *Context) Current() PID {
	return ctx.pid
}

// Logger returns the per-process logger, named "<name>-<pid>".
func (ctx *Context) Logger() logging.Logger {
	if p, ok := reg.get(ctx.pid); ok {
		return p.logger
	}
	return logging.For(ctx.pid.String())
}

func (ctx *Context) setTermination(reason interface{}, graceful bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	if ctx.hasResult {
		return
	}
	ctx.reason = reason
	ctx.graceful = graceful
	ctx.hasResult = true
}

func (ctx *Context) termination() (interface{}, bool, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.reason, ctx.graceful, ctx.hasResult
}

// Send delivers m to pid's mailbox. It fails with ErrProcessKilled if the
// calling process' own mailbox has already been closed (i.e. it was
// killed), and with ErrProcessExited if the target process is unknown or
// has already closed its mailbox.
func (ctx *Context) Send(pid PID, m Message) error {
	self, ok := reg.get(ctx.pid)
	if ok && self.mailbox.IsClosed() {
		return ErrProcessKilled
	}
	target, ok := reg.get(pid)
	if !ok {
		return ErrProcessExited
	}
	if err := target.mailbox.Put(m); err != nil {
		return ErrProcessExited
	}
	return nil
}

// TrySend is Send but treating a target that has already exited as a
// non-error, reporting that in its bool result instead. ErrProcessKilled
// (the caller itself was killed) still propagates.
func (ctx *Context) TrySend(pid PID, m Message) (bool, error) {
	err := ctx.Send(pid, m)
	switch err {
	case nil:
		return true, nil
	case ErrProcessExited:
		return false, nil
	default:
		return false, err
	}
}

// Receive blocks until a message is available on the current process'
// mailbox. If the mailbox is closed, it records "killed" termination and
// returns ErrProcessKilled, which unwinds the actor's message loop.
func (ctx *Context) Receive() (Message, error) {
	self, ok := reg.get(ctx.pid)
	if !ok {
		return Message{}, ErrNoCurrentProcess
	}
	m, err := self.mailbox.Get()
	if err == ErrMailboxClosed {
		ctx.setTermination("killed", false)
		return Message{}, ErrProcessKilled
	}
	return m, err
}

// TryReceive is the non-blocking variant of Receive.
func (ctx *Context) TryReceive() (Message, bool, error) {
	self, ok := reg.get(ctx.pid)
	if !ok {
		return Message{}, false, ErrNoCurrentProcess
	}
	m, present, err := self.mailbox.GetUnlessEmpty()
	if err == ErrMailboxClosed {
		ctx.setTermination("killed", false)
		return Message{}, false, ErrProcessKilled
	}
	return m, present, nil
}

// Exit unwinds the current process' body immediately. reason == nil is a
// graceful exit; any other value is recorded and treated as a failure that
// propagates to linked processes.
func (ctx *Context) Exit(reason interface{}) {
	panic(exitSignal{reason: reason})
}

// TrapExit switches the current process to trap-exit mode: from now on,
// the death of a linked peer delivers Event("exit", peerPID, reason)
// instead of closing this process' mailbox.
func (ctx *Context) TrapExit() {
	if p, ok := reg.get(ctx.pid); ok {
		p.setTrapExit(true)
	}
}

// SpawnLinked creates a new process running fn and atomically links it
// with the calling process before fn starts, so that either process dying
// non-gracefully kills (or notifies, if trapping) the other.
func (ctx *Context) SpawnLinked(fn func(*Context), name string) PID {
	p := reg.create(name)
	reg.link(ctx.pid, p.pid)
	go runProcess(p, fn)
	return p.pid
}

// Spawn creates a new, independent process running fn and returns its PID.
func Spawn(fn func(*Context), name string) PID {
	p := reg.create(name)
	go runProcess(p, fn)
	return p.pid
}

// Attach binds the calling thread of control to a freshly allocated PID,
// returning the Context it should use for all further process operations.
// It is meant for code that is not itself the body of a spawned process
// (e.g. the goroutine driving an external event loop, or a test).
func Attach(name string) *Context {
	p := reg.create(name)
	return &Context{pid: p.pid}
}

// Detach releases an attached Context, closing its mailbox and removing it
// from the registry.
func (ctx *Context) Detach() {
	if p, ok := reg.get(ctx.pid); ok {
		p.mailbox.Close(true)
	}
	reg.remove(ctx.pid)
}

// Kill closes pid's mailbox: further sends to it fail, and its Receive
// fails with ErrProcessKilled once the mailbox is empty (with flush false,
// buffered messages are discarded at once; with flush true, they are still
// delivered first). It returns false if pid is not a known process or its
// mailbox was already closed.
func Kill(pid PID, flush bool) bool {
	p, ok := reg.get(pid)
	if !ok {
		return false
	}
	return p.mailbox.Close(flush)
}

// runProcess is the entry trampoline for every spawned process: it binds
// the Context, runs fn under a recover() shield, classifies how the
// process terminated, and propagates that to the link set exactly as
// described by the runtime's exit-propagation contract.
func runProcess(p *procEntry, fn func(*Context)) {
	ctx := &Context{pid: p.pid}
	graceful := true
	var reason interface{}

	defer func() {
		if r := recover(); r != nil {
			if sig, ok := r.(exitSignal); ok {
				reason = sig.reason
				graceful = sig.reason == nil
				if !graceful {
					p.logger.Errorf("process exited with reason %v", sig.reason)
				}
			} else {
				graceful = false
				reason = "exception"
				p.logger.Errorf("process %s died from a panic: %v", p.displayName(), r)
			}
		} else if pending, pendingGraceful, hasResult := ctx.termination(); hasResult {
			reason = pending
			graceful = pendingGraceful
		}

		if graceful {
			p.logger.Info("process stopped")
		} else {
			p.logger.Errorf("process died: %v", reason)
		}

		for _, peer := range p.linkedSnapshot() {
			peerEntry, ok := reg.get(peer)
			if !ok {
				continue
			}
			if peerEntry.isTrapExit() {
				_ = peerEntry.mailbox.Put(Event("exit", int64(p.pid), reason))
			} else if !graceful {
				peerEntry.mailbox.Close(true)
			}
		}

		p.mailbox.Close(true)
		reg.remove(p.pid)
	}()

	p.logger.Info("process started")
	fn(ctx)
}
