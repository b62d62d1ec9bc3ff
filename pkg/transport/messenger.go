// Package transport implements the TCP messenger actor: a single process
// that owns a socket's entire lifecycle (bind, accept, connect, send,
// disconnect) and supervises the helper processes that perform the
// blocking calls on its behalf, so the messenger's own message loop is
// never blocked on socket I/O.
package transport

import (
	"bufio"
	"errors"
	"net"
	"time"

	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/wire"
)

type connState int

const (
	stateDisconnected connState = iota
	stateConnected
)

// Messenger is the actor described above. Its exported EventSenders are
// the subscription points for the four lifecycle events the spec defines;
// errors arising from a specific command (listen-error, accept-error,
// connection-error, send-error) are instead delivered directly to the
// senderPid that issued the command, since they answer one request rather
// than broadcasting to every subscriber.
type Messenger struct {
	Listening  *process.EventSender // listening(addr string)
	Connected  *process.EventSender // connected(remoteAddr string)
	Negotiated *process.EventSender // protocol-negociated(name string)
	Disconnect *process.EventSender // disconnected()

	pid process.PID

	bound    bool
	listener *net.TCPListener
	addr     string

	state    connState
	conn     net.Conn
	reader   *bufio.Reader
	writer   *bufio.Writer
	protocol string

	pendingEstablish bool
}

// NewMessenger spawns the messenger actor and returns a handle to it. The
// returned *Messenger's exported EventSenders are safe to Subscribe to
// immediately; the actor itself starts running concurrently.
func NewMessenger(name string) *Messenger {
	m := &Messenger{
		Listening:  process.NewEventSender("listening", process.OfType("")),
		Connected:  process.NewEventSender("connected", process.OfType("")),
		Negotiated: process.NewEventSender("protocol-negociated", process.OfType("")),
		Disconnect: process.NewEventSender("disconnected"),
	}
	m.pid = process.Spawn(m.run, name)
	return m
}

// PID returns the messenger's process identifier.
func (m *Messenger) PID() process.PID {
	return m.pid
}

// Listen asks the messenger to bind and listen on addr.
func Listen(ctx *process.Context, messenger process.PID, addr string, senderPid process.PID) error {
	return ctx.Send(messenger, process.Command("listen", addr, senderPid))
}

// Accept asks the messenger to accept one incoming connection, forwarding
// typed messages received on it to senderPid.
func Accept(ctx *process.Context, messenger process.PID, senderPid process.PID) error {
	return ctx.Send(messenger, process.Command("accept", senderPid))
}

// Connect asks the messenger to dial addr, forwarding typed messages
// received on the resulting connection to senderPid.
func Connect(ctx *process.Context, messenger process.PID, addr string, senderPid process.PID) error {
	return ctx.Send(messenger, process.Command("connect", addr, senderPid))
}

// Disconnect asks the messenger to tear down its current connection.
func Disconnect(ctx *process.Context, messenger process.PID) error {
	return ctx.Send(messenger, process.Command("disconnect"))
}

// SendMessage asks the messenger to serialize and write msg on its current
// connection.
func SendMessage(ctx *process.Context, messenger process.PID, msg process.Message, senderPid process.PID) error {
	return ctx.Send(messenger, process.Command("send", msg, senderPid))
}

// SendBlock asks the messenger to write a raw transfer block on its current
// connection, bypassing the typed message codec.
func SendBlock(ctx *process.Context, messenger process.PID, block wire.Block, senderPid process.PID) error {
	return ctx.Send(messenger, process.Command("send-block", block, senderPid))
}

// Stop asks the messenger to terminate, closing any listener and connection.
func Stop(ctx *process.Context, messenger process.PID) error {
	return ctx.Send(messenger, process.Command("stop"))
}

func (m *Messenger) run(ctx *process.Context) {
	pm := process.NewMatcher()

	pm.AddPattern(process.CommandPattern("listen", process.OfType(""), process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleListen(ctx, msg) }, true)

	pm.AddPattern(process.CommandPattern("accept", process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleAccept(ctx, msg) }, true)

	pm.AddPattern(process.CommandPattern("connect", process.OfType(""), process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleConnect(ctx, msg) }, true)

	pm.AddPattern(process.CommandPattern("disconnect"),
		func(ctx *process.Context, msg process.Message) { m.handleDisconnect(ctx) }, true)

	pm.AddPattern(process.CommandPattern("send", process.Any(), process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleSend(ctx, msg) }, true)

	pm.AddPattern(process.CommandPattern("send-block", process.OfType(wire.Block{}), process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleSendBlock(ctx, msg) }, true)

	pm.AddPattern(process.EventPattern("established", process.Any()),
		func(ctx *process.Context, msg process.Message) { m.handleEstablished(ctx, msg) }, true)

	pm.AddPattern(process.EventPattern("establish-error", process.Any()),
		func(ctx *process.Context, msg process.Message) { m.handleEstablishError(ctx, msg) }, true)

	pm.AddPattern(process.EventPattern("establish-cancelled"),
		func(ctx *process.Context, msg process.Message) { m.pendingEstablish = false }, true)

	pm.AddPattern(process.EventPattern("end-of-stream", process.OfType(process.PID(0))),
		func(ctx *process.Context, msg process.Message) { m.handleEndOfStream(ctx) }, true)

	pm.AddPattern(process.CommandPattern("stop"),
		func(ctx *process.Context, msg process.Message) { m.teardown() }, false)

	_ = pm.Run(ctx)
	m.teardown()
}

func (m *Messenger) teardown() {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
	}
	if m.listener != nil {
		m.listener.Close()
		m.listener = nil
	}
}

func (m *Messenger) handleListen(ctx *process.Context, msg process.Message) {
	addr := msg.Param(0).(string)
	senderPid := msg.Param(1).(process.PID)

	tcpAddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		ctx.Send(senderPid, process.Event("listen-error", err.Error()))
		return
	}
	ln, err := net.ListenTCP("tcp4", tcpAddr)
	if err != nil {
		ctx.Send(senderPid, process.Event("listen-error", err.Error()))
		return
	}
	m.listener = ln
	m.addr = ln.Addr().String()
	m.bound = true
	m.Listening.Dispatch(ctx, m.addr)
}

func (m *Messenger) handleAccept(ctx *process.Context, msg process.Message) {
	senderPid := msg.Param(0).(process.PID)

	if !m.bound || m.state != stateDisconnected {
		ctx.Send(senderPid, process.Event("accept-error", "invalid-state"))
		return
	}
	if m.pendingEstablish {
		ctx.Send(senderPid, process.Event("accept-error", "establishment already pending"))
		return
	}
	m.pendingEstablish = true
	listener := m.listener
	messengerPID := m.pid
	process.Spawn(func(helperCtx *process.Context) {
		acceptOnce(helperCtx, listener, messengerPID, senderPid)
	}, "messenger-accept")
}

func (m *Messenger) handleConnect(ctx *process.Context, msg process.Message) {
	addr := msg.Param(0).(string)
	senderPid := msg.Param(1).(process.PID)

	if m.state != stateDisconnected {
		ctx.Send(senderPid, process.Event("connection-error", "invalid-state"))
		return
	}
	if m.pendingEstablish {
		ctx.Send(senderPid, process.Event("connection-error", "establishment already pending"))
		return
	}
	m.pendingEstablish = true
	messengerPID := m.pid
	process.Spawn(func(helperCtx *process.Context) {
		dialOnce(helperCtx, addr, messengerPID, senderPid)
	}, "messenger-connect")
}

func (m *Messenger) handleEstablished(ctx *process.Context, msg process.Message) {
	e := msg.Param(0).(establishedConn)
	m.pendingEstablish = false

	if m.state == stateConnected {
		e.conn.Close()
		return
	}

	m.state = stateConnected
	m.conn = e.conn
	m.reader = e.reader
	m.writer = bufio.NewWriter(e.conn)
	m.protocol = e.protocol

	m.Connected.Dispatch(ctx, e.remoteAddr)
	m.Negotiated.Dispatch(ctx, e.protocol)

	conn := m.conn
	reader := m.reader
	messengerPID := m.pid
	senderPid := e.senderPid
	process.Spawn(func(helperCtx *process.Context) {
		receiveLoop(helperCtx, conn, reader, messengerPID, senderPid)
	}, "messenger-receive")
}

func (m *Messenger) handleEstablishError(ctx *process.Context, msg process.Message) {
	m.pendingEstablish = false
}

func (m *Messenger) handleDisconnect(ctx *process.Context) {
	if m.conn != nil {
		m.conn.Close()
		m.conn = nil
		m.reader = nil
		m.writer = nil
		m.protocol = ""
		m.state = stateDisconnected
		m.Disconnect.Dispatch(ctx)
	}
	if m.pendingEstablish && m.listener != nil {
		m.listener.SetDeadline(time.Now())
	}
}

func (m *Messenger) handleSend(ctx *process.Context, msg process.Message) {
	payload := msg.Param(0).(process.Message)
	senderPid := msg.Param(1).(process.PID)

	if m.state != stateConnected {
		ctx.Send(senderPid, process.Event("send-error", "not-connected"))
		return
	}
	if err := wire.WriteMessage(m.writer, payload); err != nil {
		ctx.Send(senderPid, process.Event("send-error", err.Error()))
		return
	}
	if err := m.writer.Flush(); err != nil {
		ctx.Send(senderPid, process.Event("send-error", err.Error()))
	}
}

func (m *Messenger) handleSendBlock(ctx *process.Context, msg process.Message) {
	block := msg.Param(0).(wire.Block)
	senderPid := msg.Param(1).(process.PID)

	if m.state != stateConnected {
		ctx.Send(senderPid, process.Event("send-error", "not-connected"))
		return
	}
	if err := wire.WriteBlock(m.writer, block); err != nil {
		ctx.Send(senderPid, process.Event("send-error", err.Error()))
		return
	}
	if err := m.writer.Flush(); err != nil {
		ctx.Send(senderPid, process.Event("send-error", err.Error()))
	}
}

func (m *Messenger) handleEndOfStream(ctx *process.Context) {
	if m.conn == nil {
		return
	}
	m.conn.Close()
	m.conn = nil
	m.reader = nil
	m.writer = nil
	m.protocol = ""
	m.state = stateDisconnected
	m.Disconnect.Dispatch(ctx)
}

// establishedConn is the payload of the internal "established" event a
// helper sends back to the messenger once a connection exists and has
// completed protocol negotiation.
type establishedConn struct {
	conn       net.Conn
	reader     *bufio.Reader
	remoteAddr string
	initiating bool
	protocol   string
	senderPid  process.PID
}

func acceptOnce(ctx *process.Context, listener *net.TCPListener, messengerPID, senderPid process.PID) {
	listener.SetDeadline(time.Time{})
	conn, err := listener.AcceptTCP()
	if err != nil {
		if isTimeout(err) {
			// disconnect interrupted a pending accept deliberately; stay silent
			// towards senderPid but still release the messenger's pending flag.
			ctx.Send(messengerPID, process.Event("establish-cancelled"))
			return
		}
		ctx.Send(messengerPID, process.Event("establish-error", err.Error()))
		ctx.Send(senderPid, process.Event("accept-error", err.Error()))
		return
	}
	negotiateAndReport(ctx, conn, messengerPID, senderPid, false)
}

func dialOnce(ctx *process.Context, addr string, messengerPID, senderPid process.PID) {
	raddr, err := net.ResolveTCPAddr("tcp4", addr)
	if err != nil {
		ctx.Send(messengerPID, process.Event("establish-error", err.Error()))
		ctx.Send(senderPid, process.Event("connection-error", err.Error()))
		return
	}
	laddr, err := net.ResolveTCPAddr("tcp4", "0.0.0.0:0")
	if err != nil {
		ctx.Send(messengerPID, process.Event("establish-error", err.Error()))
		ctx.Send(senderPid, process.Event("connection-error", err.Error()))
		return
	}
	conn, err := net.DialTCP("tcp4", laddr, raddr)
	if err != nil {
		ctx.Send(messengerPID, process.Event("establish-error", err.Error()))
		ctx.Send(senderPid, process.Event("connection-error", err.Error()))
		return
	}
	negotiateAndReport(ctx, conn, messengerPID, senderPid, true)
}

func negotiateAndReport(ctx *process.Context, conn net.Conn, messengerPID, senderPid process.PID, initiating bool) {
	reader := bufio.NewReader(conn)
	protocol, err := wire.Negotiate(reader, conn, initiating)
	if err != nil {
		conn.Close()
		ctx.Send(messengerPID, process.Event("establish-error", err.Error()))
		ctx.Send(senderPid, process.Event("connection-error", err.Error()))
		return
	}
	ctx.Send(messengerPID, process.Event("established", establishedConn{
		conn:       conn,
		reader:     reader,
		remoteAddr: conn.RemoteAddr().String(),
		initiating: initiating,
		protocol:   protocol,
		senderPid:  senderPid,
	}))
}

func receiveLoop(ctx *process.Context, conn net.Conn, reader *bufio.Reader, messengerPID, senderPid process.PID) {
	for {
		m, block, err := wire.ReadTyped(reader)
		if err != nil {
			ctx.Send(messengerPID, process.Event("end-of-stream", senderPid))
			return
		}
		if block != nil {
			ctx.Send(senderPid, process.Event("block-received", *block))
			continue
		}
		ctx.Send(senderPid, m)
	}
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
