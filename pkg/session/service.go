// Package session implements the request/response façade sitting above
// the TCP messenger: transaction ID allocation, request/response
// correlation, and bind/connect/disconnect orchestration. Where the
// runtime this was adapted from dispatches to handler methods it locates
// by reflecting over a tag's name (request<Tag>, on<Tag>, do<Tag>), this
// package instead uses an explicit registration table built before the
// session starts; no reflection happens at runtime.
package session

import (
	"sync"

	"github.com/google/uuid"
	"github.com/pasaulais/sparkgo/pkg/logging"
	"github.com/pasaulais/sparkgo/pkg/metrics"
	"github.com/pasaulais/sparkgo/pkg/process"
	"github.com/pasaulais/sparkgo/pkg/transfer"
	"github.com/pasaulais/sparkgo/pkg/transport"
	"github.com/pasaulais/sparkgo/pkg/wire"
)

// RequestHandler answers an incoming Request-shaped message, returning the
// parameters to send back in the matching Response.
type RequestHandler func(ctx *process.Context, req process.Message) []interface{}

// Service is the session actor sitting in front of a Messenger.
// Connected/ConnectionError/Disconnected mirror the messenger's own
// lifecycle one level up: Connected only fires once protocol negotiation
// has completed, since that's the point a caller can actually start
// issuing requests.
type Service struct {
	Connected       *process.EventSender // connected()
	ConnectionError *process.EventSender // connection-error(reason string)
	Disconnected    *process.EventSender // disconnected()

	// SessionID exists purely to correlate this session's log lines
	// across the messenger and transfer actors it owns; it never appears
	// on the wire.
	SessionID uuid.UUID

	pid       process.PID
	messenger *transport.Messenger
	logger    logging.Logger
	collector metrics.Collector

	mu sync.Mutex

	bound       bool
	nextTransID int64

	pendingReplies map[int64]process.PID
	requestTable   map[string]RequestHandler
	inbound        *process.Notifier // subscribers receiving forwarded Event/Notification traffic
	transfers      map[int64]process.PID
}

// NewService spawns a session actor, along with the TCP messenger it owns.
func NewService(name string) *Service {
	s := &Service{
		Connected:       process.NewEventSender("connected"),
		ConnectionError: process.NewEventSender("connection-error", process.OfType("")),
		Disconnected:    process.NewEventSender("disconnected"),
		SessionID:       uuid.New(),
		nextTransID:     1,
		pendingReplies:  make(map[int64]process.PID),
		requestTable:    make(map[string]RequestHandler),
		inbound:         process.NewNotifier(),
		transfers:       make(map[int64]process.PID),
		collector:       &metrics.NoopCollector{},
	}
	s.pid = process.Spawn(s.run, name)
	return s
}

// PID returns the session actor's process identifier.
func (s *Service) PID() process.PID {
	return s.pid
}

// SetCollector installs the metrics.Collector the session records
// connection and block activity against. Call it before Bind/Connect:
// the session's handlers read the collector without taking the lock.
func (s *Service) SetCollector(c metrics.Collector) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collector = c
}

// RegisterRequestHandler installs the function that answers Requests
// tagged tag. Register handlers before the session starts exchanging
// traffic: a Request whose tag has no handler yet is logged and dropped.
func (s *Service) RegisterRequestHandler(tag string, handler RequestHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requestTable[tag] = handler
}

// SubscribeInbound registers pid to receive every Event and Notification
// not otherwise consumed by the session itself: Notifications and custom
// Events the peer sends, plus local messenger errors (listen-error,
// accept-error) that aren't tied to a specific pending request. Requests
// route to a registered RequestHandler instead, and Responses to the
// caller that issued the matching request.
func (s *Service) SubscribeInbound(pid process.PID) {
	s.inbound.Subscribe(pid)
}

// RegisterTransfer binds transferID to the local transfer actor
// transferPID: incoming blocks tagged with transferID are delivered to it
// as Event("block-received", block), and outbound blocks it hands this
// session release it to emit the next one via Event("send-idle").
func (s *Service) RegisterTransfer(transferID int64, transferPID process.PID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[transferID] = transferPID
}

// UnregisterTransfer stops routing blocks for transferID.
func (s *Service) UnregisterTransfer(transferID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transfers, transferID)
}

// Bind asks the session to listen on addr and start accepting connections.
func Bind(ctx *process.Context, svc process.PID, addr string) error {
	return ctx.Send(svc, process.Command("bind", addr))
}

// Connect asks the session to dial addr.
func Connect(ctx *process.Context, svc process.PID, addr string) error {
	return ctx.Send(svc, process.Command("connect", addr))
}

// Disconnect asks the session to tear down its current connection.
func Disconnect(ctx *process.Context, svc process.PID) error {
	return ctx.Send(svc, process.Command("disconnect"))
}

// Stop terminates the session and its messenger.
func Stop(ctx *process.Context, svc process.PID) error {
	return ctx.Send(svc, process.Command("stop"))
}

// SendRequest allocates a transaction ID, sends Request(tag, params...)
// over the connection, and arranges for the matching Response to be
// delivered to replyPid.
func SendRequest(ctx *process.Context, svc process.PID, tag string, replyPid process.PID, params ...interface{}) error {
	return ctx.Send(svc, process.Command("send-request", tag, params, replyPid))
}

// SendNotification allocates a transaction ID and sends
// Notification(tag, params...) over the connection.
func SendNotification(ctx *process.Context, svc process.PID, tag string, params ...interface{}) error {
	return ctx.Send(svc, process.Command("send-notification", tag, params))
}

// SendBlock hands a transfer's block to the session for delivery over the
// wire.
func SendBlock(ctx *process.Context, svc process.PID, block wire.Block) error {
	return ctx.Send(svc, process.Command("send-block", block))
}

func (s *Service) run(ctx *process.Context) {
	s.logger = ctx.Logger()
	s.logger.Infof("session %s starting", s.SessionID)
	s.messenger = transport.NewMessenger(s.pid.String() + "-messenger")

	protoSub := process.Attach(s.pid.String() + "-proto-sub")
	defer protoSub.Detach()
	s.messenger.Negotiated.Subscribe(protoSub.PID())

	discSub := process.Attach(s.pid.String() + "-disc-sub")
	defer discSub.Detach()
	s.messenger.Disconnect.Subscribe(discSub.PID())

	go s.forwardNegotiated(ctx, protoSub)
	go s.forwardDisconnected(ctx, discSub)

	cmds := process.NewMatcher()
	cmds.AddPattern(process.CommandPattern("bind", process.OfType("")),
		func(ctx *process.Context, m process.Message) { s.handleBind(ctx, m) }, true)
	cmds.AddPattern(process.CommandPattern("connect", process.OfType("")),
		func(ctx *process.Context, m process.Message) { s.handleConnect(ctx, m) }, true)
	cmds.AddPattern(process.CommandPattern("disconnect"),
		func(ctx *process.Context, m process.Message) { transport.Disconnect(ctx, s.messenger.PID()) }, true)
	cmds.AddPattern(process.CommandPattern("send-request", process.Any(), process.Any(), process.Any()),
		func(ctx *process.Context, m process.Message) { s.handleSendRequest(ctx, m) }, true)
	cmds.AddPattern(process.CommandPattern("send-notification", process.Any(), process.Any()),
		func(ctx *process.Context, m process.Message) { s.handleSendNotification(ctx, m) }, true)
	cmds.AddPattern(process.CommandPattern("send-block", process.Any()),
		func(ctx *process.Context, m process.Message) { s.handleSendBlock(ctx, m) }, true)
	cmds.AddStopHandler()

	defer transport.Stop(ctx, s.messenger.PID())

	for {
		m, err := ctx.Receive()
		if err != nil {
			return
		}
		switch m.Kind {
		case process.KindCommand:
			cont, err := cmds.Match(ctx, m)
			if err != nil || !cont {
				return
			}
		case process.KindEvent:
			s.handleInboundEvent(ctx, m)
		case process.KindRequest, process.KindResponse, process.KindNotification:
			s.handleInboundTyped(ctx, m)
		}
	}
}

func (s *Service) forwardNegotiated(ctx *process.Context, sub *process.Context) {
	for {
		if _, err := sub.Receive(); err != nil {
			return
		}
		s.Connected.Dispatch(ctx)
		s.collector.ConnectionOpened()
	}
}

func (s *Service) forwardDisconnected(ctx *process.Context, sub *process.Context) {
	for {
		if _, err := sub.Receive(); err != nil {
			return
		}
		s.Disconnected.Dispatch(ctx)
		s.collector.ConnectionClosed()
		s.mu.Lock()
		bound := s.bound
		s.mu.Unlock()
		if bound {
			transport.Accept(ctx, s.messenger.PID(), ctx.PID())
		}
	}
}

func (s *Service) handleBind(ctx *process.Context, m process.Message) {
	addr := m.Param(0).(string)
	s.mu.Lock()
	already := s.bound
	s.bound = true
	s.mu.Unlock()
	if already {
		return
	}
	transport.Listen(ctx, s.messenger.PID(), addr, ctx.PID())
	transport.Accept(ctx, s.messenger.PID(), ctx.PID())
}

func (s *Service) handleConnect(ctx *process.Context, m process.Message) {
	addr := m.Param(0).(string)
	transport.Connect(ctx, s.messenger.PID(), addr, ctx.PID())
}

func (s *Service) newTransID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.nextTransID
	s.nextTransID++
	return id
}

func (s *Service) handleSendRequest(ctx *process.Context, m process.Message) {
	tag := m.Param(0).(string)
	params := m.Param(1).([]interface{})
	replyPid := m.Param(2).(process.PID)

	id := s.newTransID()
	s.mu.Lock()
	s.pendingReplies[id] = replyPid
	s.mu.Unlock()

	req := process.Request(tag, params...).WithTransID(id)
	transport.SendMessage(ctx, s.messenger.PID(), req, ctx.PID())
}

func (s *Service) handleSendNotification(ctx *process.Context, m process.Message) {
	tag := m.Param(0).(string)
	params := m.Param(1).([]interface{})
	id := s.newTransID()
	note := process.Notification(tag, params...).WithTransID(id)
	transport.SendMessage(ctx, s.messenger.PID(), note, ctx.PID())
}

func (s *Service) handleSendBlock(ctx *process.Context, m process.Message) {
	block := m.Param(0).(wire.Block)
	transport.SendBlock(ctx, s.messenger.PID(), block, ctx.PID())
	s.collector.BlockSent()

	s.mu.Lock()
	transferPID, ok := s.transfers[block.TransferID]
	s.mu.Unlock()
	if ok {
		transfer.SendIdle(ctx, transferPID)
	}
}

func (s *Service) handleInboundEvent(ctx *process.Context, m process.Message) {
	switch m.Tag {
	case "connection-error":
		s.ConnectionError.Dispatch(ctx, m.Param(0))
		s.collector.ConnectionError()
	case "send-error":
		s.logger.Warnf("send failed: %v", m.Param(0))
	case "block-received":
		s.routeBlock(ctx, m)
	default:
		s.inbound.Broadcast(ctx, m)
	}
}

func (s *Service) routeBlock(ctx *process.Context, m process.Message) {
	block := m.Param(0).(wire.Block)
	s.mu.Lock()
	transferPID, ok := s.transfers[block.TransferID]
	s.mu.Unlock()
	if !ok {
		s.logger.Warnf("block for unregistered transfer %d dropped", block.TransferID)
		return
	}
	ctx.Send(transferPID, process.Event("block-received", block))
	s.collector.BlockReceived()
}

// handleInboundTyped answers a peer's Request, Response, or Notification:
// a Response resolves the pending caller that issued the matching
// request, a Request is dispatched through the registration table built
// at construction, and a Notification is broadcast to subscribers the
// same way an Event is.
func (s *Service) handleInboundTyped(ctx *process.Context, m process.Message) {
	switch m.Kind {
	case process.KindResponse:
		s.mu.Lock()
		replyPid, ok := s.pendingReplies[m.TransID]
		if ok {
			delete(s.pendingReplies, m.TransID)
		}
		s.mu.Unlock()
		if ok {
			ctx.Send(replyPid, m)
		} else {
			s.logger.Warnf("response %q for unknown transaction %d dropped", m.Tag, m.TransID)
		}
	case process.KindRequest:
		s.mu.Lock()
		handler, ok := s.requestTable[m.Tag]
		s.mu.Unlock()
		if !ok {
			s.logger.Warnf("no request handler registered for tag %q", m.Tag)
			return
		}
		params := handler(ctx, m)
		resp := process.Response(m.Tag, m.TransID, params...)
		transport.SendMessage(ctx, s.messenger.PID(), resp, ctx.PID())
	case process.KindNotification:
		s.inbound.Broadcast(ctx, m)
	}
}
