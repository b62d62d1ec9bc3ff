package process

import (
	"fmt"
	"sync"
)

// Notifier is a many-subscriber fan-out point, used by actors (the TCP
// messenger, the transfer state machine) to broadcast Event messages to
// whichever processes have subscribed, without the actor needing to know
// who its subscribers are. This is the Go-side equivalent of the runtime's
// EventSender helper, rebuilt on top of this package's own primitives
// instead of a bespoke observer list.
type Notifier struct {
	mu          sync.Mutex
	subscribers map[PID]struct{}
}

// NewNotifier returns an empty Notifier.
func NewNotifier() *Notifier {
	return &Notifier{subscribers: make(map[PID]struct{})}
}

// Subscribe registers pid to receive future Broadcast events.
func (n *Notifier) Subscribe(pid PID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.subscribers[pid] = struct{}{}
}

// Unsubscribe removes pid from the subscriber set.
func (n *Notifier) Unsubscribe(pid PID) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.subscribers, pid)
}

// Broadcast delivers m to every current subscriber, best-effort: a
// subscriber that has already exited is silently dropped from the set
// rather than treated as an error, mirroring TrySend semantics.
func (n *Notifier) Broadcast(ctx *Context, m Message) {
	n.mu.Lock()
	targets := make([]PID, 0, len(n.subscribers))
	for pid := range n.subscribers {
		targets = append(targets, pid)
	}
	n.mu.Unlock()

	var dead []PID
	for _, pid := range targets {
		if ok, err := ctx.TrySend(pid, m); err != nil || !ok {
			dead = append(dead, pid)
		}
	}
	if len(dead) == 0 {
		return
	}
	n.mu.Lock()
	for _, pid := range dead {
		delete(n.subscribers, pid)
	}
	n.mu.Unlock()
}

// Count returns the current number of subscribers, mostly useful in tests.
func (n *Notifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subscribers)
}

// EventSender wraps a Notifier with a single fixed Event shape, the way the
// messenger and transfer actors broadcast their lifecycle events
// ("listening", "connected", "transfer-state-changed", ...) to subscribers without
// each call site having to repeat the pattern.
type EventSender struct {
	*Notifier
	pattern Pattern
}

// NewEventSender returns an EventSender that only ever dispatches
// Event(tag, ...) messages matching the given parameter leaves.
func NewEventSender(tag string, params ...Leaf) *EventSender {
	return &EventSender{
		Notifier: NewNotifier(),
		pattern:  EventPattern(tag, params...),
	}
}

// Dispatch builds Event(tag, args...), verifies it matches the declared
// pattern, and broadcasts it to subscribers. It panics if args don't match
// the declared shape: that is a programming error at the call site, not a
// runtime condition callers should branch on.
func (e *EventSender) Dispatch(ctx *Context, args ...interface{}) {
	m := Message{Kind: KindEvent, Tag: e.pattern.Tag, Params: args}
	if !Match(e.pattern, m) {
		panic(fmt.Sprintf("process: event %q dispatched with arguments not matching its declared shape: %v", e.pattern.Tag, args))
	}
	e.Broadcast(ctx, m)
}
