package process

import (
	"fmt"
	"reflect"
	"sync"
)

// leafKind distinguishes the three shapes a pattern leaf can take: match
// anything, match by dynamic type (or nil), or match a concrete value.
type leafKind int

const (
	leafAny leafKind = iota
	leafType
	leafValue
)

// Leaf is one parameter slot inside a Pattern.
type Leaf struct {
	kind  leafKind
	typ   reflect.Type
	value interface{}
}

// Any matches any parameter value, including nil. Equivalent to the spec's
// null sentinel leaf.
func Any() Leaf {
	return Leaf{kind: leafAny}
}

// OfType matches any value whose dynamic type matches sample's, or nil.
func OfType(sample interface{}) Leaf {
	return Leaf{kind: leafType, typ: reflect.TypeOf(sample)}
}

// Val matches a parameter by equality with v.
func Val(v interface{}) Leaf {
	return Leaf{kind: leafValue, value: v}
}

func (l Leaf) match(v interface{}) bool {
	switch l.kind {
	case leafAny:
		return true
	case leafType:
		if v == nil {
			return true
		}
		t := reflect.TypeOf(v)
		return t == l.typ || (l.typ != nil && t.AssignableTo(l.typ))
	case leafValue:
		return reflect.DeepEqual(l.value, v)
	default:
		return false
	}
}

// Pattern is a structural template matched against a Message: Kind and Tag
// must match exactly (a Pattern always targets one concrete message shape),
// while Params are matched element-wise against the message's parameters.
type Pattern struct {
	Kind   Kind
	Tag    string
	Params []Leaf
}

// Match reports whether m satisfies p: equal Kind and Tag, identical
// parameter count, and every parameter leaf matching its slot.
func Match(p Pattern, m Message) bool {
	if p.Kind != m.Kind || p.Tag != m.Tag {
		return false
	}
	if len(p.Params) != len(m.Params) {
		return false
	}
	for i, leaf := range p.Params {
		if !leaf.match(m.Params[i]) {
			return false
		}
	}
	return true
}

// CommandPattern builds a Pattern matching Command(tag, ...) messages.
func CommandPattern(tag string, params ...Leaf) Pattern {
	return Pattern{Kind: KindCommand, Tag: tag, Params: params}
}

// EventPattern builds a Pattern matching Event(tag, ...) messages.
func EventPattern(tag string, params ...Leaf) Pattern {
	return Pattern{Kind: KindEvent, Tag: tag, Params: params}
}

// RequestPattern builds a Pattern matching Request(tag, ...) messages.
func RequestPattern(tag string, params ...Leaf) Pattern {
	return Pattern{Kind: KindRequest, Tag: tag, Params: params}
}

// ResponsePattern builds a Pattern matching Response(tag, ...) messages.
func ResponsePattern(tag string, params ...Leaf) Pattern {
	return Pattern{Kind: KindResponse, Tag: tag, Params: params}
}

type handlerEntry struct {
	pattern Pattern
	handler func(ctx *Context, m Message)
	result  bool
}

// Matcher holds an ordered list of (pattern, handler, continueFlag)
// registrations and drives a process' message loop. Unlike the dynamic
// dispatch-by-method-name this was adapted from, every handler here is an
// explicit function reference registered by the caller: there is no
// reflection at runtime.
type Matcher struct {
	mu      sync.Mutex
	entries []handlerEntry
}

// NewMatcher returns an empty Matcher.
func NewMatcher() *Matcher {
	return &Matcher{}
}

// AddPattern registers a rule: when pattern matches an incoming message,
// handler (which may be nil) runs and result is returned from Match/Run to
// decide whether the message loop continues.
func (pm *Matcher) AddPattern(pattern Pattern, handler func(ctx *Context, m Message), result bool) {
	pm.mu.Lock()
	defer pm.mu.Unlock()
	pm.entries = append(pm.entries, handlerEntry{pattern: pattern, handler: handler, result: result})
}

// AddStopHandler registers the universal Command("stop") rule that ends
// any process' message loop, matching the way every actor in this runtime
// can be shut down by sending it a stop command.
func (pm *Matcher) AddStopHandler() {
	pm.AddPattern(CommandPattern("stop"), nil, false)
}

// Match scans registered patterns in reverse insertion order (most recently
// added first) and invokes the first one that matches m, returning its
// continue flag. If nothing matches, it records "no-match" termination on
// ctx and returns ErrNoMatch.
func (pm *Matcher) Match(ctx *Context, m Message) (bool, error) {
	pm.mu.Lock()
	entries := make([]handlerEntry, len(pm.entries))
	copy(entries, pm.entries)
	pm.mu.Unlock()

	for i := len(entries) - 1; i >= 0; i-- {
		e := entries[i]
		if Match(e.pattern, m) {
			if e.handler != nil {
				e.handler(ctx, m)
			}
			return e.result, nil
		}
	}
	if ctx != nil {
		ctx.setTermination(fmt.Sprintf("no-match: %s", m), false)
	}
	return false, ErrNoMatch
}

// Run repeatedly receives messages on ctx's own mailbox and matches them
// against pm until either ctx.Receive fails (the process was killed) or a
// matched pattern's result is false (a graceful stop, e.g. Command("stop")).
func (pm *Matcher) Run(ctx *Context) error {
	for {
		m, err := ctx.Receive()
		if err != nil {
			return err
		}
		cont, err := pm.Match(ctx, m)
		if err != nil {
			return err
		}
		if !cont {
			return nil
		}
	}
}
