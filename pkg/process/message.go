package process

import "fmt"

// Kind is the first element of every Message, naming what the message
// represents: a one-way instruction, a notification of something that
// happened, a correlated request/response pair, or a fire-and-forget
// notification.
type Kind string

const (
	KindCommand      Kind = "Command"
	KindEvent        Kind = "Event"
	KindRequest      Kind = "Request"
	KindResponse     Kind = "Response"
	KindNotification Kind = "Notification"
)

// Message is the structural, not nominal, unit of communication between
// processes. It behaves like an ordered tuple whose first two elements are
// always the Kind and the Tag, followed by arbitrary parameters.
// Request and Response messages additionally carry a transaction ID that
// correlates a Response to the Request it answers.
type Message struct {
	Kind    Kind
	Tag     string
	Params  []interface{}
	TransID int64
}

// Command builds a one-way instruction message.
func Command(tag string, params ...interface{}) Message {
	return Message{Kind: KindCommand, Tag: tag, Params: params}
}

// Event builds a notification-of-occurrence message.
func Event(tag string, params ...interface{}) Message {
	return Message{Kind: KindEvent, Tag: tag, Params: params}
}

// Request builds a correlated request message. WithTransID assigns its
// transaction ID once a session has allocated one.
func Request(tag string, params ...interface{}) Message {
	return Message{Kind: KindRequest, Tag: tag, Params: params}
}

// Response builds a message answering the Request sharing the same TransID.
func Response(tag string, transID int64, params ...interface{}) Message {
	return Message{Kind: KindResponse, Tag: tag, Params: params, TransID: transID}
}

// Notification builds a fire-and-forget message with its own transaction ID.
func Notification(tag string, params ...interface{}) Message {
	return Message{Kind: KindNotification, Tag: tag, Params: params}
}

// WithTransID returns a copy of the message tagged with the given
// transaction ID, used when a Request is issued through a session.
func (m Message) WithTransID(id int64) Message {
	m.TransID = id
	return m
}

// Param returns the i-th parameter, or nil if out of range.
func (m Message) Param(i int) interface{} {
	if i < 0 || i >= len(m.Params) {
		return nil
	}
	return m.Params[i]
}

func (m Message) String() string {
	if m.Kind == KindRequest || m.Kind == KindResponse {
		return fmt.Sprintf("%s(%q, id=%d, %v)", m.Kind, m.Tag, m.TransID, m.Params)
	}
	return fmt.Sprintf("%s(%q, %v)", m.Kind, m.Tag, m.Params)
}
