package process

import "sync"

// DefaultMailboxCapacity is the bounded capacity every process mailbox is
// created with.
const DefaultMailboxCapacity = 64

// Mailbox is a bounded FIFO queue with a terminal closed state. Any number
// of producers may Put concurrently; exactly one consumer, the owning
// process, calls Get/GetUnlessEmpty. Once closed, a Mailbox never reopens.
type Mailbox struct {
	mu       sync.Mutex
	notEmpty *sync.Cond
	notFull  *sync.Cond
	items    []Message
	capacity int
	closed   bool
	flushed  bool
}

// NewMailbox creates an open mailbox with the given bounded capacity.
func NewMailbox(capacity int) *Mailbox {
	mb := &Mailbox{capacity: capacity}
	mb.notEmpty = sync.NewCond(&mb.mu)
	mb.notFull = sync.NewCond(&mb.mu)
	return mb
}

// Put appends a message to the queue, blocking while the queue is full.
// It fails with ErrMailboxClosed if the mailbox is already closed.
func (mb *Mailbox) Put(m Message) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for !mb.closed && len(mb.items) >= mb.capacity {
		mb.notFull.Wait()
	}
	if mb.closed {
		return ErrMailboxClosed
	}
	mb.items = append(mb.items, m)
	mb.notEmpty.Signal()
	return nil
}

// Get blocks until a message is available or the mailbox closes. On a
// closed, empty mailbox it fails with ErrMailboxClosed.
func (mb *Mailbox) Get() (Message, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	for len(mb.items) == 0 && !mb.closed {
		mb.notEmpty.Wait()
	}
	if len(mb.items) == 0 {
		return Message{}, ErrMailboxClosed
	}
	return mb.pop(), nil
}

// GetUnlessEmpty is the non-blocking variant of Get. It returns false as
// its second value when the queue currently has nothing buffered,
// regardless of whether the mailbox is closed.
func (mb *Mailbox) GetUnlessEmpty() (Message, bool, error) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if len(mb.items) == 0 {
		if mb.closed {
			return Message{}, false, ErrMailboxClosed
		}
		return Message{}, false, nil
	}
	return mb.pop(), true, nil
}

func (mb *Mailbox) pop() Message {
	m := mb.items[0]
	mb.items = mb.items[1:]
	mb.notFull.Signal()
	return m
}

// Close transitions the mailbox to closed. If flush is true, items already
// buffered remain available to Get/GetUnlessEmpty until drained; if false,
// they are discarded immediately. Close is idempotent and returns whether
// this call performed the open->closed transition, so callers (e.g. the
// runtime killing a process) can tell whether they were the one to do it.
func (mb *Mailbox) Close(flush bool) bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.closed {
		return false
	}
	mb.closed = true
	mb.flushed = flush
	if !flush {
		mb.items = nil
	}
	mb.notEmpty.Broadcast()
	mb.notFull.Broadcast()
	return true
}

// IsClosed reports whether the mailbox has been closed.
func (mb *Mailbox) IsClosed() bool {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	return mb.closed
}
