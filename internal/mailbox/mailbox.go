// Package mailbox implements the per-agent inbound message queue.
//
// Enqueue, TryReceive and Len are O(1). The queue is a doubly linked list
// with head and tail sentinels, so dropping the oldest entry under the
// drop-oldest policy does not shift the remaining messages.
package mailbox

import (
	"fmt"
	"sync"
	"sync/atomic"

	perrors "github.com/p-blackswan/agentropic/internal/errors"
	"github.com/p-blackswan/agentropic/internal/message"
)

// OverflowPolicy selects what a bounded mailbox does when it is full.
type OverflowPolicy int

const (
	// RejectNew refuses the incoming message with ErrMailboxOverflow.
	RejectNew OverflowPolicy = iota
	// DropOldest evicts the oldest queued message to make room.
	DropOldest
)

func (p OverflowPolicy) String() string {
	switch p {
	case RejectNew:
		return "reject-new"
	case DropOldest:
		return "drop-oldest"
	default:
		return fmt.Sprintf("overflow-policy(%d)", int(p))
	}
}

// ParseOverflowPolicy parses "reject-new" or "drop-oldest". Empty selects
// RejectNew.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	switch s {
	case "", "reject-new":
		return RejectNew, nil
	case "drop-oldest":
		return DropOldest, nil
	default:
		return RejectNew, fmt.Errorf("mailbox: unknown overflow policy %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p OverflowPolicy) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OverflowPolicy) UnmarshalText(text []byte) error {
	parsed, err := ParseOverflowPolicy(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Unbounded is the capacity value for a mailbox without a limit.
const Unbounded = 0

type node struct {
	msg  message.Message
	prev *node
	next *node
}

// Mailbox is a thread-safe FIFO of messages.
type Mailbox struct {
	mu       sync.Mutex
	capacity int
	policy   OverflowPolicy
	size     int
	closed   bool
	dropped  uint64
	head     *node // sentinel before the oldest message
	tail     *node // sentinel after the newest message

	attached atomic.Bool
}

// New creates a mailbox. capacity <= 0 means unbounded.
func New(capacity int, policy OverflowPolicy) *Mailbox {
	if capacity < 0 {
		capacity = Unbounded
	}
	head := &node{}
	tail := &node{}
	head.next = tail
	tail.prev = head
	return &Mailbox{
		capacity: capacity,
		policy:   policy,
		head:     head,
		tail:     tail,
	}
}

// Capacity returns the configured capacity; 0 means unbounded.
func (m *Mailbox) Capacity() int { return m.capacity }

// Policy returns the configured overflow policy.
func (m *Mailbox) Policy() OverflowPolicy { return m.policy }

// Enqueue appends msg. On a full mailbox it applies the overflow policy:
// RejectNew returns ErrMailboxOverflow and leaves the queue untouched,
// DropOldest evicts the head and returns the evicted message with true.
func (m *Mailbox) Enqueue(msg message.Message) (message.Message, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return message.Message{}, false, perrors.ErrMailboxClosed
	}

	var (
		evicted message.Message
		didDrop bool
	)
	if m.capacity != Unbounded && m.size >= m.capacity {
		if m.policy == RejectNew {
			return message.Message{}, false, perrors.ErrMailboxOverflow
		}
		victim := m.head.next
		m.remove(victim)
		m.dropped++
		evicted, didDrop = victim.msg, true
	}

	m.pushBack(&node{msg: msg})
	return evicted, didDrop, nil
}

// TryReceive dequeues the oldest message without blocking.
func (m *Mailbox) TryReceive() (message.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.size == 0 {
		return message.Message{}, false
	}
	n := m.head.next
	m.remove(n)
	return n.msg, true
}

// Drain dequeues every queued message, oldest first.
func (m *Mailbox) Drain() []message.Message {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]message.Message, 0, m.size)
	for cur := m.head.next; cur != m.tail; cur = cur.next {
		out = append(out, cur.msg)
	}
	m.head.next = m.tail
	m.tail.prev = m.head
	m.size = 0
	return out
}

// Peek returns the oldest message without removing it.
func (m *Mailbox) Peek() (message.Message, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.size == 0 {
		return message.Message{}, false
	}
	return m.head.next.msg, true
}

// Len returns the number of queued messages.
func (m *Mailbox) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.size
}

// Dropped returns how many messages the drop-oldest policy has evicted.
func (m *Mailbox) Dropped() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dropped
}

// Close makes further Enqueue calls fail with ErrMailboxClosed. Messages
// already queued stay readable.
func (m *Mailbox) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
}

// Attach claims the mailbox for a single owner. Every later call fails
// with ErrMailboxInUse until Release.
func (m *Mailbox) Attach() error {
	if !m.attached.CompareAndSwap(false, true) {
		return perrors.ErrMailboxInUse
	}
	return nil
}

// Release undoes a successful Attach.
func (m *Mailbox) Release() { m.attached.Store(false) }

// Attached reports whether the mailbox has an owner.
func (m *Mailbox) Attached() bool { return m.attached.Load() }

// Closed reports whether Close has been called.
func (m *Mailbox) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// --- internal list operations (caller must hold lock) ---

func (m *Mailbox) remove(n *node) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
	m.size--
}

func (m *Mailbox) pushBack(n *node) {
	n.prev = m.tail.prev
	n.next = m.tail
	m.tail.prev.next = n
	m.tail.prev = n
	m.size++
}
