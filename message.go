package spnet

import (
	"sync"
	"sync/atomic"
)

// minHeaderCap is the minimum header capacity every Message must
// reserve, per spec.md section 3 ("capacity >= 32 bytes").
const minHeaderCap = 32

// msgPool recycles the backing arrays behind Message.body/header so
// high-throughput send/recv loops do not allocate a new buffer for
// every frame. Mirrors the buffer-reuse idiom in
// common/filewatcherbasedipc, which reuses its read buffer across
// watch events instead of reallocating.
var msgPool = sync.Pool{
	New: func() interface{} { return make([]byte, 0, 256) },
}

// Message is a reference-owned byte container with a mutable header
// prefix kept separate from the body, per spec.md section 3.
//
// A Message is NOT safe for concurrent use by multiple goroutines
// except where documented (Clone is safe to call concurrently with
// reads of the source message).
type Message struct {
	header []byte
	body   []byte
	pipeID int32 // 0 means "no pipe affinity"

	sent     atomic.Bool
	shared   *bool // non-nil on a clone backed by a read-only shared buffer
	sharedMu *sync.Mutex
}

// NewMessage allocates a Message with the given initial body capacity.
// The header always starts with at least minHeaderCap bytes of spare
// capacity, per spec.md section 3.
func NewMessage(capacity int) *Message {
	if capacity < 0 {
		capacity = 0
	}
	buf := msgPool.Get().([]byte)
	if cap(buf) < capacity {
		buf = make([]byte, 0, capacity)
	} else {
		buf = buf[:0]
	}
	m := &Message{
		header: make([]byte, 0, minHeaderCap),
		body:   buf,
	}
	return m
}

// checkNotSent returns ErrMsgAlreadySent when the message has already
// been handed to a send operation. Every header/body mutator and Clone
// call this first; the read accessors (Len, Body, Header, Pipe) and
// SetPipe do not.
func (m *Message) checkNotSent() error {
	if m.sent.Load() {
		return ErrMsgAlreadySent
	}
	return nil
}

// cowIfShared copies the body/header out of a shared (cloned) backing
// array before any mutation, implementing clone's copy-on-write
// contract from spec.md section 4.2.
func (m *Message) cowIfShared() {
	if m.shared == nil {
		return
	}
	m.sharedMu.Lock()
	defer m.sharedMu.Unlock()
	nb := make([]byte, len(m.body), len(m.body)+cap(m.body))
	copy(nb, m.body)
	nh := make([]byte, len(m.header), len(m.header)+cap(m.header))
	copy(nh, m.header)
	m.body = nb
	m.header = nh
	m.shared = nil
	m.sharedMu = nil
}

// AppendBody appends b to the message body.
func (m *Message) AppendBody(b []byte) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	m.cowIfShared()
	m.body = append(m.body, b...)
	return nil
}

// PrependBody prepends b to the message body.
func (m *Message) PrependBody(b []byte) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	m.cowIfShared()
	nb := make([]byte, 0, len(b)+len(m.body))
	nb = append(nb, b...)
	nb = append(nb, m.body...)
	m.body = nb
	return nil
}

// TrimBody removes n bytes from the front of the body. It is an error
// to trim more bytes than are present.
func (m *Message) TrimBody(n int) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	if n < 0 || n > len(m.body) {
		return ErrBadValue
	}
	m.cowIfShared()
	m.body = m.body[n:]
	return nil
}

// AppendHeader appends b to the message header.
func (m *Message) AppendHeader(b []byte) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	m.cowIfShared()
	m.header = append(m.header, b...)
	return nil
}

// PrependHeader prepends b to the message header, used by request/
// reply and survey/respondent protocols to push routing ids.
func (m *Message) PrependHeader(b []byte) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	m.cowIfShared()
	nh := make([]byte, 0, len(b)+len(m.header))
	nh = append(nh, b...)
	nh = append(nh, m.header...)
	m.header = nh
	return nil
}

// TrimHeader removes n bytes from the front of the header.
func (m *Message) TrimHeader(n int) error {
	if err := m.checkNotSent(); err != nil {
		return err
	}
	if n < 0 || n > len(m.header) {
		return ErrBadValue
	}
	m.cowIfShared()
	m.header = m.header[n:]
	return nil
}

// Len returns the combined header+body length.
func (m *Message) Len() int { return len(m.header) + len(m.body) }

// HeaderLen returns the header length.
func (m *Message) HeaderLen() int { return len(m.header) }

// Body returns the current body bytes. The returned slice aliases the
// message's internal storage and must not be retained past the next
// mutation.
func (m *Message) Body() []byte { return m.body }

// Header returns the current header bytes, aliasing internal storage.
func (m *Message) Header() []byte { return m.header }

// SetPipe attaches a pipe affinity to the message: on send, a
// polyamorous Pair1 socket routes the message to the given pipe id
// (the other protocols ignore the affinity); on recv, it records which
// pipe the message arrived on.
func (m *Message) SetPipe(id int32) { m.pipeID = id }

// Pipe returns the pipe affinity, or 0 if none is set.
func (m *Message) Pipe() int32 { return m.pipeID }

// Clone returns a shallow, read-only copy of m that is safe to read
// concurrently with the original. The first write to either copy
// triggers a private copy-on-write (spec.md section 4.2).
func (m *Message) Clone() (*Message, error) {
	if err := m.checkNotSent(); err != nil {
		return nil, err
	}
	if m.sharedMu == nil {
		m.sharedMu = &sync.Mutex{}
		shared := true
		m.shared = &shared
	}
	clone := &Message{
		header:   m.header,
		body:     m.body,
		pipeID:   m.pipeID,
		shared:   m.shared,
		sharedMu: m.sharedMu,
	}
	return clone, nil
}

// MarkSent transitions the message into the sent state. Called by
// Pipe.Send/TrySend once a message is handed to a single transport
// connection, and explicitly by broadcast protocols (Pub0, Bus0) on
// the original message once every per-pipe clone has been taken.
// Returns ErrMsgAlreadySent if called twice, implementing the
// "double-free avoidance" design note (spec.md section 9) as an
// ownership-by-move check rather than a language-level move.
func (m *Message) MarkSent() error {
	if !m.sent.CompareAndSwap(false, true) {
		return ErrMsgAlreadySent
	}
	return nil
}

// free returns a no-longer-referenced message's buffers to the pool.
// Only called by Pipe.writeLoop once a message has actually been
// written to its transport connection (never called on messages
// handed to the user, nor on a broadcast protocol's retained
// original).
func (m *Message) free() {
	if m.shared != nil {
		return
	}
	if cap(m.body) > 0 {
		msgPool.Put(m.body[:0]) //nolint:staticcheck // pool of []byte, not a pointer-like type
	}
}
