package aio

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
)

// Kind distinguishes a send operation from a recv operation, since an
// Op uniformly represents both per spec.md section 4.1.
type Kind int

const (
	KindSend Kind = iota
	KindRecv
)

// Perform is supplied when an Op is started; it carries out the actual
// transport I/O and must poll cancel.Done() at any point it could
// otherwise block indefinitely.
type Perform func(cancel *CancelFlag) (*spnet.Message, error)

// Op is one in-flight send or recv operation: the target message (for
// send) or the message eventually delivered (for recv), an optional
// completion callback, a cancel flag, and a deadline.
type Op struct {
	Kind     Kind
	Deadline time.Time

	mu       sync.Mutex
	msg      *spnet.Message
	err      error
	cancel   *CancelFlag
	perform  Perform
	callback func(*Op)
	done     chan struct{}
}

// SetMsg swaps the message currently associated with the operation,
// e.g. for callers who want to replace a recv op's target buffer
// before it runs. Engine.Start seeds a send op's payload directly.
func (op *Op) SetMsg(m *spnet.Message) {
	op.mu.Lock()
	defer op.mu.Unlock()
	op.msg = m
}

// GetMsg returns the message currently associated with the operation:
// the outbound message for a send, or the received message once a
// recv has completed.
func (op *Op) GetMsg() *spnet.Message {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.msg
}

// Err returns the result of a completed or canceled op; nil until the
// op reaches a terminal state.
func (op *Op) Err() error {
	op.mu.Lock()
	defer op.mu.Unlock()
	return op.err
}

func (op *Op) setResult(m *spnet.Message, err error) {
	op.mu.Lock()
	if m != nil {
		op.msg = m
	}
	op.err = err
	op.mu.Unlock()
	close(op.done)
	if op.callback != nil {
		op.callback(op)
	}
}
