package spnet

import (
	"strconv"
	"sync/atomic"

	"github.com/scalenet/spnet/splog"
	"github.com/scalenet/spnet/transport"
)

// pipeIDCounter hands out pipe ids that increase monotonically for
// the lifetime of the process and are never reused until the counter
// passes 0x7fffffff and wraps back to 1 (zero and negative ids are
// never issued). spec.md section 9
// flags the source behavior (a per-socket allocator that recycles
// freed ids) as a latent bug class — a message racing a pipe close
// could be misattributed to a since-reopened pipe with the same id —
// and directs the rewrite to eliminate it outright rather than port
// it, so this is a single global counter with no free-list.
var pipeIDCounter int32

func nextPipeID() int32 {
	for {
		id := atomic.AddInt32(&pipeIDCounter, 1)
		if id > 0 {
			return id
		}
		atomic.CompareAndSwapInt32(&pipeIDCounter, id, 0)
	}
}

// Pipe is one live connection bound to a socket: the transport
// connection, a bounded outbound queue drained by a writer goroutine,
// and an inbound channel fed by a reader goroutine, per spec.md
// section 4.5.
type Pipe struct {
	id     int32
	socket *Socket
	conn   transport.Conn
	opts   *Options
	dialer *Dialer // nil if this pipe came from a Listener

	sendQ chan *Message
	recvQ chan *Message

	closed   atomic.Bool
	closedCh chan struct{}

	log splog.T
}

func newPipe(conn transport.Conn, s *Socket, d *Dialer, sendBuf, recvBuf int) *Pipe {
	if sendBuf <= 0 {
		sendBuf = 16
	}
	if recvBuf <= 0 {
		recvBuf = 16
	}
	id := nextPipeID()
	p := &Pipe{
		id:       id,
		socket:   s,
		conn:     conn,
		opts:     s.opts,
		dialer:   d,
		sendQ:    make(chan *Message, sendBuf),
		recvQ:    make(chan *Message, recvBuf),
		closedCh: make(chan struct{}),
		log:      s.log.WithContext("pipe", strconv.Itoa(int(id))),
	}
	return p
}

// ID returns the pipe's process-unique, monotonically assigned id.
func (p *Pipe) ID() int32 { return p.id }

// LocalAddress and RemoteAddress report the transport-level addresses
// of this pipe's connection.
func (p *Pipe) LocalAddress() Addr  { return p.conn.LocalAddress() }
func (p *Pipe) RemoteAddress() Addr { return p.conn.RemoteAddress() }

// RecvChan is read by the owning protocol to consume inbound messages
// arriving on this pipe; each message's pipe affinity is already set.
func (p *Pipe) RecvChan() <-chan *Message { return p.recvQ }

// Send enqueues m on this pipe's outbound queue, blocking if the queue
// is full. Marks m sent, transferring ownership to the pipe. Returns
// ErrClosed if the pipe has been closed.
func (p *Pipe) Send(m *Message) error {
	if err := m.MarkSent(); err != nil {
		return err
	}
	select {
	case p.sendQ <- m:
		return nil
	case <-p.closedCh:
		return ErrClosed
	}
}

// TrySend enqueues m without blocking; returns ErrTryAgain if the
// queue is full. Marks m sent, transferring ownership to the pipe.
func (p *Pipe) TrySend(m *Message) error {
	if err := m.MarkSent(); err != nil {
		return err
	}
	select {
	case p.sendQ <- m:
		return nil
	case <-p.closedCh:
		return ErrClosed
	default:
		return ErrTryAgain
	}
}

// run starts this pipe's reader and writer goroutines. It must be
// called exactly once, after the socket's post-add callbacks have run.
func (p *Pipe) run() {
	go p.readLoop()
	go p.writeLoop()
}

func (p *Pipe) readLoop() {
	defer p.socket.removePipe(p)
	defer close(p.recvQ)
	for {
		m, err := p.conn.RecvMsg()
		if err != nil {
			return
		}
		m.SetPipe(p.id)
		select {
		case p.recvQ <- m:
		case <-p.closedCh:
			return
		}
	}
}

func (p *Pipe) writeLoop() {
	for {
		select {
		case m, ok := <-p.sendQ:
			if !ok {
				return
			}
			if err := p.conn.SendMsg(m); err != nil {
				p.Close()
				return
			}
			m.free()
		case <-p.closedCh:
			return
		}
	}
}

// Close tears down the pipe's connection and wakes its goroutines.
// Idempotent.
func (p *Pipe) Close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	close(p.closedCh)
	return p.conn.Close()
}
