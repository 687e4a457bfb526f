package reqrep

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// rep0 implements spnet.Protocol for the Rep0 protocol: an incoming
// request's routing header (request id plus any forwarding ids pushed
// by intermediate devices) is stashed; the next send reattaches it
// to route the reply back along the same path, per spec.md section
// 4.6.2.
type rep0 struct {
	mu    sync.Mutex
	pipes map[int32]*spnet.Pipe
	inCh  chan *spnet.Message

	def *repCtx
}

// NewRepSocket returns a Socket speaking Rep0.
func NewRepSocket(log splog.T) *spnet.Socket {
	p := newRep0()
	return spnet.NewSocket(p, log)
}

func newRep0() *rep0 {
	p := &rep0{
		pipes: make(map[int32]*spnet.Pipe),
		inCh:  make(chan *spnet.Message, 64),
	}
	p.def = newRepCtx(p)
	return p
}

// OpenRepContext returns a new, independent reply context on a socket
// already speaking Rep0. Every context pulls requests from the same
// shared inbound queue, so opening several lets a server answer
// requests concurrently off one socket (spec.md section 4.6.2).
func OpenRepContext(s *spnet.Socket) (*RepContext, error) {
	p, ok := s.Protocol().(*rep0)
	if !ok {
		return nil, spnet.ErrBadType
	}
	return &RepContext{ctx: newRepCtx(p)}, nil
}

func (p *rep0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoRep, Peer: spnet.ProtoReq,
		SelfName: "rep", PeerName: "req",
	}
}

func (p *rep0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes[pipe.ID()] = pipe
	p.mu.Unlock()
	go p.fanIn(pipe)
	return nil
}

func (p *rep0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pipes, pipe.ID())
}

func (p *rep0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		select {
		case p.inCh <- m:
		default:
			// Queue full: drop rather than block the reader goroutine.
		}
	}
}

func (p *rep0) SendMsg(m *spnet.Message, deadline time.Time) error {
	return p.def.SendMsg(m, deadline)
}

func (p *rep0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	return p.def.RecvMsg(deadline)
}

func (p *rep0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *rep0) GetOption(name string) (interface{}, error) { return nil, spnet.ErrNotSupported }

func (p *rep0) Close() {}

// repCtx is one reply exchange slot: a pending request's stashed
// routing header and the pipe it arrived on.
type repCtx struct {
	proto *rep0

	mu      sync.Mutex
	pending bool
	header  []byte
	pipeID  int32
}

func newRepCtx(p *rep0) *repCtx { return &repCtx{proto: p} }

func (c *repCtx) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return nil, spnet.ErrProtoState
	}
	c.mu.Unlock()

	m, err := blockingRecv(c.proto.inCh, deadline)
	if err != nil {
		return nil, err
	}

	header := append([]byte(nil), m.Header()...)
	pipeID := m.Pipe()
	if err := m.TrimHeader(len(header)); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pending = true
	c.header = header
	c.pipeID = pipeID
	c.mu.Unlock()
	return m, nil
}

func (c *repCtx) SendMsg(m *spnet.Message, deadline time.Time) error {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return spnet.ErrProtoState
	}
	header := c.header
	pipeID := c.pipeID
	c.pending = false
	c.header = nil
	c.mu.Unlock()

	if err := m.PrependHeader(header); err != nil {
		return err
	}

	c.proto.mu.Lock()
	pipe := c.proto.pipes[pipeID]
	c.proto.mu.Unlock()
	if pipe == nil {
		_ = m.MarkSent()
		return spnet.ErrConnRefused
	}
	return blockingSend(pipe, m, deadline)
}

// RepContext is an independent reply exchange slot opened on a Rep0
// socket via OpenRepContext.
type RepContext struct {
	ctx *repCtx
}

func (c *RepContext) RecvMsg() (*spnet.Message, error) { return c.ctx.RecvMsg(time.Time{}) }

func (c *RepContext) Recv() ([]byte, error) {
	m, err := c.RecvMsg()
	if err != nil {
		return nil, err
	}
	return m.Body(), nil
}

func (c *RepContext) SendMsg(m *spnet.Message) error { return c.ctx.SendMsg(m, time.Time{}) }

func (c *RepContext) Send(b []byte) error {
	m := spnet.NewMessage(len(b))
	if err := m.AppendBody(b); err != nil {
		return err
	}
	return c.SendMsg(m)
}
