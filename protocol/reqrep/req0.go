package reqrep

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

const defaultResendTime = time.Minute

// req0 implements spnet.Protocol for the Req0 protocol: a fresh
// request is assigned a 32-bit request id (high bit set, low bits a
// monotonic counter), placed on a fairly-picked pipe, and resent on a
// different pipe if no reply arrives within resend_time, per spec.md
// section 4.6.2.
type req0 struct {
	mu      sync.Mutex
	pipes   []*spnet.Pipe
	rrNext  int
	idSeq   uint32
	resend  time.Duration
	ctxByID map[uint32]*reqCtx

	def *reqCtx
}

// NewReqSocket returns a Socket speaking Req0.
func NewReqSocket(log splog.T) *spnet.Socket {
	p := newReq0()
	return spnet.NewSocket(p, log)
}

func newReq0() *req0 {
	p := &req0{
		resend:  defaultResendTime,
		ctxByID: make(map[uint32]*reqCtx),
	}
	p.def = newReqCtx(p)
	return p
}

// OpenReqContext returns a new, independent request/reply context on a
// socket already speaking Req0, per spec.md section 4.6.2 ("N
// contexts per socket").
func OpenReqContext(s *spnet.Socket) (*ReqContext, error) {
	p, ok := s.Protocol().(*req0)
	if !ok {
		return nil, spnet.ErrBadType
	}
	return &ReqContext{ctx: newReqCtx(p)}, nil
}

func (p *req0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoReq, Peer: spnet.ProtoRep,
		SelfName: "req", PeerName: "rep",
	}
}

func (p *req0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes = append(p.pipes, pipe)
	p.mu.Unlock()
	go p.fanIn(pipe)
	return nil
}

func (p *req0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pp := range p.pipes {
		if pp == pipe {
			p.pipes = append(p.pipes[:i], p.pipes[i+1:]...)
			return
		}
	}
}

// fanIn routes replies arriving on pipe back to the context awaiting
// the matching request id; unmatched replies (stale or duplicate,
// left over from a since-resent request) are dropped.
func (p *req0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		hdr := m.Header()
		if len(hdr) != 4 {
			continue
		}
		id := binary.BigEndian.Uint32(hdr)
		p.mu.Lock()
		ctx := p.ctxByID[id]
		delete(p.ctxByID, id)
		p.mu.Unlock()
		if ctx == nil {
			continue
		}
		_ = m.TrimHeader(4)
		select {
		case ctx.recvCh <- m:
		default:
		}
	}
}

func (p *req0) nextID() uint32 {
	n := atomic.AddUint32(&p.idSeq, 1)
	return n | 0x80000000
}

func (p *req0) resendTime() time.Duration {
	p.mu.Lock()
	d := p.resend
	p.mu.Unlock()
	return d
}

// dispatch picks the next pipe via round-robin fair scheduling, mints
// a fresh request id, and transmits body with that id as the header.
// prevID, if non-zero, is unregistered first so a late reply to the
// superseded attempt is dropped; only the newest attempt's id routes a
// reply to c.
func (p *req0) dispatch(c *reqCtx, prevID uint32, body []byte) (uint32, error) {
	p.mu.Lock()
	if prevID != 0 {
		delete(p.ctxByID, prevID)
	}
	if len(p.pipes) == 0 {
		p.mu.Unlock()
		return 0, spnet.ErrConnRefused
	}
	pipe := p.pipes[p.rrNext%len(p.pipes)]
	p.rrNext++
	id := p.nextID()
	p.ctxByID[id] = c
	p.mu.Unlock()

	wire := spnet.NewMessage(len(body))
	_ = wire.AppendBody(body)
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, id)
	_ = wire.PrependHeader(hdr)

	if err := pipe.TrySend(wire); err != nil {
		p.mu.Lock()
		delete(p.ctxByID, id)
		p.mu.Unlock()
		return 0, err
	}
	return id, nil
}

func (p *req0) SendMsg(m *spnet.Message, deadline time.Time) error {
	return p.def.SendMsg(m, deadline)
}

func (p *req0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	return p.def.RecvMsg(deadline)
}

func (p *req0) SetOption(name string, v interface{}) error {
	if name == spnet.OptionRetryTime {
		d, ok := v.(time.Duration)
		if !ok || d < 0 {
			return spnet.ErrBadValue
		}
		p.mu.Lock()
		p.resend = d
		p.mu.Unlock()
		return nil
	}
	return spnet.ErrNotSupported
}

func (p *req0) GetOption(name string) (interface{}, error) {
	if name == spnet.OptionRetryTime {
		return p.resendTime(), nil
	}
	return nil, spnet.ErrNotSupported
}

func (p *req0) Close() {}

// reqCtx is one request/reply exchange slot: its own request-id slot
// and in-flight bookkeeping, per spec.md section 4.6.2's contexts.
type reqCtx struct {
	proto *req0

	mu      sync.Mutex
	pending bool
	lastID  uint32
	body    []byte
	stopCh  chan struct{}

	recvCh chan *spnet.Message
}

func newReqCtx(p *req0) *reqCtx {
	return &reqCtx{proto: p, recvCh: make(chan *spnet.Message, 1)}
}

func (c *reqCtx) SendMsg(m *spnet.Message, deadline time.Time) error {
	body := append([]byte(nil), m.Body()...)
	if err := m.MarkSent(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.pending {
		c.mu.Unlock()
		return spnet.ErrProtoState
	}
	c.pending = true
	c.body = body
	c.mu.Unlock()

	id, err := c.proto.dispatch(c, 0, body)
	if err != nil {
		c.mu.Lock()
		c.pending = false
		c.mu.Unlock()
		return err
	}
	c.mu.Lock()
	c.lastID = id
	stop := make(chan struct{})
	c.stopCh = stop
	c.mu.Unlock()

	go c.resendLoop(stop)
	return nil
}

func (c *reqCtx) resendLoop(stop chan struct{}) {
	for {
		select {
		case <-stop:
			return
		case <-time.After(c.proto.resendTime()):
		}
		c.mu.Lock()
		if !c.pending {
			c.mu.Unlock()
			return
		}
		body := c.body
		prev := c.lastID
		c.mu.Unlock()

		id, err := c.proto.dispatch(c, prev, body)
		if err != nil {
			continue // no pipe available this round; try again next tick
		}
		c.mu.Lock()
		c.lastID = id
		c.mu.Unlock()
	}
}

func (c *reqCtx) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	c.mu.Lock()
	if !c.pending {
		c.mu.Unlock()
		return nil, spnet.ErrProtoState
	}
	c.mu.Unlock()

	m, err := blockingRecv(c.recvCh, deadline)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.pending = false
	if c.stopCh != nil {
		close(c.stopCh)
		c.stopCh = nil
	}
	c.mu.Unlock()
	return m, nil
}

// ReqContext is an independent request/reply exchange slot opened on
// a Req0 socket via OpenReqContext.
type ReqContext struct {
	ctx *reqCtx
}

func (c *ReqContext) SendMsg(m *spnet.Message) error { return c.ctx.SendMsg(m, time.Time{}) }

func (c *ReqContext) Send(b []byte) error {
	m := spnet.NewMessage(len(b))
	if err := m.AppendBody(b); err != nil {
		return err
	}
	return c.SendMsg(m)
}

func (c *ReqContext) RecvMsg() (*spnet.Message, error) { return c.ctx.RecvMsg(time.Time{}) }

func (c *ReqContext) Recv() ([]byte, error) {
	m, err := c.RecvMsg()
	if err != nil {
		return nil, err
	}
	return m.Body(), nil
}
