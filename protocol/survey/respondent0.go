package survey

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// respondent0 implements spnet.Protocol for the Respondent0 protocol:
// symmetric to Rep0 with survey-id routing instead of request-id
// routing — an incoming survey's header is stashed and reattached to
// the next send, per spec.md section 4.6.5.
type respondent0 struct {
	mu    sync.Mutex
	pipes map[int32]*spnet.Pipe
	inCh  chan *spnet.Message

	pending bool
	header  []byte
	pipeID  int32
}

// NewRespondentSocket returns a Socket speaking Respondent0.
func NewRespondentSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newRespondent0(), log)
}

func newRespondent0() *respondent0 {
	return &respondent0{
		pipes: make(map[int32]*spnet.Pipe),
		inCh:  make(chan *spnet.Message, 64),
	}
}

func (p *respondent0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoRespondent, Peer: spnet.ProtoSurveyor,
		SelfName: "respondent", PeerName: "surveyor",
	}
}

func (p *respondent0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes[pipe.ID()] = pipe
	p.mu.Unlock()
	go p.fanIn(pipe)
	return nil
}

func (p *respondent0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pipes, pipe.ID())
}

func (p *respondent0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		select {
		case p.inCh <- m:
		default:
		}
	}
}

func (p *respondent0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	p.mu.Lock()
	if p.pending {
		p.mu.Unlock()
		return nil, spnet.ErrProtoState
	}
	p.mu.Unlock()

	m, err := blockingRecv(p.inCh, deadline)
	if err != nil {
		return nil, err
	}

	header := append([]byte(nil), m.Header()...)
	pipeID := m.Pipe()
	if err := m.TrimHeader(len(header)); err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.pending = true
	p.header = header
	p.pipeID = pipeID
	p.mu.Unlock()
	return m, nil
}

func (p *respondent0) SendMsg(m *spnet.Message, deadline time.Time) error {
	p.mu.Lock()
	if !p.pending {
		p.mu.Unlock()
		return spnet.ErrProtoState
	}
	header := p.header
	pipeID := p.pipeID
	p.pending = false
	p.header = nil
	p.mu.Unlock()

	if err := m.PrependHeader(header); err != nil {
		return err
	}

	p.mu.Lock()
	pipe := p.pipes[pipeID]
	p.mu.Unlock()
	if pipe == nil {
		_ = m.MarkSent()
		return spnet.ErrConnRefused
	}
	return blockingSend(pipe, m, deadline)
}

func (p *respondent0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *respondent0) GetOption(name string) (interface{}, error) {
	return nil, spnet.ErrNotSupported
}

func (p *respondent0) Close() {}
