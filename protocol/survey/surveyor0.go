package survey

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

const defaultSurveyTime = 1 * time.Second

// surveyor0 implements spnet.Protocol for the Surveyor0 protocol: send
// broadcasts a fresh survey id and opens a survey_time collection
// window; recv during the window returns responses as they arrive and
// returns Timeout once the window has expired. A new send discards any
// responses still queued for the previous survey, per spec.md section
// 4.6.5.
type surveyor0 struct {
	mu         sync.Mutex
	pipes      map[int32]*spnet.Pipe
	idSeq      uint32
	surveyTime time.Duration
	surveyID   uint32
	active     bool
	expireAt   time.Time
	recvCh     chan *spnet.Message
}

// NewSurveyorSocket returns a Socket speaking Surveyor0.
func NewSurveyorSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newSurveyor0(), log)
}

func newSurveyor0() *surveyor0 {
	return &surveyor0{
		pipes:      make(map[int32]*spnet.Pipe),
		surveyTime: defaultSurveyTime,
	}
}

func (p *surveyor0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoSurveyor, Peer: spnet.ProtoRespondent,
		SelfName: "surveyor", PeerName: "respondent",
	}
}

func (p *surveyor0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes[pipe.ID()] = pipe
	p.mu.Unlock()
	go p.fanIn(pipe)
	return nil
}

func (p *surveyor0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pipes, pipe.ID())
}

func (p *surveyor0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		hdr := m.Header()
		if len(hdr) != 4 {
			continue
		}
		id := binary.BigEndian.Uint32(hdr)

		p.mu.Lock()
		match := p.active && id == p.surveyID
		ch := p.recvCh
		p.mu.Unlock()
		if !match {
			continue // response to an expired or superseded survey
		}
		_ = m.TrimHeader(4)
		select {
		case ch <- m:
		default:
		}
	}
}

// SendMsg opens a new survey: it mints a fresh survey id, replaces the
// response channel (so any response still buffered for the previous
// survey is discarded rather than delivered), and broadcasts the body
// with the survey id as its header.
func (p *surveyor0) SendMsg(m *spnet.Message, deadline time.Time) error {
	p.mu.Lock()
	targets := make([]*spnet.Pipe, 0, len(p.pipes))
	for _, pipe := range p.pipes {
		targets = append(targets, pipe)
	}
	p.mu.Unlock()

	clones := make([]*spnet.Message, len(targets))
	for i := range targets {
		c, err := m.Clone()
		if err != nil {
			return err
		}
		clones[i] = c
	}
	if err := m.MarkSent(); err != nil {
		return err
	}

	id := atomic.AddUint32(&p.idSeq, 1)
	hdr := make([]byte, 4)
	binary.BigEndian.PutUint32(hdr, id)

	p.mu.Lock()
	p.surveyID = id
	p.active = true
	p.expireAt = time.Now().Add(p.surveyTime)
	p.recvCh = make(chan *spnet.Message, 64)
	p.mu.Unlock()

	for i, pipe := range targets {
		c := clones[i]
		_ = c.PrependHeader(hdr)
		_ = pipe.TrySend(c)
	}
	return nil
}

func (p *surveyor0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	p.mu.Lock()
	if !p.active {
		p.mu.Unlock()
		return nil, spnet.ErrProtoState
	}
	ch := p.recvCh
	expire := p.expireAt
	p.mu.Unlock()

	if !time.Now().Before(expire) {
		return nil, spnet.ErrTimeout
	}
	eff := expire
	if !deadline.IsZero() && deadline.Before(eff) {
		eff = deadline
	}
	return blockingRecv(ch, eff)
}

func (p *surveyor0) SetOption(name string, v interface{}) error {
	if name == spnet.OptionSurveyTime {
		d, ok := v.(time.Duration)
		if !ok || d <= 0 {
			return spnet.ErrBadValue
		}
		p.mu.Lock()
		p.surveyTime = d
		p.mu.Unlock()
		return nil
	}
	return spnet.ErrNotSupported
}

func (p *surveyor0) GetOption(name string) (interface{}, error) {
	if name == spnet.OptionSurveyTime {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.surveyTime, nil
	}
	return nil, spnet.ErrNotSupported
}

func (p *surveyor0) Close() {}
