package pair

import (
	"encoding/binary"
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// pair1 implements spnet.Protocol for the Pair1 protocol: the same
// single-peer behavior as Pair0 by default, but every message carries
// a 4-byte hop-count header (value 1); messages with any other header
// value are dropped on receive, per spec.md section 4.6.1. Setting
// pair1:polyamorous before any pipe attaches switches to accepting N
// peers, with send requiring explicit pipe affinity.
type pair1 struct {
	mu          sync.Mutex
	polyamorous bool
	peer        *spnet.Pipe
	peers       map[int32]*spnet.Pipe

	// attached is closed and replaced every time the single (non-
	// polyamorous) peer attaches, so SendMsg can block on it instead
	// of failing when called before any connection has been made.
	attached chan struct{}

	recvCh chan *spnet.Message
}

// NewPolySocket returns a Socket speaking Pair1 in polyamorous mode.
func NewPolySocket(log splog.T) *spnet.Socket {
	p := newPair1()
	p.polyamorous = true
	return spnet.NewSocket(p, log)
}

// NewPair1Socket returns a Socket speaking Pair1 (non-polyamorous).
func NewPair1Socket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newPair1(), log)
}

func newPair1() *pair1 {
	return &pair1{
		peers:    make(map[int32]*spnet.Pipe),
		attached: make(chan struct{}),
		recvCh:   make(chan *spnet.Message, 64),
	}
}

func (p *pair1) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoPair, Peer: spnet.ProtoPair,
		SelfName: "pair1", PeerName: "pair1",
	}
}

func (p *pair1) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	poly := p.polyamorous
	var evicted *spnet.Pipe
	var ch chan struct{}
	if poly {
		p.peers[pipe.ID()] = pipe
	} else {
		evicted = p.peer
		p.peer = pipe
		ch = p.attached
		p.attached = make(chan struct{})
	}
	p.mu.Unlock()

	if ch != nil {
		close(ch)
	}
	if evicted != nil {
		_ = evicted.Close()
	}
	go p.fanIn(pipe)
	return nil
}

func (p *pair1) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer == pipe {
		p.peer = nil
	}
	delete(p.peers, pipe.ID())
}

// fanIn drains one pipe's inbound channel, stripping and validating
// the one-hop header, and forwards the surviving bodies into the
// shared recv channel tagged with their originating pipe.
func (p *pair1) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		hdr := m.Header()
		if len(hdr) != 4 || binary.BigEndian.Uint32(hdr) != 1 {
			continue // wrong hop count, drop per spec.md section 4.6.1
		}
		if err := m.TrimHeader(4); err != nil {
			continue // couldn't strip the hop header, drop rather than
			// deliver it to the caller with a stale prefix attached
		}
		select {
		case p.recvCh <- m:
		default:
			// Receiver isn't keeping up; drop rather than block the
			// reader goroutine indefinitely.
		}
	}
}

func (p *pair1) SendMsg(m *spnet.Message, deadline time.Time) error {
	if err := m.PrependHeader(hopCountOne[:]); err != nil {
		return err
	}

	p.mu.Lock()
	poly := p.polyamorous
	p.mu.Unlock()

	if !poly {
		for {
			p.mu.Lock()
			single := p.peer
			ch := p.attached
			p.mu.Unlock()
			if single != nil {
				return sendWithDeadline(single, m, deadline)
			}

			if deadline.IsZero() {
				<-ch
				continue
			}
			d := time.Until(deadline)
			if d <= 0 {
				return spnet.ErrTryAgain
			}
			timer := time.NewTimer(d)
			select {
			case <-ch:
				timer.Stop()
			case <-timer.C:
				return spnet.ErrTimeout
			}
		}
	}

	pipeID := m.Pipe()
	if pipeID == 0 {
		// No affinity set: polyamorous sends never broadcast, per
		// spec.md section 4.6.1 — the caller must address a peer.
		return spnet.ErrProtoError
	}
	p.mu.Lock()
	target := p.peers[pipeID]
	p.mu.Unlock()
	if target == nil {
		return spnet.ErrConnRefused
	}
	return sendWithDeadline(target, m, deadline)
}

var hopCountOne = [4]byte{0, 0, 0, 1}

func (p *pair1) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	if deadline.IsZero() {
		m, ok := <-p.recvCh
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		select {
		case m, ok := <-p.recvCh:
			if !ok {
				return nil, spnet.ErrClosed
			}
			return m, nil
		default:
			return nil, spnet.ErrTryAgain
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case m, ok := <-p.recvCh:
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	case <-timer.C:
		return nil, spnet.ErrTimeout
	}
}

func (p *pair1) SetOption(name string, v interface{}) error {
	if name == spnet.OptionPolyamorous {
		b, ok := v.(bool)
		if !ok {
			return spnet.ErrBadValue
		}
		p.mu.Lock()
		p.polyamorous = b
		p.mu.Unlock()
		return nil
	}
	return spnet.ErrNotSupported
}

func (p *pair1) GetOption(name string) (interface{}, error) {
	if name == spnet.OptionPolyamorous {
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.polyamorous, nil
	}
	return nil, spnet.ErrNotSupported
}

func (p *pair1) Close() {}
