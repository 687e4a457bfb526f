// Package bus implements the Bus0 scalability protocol: every send
// transmits to each directly connected pipe and recv yields messages
// from any pipe, with no transitive forwarding, per spec.md section
// 4.6.6.
package bus

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

type bus0 struct {
	mu     sync.Mutex
	pipes  map[int32]*spnet.Pipe
	recvCh chan *spnet.Message
}

// NewSocket returns a Socket speaking Bus0.
func NewSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newBus0(), log)
}

func newBus0() *bus0 {
	return &bus0{
		pipes:  make(map[int32]*spnet.Pipe),
		recvCh: make(chan *spnet.Message, 64),
	}
}

func (p *bus0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoBus, Peer: spnet.ProtoBus,
		SelfName: "bus", PeerName: "bus",
	}
}

func (p *bus0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes[pipe.ID()] = pipe
	p.mu.Unlock()
	go p.fanIn(pipe)
	return nil
}

func (p *bus0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pipes, pipe.ID())
}

func (p *bus0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		select {
		case p.recvCh <- m:
		default:
		}
	}
}

// SendMsg transmits m to every directly connected pipe. No transitive
// forwarding happens: a peer receiving the message does not re-send
// it to its own peers automatically.
func (p *bus0) SendMsg(m *spnet.Message, deadline time.Time) error {
	p.mu.Lock()
	targets := make([]*spnet.Pipe, 0, len(p.pipes))
	for _, pipe := range p.pipes {
		targets = append(targets, pipe)
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		return m.MarkSent()
	}

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
	for i, pipe := range targets {
		_ = pipe.TrySend(clones[i])
	}
	return nil
}

func (p *bus0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
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

func (p *bus0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *bus0) GetOption(name string) (interface{}, error) { return nil, spnet.ErrNotSupported }

func (p *bus0) Close() {}
