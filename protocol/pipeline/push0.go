package pipeline

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// push0 implements spnet.Protocol for the Push0 protocol: send
// selects one pipe via round-robin fair scheduling and blocks (or
// times out) waiting for that pipe to have capacity; recv is not
// supported, per spec.md section 4.6.4.
type push0 struct {
	mu     sync.Mutex
	pipes  []*spnet.Pipe
	rrNext int
}

// NewPushSocket returns a Socket speaking Push0.
func NewPushSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newPush0(), log)
}

func newPush0() *push0 { return &push0{} }

func (p *push0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoPush, Peer: spnet.ProtoPull,
		SelfName: "push", PeerName: "pull",
	}
}

func (p *push0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes = append(p.pipes, pipe)
	p.mu.Unlock()
	go func() {
		for range pipe.RecvChan() {
		}
	}()
	return nil
}

func (p *push0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, pp := range p.pipes {
		if pp == pipe {
			p.pipes = append(p.pipes[:i], p.pipes[i+1:]...)
			return
		}
	}
}

func (p *push0) SendMsg(m *spnet.Message, deadline time.Time) error {
	p.mu.Lock()
	if len(p.pipes) == 0 {
		p.mu.Unlock()
		return spnet.ErrConnRefused
	}
	pipe := p.pipes[p.rrNext%len(p.pipes)]
	p.rrNext++
	p.mu.Unlock()
	return blockingSend(pipe, m, deadline)
}

func (p *push0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	return nil, spnet.ErrNotSupported
}

func (p *push0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *push0) GetOption(name string) (interface{}, error) { return nil, spnet.ErrNotSupported }

func (p *push0) Close() {}
