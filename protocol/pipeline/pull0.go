package pipeline

import (
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// pull0 implements spnet.Protocol for the Pull0 protocol: fair-
// receives from every attached pipe into one shared queue; send is
// not supported, per spec.md section 4.6.4.
type pull0 struct {
	recvCh chan *spnet.Message
}

// NewPullSocket returns a Socket speaking Pull0.
func NewPullSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newPull0(), log)
}

func newPull0() *pull0 { return &pull0{recvCh: make(chan *spnet.Message, 64)} }

func (p *pull0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoPull, Peer: spnet.ProtoPush,
		SelfName: "pull", PeerName: "push",
	}
}

func (p *pull0) AddPipe(pipe *spnet.Pipe) error {
	go func() {
		for m := range pipe.RecvChan() {
			select {
			case p.recvCh <- m:
			default:
			}
		}
	}()
	return nil
}

func (p *pull0) RemovePipe(pipe *spnet.Pipe) {}

func (p *pull0) SendMsg(m *spnet.Message, deadline time.Time) error {
	return spnet.ErrNotSupported
}

func (p *pull0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	return blockingRecv(p.recvCh, deadline)
}

func (p *pull0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *pull0) GetOption(name string) (interface{}, error) { return nil, spnet.ErrNotSupported }

func (p *pull0) Close() {}
