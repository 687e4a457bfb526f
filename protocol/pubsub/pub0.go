package pubsub

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// pub0 implements spnet.Protocol for the Pub0 protocol: send
// broadcasts the body to every live pipe; recv is not supported, per
// spec.md section 4.6.3.
type pub0 struct {
	mu    sync.Mutex
	pipes map[int32]*spnet.Pipe
}

// NewPubSocket returns a Socket speaking Pub0.
func NewPubSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newPub0(), log)
}

func newPub0() *pub0 {
	return &pub0{pipes: make(map[int32]*spnet.Pipe)}
}

func (p *pub0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoPub, Peer: spnet.ProtoSub,
		SelfName: "pub", PeerName: "sub",
	}
}

func (p *pub0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	p.pipes[pipe.ID()] = pipe
	p.mu.Unlock()
	// Pub0 never reads; drain and discard so the reader goroutine
	// doesn't block a peer that sends anyway.
	go func() {
		for range pipe.RecvChan() {
		}
	}()
	return nil
}

func (p *pub0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.pipes, pipe.ID())
}

// SendMsg broadcasts m to every live pipe. A clone is taken for each
// pipe before the caller's original is marked sent, since Clone
// refuses to run on an already-sent message; the clones themselves
// are never exposed to the caller, so each is free to be marked sent
// independently by Pipe.Send/TrySend.
func (p *pub0) SendMsg(m *spnet.Message, deadline time.Time) error {
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
	for i, pipe := range targets {
		_ = pipe.TrySend(clones[i]) // best-effort broadcast; a slow subscriber is skipped, not waited on
	}
	return nil
}

func (p *pub0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	return nil, spnet.ErrNotSupported
}

func (p *pub0) SetOption(name string, v interface{}) error { return spnet.ErrNotSupported }

func (p *pub0) GetOption(name string) (interface{}, error) { return nil, spnet.ErrNotSupported }

func (p *pub0) Close() {}
