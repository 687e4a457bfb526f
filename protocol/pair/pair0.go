// Package pair implements the Pair0 and Pair1 scalability protocols:
// a single logical peer connection with the body transmitted verbatim
// (v0) or prefixed with a one-hop header (v1), plus Pair1's
// polyamorous mode permitting many peers with explicit pipe affinity.
package pair

import (
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// pair0 implements spnet.Protocol for the Pair0 protocol: exactly one
// live peer at a time. A second incoming connection preempts the
// first, per spec.md section 4.6.1.
type pair0 struct {
	mu   sync.Mutex
	peer *spnet.Pipe

	// attached is closed and replaced every time a peer attaches, so
	// RecvMsg can block on it instead of failing when called before
	// any connection has been made.
	attached chan struct{}
}

// NewSocket returns a Socket speaking Pair0. A nil log falls back to
// the default console logger.
func NewSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newPair0(), log)
}

func newPair0() *pair0 {
	return &pair0{attached: make(chan struct{})}
}

func (p *pair0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoPair, Peer: spnet.ProtoPair,
		SelfName: "pair", PeerName: "pair",
	}
}

func (p *pair0) AddPipe(pipe *spnet.Pipe) error {
	p.mu.Lock()
	old := p.peer
	p.peer = pipe
	ch := p.attached
	p.attached = make(chan struct{})
	p.mu.Unlock()
	close(ch)
	if old != nil {
		_ = old.Close() // new connection preempts the old, per spec.md section 4.6.1
	}
	return nil
}

func (p *pair0) RemovePipe(pipe *spnet.Pipe) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.peer == pipe {
		p.peer = nil
	}
}

func (p *pair0) SendMsg(m *spnet.Message, deadline time.Time) error {
	p.mu.Lock()
	peer := p.peer
	p.mu.Unlock()
	if peer == nil {
		return spnet.ErrConnRefused
	}
	return sendWithDeadline(peer, m, deadline)
}

func (p *pair0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
	for {
		p.mu.Lock()
		peer := p.peer
		ch := p.attached
		p.mu.Unlock()
		if peer != nil {
			return recvWithDeadline(peer, deadline)
		}

		if deadline.IsZero() {
			<-ch
			continue
		}
		d := time.Until(deadline)
		if d <= 0 {
			return nil, spnet.ErrTryAgain
		}
		timer := time.NewTimer(d)
		select {
		case <-ch:
			timer.Stop()
		case <-timer.C:
			return nil, spnet.ErrTimeout
		}
	}
}

func (p *pair0) SetOption(name string, v interface{}) error {
	return spnet.ErrNotSupported
}

func (p *pair0) GetOption(name string) (interface{}, error) {
	return nil, spnet.ErrNotSupported
}

func (p *pair0) Close() {}

// sendWithDeadline and recvWithDeadline implement the blocking-with-
// timeout contract common to every protocol's send/recv rule, shared
// across this package's pair0/pair1 implementations.
func sendWithDeadline(pipe *spnet.Pipe, m *spnet.Message, deadline time.Time) error {
	if deadline.IsZero() {
		return pipe.Send(m)
	}
	d := time.Until(deadline)
	if d <= 0 {
		return pipe.TrySend(m)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	errCh := make(chan error, 1)
	go func() { errCh <- pipe.Send(m) }()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return spnet.ErrTimeout
	}
}

func recvWithDeadline(pipe *spnet.Pipe, deadline time.Time) (*spnet.Message, error) {
	if deadline.IsZero() {
		m, ok := <-pipe.RecvChan()
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		select {
		case m, ok := <-pipe.RecvChan():
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
	case m, ok := <-pipe.RecvChan():
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	case <-timer.C:
		return nil, spnet.ErrTimeout
	}
}
