package pubsub

import (
	"bytes"
	"sync"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// sub0 implements spnet.Protocol for the Sub0 protocol: an ordered set
// of subscription prefixes is matched against each incoming body on
// the subscriber side; send is not supported, per spec.md section
// 4.6.3.
type sub0 struct {
	mu     sync.Mutex
	prefix [][]byte
	recvCh chan *spnet.Message
}

// NewSubSocket returns a Socket speaking Sub0.
func NewSubSocket(log splog.T) *spnet.Socket {
	return spnet.NewSocket(newSub0(), log)
}

func newSub0() *sub0 {
	return &sub0{recvCh: make(chan *spnet.Message, 64)}
}

func (p *sub0) Info() spnet.ProtocolInfo {
	return spnet.ProtocolInfo{
		Self: spnet.ProtoSub, Peer: spnet.ProtoPub,
		SelfName: "sub", PeerName: "pub",
	}
}

func (p *sub0) AddPipe(pipe *spnet.Pipe) error {
	go p.fanIn(pipe)
	return nil
}

func (p *sub0) RemovePipe(pipe *spnet.Pipe) {}

func (p *sub0) fanIn(pipe *spnet.Pipe) {
	for m := range pipe.RecvChan() {
		if !p.matches(m.Body()) {
			continue
		}
		select {
		case p.recvCh <- m:
		default:
			// Subscriber isn't keeping up; drop rather than stall the
			// reader goroutine, per spec.md's "no capacity coordination
			// with the publisher."
		}
	}
}

func (p *sub0) matches(body []byte) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, pre := range p.prefix {
		if bytes.HasPrefix(body, pre) {
			return true
		}
	}
	return false
}

func (p *sub0) SendMsg(m *spnet.Message, deadline time.Time) error {
	return spnet.ErrNotSupported
}

func (p *sub0) RecvMsg(deadline time.Time) (*spnet.Message, error) {
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

func toPrefix(v interface{}) ([]byte, error) {
	switch t := v.(type) {
	case []byte:
		return t, nil
	case string:
		return []byte(t), nil
	default:
		return nil, spnet.ErrBadValue
	}
}

func (p *sub0) SetOption(name string, v interface{}) error {
	switch name {
	case spnet.OptionSubscribe:
		b, err := toPrefix(v)
		if err != nil {
			return err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		for _, pre := range p.prefix {
			if bytes.Equal(pre, b) {
				return nil
			}
		}
		p.prefix = append(p.prefix, b)
		return nil
	case spnet.OptionUnsubscribe:
		b, err := toPrefix(v)
		if err != nil {
			return err
		}
		p.mu.Lock()
		defer p.mu.Unlock()
		for i, pre := range p.prefix {
			if bytes.Equal(pre, b) {
				p.prefix = append(p.prefix[:i], p.prefix[i+1:]...)
				return nil
			}
		}
		return nil
	}
	return spnet.ErrNotSupported
}

func (p *sub0) GetOption(name string) (interface{}, error) {
	return nil, spnet.ErrNotSupported
}

func (p *sub0) Close() {}
