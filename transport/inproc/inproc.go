// Package inproc implements the in-process transport
// (inproc://name), registered for side effect, matching the
// inproc://... addresses other scalability-protocols test suites dial
// and listen on throughout; no byte framing is needed since peers
// share a process and hand Messages directly across a channel.
package inproc

import (
	gocontext "context"
	"strings"
	"sync"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&inprocTransport{})
}

type inprocTransport struct{}

func (*inprocTransport) Scheme() string { return "inproc" }

// registry maps an inproc name to the listener currently bound there.
var (
	mu       sync.Mutex
	registry = map[string]*listener{}
)

func (*inprocTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	name, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{name: name}, nil
}

func (*inprocTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	name, err := parseAddr(addr)
	if err != nil {
		return nil, err
	}
	return &listener{name: name, acceptCh: make(chan *pipePair, 64)}, nil
}

func parseAddr(addr string) (string, error) {
	const prefix = "inproc://"
	if !strings.HasPrefix(addr, prefix) {
		return "", spnet.ErrAddrInvalid
	}
	return strings.TrimPrefix(addr, prefix), nil
}

type listener struct {
	name     string
	acceptCh chan *pipePair
	closeMu  sync.Mutex
	closed   bool
}

func (l *listener) Listen() error {
	mu.Lock()
	defer mu.Unlock()
	if _, busy := registry[l.name]; busy {
		return spnet.ErrAddrInUse
	}
	registry[l.name] = l
	return nil
}

func (l *listener) Accept() (transport.Conn, error) {
	pp, ok := <-l.acceptCh
	if !ok {
		return nil, spnet.ErrClosed
	}
	return pp.serverSide, nil
}

func (l *listener) Address() string { return "inproc://" + l.name }

func (l *listener) Close() error {
	l.closeMu.Lock()
	defer l.closeMu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	mu.Lock()
	if registry[l.name] == l {
		delete(registry, l.name)
	}
	mu.Unlock()
	close(l.acceptCh)
	return nil
}

type dialer struct {
	name string
}

func (d *dialer) Address() string { return "inproc://" + d.name }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	mu.Lock()
	l, ok := registry[d.name]
	mu.Unlock()
	if !ok {
		return nil, spnet.ErrConnRefused
	}

	pp := newPipePair(d.name)
	select {
	case l.acceptCh <- pp:
	default:
		// Listener backlog full; still attempt a blocking send so we
		// behave like a real accept queue rather than failing dials
		// under load.
		select {
		case l.acceptCh <- pp:
		case <-ctx.Done():
			return nil, spnet.ErrTimeout
		}
	}
	return pp.clientSide, nil
}

// pipePair links two inproc endpoints with a pair of buffered
// message channels (16 messages each), one per direction.
type pipePair struct {
	serverSide *inprocConn
	clientSide *inprocConn
}

func newPipePair(name string) *pipePair {
	c2s := make(chan *spnet.Message, 16)
	s2c := make(chan *spnet.Message, 16)
	closer := &sharedCloser{ch: make(chan struct{})}

	addr := spnet.Addr{Family: spnet.AddrInproc, Name: name}

	server := &inprocConn{send: s2c, recv: c2s, local: addr, remote: addr, closer: closer}
	client := &inprocConn{send: c2s, recv: s2c, local: addr, remote: addr, closer: closer}
	server.peer = client
	client.peer = server
	return &pipePair{serverSide: server, clientSide: client}
}

// sharedCloser lets both ends of a pipePair observe and trigger
// teardown exactly once, regardless of which end calls Close first.
type sharedCloser struct {
	once sync.Once
	ch   chan struct{}
}

func (c *sharedCloser) close() { c.once.Do(func() { close(c.ch) }) }

type inprocConn struct {
	send   chan *spnet.Message
	recv   chan *spnet.Message
	peer   *inprocConn
	local  spnet.Addr
	remote spnet.Addr
	closer *sharedCloser
}

// SendMsg hands a freshly-allocated copy of m across to the peer
// rather than m itself. writeLoop calls m.free() immediately after
// SendMsg returns, recycling m's buffer back into the pool; since
// Send/TrySend have already marked m sent, handing the peer that same
// pointer would deliver a message that is both already-sent (so
// TrimHeader/AppendBody/etc. on it fail with ErrMsgAlreadySent) and,
// once free() runs, backed by a buffer some unrelated future message
// may already be reusing. Copying here keeps every transport's
// contract the same: recv produces a fresh Message owned by the
// caller, exactly as tcp/ipc/ws produce one from ReadFrame.
func (c *inprocConn) SendMsg(m *spnet.Message) error {
	cp := spnet.NewMessage(len(m.Body()))
	if len(m.Header()) > 0 {
		if err := cp.AppendHeader(m.Header()); err != nil {
			return err
		}
	}
	if len(m.Body()) > 0 {
		if err := cp.AppendBody(m.Body()); err != nil {
			return err
		}
	}
	select {
	case c.send <- cp:
		return nil
	case <-c.closer.ch:
		return spnet.ErrClosed
	}
}

func (c *inprocConn) RecvMsg() (*spnet.Message, error) {
	select {
	case m, ok := <-c.recv:
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	case <-c.closer.ch:
		return nil, spnet.ErrClosed
	}
}

func (c *inprocConn) LocalAddress() spnet.Addr  { return c.local }
func (c *inprocConn) RemoteAddress() spnet.Addr { return c.remote }

func (c *inprocConn) Close() error {
	c.closer.close()
	return nil
}
