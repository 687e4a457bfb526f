// Package transport defines the pluggable byte-stream transport
// abstraction consumed by the protocol core (spec.md section 4.3 /
// 6.1). Concrete transports (tcp, tlstcp, ipc, inproc, abstract, ws)
// register themselves by scheme via Register, the standard anonymous
// import-for-side-effect pattern scalability-protocols implementations
// use for their transports.
package transport

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/scalenet/spnet"
)

// Conn is one live, bidirectional, ordered, message-framed connection,
// as produced by a Dialer.Dial or a Listener.Accept. It corresponds to
// spec.md section 4.3's pipe_conn.
type Conn interface {
	io.Closer
	SendMsg(m *spnet.Message) error
	RecvMsg() (*spnet.Message, error)
	LocalAddress() spnet.Addr
	RemoteAddress() spnet.Addr
}

// Dialer actively initiates one connection per Dial call.
type Dialer interface {
	Dial(ctx context.Context) (Conn, error)
	Address() string
	Close() error
}

// Listener passively accepts connections.
type Listener interface {
	Listen() error
	Accept() (Conn, error)
	Address() string
	Close() error
}

// Transport is the factory a scheme registers: it builds Dialers and
// Listeners bound to a specific address, reading transport-level
// options (TLS config, keepalive, recv_max_size) out of opts.
type Transport interface {
	Scheme() string
	NewDialer(addr string, opts *spnet.Options) (Dialer, error)
	NewListener(addr string, opts *spnet.Options) (Listener, error)
}

var (
	mu       sync.Mutex
	registry = map[string]Transport{}
)

// Register adds t to the scheme registry. Transport packages call
// this from an init() func; importing a transport package purely for
// its side effect is the intended usage.
func Register(t Transport) {
	mu.Lock()
	defer mu.Unlock()
	registry[t.Scheme()] = t
}

// For looks up the registered Transport for scheme.
func For(scheme string) (Transport, error) {
	mu.Lock()
	defer mu.Unlock()
	t, ok := registry[scheme]
	if !ok {
		return nil, fmt.Errorf("%w: %s", spnet.ErrBadTran, scheme)
	}
	return t, nil
}
