//go:build !windows

// Package ipc implements the ipc:// transport over Unix domain
// sockets on POSIX platforms. The Windows build (ipc_windows.go) uses
// Microsoft/go-winio named pipes instead, since Windows has no
// AF_UNIX-equivalent with the same semantics until very recent
// releases; the ipc.go/ipc_windows.go split mirrors the same platform
// divide this module keeps elsewhere.
package ipc

import (
	gocontext "context"
	"net"
	"os"
	"strings"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&ipcTransport{})
}

const scheme = "ipc"

type ipcTransport struct{}

func (*ipcTransport) Scheme() string { return scheme }

func stripScheme(addr string) (string, error) {
	const prefix = scheme + "://"
	if !strings.HasPrefix(addr, prefix) {
		return "", spnet.ErrAddrInvalid
	}
	return strings.TrimPrefix(addr, prefix), nil
}

func (*ipcTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	path, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{addr: addr, path: path, opts: opts}, nil
}

func (*ipcTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	path, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &listener{addr: addr, path: path, opts: opts}, nil
}

type dialer struct {
	addr string
	path string
	opts *spnet.Options
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "unix", d.path)
	if err != nil {
		return nil, spnet.ErrConnRefused
	}
	return newConn(c, d.opts, d.path), nil
}

type listener struct {
	addr string
	path string
	opts *spnet.Options
	ln   *net.UnixListener
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	if _, err := os.Stat(l.path); err == nil {
		_ = os.Remove(l.path) // stale socket file from a previous run
	}
	addr, err := net.ResolveUnixAddr("unix", l.path)
	if err != nil {
		return spnet.ErrAddrInvalid
	}
	ln, err := net.ListenUnix("unix", addr)
	if err != nil {
		return spnet.ErrAddrInUse
	}
	l.ln = ln
	return nil
}

func (l *listener) Accept() (transport.Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, spnet.ErrClosed
	}
	return newConn(c, l.opts, l.path), nil
}

func (l *listener) Close() error {
	if l.ln == nil {
		return nil
	}
	err := l.ln.Close()
	_ = os.Remove(l.path)
	return err
}

type conn struct {
	c    net.Conn
	opts *spnet.Options
	path string
}

func newConn(c net.Conn, opts *spnet.Options, path string) *conn {
	return &conn{c: c, opts: opts, path: path}
}

func (c *conn) SendMsg(m *spnet.Message) error {
	return transport.WriteFrame(c.c, m)
}

func (c *conn) RecvMsg() (*spnet.Message, error) {
	maxSize := 0
	if c.opts != nil {
		maxSize = c.opts.GetInt(spnet.OptionRecvMaxSize)
	}
	for {
		m, err := transport.ReadFrame(c.c, maxSize)
		if err != nil {
			return nil, spnet.ErrConnReset
		}
		if m == nil {
			continue
		}
		return m, nil
	}
}

func (c *conn) LocalAddress() spnet.Addr  { return spnet.Addr{Family: spnet.AddrIPC, Path: c.path} }
func (c *conn) RemoteAddress() spnet.Addr { return spnet.Addr{Family: spnet.AddrIPC, Path: c.path} }
func (c *conn) Close() error              { return c.c.Close() }
