//go:build windows

// Package ipc implements the ipc:// transport on Windows using named
// pipes via Microsoft/go-winio, since Windows has no direct AF_UNIX
// equivalent with the same listen/accept semantics.
package ipc

import (
	gocontext "context"
	"net"
	"strings"

	"github.com/Microsoft/go-winio"

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

func pipeName(path string) string {
	if strings.HasPrefix(path, `\\.\pipe\`) {
		return path
	}
	return `\\.\pipe\` + strings.ReplaceAll(path, "/", "-")
}

func (*ipcTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	path, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{addr: addr, path: pipeName(path), opts: opts}, nil
}

func (*ipcTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	path, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &listener{addr: addr, path: pipeName(path), opts: opts}, nil
}

type dialer struct {
	addr string
	path string
	opts *spnet.Options
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	c, err := winio.DialPipeContext(ctx, d.path)
	if err != nil {
		return nil, spnet.ErrConnRefused
	}
	return newConn(c, d.opts, d.path), nil
}

type listener struct {
	addr string
	path string
	opts *spnet.Options
	ln   net.Listener
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	ln, err := winio.ListenPipe(l.path, nil)
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
	return l.ln.Close()
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
