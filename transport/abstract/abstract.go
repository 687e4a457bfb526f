//go:build linux

// Package abstract implements the abstract:// transport: Linux's
// abstract-namespace Unix domain sockets, whose path lives in a
// kernel-managed namespace rather than the filesystem and is freed
// automatically on close, with no unlink step needed. The name is
// percent-decoded per spec.md section 6.2 (the %00-prefixed encoding
// used on the wire and in Addr.String).
package abstract

import (
	gocontext "context"
	"net/url"
	"strings"

	"golang.org/x/sys/unix"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&abstractTransport{})
}

const scheme = "abstract"

type abstractTransport struct{}

func (*abstractTransport) Scheme() string { return scheme }

func stripScheme(addr string) (string, error) {
	const prefix = scheme + "://"
	if !strings.HasPrefix(addr, prefix) {
		return "", spnet.ErrAddrInvalid
	}
	name, err := url.QueryUnescape(strings.TrimPrefix(addr, prefix))
	if err != nil {
		return "", spnet.ErrAddrInvalid
	}
	return name, nil
}

// sockaddrFor builds the kernel representation of an abstract-namespace
// path: a leading NUL byte followed by the name, matching the
// struct sockaddr_un layout the kernel expects for abstract sockets.
func sockaddrFor(name string) *unix.SockaddrUnix {
	return &unix.SockaddrUnix{Name: "\x00" + name}
}

func (*abstractTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	name, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{addr: addr, name: name, opts: opts}, nil
}

func (*abstractTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	name, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &listener{addr: addr, name: name, opts: opts}, nil
}

type dialer struct {
	addr string
	name string
	opts *spnet.Options
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, spnet.ErrInternal
	}
	if err := unix.Connect(fd, sockaddrFor(d.name)); err != nil {
		_ = unix.Close(fd)
		return nil, spnet.ErrConnRefused
	}
	return newConn(fd, d.opts, d.name)
}

type listener struct {
	addr string
	name string
	opts *spnet.Options
	fd   int
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	fd, err := unix.Socket(unix.AF_UNIX, unix.SOCK_STREAM, 0)
	if err != nil {
		return spnet.ErrInternal
	}
	if err := unix.Bind(fd, sockaddrFor(l.name)); err != nil {
		_ = unix.Close(fd)
		return spnet.ErrAddrInUse
	}
	if err := unix.Listen(fd, 64); err != nil {
		_ = unix.Close(fd)
		return spnet.ErrInternal
	}
	l.fd = fd
	return nil
}

func (l *listener) Accept() (transport.Conn, error) {
	nfd, _, err := unix.Accept(l.fd)
	if err != nil {
		return nil, spnet.ErrClosed
	}
	return newConn(nfd, l.opts, l.name)
}

func (l *listener) Close() error {
	if l.fd == 0 {
		return nil
	}
	return unix.Close(l.fd)
}

// conn wraps a raw abstract-socket file descriptor as an os.File so it
// can be used with the shared frame reader/writer.
type conn struct {
	f    *osFile
	opts *spnet.Options
	name string
}

func newConn(fd int, opts *spnet.Options, name string) (*conn, error) {
	f, err := newOSFile(fd, name)
	if err != nil {
		return nil, spnet.ErrInternal
	}
	return &conn{f: f, opts: opts, name: name}, nil
}

func (c *conn) SendMsg(m *spnet.Message) error {
	return transport.WriteFrame(c.f, m)
}

func (c *conn) RecvMsg() (*spnet.Message, error) {
	maxSize := 0
	if c.opts != nil {
		maxSize = c.opts.GetInt(spnet.OptionRecvMaxSize)
	}
	for {
		m, err := transport.ReadFrame(c.f, maxSize)
		if err != nil {
			return nil, spnet.ErrConnReset
		}
		if m == nil {
			continue
		}
		return m, nil
	}
}

func (c *conn) LocalAddress() spnet.Addr {
	return spnet.Addr{Family: spnet.AddrAbstract, Name: c.name}
}
func (c *conn) RemoteAddress() spnet.Addr {
	return spnet.Addr{Family: spnet.AddrAbstract, Name: c.name}
}
func (c *conn) Close() error { return c.f.Close() }
