// Package tcp implements the tcp://, tcp4://, and tcp6:// transports
// over net.Dial/net.Listen, framed with transport.WriteFrame/ReadFrame.
// Dials are bounded only by the caller's context (there is no dial
// timeout of its own); keepalive and no-delay options are applied to
// each connection after it is established.
package tcp

import (
	gocontext "context"
	"net"
	"strings"
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&tcpTransport{network: "tcp", scheme: "tcp"})
	transport.Register(&tcpTransport{network: "tcp4", scheme: "tcp4"})
	transport.Register(&tcpTransport{network: "tcp6", scheme: "tcp6"})
}

type tcpTransport struct {
	network string
	scheme  string
}

func (t *tcpTransport) Scheme() string { return t.scheme }

func (t *tcpTransport) stripScheme(addr string) (string, error) {
	prefix := t.scheme + "://"
	if !strings.HasPrefix(addr, prefix) {
		return "", spnet.ErrAddrInvalid
	}
	return strings.TrimPrefix(addr, prefix), nil
}

func (t *tcpTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	hostport, err := t.stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{network: t.network, addr: addr, hostport: hostport, opts: opts}, nil
}

func (t *tcpTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	hostport, err := t.stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &listener{network: t.network, addr: addr, hostport: hostport, opts: opts}, nil
}

type dialer struct {
	network  string
	addr     string
	hostport string
	opts     *spnet.Options
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, d.network, d.hostport)
	if err != nil {
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil, spnet.ErrTimeout
		}
		return nil, translateDialErr(err)
	}
	applyKeepAlive(c, d.opts)
	return newConn(c, d.opts), nil
}

type listener struct {
	network  string
	addr     string
	hostport string
	opts     *spnet.Options
	ln       net.Listener
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	ln, err := net.Listen(l.network, l.hostport)
	if err != nil {
		return translateDialErr(err)
	}
	l.ln = ln
	return nil
}

func (l *listener) Accept() (transport.Conn, error) {
	c, err := l.ln.Accept()
	if err != nil {
		return nil, translateDialErr(err)
	}
	applyKeepAlive(c, l.opts)
	return newConn(c, l.opts), nil
}

func (l *listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

func applyKeepAlive(c net.Conn, opts *spnet.Options) {
	tc, ok := c.(*net.TCPConn)
	if !ok || opts == nil {
		return
	}
	if opts.GetBool(spnet.OptionKeepAlive) {
		_ = tc.SetKeepAlive(true)
		if d := opts.GetDuration(spnet.OptionKeepAliveTime); d > 0 {
			_ = tc.SetKeepAlivePeriod(d)
		}
	}
	if opts.GetBool(spnet.OptionTCPNoDelay) {
		_ = tc.SetNoDelay(true)
	}
}

func translateDialErr(err error) error {
	if err == nil {
		return nil
	}
	msg := err.Error()
	switch {
	case strings.Contains(msg, "refused"):
		return spnet.ErrConnRefused
	case strings.Contains(msg, "address already in use"):
		return spnet.ErrAddrInUse
	case strings.Contains(msg, "reset by peer"):
		return spnet.ErrConnReset
	case strings.Contains(msg, "use of closed network connection"):
		return spnet.ErrClosed
	}
	return err
}

// conn adapts a net.Conn to transport.Conn using the shared framing.
type conn struct {
	c      net.Conn
	opts   *spnet.Options
	local  spnet.Addr
	remote spnet.Addr
}

func newConn(c net.Conn, opts *spnet.Options) *conn {
	return &conn{
		c:      c,
		opts:   opts,
		local:  tcpAddr(c.LocalAddr()),
		remote: tcpAddr(c.RemoteAddr()),
	}
}

func tcpAddr(a net.Addr) spnet.Addr {
	tcpa, ok := a.(*net.TCPAddr)
	if !ok {
		return spnet.Addr{}
	}
	if ip4 := tcpa.IP.To4(); ip4 != nil {
		return spnet.Addr{Family: spnet.AddrIn4, IP: ip4, Port: uint16(tcpa.Port)}
	}
	return spnet.Addr{Family: spnet.AddrIn6, IP: tcpa.IP.To16(), Port: uint16(tcpa.Port)}
}

func (c *conn) SendMsg(m *spnet.Message) error {
	_ = c.c.SetWriteDeadline(time.Time{})
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
			return nil, translateDialErr(err)
		}
		if m == nil {
			continue // oversized frame silently dropped, per spec.md section 7
		}
		return m, nil
	}
}

func (c *conn) LocalAddress() spnet.Addr  { return c.local }
func (c *conn) RemoteAddress() spnet.Addr { return c.remote }
func (c *conn) Close() error              { return c.c.Close() }
