// Package tlstcp implements the tls+tcp:// transport: a TCP transport
// wrapped in a TLS handshake, configured via spnet.OptionTLSConfig (an
// opaque *tls.Config pointer option) plus the convenience string
// options for CA/cert/server-name when no pre-built config is
// supplied.
package tlstcp

import (
	gocontext "context"
	"crypto/tls"
	"crypto/x509"
	"net"
	"os"
	"strings"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&tlsTransport{})
}

const scheme = "tls+tcp"

type tlsTransport struct{}

func (*tlsTransport) Scheme() string { return scheme }

func stripScheme(addr string) (string, error) {
	const prefix = scheme + "://"
	if !strings.HasPrefix(addr, prefix) {
		return "", spnet.ErrAddrInvalid
	}
	return strings.TrimPrefix(addr, prefix), nil
}

func resolveConfig(opts *spnet.Options, isServer bool) (*tls.Config, error) {
	if opts != nil {
		if v, err := opts.Get(spnet.OptionTLSConfig); err == nil && v != nil {
			if cfg, ok := v.(*tls.Config); ok {
				return cfg.Clone(), nil
			}
			return nil, spnet.ErrBadValue
		}
	}

	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if opts == nil {
		return cfg, nil
	}

	if v, err := opts.Get(spnet.OptionTLSServerName); err == nil {
		if s, ok := v.(string); ok {
			cfg.ServerName = s
		}
	}
	if v, err := opts.Get(spnet.OptionTLSCAFile); err == nil {
		if path, ok := v.(string); ok && path != "" {
			pemBytes, rerr := os.ReadFile(path)
			if rerr != nil {
				return nil, spnet.ErrNoEntry
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pemBytes) {
				return nil, spnet.ErrBadValue
			}
			if isServer {
				cfg.ClientCAs = pool
			} else {
				cfg.RootCAs = pool
			}
		}
	}
	if v, err := opts.Get(spnet.OptionTLSCertKeyFile); err == nil {
		if path, ok := v.(string); ok && path != "" {
			cert, cerr := tls.LoadX509KeyPair(path, path)
			if cerr != nil {
				return nil, spnet.ErrNoEntry
			}
			cfg.Certificates = append(cfg.Certificates, cert)
		}
	}
	if v, err := opts.Get(spnet.OptionTLSAuthMode); err == nil {
		if mode, ok := v.(int); ok {
			cfg.ClientAuth = tls.ClientAuthType(mode)
		}
	}
	return cfg, nil
}

type dialer struct {
	addr     string
	hostport string
	opts     *spnet.Options
}

func (*tlsTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	hostport, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &dialer{addr: addr, hostport: hostport, opts: opts}, nil
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	cfg, err := resolveConfig(d.opts, false)
	if err != nil {
		return nil, err
	}
	var nd tls.Dialer
	nd.Config = cfg
	c, err := nd.DialContext(ctx, "tcp", d.hostport)
	if err != nil {
		return nil, spnet.ErrConnRefused
	}
	return newConn(c, d.opts), nil
}

type listener struct {
	addr     string
	hostport string
	opts     *spnet.Options
	ln       net.Listener
}

func (*tlsTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	hostport, err := stripScheme(addr)
	if err != nil {
		return nil, err
	}
	return &listener{addr: addr, hostport: hostport, opts: opts}, nil
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	cfg, err := resolveConfig(l.opts, true)
	if err != nil {
		return err
	}
	ln, err := tls.Listen("tcp", l.hostport, cfg)
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
	tc, ok := c.(*tls.Conn)
	if !ok {
		return nil, spnet.ErrInternal
	}
	return newConn(tc, l.opts), nil
}

func (l *listener) Close() error {
	if l.ln == nil {
		return nil
	}
	return l.ln.Close()
}

type conn struct {
	c    *tls.Conn
	opts *spnet.Options
}

func newConn(c *tls.Conn, opts *spnet.Options) *conn {
	return &conn{c: c, opts: opts}
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

func (c *conn) LocalAddress() spnet.Addr  { return spnet.Addr{} }
func (c *conn) RemoteAddress() spnet.Addr { return spnet.Addr{} }
func (c *conn) Close() error              { return c.c.Close() }
