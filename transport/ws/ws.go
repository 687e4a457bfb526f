// Package ws implements the ws:// and wss:// transports over
// gorilla/websocket, an enrichment beyond the core scheme list: the
// outbound dial + upgrade handling wraps gorilla/websocket the same
// way scalability-protocols implementations that already list it as a
// transport dependency do.
package ws

import (
	gocontext "context"
	"crypto/tls"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/transport"
)

func init() {
	transport.Register(&wsTransport{scheme: "ws"})
	transport.Register(&wsTransport{scheme: "wss"})
}

type wsTransport struct {
	scheme string
}

func (t *wsTransport) Scheme() string { return t.scheme }

func (t *wsTransport) httpScheme() string {
	if t.scheme == "wss" {
		return "https"
	}
	return "http"
}

func (t *wsTransport) NewDialer(addr string, opts *spnet.Options) (transport.Dialer, error) {
	if !strings.HasPrefix(addr, t.scheme+"://") {
		return nil, spnet.ErrAddrInvalid
	}
	return &dialer{scheme: t.scheme, addr: addr, opts: opts}, nil
}

func (t *wsTransport) NewListener(addr string, opts *spnet.Options) (transport.Listener, error) {
	if !strings.HasPrefix(addr, t.scheme+"://") {
		return nil, spnet.ErrAddrInvalid
	}
	hostport := strings.TrimPrefix(addr, t.scheme+"://")
	return &listener{scheme: t.scheme, addr: addr, hostport: hostport, opts: opts, acceptCh: make(chan transport.Conn, 16)}, nil
}

type dialer struct {
	scheme string
	addr   string
	opts   *spnet.Options
}

func (d *dialer) Address() string { return d.addr }
func (d *dialer) Close() error    { return nil }

func (d *dialer) Dial(ctx gocontext.Context) (transport.Conn, error) {
	dl := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
		Subprotocols:     []string{"sp.nanomsg.org"},
	}
	if d.scheme == "wss" {
		if d.opts != nil {
			if v, err := d.opts.Get(spnet.OptionTLSConfig); err == nil {
				if cfg, ok := v.(*tls.Config); ok {
					dl.TLSClientConfig = cfg
				}
			}
		}
	}
	c, _, err := dl.DialContext(ctx, d.addr, nil)
	if err != nil {
		return nil, spnet.ErrConnRefused
	}
	return newConn(c, d.opts), nil
}

type listener struct {
	scheme   string
	addr     string
	hostport string
	opts     *spnet.Options
	srv       *http.Server
	acceptCh  chan transport.Conn
	closeOnce sync.Once
}

func (l *listener) Address() string { return l.addr }

func (l *listener) Listen() error {
	upgrader := websocket.Upgrader{
		Subprotocols:    []string{"sp.nanomsg.org"},
		CheckOrigin:     func(*http.Request) bool { return true },
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		select {
		case l.acceptCh <- newConn(c, l.opts):
		default:
			_ = c.Close()
		}
	})
	l.srv = &http.Server{Addr: l.hostport, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if l.scheme == "wss" {
			var certFile, keyFile string
			if l.opts != nil {
				if v, e := l.opts.Get(spnet.OptionTLSCertKeyFile); e == nil {
					if s, ok := v.(string); ok {
						certFile, keyFile = s, s
					}
				}
			}
			err = l.srv.ListenAndServeTLS(certFile, keyFile)
		} else {
			err = l.srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return spnet.ErrAddrInUse
		}
	case <-time.After(50 * time.Millisecond):
		// Server accepted the bind and is now serving in the background.
	}
	return nil
}

func (l *listener) Accept() (transport.Conn, error) {
	c, ok := <-l.acceptCh
	if !ok {
		return nil, spnet.ErrClosed
	}
	return c, nil
}

func (l *listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		if l.srv != nil {
			err = l.srv.Close()
		}
		close(l.acceptCh)
	})
	return err
}

type conn struct {
	c    *websocket.Conn
	opts *spnet.Options
	mu   sync.Mutex
}

func newConn(c *websocket.Conn, opts *spnet.Options) *conn {
	return &conn{c: c, opts: opts}
}

func (c *conn) SendMsg(m *spnet.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	buf := append(append([]byte{}, m.Header()...), m.Body()...)
	hdrLen := len(m.Header())
	frame := make([]byte, 2+len(buf))
	frame[0] = byte(hdrLen >> 8)
	frame[1] = byte(hdrLen)
	copy(frame[2:], buf)
	return c.c.WriteMessage(websocket.BinaryMessage, frame)
}

func (c *conn) RecvMsg() (*spnet.Message, error) {
	maxSize := 0
	if c.opts != nil {
		maxSize = c.opts.GetInt(spnet.OptionRecvMaxSize)
	}
	for {
		_, data, err := c.c.ReadMessage()
		if err != nil {
			return nil, spnet.ErrConnReset
		}
		if len(data) < 2 {
			continue
		}
		if maxSize > 0 && len(data) > maxSize {
			continue // oversized frame silently dropped, per spec.md section 7
		}
		hdrLen := int(data[0])<<8 | int(data[1])
		payload := data[2:]
		if hdrLen > len(payload) {
			continue
		}
		msg := spnet.NewMessage(len(payload) - hdrLen)
		if hdrLen > 0 {
			_ = msg.AppendHeader(payload[:hdrLen])
		}
		if len(payload)-hdrLen > 0 {
			_ = msg.AppendBody(payload[hdrLen:])
		}
		return msg, nil
	}
}

func (c *conn) LocalAddress() spnet.Addr {
	u, err := url.Parse(c.c.LocalAddr().String())
	if err != nil {
		return spnet.Addr{}
	}
	return spnet.Addr{Family: spnet.AddrIn4, Name: u.Host}
}

func (c *conn) RemoteAddress() spnet.Addr {
	return spnet.Addr{Family: spnet.AddrIn4, Name: c.c.RemoteAddr().String()}
}

func (c *conn) Close() error { return c.c.Close() }
