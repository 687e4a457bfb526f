package spnet

import (
	"sync"

	"github.com/scalenet/spnet/splog"
	"github.com/scalenet/spnet/transport"
)

// Listener is a passive endpoint: it accepts connections from its
// transport and hands each one to the owning socket as a new pipe
// until closed.
type Listener struct {
	socket *Socket
	tl     transport.Listener
	log    splog.T

	closeOnce sync.Once
	doneCh    chan struct{}
}

func newListener(s *Socket, tl transport.Listener) *Listener {
	return &Listener{
		socket: s,
		tl:     tl,
		log:    s.log.WithContext("listener", tl.Address()),
		doneCh: make(chan struct{}),
	}
}

// Address returns the URL this listener accepts connections on.
func (l *Listener) Address() string { return l.tl.Address() }

func (l *Listener) start() {
	go l.loop()
}

func (l *Listener) loop() {
	defer close(l.doneCh)
	for {
		conn, err := l.tl.Accept()
		if err != nil {
			l.log.Debugf("accept stopped: %v", err)
			return
		}
		if l.socket.addPipe(conn, nil) == nil {
			_ = conn.Close()
		}
	}
}

// Close stops accepting new connections. Pipes already handed to the
// socket are unaffected.
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.tl.Close()
		l.socket.mu.Lock()
		delete(l.socket.listeners, l)
		l.socket.mu.Unlock()
	})
	return err
}
