package spnet

import (
	"errors"
	"sync"
	"time"

	"github.com/scalenet/spnet/internal/aio"
	"github.com/scalenet/spnet/splog"
	"github.com/scalenet/spnet/transport"
)

// PipeEvent identifies a stage in a pipe's lifecycle, per spec.md
// section 4.5: PrePipeAdd -> PostPipeAdd -> active -> PostPipeRemove.
type PipeEvent int

const (
	PipeEventAttaching PipeEvent = iota // pre-add: pipe not yet visible to the protocol
	PipeEventAttached                   // post-add: pipe is live and indexed
	PipeEventDetached                   // post-remove: pipe has been evicted
)

// PipeEventHook observes pipe lifecycle transitions. Calling p.Close()
// from a PipeEventAttaching call rejects the pipe before it ever
// becomes visible to the protocol, mirroring the domain precedent's
// SetPipeEventHook contract.
type PipeEventHook func(event PipeEvent, p *Pipe)

// Socket is the user-facing handle: a protocol state machine plus its
// pipes, dialers, and listeners. Two locks guard it, per spec.md
// section 5: mu protects the pipe/dialer/listener maps and the option
// table; pnMu is dedicated to serializing pipe lifecycle callback
// invocation so a slow or reentrant hook cannot block unrelated send/
// recv traffic, and so callback ordering across concurrent pipe
// attach/detach events is well-defined.
type Socket struct {
	mu sync.Mutex

	proto  Protocol
	opts   *Options
	log    splog.T
	engine *aio.Engine

	pipes     map[int32]*Pipe
	dialers   map[*Dialer]struct{}
	listeners map[*Listener]struct{}

	closed bool

	pnMu sync.Mutex
	hook PipeEventHook
}

// NewSocket wires proto into a fresh Socket with the standard option
// set registered (spec.md section 4.7), ready to Dial/Listen.
func NewSocket(proto Protocol, log splog.T) *Socket {
	if log == nil {
		log = splog.New(nil)
	}
	s := &Socket{
		proto:     proto,
		log:       log,
		pipes:     make(map[int32]*Pipe),
		dialers:   make(map[*Dialer]struct{}),
		listeners: make(map[*Listener]struct{}),
	}
	s.opts = NewOptions()
	info := proto.Info()
	s.opts.Register(OptionRecvTimeout, OptDuration, time.Duration(-1), nil)
	s.opts.Register(OptionSendTimeout, OptDuration, time.Duration(-1), nil)
	s.opts.Register(OptionReadQLen, OptSize, 16, nonNegative)
	s.opts.Register(OptionWriteQLen, OptSize, 16, nonNegative)
	s.opts.Register(OptionRecvMaxSize, OptSize, 0, nonNegative)
	s.opts.Register(OptionReconnectTime, OptDuration, 100*time.Millisecond, nonNegativeDuration)
	s.opts.Register(OptionMaxReconnectTime, OptDuration, 30*time.Second, nonNegativeDuration)
	s.opts.Register(OptionBestEffort, OptBool, false, nil)
	s.opts.Register(OptionSocketName, OptString, "", nil)
	s.opts.Register(OptionTCPNoDelay, OptBool, true, nil)
	s.opts.Register(OptionKeepAlive, OptBool, true, nil)
	s.opts.Register(OptionKeepAliveTime, OptDuration, 30*time.Second, nonNegativeDuration)
	s.opts.Register(OptionTLSConfig, OptPointer, nil, nil)
	s.opts.Register(OptionTLSCAFile, OptString, "", nil)
	s.opts.Register(OptionTLSCertKeyFile, OptString, "", nil)
	s.opts.Register(OptionTLSAuthMode, OptInt32, 0, nil)
	s.opts.Register(OptionTLSServerName, OptString, "", nil)
	s.opts.RegisterReadOnly(OptionRaw, OptBool, false)
	s.opts.RegisterReadOnly(OptionProtocol, OptInt32, int32(info.Self))
	s.opts.RegisterReadOnly(OptionProtocolName, OptString, info.SelfName)
	s.opts.RegisterReadOnly(OptionPeer, OptInt32, int32(info.Peer))
	s.opts.RegisterReadOnly(OptionPeerName, OptString, info.PeerName)

	s.engine = aio.NewEngine(log, 8)
	return s
}

func nonNegative(v interface{}) error {
	n, _ := v.(int)
	if n < 0 {
		return ErrBadValue
	}
	return nil
}

func nonNegativeDuration(v interface{}) error {
	d, _ := v.(time.Duration)
	if d < 0 {
		return ErrBadValue
	}
	return nil
}

// Protocol returns the protocol implementation driving this socket, so
// that a protocol package can recover its own concrete type to expose
// protocol-specific features (such as Req0/Rep0 contexts) that don't
// belong on the generic Protocol interface.
func (s *Socket) Protocol() Protocol { return s.proto }

// SetOption sets a socket-level or protocol-specific option.
func (s *Socket) SetOption(name string, v interface{}) error {
	if err := s.opts.Set(name, v); err == nil {
		return nil
	} else if !errors.Is(err, ErrNotSupported) {
		return err
	}
	return s.proto.SetOption(name, v)
}

// GetOption reads a socket-level or protocol-specific option.
func (s *Socket) GetOption(name string) (interface{}, error) {
	if v, err := s.opts.Get(name); err == nil {
		return v, nil
	}
	return s.proto.GetOption(name)
}

// SetPipeEventHook installs hook, replacing any previously installed
// one, and returns the hook it replaced (nil if none).
func (s *Socket) SetPipeEventHook(hook PipeEventHook) PipeEventHook {
	s.pnMu.Lock()
	defer s.pnMu.Unlock()
	old := s.hook
	s.hook = hook
	return old
}

func (s *Socket) fireHook(event PipeEvent, p *Pipe) {
	s.pnMu.Lock()
	defer s.pnMu.Unlock()
	hook := s.hook
	if hook == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Errorf("pipe event hook panicked: %v", r)
		}
	}()
	hook(event, p)
}

// addPipe runs the pre-add/post-add callback chain and, unless a
// pre-add observer closes the pipe, indexes it and starts its reader/
// writer goroutines. Indexing happens before the goroutines start, so
// a message can never reference a pipe id the socket hasn't already
// registered — the on-demand "synthesize a pipe record" race spec.md
// section 4.5 describes for a concurrent-registration design does not
// arise under this strictly sequenced add.
func (s *Socket) addPipe(conn transport.Conn, d *Dialer) *Pipe {
	readQ := s.opts.GetInt(OptionReadQLen)
	writeQ := s.opts.GetInt(OptionWriteQLen)
	p := newPipe(conn, s, d, writeQ, readQ)

	s.fireHook(PipeEventAttaching, p)
	if p.closed.Load() {
		return nil // a pre-add observer closed it
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = p.Close()
		return nil
	}
	s.pipes[p.id] = p
	s.mu.Unlock()

	if err := s.proto.AddPipe(p); err != nil {
		s.log.Debugf("protocol rejected pipe %d: %v", p.id, err)
		s.removePipe(p)
		return nil
	}

	s.fireHook(PipeEventAttached, p)
	p.run()
	return p
}

// removePipe evicts p, notifies the protocol, and fires the
// post-remove hook. Idempotent.
func (s *Socket) removePipe(p *Pipe) {
	s.mu.Lock()
	if _, ok := s.pipes[p.id]; !ok {
		s.mu.Unlock()
		return
	}
	delete(s.pipes, p.id)
	s.mu.Unlock()

	_ = p.Close()
	s.proto.RemovePipe(p)
	s.fireHook(PipeEventDetached, p)
}

func (s *Socket) sendDeadline() time.Time {
	return deadlineFromTimeout(s.opts.GetDuration(OptionSendTimeout))
}

func (s *Socket) recvDeadline() time.Time {
	return deadlineFromTimeout(s.opts.GetDuration(OptionRecvTimeout))
}

func deadlineFromTimeout(d time.Duration) time.Time {
	if d < 0 {
		return time.Time{} // infinite
	}
	return time.Now().Add(d)
}

// SendMsg transfers ownership of m to the protocol's send rule,
// blocking up to the socket's send_timeout.
func (s *Socket) SendMsg(m *Message) error {
	return s.proto.SendMsg(m, s.sendDeadline())
}

// Send is a convenience wrapper allocating a Message from raw bytes.
func (s *Socket) Send(b []byte) error {
	m := NewMessage(len(b))
	_ = m.AppendBody(b)
	return s.SendMsg(m)
}

// RecvMsg blocks up to the socket's recv_timeout for the protocol's
// receive rule to deliver a message.
func (s *Socket) RecvMsg() (*Message, error) {
	return s.proto.RecvMsg(s.recvDeadline())
}

// Recv is a convenience wrapper returning the received message's body.
func (s *Socket) Recv() ([]byte, error) {
	m, err := s.RecvMsg()
	if err != nil {
		return nil, err
	}
	return m.Body(), nil
}

// ASendMsg starts an asynchronous send via the AIO engine, invoking
// callback on completion if non-nil.
func (s *Socket) ASendMsg(m *Message, callback func(*aio.Op)) *aio.Op {
	return s.engine.Start(aio.KindSend, s.sendDeadline(), m, func(cancel *aio.CancelFlag) (*Message, error) {
		return nil, s.proto.SendMsg(m, s.sendDeadline())
	}, callback)
}

// ARecvMsg starts an asynchronous recv via the AIO engine.
func (s *Socket) ARecvMsg(callback func(*aio.Op)) *aio.Op {
	return s.engine.Start(aio.KindRecv, s.recvDeadline(), nil, func(cancel *aio.CancelFlag) (*Message, error) {
		return s.proto.RecvMsg(s.recvDeadline())
	}, callback)
}

// Wait blocks until an async op started on this socket completes.
func (s *Socket) Wait(op *aio.Op) (*Message, error) { return s.engine.Wait(op) }

// Cancel requests cancellation of a pending async op.
func (s *Socket) Cancel(op *aio.Op) { s.engine.Cancel(op) }

// Dial opens an active connection to addr, reconnecting with backoff
// per spec.md section 4.4 on failure or disconnect.
func (s *Socket) Dial(addr string) (*Dialer, error) {
	scheme, err := schemeOf(addr)
	if err != nil {
		return nil, err
	}
	tr, err := transport.For(scheme)
	if err != nil {
		return nil, err
	}
	td, err := tr.NewDialer(addr, s.opts)
	if err != nil {
		return nil, err
	}
	d := newDialer(s, td)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.dialers[d] = struct{}{}
	s.mu.Unlock()

	d.start()
	return d, nil
}

// Listen opens a passive endpoint at addr, accepting connections until
// the socket or listener is closed.
func (s *Socket) Listen(addr string) (*Listener, error) {
	scheme, err := schemeOf(addr)
	if err != nil {
		return nil, err
	}
	tr, err := transport.For(scheme)
	if err != nil {
		return nil, err
	}
	tl, err := tr.NewListener(addr, s.opts)
	if err != nil {
		return nil, err
	}
	if err := tl.Listen(); err != nil {
		return nil, err
	}
	l := newListener(s, tl)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		_ = tl.Close()
		return nil, ErrClosed
	}
	s.listeners[l] = struct{}{}
	s.mu.Unlock()

	l.start()
	return l, nil
}

// Close tears down every pipe, dialer, and listener owned by this
// socket, then the protocol itself.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	pipes := make([]*Pipe, 0, len(s.pipes))
	for _, p := range s.pipes {
		pipes = append(pipes, p)
	}
	dialers := make([]*Dialer, 0, len(s.dialers))
	for d := range s.dialers {
		dialers = append(dialers, d)
	}
	listeners := make([]*Listener, 0, len(s.listeners))
	for l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.Unlock()

	for _, d := range dialers {
		d.Close()
	}
	for _, l := range listeners {
		_ = l.Close()
	}
	for _, p := range pipes {
		s.removePipe(p)
	}
	s.engine.Shutdown()
	s.proto.Close()
	return nil
}

func schemeOf(addr string) (string, error) {
	for i := 0; i+2 < len(addr); i++ {
		if addr[i] == ':' && addr[i+1] == '/' && addr[i+2] == '/' {
			return addr[:i], nil
		}
	}
	return "", ErrAddrInvalid
}
