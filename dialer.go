package spnet

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/scalenet/spnet/internal/backoffutil"
	"github.com/scalenet/spnet/splog"
	"github.com/scalenet/spnet/transport"
)

// DialerState is the reconnect state machine of spec.md section 4.4.
type DialerState int

const (
	DialerIdle DialerState = iota
	DialerConnecting
	DialerConnected
	DialerWaiting
	DialerClosed
)

// Dialer is an active endpoint: it repeatedly dials its transport
// address, handing each successful connection to the owning socket as
// a new pipe, and reconnects with exponential backoff on failure or
// disconnect until closed.
type Dialer struct {
	socket *Socket
	td     transport.Dialer
	log    splog.T

	mu      sync.Mutex
	state   DialerState
	pipe    *Pipe
	backoff *backoff.ExponentialBackOff

	closeCh  chan struct{}
	doneCh   chan struct{}
	closeMu  sync.Mutex
	isClosed bool
}

func newDialer(s *Socket, td transport.Dialer) *Dialer {
	return &Dialer{
		socket:  s,
		td:      td,
		log:     s.log.WithContext("dialer", td.Address()),
		closeCh: make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Address returns the URL this dialer connects to.
func (d *Dialer) Address() string { return d.td.Address() }

// State returns the dialer's current reconnect-state-machine state.
func (d *Dialer) State() DialerState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

func (d *Dialer) setState(st DialerState) {
	d.mu.Lock()
	d.state = st
	d.mu.Unlock()
}

func (d *Dialer) start() {
	min := d.socket.opts.GetDuration(OptionReconnectTime)
	max := d.socket.opts.GetDuration(OptionMaxReconnectTime)
	d.backoff = backoffutil.New(min, max)
	go d.loop()
}

func (d *Dialer) loop() {
	defer close(d.doneCh)
	for {
		select {
		case <-d.closeCh:
			return
		default:
		}

		d.setState(DialerConnecting)
		ctx, cancel := context.WithCancel(context.Background())
		conn, err := d.td.Dial(ctx)
		cancel()
		if err != nil {
			d.log.Debugf("dial failed: %v", err)
			if !d.waitBackoff() {
				return
			}
			continue
		}

		d.backoff.Reset()
		d.setState(DialerConnected)

		p := d.socket.addPipe(conn, d)
		if p == nil {
			_ = conn.Close()
			if !d.waitBackoff() {
				return
			}
			continue
		}

		d.mu.Lock()
		d.pipe = p
		d.mu.Unlock()

		select {
		case <-p.closedCh:
		case <-d.closeCh:
			_ = p.Close()
			return
		}

		d.mu.Lock()
		d.pipe = nil
		d.mu.Unlock()

		if !d.waitBackoff() {
			return
		}
	}
}

// waitBackoff sleeps for the next scheduled reconnect delay, returning
// false if the dialer was closed first.
func (d *Dialer) waitBackoff() bool {
	delay := d.backoff.NextBackOff()
	if delay == backoff.Stop {
		delay = d.backoff.MaxInterval
	}
	d.setState(DialerWaiting)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-d.closeCh:
		return false
	}
}

// Close transitions the dialer to its terminal state, cancels any
// pending retry wait, and closes its current pipe if connected.
func (d *Dialer) Close() {
	d.closeMu.Lock()
	if d.isClosed {
		d.closeMu.Unlock()
		return
	}
	d.isClosed = true
	close(d.closeCh)
	d.closeMu.Unlock()

	d.setState(DialerClosed)
	<-d.doneCh

	d.socket.mu.Lock()
	delete(d.socket.dialers, d)
	d.socket.mu.Unlock()
}
