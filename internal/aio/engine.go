package aio

import (
	"time"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/splog"
)

// Engine is the AIO engine of spec.md section 4.1: a bounded pool of
// worker goroutines that runs queued Ops to completion, adapted from
// the task.Pool worker-dispatch loop (queue channel, doneWorker signal,
// workerCount bookkeeping) generalized from named jobs to anonymous
// send/recv operations with deadline and cancellation support baked
// into the Op itself rather than bolted on separately.
type Engine struct {
	log        splog.T
	opQueue    chan *Op
	maxWorkers int
	doneWorker chan struct{}
	shutdownCh chan struct{}
}

// NewEngine starts an Engine backed by maxWorkers goroutines.
func NewEngine(log splog.T, maxWorkers int) *Engine {
	if maxWorkers <= 0 {
		maxWorkers = 1
	}
	e := &Engine{
		log:        log,
		opQueue:    make(chan *Op),
		maxWorkers: maxWorkers,
		doneWorker: make(chan struct{}),
		shutdownCh: make(chan struct{}),
	}
	go e.dispatch()
	return e
}

// Start enqueues perform as a new Op with the given kind/deadline and
// returns a handle (the *Op itself, matching the opaque-handle
// contract since callers only ever pass it back to Wait/Cancel/
// SetMsg/GetMsg).
func (e *Engine) Start(kind Kind, deadline time.Time, msg *spnet.Message, perform Perform, callback func(*Op)) *Op {
	op := &Op{
		Kind:     kind,
		Deadline: deadline,
		msg:      msg,
		cancel:   NewCancelFlag(),
		perform:  perform,
		callback: callback,
		done:     make(chan struct{}),
	}
	select {
	case e.opQueue <- op:
	case <-e.shutdownCh:
		op.setResult(nil, spnet.ErrClosed)
	}
	return op
}

// Wait blocks until op reaches a terminal state and returns its result.
func (e *Engine) Wait(op *Op) (*spnet.Message, error) {
	<-op.done
	return op.GetMsg(), op.Err()
}

// Cancel requests cancellation of op. If op has already completed this
// has no effect; Wait still returns the original result.
func (e *Engine) Cancel(op *Op) {
	op.cancel.Set(Canceled)
}

// Shutdown stops accepting new ops; ops already queued still run.
func (e *Engine) Shutdown() {
	close(e.shutdownCh)
}

func (e *Engine) dispatch() {
	active := 0
	for {
		if active >= e.maxWorkers {
			<-e.doneWorker
			active--
		}
		select {
		case op, ok := <-e.opQueue:
			if !ok {
				return
			}
			active++
			go e.run(op)
		case <-e.doneWorker:
			active--
		case <-e.shutdownCh:
			for active > 0 {
				<-e.doneWorker
				active--
			}
			return
		}
	}
}

func (e *Engine) run(op *Op) {
	defer func() { e.doneWorker <- struct{}{} }()

	if op.cancel.Canceled() {
		op.setResult(nil, spnet.ErrCanceled)
		return
	}

	resultCh := make(chan struct{}, 1)
	var msg *spnet.Message
	var err error
	go func() {
		msg, err = op.perform(op.cancel)
		resultCh <- struct{}{}
	}()

	var timer *time.Timer
	var timeoutCh <-chan time.Time
	if !op.Deadline.IsZero() {
		timer = time.NewTimer(time.Until(op.Deadline))
		timeoutCh = timer.C
		defer timer.Stop()
	}

	select {
	case <-resultCh:
		op.cancel.Set(Completed)
		op.setResult(msg, err)
	case <-timeoutCh:
		op.cancel.Set(TimedOut)
		e.log.Debugf("aio op timed out after deadline %v", op.Deadline)
		<-resultCh // perform must still observe cancellation and return
		op.setResult(nil, spnet.ErrTimeout)
	case <-op.cancel.Done():
		<-resultCh // perform must still observe cancellation and return
		op.setResult(nil, spnet.ErrCanceled)
	}
}
