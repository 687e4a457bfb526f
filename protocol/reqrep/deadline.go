package reqrep

import (
	"time"

	"github.com/scalenet/spnet"
)

// blockingSend implements the blocking-with-timeout contract common to
// every protocol's send rule (spec.md section 4.6), shared by req0's
// initial dispatch and rep0's reply send.
func blockingSend(pipe *spnet.Pipe, m *spnet.Message, deadline time.Time) error {
	if deadline.IsZero() {
		return pipe.Send(m)
	}
	d := time.Until(deadline)
	if d <= 0 {
		return pipe.TrySend(m)
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	errCh := make(chan error, 1)
	go func() { errCh <- pipe.Send(m) }()
	select {
	case err := <-errCh:
		return err
	case <-timer.C:
		return spnet.ErrTimeout
	}
}

// blockingRecv drains ch with the same blocking/TryAgain/Timeout rule.
func blockingRecv(ch <-chan *spnet.Message, deadline time.Time) (*spnet.Message, error) {
	if deadline.IsZero() {
		m, ok := <-ch
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	}
	d := time.Until(deadline)
	if d <= 0 {
		select {
		case m, ok := <-ch:
			if !ok {
				return nil, spnet.ErrClosed
			}
			return m, nil
		default:
			return nil, spnet.ErrTryAgain
		}
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case m, ok := <-ch:
		if !ok {
			return nil, spnet.ErrClosed
		}
		return m, nil
	case <-timer.C:
		return nil, spnet.ErrTimeout
	}
}
