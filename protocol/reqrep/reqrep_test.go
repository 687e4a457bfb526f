package reqrep_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/reqrep"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestReqRepRoundTrip(t *testing.T) {
	const addr = "inproc://reqrep-roundtrip"

	rep := reqrep.NewRepSocket(nil)
	defer rep.Close()
	_, err := rep.Listen(addr)
	require.NoError(t, err)

	req := reqrep.NewReqSocket(nil)
	defer req.Close()
	_, err = req.Dial(addr)
	require.NoError(t, err)

	go func() {
		b, err := rep.Recv()
		if err != nil {
			return
		}
		_ = rep.Send(append([]byte("reply-to-"), b...))
	}()

	require.NoError(t, req.Send([]byte("hello")))
	b, err := req.Recv()
	require.NoError(t, err)
	assert.Equal(t, "reply-to-hello", string(b))
}

func TestReqRecvBeforeSendIsBadState(t *testing.T) {
	req := reqrep.NewReqSocket(nil)
	defer req.Close()
	require.NoError(t, req.SetOption(spnet.OptionRecvTimeout, 10*time.Millisecond))

	_, err := req.Recv()
	assert.ErrorIs(t, err, spnet.ErrProtoState)
}

func TestRepSendBeforeRecvIsBadState(t *testing.T) {
	rep := reqrep.NewRepSocket(nil)
	defer rep.Close()

	err := rep.Send([]byte("nope"))
	assert.ErrorIs(t, err, spnet.ErrProtoState)
}

func TestReqResendsOnTimeoutToAnotherPipe(t *testing.T) {
	const (
		addrDead = "inproc://reqrep-resend-dead"
		addrLive = "inproc://reqrep-resend-live"
	)

	dead := reqrep.NewRepSocket(nil)
	defer dead.Close()
	_, err := dead.Listen(addrDead)
	require.NoError(t, err)

	live := reqrep.NewRepSocket(nil)
	defer live.Close()
	_, err = live.Listen(addrLive)
	require.NoError(t, err)

	req := reqrep.NewReqSocket(nil)
	defer req.Close()
	require.NoError(t, req.SetOption(spnet.OptionRetryTime, 30*time.Millisecond))
	_, err = req.Dial(addrDead)
	require.NoError(t, err)
	_, err = req.Dial(addrLive)
	require.NoError(t, err)

	// Drain and never answer on the dead listener so its request times
	// out and gets resent; answer immediately on the live one.
	go func() {
		for {
			_, err := dead.Recv()
			if err != nil {
				return
			}
		}
	}()
	go func() {
		b, err := live.Recv()
		if err != nil {
			return
		}
		_ = live.Send(append([]byte("answered-"), b...))
	}()

	require.NoError(t, req.SetOption(spnet.OptionRecvTimeout, 2*time.Second))
	require.NoError(t, req.Send([]byte("work")))
	b, err := req.Recv()
	require.NoError(t, err)
	assert.Equal(t, "answered-work", string(b))
}

func TestReqOpenContext(t *testing.T) {
	const addr = "inproc://reqrep-context"

	rep := reqrep.NewRepSocket(nil)
	defer rep.Close()
	_, err := rep.Listen(addr)
	require.NoError(t, err)

	req := reqrep.NewReqSocket(nil)
	defer req.Close()
	_, err = req.Dial(addr)
	require.NoError(t, err)

	ctx, err := reqrep.OpenReqContext(req)
	require.NoError(t, err)

	go func() {
		b, err := rep.Recv()
		if err != nil {
			return
		}
		_ = rep.Send(b)
	}()

	require.NoError(t, ctx.Send([]byte("via-context")))
	b, err := ctx.Recv()
	require.NoError(t, err)
	assert.Equal(t, "via-context", string(b))
}
