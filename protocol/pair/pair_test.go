package pair_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/pair"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestPair0Echo(t *testing.T) {
	const addr = "inproc://pair0-echo"

	srv := pair.NewSocket(nil)
	defer srv.Close()
	_, err := srv.Listen(addr)
	require.NoError(t, err)

	cli := pair.NewSocket(nil)
	defer cli.Close()
	_, err = cli.Dial(addr)
	require.NoError(t, err)

	require.NoError(t, cli.Send([]byte("ping")))
	b, err := srv.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(b))

	require.NoError(t, srv.Send([]byte("pong")))
	b, err = cli.Recv()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(b))
}

func TestPair0SecondConnectionPreemptsFirst(t *testing.T) {
	const addr = "inproc://pair0-preempt"

	srv := pair.NewSocket(nil)
	defer srv.Close()
	_, err := srv.Listen(addr)
	require.NoError(t, err)

	first := pair.NewSocket(nil)
	defer first.Close()
	_, err = first.Dial(addr)
	require.NoError(t, err)

	require.NoError(t, first.Send([]byte("hello")))
	_, err = srv.Recv()
	require.NoError(t, err)

	second := pair.NewSocket(nil)
	defer second.Close()
	_, err = second.Dial(addr)
	require.NoError(t, err)

	require.NoError(t, second.Send([]byte("world")))
	b, err := srv.Recv()
	require.NoError(t, err)
	assert.Equal(t, "world", string(b))

	require.NoError(t, first.SetOption(spnet.OptionSendTimeout, 50*time.Millisecond))
	err = first.Send([]byte("late"))
	assert.Error(t, err)
}

func TestPair1Echo(t *testing.T) {
	const addr = "inproc://pair1-echo"

	srv := pair.NewPair1Socket(nil)
	defer srv.Close()
	_, err := srv.Listen(addr)
	require.NoError(t, err)

	cli := pair.NewPair1Socket(nil)
	defer cli.Close()
	_, err = cli.Dial(addr)
	require.NoError(t, err)

	require.NoError(t, cli.Send([]byte("hi")))
	b, err := srv.Recv()
	require.NoError(t, err)
	assert.Equal(t, "hi", string(b))
}

func TestPair1Polyamorous(t *testing.T) {
	const addr = "inproc://pair1-poly"

	hub := pair.NewPolySocket(nil)
	defer hub.Close()
	_, err := hub.Listen(addr)
	require.NoError(t, err)

	a := pair.NewPair1Socket(nil)
	defer a.Close()
	_, err = a.Dial(addr)
	require.NoError(t, err)

	b := pair.NewPair1Socket(nil)
	defer b.Close()
	_, err = b.Dial(addr)
	require.NoError(t, err)

	require.NoError(t, a.Send([]byte("from-a")))
	m1, err := hub.RecvMsg()
	require.NoError(t, err)
	pipeA := m1.Pipe()
	assert.Equal(t, "from-a", string(m1.Body()))

	require.NoError(t, b.Send([]byte("from-b")))
	m2, err := hub.RecvMsg()
	require.NoError(t, err)
	pipeB := m2.Pipe()
	assert.Equal(t, "from-b", string(m2.Body()))

	assert.NotEqual(t, pipeA, pipeB)

	reply := spnet.NewMessage(0)
	require.NoError(t, reply.AppendBody([]byte("to-a")))
	reply.SetPipe(pipeA)
	require.NoError(t, hub.SendMsg(reply))

	got, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "to-a", string(got))

	noAffinity := spnet.NewMessage(0)
	require.NoError(t, noAffinity.AppendBody([]byte("nobody")))
	err = hub.SendMsg(noAffinity)
	assert.ErrorIs(t, err, spnet.ErrProtoError)
}
