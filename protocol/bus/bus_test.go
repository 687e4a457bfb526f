package bus_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/bus"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestBusBroadcastsToEveryDirectPeer(t *testing.T) {
	const addr = "inproc://bus-broadcast"

	hub := bus.NewSocket(nil)
	defer hub.Close()
	_, err := hub.Listen(addr)
	require.NoError(t, err)

	a := bus.NewSocket(nil)
	defer a.Close()
	_, err = a.Dial(addr)
	require.NoError(t, err)

	b := bus.NewSocket(nil)
	defer b.Close()
	_, err = b.Dial(addr)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	// hub is directly connected to both a and b, so its send reaches
	// both; a and b are not directly connected to each other.
	require.NoError(t, hub.SetOption(spnet.OptionSendTimeout, time.Second))
	require.NoError(t, hub.Send([]byte("broadcast")))

	require.NoError(t, a.SetOption(spnet.OptionRecvTimeout, time.Second))
	require.NoError(t, b.SetOption(spnet.OptionRecvTimeout, time.Second))

	got, err := a.Recv()
	require.NoError(t, err)
	assert.Equal(t, "broadcast", string(got))

	got, err = b.Recv()
	require.NoError(t, err)
	assert.Equal(t, "broadcast", string(got))
}
