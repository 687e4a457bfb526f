package spnet_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/pair"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestDeviceForwardsBothDirections(t *testing.T) {
	const (
		addrFront = "inproc://device-front"
		addrBack  = "inproc://device-back"
	)

	front := pair.NewSocket(nil)
	defer front.Close()
	_, err := front.Listen(addrFront)
	require.NoError(t, err)

	back := pair.NewSocket(nil)
	defer back.Close()
	_, err = back.Listen(addrBack)
	require.NoError(t, err)

	client := pair.NewSocket(nil)
	defer client.Close()
	require.NoError(t, client.SetOption(spnet.OptionSendTimeout, time.Second))
	require.NoError(t, client.SetOption(spnet.OptionRecvTimeout, time.Second))
	_, err = client.Dial(addrFront)
	require.NoError(t, err)

	server := pair.NewSocket(nil)
	defer server.Close()
	require.NoError(t, server.SetOption(spnet.OptionSendTimeout, time.Second))
	require.NoError(t, server.SetOption(spnet.OptionRecvTimeout, time.Second))
	_, err = server.Dial(addrBack)
	require.NoError(t, err)

	devErrCh := make(chan error, 1)
	go func() { devErrCh <- spnet.Device(front, back) }()

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, client.Send([]byte("ping")))
	got, err := server.Recv()
	require.NoError(t, err)
	assert.Equal(t, "ping", string(got))

	require.NoError(t, server.Send([]byte("pong")))
	got, err = client.Recv()
	require.NoError(t, err)
	assert.Equal(t, "pong", string(got))

	front.Close()
	back.Close()
	err = <-devErrCh
	assert.Error(t, err)
}
