package pubsub_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/pubsub"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestSubPrefixFiltering(t *testing.T) {
	const addr = "inproc://pubsub-filter"

	pub := pubsub.NewPubSocket(nil)
	defer pub.Close()
	_, err := pub.Listen(addr)
	require.NoError(t, err)

	sub := pubsub.NewSubSocket(nil)
	defer sub.Close()
	require.NoError(t, sub.SetOption(spnet.OptionSubscribe, []byte("sports/")))
	_, err = sub.Dial(addr)
	require.NoError(t, err)

	// Give the dial a moment to attach before publishing.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, pub.Send([]byte("weather/rain")))
	require.NoError(t, pub.Send([]byte("sports/score")))

	require.NoError(t, sub.SetOption(spnet.OptionRecvTimeout, 500*time.Millisecond))
	b, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "sports/score", string(b))
}

func TestSubEmptyPrefixMatchesEverything(t *testing.T) {
	const addr = "inproc://pubsub-matchall"

	pub := pubsub.NewPubSocket(nil)
	defer pub.Close()
	_, err := pub.Listen(addr)
	require.NoError(t, err)

	sub := pubsub.NewSubSocket(nil)
	defer sub.Close()
	require.NoError(t, sub.SetOption(spnet.OptionSubscribe, []byte("")))
	_, err = sub.Dial(addr)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, pub.Send([]byte("anything")))
	require.NoError(t, sub.SetOption(spnet.OptionRecvTimeout, 500*time.Millisecond))
	b, err := sub.Recv()
	require.NoError(t, err)
	assert.Equal(t, "anything", string(b))
}

func TestPubSendNotSupportedOnSub(t *testing.T) {
	sub := pubsub.NewSubSocket(nil)
	defer sub.Close()
	err := sub.Send([]byte("nope"))
	assert.ErrorIs(t, err, spnet.ErrNotSupported)
}

func TestPubRecvNotSupported(t *testing.T) {
	pub := pubsub.NewPubSocket(nil)
	defer pub.Close()
	_, err := pub.Recv()
	assert.ErrorIs(t, err, spnet.ErrNotSupported)
}
