package pipeline_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/pipeline"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestPushPullRoundRobinFairness(t *testing.T) {
	const addr = "inproc://pipeline-fair"

	push := pipeline.NewPushSocket(nil)
	defer push.Close()
	_, err := push.Listen(addr)
	require.NoError(t, err)

	pullA := pipeline.NewPullSocket(nil)
	defer pullA.Close()
	_, err = pullA.Dial(addr)
	require.NoError(t, err)

	pullB := pipeline.NewPullSocket(nil)
	defer pullB.Close()
	_, err = pullB.Dial(addr)
	require.NoError(t, err)

	time.Sleep(50 * time.Millisecond)

	require.NoError(t, push.SetOption(spnet.OptionSendTimeout, time.Second))
	for i := 0; i < 4; i++ {
		require.NoError(t, push.Send([]byte{byte(i)}))
	}

	require.NoError(t, pullA.SetOption(spnet.OptionRecvTimeout, time.Second))
	require.NoError(t, pullB.SetOption(spnet.OptionRecvTimeout, time.Second))

	aCount, bCount := 0, 0
	for i := 0; i < 2; i++ {
		if _, err := pullA.Recv(); err == nil {
			aCount++
		}
	}
	for i := 0; i < 2; i++ {
		if _, err := pullB.Recv(); err == nil {
			bCount++
		}
	}
	assert.Equal(t, 2, aCount)
	assert.Equal(t, 2, bCount)
}

func TestPushRecvNotSupported(t *testing.T) {
	push := pipeline.NewPushSocket(nil)
	defer push.Close()
	_, err := push.Recv()
	assert.ErrorIs(t, err, spnet.ErrNotSupported)
}

func TestPullSendNotSupported(t *testing.T) {
	pull := pipeline.NewPullSocket(nil)
	defer pull.Close()
	err := pull.Send([]byte("nope"))
	assert.ErrorIs(t, err, spnet.ErrNotSupported)
}
