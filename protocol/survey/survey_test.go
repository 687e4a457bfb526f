package survey_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scalenet/spnet"
	"github.com/scalenet/spnet/protocol/survey"
	_ "github.com/scalenet/spnet/transport/inproc"
)

func TestSurveyorCollectsResponses(t *testing.T) {
	const addr = "inproc://survey-collect"

	surveyor := survey.NewSurveyorSocket(nil)
	defer surveyor.Close()
	_, err := surveyor.Listen(addr)
	require.NoError(t, err)

	respondent := survey.NewRespondentSocket(nil)
	defer respondent.Close()
	_, err = respondent.Dial(addr)
	require.NoError(t, err)

	go func() {
		b, err := respondent.Recv()
		if err != nil {
			return
		}
		_ = respondent.Send(append([]byte("answer-to-"), b...))
	}()

	require.NoError(t, surveyor.SetOption(spnet.OptionSurveyTime, time.Second))
	require.NoError(t, surveyor.Send([]byte("question")))

	b, err := surveyor.Recv()
	require.NoError(t, err)
	assert.Equal(t, "answer-to-question", string(b))
}

func TestSurveyorTimesOutAfterSurveyTime(t *testing.T) {
	surveyor := survey.NewSurveyorSocket(nil)
	defer surveyor.Close()

	require.NoError(t, surveyor.SetOption(spnet.OptionSurveyTime, 30*time.Millisecond))
	require.NoError(t, surveyor.Send([]byte("nobody-listening")))

	_, err := surveyor.Recv()
	assert.ErrorIs(t, err, spnet.ErrTimeout)

	// Further recv after expiry returns Timeout, not a stale response.
	_, err = surveyor.Recv()
	assert.ErrorIs(t, err, spnet.ErrTimeout)
}

func TestRespondentSendBeforeRecvIsBadState(t *testing.T) {
	respondent := survey.NewRespondentSocket(nil)
	defer respondent.Close()

	err := respondent.Send([]byte("nope"))
	assert.ErrorIs(t, err, spnet.ErrProtoState)
}
