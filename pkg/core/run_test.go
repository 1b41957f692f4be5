package core

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobTypes_ClosedSet(t *testing.T) {
	types := JobTypes()
	assert.Equal(t, []JobType{JobPreMarket, JobIntraday, JobEndOfDay, JobWeeklyReview, JobSideRefresh}, types)

	// Mutating the returned slice must not leak into the package state.
	types[0] = "mutated"
	assert.Equal(t, JobPreMarket, JobTypes()[0])
}

func TestParseJobType(t *testing.T) {
	jt, err := ParseJobType("end-of-day")
	require.NoError(t, err)
	assert.Equal(t, JobEndOfDay, jt)

	_, err = ParseJobType("not-a-real-type")
	assert.True(t, errors.Is(err, ErrUnknownJobType))

	_, err = ParseJobType("")
	assert.Error(t, err)
}

func TestRunStatus_Terminal(t *testing.T) {
	assert.False(t, RunRunning.IsTerminal())
	assert.True(t, RunSuccess.IsTerminal())
	assert.True(t, RunPartial.IsTerminal())
	assert.True(t, RunFailed.IsTerminal())
	assert.True(t, RunRunning.Valid())
	assert.False(t, RunStatus("done").Valid())
}

func TestTriggerSource_Valid(t *testing.T) {
	assert.True(t, SourceScheduled.Valid())
	assert.True(t, SourceManual.Valid())
	assert.False(t, TriggerSource("cron").Valid())
}

func TestRunKey(t *testing.T) {
	r := &Run{JobType: JobIntraday, ScheduledDate: "2024-03-04"}
	assert.Equal(t, "intraday/2024-03-04", r.Key().String())
}

func TestStringList_RoundTrip(t *testing.T) {
	l := StringList{"a", "b"}
	v, err := l.Value()
	require.NoError(t, err)
	assert.Equal(t, `["a","b"]`, v)

	var back StringList
	require.NoError(t, back.Scan(v))
	assert.Equal(t, l, back)

	require.NoError(t, back.Scan([]byte(`["c"]`)))
	assert.Equal(t, StringList{"c"}, back)

	require.NoError(t, back.Scan(nil))
	assert.Nil(t, back)

	assert.ErrorIs(t, back.Scan(42), ErrUnsupportedColumn)

	var empty StringList
	v, err = empty.Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", v)
}

func TestSignal_Usable(t *testing.T) {
	assert.True(t, Signal{Direction: Bullish, Confidence: 1}.Usable())
	assert.True(t, Signal{Direction: Neutral, Confidence: 0.2}.Usable())
	assert.False(t, Signal{Direction: Bullish, Confidence: 0}.Usable())
	assert.False(t, Signal{Direction: Bullish, Confidence: 1.2}.Usable())
	assert.False(t, Signal{Confidence: 0.5}.Usable())
}

func TestJobResult_MetaStatus(t *testing.T) {
	var nilResult *JobResult
	assert.Equal(t, RunStatus(""), nilResult.MetaStatus())
	assert.Equal(t, RunStatus(""), (&JobResult{}).MetaStatus())
	assert.Equal(t, RunPartial, (&JobResult{Meta: &GenerationMeta{Status: RunPartial}}).MetaStatus())
}
