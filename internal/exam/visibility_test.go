package exam

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResultVisibility(t *testing.T) {
	v, err := ParseResultVisibility("")
	require.NoError(t, err)
	assert.Equal(t, VisibleOnGraded, v.Mode)

	v, err = ParseResultVisibility("after:2024-03-05T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, VisibleAfter, v.Mode)
	assert.Equal(t, time.Date(2024, 3, 5, 8, 0, 0, 0, time.UTC), v.After)
	assert.Equal(t, "after:2024-03-05T08:00:00Z", v.String())

	_, err = ParseResultVisibility("after:tomorrow")
	require.Error(t, err)
	_, err = ParseResultVisibility("sometimes")
	require.Error(t, err)
}

func TestResultVisibilityJSON(t *testing.T) {
	var ex struct {
		V ResultVisibility `json:"v"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"v":"immediate"}`), &ex))
	assert.Equal(t, VisibleImmediately, ex.V.Mode)
	b, err := json.Marshal(ex)
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":"immediate"}`, string(b))
}

func TestCanViewResults(t *testing.T) {
	release := t0.Add(time.Hour)
	submitted := Attempt{Status: StatusSubmitted}
	graded := Attempt{Status: StatusGraded}

	assert.False(t, CanViewResults(ResultVisibility{Mode: VisibleImmediately}, Attempt{Status: StatusInProgress}, t0))
	assert.True(t, CanViewResults(ResultVisibility{Mode: VisibleImmediately}, submitted, t0))

	after := ResultVisibility{Mode: VisibleAfter, After: release}
	assert.False(t, CanViewResults(after, submitted, t0))
	assert.True(t, CanViewResults(after, submitted, release))
	assert.True(t, CanViewResults(after, graded, t0))

	onGraded := ResultVisibility{Mode: VisibleOnGraded}
	assert.False(t, CanViewResults(onGraded, submitted, t0))
	assert.True(t, CanViewResults(onGraded, graded, t0))
	assert.True(t, CanViewResults(onGraded, Attempt{Status: StatusArchived}, t0))
}

func TestStatusTransitions(t *testing.T) {
	assert.True(t, CanTransition(StatusInProgress, StatusSubmitted))
	assert.True(t, CanTransition(StatusSubmitted, StatusGraded))
	assert.True(t, CanTransition(StatusGraded, StatusGraded))
	assert.True(t, CanTransition(StatusGraded, StatusArchived))
	assert.False(t, CanTransition(StatusInProgress, StatusGraded))
	assert.False(t, CanTransition(StatusSubmitted, StatusInProgress))
	assert.False(t, CanTransition(StatusArchived, StatusGraded))
	assert.ElementsMatch(t, []AttemptStatus{StatusSubmitted, StatusGraded}, predecessors(StatusGraded))
}
