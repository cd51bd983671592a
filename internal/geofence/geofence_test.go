package geofence

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func testCatalog() []Checkpoint {
	return []Checkpoint{
		{ID: "cp-a", Lat: 0, Lon: 0, RadiusM: 30, Mandatory: true, Label: "north gate"},
		{ID: "cp-b", Lat: 0, Lon: 0.0002, RadiusM: 30, Mandatory: true, Label: "warehouse"},
		{ID: "cp-c", Lat: 0.01, Lon: 0.01, RadiusM: 30, Mandatory: false, Label: "parking"},
	}
}

func TestClampRadius(t *testing.T) {
	assert.Equal(t, float64(DefaultRadiusMeters), ClampRadius(0))
	assert.Equal(t, float64(MinRadiusMeters), ClampRadius(5))
	assert.Equal(t, float64(MaxRadiusMeters), ClampRadius(500))
	assert.Equal(t, 45.0, ClampRadius(45))
}

func TestEvaluateNoFenceContains(t *testing.T) {
	e := NewEngine(30 * time.Second)

	cand, err := e.Evaluate(0.005, 0.005, testCatalog(), map[string]bool{}, nil, testNow)
	require.NoError(t, err)
	assert.Nil(t, cand)
}

func TestEvaluateNearestWins(t *testing.T) {
	e := NewEngine(30 * time.Second)

	// just east of cp-a, still inside both cp-a and cp-b fences
	cand, err := e.Evaluate(0, 0.00008, testCatalog(), map[string]bool{}, nil, testNow)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "cp-a", cand.Checkpoint.ID)
	assert.InDelta(t, 8.9, cand.DistanceM, 0.2)
}

func TestEvaluateTieBreakIsDeterministic(t *testing.T) {
	e := NewEngine(30 * time.Second)
	tied := []Checkpoint{
		{ID: "cp-b", Lat: 0.0001, Lon: 0, RadiusM: 30},
		{ID: "cp-a", Lat: -0.0001, Lon: 0, RadiusM: 30},
	}

	// equidistant from both; the lower id must win regardless of order
	for i := 0; i < 10; i++ {
		cand, err := e.Evaluate(0, 0, tied, map[string]bool{}, nil, testNow)
		require.NoError(t, err)
		require.NotNil(t, cand)
		assert.Equal(t, "cp-a", cand.Checkpoint.ID)
	}
}

func TestEvaluateSkipsVisited(t *testing.T) {
	e := NewEngine(30 * time.Second)

	cand, err := e.Evaluate(0, 0.00008, testCatalog(), map[string]bool{"cp-a": true}, nil, testNow)
	require.NoError(t, err)
	require.NotNil(t, cand)
	assert.Equal(t, "cp-b", cand.Checkpoint.ID)
}

func TestEvaluateSpacingBlocksCandidate(t *testing.T) {
	e := NewEngine(30 * time.Second)
	lastVisit := testNow.Add(-10 * time.Second)

	cand, err := e.Evaluate(0, 0, testCatalog(), map[string]bool{}, &lastVisit, testNow)
	assert.Nil(t, cand)

	var tooSoon *TooSoonError
	require.ErrorAs(t, err, &tooSoon)
	assert.Equal(t, 20*time.Second, tooSoon.Remaining)
}

func TestConfirmSuccess(t *testing.T) {
	e := NewEngine(30 * time.Second)

	// guard stands ~16.7m east of cp-a, inside the 30m fence
	visit, err := e.Confirm("cp-a", 0, 0.00015, testCatalog(), map[string]bool{}, nil, testNow, 1)
	require.NoError(t, err)
	assert.Equal(t, "cp-a", visit.CheckpointID)
	assert.InDelta(t, 16.7, visit.DistanceM, 0.1)
	assert.Equal(t, testNow, visit.CapturedAt)
	assert.Equal(t, 1, visit.Sequence)
}

func TestConfirmUnknownCheckpoint(t *testing.T) {
	e := NewEngine(30 * time.Second)

	_, err := e.Confirm("cp-z", 0, 0, testCatalog(), map[string]bool{}, nil, testNow, 1)
	assert.True(t, errors.Is(err, ErrUnknownCheckpoint))
}

func TestConfirmAlreadyVisited(t *testing.T) {
	e := NewEngine(30 * time.Second)

	_, err := e.Confirm("cp-a", 0, 0, testCatalog(), map[string]bool{"cp-a": true}, nil, testNow, 2)
	assert.True(t, errors.Is(err, ErrAlreadyVisited))
}

func TestConfirmOutOfRange(t *testing.T) {
	e := NewEngine(30 * time.Second)

	// ~55.6m away from cp-a
	_, err := e.Confirm("cp-a", 0, 0.0005, testCatalog(), map[string]bool{}, nil, testNow, 1)

	var outOfRange *OutOfRangeError
	require.ErrorAs(t, err, &outOfRange)
	assert.InDelta(t, 55.6, outOfRange.DistanceM, 0.2)
	assert.Equal(t, 30.0, outOfRange.RadiusM)
}

func TestConfirmSpacingAppliesAcrossCheckpoints(t *testing.T) {
	e := NewEngine(30 * time.Second)
	lastVisit := testNow.Add(-10 * time.Second)

	// cp-b was never visited, but the previous confirmation was 10s ago
	_, err := e.Confirm("cp-b", 0, 0.0002, testCatalog(), map[string]bool{"cp-a": true}, &lastVisit, testNow, 2)

	var tooSoon *TooSoonError
	require.ErrorAs(t, err, &tooSoon)
	assert.Equal(t, 20, tooSoon.RemainingSeconds())

	// once the window passed, the confirmation goes through
	visit, err := e.Confirm("cp-b", 0, 0.0002, testCatalog(), map[string]bool{"cp-a": true}, &lastVisit, testNow.Add(25*time.Second), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, visit.Sequence)
}

func TestTooSoonRemainingSecondsRoundsUp(t *testing.T) {
	err := &TooSoonError{Remaining: 300 * time.Millisecond}
	assert.Equal(t, 1, err.RemainingSeconds())

	err = &TooSoonError{Remaining: 29 * time.Second}
	assert.Equal(t, 29, err.RemainingSeconds())
}
