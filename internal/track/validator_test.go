package track

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ronda-svr/internal/config"
)

var testBase = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func testValidatorConfig() config.ValidatorConfig {
	return config.ValidatorConfig{
		MaxPrecisionMeters:  50,
		MinInterval:         100 * time.Millisecond,
		MaxJumpMeters:       150,
		MaxVelocityMps:      20,
		MaxAccelerationMps2: 5,
		ForceAcceptStreak:   10,
	}
}

func fixAt(lat, lon float64, capturedAt time.Time) Fix {
	return Fix{Lat: lat, Lon: lon, AccuracyMeters: 5, CapturedAt: capturedAt}
}

func accepted(t *testing.T, v *Validator, f Fix, last *ValidatedFix, lastVel float64) ValidatedFix {
	t.Helper()
	vf, reason := v.Validate(f, last, lastVel, f.CapturedAt)
	require.Equal(t, RejectNone, reason)
	return vf
}

func TestValidateFirstFixAcceptedUnconditionally(t *testing.T) {
	v := NewValidator(testValidatorConfig())

	vf, reason := v.Validate(fixAt(19.4326, -99.1332, testBase), nil, 0, testBase)
	require.Equal(t, RejectNone, reason)
	assert.Equal(t, 19.4326, vf.Lat)
	assert.Equal(t, testBase, vf.AcceptedAt)
	assert.Zero(t, vf.VelocityMps)
	assert.False(t, vf.DisplayOnly)
}

func TestValidateInvalidCoordinates(t *testing.T) {
	v := NewValidator(testValidatorConfig())

	_, reason := v.Validate(fixAt(math.NaN(), 0, testBase), nil, 0, testBase)
	assert.Equal(t, RejectInvalidCoords, reason)

	_, reason = v.Validate(fixAt(91, 0, testBase), nil, 0, testBase)
	assert.Equal(t, RejectInvalidCoords, reason)
}

func TestValidatePrecisionTooLow(t *testing.T) {
	v := NewValidator(testValidatorConfig())

	// accuracy above the threshold, even for the first fix
	f := fixAt(19.4326, -99.1332, testBase)
	f.AccuracyMeters = 60
	_, reason := v.Validate(f, nil, 0, testBase)
	assert.Equal(t, RejectPrecisionTooLow, reason)

	// missing accuracy gets the sentinel and is rejected too
	f.AccuracyMeters = 0
	_, reason = v.Validate(f, nil, 0, testBase)
	assert.Equal(t, RejectPrecisionTooLow, reason)
}

func TestValidateIntervalTooShort(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)

	_, reason := v.Validate(fixAt(0, 0.000001, testBase.Add(50*time.Millisecond)), &last, 0, testBase)
	assert.Equal(t, RejectIntervalTooShort, reason)
}

func TestValidateTeleportDistance(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)

	// ~222m in 60s: slow enough, but past the jump ceiling
	_, reason := v.Validate(fixAt(0.002, 0, testBase.Add(time.Minute)), &last, 0, testBase)
	assert.Equal(t, RejectTeleportDistance, reason)
}

func TestValidateTeleportVelocity(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)

	// ~30m in 1s: inside the jump ceiling, above the velocity ceiling
	_, reason := v.Validate(fixAt(0, 0.00027, testBase.Add(time.Second)), &last, 0, testBase)
	assert.Equal(t, RejectTeleportVelocity, reason)
}

func TestValidateImpossibleAcceleration(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)

	// ~10m in 1s from a standstill: 10 m/s2, twice the ceiling
	_, reason := v.Validate(fixAt(0.00009, 0, testBase.Add(time.Second)), &last, 0, testBase)
	assert.Equal(t, RejectImpossibleAccel, reason)
}

func TestValidateAcceptedComputesVelocity(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)

	// ~10m in 5s at a prior velocity of 2 m/s: steady walking pace
	vf, reason := v.Validate(fixAt(0.00009, 0, testBase.Add(5*time.Second)), &last, 2, testBase.Add(5*time.Second))
	require.Equal(t, RejectNone, reason)
	assert.InDelta(t, 2.0, vf.VelocityMps, 0.1)
}

func TestValidateIsPure(t *testing.T) {
	v := NewValidator(testValidatorConfig())
	last := accepted(t, v, fixAt(0, 0, testBase), nil, 0)
	bad := fixAt(0.01, 0, testBase.Add(time.Second))

	_, first := v.Validate(bad, &last, 0, testBase)
	_, second := v.Validate(bad, &last, 0, testBase)
	assert.Equal(t, first, second)
	assert.Equal(t, RejectTeleportDistance, first)
}

func TestForceAcceptIsDisplayOnly(t *testing.T) {
	v := NewValidator(testValidatorConfig())

	vf := v.ForceAccept(fixAt(0.01, 0, testBase), 1.5, testBase)
	assert.True(t, vf.DisplayOnly)
	assert.Equal(t, 1.5, vf.VelocityMps)
	assert.Equal(t, 0.01, vf.Lat)
}

func TestRejectReasonAnomalous(t *testing.T) {
	assert.True(t, RejectTeleportDistance.Anomalous())
	assert.True(t, RejectTeleportVelocity.Anomalous())
	assert.True(t, RejectImpossibleAccel.Anomalous())

	assert.False(t, RejectNone.Anomalous())
	assert.False(t, RejectInvalidCoords.Anomalous())
	assert.False(t, RejectPrecisionTooLow.Anomalous())
	assert.False(t, RejectIntervalTooShort.Anomalous())
}
