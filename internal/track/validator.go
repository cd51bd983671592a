package track

import (
	"time"

	"ronda-svr/internal/config"
	"ronda-svr/internal/geo"
)

// RejectReason identifies why a fix was dropped. The empty value means the
// fix was accepted.
type RejectReason string

const (
	RejectNone             RejectReason = ""
	RejectInvalidCoords    RejectReason = "INVALID_COORDINATES"
	RejectPrecisionTooLow  RejectReason = "PRECISION_TOO_LOW"
	RejectIntervalTooShort RejectReason = "INTERVAL_TOO_SHORT"
	RejectTeleportDistance RejectReason = "TELEPORT_DISTANCE"
	RejectTeleportVelocity RejectReason = "TELEPORT_VELOCITY"
	RejectImpossibleAccel  RejectReason = "IMPOSSIBLE_ACCELERATION"
)

// Anomalous reports whether the rejection is an anti-fraud anomaly (as
// opposed to a plain low-quality input) and should hit the audit trail.
func (r RejectReason) Anomalous() bool {
	switch r {
	case RejectTeleportDistance, RejectTeleportVelocity, RejectImpossibleAccel:
		return true
	}
	return false
}

// accuracySentinel stands in for a missing accuracy reading. It is far above
// any usable threshold so such fixes only pass when filtering is disabled.
const accuracySentinel = 9999.0

// Validator applies the anti-noise and anti-teleport rules to one candidate
// fix. It is a pure decision function: all state (last accepted fix, last
// velocity, rejection streak) lives with the caller.
type Validator struct {
	cfg config.ValidatorConfig
}

func NewValidator(cfg config.ValidatorConfig) *Validator {
	return &Validator{cfg: cfg}
}

// Validate applies the rules in order. On rejection the zero ValidatedFix is
// returned together with the reason.
func (v *Validator) Validate(candidate Fix, last *ValidatedFix, lastVelocityMps float64, now time.Time) (ValidatedFix, RejectReason) {
	if !geo.CoordsValid(candidate.Lat, candidate.Lon) {
		return ValidatedFix{}, RejectInvalidCoords
	}

	accuracy := candidate.AccuracyMeters
	if accuracy <= 0 {
		accuracy = accuracySentinel
	}
	if accuracy > v.cfg.MaxPrecisionMeters {
		return ValidatedFix{}, RejectPrecisionTooLow
	}

	// First point of the session is accepted unconditionally.
	if last == nil {
		return ValidatedFix{Fix: candidate, AcceptedAt: now}, RejectNone
	}

	dt := candidate.CapturedAt.Sub(last.CapturedAt)
	if dt < v.cfg.MinInterval {
		return ValidatedFix{}, RejectIntervalTooShort
	}

	dist := geo.DistanceMeters(last.Lat, last.Lon, candidate.Lat, candidate.Lon)
	if dist > v.cfg.MaxJumpMeters {
		return ValidatedFix{}, RejectTeleportDistance
	}

	dtSec := dt.Seconds()
	velocity := dist / dtSec
	if velocity > v.cfg.MaxVelocityMps {
		return ValidatedFix{}, RejectTeleportVelocity
	}

	if accel := abs(velocity-lastVelocityMps) / dtSec; accel > v.cfg.MaxAccelerationMps2 {
		return ValidatedFix{}, RejectImpossibleAccel
	}

	return ValidatedFix{
		Fix:         candidate,
		AcceptedAt:  now,
		VelocityMps: velocity,
	}, RejectNone
}

// ForceAccept builds a display-only ValidatedFix out of a candidate that
// failed validation. Used by the session after a rejection streak so the
// guard's display does not freeze; the trajectory stays untouched.
func (v *Validator) ForceAccept(candidate Fix, lastVelocityMps float64, now time.Time) ValidatedFix {
	return ValidatedFix{
		Fix:         candidate,
		AcceptedAt:  now,
		VelocityMps: lastVelocityMps,
		DisplayOnly: true,
	}
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
