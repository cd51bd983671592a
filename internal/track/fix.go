// Package track turns the raw GPS stream of a handheld device into a
// validated trajectory: fix acceptance, display smoothing, heading smoothing
// and distance accumulation.
package track

import "time"

// Fix is one raw GPS sample as produced by the device. AccuracyMeters <= 0
// means the device did not report horizontal accuracy.
type Fix struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m,omitempty"`
	AltitudeMeters float64   `json:"altitude_m,omitempty"`
	SpeedMps       float64   `json:"speed_mps,omitempty"`
	CapturedAt     time.Time `json:"captured_at"`
}

// ValidatedFix is the output of the validator for one accepted fix.
// DisplayOnly marks a force-accepted fix: it may update the smoother and the
// broadcast position but never the trajectory or the distance total.
type ValidatedFix struct {
	Fix
	AcceptedAt  time.Time
	VelocityMps float64
	DisplayOnly bool
}

// TrajectoryPoint is one recorded point of the audited path.
type TrajectoryPoint struct {
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lng"`
	CapturedAt time.Time `json:"t"`
}
