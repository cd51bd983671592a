package track

import "ronda-svr/internal/geo"

// HeadingTracker smooths a magnetometer heading with shortest-arc circular
// interpolation, avoiding the 359->0 snap of naive linear smoothing.
type HeadingTracker struct {
	current float64
	seeded  bool
	factor  float64
}

func NewHeadingTracker(smoothingFactor float64) *HeadingTracker {
	if smoothingFactor <= 0 || smoothingFactor > 1 {
		smoothingFactor = 0.15
	}
	return &HeadingTracker{factor: smoothingFactor}
}

// Smooth feeds one heading sample in degrees and returns the smoothed value
// in [0, 360). The first sample is adopted directly.
func (h *HeadingTracker) Smooth(headingDeg float64) float64 {
	target := geo.NormalizeDegrees(headingDeg)
	if !h.seeded {
		h.current = target
		h.seeded = true
		return h.current
	}

	delta := geo.ShortestAngularDelta(h.current, target)
	h.current = geo.NormalizeDegrees(h.current + delta*h.factor)
	return h.current
}

// Current returns the last smoothed heading; ok is false before any sample.
func (h *HeadingTracker) Current() (float64, bool) {
	return h.current, h.seeded
}

// Reset forgets the heading state, used when a session ends.
func (h *HeadingTracker) Reset() {
	h.current = 0
	h.seeded = false
}
