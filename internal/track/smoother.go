package track

// Smoother keeps a bounded window of accepted positions and exposes a
// linearly-weighted average (newest sample weighs most). The smoothed value
// is for display and broadcast only; it never feeds the trajectory.
type Smoother struct {
	window []Fix
	size   int
}

func NewSmoother(windowSize int) *Smoother {
	if windowSize < 1 {
		windowSize = 4
	}
	return &Smoother{size: windowSize}
}

// Add pushes an accepted fix into the window, evicting the oldest entry once
// the window is full.
func (s *Smoother) Add(f Fix) {
	s.window = append(s.window, f)
	if len(s.window) > s.size {
		s.window = s.window[1:]
	}
}

// Position returns the weighted average position. ok is false until at least
// one fix has been added.
func (s *Smoother) Position() (lat, lon float64, ok bool) {
	n := len(s.window)
	if n == 0 {
		return 0, 0, false
	}

	// Linear weights 1..n, normalized so they sum to 1.
	totalWeight := float64(n*(n+1)) / 2
	for i, f := range s.window {
		w := float64(i+1) / totalWeight
		lat += f.Lat * w
		lon += f.Lon * w
	}
	return lat, lon, true
}

// Reset clears the window, used when a session ends.
func (s *Smoother) Reset() {
	s.window = s.window[:0]
}
