package track

import "ronda-svr/internal/geo"

// Trajectory accumulates the audited path of one patrol. A validated fix is
// recorded only when it moved at least minRecordDistance from the last stored
// point, so static GPS drift does not inflate the distance total. A segment
// longer than maxSegment is a discontinuity: the stream re-anchored after a
// rejection streak, the point is kept but the gap never counts as walked
// distance.
type Trajectory struct {
	points            []TrajectoryPoint
	totalDistance     float64
	minRecordDistance float64
	maxSegment        float64
}

func NewTrajectory(minRecordDistanceMeters, maxSegmentMeters float64) *Trajectory {
	return &Trajectory{
		minRecordDistance: minRecordDistanceMeters,
		maxSegment:        maxSegmentMeters,
	}
}

// Seed stores the first point of the session unconditionally.
func (t *Trajectory) Seed(vf ValidatedFix) {
	t.points = append(t.points[:0], TrajectoryPoint{
		Lat:        vf.Lat,
		Lon:        vf.Lon,
		CapturedAt: vf.CapturedAt,
	})
	t.totalDistance = 0
}

// Append records the fix if it cleared the minimum displacement. It returns
// true when a point was stored. Display-only fixes are never recorded.
func (t *Trajectory) Append(vf ValidatedFix) bool {
	if vf.DisplayOnly {
		return false
	}
	if len(t.points) == 0 {
		t.Seed(vf)
		return true
	}

	last := t.points[len(t.points)-1]
	segment := geo.DistanceMeters(last.Lat, last.Lon, vf.Lat, vf.Lon)
	if segment < t.minRecordDistance {
		return false
	}

	t.points = append(t.points, TrajectoryPoint{
		Lat:        vf.Lat,
		Lon:        vf.Lon,
		CapturedAt: vf.CapturedAt,
	})
	if t.maxSegment > 0 && segment > t.maxSegment {
		return true
	}
	t.totalDistance += segment
	return true
}

// Points returns the recorded path. The slice is owned by the trajectory;
// callers must not mutate it.
func (t *Trajectory) Points() []TrajectoryPoint {
	return t.points
}

func (t *Trajectory) TotalDistanceMeters() float64 {
	return t.totalDistance
}

// Len returns the number of recorded points.
func (t *Trajectory) Len() int {
	return len(t.points)
}

// Reset clears the path and the distance total.
func (t *Trajectory) Reset() {
	t.points = nil
	t.totalDistance = 0
}
