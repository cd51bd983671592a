// Package geofence decides checkpoint proximity and enforces the anti-fraud
// spacing rule between consecutive checkpoint confirmations.
package geofence

import (
	"time"

	"ronda-svr/internal/geo"
)

const (
	// DefaultRadiusMeters is used when the catalog stores no radius.
	DefaultRadiusMeters = 30
	MinRadiusMeters     = 10
	MaxRadiusMeters     = 100
)

// Checkpoint is one point of interest the guard must visit. Read-only for
// the lifetime of a session.
type Checkpoint struct {
	ID        string  `json:"id"`
	Lat       float64 `json:"lat"`
	Lon       float64 `json:"lon"`
	RadiusM   float64 `json:"radius_m"`
	Mandatory bool    `json:"mandatory"`
	Label     string  `json:"label"`
}

// Visit records one confirmed checkpoint.
type Visit struct {
	CheckpointID string    `json:"checkpointId"`
	DistanceM    float64   `json:"distance"`
	CapturedAt   time.Time `json:"t"`
	Sequence     int       `json:"sequence"`
}

// Candidate is the nearest unvisited checkpoint whose geofence contains the
// current position.
type Candidate struct {
	Checkpoint Checkpoint
	DistanceM  float64
}

// ClampRadius normalizes a stored radius into the accepted band.
func ClampRadius(radiusM float64) float64 {
	if radiusM == 0 {
		return DefaultRadiusMeters
	}
	if radiusM < MinRadiusMeters {
		return MinRadiusMeters
	}
	if radiusM > MaxRadiusMeters {
		return MaxRadiusMeters
	}
	return radiusM
}

// Engine evaluates geofence membership against a checkpoint catalog.
type Engine struct {
	minSpacing time.Duration
}

func NewEngine(minSpacing time.Duration) *Engine {
	return &Engine{minSpacing: minSpacing}
}

// Evaluate returns the nearest unvisited in-radius checkpoint, or nil when no
// geofence contains the position (not an error). Ties on distance go to the
// lowest checkpoint id so the result is deterministic. When a candidate
// exists but the spacing rule still blocks a confirmation, a *TooSoonError
// carrying the remaining wait is returned alongside a nil candidate.
func (e *Engine) Evaluate(lat, lon float64, catalog []Checkpoint, visited map[string]bool, lastVisitAt *time.Time, now time.Time) (*Candidate, error) {
	best := e.nearestInRange(lat, lon, catalog, visited)
	if best == nil {
		return nil, nil
	}

	if remaining := e.spacingRemaining(lastVisitAt, now); remaining > 0 {
		return nil, &TooSoonError{Remaining: remaining}
	}
	return best, nil
}

// Confirm re-runs the geofence checks against one explicitly chosen
// checkpoint. It is the only path that produces a Visit; a guard action is
// required, proximity alone never confirms.
func (e *Engine) Confirm(checkpointID string, lat, lon float64, catalog []Checkpoint, visited map[string]bool, lastVisitAt *time.Time, now time.Time, sequence int) (Visit, error) {
	var target *Checkpoint
	for i := range catalog {
		if catalog[i].ID == checkpointID {
			target = &catalog[i]
			break
		}
	}
	if target == nil {
		return Visit{}, ErrUnknownCheckpoint
	}
	if visited[checkpointID] {
		return Visit{}, ErrAlreadyVisited
	}

	dist := geo.DistanceMeters(lat, lon, target.Lat, target.Lon)
	if dist > target.RadiusM {
		return Visit{}, &OutOfRangeError{DistanceM: dist, RadiusM: target.RadiusM}
	}

	if remaining := e.spacingRemaining(lastVisitAt, now); remaining > 0 {
		return Visit{}, &TooSoonError{Remaining: remaining}
	}

	return Visit{
		CheckpointID: checkpointID,
		DistanceM:    dist,
		CapturedAt:   now,
		Sequence:     sequence,
	}, nil
}

func (e *Engine) nearestInRange(lat, lon float64, catalog []Checkpoint, visited map[string]bool) *Candidate {
	var best *Candidate
	for i := range catalog {
		cp := catalog[i]
		if visited[cp.ID] {
			continue
		}
		dist := geo.DistanceMeters(lat, lon, cp.Lat, cp.Lon)
		if dist > cp.RadiusM {
			continue
		}
		if best == nil || dist < best.DistanceM ||
			(dist == best.DistanceM && cp.ID < best.Checkpoint.ID) {
			best = &Candidate{Checkpoint: cp, DistanceM: dist}
		}
	}
	return best
}

func (e *Engine) spacingRemaining(lastVisitAt *time.Time, now time.Time) time.Duration {
	if lastVisitAt == nil {
		return 0
	}
	elapsed := now.Sub(*lastVisitAt)
	if elapsed >= e.minSpacing {
		return 0
	}
	return e.minSpacing - elapsed
}
