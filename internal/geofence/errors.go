package geofence

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrUnknownCheckpoint = errors.New("UNKNOWN_CHECKPOINT")
	ErrAlreadyVisited    = errors.New("CHECKPOINT_ALREADY_VISITED")
)

// OutOfRangeError reports a confirmation attempted outside the checkpoint's
// geofence, with the detail the UI needs to tell the guard how far off they
// are.
type OutOfRangeError struct {
	DistanceM float64
	RadiusM   float64
}

func (e *OutOfRangeError) Error() string {
	return fmt.Sprintf("OUT_OF_RANGE: %.1fm away, radius %.1fm", e.DistanceM, e.RadiusM)
}

// TooSoonError reports a confirmation blocked by the anti-fraud spacing rule.
type TooSoonError struct {
	Remaining time.Duration
}

func (e *TooSoonError) Error() string {
	return fmt.Sprintf("TOO_SOON: wait %.0fs", e.Remaining.Seconds())
}

func (e *TooSoonError) RemainingSeconds() int {
	secs := int(e.Remaining.Seconds())
	if secs < 1 && e.Remaining > 0 {
		return 1
	}
	return secs
}
