package patrol

import (
	"time"

	"ronda-svr/internal/geofence"
	"ronda-svr/internal/track"
)

type EventType string

const (
	EventPositionUpdated   EventType = "position_updated"
	EventCheckpointNearby  EventType = "checkpoint_nearby"
	EventCheckpointVisited EventType = "checkpoint_visited"
	EventSessionFinished   EventType = "session_finished"
	EventSessionCancelled  EventType = "session_cancelled"
)

// Event is the outbound envelope for everything a session emits. Exactly one
// of the optional payloads is set, matching Type.
type Event struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	GuardID   string    `json:"guard_id"`
	At        time.Time `json:"at"`

	Position *PositionPayload `json:"position,omitempty"`
	Nearby   *NearbyPayload   `json:"nearby,omitempty"`
	Visit    *geofence.Visit  `json:"visit,omitempty"`
	Summary  *Summary         `json:"summary,omitempty"`
	Reason   string           `json:"reason,omitempty"`
}

// PositionPayload carries the smoothed display position. Accepted is false
// when the underlying fix was rejected; the payload then repeats the last
// known good position so observers keep a continuous display.
type PositionPayload struct {
	Lat          float64 `json:"lat"`
	Lon          float64 `json:"lon"`
	HeadingDeg   float64 `json:"heading_deg"`
	VelocityMps  float64 `json:"velocity_mps"`
	Accepted     bool    `json:"accepted"`
	DisplayOnly  bool    `json:"display_only,omitempty"`
	RejectReason string  `json:"reject_reason,omitempty"`
}

// NearbyPayload is the informational proximity signal; confirmation still
// requires an explicit guard action.
type NearbyPayload struct {
	CheckpointID string  `json:"checkpoint_id"`
	Label        string  `json:"label"`
	DistanceM    float64 `json:"distance_m"`
}

// Summary is both the SessionFinished event payload and the persisted
// session record.
type Summary struct {
	SessionID           string                  `json:"sessionId"`
	GuardID             string                  `json:"guardId"`
	StartedAt           time.Time               `json:"startedAt"`
	FinishedAt          time.Time               `json:"finishedAt"`
	TotalDistanceMeters float64                 `json:"totalDistanceMeters"`
	ElapsedSeconds      float64                 `json:"elapsedSeconds"`
	VisitCount          int                     `json:"visitCount"`
	MandatoryRatio      float64                 `json:"mandatoryRatio"`
	Trajectory          []track.TrajectoryPoint `json:"trajectory"`
	Visits              []geofence.Visit        `json:"visits"`
	Status              string                  `json:"status"`
	Notes               string                  `json:"notes,omitempty"`
	CancelReason        string                  `json:"cancelReason,omitempty"`
}
