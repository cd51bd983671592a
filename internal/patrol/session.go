package patrol

import (
	"log/slog"
	"time"

	"ronda-svr/internal/config"
	"ronda-svr/internal/geofence"
	"ronda-svr/internal/observability"
	"ronda-svr/internal/track"
)

type State string

const (
	StateInProgress State = "in_progress"
	StateFinished   State = "finished"
	StateCancelled  State = "cancelled"
)

// Session is the state machine for one guard's live patrol. All mutable
// state is owned by the session's worker goroutine; callers interact through
// serialized commands, so no locking is needed inside.
type Session struct {
	ID      string
	GuardID string
	AreaID  string

	cfg   config.Config
	log   *slog.Logger
	clock func() time.Time

	validator  *track.Validator
	smoother   *track.Smoother
	heading    *track.HeadingTracker
	trajectory *track.Trajectory
	fence      *geofence.Engine
	catalog    []geofence.Checkpoint

	state      State
	startedAt  time.Time
	finishedAt time.Time

	visits      []geofence.Visit
	visited     map[string]bool
	lastVisitAt *time.Time

	lastAccepted *track.ValidatedFix
	lastVelocity float64
	rejectStreak int

	emit    func(Event)
	auditor Auditor

	cmds chan func()
	done chan struct{}
}

// Snapshot is a read-only view of the session for the query API.
type Snapshot struct {
	SessionID           string    `json:"session_id"`
	GuardID             string    `json:"guard_id"`
	State               State     `json:"state"`
	StartedAt           time.Time `json:"started_at"`
	Lat                 float64   `json:"lat"`
	Lon                 float64   `json:"lon"`
	HeadingDeg          float64   `json:"heading_deg"`
	TotalDistanceMeters float64   `json:"total_distance_m"`
	TrajectoryPoints    int       `json:"trajectory_points"`
	VisitCount          int       `json:"visit_count"`
}

func newSession(id, guardID, areaID string, cfg config.Config, log *slog.Logger,
	clock func() time.Time, catalog []geofence.Checkpoint, emit func(Event), auditor Auditor) *Session {
	return &Session{
		ID:         id,
		GuardID:    guardID,
		AreaID:     areaID,
		cfg:        cfg,
		log:        log.With("component", "session", "session_id", id, "guard_id", guardID),
		clock:      clock,
		validator:  track.NewValidator(cfg.Validator),
		smoother:   track.NewSmoother(cfg.Smoother.WindowSize),
		heading:    track.NewHeadingTracker(cfg.Heading.SmoothingFactor),
		trajectory: track.NewTrajectory(cfg.Trajectory.MinRecordDistanceMeters, cfg.Validator.MaxJumpMeters),
		fence:      geofence.NewEngine(cfg.Geofence.MinSpacing),
		catalog:    catalog,
		state:      StateInProgress,
		visited:    make(map[string]bool),
		emit:       emit,
		auditor:    auditor,
		cmds:       make(chan func(), 32),
		done:       make(chan struct{}),
	}
}

// start seeds the session with the initial fix and launches the worker.
func (s *Session) start(initial track.ValidatedFix) {
	s.startedAt = initial.AcceptedAt
	s.trajectory.Seed(initial)
	s.smoother.Add(initial.Fix)
	s.lastAccepted = &initial
	go s.run()
}

// run is the single writer for all session state. The select may still drain
// queued commands after done closes; every closure checks the state guard
// first, so a terminal session never mutates again.
func (s *Session) run() {
	for {
		select {
		case <-s.done:
			return
		case cmd := <-s.cmds:
			cmd()
		}
	}
}

// do serializes fn into the worker. It fails fast once the session reached a
// terminal state.
func (s *Session) do(fn func()) error {
	select {
	case <-s.done:
		return ErrSessionNotActive
	case s.cmds <- fn:
		return nil
	}
}

// await runs fn in the worker and waits for its reply. If the session is
// torn down before fn runs, the caller gets ErrSessionNotActive instead of
// waiting forever.
func await[T any](s *Session, fn func() (T, error)) (T, error) {
	type reply struct {
		val T
		err error
	}
	ch := make(chan reply, 1)
	if err := s.do(func() {
		v, err := fn()
		ch <- reply{v, err}
	}); err != nil {
		var zero T
		return zero, err
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-s.done:
		// the command may still have run right before teardown
		select {
		case r := <-ch:
			return r.val, r.err
		default:
			var zero T
			return zero, ErrSessionNotActive
		}
	}
}

// Ingest feeds one raw fix into the session worker.
func (s *Session) Ingest(f track.Fix) error {
	_, err := await(s, func() (struct{}, error) {
		if s.state != StateInProgress {
			return struct{}{}, ErrSessionNotActive
		}
		s.ingest(f)
		return struct{}{}, nil
	})
	return err
}

// IngestHeading feeds one magnetometer sample.
func (s *Session) IngestHeading(headingDeg float64) error {
	return s.do(func() {
		if s.state != StateInProgress {
			return
		}
		s.heading.Smooth(headingDeg)
	})
}

// ConfirmCheckpoint validates the explicit guard action against the chosen
// checkpoint.
func (s *Session) ConfirmCheckpoint(checkpointID string, f track.Fix) (geofence.Visit, error) {
	return await(s, func() (geofence.Visit, error) {
		if s.state != StateInProgress {
			return geofence.Visit{}, ErrSessionNotActive
		}
		return s.confirm(checkpointID, f)
	})
}

// Finish ingests the final fix and transitions to Finished.
func (s *Session) Finish(finalFix track.Fix, notes string) (Summary, error) {
	return await(s, func() (Summary, error) {
		if s.state != StateInProgress {
			return Summary{}, ErrSessionNotActive
		}
		s.ingest(finalFix)
		s.state = StateFinished
		s.finishedAt = s.clock()
		summary := s.summary(notes)
		s.emit(Event{
			Type:      EventSessionFinished,
			SessionID: s.ID,
			GuardID:   s.GuardID,
			At:        s.finishedAt,
			Summary:   &summary,
		})
		close(s.done)
		return summary, nil
	})
}

// Cancel transitions to Cancelled. Trajectory and visits are kept for audit
// in the returned summary; the session itself stops accepting mutations.
func (s *Session) Cancel(reason string) (Summary, error) {
	return await(s, func() (Summary, error) {
		if s.state != StateInProgress {
			return Summary{}, ErrSessionNotActive
		}
		s.state = StateCancelled
		s.finishedAt = s.clock()
		summary := s.summary("")
		summary.CancelReason = reason
		s.emit(Event{
			Type:      EventSessionCancelled,
			SessionID: s.ID,
			GuardID:   s.GuardID,
			At:        s.finishedAt,
			Summary:   &summary,
			Reason:    reason,
		})
		close(s.done)
		return summary, nil
	})
}

// Snapshot returns a consistent read of the live session.
func (s *Session) Snapshot() (Snapshot, error) {
	return await(s, func() (Snapshot, error) {
		lat, lon, _ := s.smoother.Position()
		heading, _ := s.heading.Current()
		return Snapshot{
			SessionID:           s.ID,
			GuardID:             s.GuardID,
			State:               s.state,
			StartedAt:           s.startedAt,
			Lat:                 lat,
			Lon:                 lon,
			HeadingDeg:          heading,
			TotalDistanceMeters: s.trajectory.TotalDistanceMeters(),
			TrajectoryPoints:    s.trajectory.Len(),
			VisitCount:          len(s.visits),
		}, nil
	})
}

// ingest runs the full validation pipeline for one fix. Always emits a
// PositionUpdated event so the display stays continuous; only validated
// fixes touch the trajectory and the distance total.
func (s *Session) ingest(f track.Fix) {
	started := time.Now()
	defer observability.ObserveIngestLatency(started)
	observability.FixesReceived.Inc()

	now := s.clock()
	vf, reason := s.validator.Validate(f, s.lastAccepted, s.lastVelocity, now)

	if reason != track.RejectNone {
		observability.FixesRejected.WithLabelValues(string(reason)).Inc()
		s.rejectStreak++

		if reason.Anomalous() {
			s.log.Warn("anomalous fix rejected",
				"reason", string(reason), "lat", f.Lat, "lon", f.Lon,
				"captured_at", f.CapturedAt, "streak", s.rejectStreak)
			if s.auditor != nil {
				s.auditor.Rejection(s.ID, s.GuardID, f, reason, now)
			}
		}

		if s.cfg.Validator.ForceAcceptStreak > 0 && s.rejectStreak >= s.cfg.Validator.ForceAcceptStreak {
			// Escape valve: after a long rejection streak the display
			// would freeze. The forced fix re-anchors validation and the
			// smoother but never enters the audited trajectory.
			vf = s.validator.ForceAccept(f, s.lastVelocity, now)
			s.rejectStreak = 0
			observability.ForceAccepts.Inc()
			s.log.Warn("force-accepted fix after rejection streak", "lat", f.Lat, "lon", f.Lon)
		} else {
			s.emitPosition(false, string(reason), false)
			return
		}
	} else {
		s.rejectStreak = 0
		observability.FixesAccepted.Inc()
	}

	s.smoother.Add(vf.Fix)
	s.lastAccepted = &vf
	if !vf.DisplayOnly {
		s.lastVelocity = vf.VelocityMps
		s.trajectory.Append(vf)
		s.checkNearby(vf, now)
	}

	s.emitPosition(true, "", vf.DisplayOnly)
}

func (s *Session) checkNearby(vf track.ValidatedFix, now time.Time) {
	cand, err := s.fence.Evaluate(vf.Lat, vf.Lon, s.catalog, s.visited, s.lastVisitAt, now)
	if err != nil || cand == nil {
		return
	}
	s.emit(Event{
		Type:      EventCheckpointNearby,
		SessionID: s.ID,
		GuardID:   s.GuardID,
		At:        now,
		Nearby: &NearbyPayload{
			CheckpointID: cand.Checkpoint.ID,
			Label:        cand.Checkpoint.Label,
			DistanceM:    cand.DistanceM,
		},
	})
}

func (s *Session) confirm(checkpointID string, f track.Fix) (geofence.Visit, error) {
	now := s.clock()
	visit, err := s.fence.Confirm(checkpointID, f.Lat, f.Lon, s.catalog, s.visited,
		s.lastVisitAt, now, len(s.visits)+1)
	if err != nil {
		return geofence.Visit{}, err
	}

	s.visits = append(s.visits, visit)
	s.visited[visit.CheckpointID] = true
	visitedAt := visit.CapturedAt
	s.lastVisitAt = &visitedAt

	observability.CheckpointVisits.Inc()
	s.log.Info("checkpoint visited", "checkpoint_id", visit.CheckpointID,
		"distance_m", visit.DistanceM, "sequence", visit.Sequence)

	s.emit(Event{
		Type:      EventCheckpointVisited,
		SessionID: s.ID,
		GuardID:   s.GuardID,
		At:        now,
		Visit:     &visit,
	})
	return visit, nil
}

func (s *Session) emitPosition(accepted bool, rejectReason string, displayOnly bool) {
	lat, lon, ok := s.smoother.Position()
	if !ok {
		return
	}
	heading, _ := s.heading.Current()

	var velocity float64
	if s.lastAccepted != nil {
		velocity = s.lastAccepted.VelocityMps
	}

	s.emit(Event{
		Type:      EventPositionUpdated,
		SessionID: s.ID,
		GuardID:   s.GuardID,
		At:        s.clock(),
		Position: &PositionPayload{
			Lat:          lat,
			Lon:          lon,
			HeadingDeg:   heading,
			VelocityMps:  velocity,
			Accepted:     accepted,
			DisplayOnly:  displayOnly,
			RejectReason: rejectReason,
		},
	})
}

func (s *Session) summary(notes string) Summary {
	var mandatoryTotal, mandatoryVisited int
	for _, cp := range s.catalog {
		if !cp.Mandatory {
			continue
		}
		mandatoryTotal++
		if s.visited[cp.ID] {
			mandatoryVisited++
		}
	}
	ratio := 1.0
	if mandatoryTotal > 0 {
		ratio = float64(mandatoryVisited) / float64(mandatoryTotal)
	}

	status := string(s.state)
	return Summary{
		SessionID:           s.ID,
		GuardID:             s.GuardID,
		StartedAt:           s.startedAt,
		FinishedAt:          s.finishedAt,
		TotalDistanceMeters: s.trajectory.TotalDistanceMeters(),
		ElapsedSeconds:      s.finishedAt.Sub(s.startedAt).Seconds(),
		VisitCount:          len(s.visits),
		MandatoryRatio:      ratio,
		Trajectory:          s.trajectory.Points(),
		Visits:              s.visits,
		Status:              status,
		Notes:               notes,
	}
}
