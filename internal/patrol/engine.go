package patrol

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"ronda-svr/internal/broadcast"
	"ronda-svr/internal/config"
	"ronda-svr/internal/geofence"
	"ronda-svr/internal/observability"
	"ronda-svr/internal/track"
)

// CatalogLoader hands the engine the checkpoint catalog for a guard area.
type CatalogLoader interface {
	Load(ctx context.Context, areaID string) ([]geofence.Checkpoint, error)
}

// PersistenceSink is the durable store for session records. Failures are
// logged and retried but never roll back the in-memory state machine.
type PersistenceSink interface {
	StartSession(ctx context.Context, sessionID, guardID string, startedAt time.Time, initial track.Fix) error
	AppendVisit(ctx context.Context, sessionID string, visit geofence.Visit) error
	Finish(ctx context.Context, summary Summary) error
	Cancel(ctx context.Context, summary Summary, reason string) error
}

// EventPublisher carries discrete domain events to back-office consumers
// (durable queue), independent from the live observer broadcast.
type EventPublisher interface {
	Publish(ctx context.Context, ev Event) error
}

// Auditor records anomalous rejections for anti-fraud review.
type Auditor interface {
	Rejection(sessionID, guardID string, f track.Fix, reason track.RejectReason, at time.Time)
}

const (
	sinkRetryAttempts = 5
	sinkRetryBackoff  = 2 * time.Second
	sinkCallTimeout   = 10 * time.Second
)

// Engine owns the registry of live sessions, one per guard, and wires each
// session to its collaborators. It replaces ambient singletons with explicit
// per-session plumbing.
type Engine struct {
	cfg     config.Config
	log     *slog.Logger
	clock   func() time.Time
	catalog CatalogLoader
	sink    PersistenceSink
	events  EventPublisher
	bc      *broadcast.Broadcaster
	auditor Auditor

	// defaultTransport is subscribed to every new room so observers on the
	// broker see all sessions without an explicit Subscribe call.
	defaultTransport broadcast.Transport

	mu      sync.Mutex
	byID    map[string]*Session
	byGuard map[string]*Session
}

func NewEngine(cfg config.Config, log *slog.Logger, catalog CatalogLoader, sink PersistenceSink,
	events EventPublisher, bc *broadcast.Broadcaster, auditor Auditor, defaultTransport broadcast.Transport) *Engine {
	return &Engine{
		cfg:              cfg,
		log:              log.With("component", "engine"),
		clock:            time.Now,
		catalog:          catalog,
		sink:             sink,
		events:           events,
		bc:               bc,
		auditor:          auditor,
		defaultTransport: defaultTransport,
		byID:             make(map[string]*Session),
		byGuard:          make(map[string]*Session),
	}
}

// SetClock overrides the time source, for tests.
func (e *Engine) SetClock(clock func() time.Time) {
	e.clock = clock
}

// StartPatrol creates the one live session a guard may have. The catalog
// load is the only blocking step and happens before the session exists.
func (e *Engine) StartPatrol(ctx context.Context, guardID, areaID string, initial track.Fix) (string, error) {
	e.mu.Lock()
	if _, ok := e.byGuard[guardID]; ok {
		e.mu.Unlock()
		return "", ErrAlreadyActive
	}
	e.mu.Unlock()

	catalog, err := e.catalog.Load(ctx, areaID)
	if err != nil {
		return "", err
	}

	now := e.clock()
	validator := track.NewValidator(e.cfg.Validator)
	seed, reason := validator.Validate(initial, nil, 0, now)
	if reason != track.RejectNone {
		return "", ErrInvalidFix
	}

	id := uuid.NewString()
	s := newSession(id, guardID, areaID, e.cfg, e.log, e.clock, catalog, e.route, e.auditor)

	e.mu.Lock()
	if _, ok := e.byGuard[guardID]; ok {
		e.mu.Unlock()
		return "", ErrAlreadyActive
	}
	e.byID[id] = s
	e.byGuard[guardID] = s
	e.mu.Unlock()

	e.bc.OpenRoom(id)
	if e.defaultTransport != nil {
		e.bc.Subscribe(id, e.defaultTransport)
	}
	s.start(seed)
	observability.ActiveSessions.Inc()
	e.log.Info("patrol started", "session_id", id, "guard_id", guardID,
		"area_id", areaID, "checkpoints", len(catalog))

	go e.withRetry("start_session", func(ctx context.Context) error {
		return e.sink.StartSession(ctx, id, guardID, now, initial)
	})
	return id, nil
}

// SubmitFix routes one raw fix into the session worker.
func (e *Engine) SubmitFix(sessionID string, f track.Fix) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	return s.Ingest(f)
}

// SubmitHeading routes one heading sample into the session worker.
func (e *Engine) SubmitHeading(sessionID string, headingDeg float64) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	return s.IngestHeading(headingDeg)
}

// ConfirmCheckpoint performs the explicit guard confirmation.
func (e *Engine) ConfirmCheckpoint(sessionID, checkpointID string, f track.Fix) (geofence.Visit, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return geofence.Visit{}, err
	}
	visit, err := s.ConfirmCheckpoint(checkpointID, f)
	if err != nil {
		return geofence.Visit{}, err
	}
	go e.withRetry("append_visit", func(ctx context.Context) error {
		return e.sink.AppendVisit(ctx, sessionID, visit)
	})
	return visit, nil
}

// FinishPatrol ends the patrol and flushes the summary to persistence.
func (e *Engine) FinishPatrol(sessionID string, finalFix track.Fix, notes string) (Summary, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Summary{}, err
	}
	summary, err := s.Finish(finalFix, notes)
	if err != nil {
		return Summary{}, err
	}
	e.teardown(s)
	go e.withRetry("finish_session", func(ctx context.Context) error {
		return e.sink.Finish(ctx, summary)
	})
	return summary, nil
}

// CancelPatrol ends the patrol without a final fix. Trajectory and visits
// are retained in the persisted record for audit.
func (e *Engine) CancelPatrol(sessionID, reason string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}
	summary, err := s.Cancel(reason)
	if err != nil {
		return err
	}
	e.teardown(s)
	go e.withRetry("cancel_session", func(ctx context.Context) error {
		return e.sink.Cancel(ctx, summary, reason)
	})
	return nil
}

// Snapshot returns the live view of a session for the query API.
func (e *Engine) Snapshot(sessionID string) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot()
}

// Subscribe attaches a transport to the session's broadcast room.
func (e *Engine) Subscribe(sessionID string, t broadcast.Transport) error {
	if _, err := e.lookup(sessionID); err != nil {
		return err
	}
	e.bc.Subscribe(sessionID, t)
	return nil
}

// Unsubscribe detaches a transport from the session's broadcast room.
func (e *Engine) Unsubscribe(sessionID string, t broadcast.Transport) error {
	if _, err := e.lookup(sessionID); err != nil {
		return err
	}
	e.bc.Unsubscribe(sessionID, t)
	return nil
}

func (e *Engine) lookup(sessionID string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.byID[sessionID]
	if !ok {
		return nil, ErrUnknownSession
	}
	return s, nil
}

// teardown archives a terminal session: the guard may start a new patrol,
// while the session id keeps resolving so late SubmitFix calls fail with
// SESSION_NOT_ACTIVE instead of UNKNOWN_SESSION.
func (e *Engine) teardown(s *Session) {
	e.mu.Lock()
	if e.byGuard[s.GuardID] == s {
		delete(e.byGuard, s.GuardID)
	}
	e.mu.Unlock()

	observability.ActiveSessions.Dec()
	// CloseRoom flushes queued discrete events before the room exits.
	go e.bc.CloseRoom(s.ID)
}

// route dispatches a session event: position updates are coalesced into the
// room ticker, the nearby signal is best-effort, discrete events go out
// immediately, are never dropped, and also hit the durable queue.
func (e *Engine) route(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		e.log.Error("marshal event failed", "type", string(ev.Type), "err", err)
		return
	}

	switch ev.Type {
	case EventPositionUpdated:
		e.bc.UpdatePosition(ev.SessionID, payload)
	case EventCheckpointNearby:
		e.bc.Send(ev.SessionID, payload, false)
	case EventCheckpointVisited, EventSessionFinished, EventSessionCancelled:
		e.bc.Send(ev.SessionID, payload, true)
		if e.events != nil {
			go e.withRetry("publish_event", func(ctx context.Context) error {
				return e.events.Publish(ctx, ev)
			})
		}
	}
}

// withRetry runs a collaborator call off the session worker with bounded
// exponential backoff. Persistent failure degrades to best effort: the
// session keeps running locally.
func (e *Engine) withRetry(op string, fn func(ctx context.Context) error) {
	backoff := sinkRetryBackoff
	var lastErr error
	for attempt := 1; attempt <= sinkRetryAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), sinkCallTimeout)
		lastErr = fn(ctx)
		cancel()
		if lastErr == nil {
			return
		}
		observability.PublishRetries.Inc()
		if attempt < sinkRetryAttempts {
			time.Sleep(backoff)
			backoff *= 2
		}
	}
	observability.PersistenceErrors.Inc()
	e.log.Error("collaborator call failed permanently", "op", op, "err", lastErr)
}

// IsStateError reports whether err belongs to the state-error taxonomy, for
// boundary layers mapping errors onto transport codes.
func IsStateError(err error) bool {
	return errors.Is(err, ErrAlreadyActive) || errors.Is(err, ErrSessionNotActive) ||
		errors.Is(err, ErrUnknownSession)
}
