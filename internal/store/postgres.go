// Package store holds the persistence collaborators: the durable postgres
// sink for session records and the redis cache for live positions and the
// checkpoint catalog.
package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"ronda-svr/internal/geofence"
	"ronda-svr/internal/patrol"
	"ronda-svr/internal/track"
)

// Schema:
//
//	CREATE TABLE patrol_sessions (
//	    id            TEXT PRIMARY KEY,
//	    guard_id      TEXT NOT NULL,
//	    status        TEXT NOT NULL,
//	    started_at    TIMESTAMPTZ NOT NULL,
//	    finished_at   TIMESTAMPTZ,
//	    summary       JSONB,
//	    cancel_reason TEXT
//	);
//	CREATE TABLE patrol_visits (
//	    session_id    TEXT NOT NULL REFERENCES patrol_sessions(id),
//	    checkpoint_id TEXT NOT NULL,
//	    distance_m    DOUBLE PRECISION NOT NULL,
//	    captured_at   TIMESTAMPTZ NOT NULL,
//	    sequence      INT NOT NULL,
//	    PRIMARY KEY (session_id, checkpoint_id)
//	);

type PostgresSink struct {
	db *pgxpool.Pool
}

func NewPostgresPool(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}

func NewPostgresSink(db *pgxpool.Pool) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) StartSession(ctx context.Context, sessionID, guardID string, startedAt time.Time, initial track.Fix) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO patrol_sessions (id, guard_id, status, started_at) VALUES ($1, $2, $3, $4)`,
		sessionID, guardID, string(patrol.StateInProgress), startedAt,
	)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	return nil
}

func (s *PostgresSink) AppendVisit(ctx context.Context, sessionID string, visit geofence.Visit) error {
	_, err := s.db.Exec(ctx,
		`INSERT INTO patrol_visits (session_id, checkpoint_id, distance_m, captured_at, sequence)
		 VALUES ($1, $2, $3, $4, $5) ON CONFLICT DO NOTHING`,
		sessionID, visit.CheckpointID, visit.DistanceM, visit.CapturedAt, visit.Sequence,
	)
	if err != nil {
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

func (s *PostgresSink) Finish(ctx context.Context, summary patrol.Summary) error {
	return s.close(ctx, summary, string(patrol.StateFinished))
}

func (s *PostgresSink) Cancel(ctx context.Context, summary patrol.Summary, reason string) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE patrol_sessions SET status = $2, finished_at = $3, summary = $4, cancel_reason = $5 WHERE id = $1`,
		summary.SessionID, string(patrol.StateCancelled), summary.FinishedAt, blob, reason,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}

func (s *PostgresSink) close(ctx context.Context, summary patrol.Summary, status string) error {
	blob, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`UPDATE patrol_sessions SET status = $2, finished_at = $3, summary = $4 WHERE id = $1`,
		summary.SessionID, status, summary.FinishedAt, blob,
	)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	return nil
}
