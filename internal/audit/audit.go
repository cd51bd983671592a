// Package audit keeps a JSONL trail of anomalous fix rejections so
// anti-fraud review can replay exactly what the device claimed.
package audit

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"ronda-svr/internal/track"
)

type record struct {
	SessionID  string    `json:"session_id"`
	GuardID    string    `json:"guard_id"`
	Reason     string    `json:"reason"`
	Lat        float64   `json:"lat"`
	Lon        float64   `json:"lon"`
	AccuracyM  float64   `json:"accuracy_m"`
	SpeedMps   float64   `json:"speed_mps"`
	CapturedAt time.Time `json:"captured_at"`
	RejectedAt time.Time `json:"rejected_at"`
}

// Trail appends rejection records to one file per day. Best effort: write
// failures are logged and never propagate into the ingest path.
type Trail struct {
	dir string
	log *slog.Logger
	mu  sync.Mutex
}

func NewTrail(dir string, log *slog.Logger) *Trail {
	return &Trail{dir: dir, log: log.With("component", "audit")}
}

func (t *Trail) Rejection(sessionID, guardID string, f track.Fix, reason track.RejectReason, at time.Time) {
	rec := record{
		SessionID:  sessionID,
		GuardID:    guardID,
		Reason:     string(reason),
		Lat:        f.Lat,
		Lon:        f.Lon,
		AccuracyM:  f.AccuracyMeters,
		SpeedMps:   f.SpeedMps,
		CapturedAt: f.CapturedAt,
		RejectedAt: at,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		t.log.Error("audit marshal failed", "err", err)
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if err := os.MkdirAll(t.dir, 0o755); err != nil {
		t.log.Error("audit dir failed", "err", err)
		return
	}
	name := filepath.Join(t.dir, "rejections_"+at.Format("20060102")+".jsonl")
	file, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		t.log.Error("audit open failed", "file", name, "err", err)
		return
	}
	defer file.Close()

	if _, err := file.Write(append(line, '\n')); err != nil {
		t.log.Error("audit write failed", "file", name, "err", err)
	}
}
