package audit

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ronda-svr/internal/track"
)

func TestTrailAppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	trail := NewTrail(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	at := time.Date(2025, 3, 1, 8, 15, 0, 0, time.UTC)
	f := track.Fix{Lat: 19.5, Lon: -99.2, AccuracyMeters: 8, SpeedMps: 42, CapturedAt: at.Add(-time.Second)}

	trail.Rejection("s-1", "guard-1", f, track.RejectTeleportVelocity, at)
	trail.Rejection("s-1", "guard-1", f, track.RejectTeleportDistance, at)

	data, err := os.ReadFile(filepath.Join(dir, "rejections_20250301.jsonl"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)

	var rec record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "s-1", rec.SessionID)
	assert.Equal(t, "guard-1", rec.GuardID)
	assert.Equal(t, "TELEPORT_VELOCITY", rec.Reason)
	assert.Equal(t, 19.5, rec.Lat)
	assert.Equal(t, at, rec.RejectedAt)
}

func TestTrailSplitsFilesByDay(t *testing.T) {
	dir := t.TempDir()
	trail := NewTrail(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))

	f := track.Fix{Lat: 1, Lon: 2}
	trail.Rejection("s-1", "guard-1", f, track.RejectTeleportVelocity, time.Date(2025, 3, 1, 23, 59, 0, 0, time.UTC))
	trail.Rejection("s-1", "guard-1", f, track.RejectTeleportVelocity, time.Date(2025, 3, 2, 0, 1, 0, 0, time.UTC))

	_, err := os.Stat(filepath.Join(dir, "rejections_20250301.jsonl"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "rejections_20250302.jsonl"))
	assert.NoError(t, err)
}
