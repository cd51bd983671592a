package server

import (
	"bufio"
	"encoding/json"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ronda-svr/internal/patrol"
	"ronda-svr/internal/track"
)

type stubIngestor struct {
	mu       sync.Mutex
	fixErr   error
	fixes    []track.Fix
	headings []float64
}

func (s *stubIngestor) SubmitFix(_ string, f track.Fix) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fixErr != nil {
		return s.fixErr
	}
	s.fixes = append(s.fixes, f)
	return nil
}

func (s *stubIngestor) SubmitHeading(_ string, headingDeg float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.headings = append(s.headings, headingDeg)
	return nil
}

type response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// dialSession wires a pipe into handleConnection and returns the client end.
func dialSession(t *testing.T, ingestor *stubIngestor) (net.Conn, *bufio.Reader) {
	t.Helper()

	client, server := net.Pipe()
	t.Cleanup(func() { client.Close() })

	srv := New(ingestor, slog.New(slog.NewTextHandler(io.Discard, nil)))
	go srv.handleConnection(server)

	return client, bufio.NewReader(client)
}

func sendLine(t *testing.T, conn net.Conn, reader *bufio.Reader, line string) response {
	t.Helper()

	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := conn.Write([]byte(line + "\n"))
	require.NoError(t, err)

	raw, err := reader.ReadBytes('\n')
	require.NoError(t, err)

	var resp response
	require.NoError(t, json.Unmarshal(raw, &resp))
	return resp
}

const helloLine = `{"type":"hello","device_id":"dev-01","session_id":"s-1"}`
const fixLine = `{"type":"fix","fix":{"lat":19.4326,"lon":-99.1332,"accuracy_m":5,"captured_at":"2025-03-01T08:00:00Z"}}`

func TestConnectionRequiresHandshake(t *testing.T) {
	conn, reader := dialSession(t, &stubIngestor{})

	resp := sendLine(t, conn, reader, fixLine)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "handshake required")
}

func TestConnectionStreamsFrames(t *testing.T) {
	ingestor := &stubIngestor{}
	conn, reader := dialSession(t, ingestor)

	assert.True(t, sendLine(t, conn, reader, helloLine).OK)
	assert.True(t, sendLine(t, conn, reader, fixLine).OK)
	assert.True(t, sendLine(t, conn, reader, `{"type":"heading","heading_deg":271.5}`).OK)
	assert.True(t, sendLine(t, conn, reader, `{"type":"ping"}`).OK)

	ingestor.mu.Lock()
	defer ingestor.mu.Unlock()
	require.Len(t, ingestor.fixes, 1)
	assert.Equal(t, 19.4326, ingestor.fixes[0].Lat)
	require.Len(t, ingestor.headings, 1)
	assert.Equal(t, 271.5, ingestor.headings[0])
}

func TestConnectionNacksMalformedFrame(t *testing.T) {
	conn, reader := dialSession(t, &stubIngestor{})

	assert.True(t, sendLine(t, conn, reader, helloLine).OK)
	resp := sendLine(t, conn, reader, `{"type":"fix"}`)
	assert.False(t, resp.OK)

	// the stream stays usable after a bad frame
	assert.True(t, sendLine(t, conn, reader, fixLine).OK)
}

func TestConnectionClosesOnTerminalSession(t *testing.T) {
	ingestor := &stubIngestor{fixErr: patrol.ErrSessionNotActive}
	conn, reader := dialSession(t, ingestor)

	assert.True(t, sendLine(t, conn, reader, helloLine).OK)
	resp := sendLine(t, conn, reader, fixLine)
	assert.False(t, resp.OK)
	assert.Contains(t, resp.Error, "SESSION_NOT_ACTIVE")

	// the server hangs up after nacking a terminal session
	require.NoError(t, conn.SetDeadline(time.Now().Add(2*time.Second)))
	_, err := reader.ReadBytes('\n')
	assert.Error(t, err)
}
