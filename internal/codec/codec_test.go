package codec

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeHello(t *testing.T) {
	f, err := Decode([]byte(`{"type":"hello","device_id":"dev-01","session_id":"s-1"}`))
	require.NoError(t, err)
	assert.Equal(t, FrameHello, f.Type)
	assert.Equal(t, "dev-01", f.DeviceID)
	assert.Equal(t, "s-1", f.SessionID)
}

func TestDecodeFix(t *testing.T) {
	line := []byte(`{"type":"fix","fix":{"lat":19.4326,"lon":-99.1332,"accuracy_m":8,"captured_at":"2025-03-01T08:00:00Z"}}`)
	f, err := Decode(line)
	require.NoError(t, err)
	require.NotNil(t, f.Fix)
	assert.Equal(t, 19.4326, f.Fix.Lat)
	assert.Equal(t, 8.0, f.Fix.AccuracyMeters)
	assert.False(t, f.Fix.CapturedAt.IsZero())
}

func TestDecodeHeading(t *testing.T) {
	f, err := Decode([]byte(`{"type":"heading","heading_deg":271.5}`))
	require.NoError(t, err)
	require.NotNil(t, f.HeadingDeg)
	assert.Equal(t, 271.5, *f.HeadingDeg)
}

func TestDecodePing(t *testing.T) {
	f, err := Decode([]byte(`{"type":"ping"}`))
	require.NoError(t, err)
	assert.Equal(t, FramePing, f.Type)
}

func TestDecodeRejectsBadFrames(t *testing.T) {
	cases := []struct {
		name string
		line string
	}{
		{"malformed json", `{"type":`},
		{"unknown type", `{"type":"telemetry"}`},
		{"hello without device", `{"type":"hello","session_id":"s-1"}`},
		{"hello without session", `{"type":"hello","device_id":"dev-01"}`},
		{"fix without payload", `{"type":"fix"}`},
		{"fix without timestamp", `{"type":"fix","fix":{"lat":1,"lon":2}}`},
		{"fix latitude out of range", `{"type":"fix","fix":{"lat":95,"lon":0,"captured_at":"2025-03-01T08:00:00Z"}}`},
		{"fix longitude out of range", `{"type":"fix","fix":{"lat":0,"lon":181,"captured_at":"2025-03-01T08:00:00Z"}}`},
		{"heading without value", `{"type":"heading"}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode([]byte(tc.line))
			assert.Error(t, err)
		})
	}
}

func TestResponses(t *testing.T) {
	assert.Equal(t, `{"ok":true}`+"\n", string(Ack()))
	assert.Equal(t, `{"ok":false,"error":"boom"}`+"\n", string(Nack(errors.New("boom"))))
}
