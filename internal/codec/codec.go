// Package codec implements the NDJSON line protocol spoken by the handheld
// devices: one JSON frame per line, a hello handshake first, then fix and
// heading frames at up to 10 Hz.
package codec

import (
	"encoding/json"
	"fmt"

	"ronda-svr/internal/track"
)

type FrameType string

const (
	FrameHello   FrameType = "hello"
	FrameFix     FrameType = "fix"
	FrameHeading FrameType = "heading"
	FramePing    FrameType = "ping"
)

// Frame is the device-to-server envelope. Fields are populated according to
// Type; Decode rejects frames missing their mandatory fields.
type Frame struct {
	Type FrameType `json:"type"`

	// hello
	DeviceID  string `json:"device_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`

	// fix
	Fix *track.Fix `json:"fix,omitempty"`

	// heading
	HeadingDeg *float64 `json:"heading_deg,omitempty"`
}

// Response is the server-to-device envelope, one line per processed frame.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// Decode parses and validates one frame line.
func Decode(line []byte) (Frame, error) {
	var f Frame
	if err := json.Unmarshal(line, &f); err != nil {
		return Frame{}, fmt.Errorf("malformed frame: %w", err)
	}

	switch f.Type {
	case FrameHello:
		if f.DeviceID == "" {
			return Frame{}, fmt.Errorf("hello: device_id is required")
		}
		if f.SessionID == "" {
			return Frame{}, fmt.Errorf("hello: session_id is required")
		}
	case FrameFix:
		if f.Fix == nil {
			return Frame{}, fmt.Errorf("fix: payload is required")
		}
		if f.Fix.CapturedAt.IsZero() {
			return Frame{}, fmt.Errorf("fix: captured_at is required")
		}
		if f.Fix.Lat < -90 || f.Fix.Lat > 90 {
			return Frame{}, fmt.Errorf("fix: latitude out of range")
		}
		if f.Fix.Lon < -180 || f.Fix.Lon > 180 {
			return Frame{}, fmt.Errorf("fix: longitude out of range")
		}
	case FrameHeading:
		if f.HeadingDeg == nil {
			return Frame{}, fmt.Errorf("heading: heading_deg is required")
		}
	case FramePing:
	default:
		return Frame{}, fmt.Errorf("unknown frame type %q", f.Type)
	}
	return f, nil
}

// EncodeResponse renders a response as one NDJSON line.
func EncodeResponse(r Response) []byte {
	line, err := json.Marshal(r)
	if err != nil {
		return []byte(`{"ok":false,"error":"encode failed"}` + "\n")
	}
	return append(line, '\n')
}

func Ack() []byte {
	return EncodeResponse(Response{OK: true})
}

func Nack(err error) []byte {
	return EncodeResponse(Response{OK: false, Error: err.Error()})
}
