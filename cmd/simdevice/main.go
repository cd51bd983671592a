// simdevice replays a synthetic patrol walk against the TCP ingest port:
// hello handshake, then fix and heading frames at a fixed rate. Useful for
// exercising the full pipeline without a handheld device.
package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log"
	"math"
	"net"
	"os"
	"time"
)

type fixPayload struct {
	Lat            float64   `json:"lat"`
	Lon            float64   `json:"lon"`
	AccuracyMeters float64   `json:"accuracy_m"`
	SpeedMps       float64   `json:"speed_mps"`
	CapturedAt     time.Time `json:"captured_at"`
}

type frame struct {
	Type       string      `json:"type"`
	DeviceID   string      `json:"device_id,omitempty"`
	SessionID  string      `json:"session_id,omitempty"`
	Fix        *fixPayload `json:"fix,omitempty"`
	HeadingDeg *float64    `json:"heading_deg,omitempty"`
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprintf(os.Stderr, "usage: %s <session_id> [interval_ms]\n", os.Args[0])
		os.Exit(1)
	}
	sessionID := os.Args[1]

	intervalMs := 500
	if len(os.Args) > 2 {
		if _, err := fmt.Sscanf(os.Args[2], "%d", &intervalMs); err != nil || intervalMs <= 0 {
			fmt.Fprintln(os.Stderr, "error: interval must be a positive integer (ms)")
			os.Exit(1)
		}
	}

	addr := "localhost:8001"
	if v := os.Getenv("RONDA_TCP_ADDR"); v != "" {
		addr = v
	}

	conn, err := net.Dial("tcp", addr)
	if err != nil {
		log.Fatalf("dial %s: %v", addr, err)
	}
	defer conn.Close()

	reader := bufio.NewScanner(conn)
	send := func(f frame) {
		line, _ := json.Marshal(f)
		if _, err := conn.Write(append(line, '\n')); err != nil {
			log.Fatalf("write: %v", err)
		}
		if reader.Scan() {
			log.Printf(">> %s | << %s", line, reader.Text())
		}
	}

	send(frame{Type: "hello", DeviceID: "sim-device-01", SessionID: sessionID})

	// walk a slow circle (~1.2 m/s) around a base point
	const (
		baseLat = 19.432608
		baseLon = -99.133209
		radius  = 0.0009 // ~100m
	)

	ticker := time.NewTicker(time.Duration(intervalMs) * time.Millisecond)
	defer ticker.Stop()

	step := 0.0
	for range ticker.C {
		step += 0.01
		lat := baseLat + radius*math.Sin(step)
		lon := baseLon + radius*math.Cos(step)
		heading := math.Mod(step*180/math.Pi+90, 360)

		send(frame{Type: "fix", Fix: &fixPayload{
			Lat:            lat,
			Lon:            lon,
			AccuracyMeters: 8,
			SpeedMps:       1.2,
			CapturedAt:     time.Now(),
		}})
		send(frame{Type: "heading", HeadingDeg: &heading})
	}
}
