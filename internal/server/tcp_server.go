// Package server is the TCP ingest front: each handheld device keeps one
// long-lived connection and streams NDJSON frames into the patrol engine.
package server

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"ronda-svr/internal/codec"
	"ronda-svr/internal/patrol"
	"ronda-svr/internal/track"
)

// maxLineBytes bounds a single frame; well above any legitimate fix line.
const maxLineBytes = 64 * 1024

// Ingestor is the slice of the patrol engine the TCP front needs.
type Ingestor interface {
	SubmitFix(sessionID string, f track.Fix) error
	SubmitHeading(sessionID string, headingDeg float64) error
}

type Server struct {
	engine Ingestor
	log    *slog.Logger
}

func New(engine Ingestor, log *slog.Logger) *Server {
	return &Server{engine: engine, log: log.With("component", "tcp-server")}
}

// Start blocks on the accept loop.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("error starting TCP server: %w", err)
	}
	defer listener.Close()

	s.log.Info("TCP ingest listening", "addr", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			s.log.Error("accept error", "err", err)
			continue
		}
		go s.handleConnection(conn)
	}
}

func (s *Server) handleConnection(conn net.Conn) {
	defer conn.Close()

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		_ = tcpConn.SetLinger(0)
		_ = tcpConn.SetNoDelay(false)
		_ = tcpConn.SetKeepAlive(true)
		_ = tcpConn.SetKeepAlivePeriod(60 * time.Second)
	}

	log := s.log.With("remote", conn.RemoteAddr().String())

	var deviceID, sessionID string
	defer func() {
		if deviceID != "" {
			log.Info("device disconnected", "device_id", deviceID)
		}
	}()

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 4096), maxLineBytes)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		frame, err := codec.Decode(line)
		if err != nil {
			_, _ = conn.Write(codec.Nack(err))
			continue
		}

		// hello must come before any data frame
		if deviceID == "" && frame.Type != codec.FrameHello {
			log.Warn("frame received before handshake", "type", string(frame.Type))
			_, _ = conn.Write(codec.Nack(errors.New("handshake required")))
			continue
		}

		switch frame.Type {
		case codec.FrameHello:
			deviceID = frame.DeviceID
			sessionID = frame.SessionID
			log.Info("device handshake", "device_id", deviceID, "session_id", sessionID)
			_, _ = conn.Write(codec.Ack())

		case codec.FrameFix:
			if err := s.engine.SubmitFix(sessionID, *frame.Fix); err != nil {
				_, _ = conn.Write(codec.Nack(err))
				if errors.Is(err, patrol.ErrSessionNotActive) || errors.Is(err, patrol.ErrUnknownSession) {
					// terminal session: no point keeping the stream open
					return
				}
				continue
			}
			_, _ = conn.Write(codec.Ack())

		case codec.FrameHeading:
			if err := s.engine.SubmitHeading(sessionID, *frame.HeadingDeg); err != nil {
				_, _ = conn.Write(codec.Nack(err))
				continue
			}
			_, _ = conn.Write(codec.Ack())

		case codec.FramePing:
			_, _ = conn.Write(codec.Ack())
		}
	}

	if err := scanner.Err(); err != nil && err != io.EOF {
		log.Warn("read error", "err", err)
	}
}
