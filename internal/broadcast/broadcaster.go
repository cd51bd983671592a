// Package broadcast fans patrol events out to remote observers without ever
// blocking the session worker. Each session gets a room with a bounded
// outbound queue; position ticks are coalesced and droppable, discrete
// events are retried until delivered or the room is torn down.
package broadcast

import (
	"context"
	"log/slog"
	"sync"

	"ronda-svr/internal/config"
)

// Transport is a persistent delivery channel towards a subscriber set.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// PositionSink receives the latest broadcast position on every ticker flush,
// e.g. to keep a live-position cache warm for the HTTP API.
type PositionSink interface {
	SetLivePosition(ctx context.Context, sessionID string, payload []byte)
}

// Broadcaster owns one room per live session.
type Broadcaster struct {
	cfg  config.BroadcastConfig
	log  *slog.Logger
	sink PositionSink

	mu    sync.Mutex
	rooms map[string]*room
}

func New(cfg config.BroadcastConfig, log *slog.Logger, sink PositionSink) *Broadcaster {
	return &Broadcaster{
		cfg:   cfg,
		log:   log.With("component", "broadcast"),
		sink:  sink,
		rooms: make(map[string]*room),
	}
}

// OpenRoom creates the room for a session and starts its flush loop.
func (b *Broadcaster) OpenRoom(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.rooms[sessionID]; ok {
		return
	}
	r := newRoom(sessionID, b.cfg, b.log, b.sink)
	b.rooms[sessionID] = r
	go r.run()
}

// CloseRoom tears a room down. Pending discrete events get a final bounded
// flush before the room exits.
func (b *Broadcaster) CloseRoom(sessionID string) {
	b.mu.Lock()
	r := b.rooms[sessionID]
	delete(b.rooms, sessionID)
	b.mu.Unlock()
	if r != nil {
		r.close()
	}
}

// Subscribe adds a transport to the session's room.
func (b *Broadcaster) Subscribe(sessionID string, t Transport) {
	if r := b.room(sessionID); r != nil {
		r.subscribe(t)
	}
}

// Unsubscribe removes a transport from the session's room.
func (b *Broadcaster) Unsubscribe(sessionID string, t Transport) {
	if r := b.room(sessionID); r != nil {
		r.unsubscribe(t)
	}
}

// UpdatePosition replaces the room's latest position payload. The ticker
// flushes the newest value; intermediate updates are intentionally lost.
func (b *Broadcaster) UpdatePosition(sessionID string, payload []byte) {
	if r := b.room(sessionID); r != nil {
		r.updatePosition(payload)
	}
}

// Send delivers a discrete event out of band from the position ticker.
// Critical events are queued and retried until delivered or the room closes;
// non-critical ones get a single best-effort attempt.
func (b *Broadcaster) Send(sessionID string, payload []byte, critical bool) {
	if r := b.room(sessionID); r != nil {
		r.send(payload, critical)
	}
}

func (b *Broadcaster) room(sessionID string) *room {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rooms[sessionID]
}
