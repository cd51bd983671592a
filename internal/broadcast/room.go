package broadcast

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"ronda-svr/internal/config"
	"ronda-svr/internal/observability"
)

const (
	publishTimeout = 5 * time.Second
	// closeFlushBudget bounds the final delivery attempt of queued events
	// when a room is torn down with a dead transport.
	closeFlushBudget = 10 * time.Second
)

// room serializes all outbound traffic for one session so observers see
// events in generation order.
type room struct {
	sessionID string
	cfg       config.BroadcastConfig
	log       *slog.Logger
	sink      PositionSink

	mu        sync.Mutex
	subs      []Transport
	pending   []outbound // discrete events awaiting delivery
	latestPos []byte

	notify chan struct{}
	done   chan struct{}
	closed sync.Once
}

type outbound struct {
	payload  []byte
	critical bool
}

func newRoom(sessionID string, cfg config.BroadcastConfig, log *slog.Logger, sink PositionSink) *room {
	return &room{
		sessionID: sessionID,
		cfg:       cfg,
		log:       log.With("session_id", sessionID),
		sink:      sink,
		notify:    make(chan struct{}, 1),
		done:      make(chan struct{}),
	}
}

func (r *room) run() {
	ticker := time.NewTicker(r.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.done:
			r.flushPending(closeFlushBudget)
			return
		case <-r.notify:
			r.flushPending(0)
		case <-ticker.C:
			r.flushPosition()
		}
	}
}

func (r *room) close() {
	r.closed.Do(func() { close(r.done) })
}

func (r *room) subscribe(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s == t {
			return
		}
	}
	r.subs = append(r.subs, t)
}

func (r *room) unsubscribe(t Transport) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i, s := range r.subs {
		if s == t {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

func (r *room) updatePosition(payload []byte) {
	r.mu.Lock()
	r.latestPos = payload
	r.mu.Unlock()
}

func (r *room) send(payload []byte, critical bool) {
	r.mu.Lock()
	if !critical && len(r.pending) >= r.cfg.QueueSize {
		r.mu.Unlock()
		observability.BroadcastDrops.Inc()
		return
	}
	r.pending = append(r.pending, outbound{payload: payload, critical: critical})
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}
}

// flushPending drains the discrete-event queue in order. Critical entries
// are retried with capped exponential backoff; budget > 0 bounds the total
// retry time (teardown flush), budget == 0 retries while the room lives.
func (r *room) flushPending(budget time.Duration) {
	deadline := time.Time{}
	if budget > 0 {
		deadline = time.Now().Add(budget)
	}

	for {
		r.mu.Lock()
		if len(r.pending) == 0 {
			r.mu.Unlock()
			return
		}
		next := r.pending[0]
		r.pending = r.pending[1:]
		r.mu.Unlock()

		if next.critical {
			if r.deliverWithRetry(r.eventTopic(), next.payload, deadline) {
				continue
			}
			if deadline.IsZero() {
				// room closed mid-retry: the event was requeued, the
				// teardown flush in run() drains it with a bounded budget
				return
			}
			observability.BroadcastDrops.Inc()
			r.log.Warn("event dropped at room teardown")
		} else if err := r.deliver(r.eventTopic(), next.payload); err != nil {
			observability.BroadcastDrops.Inc()
		}
	}
}

func (r *room) flushPosition() {
	r.mu.Lock()
	payload := r.latestPos
	r.latestPos = nil
	r.mu.Unlock()
	if payload == nil {
		return
	}

	if err := r.deliver(r.positionTopic(), payload); err != nil {
		observability.BroadcastDrops.Inc()
	}
	if r.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		r.sink.SetLivePosition(ctx, r.sessionID, payload)
		cancel()
	}
}

// deliverWithRetry keeps attempting delivery until it succeeds, the room is
// torn down, or the optional deadline passes.
func (r *room) deliverWithRetry(topic string, payload []byte, deadline time.Time) bool {
	backoff := r.cfg.InitialBackoff
	for {
		err := r.deliver(topic, payload)
		if err == nil {
			return true
		}
		observability.PublishRetries.Inc()
		r.log.Warn("publish failed, retrying", "topic", topic, "backoff", backoff.String(), "err", err)

		if !deadline.IsZero() {
			// teardown flush: plain sleep, bounded by the budget
			if time.Now().Add(backoff).After(deadline) {
				return false
			}
			time.Sleep(backoff)
		} else {
			select {
			case <-time.After(backoff):
			case <-r.done:
				// room torn down mid-retry: leave final delivery to the
				// teardown flush in run()
				r.requeueFront(outbound{payload: payload, critical: true})
				return false
			}
		}
		if backoff *= 2; backoff > r.cfg.MaxBackoff {
			backoff = r.cfg.MaxBackoff
		}
	}
}

func (r *room) requeueFront(o outbound) {
	r.mu.Lock()
	r.pending = append([]outbound{o}, r.pending...)
	r.mu.Unlock()
}

// deliver publishes to every subscribed transport; the first error wins.
func (r *room) deliver(topic string, payload []byte) error {
	r.mu.Lock()
	subs := make([]Transport, len(r.subs))
	copy(subs, r.subs)
	r.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()

	var firstErr error
	for _, t := range subs {
		if err := t.Publish(ctx, topic, payload); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (r *room) positionTopic() string {
	return "ronda/patrol/" + r.sessionID + "/position"
}

func (r *room) eventTopic() string {
	return "ronda/patrol/" + r.sessionID + "/events"
}
