package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore caches volatile read-side data: the latest broadcast position
// per session and the checkpoint catalog per guard area.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger

	livePositionTTL time.Duration
	catalogTTL      time.Duration
}

func NewRedisClient(ctx context.Context, addr string, db int) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisStore(rdb *redis.Client, log *slog.Logger, livePositionTTL, catalogTTL time.Duration) *RedisStore {
	return &RedisStore{
		rdb:             rdb,
		log:             log.With("component", "redis-store"),
		livePositionTTL: livePositionTTL,
		catalogTTL:      catalogTTL,
	}
}

// SetLivePosition stores the latest broadcast payload. Best effort: the
// broadcast path never fails because of the cache.
func (s *RedisStore) SetLivePosition(ctx context.Context, sessionID string, payload []byte) {
	key := liveKey(sessionID)
	if err := s.rdb.Set(ctx, key, payload, s.livePositionTTL).Err(); err != nil {
		s.log.Warn("redis SET failed", "key", key, "err", err)
	}
}

// GetLivePosition returns the cached payload, or ok=false when the session
// has no recent broadcast.
func (s *RedisStore) GetLivePosition(ctx context.Context, sessionID string) ([]byte, bool) {
	val, err := s.rdb.Get(ctx, liveKey(sessionID)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// GetCatalog returns the cached catalog JSON for an area, ok=false on miss.
func (s *RedisStore) GetCatalog(ctx context.Context, areaID string) ([]byte, bool) {
	val, err := s.rdb.Get(ctx, catalogKey(areaID)).Bytes()
	if err != nil {
		return nil, false
	}
	return val, true
}

// SetCatalog caches the catalog JSON for an area with the configured TTL.
func (s *RedisStore) SetCatalog(ctx context.Context, areaID string, payload []byte) {
	key := catalogKey(areaID)
	if err := s.rdb.Set(ctx, key, payload, s.catalogTTL).Err(); err != nil {
		s.log.Warn("redis SET failed", "key", key, "err", err)
	}
}

func liveKey(sessionID string) string {
	return "ronda:live:" + sessionID
}

func catalogKey(areaID string) string {
	return "ronda:catalog:" + areaID
}
