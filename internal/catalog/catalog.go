// Package catalog loads the checkpoint catalog for a guard area. The
// postgres table is the source of truth; a redis decorator keeps session
// starts cheap when several guards share an area.
package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"ronda-svr/internal/geofence"
)

// Schema:
//
//	CREATE TABLE checkpoints (
//	    id        TEXT PRIMARY KEY,
//	    area_id   TEXT NOT NULL,
//	    latitude  DOUBLE PRECISION NOT NULL,
//	    longitude DOUBLE PRECISION NOT NULL,
//	    radius_m  DOUBLE PRECISION NOT NULL DEFAULT 0,
//	    mandatory BOOLEAN NOT NULL DEFAULT FALSE,
//	    label     TEXT NOT NULL DEFAULT ''
//	);

type PostgresCatalog struct {
	db *pgxpool.Pool
}

func NewPostgresCatalog(db *pgxpool.Pool) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) Load(ctx context.Context, areaID string) ([]geofence.Checkpoint, error) {
	rows, err := c.db.Query(ctx,
		`SELECT id, latitude, longitude, radius_m, mandatory, label
		 FROM checkpoints WHERE area_id = $1 ORDER BY id`,
		areaID,
	)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var result []geofence.Checkpoint
	for rows.Next() {
		var cp geofence.Checkpoint
		if err := rows.Scan(&cp.ID, &cp.Lat, &cp.Lon, &cp.RadiusM, &cp.Mandatory, &cp.Label); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		cp.RadiusM = geofence.ClampRadius(cp.RadiusM)
		result = append(result, cp)
	}
	return result, rows.Err()
}

// CatalogCache is the read-through cache backing for the decorator.
type CatalogCache interface {
	GetCatalog(ctx context.Context, areaID string) ([]byte, bool)
	SetCatalog(ctx context.Context, areaID string, payload []byte)
}

// Loader is implemented by PostgresCatalog and CachedCatalog alike.
type Loader interface {
	Load(ctx context.Context, areaID string) ([]geofence.Checkpoint, error)
}

// CachedCatalog decorates a Loader with a redis cache. Cache failures fall
// through to the source.
type CachedCatalog struct {
	source Loader
	cache  CatalogCache
	log    *slog.Logger
}

func NewCachedCatalog(source Loader, cache CatalogCache, log *slog.Logger) *CachedCatalog {
	return &CachedCatalog{
		source: source,
		cache:  cache,
		log:    log.With("component", "catalog"),
	}
}

func (c *CachedCatalog) Load(ctx context.Context, areaID string) ([]geofence.Checkpoint, error) {
	if payload, ok := c.cache.GetCatalog(ctx, areaID); ok {
		var cps []geofence.Checkpoint
		if err := json.Unmarshal(payload, &cps); err == nil {
			return cps, nil
		}
		c.log.Warn("corrupt catalog cache entry, reloading", "area_id", areaID)
	}

	cps, err := c.source.Load(ctx, areaID)
	if err != nil {
		return nil, err
	}
	if payload, err := json.Marshal(cps); err == nil {
		c.cache.SetCatalog(ctx, areaID, payload)
	}
	return cps, nil
}
