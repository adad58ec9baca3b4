package syncer

import (
	"context"
	"log/slog"
	"time"

	"searchsync/internal/cache"
	"searchsync/internal/errors"
	"searchsync/internal/search"
)

// Indexed is the slice of Service the full-reindex pass needs, so the
// Reindexer can hold services of different entity types in one list.
type Indexed interface {
	TypeName() string
	EnsureCollection(ctx context.Context) error
	IndexAll(ctx context.Context) error
}

const (
	reindexLockKey = "searchsync:full-reindex"
	reindexLockTTL = 15 * time.Minute
)

// Reindexer rebuilds the entire search index from the system of record:
// drop every collection under the prefix, recreate the schemas, then bulk
// load every type.
type Reindexer struct {
	search   search.Gateway
	services []Indexed
	cache    *cache.RedisClient
	log      *slog.Logger
}

func NewReindexer(gw search.Gateway, services []Indexed, rdb *cache.RedisClient, logger *slog.Logger) *Reindexer {
	return &Reindexer{search: gw, services: services, cache: rdb, log: logger}
}

// Run performs a full rebuild. At most one rebuild runs at a time across
// all daemon instances; a concurrent attempt gets a conflict error instead
// of doubling the load.
func (r *Reindexer) Run(ctx context.Context) error {
	if r.cache != nil {
		ok, err := cache.SetNX(r.cache, ctx, reindexLockKey, time.Now().UTC(), reindexLockTTL)
		if err != nil {
			return errors.New(errors.ErrInternal, "Could not acquire reindex lock", err)
		}
		if !ok {
			return errors.New(errors.ErrConflict, "A full reindex is already running", nil)
		}
		defer func() {
			if err := cache.Del(r.cache, context.WithoutCancel(ctx), reindexLockKey); err != nil {
				r.log.Warn("Failed to release reindex lock", "error", err)
			}
		}()
	}

	started := time.Now()
	r.log.Info("Starting full reindex", "types", len(r.services))

	if err := r.search.DropAllWithPrefix(ctx); err != nil {
		return err
	}

	for _, svc := range r.services {
		if err := svc.EnsureCollection(ctx); err != nil {
			return err
		}
		if err := svc.IndexAll(ctx); err != nil {
			return err
		}
		r.log.Info("Reindexed type", "type", svc.TypeName())
	}

	r.log.Info("Full reindex complete", "duration", time.Since(started))
	return nil
}
