package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache serves the current snapshot to readers and swaps it atomically on
// Reload. Concurrent reloads share one Load.
type Cache struct {
	mu     sync.RWMutex
	snap   *Snapshot
	source Source
	group  singleflight.Group
	logger *slog.Logger
}

// NewCache loads the initial snapshot from source.
func NewCache(ctx context.Context, source Source, logger *slog.Logger) (*Cache, error) {
	c := &Cache{source: source, logger: logger}
	if _, err := c.Reload(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// NewStaticCache wraps a fixed snapshot; Reload is a no-op returning it.
func NewStaticCache(snap *Snapshot) *Cache {
	return &Cache{snap: snap}
}

// Snapshot returns the current snapshot.
func (c *Cache) Snapshot() *Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Reload fetches a new snapshot and swaps it in. On failure the previous
// snapshot keeps serving.
func (c *Cache) Reload(ctx context.Context) (*Snapshot, error) {
	if c.source == nil {
		return c.Snapshot(), nil
	}
	v, err, _ := c.group.Do("reload", func() (any, error) {
		snap, err := c.source.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load catalog: %w", err)
		}
		c.mu.Lock()
		c.snap = snap
		c.mu.Unlock()
		logWarnings(c.logger, snap)
		if c.logger != nil {
			c.logger.InfoContext(ctx, "catalog loaded",
				"types", snap.TypeCount(),
				"units", snap.UnitCount(),
			)
		}
		return snap, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}
