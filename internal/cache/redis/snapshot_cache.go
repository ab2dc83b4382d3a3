package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/arbcore/arbengine/internal/domain"
)

// snapshotTTL bounds how long a cached snapshot stays fresh; a group with no
// ticks for this long should not be quoted from cache.
const snapshotTTL = 30 * time.Second

// SnapshotCache mirrors the latest per-group book snapshot so dashboards and
// other processes can read quotes without hitting the engine.
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(groupID string) string { return "snapshot:" + groupID }

// Set stores the snapshot under its group id.
func (sc *SnapshotCache) Set(ctx context.Context, snap domain.GroupSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("redis: marshal snapshot %s: %w", snap.GroupID, err)
	}
	if err := sc.rdb.Set(ctx, snapshotKey(snap.GroupID), data, snapshotTTL).Err(); err != nil {
		return fmt.Errorf("redis: set snapshot %s: %w", snap.GroupID, err)
	}
	return nil
}

// Get returns the cached snapshot for a group, or domain.ErrNotFound when it
// is missing or expired.
func (sc *SnapshotCache) Get(ctx context.Context, groupID string) (domain.GroupSnapshot, error) {
	data, err := sc.rdb.Get(ctx, snapshotKey(groupID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.GroupSnapshot{}, domain.ErrNotFound
		}
		return domain.GroupSnapshot{}, fmt.Errorf("redis: get snapshot %s: %w", groupID, err)
	}
	var snap domain.GroupSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return domain.GroupSnapshot{}, fmt.Errorf("redis: unmarshal snapshot %s: %w", groupID, err)
	}
	return snap, nil
}
