package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"figurineForge/models"
)

const (
	snapshotKeyPrefix = "task:snapshot:"
	snapshotTTL       = 10 * time.Minute
)

// StatusCache keeps the caller-facing snapshot of each task in redis with a
// TTL, so status reads do not hit postgres on every poll from a UI.
type StatusCache struct {
	client *redis.Client
}

func NewStatusCache(client *redis.Client) *StatusCache {
	return &StatusCache{client: client}
}

func (c *StatusCache) Get(ctx context.Context, taskID string) (*models.StatusSnapshot, error) {
	data, err := c.client.Get(ctx, snapshotKeyPrefix+taskID).Result()
	if err != nil {
		return nil, err
	}

	var snap models.StatusSnapshot
	if err := json.Unmarshal([]byte(data), &snap); err != nil {
		return nil, err
	}

	return &snap, nil
}

func (c *StatusCache) Set(ctx context.Context, taskID string, snap models.StatusSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	return c.client.Set(ctx, snapshotKeyPrefix+taskID, data, snapshotTTL).Err()
}

func (c *StatusCache) Delete(ctx context.Context, taskID string) error {
	return c.client.Del(ctx, snapshotKeyPrefix+taskID).Err()
}
