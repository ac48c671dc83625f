package redis

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

const (
	snapshotPrefix = "wizard:snapshot:"
	mountPrefix    = "wizard:mount:"
)

// SnapshotCache keeps the client-local session shadow and mount claims in Redis.
type SnapshotCache struct {
	client *Client
	ttl    time.Duration
}

func NewSnapshotCache(client *Client, ttl time.Duration) *SnapshotCache {
	return &SnapshotCache{client: client, ttl: ttl}
}

func snapshotKey(clientID uuid.UUID) string {
	return snapshotPrefix + clientID.String()
}

func mountKey(clientID uuid.UUID, mountID string) string {
	return mountPrefix + clientID.String() + ":" + mountID
}

func (c *SnapshotCache) Load(ctx context.Context, clientID uuid.UUID) (*session.Snapshot, error) {
	raw, err := c.client.Get(ctx, snapshotKey(clientID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return nil, apperrors.ErrCacheMiss
		}
		return nil, apperrors.Wrap(err, "failed to load snapshot")
	}

	var snap session.Snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		// A corrupt entry is treated as absent.
		_ = c.client.Delete(ctx, snapshotKey(clientID))
		return nil, apperrors.ErrCacheMiss
	}
	return &snap, nil
}

func (c *SnapshotCache) Save(ctx context.Context, clientID uuid.UUID, snap *session.Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return apperrors.Wrap(err, "failed to marshal snapshot")
	}
	if err := c.client.Set(ctx, snapshotKey(clientID), data, c.ttl); err != nil {
		return apperrors.Wrap(err, "failed to save snapshot")
	}
	return nil
}

func (c *SnapshotCache) Clear(ctx context.Context, clientID uuid.UUID) error {
	if err := c.client.Delete(ctx, snapshotKey(clientID)); err != nil {
		return apperrors.Wrap(err, "failed to clear snapshot")
	}
	return nil
}

// ClaimMount uses SETNX so concurrent begin calls for one mount agree on a
// single prospect.
func (c *SnapshotCache) ClaimMount(ctx context.Context, clientID uuid.UUID, mountID string, sessionID uuid.UUID) (uuid.UUID, bool, error) {
	key := mountKey(clientID, mountID)

	ok, err := c.client.SetNX(ctx, key, sessionID.String(), c.ttl)
	if err != nil {
		return uuid.Nil, false, apperrors.Wrap(err, "failed to claim mount")
	}
	if ok {
		return sessionID, true, nil
	}

	existing, err := c.mountSession(ctx, clientID, mountID)
	if err != nil {
		return uuid.Nil, false, err
	}
	return existing, false, nil
}

func (c *SnapshotCache) mountSession(ctx context.Context, clientID uuid.UUID, mountID string) (uuid.UUID, error) {
	raw, err := c.client.Get(ctx, mountKey(clientID, mountID))
	if err != nil {
		if errors.Is(err, goredis.Nil) {
			return uuid.Nil, apperrors.ErrCacheMiss
		}
		return uuid.Nil, apperrors.Wrap(err, "failed to read mount claim")
	}

	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, apperrors.Wrap(err, "invalid session id in mount claim")
	}
	return id, nil
}
