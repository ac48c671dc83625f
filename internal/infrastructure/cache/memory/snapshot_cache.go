// Package memory provides an in-process snapshot cache for local runs and tests.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

type mountKey struct {
	clientID uuid.UUID
	mountID  string
}

// SnapshotCache implements session.Cache with maps.
type SnapshotCache struct {
	mu        sync.Mutex
	snapshots map[uuid.UUID]session.Snapshot
	mounts    map[mountKey]uuid.UUID
	fail      error
}

func NewSnapshotCache() *SnapshotCache {
	return &SnapshotCache{
		snapshots: make(map[uuid.UUID]session.Snapshot),
		mounts:    make(map[mountKey]uuid.UUID),
	}
}

// FailAll makes every call return err; nil restores normal behavior.
func (c *SnapshotCache) FailAll(err error) {
	c.mu.Lock()
	c.fail = err
	c.mu.Unlock()
}

func (c *SnapshotCache) Load(_ context.Context, clientID uuid.UUID) (*session.Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return nil, c.fail
	}

	snap, ok := c.snapshots[clientID]
	if !ok {
		return nil, apperrors.ErrCacheMiss
	}
	if snap.FormData.Identity != nil {
		id := *snap.FormData.Identity
		snap.FormData.Identity = &id
	}
	return &snap, nil
}

func (c *SnapshotCache) Save(_ context.Context, clientID uuid.UUID, snap *session.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}

	stored := *snap
	if snap.FormData.Identity != nil {
		id := *snap.FormData.Identity
		stored.FormData.Identity = &id
	}
	c.snapshots[clientID] = stored
	return nil
}

func (c *SnapshotCache) Clear(_ context.Context, clientID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	delete(c.snapshots, clientID)
	return nil
}

func (c *SnapshotCache) ClaimMount(_ context.Context, clientID uuid.UUID, mountID string, sessionID uuid.UUID) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return uuid.Nil, false, c.fail
	}

	key := mountKey{clientID: clientID, mountID: mountID}
	if existing, ok := c.mounts[key]; ok {
		return existing, false, nil
	}
	c.mounts[key] = sessionID
	return sessionID, true, nil
}
