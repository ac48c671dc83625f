package persistence

import (
	"time"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	cachememory "github.com/ruziba3vich/tax-filing-service/internal/infrastructure/cache/memory"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/cache/redis"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence/memory"
	"github.com/ruziba3vich/tax-filing-service/internal/infrastructure/persistence/postgres"
)

// Repositories holds the record store and the snapshot cache.
type Repositories struct {
	Session session.Repository
	Cache   session.Cache
}

// NewRepositories wires the PostgreSQL store and the Redis cache.
func NewRepositories(db *postgres.DB, redisClient *redis.Client, cacheTTL time.Duration) *Repositories {
	return &Repositories{
		Session: postgres.NewSessionRepository(db),
		Cache:   redis.NewSnapshotCache(redisClient, cacheTTL),
	}
}

// NewInMemoryRepositories wires the map-backed implementations.
func NewInMemoryRepositories() *Repositories {
	return &Repositories{
		Session: memory.NewSessionRepository(),
		Cache:   cachememory.NewSnapshotCache(),
	}
}
