package services

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

func TestStatsService(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	stats := NewStatsService(f.repo, logger.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stats.Run(ctx) }()
	require.Eventually(t, func() bool { return f.repo.Subscribers() == 1 }, time.Second, time.Millisecond)

	counted := func(st session.Status, n int) func() bool {
		return func() bool { return stats.Snapshot().Counts[st] == n }
	}

	f.begin("m1")
	require.Eventually(t, counted(session.StatusProspect, 1), time.Second, 5*time.Millisecond)

	sc := f.activate("m2", taxA)
	require.Eventually(t, counted(session.StatusActive, 1), time.Second, 5*time.Millisecond)

	_, err := f.svc.Exit(context.Background(), sc)
	require.NoError(t, err)
	require.Eventually(t, counted(session.StatusAbandoned, 1), time.Second, 5*time.Millisecond)

	snap := stats.Snapshot()
	assert.Equal(t, 2, snap.Total)
	assert.Len(t, snap.Counts, len(session.AllStatuses))
	assert.False(t, snap.UpdatedAt.IsZero())

	cancel()
	assert.NoError(t, <-done)
}

// droppingFeed fails the first drops subscriptions, then delegates.
type droppingFeed struct {
	session.Repository
	drops    int32
	attempts atomic.Int32
}

func (r *droppingFeed) Subscribe(ctx context.Context, fn func(session.ChangeEvent)) error {
	if r.attempts.Add(1) <= r.drops {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, "session change subscription dropped")
	}
	return r.Repository.Subscribe(ctx, fn)
}

func TestStatsServiceResubscribes(t *testing.T) {
	defer goleak.VerifyNone(t)

	f := newFixture(t)
	feed := &droppingFeed{Repository: f.repo, drops: 3}
	stats := NewStatsService(feed, logger.NewNop())
	stats.minBackoff = time.Millisecond
	stats.maxBackoff = 2 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- stats.Run(ctx) }()

	require.Eventually(t, func() bool { return f.repo.Subscribers() == 1 }, time.Second, time.Millisecond)
	assert.EqualValues(t, 4, feed.attempts.Load())

	select {
	case err := <-done:
		t.Fatalf("Run returned early: %v", err)
	default:
	}

	f.begin("m1")
	require.Eventually(t, func() bool {
		return stats.Snapshot().Counts[session.StatusProspect] == 1
	}, time.Second, 5*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
