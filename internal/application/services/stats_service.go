package services

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/ruziba3vich/tax-filing-service/internal/application/dto"
	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	"github.com/ruziba3vich/tax-filing-service/pkg/logger"
)

// StatsService keeps aggregate session counters fresh from the record
// store's change feed. Nothing in the session lifecycle depends on it.
type StatsService struct {
	repo session.Repository
	log  logger.Logger

	// Resubscribe delays after the change feed drops.
	minBackoff time.Duration
	maxBackoff time.Duration

	mu        sync.RWMutex
	counts    map[session.Status]int
	updatedAt time.Time
}

func NewStatsService(repo session.Repository, log logger.Logger) *StatsService {
	return &StatsService{
		repo:       repo,
		log:        log.With(logger.Component("stats")),
		minBackoff: time.Second,
		maxBackoff: time.Minute,
		counts:     make(map[session.Status]int),
	}
}

// Run subscribes to changes and refreshes the counters until ctx is done.
// Bursts of changes collapse into one refresh. A dropped feed is logged and
// resubscribed; Run returns nil once ctx is done.
func (s *StatsService) Run(ctx context.Context) error {
	dirty := make(chan struct{}, 1)
	mark := func(session.ChangeEvent) {
		select {
		case dirty <- struct{}{}:
		default:
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.subscribe(gctx, mark)
		return nil
	})
	g.Go(func() error {
		if err := s.Refresh(gctx); err != nil {
			s.log.Warn("initial counter refresh failed", logger.Error(err))
		}
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-dirty:
				if err := s.Refresh(gctx); err != nil && gctx.Err() == nil {
					s.log.Warn("counter refresh failed", logger.Error(err))
				}
			}
		}
	})
	return g.Wait()
}

func (s *StatsService) subscribe(ctx context.Context, fn func(session.ChangeEvent)) {
	backoff := s.minBackoff
	for {
		err := s.repo.Subscribe(ctx, fn)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.log.Warn("session change feed dropped", logger.Error(err), logger.Duration("retry_in", backoff))
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}

		// Counters may have missed changes while disconnected.
		if err := s.Refresh(ctx); err != nil && ctx.Err() == nil {
			s.log.Warn("counter refresh failed", logger.Error(err))
		}

		backoff *= 2
		if backoff > s.maxBackoff {
			backoff = s.maxBackoff
		}
	}
}

// Refresh reloads the counters from the record store.
func (s *StatsService) Refresh(ctx context.Context) error {
	counts, err := s.repo.CountByStatus(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.counts = counts
	s.updatedAt = time.Now().UTC()
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the current counters.
func (s *StatsService) Snapshot() *dto.StatsResponse {
	s.mu.RLock()
	defer s.mu.RUnlock()

	resp := &dto.StatsResponse{
		Counts:    make(map[session.Status]int, len(session.AllStatuses)),
		UpdatedAt: s.updatedAt,
	}
	for _, st := range session.AllStatuses {
		resp.Counts[st] = s.counts[st]
		resp.Total += s.counts[st]
	}
	return resp
}
