// Package memory provides an in-process record store for local runs and tests.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/ruziba3vich/tax-filing-service/internal/domain/session"
	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

// SessionRepository keeps sessions in a map and fans changes out to
// subscribers.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[uuid.UUID]*session.Session
	subs     map[int]chan session.ChangeEvent
	nextSub  int

	// Fail, when set, is returned by every write. Tests use it to simulate
	// an unavailable store.
	failMu sync.RWMutex
	fail   error
}

func NewSessionRepository() *SessionRepository {
	return &SessionRepository{
		sessions: make(map[uuid.UUID]*session.Session),
		subs:     make(map[int]chan session.ChangeEvent),
	}
}

// FailWrites makes subsequent writes return err; nil restores normal behavior.
func (r *SessionRepository) FailWrites(err error) {
	r.failMu.Lock()
	r.fail = err
	r.failMu.Unlock()
}

func (r *SessionRepository) writeErr() error {
	r.failMu.RLock()
	defer r.failMu.RUnlock()
	if r.fail != nil {
		return apperrors.Wrap(apperrors.ErrStoreUnavailable, r.fail.Error())
	}
	return nil
}

func (r *SessionRepository) Insert(_ context.Context, s *session.Session) error {
	if err := r.writeErr(); err != nil {
		return err
	}

	r.mu.Lock()
	if _, exists := r.sessions[s.ID]; exists {
		r.mu.Unlock()
		return apperrors.Wrap(apperrors.ErrInvalidTransition, "session already exists")
	}
	r.sessions[s.ID] = s.Clone()
	r.mu.Unlock()

	r.publish(session.ChangeEvent{Op: session.ChangeInsert, SessionID: s.ID, Status: s.Status})
	return nil
}

func (r *SessionRepository) Update(_ context.Context, id uuid.UUID, patch session.Patch) (*session.Session, error) {
	if err := r.writeErr(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	stored, ok := r.sessions[id]
	if !ok {
		r.mu.Unlock()
		return nil, apperrors.ErrSessionNotFound
	}
	if stored.Status.Terminal() {
		r.mu.Unlock()
		return nil, apperrors.ErrSessionTerminal
	}
	patch.Apply(stored)
	out := stored.Clone()
	r.mu.Unlock()

	r.publish(session.ChangeEvent{Op: session.ChangeUpdate, SessionID: id, Status: out.Status})
	return out, nil
}

func (r *SessionRepository) GetByID(_ context.Context, id uuid.UUID) (*session.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[id]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return s.Clone(), nil
}

// SelectWhere returns matches ordered by last activity, most recent first.
func (r *SessionRepository) SelectWhere(_ context.Context, filter session.Filter) ([]*session.Session, error) {
	r.mu.RLock()
	result := make([]*session.Session, 0)
	for _, s := range r.sessions {
		if filter.Matches(s) {
			result = append(result, s.Clone())
		}
	}
	r.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		return result[i].LastActivityAt.After(result[j].LastActivityAt)
	})
	return result, nil
}

func (r *SessionRepository) CountByStatus(_ context.Context) (map[session.Status]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	counts := make(map[session.Status]int, len(session.AllStatuses))
	for _, st := range session.AllStatuses {
		counts[st] = 0
	}
	for _, s := range r.sessions {
		counts[s.Status]++
	}
	return counts, nil
}

func (r *SessionRepository) Subscribe(ctx context.Context, fn func(session.ChangeEvent)) error {
	ch := make(chan session.ChangeEvent, 64)

	r.mu.Lock()
	id := r.nextSub
	r.nextSub++
	r.subs[id] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.subs, id)
		r.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-ch:
			fn(ev)
		}
	}
}

// Subscribers returns the number of active subscriptions.
func (r *SessionRepository) Subscribers() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

func (r *SessionRepository) publish(ev session.ChangeEvent) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ch := range r.subs {
		select {
		case ch <- ev:
		default:
			// Slow subscriber; counters are refreshed on the next event.
		}
	}
}
