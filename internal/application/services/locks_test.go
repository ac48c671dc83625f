package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/ruziba3vich/tax-filing-service/pkg/errors"
)

func TestSessionLocks(t *testing.T) {
	locks := NewSessionLocks()
	id := uuid.New()

	unlock, err := locks.TryLock(id)
	require.NoError(t, err)

	_, err = locks.TryLock(id)
	assert.ErrorIs(t, err, apperrors.ErrOperationInProgress)

	other, err := locks.TryLock(uuid.New())
	require.NoError(t, err)
	other()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = locks.Lock(ctx, id)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	unlock()

	again, err := locks.Lock(context.Background(), id)
	require.NoError(t, err)
	again()

	locks.mu.Lock()
	assert.Empty(t, locks.locks)
	locks.mu.Unlock()
}

func TestLockWaitsForRelease(t *testing.T) {
	locks := NewSessionLocks()
	id := uuid.New()

	unlock, err := locks.TryLock(id)
	require.NoError(t, err)

	acquired := make(chan struct{})
	go func() {
		next, err := locks.Lock(context.Background(), id)
		if assert.NoError(t, err) {
			next()
		}
		close(acquired)
	}()

	select {
	case <-acquired:
		t.Fatal("lock acquired while held")
	case <-time.After(20 * time.Millisecond):
	}

	unlock()
	<-acquired
}

func TestInflight(t *testing.T) {
	set := newInflight()
	id := uuid.New()

	assert.True(t, set.add(id))
	assert.False(t, set.add(id))
	assert.True(t, set.has(id))

	set.remove(id)
	assert.False(t, set.has(id))
}
