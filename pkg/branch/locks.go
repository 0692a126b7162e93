package branch

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/oneconcern/revstore/pkg/core/status"
	"github.com/oneconcern/revstore/pkg/errors"
	"go.uber.org/zap"
)

var errLocked = errors.New("branch is locked")

// lockTable holds one write lock per branch. Branches are never erased, so neither are their locks.
type lockTable struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[int64]*sync.Mutex)}
}

func (t *lockTable) get(id int64) *sync.Mutex {
	t.mu.Lock()
	defer t.mu.Unlock()
	m, ok := t.locks[id]
	if !ok {
		m = &sync.Mutex{}
		t.locks[id] = m
	}
	return m
}

func (s *Store) lockPolicy(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = time.Millisecond
	policy.MaxInterval = 50 * time.Millisecond
	policy.MaxElapsedTime = s.lockTimeout
	policy.Reset()
	return backoff.WithContext(policy, ctx)
}

// Lock acquires the write lock of a branch.
//
// The lock is retried until the lock timeout elapses, then status.ErrLockTimeout is returned.
// The returned function releases the lock.
func (s *Store) Lock(ctx context.Context, id int64) (func(), error) {
	m := s.locks.get(id)
	start := time.Now()
	err := backoff.Retry(func() error {
		if m.TryLock() {
			return nil
		}
		return errLocked
	}, s.lockPolicy(ctx))
	if err != nil {
		s.l.Warn("could not acquire branch lock",
			zap.Int64("branch_id", id),
			zap.Duration("waited", time.Since(start)),
			zap.Error(err),
		)
		return nil, status.ErrLockTimeout.WrapMessage("branch %d", id).Wrap(err)
	}
	return m.Unlock, nil
}

// lockAll acquires the locks of several branches, in ascending id order
func (s *Store) lockAll(ctx context.Context, ids []int64) (func(), error) {
	unlocks := make([]func(), 0, len(ids))
	release := func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
	for _, id := range ids {
		unlock, err := s.Lock(ctx, id)
		if err != nil {
			release()
			return nil, err
		}
		unlocks = append(unlocks, unlock)
	}
	return release, nil
}
