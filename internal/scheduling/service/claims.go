package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	schedulingerrors "lectio/internal/scheduling/errors"
	"lectio/internal/scheduling/repository"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/logger"
	"lectio/pkg/model"
)

// claimer serializes commits and cancels that touch the same resources.
// Callers pass every resource the request references; locks are taken in the
// fixed global order from model.SortRefs, so two concurrent requests with
// overlapping resource sets cannot deadlock, and requests with disjoint sets
// never wait on each other.
type claimer struct {
	locks    repository.ResourceLockRepository
	ttl      time.Duration
	retry    time.Duration
	deadline time.Duration
	log      *logger.Logger
}

// claim acquires an advisory lock for every ref. On success the returned
// release function drops all locks; on failure nothing stays held.
func (c *claimer) claim(ctx context.Context, refs []model.ResourceRef) (func(), error) {
	sorted := make([]model.ResourceRef, len(refs))
	copy(sorted, refs)
	model.SortRefs(sorted)

	owner := uuid.New().String()

	claimCtx, cancel := context.WithTimeout(ctx, c.deadline)
	defer cancel()

	held := make([]string, 0, len(sorted))
	release := func() {
		// Locks are dropped even when the request context is gone.
		releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer releaseCancel()
		for i := len(held) - 1; i >= 0; i-- {
			if err := c.locks.Release(releaseCtx, held[i], owner); err != nil {
				c.log.Warn("Failed to release resource lock", "lock_id", held[i], "error", err)
			}
		}
	}

	for _, ref := range sorted {
		if err := c.acquireWithRetry(claimCtx, ref.LockID(), owner); err != nil {
			release()
			return nil, err
		}
		held = append(held, ref.LockID())
	}

	return release, nil
}

func (c *claimer) acquireWithRetry(ctx context.Context, lockID, owner string) error {
	for {
		err := c.locks.Acquire(ctx, lockID, owner, c.ttl)
		if err == nil {
			return nil
		}
		if !errors.Is(err, schedulingerrors.ErrLockNotAcquired) {
			return apperrors.Internal("Failed to claim resource", err)
		}

		select {
		case <-ctx.Done():
			return apperrors.Timeout("Timed out waiting to claim resources; please retry")
		case <-time.After(c.retry):
		}
	}
}
