package repository

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	schedulingerrors "lectio/internal/scheduling/errors"
	"lectio/pkg/config"
	"lectio/pkg/model"
)

const ResourceLocksCollection = "Resource_locks"

// ResourceLockRepository provides advisory locks over individual resources.
// A commit claims every resource it references before re-checking overlaps;
// the unique _id makes the insert a test-and-set.
type ResourceLockRepository interface {
	Acquire(ctx context.Context, lockID, owner string, ttl time.Duration) error
	Release(ctx context.Context, lockID, owner string) error
}

type mongoResourceLockRepository struct {
	collection *mongo.Collection
}

func NewResourceLockRepository(cfg *config.Config) ResourceLockRepository {
	db := cfg.Client.Mongo.Database(cfg.MongoDatabaseName)
	return &mongoResourceLockRepository{
		collection: db.Collection(ResourceLocksCollection),
	}
}

// Acquire claims the lock, taking over an expired claim when it finds one.
// Returns ErrLockNotAcquired while a live claim by another owner exists.
func (r *mongoResourceLockRepository) Acquire(ctx context.Context, lockID, owner string, ttl time.Duration) error {
	now := time.Now()
	lock := &model.ResourceLock{
		ID:        lockID,
		Owner:     owner,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}

	_, err := r.collection.InsertOne(ctx, lock)
	if err == nil {
		return nil
	}
	if !mongo.IsDuplicateKeyError(err) {
		return fmt.Errorf("failed to acquire resource lock %s: %w", lockID, err)
	}

	// A claim exists. Reap it if expired, then retry the insert once.
	res, err := r.collection.DeleteOne(ctx, bson.M{
		"_id":        lockID,
		"expires_at": bson.M{"$lt": now},
	})
	if err != nil {
		return fmt.Errorf("failed to reap expired lock %s: %w", lockID, err)
	}
	if res.DeletedCount == 0 {
		return schedulingerrors.ErrLockNotAcquired
	}

	_, err = r.collection.InsertOne(ctx, lock)
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return schedulingerrors.ErrLockNotAcquired
		}
		return fmt.Errorf("failed to acquire resource lock %s: %w", lockID, err)
	}
	return nil
}

// Release drops the claim. The owner filter keeps a slow request from
// releasing a lock that expired and was re-acquired by someone else.
func (r *mongoResourceLockRepository) Release(ctx context.Context, lockID, owner string) error {
	_, err := r.collection.DeleteOne(ctx, bson.M{"_id": lockID, "owner": owner})
	return err
}
