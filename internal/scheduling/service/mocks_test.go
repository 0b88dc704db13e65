package service

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	schedulingerrors "lectio/internal/scheduling/errors"
	mongotx "lectio/pkg/db/mongo"
	"lectio/pkg/model"
)

// Mock repository for testing
type mockBookingRepository struct {
	createFunc          func(ctx context.Context, booking *model.Booking) error
	findByIDFunc        func(ctx context.Context, id string) (*model.Booking, error)
	findAllFunc         func(ctx context.Context, limit int, offset int64) ([]*model.Booking, error)
	countFunc           func(ctx context.Context) (int64, error)
	deleteFunc          func(ctx context.Context, id string) error
	findOverlappingFunc func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error)
}

func (m *mockBookingRepository) Create(ctx context.Context, booking *model.Booking) error {
	if m.createFunc != nil {
		return m.createFunc(ctx, booking)
	}
	return nil
}

func (m *mockBookingRepository) FindByID(ctx context.Context, id string) (*model.Booking, error) {
	if m.findByIDFunc != nil {
		return m.findByIDFunc(ctx, id)
	}
	return nil, schedulingerrors.ErrNotFound
}

func (m *mockBookingRepository) FindAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, error) {
	if m.findAllFunc != nil {
		return m.findAllFunc(ctx, limit, offset)
	}
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) Count(ctx context.Context) (int64, error) {
	if m.countFunc != nil {
		return m.countFunc(ctx)
	}
	return 0, nil
}

func (m *mockBookingRepository) Delete(ctx context.Context, id string) error {
	if m.deleteFunc != nil {
		return m.deleteFunc(ctx, id)
	}
	return nil
}

func (m *mockBookingRepository) FindByBatchAndModule(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, error) {
	return []*model.Booking{}, nil
}

func (m *mockBookingRepository) CountByBatchAndModule(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time) (int64, error) {
	return 0, nil
}

func (m *mockBookingRepository) FindOverlapping(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
	if m.findOverlappingFunc != nil {
		return m.findOverlappingFunc(ctx, ref, startTime, endTime)
	}
	return []model.Reservation{}, nil
}

func (m *mockBookingRepository) ExecuteTransaction(ctx context.Context, fn mongotx.TransactionFunc) error {
	var sessCtx mongo.SessionContext
	return fn(sessCtx)
}

// memoryLockRepository is an in-process stand-in for the Mongo advisory lock
// collection with the same contract: test-and-set keyed by lock ID, expired
// claims are taken over, releases require the owning token.
type memoryLockRepository struct {
	mu    sync.Mutex
	locks map[string]memoryLock
}

type memoryLock struct {
	owner     string
	expiresAt time.Time
}

func newMemoryLockRepository() *memoryLockRepository {
	return &memoryLockRepository{locks: make(map[string]memoryLock)}
}

func (r *memoryLockRepository) Acquire(ctx context.Context, lockID, owner string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now()
	if existing, ok := r.locks[lockID]; ok && existing.owner != owner && existing.expiresAt.After(now) {
		return schedulingerrors.ErrLockNotAcquired
	}

	r.locks[lockID] = memoryLock{owner: owner, expiresAt: now.Add(ttl)}
	return nil
}

func (r *memoryLockRepository) Release(ctx context.Context, lockID, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.locks[lockID]; ok && existing.owner == owner {
		delete(r.locks, lockID)
	}
	return nil
}

func (r *memoryLockRepository) heldCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.locks)
}

// Mock directory for testing
type mockDirectory struct {
	lecturers  []model.Lecturer
	classrooms []model.Classroom
	equipment  []model.Equipment

	getBatchFunc  func(ctx context.Context, batchID string) (*model.Batch, error)
	getModuleFunc func(ctx context.Context, moduleID string) (*model.Module, error)
}

func (m *mockDirectory) GetBatch(ctx context.Context, batchID string) (*model.Batch, error) {
	if m.getBatchFunc != nil {
		return m.getBatchFunc(ctx, batchID)
	}
	return &model.Batch{ID: batchID, Name: "CS Year 2", Size: 90}, nil
}

func (m *mockDirectory) GetModule(ctx context.Context, moduleID string) (*model.Module, error) {
	if m.getModuleFunc != nil {
		return m.getModuleFunc(ctx, moduleID)
	}
	return &model.Module{ID: moduleID, Name: "Databases"}, nil
}

func (m *mockDirectory) GetModuleLecturers(ctx context.Context, moduleID string) ([]model.Lecturer, error) {
	return m.lecturers, nil
}

func (m *mockDirectory) GetClassrooms(ctx context.Context) ([]model.Classroom, error) {
	return m.classrooms, nil
}

func (m *mockDirectory) GetEquipment(ctx context.Context) ([]model.Equipment, error) {
	return m.equipment, nil
}

// Mock publisher for testing
type mockPublisher struct {
	mu        sync.Mutex
	committed []string
	cancelled []string
}

func (m *mockPublisher) BookingCommitted(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.committed = append(m.committed, booking.ID)
	return nil
}

func (m *mockPublisher) BookingCancelled(ctx context.Context, booking *model.Booking) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancelled = append(m.cancelled, booking.ID)
	return nil
}

func (m *mockPublisher) Close() error { return nil }
