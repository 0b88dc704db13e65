package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	schedulingerrors "lectio/internal/scheduling/errors"
	"lectio/internal/scheduling/validator"
	"lectio/pkg/config"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/logger"
	"lectio/pkg/model"
	"lectio/pkg/timeslot"
)

const (
	testBatchID     = "64f0a0000000000000000001"
	testModuleID    = "64f0a0000000000000000002"
	testLecturerID  = "64f0a0000000000000000003"
	testLecturer2ID = "64f0a0000000000000000004"
	testClassroomID = "64f0a0000000000000000005"
	testClassroom2  = "64f0a0000000000000000006"
	testEquipmentID = "64f0a0000000000000000007"
)

var testNow = time.Date(2026, 9, 1, 8, 0, 0, 0, time.UTC)

func testDirectory() *mockDirectory {
	return &mockDirectory{
		lecturers: []model.Lecturer{
			{ID: testLecturerID, Name: "Dr. Ada"},
			{ID: testLecturer2ID, Name: "Dr. Berners"},
		},
		classrooms: []model.Classroom{
			{ID: testClassroomID, Name: "Room A", Capacity: 120},
			{ID: testClassroom2, Name: "Room B", Capacity: 40},
		},
		equipment: []model.Equipment{
			{ID: testEquipmentID, Name: "Projector", TotalQuantity: 10},
		},
	}
}

func newTestBookingService(repo *mockBookingRepository, locks *memoryLockRepository, dir *mockDirectory, pub *mockPublisher) *bookingService {
	log := logger.Nop()
	cfg := &config.Config{
		Log:          log,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	return &bookingService{
		repo:      repo,
		directory: dir,
		validator: validator.NewBookingValidator(log),
		publisher: pub,
		claimer: &claimer{
			locks:    locks,
			ttl:      10 * time.Second,
			retry:    2 * time.Millisecond,
			deadline: 2 * time.Second,
			log:      log,
		},
		policy: timeslot.Policy{
			Grace:       5 * time.Minute,
			MaxDuration: 8 * time.Hour,
			Now:         func() time.Time { return testNow },
		},
		cfg: cfg,
	}
}

func validBookingRequest() *model.BookingRequest {
	return &model.BookingRequest{
		BatchID:      testBatchID,
		ModuleID:     testModuleID,
		StartTime:    testNow.Add(time.Hour),
		EndTime:      testNow.Add(3 * time.Hour),
		LecturerID:   testLecturerID,
		ClassroomIDs: []string{testClassroomID},
		Equipment: []model.EquipmentRequest{
			{ID: testEquipmentID, Quantity: 2},
		},
	}
}

func TestCommit_Success(t *testing.T) {
	var created *model.Booking
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			booking.ID = "64f0b0000000000000000001"
			created = booking
			return nil
		},
	}
	locks := newMemoryLockRepository()
	pub := &mockPublisher{}
	svc := newTestBookingService(repo, locks, testDirectory(), pub)

	booking, err := svc.Commit(context.Background(), validBookingRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if created == nil {
		t.Fatal("expected booking to be persisted")
	}
	// One lecturer, one classroom, one equipment line.
	if len(created.Reservations) != 3 {
		t.Errorf("expected 3 reservations, got %d", len(created.Reservations))
	}
	for _, res := range created.Reservations {
		if !res.StartTime.Equal(booking.StartTime) || !res.EndTime.Equal(booking.EndTime) {
			t.Errorf("reservation window %s-%s does not match booking window", res.StartTime, res.EndTime)
		}
	}

	if len(pub.committed) != 1 || pub.committed[0] != booking.ID {
		t.Errorf("expected one committed event for %s, got %v", booking.ID, pub.committed)
	}
	if locks.heldCount() != 0 {
		t.Errorf("expected all locks released, %d still held", locks.heldCount())
	}
}

func TestCommit_NormalizesWindow(t *testing.T) {
	repo := &mockBookingRepository{}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.StartTime = time.Date(2026, 9, 1, 9, 5, 0, 0, time.UTC)
	req.EndTime = time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)

	booking, err := svc.Commit(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expectedStart := time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)
	expectedEnd := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	if !booking.StartTime.Equal(expectedStart) {
		t.Errorf("expected start 09:30, got %s", booking.StartTime)
	}
	if !booking.EndTime.Equal(expectedEnd) {
		t.Errorf("expected end 10:00, got %s", booking.EndTime)
	}
}

func TestCommit_LecturerConflict(t *testing.T) {
	existingStart := testNow.Add(time.Hour)
	existingEnd := testNow.Add(2 * time.Hour)

	createCalled := false
	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			createCalled = true
			return nil
		},
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindLecturer && ref.ID == testLecturerID {
				return []model.Reservation{{
					BookingID:    "64f0b0000000000000000099",
					ResourceKind: model.KindLecturer,
					ResourceID:   testLecturerID,
					Quantity:     1,
					StartTime:    existingStart,
					EndTime:      existingEnd,
				}}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.ClassroomIDs = []string{testClassroom2}

	_, err := svc.Commit(context.Background(), req)
	if err == nil {
		t.Fatal("expected conflict error")
	}

	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("expected code %s, got %s", apperrors.CodeConflict, appErr.Code)
	}

	conflicts, ok := appErr.Details["conflicts"].([]model.Conflict)
	if !ok {
		t.Fatalf("expected conflict details, got %T", appErr.Details["conflicts"])
	}
	if len(conflicts) != 1 {
		t.Fatalf("expected exactly 1 conflict, got %d", len(conflicts))
	}
	if conflicts[0].Resource.Kind != model.KindLecturer || conflicts[0].Resource.ID != testLecturerID {
		t.Errorf("expected lecturer conflict, got %+v", conflicts[0].Resource)
	}
	if conflicts[0].BookingID != "64f0b0000000000000000099" {
		t.Errorf("expected conflicting booking ID in conflict, got %q", conflicts[0].BookingID)
	}
	if !conflicts[0].OverlapStart.Equal(existingStart) || !conflicts[0].OverlapEnd.Equal(existingEnd) {
		t.Errorf("unexpected overlap window %s-%s", conflicts[0].OverlapStart, conflicts[0].OverlapEnd)
	}

	if createCalled {
		t.Error("no booking may be written when any resource conflicts")
	}
}

func TestCommit_EquipmentShortage(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindEquipment {
				return []model.Reservation{
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 5, StartTime: startTime, EndTime: endTime},
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 3, StartTime: startTime, EndTime: endTime},
				}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.Equipment = []model.EquipmentRequest{{ID: testEquipmentID, Quantity: 5}}

	_, err := svc.Commit(context.Background(), req)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeConflict {
		t.Fatalf("expected conflict, got %v", err)
	}

	conflicts := appErr.Details["conflicts"].([]model.Conflict)
	if len(conflicts) != 1 {
		t.Fatalf("expected 1 conflict, got %d", len(conflicts))
	}
	// Pool of 10 with 8 already reserved leaves 2.
	if conflicts[0].Requested != 5 || conflicts[0].Available != 2 {
		t.Errorf("expected requested 5 / available 2, got %d / %d", conflicts[0].Requested, conflicts[0].Available)
	}
}

func TestCommit_EquipmentSharedWithinCapacity(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindEquipment {
				return []model.Reservation{
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 3, StartTime: startTime, EndTime: endTime},
				}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.Equipment = []model.EquipmentRequest{{ID: testEquipmentID, Quantity: 5}}

	if _, err := svc.Commit(context.Background(), req); err != nil {
		t.Fatalf("overlapping equipment within capacity must succeed, got %v", err)
	}
}

func TestCommit_PastWindowRejected(t *testing.T) {
	svc := newTestBookingService(&mockBookingRepository{}, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.StartTime = testNow.Add(-2 * time.Hour)
	req.EndTime = testNow.Add(-time.Hour)

	_, err := svc.Commit(context.Background(), req)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidWindow {
		t.Errorf("expected %s, got %v", apperrors.CodeInvalidWindow, err)
	}
}

func TestCommit_LecturerNotAssignedToModule(t *testing.T) {
	svc := newTestBookingService(&mockBookingRepository{}, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.LecturerID = "64f0a00000000000000000ff"

	_, err := svc.Commit(context.Background(), req)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %v", apperrors.CodeNotFound, err)
	}
}

func TestCommit_ValidationError(t *testing.T) {
	svc := newTestBookingService(&mockBookingRepository{}, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	req := validBookingRequest()
	req.ClassroomIDs = nil

	_, err := svc.Commit(context.Background(), req)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeValidation {
		t.Errorf("expected %s, got %v", apperrors.CodeValidation, err)
	}
}

// Two concurrent commits against the same equipment pool must serialize on the
// resource claim and then both succeed while the pool has capacity for both.
func TestCommit_ConcurrentEquipmentCommits(t *testing.T) {
	var mu sync.Mutex
	var committed []model.Reservation
	var nextID int

	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			mu.Lock()
			defer mu.Unlock()
			nextID++
			booking.ID = fmt.Sprintf("%024d", nextID)
			for i := range booking.Reservations {
				booking.Reservations[i].BookingID = booking.ID
			}
			committed = append(committed, booking.Reservations...)
			return nil
		},
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []model.Reservation
			for _, res := range committed {
				if res.ResourceKind == ref.Kind && res.ResourceID == ref.ID &&
					res.StartTime.Before(endTime) && startTime.Before(res.EndTime) {
					out = append(out, res)
				}
			}
			return out, nil
		},
	}
	locks := newMemoryLockRepository()
	dir := testDirectory()

	requests := []*model.BookingRequest{
		{
			BatchID:      testBatchID,
			ModuleID:     testModuleID,
			StartTime:    testNow.Add(time.Hour),
			EndTime:      testNow.Add(2 * time.Hour),
			LecturerID:   testLecturerID,
			ClassroomIDs: []string{testClassroomID},
			Equipment:    []model.EquipmentRequest{{ID: testEquipmentID, Quantity: 4}},
		},
		{
			BatchID:      testBatchID,
			ModuleID:     testModuleID,
			StartTime:    testNow.Add(time.Hour),
			EndTime:      testNow.Add(2 * time.Hour),
			LecturerID:   testLecturer2ID,
			ClassroomIDs: []string{testClassroom2},
			Equipment:    []model.EquipmentRequest{{ID: testEquipmentID, Quantity: 4}},
		},
	}

	var wg sync.WaitGroup
	errs := make([]error, len(requests))
	for i, req := range requests {
		wg.Add(1)
		go func(i int, req *model.BookingRequest) {
			defer wg.Done()
			svc := newTestBookingService(repo, locks, dir, &mockPublisher{})
			_, errs[i] = svc.Commit(context.Background(), req)
		}(i, req)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("commit %d failed: %v", i, err)
		}
	}

	mu.Lock()
	reserved := 0
	for _, res := range committed {
		if res.ResourceKind == model.KindEquipment {
			reserved += res.Quantity
		}
	}
	mu.Unlock()
	if reserved != 8 {
		t.Errorf("expected 8 units reserved in total, got %d", reserved)
	}
	if locks.heldCount() != 0 {
		t.Errorf("expected all locks released, %d still held", locks.heldCount())
	}
}

// When two concurrent commits together exceed the pool, exactly one must win.
func TestCommit_ConcurrentEquipmentOverCapacity(t *testing.T) {
	var mu sync.Mutex
	var committed []model.Reservation
	var nextID int

	repo := &mockBookingRepository{
		createFunc: func(ctx context.Context, booking *model.Booking) error {
			mu.Lock()
			defer mu.Unlock()
			nextID++
			booking.ID = fmt.Sprintf("%024d", nextID)
			committed = append(committed, booking.Reservations...)
			return nil
		},
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			mu.Lock()
			defer mu.Unlock()
			var out []model.Reservation
			for _, res := range committed {
				if res.ResourceKind == ref.Kind && res.ResourceID == ref.ID &&
					res.StartTime.Before(endTime) && startTime.Before(res.EndTime) {
					out = append(out, res)
				}
			}
			return out, nil
		},
	}
	locks := newMemoryLockRepository()
	dir := testDirectory()

	lecturers := []string{testLecturerID, testLecturer2ID}
	classrooms := []string{testClassroomID, testClassroom2}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			svc := newTestBookingService(repo, locks, dir, &mockPublisher{})
			req := &model.BookingRequest{
				BatchID:      testBatchID,
				ModuleID:     testModuleID,
				StartTime:    testNow.Add(time.Hour),
				EndTime:      testNow.Add(2 * time.Hour),
				LecturerID:   lecturers[i],
				ClassroomIDs: []string{classrooms[i]},
				Equipment:    []model.EquipmentRequest{{ID: testEquipmentID, Quantity: 6}},
			}
			_, errs[i] = svc.Commit(context.Background(), req)
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err != nil {
			if apperrors.AsAppError(err).Code != apperrors.CodeConflict {
				t.Errorf("expected conflict, got %v", err)
			}
			failures++
		}
	}
	if failures != 1 {
		t.Errorf("expected exactly one commit to fail, got %d failures", failures)
	}
}

func TestCancel_Success(t *testing.T) {
	booking := &model.Booking{
		ID:        "64f0b0000000000000000001",
		BatchID:   testBatchID,
		ModuleID:  testModuleID,
		StartTime: testNow.Add(time.Hour),
		EndTime:   testNow.Add(2 * time.Hour),
		Reservations: []model.Reservation{
			{BookingID: "64f0b0000000000000000001", ResourceKind: model.KindLecturer, ResourceID: testLecturerID, Quantity: 1},
			{BookingID: "64f0b0000000000000000001", ResourceKind: model.KindClassroom, ResourceID: testClassroomID, Quantity: 1},
		},
	}

	deleted := ""
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			if id == booking.ID {
				return booking, nil
			}
			return nil, schedulingerrors.ErrNotFound
		},
		deleteFunc: func(ctx context.Context, id string) error {
			deleted = id
			return nil
		},
	}
	locks := newMemoryLockRepository()
	pub := &mockPublisher{}
	svc := newTestBookingService(repo, locks, testDirectory(), pub)

	if err := svc.Cancel(context.Background(), booking.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if deleted != booking.ID {
		t.Errorf("expected booking %s deleted, got %q", booking.ID, deleted)
	}
	if len(pub.cancelled) != 1 || pub.cancelled[0] != booking.ID {
		t.Errorf("expected one cancelled event, got %v", pub.cancelled)
	}
	if locks.heldCount() != 0 {
		t.Errorf("expected all locks released, %d still held", locks.heldCount())
	}
}

func TestCancel_NotFound(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return nil, schedulingerrors.ErrNotFound
		},
	}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	err := svc.Cancel(context.Background(), "64f0b00000000000000000ff")
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %v", apperrors.CodeNotFound, err)
	}
}

func TestGetByID_InvalidID(t *testing.T) {
	repo := &mockBookingRepository{
		findByIDFunc: func(ctx context.Context, id string) (*model.Booking, error) {
			return nil, fmt.Errorf("%w: %s", schedulingerrors.ErrInvalidID, id)
		},
	}
	svc := newTestBookingService(repo, newMemoryLockRepository(), testDirectory(), &mockPublisher{})

	_, err := svc.GetByID(context.Background(), "not-an-id")
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidInput {
		t.Errorf("expected %s, got %v", apperrors.CodeInvalidInput, err)
	}
}
