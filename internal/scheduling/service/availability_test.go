package service

import (
	"context"
	"testing"
	"time"

	"lectio/internal/scheduling/validator"
	"lectio/pkg/config"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/logger"
	"lectio/pkg/model"
	"lectio/pkg/timeslot"
)

func newTestAvailabilityService(repo *mockBookingRepository, dir *mockDirectory) *availabilityService {
	log := logger.Nop()
	return &availabilityService{
		repo:      repo,
		directory: dir,
		validator: validator.NewBookingValidator(log),
		policy: timeslot.Policy{
			Grace:       5 * time.Minute,
			MaxDuration: 8 * time.Hour,
			Now:         func() time.Time { return testNow },
		},
		cfg: &config.Config{Log: log},
	}
}

func availabilityRequest() *model.AvailabilityRequest {
	return &model.AvailabilityRequest{
		BatchID:   testBatchID,
		ModuleID:  testModuleID,
		StartTime: testNow.Add(time.Hour),
		EndTime:   testNow.Add(3 * time.Hour),
	}
}

func TestResolve_FiltersBusyLecturers(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindLecturer && ref.ID == testLecturerID {
				return []model.Reservation{{
					ResourceKind: model.KindLecturer,
					ResourceID:   testLecturerID,
					Quantity:     1,
					StartTime:    startTime,
					EndTime:      endTime,
				}}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestAvailabilityService(repo, testDirectory())

	availability, err := svc.Resolve(context.Background(), availabilityRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(availability.Lecturers) != 1 {
		t.Fatalf("expected 1 free lecturer, got %d", len(availability.Lecturers))
	}
	if availability.Lecturers[0].ID != testLecturer2ID {
		t.Errorf("expected %s to be free, got %s", testLecturer2ID, availability.Lecturers[0].ID)
	}
}

func TestResolve_ClassroomsWithOverlapExcluded(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindClassroom && ref.ID == testClassroomID {
				return []model.Reservation{{
					ResourceKind: model.KindClassroom,
					ResourceID:   testClassroomID,
					Quantity:     1,
					StartTime:    startTime,
					EndTime:      endTime,
				}}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestAvailabilityService(repo, testDirectory())

	availability, err := svc.Resolve(context.Background(), availabilityRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(availability.Classrooms) != 1 {
		t.Fatalf("expected 1 free classroom, got %d", len(availability.Classrooms))
	}
	if availability.Classrooms[0].ID != testClassroom2 {
		t.Errorf("expected %s to be free, got %s", testClassroom2, availability.Classrooms[0].ID)
	}
	// Capacity rides along as data; the engine never filters on it.
	if availability.Classrooms[0].Capacity != 40 {
		t.Errorf("expected capacity 40, got %d", availability.Classrooms[0].Capacity)
	}
}

func TestResolve_EquipmentQuantitiesSummed(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindEquipment {
				// Two distinct bookings draw from the same pool.
				return []model.Reservation{
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 2, StartTime: startTime, EndTime: endTime},
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 3, StartTime: startTime, EndTime: endTime},
				}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestAvailabilityService(repo, testDirectory())

	availability, err := svc.Resolve(context.Background(), availabilityRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(availability.Equipment) != 1 {
		t.Fatalf("expected 1 equipment pool, got %d", len(availability.Equipment))
	}
	eq := availability.Equipment[0]
	if eq.TotalQuantity != 10 || eq.AvailableQuantity != 5 {
		t.Errorf("expected 5 of 10 available, got %d of %d", eq.AvailableQuantity, eq.TotalQuantity)
	}
}

func TestResolve_ExhaustedPoolStillListed(t *testing.T) {
	repo := &mockBookingRepository{
		findOverlappingFunc: func(ctx context.Context, ref model.ResourceRef, startTime, endTime time.Time) ([]model.Reservation, error) {
			if ref.Kind == model.KindEquipment {
				return []model.Reservation{
					{ResourceKind: model.KindEquipment, ResourceID: testEquipmentID, Quantity: 10, StartTime: startTime, EndTime: endTime},
				}, nil
			}
			return []model.Reservation{}, nil
		},
	}
	svc := newTestAvailabilityService(repo, testDirectory())

	availability, err := svc.Resolve(context.Background(), availabilityRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(availability.Equipment) != 1 {
		t.Fatalf("expected exhausted pool to be listed, got %d pools", len(availability.Equipment))
	}
	if availability.Equipment[0].AvailableQuantity != 0 {
		t.Errorf("expected 0 available, got %d", availability.Equipment[0].AvailableQuantity)
	}
}

func TestResolve_WindowNormalized(t *testing.T) {
	svc := newTestAvailabilityService(&mockBookingRepository{}, testDirectory())

	req := availabilityRequest()
	req.StartTime = time.Date(2026, 9, 1, 9, 5, 0, 0, time.UTC)
	req.EndTime = time.Date(2026, 9, 1, 9, 55, 0, 0, time.UTC)

	availability, err := svc.Resolve(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !availability.Window.Start.Equal(time.Date(2026, 9, 1, 9, 30, 0, 0, time.UTC)) {
		t.Errorf("expected normalized start 09:30, got %s", availability.Window.Start)
	}
	if !availability.Window.End.Equal(time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)) {
		t.Errorf("expected normalized end 10:00, got %s", availability.Window.End)
	}
}

func TestResolve_InvalidWindow(t *testing.T) {
	svc := newTestAvailabilityService(&mockBookingRepository{}, testDirectory())

	req := availabilityRequest()
	req.StartTime = testNow.Add(3 * time.Hour)
	req.EndTime = testNow.Add(time.Hour)

	_, err := svc.Resolve(context.Background(), req)
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeInvalidWindow {
		t.Errorf("expected %s, got %v", apperrors.CodeInvalidWindow, err)
	}
}

func TestResolve_UnknownBatch(t *testing.T) {
	dir := testDirectory()
	dir.getBatchFunc = func(ctx context.Context, batchID string) (*model.Batch, error) {
		return nil, apperrors.NotFoundWithID("Batch", batchID)
	}
	svc := newTestAvailabilityService(&mockBookingRepository{}, dir)

	_, err := svc.Resolve(context.Background(), availabilityRequest())
	appErr := apperrors.AsAppError(err)
	if appErr.Code != apperrors.CodeNotFound {
		t.Errorf("expected %s, got %v", apperrors.CodeNotFound, err)
	}
}
