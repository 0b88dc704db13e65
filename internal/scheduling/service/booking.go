package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/mongo"

	"lectio/internal/directory"
	schedulingerrors "lectio/internal/scheduling/errors"
	"lectio/internal/scheduling/events"
	"lectio/internal/scheduling/repository"
	"lectio/internal/scheduling/validator"
	"lectio/pkg/config"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/model"
	"lectio/pkg/timeslot"
)

// BookingService is the only mutating entry point of the engine. Commit and
// Cancel claim every referenced resource in a fixed global order, re-validate
// against the current store state and write or remove the booking as a single
// atomic unit.
type BookingService interface {
	Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error)
	Cancel(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*model.Booking, error)
	GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error)
	Search(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, int64, error)
}

type bookingService struct {
	repo      repository.BookingRepository
	directory directory.Service
	validator *validator.BookingValidator
	publisher events.Publisher
	claimer   *claimer
	policy    timeslot.Policy
	cfg       *config.Config
}

func NewBookingService(
	repo repository.BookingRepository,
	lockRepo repository.ResourceLockRepository,
	dir directory.Service,
	v *validator.BookingValidator,
	publisher events.Publisher,
	cfg *config.Config,
) BookingService {
	return &bookingService{
		repo:      repo,
		directory: dir,
		validator: v,
		publisher: publisher,
		claimer: &claimer{
			locks:    lockRepo,
			ttl:      cfg.ResourceLockTTL,
			retry:    cfg.ResourceLockRetry,
			deadline: cfg.ResourceLockDeadline,
			log:      cfg.Log,
		},
		policy: timeslot.Policy{
			Grace:       cfg.BookingGracePeriod,
			MaxDuration: cfg.MaxLectureDuration,
		},
		cfg: cfg,
	}
}

// Commit books a lecture. Not idempotent: every accepted call creates a new
// booking; retry-safety belongs to the HTTP idempotency layer.
func (s *bookingService) Commit(ctx context.Context, req *model.BookingRequest) (*model.Booking, error) {
	if err := s.validator.ValidateBookingRequest(req); err != nil {
		s.cfg.Log.Warn("Booking request validation failed", "error", err)
		return nil, apperrors.Validation("Invalid booking request", map[string]any{"error": err.Error()})
	}

	// Window and directory checks run before any resource claim is taken.
	window, err := s.policy.Normalize(req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperrors.InvalidWindow(err.Error())
	}

	equipmentTotals, err := s.validateDirectory(ctx, req)
	if err != nil {
		return nil, err
	}

	release, err := s.claimer.claim(ctx, req.ResourceRefs())
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-check against current store state, not any earlier resolve
	// snapshot. All failures are collected so the caller sees every
	// conflicting resource at once.
	conflicts, err := s.findConflicts(ctx, req, window, equipmentTotals)
	if err != nil {
		return nil, err
	}
	if len(conflicts) > 0 {
		return nil, apperrors.ConflictSet("One or more requested resources are unavailable for this window", conflicts)
	}

	booking := s.buildBooking(req, window)
	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Create(sessCtx, booking); err != nil {
			return apperrors.Internal("Failed to create booking", err)
		}
		return nil
	})
	if err != nil {
		s.cfg.Log.Error("Failed to commit booking", "error", err)
		return nil, err
	}

	if err := s.publisher.BookingCommitted(ctx, booking); err != nil {
		s.cfg.Log.Warn("Failed to publish booking event", "booking_id", booking.ID, "error", err)
	}

	s.cfg.Log.Info("Booking committed",
		"id", booking.ID,
		"batch_id", booking.BatchID,
		"module_id", booking.ModuleID,
		"window", window.String(),
		"reservations", len(booking.Reservations),
	)
	return booking, nil
}

// Cancel removes a booking and all of its reservations atomically, under the
// same resource-claim discipline as Commit so it serializes against
// concurrent commits on the same resources.
func (s *bookingService) Cancel(ctx context.Context, id string) error {
	if id == "" {
		return apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return s.mapLookupError(err, id)
	}

	release, err := s.claimer.claim(ctx, booking.ResourceRefs())
	if err != nil {
		return err
	}
	defer release()

	err = s.repo.ExecuteTransaction(ctx, func(sessCtx mongo.SessionContext) error {
		if err := s.repo.Delete(sessCtx, id); err != nil {
			if errors.Is(err, schedulingerrors.ErrNotFound) {
				return apperrors.NotFoundWithID("Booking", id)
			}
			return apperrors.Internal("Failed to cancel booking", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := s.publisher.BookingCancelled(ctx, booking); err != nil {
		s.cfg.Log.Warn("Failed to publish cancellation event", "booking_id", id, "error", err)
	}

	s.cfg.Log.Info("Booking cancelled", "id", id)
	return nil
}

func (s *bookingService) GetByID(ctx context.Context, id string) (*model.Booking, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Booking ID cannot be empty")
	}

	booking, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapLookupError(err, id)
	}

	return booking, nil
}

func (s *bookingService) GetAll(ctx context.Context, limit int, offset int64) ([]*model.Booking, int64, error) {
	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.repo.Count(ctx)
		if errCount != nil {
			s.cfg.Log.Error("Failed to count bookings", "error", errCount)
			errCount = apperrors.Internal("Failed to count bookings", errCount)
		}
	}()

	go func() {
		defer wg.Done()
		bookings, errFind = s.repo.FindAll(ctx, limit, offset)
		if errFind != nil {
			s.cfg.Log.Error("Failed to list bookings", "error", errFind)
			errFind = apperrors.Internal("Failed to retrieve bookings", errFind)
		}
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

func (s *bookingService) Search(ctx context.Context, batchID, moduleID string, startTime, endTime *time.Time, limit int, offset int64) ([]*model.Booking, int64, error) {
	if batchID == "" && moduleID == "" {
		return nil, 0, apperrors.InvalidInput("At least one of batch_id and module_id is required")
	}

	var count int64
	var bookings []*model.Booking
	var errCount, errFind error
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		var err error
		count, err = s.repo.CountByBatchAndModule(ctx, batchID, moduleID, startTime, endTime)
		if err != nil {
			s.cfg.Log.Error("Failed to count bookings by search",
				"batch_id", batchID,
				"module_id", moduleID,
				"error", err,
			)
			errCount = apperrors.Internal("Failed to count bookings", err)
		}
	}()

	go func() {
		defer wg.Done()
		var err error
		bookings, err = s.repo.FindByBatchAndModule(ctx, batchID, moduleID, startTime, endTime, limit, offset)
		if err != nil {
			s.cfg.Log.Error("Failed to search bookings",
				"batch_id", batchID,
				"module_id", moduleID,
				"error", err,
			)
			errFind = apperrors.Internal("Failed to search bookings", err)
		}
	}()

	wg.Wait()

	if errCount != nil {
		return nil, 0, errCount
	}
	if errFind != nil {
		return nil, 0, errFind
	}

	return bookings, count, nil
}

// --- Helpers ---

// validateDirectory checks every referenced ID against the directory before
// any claim is taken, and returns the equipment pool totals needed for the
// capacity check under claims.
func (s *bookingService) validateDirectory(ctx context.Context, req *model.BookingRequest) (map[string]model.Equipment, error) {
	if _, err := s.directory.GetBatch(ctx, req.BatchID); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetModule(ctx, req.ModuleID); err != nil {
		return nil, err
	}

	assigned, err := s.directory.GetModuleLecturers(ctx, req.ModuleID)
	if err != nil {
		return nil, err
	}
	lecturerAssigned := false
	for _, lecturer := range assigned {
		if lecturer.ID == req.LecturerID {
			lecturerAssigned = true
			break
		}
	}
	if !lecturerAssigned {
		return nil, apperrors.NotFoundWithID("Module lecturer", req.LecturerID)
	}

	classrooms, err := s.directory.GetClassrooms(ctx)
	if err != nil {
		return nil, err
	}
	knownClassrooms := make(map[string]bool, len(classrooms))
	for _, c := range classrooms {
		knownClassrooms[c.ID] = true
	}
	for _, id := range req.ClassroomIDs {
		if !knownClassrooms[id] {
			return nil, apperrors.NotFoundWithID("Classroom", id)
		}
	}

	pools, err := s.directory.GetEquipment(ctx)
	if err != nil {
		return nil, err
	}
	totals := make(map[string]model.Equipment, len(pools))
	for _, pool := range pools {
		totals[pool.ID] = pool
	}
	for _, eq := range req.Equipment {
		pool, ok := totals[eq.ID]
		if !ok {
			return nil, apperrors.NotFoundWithID("Equipment", eq.ID)
		}
		if eq.Quantity > pool.TotalQuantity {
			return nil, apperrors.Validation("Requested equipment quantity exceeds the pool size", map[string]any{
				"equipment_id": eq.ID,
				"requested":    eq.Quantity,
				"total":        pool.TotalQuantity,
			})
		}
	}

	return totals, nil
}

// findConflicts re-runs the availability checks against current state. Every
// failing resource is reported, never just the first, so the caller can show
// all conflicts at once.
func (s *bookingService) findConflicts(
	ctx context.Context,
	req *model.BookingRequest,
	window timeslot.Window,
	equipmentTotals map[string]model.Equipment,
) ([]model.Conflict, error) {
	var conflicts []model.Conflict

	exclusive := []model.ResourceRef{{Kind: model.KindLecturer, ID: req.LecturerID}}
	for _, id := range req.ClassroomIDs {
		exclusive = append(exclusive, model.ResourceRef{Kind: model.KindClassroom, ID: id})
	}

	for _, ref := range exclusive {
		overlapping, err := s.repo.FindOverlapping(ctx, ref, window.Start, window.End)
		if err != nil {
			return nil, apperrors.Internal("Failed to re-check resource availability", err)
		}
		for _, res := range overlapping {
			overlap := timeslot.Intersection(window, res.Window())
			conflicts = append(conflicts, model.Conflict{
				Resource:     ref,
				BookingID:    res.BookingID,
				OverlapStart: overlap.Start,
				OverlapEnd:   overlap.End,
			})
		}
	}

	for _, eq := range req.Equipment {
		ref := model.ResourceRef{Kind: model.KindEquipment, ID: eq.ID}
		overlapping, err := s.repo.FindOverlapping(ctx, ref, window.Start, window.End)
		if err != nil {
			return nil, apperrors.Internal("Failed to re-check equipment availability", err)
		}

		reserved := 0
		for _, res := range overlapping {
			reserved += res.Quantity
		}
		available := equipmentTotals[eq.ID].TotalQuantity - reserved
		if available < 0 {
			available = 0
		}
		if eq.Quantity > available {
			conflicts = append(conflicts, model.Conflict{
				Resource:  ref,
				Requested: eq.Quantity,
				Available: available,
			})
		}
	}

	return conflicts, nil
}

func (s *bookingService) buildBooking(req *model.BookingRequest, window timeslot.Window) *model.Booking {
	reservations := make([]model.Reservation, 0, 1+len(req.ClassroomIDs)+len(req.Equipment))
	reservations = append(reservations, model.Reservation{
		ResourceKind: model.KindLecturer,
		ResourceID:   req.LecturerID,
		Quantity:     1,
		StartTime:    window.Start,
		EndTime:      window.End,
	})
	for _, id := range req.ClassroomIDs {
		reservations = append(reservations, model.Reservation{
			ResourceKind: model.KindClassroom,
			ResourceID:   id,
			Quantity:     1,
			StartTime:    window.Start,
			EndTime:      window.End,
		})
	}
	for _, eq := range req.Equipment {
		reservations = append(reservations, model.Reservation{
			ResourceKind: model.KindEquipment,
			ResourceID:   eq.ID,
			Quantity:     eq.Quantity,
			StartTime:    window.Start,
			EndTime:      window.End,
		})
	}

	return &model.Booking{
		BatchID:      req.BatchID,
		ModuleID:     req.ModuleID,
		StartTime:    window.Start,
		EndTime:      window.End,
		Reservations: reservations,
	}
}

func (s *bookingService) mapLookupError(err error, id string) error {
	if errors.Is(err, schedulingerrors.ErrNotFound) {
		return apperrors.NotFoundWithID("Booking", id)
	}
	if errors.Is(err, schedulingerrors.ErrInvalidID) {
		return apperrors.InvalidInput(fmt.Sprintf("Invalid booking ID format: %s", id))
	}
	return apperrors.Internal("Failed to retrieve booking", err)
}
