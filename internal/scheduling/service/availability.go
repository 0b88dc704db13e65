package service

import (
	"context"

	"lectio/internal/directory"
	"lectio/internal/scheduling/repository"
	"lectio/internal/scheduling/validator"
	"lectio/pkg/config"
	apperrors "lectio/pkg/errors"
	"lectio/pkg/model"
	"lectio/pkg/timeslot"
)

// AvailabilityService answers which resources are free for a batch and module
// over a window. It is a pure read: nothing is locked or reserved, and the
// answer is advisory only. The commit path re-validates against current state
// on its own.
type AvailabilityService interface {
	Resolve(ctx context.Context, req *model.AvailabilityRequest) (*model.Availability, error)
}

type availabilityService struct {
	repo      repository.BookingRepository
	directory directory.Service
	validator *validator.BookingValidator
	policy    timeslot.Policy
	cfg       *config.Config
}

func NewAvailabilityService(
	repo repository.BookingRepository,
	dir directory.Service,
	v *validator.BookingValidator,
	cfg *config.Config,
) AvailabilityService {
	return &availabilityService{
		repo:      repo,
		directory: dir,
		validator: v,
		policy: timeslot.Policy{
			Grace:       cfg.BookingGracePeriod,
			MaxDuration: cfg.MaxLectureDuration,
		},
		cfg: cfg,
	}
}

func (s *availabilityService) Resolve(ctx context.Context, req *model.AvailabilityRequest) (*model.Availability, error) {
	if err := s.validator.ValidateAvailabilityRequest(req); err != nil {
		return nil, apperrors.Validation("Invalid availability request", map[string]any{"error": err.Error()})
	}

	window, err := s.policy.Normalize(req.StartTime, req.EndTime)
	if err != nil {
		return nil, apperrors.InvalidWindow(err.Error())
	}

	if _, err := s.directory.GetBatch(ctx, req.BatchID); err != nil {
		return nil, err
	}
	if _, err := s.directory.GetModule(ctx, req.ModuleID); err != nil {
		return nil, err
	}

	lecturers, err := s.freeLecturers(ctx, req.ModuleID, window)
	if err != nil {
		return nil, err
	}

	classrooms, err := s.freeClassrooms(ctx, window)
	if err != nil {
		return nil, err
	}

	equipment, err := s.equipmentAvailability(ctx, window)
	if err != nil {
		return nil, err
	}

	s.cfg.Log.Debug("Availability resolved",
		"batch_id", req.BatchID,
		"module_id", req.ModuleID,
		"window", window.String(),
		"lecturers", len(lecturers),
		"classrooms", len(classrooms),
		"equipment", len(equipment),
	)

	return &model.Availability{
		Window:     window,
		Lecturers:  lecturers,
		Classrooms: classrooms,
		Equipment:  equipment,
	}, nil
}

// freeLecturers returns the module's assigned lecturers with no reservation
// intersecting the window.
func (s *availabilityService) freeLecturers(ctx context.Context, moduleID string, window timeslot.Window) ([]model.Lecturer, error) {
	assigned, err := s.directory.GetModuleLecturers(ctx, moduleID)
	if err != nil {
		return nil, err
	}

	free := make([]model.Lecturer, 0, len(assigned))
	for _, lecturer := range assigned {
		ref := model.ResourceRef{Kind: model.KindLecturer, ID: lecturer.ID}
		overlapping, err := s.repo.FindOverlapping(ctx, ref, window.Start, window.End)
		if err != nil {
			return nil, apperrors.Internal("Failed to check lecturer availability", err)
		}
		if len(overlapping) == 0 {
			free = append(free, lecturer)
		}
	}
	return free, nil
}

// freeClassrooms returns every classroom with no reservation intersecting the
// window. Capacity is returned as data for the caller to filter on; the
// engine never rejects on capacity.
func (s *availabilityService) freeClassrooms(ctx context.Context, window timeslot.Window) ([]model.Classroom, error) {
	all, err := s.directory.GetClassrooms(ctx)
	if err != nil {
		return nil, err
	}

	free := make([]model.Classroom, 0, len(all))
	for _, classroom := range all {
		ref := model.ResourceRef{Kind: model.KindClassroom, ID: classroom.ID}
		overlapping, err := s.repo.FindOverlapping(ctx, ref, window.Start, window.End)
		if err != nil {
			return nil, apperrors.Internal("Failed to check classroom availability", err)
		}
		if len(overlapping) == 0 {
			free = append(free, classroom)
		}
	}
	return free, nil
}

// equipmentAvailability reports every pool with the units still free over the
// window. Equipment is counted, not exclusive: the available quantity is the
// pool total minus the sum over every overlapping reservation, not a boolean
// any-overlap check.
func (s *availabilityService) equipmentAvailability(ctx context.Context, window timeslot.Window) ([]model.EquipmentAvailability, error) {
	pools, err := s.directory.GetEquipment(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]model.EquipmentAvailability, 0, len(pools))
	for _, pool := range pools {
		ref := model.ResourceRef{Kind: model.KindEquipment, ID: pool.ID}
		overlapping, err := s.repo.FindOverlapping(ctx, ref, window.Start, window.End)
		if err != nil {
			return nil, apperrors.Internal("Failed to check equipment availability", err)
		}

		reserved := 0
		for _, res := range overlapping {
			reserved += res.Quantity
		}

		available := pool.TotalQuantity - reserved
		if available < 0 {
			available = 0
		}

		out = append(out, model.EquipmentAvailability{
			ID:                pool.ID,
			Name:              pool.Name,
			TotalQuantity:     pool.TotalQuantity,
			AvailableQuantity: available,
		})
	}
	return out, nil
}
