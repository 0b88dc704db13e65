package model

import "time"

// AvailabilityRequest asks which resources are free for a batch and module
// over a window.
type AvailabilityRequest struct {
	BatchID   string    `json:"batch_id" validate:"required,mongodb"`
	ModuleID  string    `json:"module_id" validate:"required,mongodb"`
	StartTime time.Time `json:"start_time" validate:"required"`
	EndTime   time.Time `json:"end_time" validate:"required"`
}

// EquipmentRequest is one equipment line of a booking request.
type EquipmentRequest struct {
	ID       string `json:"id" validate:"required,mongodb"`
	Quantity int    `json:"quantity" validate:"required,min=1"`
}

// BookingRequest is a fully specified booking: one lecturer, one or more
// classrooms, zero or more equipment quantities, one window.
type BookingRequest struct {
	BatchID      string             `json:"batch_id" validate:"required,mongodb"`
	ModuleID     string             `json:"module_id" validate:"required,mongodb"`
	StartTime    time.Time          `json:"start_time" validate:"required"`
	EndTime      time.Time          `json:"end_time" validate:"required"`
	LecturerID   string             `json:"lecturer_id" validate:"required,mongodb"`
	ClassroomIDs []string           `json:"classroom_ids" validate:"required,min=1,unique,dive,mongodb"`
	Equipment    []EquipmentRequest `json:"equipment" validate:"omitempty,dive"`
}

// ResourceRefs lists every resource the request wants to claim, in the fixed
// global claim order.
func (r BookingRequest) ResourceRefs() []ResourceRef {
	refs := make([]ResourceRef, 0, 1+len(r.ClassroomIDs)+len(r.Equipment))
	refs = append(refs, ResourceRef{Kind: KindLecturer, ID: r.LecturerID})
	for _, id := range r.ClassroomIDs {
		refs = append(refs, ResourceRef{Kind: KindClassroom, ID: id})
	}
	for _, eq := range r.Equipment {
		refs = append(refs, ResourceRef{Kind: KindEquipment, ID: eq.ID})
	}
	SortRefs(refs)
	return refs
}
