package model

import (
	"time"

	"lectio/pkg/timeslot"
)

// Reservation is one resource's commitment within a booking. Quantity is
// always 1 for lecturers and classrooms; for equipment it is the number of
// units drawn from the pool.
type Reservation struct {
	ID           string       `json:"id,omitempty" bson:"_id,omitempty"`
	BookingID    string       `json:"booking_id" bson:"booking_id"`
	ResourceKind ResourceKind `json:"resource_kind" bson:"resource_kind"`
	ResourceID   string       `json:"resource_id" bson:"resource_id"`
	Quantity     int          `json:"quantity" bson:"quantity"`
	StartTime    time.Time    `json:"start_time" bson:"start_time"`
	EndTime      time.Time    `json:"end_time" bson:"end_time"`
}

func (r Reservation) Ref() ResourceRef {
	return ResourceRef{Kind: r.ResourceKind, ID: r.ResourceID}
}

func (r Reservation) Window() timeslot.Window {
	return timeslot.Window{Start: r.StartTime, End: r.EndTime}
}

// Booking is a committed lecture: one batch and module taught by one lecturer
// in one or more classrooms, optionally using equipment, over a single window.
// Immutable once committed; a time change is cancel-then-rebook.
type Booking struct {
	ID           string        `json:"id,omitempty" bson:"_id,omitempty"`
	BatchID      string        `json:"batch_id" bson:"batch_id"`
	ModuleID     string        `json:"module_id" bson:"module_id"`
	StartTime    time.Time     `json:"start_time" bson:"start_time"`
	EndTime      time.Time     `json:"end_time" bson:"end_time"`
	Reservations []Reservation `json:"reservations,omitempty" bson:"-"`
	CreatedAt    time.Time     `json:"created_at" bson:"created_at"`
}

func (b Booking) Window() timeslot.Window {
	return timeslot.Window{Start: b.StartTime, End: b.EndTime}
}

// ResourceRefs returns every resource the booking holds, in claim order.
func (b Booking) ResourceRefs() []ResourceRef {
	refs := make([]ResourceRef, 0, len(b.Reservations))
	for _, res := range b.Reservations {
		refs = append(refs, res.Ref())
	}
	SortRefs(refs)
	return refs
}

// Conflict describes one resource that blocked a commit. Computed during
// re-validation, never stored. Requested and Available are populated for
// equipment shortages.
type Conflict struct {
	Resource     ResourceRef `json:"resource"`
	BookingID    string      `json:"conflicting_booking_id,omitempty"`
	OverlapStart time.Time   `json:"overlap_start,omitempty"`
	OverlapEnd   time.Time   `json:"overlap_end,omitempty"`
	Requested    int         `json:"requested,omitempty"`
	Available    int         `json:"available,omitempty"`
}

// EquipmentAvailability is an availability answer for one equipment pool over
// a window.
type EquipmentAvailability struct {
	ID                string `json:"id"`
	Name              string `json:"name,omitempty"`
	TotalQuantity     int    `json:"total_quantity"`
	AvailableQuantity int    `json:"available_quantity"`
}

// Availability is the advisory result of a resolve call. The underlying data
// can change before a subsequent commit; the commit path re-validates on its
// own.
type Availability struct {
	Window     timeslot.Window         `json:"window"`
	Lecturers  []Lecturer              `json:"lecturers"`
	Classrooms []Classroom             `json:"classrooms"`
	Equipment  []EquipmentAvailability `json:"equipment"`
}
