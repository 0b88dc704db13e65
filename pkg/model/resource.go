package model

import (
	"fmt"
	"sort"
)

type ResourceKind string

const (
	KindLecturer  ResourceKind = "lecturer"
	KindClassroom ResourceKind = "classroom"
	KindEquipment ResourceKind = "equipment"
)

// ResourceRef identifies one reservable resource. Lecturers and classrooms are
// exclusive; equipment is a counted pool.
type ResourceRef struct {
	Kind ResourceKind `json:"kind" bson:"kind"`
	ID   string       `json:"id" bson:"id"`
}

// LockID is the stable advisory-lock key for this resource.
func (r ResourceRef) LockID() string {
	return fmt.Sprintf("%s:%s", r.Kind, r.ID)
}

func (r ResourceRef) String() string {
	return r.LockID()
}

// SortRefs orders refs by kind then ID. Every commit claims its resources in
// this order, which is what prevents deadlock between two concurrent commits
// that reference overlapping resource sets.
func SortRefs(refs []ResourceRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].Kind != refs[j].Kind {
			return refs[i].Kind < refs[j].Kind
		}
		return refs[i].ID < refs[j].ID
	})
}

// Directory facts. Capacity and quantity are read-only data supplied by the
// external directory service.

type Lecturer struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

type Classroom struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Capacity int    `json:"capacity"`
}

type Equipment struct {
	ID            string `json:"id"`
	Name          string `json:"name,omitempty"`
	TotalQuantity int    `json:"total_quantity"`
}

type Batch struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Size int    `json:"size,omitempty"`
}

type Module struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}
