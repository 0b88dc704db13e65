package model

import "time"

// ResourceLock is an advisory lock claiming one resource for the duration of a
// commit or cancel. Claims are short-lived and auto-expire so a crashed
// process cannot wedge a resource.
type ResourceLock struct {
	ID        string    `bson:"_id" json:"id"` // ResourceRef.LockID()
	Owner     string    `bson:"owner" json:"owner"`
	ExpiresAt time.Time `bson:"expires_at" json:"expires_at"`
	CreatedAt time.Time `bson:"created_at" json:"created_at"`
}
