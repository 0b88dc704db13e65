// Package timeslot normalizes and compares lecture time windows. Windows are
// half-open intervals [Start, End) aligned to 30-minute boundaries.
package timeslot

import (
	"errors"
	"fmt"
	"time"
)

// SlotGranularity is the scheduling grid every window must align to.
const SlotGranularity = 30 * time.Minute

var (
	ErrEmptyWindow    = errors.New("window start must be before end after rounding")
	ErrWindowInPast   = errors.New("window starts in the past")
	ErrWindowTooLong  = errors.New("window exceeds the maximum lecture duration")
	ErrZeroRawInstant = errors.New("window start and end are required")
)

// Window is a committed-to time range. Immutable once constructed through
// Policy.Normalize.
type Window struct {
	Start time.Time `json:"start_time" bson:"start_time"`
	End   time.Time `json:"end_time" bson:"end_time"`
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s)", w.Start.Format(time.RFC3339), w.End.Format(time.RFC3339))
}

// Overlaps reports whether two half-open windows intersect. Windows that only
// touch at a boundary do not overlap, so back-to-back lectures are legal.
func Overlaps(a, b Window) bool {
	return a.Start.Before(b.End) && b.Start.Before(a.End)
}

// Intersection returns the shared portion of two windows. Only meaningful when
// Overlaps(a, b) is true.
func Intersection(a, b Window) Window {
	out := a
	if b.Start.After(out.Start) {
		out.Start = b.Start
	}
	if b.End.Before(out.End) {
		out.End = b.End
	}
	return out
}

// Policy holds the knobs for window normalization. Now is injectable so the
// past-window check is testable.
type Policy struct {
	Grace       time.Duration
	MaxDuration time.Duration
	Now         func() time.Time
}

// Normalize rounds the raw instants onto the 30-minute grid and validates the
// result. Both instants round up: minutes in (0,30) land on :30, minutes in
// (30,60) land on the next hour. The same policy runs on the availability path
// and the commit path, so callers cannot bypass alignment by submitting raw
// times directly to commit.
func (p Policy) Normalize(rawStart, rawEnd time.Time) (Window, error) {
	if rawStart.IsZero() || rawEnd.IsZero() {
		return Window{}, ErrZeroRawInstant
	}

	w := Window{
		Start: RoundUp(rawStart),
		End:   RoundUp(rawEnd),
	}

	if !w.Start.Before(w.End) {
		return Window{}, ErrEmptyWindow
	}
	if p.MaxDuration > 0 && w.Duration() > p.MaxDuration {
		return Window{}, ErrWindowTooLong
	}

	now := time.Now
	if p.Now != nil {
		now = p.Now
	}
	if w.Start.Before(now().Add(-p.Grace)) {
		return Window{}, ErrWindowInPast
	}

	return w, nil
}

// RoundUp snaps an instant up to the next slot boundary. Instants already on a
// boundary are unchanged.
func RoundUp(t time.Time) time.Time {
	rounded := t.Truncate(SlotGranularity)
	if rounded.Equal(t) {
		return t
	}
	return rounded.Add(SlotGranularity)
}
