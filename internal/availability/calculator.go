// Package availability is the read-only composition layer joining the
// schedule registry with booking counts to answer "which shifts still have
// room". Results are true as of read time only; admission is re-checked by
// the booking ledger under its lock and transaction.
package availability

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

// ScheduleSource is the slice of the schedule registry the calculator reads.
type ScheduleSource interface {
	ListActiveInRange(ctx context.Context, from, to *time.Time) ([]schedule.Entry, error)
}

// BookingCounter is the slice of the booking ledger the calculator reads. The
// window count uses the same boundary rules as the capacity enforcer.
type BookingCounter interface {
	CountLiveInWindow(ctx context.Context, practitionerID uuid.UUID, date time.Time, win clock.Window) (int, error)
	CountLiveForPractitioner(ctx context.Context, practitionerID uuid.UUID) (int, error)
}

type Calculator struct {
	schedules ScheduleSource
	bookings  BookingCounter
}

func NewCalculator(schedules ScheduleSource, bookings BookingCounter) *Calculator {
	return &Calculator{schedules: schedules, bookings: bookings}
}

// Slot is an open schedule entry with its remaining capacity.
type Slot struct {
	Entry     schedule.Entry
	Remaining int
}

// AvailableSlots returns every active schedule entry in the optional date
// range that still has room under maxPerSlot. Entries at or over capacity are
// filtered out.
func (c *Calculator) AvailableSlots(ctx context.Context, maxPerSlot int, from, to *time.Time) ([]Slot, error) {
	if maxPerSlot < 1 {
		return nil, fmt.Errorf("maxPerSlot must be at least 1, got %d", maxPerSlot)
	}

	entries, err := c.schedules.ListActiveInRange(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("list active schedules: %w", err)
	}

	var open []Slot
	for _, e := range entries {
		count, err := c.bookings.CountLiveInWindow(ctx, e.PractitionerID, e.WorkDate, clock.ShiftWindow(e.Shift))
		if err != nil {
			return nil, fmt.Errorf("count bookings for schedule %s: %w", e.ID, err)
		}
		remaining := maxPerSlot - count
		if remaining > 0 {
			open = append(open, Slot{Entry: e, Remaining: remaining})
		}
	}
	return open, nil
}

// PractitionerBelowLoad reports whether the practitioner's all-time live
// booking count is below threshold.
//
// Deprecated: this is a legacy heuristic. The count is not date-bounded, so
// the flag only ever shrinks toward false; per-shift capacity in the booking
// ledger is the real availability signal. Kept for callers that still read
// it; do not build new logic on it.
func (c *Calculator) PractitionerBelowLoad(ctx context.Context, practitionerID uuid.UUID, threshold int) (bool, error) {
	count, err := c.bookings.CountLiveForPractitioner(ctx, practitionerID)
	if err != nil {
		return false, fmt.Errorf("count practitioner bookings: %w", err)
	}
	return count < threshold, nil
}
