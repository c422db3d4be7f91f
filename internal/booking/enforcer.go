package booking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

var (
	ErrSameDayConflict  = errors.New("patient already holds a live booking on this date")
	ErrShiftNotFound    = errors.New("no active schedule backs the requested date and shift")
	ErrCapacityExceeded = errors.New("shift is fully booked")
	ErrSlotBeingBooked  = errors.New("slot is currently being booked, please retry")
)

// ScheduleDirectory is the slice of the schedule registry the enforcer reads.
type ScheduleDirectory interface {
	FindActive(ctx context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*schedule.Entry, error)
}

// Enforcer runs the invariant checks ahead of every ledger mutation. It is
// stateless; callers are expected to invoke it inside the same transaction as
// the mutation so the checks and the write are indivisible.
type Enforcer struct {
	bookings  Repository
	schedules ScheduleDirectory
}

func NewEnforcer(bookings Repository, schedules ScheduleDirectory) *Enforcer {
	return &Enforcer{bookings: bookings, schedules: schedules}
}

// CheckScheduleExists resolves the shift containing t and verifies an active
// schedule entry backs it. Both a time outside every window and a missing
// entry surface as ErrShiftNotFound: either way there is no such slot.
func (e *Enforcer) CheckScheduleExists(ctx context.Context, practitionerID uuid.UUID, date time.Time, t clock.TimeOfDay) (clock.Shift, error) {
	shift, ok := clock.ShiftAt(t)
	if !ok {
		return "", ErrShiftNotFound
	}

	if _, err := e.schedules.FindActive(ctx, practitionerID, date, shift); err != nil {
		if errors.Is(err, schedule.ErrScheduleNotFound) {
			return "", ErrShiftNotFound
		}
		return "", fmt.Errorf("look up schedule: %w", err)
	}
	return shift, nil
}

// CheckSameDay enforces the one-live-booking-per-patient-per-date rule.
func (e *Enforcer) CheckSameDay(ctx context.Context, patientID uuid.UUID, date time.Time) error {
	exists, err := e.bookings.ExistsLiveOnDate(ctx, patientID, date)
	if err != nil {
		return fmt.Errorf("check same-day booking: %w", err)
	}
	if exists {
		return ErrSameDayConflict
	}
	return nil
}

// CheckCapacity counts live bookings inside the shift's window and fails
// unless the count is strictly below maxPerSlot.
func (e *Enforcer) CheckCapacity(ctx context.Context, practitionerID uuid.UUID, date time.Time, shift clock.Shift, maxPerSlot int) error {
	count, err := e.bookings.CountLiveInWindow(ctx, practitionerID, date, clock.ShiftWindow(shift))
	if err != nil {
		return fmt.Errorf("count shift bookings: %w", err)
	}
	if count >= maxPerSlot {
		return ErrCapacityExceeded
	}
	return nil
}
