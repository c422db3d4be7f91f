package booking

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCanceled  Status = "canceled"
	StatusCompleted Status = "completed"
)

// CancelReasonSuperseded marks a booking canceled because a reschedule
// replaced it. The replacement points back via RescheduledFrom.
const CancelReasonSuperseded = "superseded"

// Booking is a patient's claim on a practitioner's time. Rows are never
// physically removed; IsDeleted is an administrative soft-delete flag,
// independent of Status.
type Booking struct {
	ID              uuid.UUID
	PatientID       uuid.UUID
	PractitionerID  uuid.UUID
	AppointmentDate time.Time // date only
	AppointmentTime clock.TimeOfDay
	Status          Status
	CancelReason    *string
	IsDeleted       bool
	RescheduledFrom *uuid.UUID
	Notes           *string
	CreatedBy       uuid.UUID
	UpdatedBy       uuid.UUID
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Live reports whether the booking counts against the same-day and capacity
// invariants.
func (b *Booking) Live() bool {
	return b.Status != StatusCanceled && !b.IsDeleted
}

type EventLog struct {
	ID        int64
	EventType string
	BookingID *uuid.UUID
	Payload   []byte
	CreatedAt time.Time
}
