package booking

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

var (
	ErrBookingNotFound      = errors.New("booking not found")
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPractitionerNotFound = errors.New("practitioner not found")
)

// Repository contains all DB interactions needed by the ledger.
type Repository interface {
	Create(ctx context.Context, b *Booking) error
	GetByID(ctx context.Context, id uuid.UUID) (*Booking, error)

	// UpdateStatus transitions a booking from one status to another,
	// compare-and-swap style: ErrBookingNotFound when no row matches both
	// id and the expected current status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancelReason *string, actorID uuid.UUID) (*Booking, error)

	// Invariant lookups. "Live" means status <> canceled and not deleted.
	ExistsLiveOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (bool, error)
	CountLiveInWindow(ctx context.Context, practitionerID uuid.UUID, date time.Time, win clock.Window) (int, error)
	CountLiveForPractitioner(ctx context.Context, practitionerID uuid.UUID) (int, error)

	LatestForPatient(ctx context.Context, patientID uuid.UUID) (*Booking, error)

	// Completion worker
	FindPastScheduled(ctx context.Context, before time.Time) ([]Booking, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
