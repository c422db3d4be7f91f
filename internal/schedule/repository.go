package schedule

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

var (
	ErrScheduleNotFound     = errors.New("schedule entry not found")
	ErrDuplicateSchedule    = errors.New("an active schedule entry already exists for this practitioner, date and shift")
	ErrPractitionerNotFound = errors.New("practitioner not found")
)

// Repository contains all DB interactions needed by the registry.
type Repository interface {
	Create(ctx context.Context, e *Entry) error
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Update(ctx context.Context, e *Entry) error
	SetActive(ctx context.Context, id uuid.UUID, active bool) error

	// FindActive returns the single active entry for the triple, or
	// ErrScheduleNotFound.
	FindActive(ctx context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*Entry, error)

	ListActiveByPractitioner(ctx context.Context, practitionerID uuid.UUID) ([]Entry, error)

	// ListActiveInRange returns active entries, optionally bounded by
	// [from, to] on work date. Nil bounds are open.
	ListActiveInRange(ctx context.Context, from, to *time.Time) ([]Entry, error)
}
