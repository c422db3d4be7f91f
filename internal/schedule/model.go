package schedule

import (
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

// Entry is one practitioner's commitment to work a given shift on a given
// calendar date. Entries are never deleted; deactivation flips IsActive so
// historical capacity reporting stays intact.
type Entry struct {
	ID             uuid.UUID
	PractitionerID uuid.UUID
	WorkDate       time.Time // date only, no time component
	Shift          clock.Shift
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
