package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
)

// Service is the schedule registry: CRUD over shift entries with the
// active-duplicate invariant enforced at write time. The partial unique index
// on (practitioner_id, work_date, shift) WHERE is_active backstops the check
// when two registrations race.
type Service struct {
	repo Repository
	log  zerolog.Logger
}

func NewService(repo Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("component", "schedule").Logger(),
	}
}

// Register creates an active entry for the triple, failing with
// ErrDuplicateSchedule when one already exists.
func (s *Service) Register(ctx context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*Entry, error) {
	if !shift.Valid() {
		return nil, fmt.Errorf("invalid shift %q", shift)
	}
	workDate = clock.DateOf(workDate)

	existing, err := s.repo.FindActive(ctx, practitionerID, workDate, shift)
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		return nil, fmt.Errorf("check duplicate schedule: %w", err)
	}
	if existing != nil {
		return nil, ErrDuplicateSchedule
	}

	entry := &Entry{
		PractitionerID: practitionerID,
		WorkDate:       workDate,
		Shift:          shift,
		IsActive:       true,
	}
	if err := s.repo.Create(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("schedule_id", entry.ID.String()).
		Str("practitioner_id", practitionerID.String()).
		Str("work_date", workDate.Format(clock.DateLayout)).
		Str("shift", string(shift)).
		Msg("schedule registered")

	return entry, nil
}

// Update moves an entry to a new date/shift, re-running the duplicate check
// against every entry except the one being edited so a no-op edit succeeds.
func (s *Service) Update(ctx context.Context, scheduleID uuid.UUID, newWorkDate time.Time, newShift clock.Shift) (*Entry, error) {
	if !newShift.Valid() {
		return nil, fmt.Errorf("invalid shift %q", newShift)
	}
	newWorkDate = clock.DateOf(newWorkDate)

	entry, err := s.repo.GetByID(ctx, scheduleID)
	if err != nil {
		return nil, err
	}

	existing, err := s.repo.FindActive(ctx, entry.PractitionerID, newWorkDate, newShift)
	if err != nil && !errors.Is(err, ErrScheduleNotFound) {
		return nil, fmt.Errorf("check duplicate schedule: %w", err)
	}
	if existing != nil && existing.ID != scheduleID {
		return nil, ErrDuplicateSchedule
	}

	entry.WorkDate = newWorkDate
	entry.Shift = newShift
	if err := s.repo.Update(ctx, entry); err != nil {
		return nil, err
	}

	s.log.Info().
		Str("schedule_id", scheduleID.String()).
		Str("work_date", newWorkDate.Format(clock.DateLayout)).
		Str("shift", string(newShift)).
		Msg("schedule updated")

	return entry, nil
}

// Deactivate flips is_active off. Deactivating an already-inactive entry is a
// no-op success; only a truly missing row is an error.
func (s *Service) Deactivate(ctx context.Context, scheduleID uuid.UUID) error {
	if _, err := s.repo.GetByID(ctx, scheduleID); err != nil {
		return err
	}
	if err := s.repo.SetActive(ctx, scheduleID, false); err != nil {
		return err
	}

	s.log.Info().Str("schedule_id", scheduleID.String()).Msg("schedule deactivated")
	return nil
}

// ListActiveFor returns the practitioner's active entries ordered by work
// date ascending.
func (s *Service) ListActiveFor(ctx context.Context, practitionerID uuid.UUID) ([]Entry, error) {
	entries, err := s.repo.ListActiveByPractitioner(ctx, practitionerID)
	if err != nil {
		return nil, fmt.Errorf("list schedules: %w", err)
	}
	return entries, nil
}
