package booking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-slot-engine/internal/clock"
	redisclient "github.com/hackgods/clinic-slot-engine/internal/redis"
)

const (
	EventBookingCreated     = "BOOKING_CREATED"
	EventBookingCanceled    = "BOOKING_CANCELED"
	EventBookingRescheduled = "BOOKING_RESCHEDULED"
	EventBookingCompleted   = "BOOKING_COMPLETED"
)

// TxRunner wraps fn in a storage transaction. Production wiring binds this to
// a serializable pgx transaction; tests pass a passthrough.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// Service is the booking ledger: the authoritative store of bookings and
// their transitions. Create and Reschedule serialize per slot behind a Redis
// lock and run their enforcer checks plus insert inside one transaction, so
// two concurrent requests for the last open slot cannot both succeed.
type Service struct {
	repo       Repository
	enforcer   *Enforcer
	locker     redisclient.Locker
	inTx       TxRunner
	maxPerSlot int
	log        zerolog.Logger
}

func NewService(repo Repository, enforcer *Enforcer, locker redisclient.Locker, inTx TxRunner, maxPerSlot int, log zerolog.Logger) *Service {
	return &Service{
		repo:       repo,
		enforcer:   enforcer,
		locker:     locker,
		inTx:       inTx,
		maxPerSlot: maxPerSlot,
		log:        log.With().Str("component", "booking").Logger(),
	}
}

type CreateParams struct {
	PatientID      uuid.UUID
	PractitionerID uuid.UUID
	Date           time.Time
	Time           clock.TimeOfDay
	Notes          *string
	ActorID        uuid.UUID
}

// Create validates, in order: an active schedule backs the slot, the patient
// holds no other live booking that date, and the shift has room. Only then is
// the row persisted as scheduled.
func (s *Service) Create(ctx context.Context, p CreateParams) (*Booking, error) {
	date := clock.DateOf(p.Date)

	shift, ok := clock.ShiftAt(p.Time)
	if !ok {
		return nil, ErrShiftNotFound
	}

	var created *Booking

	err := s.locker.WithLock(ctx, slotLockKey(p.PractitionerID, date, shift), func(lockCtx context.Context) error {
		return s.inTx(lockCtx, func(txCtx context.Context) error {
			b, err := s.admit(txCtx, p.PatientID, p.PractitionerID, date, p.Time, nil, p.Notes, p.ActorID)
			if err != nil {
				return err
			}
			created = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventBookingCreated, map[string]any{
		"patient_id":       p.PatientID.String(),
		"practitioner_id":  p.PractitionerID.String(),
		"appointment_date": date.Format(clock.DateLayout),
		"appointment_time": p.Time.String(),
	})

	return created, nil
}

// admit runs the enforcer checks in their mandated order and inserts the row.
// Must be called inside the slot lock and transaction.
func (s *Service) admit(ctx context.Context, patientID, practitionerID uuid.UUID, date time.Time, t clock.TimeOfDay, rescheduledFrom *uuid.UUID, notes *string, actorID uuid.UUID) (*Booking, error) {
	shift, err := s.enforcer.CheckScheduleExists(ctx, practitionerID, date, t)
	if err != nil {
		return nil, err
	}
	if err := s.enforcer.CheckSameDay(ctx, patientID, date); err != nil {
		return nil, err
	}
	if err := s.enforcer.CheckCapacity(ctx, practitionerID, date, shift, s.maxPerSlot); err != nil {
		return nil, err
	}

	b := &Booking{
		PatientID:       patientID,
		PractitionerID:  practitionerID,
		AppointmentDate: date,
		AppointmentTime: t,
		Status:          StatusScheduled,
		RescheduledFrom: rescheduledFrom,
		Notes:           notes,
		CreatedBy:       actorID,
		UpdatedBy:       actorID,
	}
	if err := s.repo.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create booking: %w", err)
	}
	return b, nil
}

// Cancel marks the booking canceled and stamps the actor. Canceling an
// already-canceled booking is a no-op success; rows are never deleted.
func (s *Service) Cancel(ctx context.Context, bookingID, actorID uuid.UUID) error {
	b, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return err
	}
	if b.Status == StatusCanceled {
		return nil
	}

	if _, err := s.repo.UpdateStatus(ctx, bookingID, b.Status, StatusCanceled, nil, actorID); err != nil {
		if errors.Is(err, ErrBookingNotFound) {
			// Lost a race with another transition; a concurrent cancel
			// still counts as success.
			cur, getErr := s.repo.GetByID(ctx, bookingID)
			if getErr == nil && cur.Status == StatusCanceled {
				return nil
			}
		}
		return fmt.Errorf("cancel booking: %w", err)
	}

	s.logEvent(ctx, bookingID, EventBookingCanceled, map[string]any{
		"actor_id": actorID.String(),
	})
	return nil
}

// Reschedule creates a replacement booking linked to the original and cancels
// the original with reason "superseded" in the same transaction. The new slot
// runs the full admission checks.
func (s *Service) Reschedule(ctx context.Context, bookingID uuid.UUID, newDate time.Time, newTime clock.TimeOfDay, actorID uuid.UUID) (*Booking, error) {
	orig, err := s.repo.GetByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	date := clock.DateOf(newDate)
	shift, ok := clock.ShiftAt(newTime)
	if !ok {
		return nil, ErrShiftNotFound
	}

	var created *Booking

	err = s.locker.WithLock(ctx, slotLockKey(orig.PractitionerID, date, shift), func(lockCtx context.Context) error {
		return s.inTx(lockCtx, func(txCtx context.Context) error {
			// Supersede the original before the same-day check so a move
			// to a different time on the same date does not conflict with
			// itself.
			if orig.Live() {
				reason := CancelReasonSuperseded
				if _, err := s.repo.UpdateStatus(txCtx, orig.ID, orig.Status, StatusCanceled, &reason, actorID); err != nil {
					return fmt.Errorf("supersede booking: %w", err)
				}
			}

			b, err := s.admit(txCtx, orig.PatientID, orig.PractitionerID, date, newTime, &orig.ID, orig.Notes, actorID)
			if err != nil {
				return err
			}
			created = b
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		return nil, err
	}

	s.logEvent(ctx, created.ID, EventBookingRescheduled, map[string]any{
		"rescheduled_from": orig.ID.String(),
		"appointment_date": date.Format(clock.DateLayout),
		"appointment_time": newTime.String(),
	})

	return created, nil
}

// Get retrieves a booking by ID.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Booking, error) {
	return s.repo.GetByID(ctx, id)
}

// LatestFor returns the patient's most recent non-deleted booking, ordered by
// appointment date then appointment time.
func (s *Service) LatestFor(ctx context.Context, patientID uuid.UUID) (*Booking, error) {
	return s.repo.LatestForPatient(ctx, patientID)
}

// ExistsOnDate implements the same-day invariant's existence check.
func (s *Service) ExistsOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (bool, error) {
	return s.repo.ExistsLiveOnDate(ctx, patientID, clock.DateOf(date))
}

// CompletePastBookings moves scheduled bookings dated before today to
// completed. Intended to be called by the worker periodically.
func (s *Service) CompletePastBookings(ctx context.Context, now time.Time) (int, error) {
	today := clock.DateOf(now)

	candidates, err := s.repo.FindPastScheduled(ctx, today)
	if err != nil {
		return 0, fmt.Errorf("find past scheduled bookings: %w", err)
	}

	completed := 0
	for _, b := range candidates {
		if _, err := s.repo.UpdateStatus(ctx, b.ID, StatusScheduled, StatusCompleted, nil, uuid.Nil); err != nil {
			if errors.Is(err, ErrBookingNotFound) {
				continue // transitioned concurrently
			}
			s.log.Error().Err(err).Str("booking_id", b.ID.String()).Msg("failed to complete booking")
			continue
		}
		completed++
		s.logEvent(ctx, b.ID, EventBookingCompleted, map[string]any{
			"appointment_date": b.AppointmentDate.Format(clock.DateLayout),
		})
	}

	return completed, nil
}

func slotLockKey(practitionerID uuid.UUID, date time.Time, shift clock.Shift) string {
	return fmt.Sprintf("lock:slot:%s:%s:%s", practitionerID, date.Format(clock.DateLayout), shift)
}

func (s *Service) logEvent(ctx context.Context, bookingID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.log.Warn().Err(err).Str("event_type", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	id := bookingID
	ev := EventLog{
		EventType: eventType,
		BookingID: &id,
		Payload:   data,
		CreatedAt: time.Now(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.log.Warn().Err(err).
			Str("event_type", eventType).
			Str("booking_id", bookingID.String()).
			Msg("failed to insert event log")
	}
}
