package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/hackgods/clinic-slot-engine/internal/availability"
	"github.com/hackgods/clinic-slot-engine/internal/booking"
	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
	redisclient "github.com/hackgods/clinic-slot-engine/internal/redis"
)

// -- Schedule handlers --

func registerScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RegisterScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		workDate, err := clock.ParseDate(req.WorkDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_work_date", "work_date must be YYYY-MM-DD")
			return
		}
		shift, err := clock.ParseShift(req.Shift)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_shift", "shift must be morning, afternoon or evening")
			return
		}

		entry, err := svc.Register(r.Context(), practitionerID, workDate, shift)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toScheduleResponse(entry))
	}
}

func updateScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		var req UpdateScheduleRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		workDate, err := clock.ParseDate(req.WorkDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_work_date", "work_date must be YYYY-MM-DD")
			return
		}
		shift, err := clock.ParseShift(req.Shift)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_shift", "shift must be morning, afternoon or evening")
			return
		}

		entry, err := svc.Update(r.Context(), id, workDate, shift)
		if err != nil {
			handleScheduleError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toScheduleResponse(entry))
	}
}

func deactivateScheduleHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_schedule_id", "id must be a valid UUID")
			return
		}

		if err := svc.Deactivate(r.Context(), id); err != nil {
			handleScheduleError(w, err)
			return
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func listSchedulesHandler(svc *schedule.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		practitionerID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "id must be a valid UUID")
			return
		}

		entries, err := svc.ListActiveFor(r.Context(), practitionerID)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]ScheduleResponse, 0, len(entries))
		for i := range entries {
			resp = append(resp, toScheduleResponse(&entries[i]))
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// -- Booking handlers --

func createBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		patientID, err := uuid.Parse(req.PatientID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		practitionerID, err := uuid.Parse(req.PractitionerID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_practitioner_id", "practitioner_id must be a valid UUID")
			return
		}
		date, err := clock.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
			return
		}
		timeOfDay, err := clock.ParseTimeOfDay(req.AppointmentTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointment_time must be HH:MM")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		b, err := svc.Create(r.Context(), booking.CreateParams{
			PatientID:      patientID,
			PractitionerID: practitionerID,
			Date:           date,
			Time:           timeOfDay,
			Notes:          req.Notes,
			ActorID:        actorID,
		})
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func getBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func cancelBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req CancelBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		if err := svc.Cancel(r.Context(), id, actorID); err != nil {
			handleBookingError(w, err)
			return
		}

		b, err := svc.Get(r.Context(), id)
		if err != nil {
			handleBookingError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

func rescheduleBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_booking_id", "id must be a valid UUID")
			return
		}

		var req RescheduleBookingRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
			return
		}

		date, err := clock.ParseDate(req.AppointmentDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_date", "appointment_date must be YYYY-MM-DD")
			return
		}
		timeOfDay, err := clock.ParseTimeOfDay(req.AppointmentTime)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_appointment_time", "appointment_time must be HH:MM")
			return
		}
		actorID, err := uuid.Parse(req.ActorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_actor_id", "actor_id must be a valid UUID")
			return
		}

		b, err := svc.Reschedule(r.Context(), id, date, timeOfDay, actorID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusCreated, toBookingResponse(b))
	}
}

func latestBookingHandler(svc *booking.Service) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		patientID, err := uuid.Parse(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "id must be a valid UUID")
			return
		}

		b, err := svc.LatestFor(r.Context(), patientID)
		if err != nil {
			handleBookingError(w, err)
			return
		}

		writeJSON(w, http.StatusOK, toBookingResponse(b))
	}
}

// -- Availability handler --

func listAvailabilityHandler(calc *availability.Calculator, defaultMaxPerSlot int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		maxPerSlot := defaultMaxPerSlot
		if raw := r.URL.Query().Get("max_per_slot"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				writeError(w, http.StatusBadRequest, "invalid_max_per_slot", "max_per_slot must be a positive integer")
				return
			}
			maxPerSlot = n
		}

		var from, to *time.Time
		if raw := r.URL.Query().Get("from"); raw != "" {
			d, err := clock.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_from", "from must be YYYY-MM-DD")
				return
			}
			from = &d
		}
		if raw := r.URL.Query().Get("to"); raw != "" {
			d, err := clock.ParseDate(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_to", "to must be YYYY-MM-DD")
				return
			}
			to = &d
		}

		slots, err := calc.AvailableSlots(r.Context(), maxPerSlot, from, to)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
			return
		}

		resp := make([]AvailableSlotResponse, 0, len(slots))
		for _, s := range slots {
			resp = append(resp, AvailableSlotResponse{
				ScheduleID:     s.Entry.ID,
				PractitionerID: s.Entry.PractitionerID,
				WorkDate:       s.Entry.WorkDate.Format(clock.DateLayout),
				Shift:          string(s.Entry.Shift),
				Remaining:      s.Remaining,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

// -- Error mapping --

func handleScheduleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, schedule.ErrScheduleNotFound):
		writeError(w, http.StatusNotFound, "schedule_not_found", err.Error())
	case errors.Is(err, schedule.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, schedule.ErrDuplicateSchedule):
		writeError(w, http.StatusConflict, "duplicate_schedule", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

func handleBookingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, booking.ErrBookingNotFound):
		writeError(w, http.StatusNotFound, "booking_not_found", err.Error())
	case errors.Is(err, booking.ErrShiftNotFound):
		writeError(w, http.StatusNotFound, "shift_not_found", err.Error())
	case errors.Is(err, booking.ErrPatientNotFound):
		writeError(w, http.StatusNotFound, "patient_not_found", err.Error())
	case errors.Is(err, booking.ErrPractitionerNotFound):
		writeError(w, http.StatusNotFound, "practitioner_not_found", err.Error())
	case errors.Is(err, booking.ErrSameDayConflict):
		writeError(w, http.StatusConflict, "same_day_conflict", err.Error())
	case errors.Is(err, booking.ErrCapacityExceeded):
		writeError(w, http.StatusConflict, "capacity_exceeded", err.Error())
	case errors.Is(err, booking.ErrSlotBeingBooked),
		errors.Is(err, redisclient.ErrLockNotAcquired):
		writeError(w, http.StatusConflict, "slot_being_booked", "slot is currently being booked, please retry shortly")
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}

// -- Response helpers --

func toScheduleResponse(e *schedule.Entry) ScheduleResponse {
	return ScheduleResponse{
		ID:             e.ID,
		PractitionerID: e.PractitionerID,
		WorkDate:       e.WorkDate.Format(clock.DateLayout),
		Shift:          string(e.Shift),
		IsActive:       e.IsActive,
		CreatedAt:      e.CreatedAt,
		UpdatedAt:      e.UpdatedAt,
	}
}

func toBookingResponse(b *booking.Booking) BookingResponse {
	return BookingResponse{
		ID:              b.ID,
		PatientID:       b.PatientID,
		PractitionerID:  b.PractitionerID,
		AppointmentDate: b.AppointmentDate.Format(clock.DateLayout),
		AppointmentTime: b.AppointmentTime.String(),
		Status:          string(b.Status),
		CancelReason:    b.CancelReason,
		RescheduledFrom: b.RescheduledFrom,
		Notes:           b.Notes,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
