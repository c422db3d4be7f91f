package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-slot-engine/internal/availability"
	"github.com/hackgods/clinic-slot-engine/internal/booking"
	"github.com/hackgods/clinic-slot-engine/internal/clock"
	"github.com/hackgods/clinic-slot-engine/internal/schedule"
)

// In-memory repositories so the handlers run against the real services and
// router without Postgres or Redis.

type fakeScheduleRepo struct {
	entries map[uuid.UUID]*schedule.Entry
}

func newFakeScheduleRepo() *fakeScheduleRepo {
	return &fakeScheduleRepo{entries: make(map[uuid.UUID]*schedule.Entry)}
}

func (f *fakeScheduleRepo) Create(_ context.Context, e *schedule.Entry) error {
	e.ID = uuid.New()
	e.CreatedAt = time.Now()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	f.entries[e.ID] = &cp
	return nil
}

func (f *fakeScheduleRepo) GetByID(_ context.Context, id uuid.UUID) (*schedule.Entry, error) {
	e, ok := f.entries[id]
	if !ok {
		return nil, schedule.ErrScheduleNotFound
	}
	cp := *e
	return &cp, nil
}

func (f *fakeScheduleRepo) Update(_ context.Context, e *schedule.Entry) error {
	stored, ok := f.entries[e.ID]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	stored.WorkDate = e.WorkDate
	stored.Shift = e.Shift
	stored.UpdatedAt = time.Now()
	*e = *stored
	return nil
}

func (f *fakeScheduleRepo) SetActive(_ context.Context, id uuid.UUID, active bool) error {
	e, ok := f.entries[id]
	if !ok {
		return schedule.ErrScheduleNotFound
	}
	e.IsActive = active
	return nil
}

func (f *fakeScheduleRepo) FindActive(_ context.Context, practitionerID uuid.UUID, workDate time.Time, shift clock.Shift) (*schedule.Entry, error) {
	for _, e := range f.entries {
		if e.IsActive && e.PractitionerID == practitionerID && e.WorkDate.Equal(workDate) && e.Shift == shift {
			cp := *e
			return &cp, nil
		}
	}
	return nil, schedule.ErrScheduleNotFound
}

func (f *fakeScheduleRepo) ListActiveByPractitioner(_ context.Context, practitionerID uuid.UUID) ([]schedule.Entry, error) {
	var out []schedule.Entry
	for _, e := range f.entries {
		if e.IsActive && e.PractitionerID == practitionerID {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

func (f *fakeScheduleRepo) ListActiveInRange(_ context.Context, from, to *time.Time) ([]schedule.Entry, error) {
	var out []schedule.Entry
	for _, e := range f.entries {
		if !e.IsActive {
			continue
		}
		if from != nil && e.WorkDate.Before(*from) {
			continue
		}
		if to != nil && e.WorkDate.After(*to) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

type fakeBookingRepo struct {
	bookings map[uuid.UUID]*booking.Booking
}

func newFakeBookingRepo() *fakeBookingRepo {
	return &fakeBookingRepo{bookings: make(map[uuid.UUID]*booking.Booking)}
}

func (f *fakeBookingRepo) Create(_ context.Context, b *booking.Booking) error {
	b.ID = uuid.New()
	b.CreatedAt = time.Now()
	b.UpdatedAt = b.CreatedAt
	cp := *b
	f.bookings[b.ID] = &cp
	return nil
}

func (f *fakeBookingRepo) GetByID(_ context.Context, id uuid.UUID) (*booking.Booking, error) {
	b, ok := f.bookings[id]
	if !ok {
		return nil, booking.ErrBookingNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to booking.Status, cancelReason *string, actorID uuid.UUID) (*booking.Booking, error) {
	b, ok := f.bookings[id]
	if !ok || b.Status != from {
		return nil, booking.ErrBookingNotFound
	}
	b.Status = to
	if cancelReason != nil {
		r := *cancelReason
		b.CancelReason = &r
	}
	b.UpdatedBy = actorID
	b.UpdatedAt = time.Now()
	cp := *b
	return &cp, nil
}

func (f *fakeBookingRepo) ExistsLiveOnDate(_ context.Context, patientID uuid.UUID, date time.Time) (bool, error) {
	for _, b := range f.bookings {
		if b.PatientID == patientID && b.AppointmentDate.Equal(date) && b.Live() {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBookingRepo) CountLiveInWindow(_ context.Context, practitionerID uuid.UUID, date time.Time, win clock.Window) (int, error) {
	n := 0
	for _, b := range f.bookings {
		if b.PractitionerID == practitionerID && b.AppointmentDate.Equal(date) && win.Contains(b.AppointmentTime) && b.Live() {
			n++
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) CountLiveForPractitioner(_ context.Context, practitionerID uuid.UUID) (int, error) {
	n := 0
	for _, b := range f.bookings {
		if b.PractitionerID == practitionerID && b.Live() {
			n++
		}
	}
	return n, nil
}

func (f *fakeBookingRepo) LatestForPatient(_ context.Context, patientID uuid.UUID) (*booking.Booking, error) {
	var latest *booking.Booking
	for _, b := range f.bookings {
		if b.PatientID != patientID || b.IsDeleted {
			continue
		}
		if latest == nil ||
			b.AppointmentDate.After(latest.AppointmentDate) ||
			(b.AppointmentDate.Equal(latest.AppointmentDate) && b.AppointmentTime > latest.AppointmentTime) {
			latest = b
		}
	}
	if latest == nil {
		return nil, booking.ErrBookingNotFound
	}
	cp := *latest
	return &cp, nil
}

func (f *fakeBookingRepo) FindPastScheduled(_ context.Context, before time.Time) ([]booking.Booking, error) {
	var out []booking.Booking
	for _, b := range f.bookings {
		if b.Status == booking.StatusScheduled && !b.IsDeleted && b.AppointmentDate.Before(before) {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (f *fakeBookingRepo) InsertEvent(context.Context, booking.EventLog) error { return nil }

type noopLocker struct{}

func (noopLocker) WithLock(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type testEnv struct {
	router       http.Handler
	scheduleRepo *fakeScheduleRepo
	bookingRepo  *fakeBookingRepo
}

func newTestEnv(maxPerSlot int) *testEnv {
	scheduleRepo := newFakeScheduleRepo()
	bookingRepo := newFakeBookingRepo()
	logger := zerolog.Nop()

	inTx := func(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
	enforcer := booking.NewEnforcer(bookingRepo, scheduleRepo)

	router := NewRouter(RouterConfig{
		Schedules:         schedule.NewService(scheduleRepo, logger),
		Bookings:          booking.NewService(bookingRepo, enforcer, noopLocker{}, inTx, maxPerSlot, logger),
		Availability:      availability.NewCalculator(scheduleRepo, bookingRepo),
		DefaultMaxPerSlot: maxPerSlot,
		Logger:            logger,
		Env:               "test",
		Version:           "test",
	})

	return &testEnv{router: router, scheduleRepo: scheduleRepo, bookingRepo: bookingRepo}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func decodeAs[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	return v
}

func (e *testEnv) addSchedule(t *testing.T, practitionerID uuid.UUID, rawDate string, shift clock.Shift) {
	t.Helper()
	rec := e.do(t, http.MethodPost, "/schedules", RegisterScheduleRequest{
		PractitionerID: practitionerID.String(),
		WorkDate:       rawDate,
		Shift:          string(shift),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestScheduleEndpoints(t *testing.T) {
	env := newTestEnv(5)
	practitioner := uuid.New()

	rec := env.do(t, http.MethodPost, "/schedules", RegisterScheduleRequest{
		PractitionerID: practitioner.String(),
		WorkDate:       "2024-06-03",
		Shift:          "morning",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeAs[ScheduleResponse](t, rec)
	assert.Equal(t, practitioner, created.PractitionerID)
	assert.Equal(t, "2024-06-03", created.WorkDate)
	assert.True(t, created.IsActive)

	// Duplicate triple.
	rec = env.do(t, http.MethodPost, "/schedules", RegisterScheduleRequest{
		PractitionerID: practitioner.String(),
		WorkDate:       "2024-06-03",
		Shift:          "morning",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_schedule", decodeAs[ErrorResponse](t, rec).Error)

	// Unknown shift name.
	rec = env.do(t, http.MethodPost, "/schedules", RegisterScheduleRequest{
		PractitionerID: practitioner.String(),
		WorkDate:       "2024-06-03",
		Shift:          "night",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Move the entry, then deactivate it.
	rec = env.do(t, http.MethodPut, "/schedules/"+created.ID.String(), UpdateScheduleRequest{
		WorkDate: "2024-06-04",
		Shift:    "evening",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "evening", decodeAs[ScheduleResponse](t, rec).Shift)

	rec = env.do(t, http.MethodDelete, "/schedules/"+created.ID.String(), nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/practitioners/%s/schedules", practitioner), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decodeAs[[]ScheduleResponse](t, rec))
}

func TestUpdateScheduleNotFound(t *testing.T) {
	env := newTestEnv(5)

	rec := env.do(t, http.MethodPut, "/schedules/"+uuid.NewString(), UpdateScheduleRequest{
		WorkDate: "2024-06-04",
		Shift:    "morning",
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "schedule_not_found", decodeAs[ErrorResponse](t, rec).Error)
}

func TestCreateBookingEndpoint(t *testing.T) {
	env := newTestEnv(5)
	practitioner := uuid.New()
	patient := uuid.New()
	env.addSchedule(t, practitioner, "2024-06-03", clock.ShiftMorning)

	rec := env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       patient.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "09:30",
		ActorID:         patient.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	b := decodeAs[BookingResponse](t, rec)
	assert.Equal(t, "scheduled", b.Status)
	assert.Equal(t, "09:30", b.AppointmentTime)
	assert.Nil(t, b.RescheduledFrom)

	// Second live booking for the same patient that day.
	rec = env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       patient.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "10:00",
		ActorID:         patient.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "same_day_conflict", decodeAs[ErrorResponse](t, rec).Error)

	// No schedule backs the afternoon.
	rec = env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       uuid.NewString(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "15:00",
		ActorID:         uuid.NewString(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "shift_not_found", decodeAs[ErrorResponse](t, rec).Error)

	// Sub-minute precision is rejected at the parse step.
	rec = env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       uuid.NewString(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "09:30:30",
		ActorID:         uuid.NewString(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateBookingCapacityFull(t *testing.T) {
	env := newTestEnv(1)
	practitioner := uuid.New()
	env.addSchedule(t, practitioner, "2024-06-03", clock.ShiftEvening)

	first := uuid.New()
	rec := env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       first.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "18:00",
		ActorID:         first.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	second := uuid.New()
	rec = env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       second.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "19:00",
		ActorID:         second.String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "capacity_exceeded", decodeAs[ErrorResponse](t, rec).Error)
}

func TestCancelBookingEndpoint(t *testing.T) {
	env := newTestEnv(5)
	practitioner := uuid.New()
	patient := uuid.New()
	env.addSchedule(t, practitioner, "2024-06-03", clock.ShiftMorning)

	rec := env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       patient.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "09:00",
		ActorID:         patient.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decodeAs[BookingResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/bookings/"+created.ID.String()+"/cancel", CancelBookingRequest{
		ActorID: patient.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "canceled", decodeAs[BookingResponse](t, rec).Status)

	// Repeating the cancel succeeds with the same result.
	rec = env.do(t, http.MethodPost, "/bookings/"+created.ID.String()+"/cancel", CancelBookingRequest{
		ActorID: patient.String(),
	})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "canceled", decodeAs[BookingResponse](t, rec).Status)

	rec = env.do(t, http.MethodPost, "/bookings/"+uuid.NewString()+"/cancel", CancelBookingRequest{
		ActorID: patient.String(),
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRescheduleBookingEndpoint(t *testing.T) {
	env := newTestEnv(5)
	practitioner := uuid.New()
	patient := uuid.New()
	env.addSchedule(t, practitioner, "2024-06-03", clock.ShiftMorning)
	env.addSchedule(t, practitioner, "2024-06-04", clock.ShiftAfternoon)

	rec := env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       patient.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "09:00",
		ActorID:         patient.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	orig := decodeAs[BookingResponse](t, rec)

	rec = env.do(t, http.MethodPost, "/bookings/"+orig.ID.String()+"/reschedule", RescheduleBookingRequest{
		AppointmentDate: "2024-06-04",
		AppointmentTime: "14:30",
		ActorID:         patient.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	moved := decodeAs[BookingResponse](t, rec)
	require.NotNil(t, moved.RescheduledFrom)
	assert.Equal(t, orig.ID, *moved.RescheduledFrom)
	assert.Equal(t, "2024-06-04", moved.AppointmentDate)

	rec = env.do(t, http.MethodGet, "/bookings/"+orig.ID.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	old := decodeAs[BookingResponse](t, rec)
	assert.Equal(t, "canceled", old.Status)
	require.NotNil(t, old.CancelReason)
	assert.Equal(t, "superseded", *old.CancelReason)

	rec = env.do(t, http.MethodGet, fmt.Sprintf("/patients/%s/bookings/latest", patient), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, moved.ID, decodeAs[BookingResponse](t, rec).ID)
}

func TestLatestBookingNotFound(t *testing.T) {
	env := newTestEnv(5)

	rec := env.do(t, http.MethodGet, fmt.Sprintf("/patients/%s/bookings/latest", uuid.New()), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "booking_not_found", decodeAs[ErrorResponse](t, rec).Error)
}

func TestAvailabilityEndpoint(t *testing.T) {
	env := newTestEnv(2)
	practitioner := uuid.New()
	env.addSchedule(t, practitioner, "2024-06-03", clock.ShiftMorning)
	env.addSchedule(t, practitioner, "2024-06-10", clock.ShiftMorning)

	patient := uuid.New()
	rec := env.do(t, http.MethodPost, "/bookings", CreateBookingRequest{
		PatientID:       patient.String(),
		PractitionerID:  practitioner.String(),
		AppointmentDate: "2024-06-03",
		AppointmentTime: "09:00",
		ActorID:         patient.String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = env.do(t, http.MethodGet, "/availability", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots := decodeAs[[]AvailableSlotResponse](t, rec)
	require.Len(t, slots, 2)

	remaining := map[string]int{}
	for _, s := range slots {
		remaining[s.WorkDate] = s.Remaining
	}
	assert.Equal(t, 1, remaining["2024-06-03"])
	assert.Equal(t, 2, remaining["2024-06-10"])

	// max_per_slot=1 squeezes the booked shift out entirely.
	rec = env.do(t, http.MethodGet, "/availability?max_per_slot=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots = decodeAs[[]AvailableSlotResponse](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, "2024-06-10", slots[0].WorkDate)

	// Range filter.
	rec = env.do(t, http.MethodGet, "/availability?from=2024-06-05&to=2024-06-12", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	slots = decodeAs[[]AvailableSlotResponse](t, rec)
	require.Len(t, slots, 1)
	assert.Equal(t, "2024-06-10", slots[0].WorkDate)

	rec = env.do(t, http.MethodGet, "/availability?max_per_slot=0", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodGet, "/availability?from=junk", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
