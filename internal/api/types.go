package api

import (
	"time"

	"github.com/google/uuid"
)

type RegisterScheduleRequest struct {
	PractitionerID string `json:"practitioner_id"`
	WorkDate       string `json:"work_date"` // YYYY-MM-DD
	Shift          string `json:"shift"`     // morning, afternoon, evening
}

type UpdateScheduleRequest struct {
	WorkDate string `json:"work_date"`
	Shift    string `json:"shift"`
}

type ScheduleResponse struct {
	ID             uuid.UUID `json:"id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	WorkDate       string    `json:"work_date"`
	Shift          string    `json:"shift"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

type CreateBookingRequest struct {
	PatientID       string  `json:"patient_id"`
	PractitionerID  string  `json:"practitioner_id"`
	AppointmentDate string  `json:"appointment_date"` // YYYY-MM-DD
	AppointmentTime string  `json:"appointment_time"` // HH:MM
	Notes           *string `json:"notes,omitempty"`
	ActorID         string  `json:"actor_id"`
}

type CancelBookingRequest struct {
	ActorID string `json:"actor_id"`
}

type RescheduleBookingRequest struct {
	AppointmentDate string `json:"appointment_date"`
	AppointmentTime string `json:"appointment_time"`
	ActorID         string `json:"actor_id"`
}

type BookingResponse struct {
	ID              uuid.UUID  `json:"id"`
	PatientID       uuid.UUID  `json:"patient_id"`
	PractitionerID  uuid.UUID  `json:"practitioner_id"`
	AppointmentDate string     `json:"appointment_date"`
	AppointmentTime string     `json:"appointment_time"`
	Status          string     `json:"status"`
	CancelReason    *string    `json:"cancel_reason,omitempty"`
	RescheduledFrom *uuid.UUID `json:"rescheduled_from,omitempty"`
	Notes           *string    `json:"notes,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

type AvailableSlotResponse struct {
	ScheduleID     uuid.UUID `json:"schedule_id"`
	PractitionerID uuid.UUID `json:"practitioner_id"`
	WorkDate       string    `json:"work_date"`
	Shift          string    `json:"shift"`
	Remaining      int       `json:"remaining_capacity"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
