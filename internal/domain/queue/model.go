package queue

import (
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of an appointment.
type Status string

const (
	StatusScheduled  Status = "scheduled"
	StatusCalled     Status = "called"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
	StatusNoShow     Status = "no-show"
)

// ActiveStatuses are the statuses that occupy a queue slot.
var ActiveStatuses = []Status{StatusScheduled, StatusCalled, StatusInProgress}

// Terminal reports whether the status permanently vacates its queue slot.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusNoShow:
		return true
	}
	return false
}

// Active reports whether an appointment in this status holds a queue position.
func (s Status) Active() bool {
	switch s {
	case StatusScheduled, StatusCalled, StatusInProgress:
		return true
	}
	return false
}

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	return s.Active() || s.Terminal()
}

// CanTransition reports whether the state machine permits moving from one
// status to another. Terminal states never transition; reschedules after a
// no-show materialize as a new appointment row instead.
func CanTransition(from, to Status) bool {
	switch from {
	case StatusScheduled:
		return to == StatusCalled || to == StatusCancelled || to == StatusNoShow
	case StatusCalled:
		return to == StatusInProgress || to == StatusNoShow
	case StatusInProgress:
		return to == StatusCompleted
	}
	return false
}

// Appointment is one entry in a doctor's daily queue. DoctorID is nullable
// because removing a doctor from the system keeps their historical rows.
type Appointment struct {
	ID           uuid.UUID  `db:"id" json:"id"`
	PatientID    uuid.UUID  `db:"patient_id" json:"patient_id"`
	DoctorID     *uuid.UUID `db:"doctor_id" json:"doctor_id,omitempty"`
	DepartmentID uuid.UUID  `db:"department_id" json:"department_id"`
	Date         time.Time  `db:"appointment_date" json:"appointment_date"`
	TimeOfDay    string     `db:"appointment_time" json:"appointment_time"`
	QueueNumber  int        `db:"queue_number" json:"queue_number"`
	Status       Status     `db:"status" json:"status"`
	Reason       string     `db:"reason" json:"reason"`
	Notes        *string    `db:"notes" json:"notes,omitempty"`
	CreatedAt    time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time  `db:"updated_at" json:"updated_at"`
}

// DateOnly normalizes a timestamp to its calendar date (midnight UTC).
func DateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// IsWeekend reports whether the date falls on Saturday or Sunday.
func IsWeekend(t time.Time) bool {
	wd := t.Weekday()
	return wd == time.Saturday || wd == time.Sunday
}

// NextWorkday returns the first day strictly after t that is not a weekend.
func NextWorkday(t time.Time) time.Time {
	d := DateOnly(t).AddDate(0, 0, 1)
	for IsWeekend(d) {
		d = d.AddDate(0, 0, 1)
	}
	return d
}
