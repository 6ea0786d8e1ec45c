package queue

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Sentinel errors for expected business outcomes. Handlers map these onto
// HTTP statuses; none of them are retried except ErrQueueConflict.
var (
	// ErrNotFound covers missing appointments, patients and doctors.
	ErrNotFound = errors.New("not found")

	// ErrNoDoctorAvailable means the department has no active doctors.
	ErrNoDoctorAvailable = errors.New("no active doctor in department")

	// ErrNoSlotAvailable means the reschedule horizon was exhausted.
	ErrNoSlotAvailable = errors.New("no slot available within horizon")

	// ErrQueueConflict signals two concurrent writers computed the same
	// queue number. The whole operation is retried a bounded number of
	// times before the error reaches the caller.
	ErrQueueConflict = errors.New("queue position conflict")
)

// ValidationError rejects bad input before any transaction opens.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DuplicateBookingError reports that the patient already holds an active
// appointment on the requested date.
type DuplicateBookingError struct {
	PatientID uuid.UUID
	Date      time.Time
}

func (e *DuplicateBookingError) Error() string {
	return fmt.Sprintf("patient %s already has an active appointment on %s",
		e.PatientID, e.Date.Format("2006-01-02"))
}

// DepartmentFullError reports that every active doctor in the department is
// at capacity for the requested date.
type DepartmentFullError struct {
	DepartmentID uuid.UUID
	Date         time.Time
}

func (e *DepartmentFullError) Error() string {
	return fmt.Sprintf("department %s has no capacity on %s",
		e.DepartmentID, e.Date.Format("2006-01-02"))
}

// PreferredDoctorUnavailableError reports why an explicitly requested doctor
// cannot take the booking.
type PreferredDoctorUnavailableError struct {
	DoctorID uuid.UUID
	Date     time.Time
	Reason   string
}

func (e *PreferredDoctorUnavailableError) Error() string {
	return fmt.Sprintf("doctor %s unavailable on %s: %s",
		e.DoctorID, e.Date.Format("2006-01-02"), e.Reason)
}
