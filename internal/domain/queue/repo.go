package queue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// DoctorInfo is the slice of the staff directory the scheduler needs.
type DoctorInfo struct {
	ID                uuid.UUID
	DepartmentID      uuid.UUID
	Active            bool
	MaxPatientsPerDay int
	ConsultMinutes    int
	ShiftStart        string
}

// DoctorDirectory resolves doctors and department rosters. Implemented by an
// adapter over the directory service.
type DoctorDirectory interface {
	// Doctor returns the doctor's scheduling configuration, or ErrNotFound.
	Doctor(ctx context.Context, id uuid.UUID) (*DoctorInfo, error)
	// ActiveDoctors lists the active doctors of a department, ordered by id.
	ActiveDoctors(ctx context.Context, departmentID uuid.UUID) ([]*DoctorInfo, error)
}

// PatientDirectory checks patient references. Implemented by an adapter over
// the patient registry.
type PatientDirectory interface {
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
}

// AppointmentRepository persists appointments. The queue for one
// (doctor, date) pair is the queue-number-ordered projection of that pair's
// active rows; there is no separate queue storage.
type AppointmentRepository interface {
	Create(ctx context.Context, a *Appointment) error
	GetByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// CountActive counts the active appointments of one (doctor, date) pair.
	CountActive(ctx context.Context, doctorID uuid.UUID, date time.Time) (int, error)
	// HasActiveOnDate reports whether the patient holds an active
	// appointment anywhere on the given date.
	HasActiveOnDate(ctx context.Context, patientID uuid.UUID, date time.Time) (bool, error)
	// Queue returns the active appointments of a (doctor, date) pair
	// ordered by queue number ascending.
	Queue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error)
	// ActiveFromPosition returns the active appointments of a (doctor,
	// date) pair with queue number >= fromPosition, ordered by queue
	// number DESCENDING so pushbacks can be applied without transient
	// unique-index collisions.
	ActiveFromPosition(ctx context.Context, doctorID uuid.UUID, date time.Time, fromPosition int) ([]*Appointment, error)
	// NextForPatient returns the patient's earliest active appointment on
	// or after the given date, or ErrNotFound.
	NextForPatient(ctx context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error)
	// ListByPatient returns the patient's appointment history, newest first.
	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error)

	// UpdateStatus sets the status of one appointment.
	UpdateStatus(ctx context.Context, id uuid.UUID, status Status) error
	// Displace moves an active appointment to a new queue position and
	// time, appending an audit note.
	Displace(ctx context.Context, id uuid.UUID, queueNumber int, timeOfDay, note string) error
	// Move rewrites an appointment's date, time and queue number in place,
	// appending an audit note.
	Move(ctx context.Context, id uuid.UUID, date time.Time, timeOfDay string, queueNumber int, note string) error

	// LockQueue serializes writers of one (doctor, date) queue for the
	// remainder of the ambient transaction. Must be called inside InTx.
	LockQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) error
}

// TxManager runs a function inside one atomic transaction.
type TxManager interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier delivers appointment notifications asynchronously. The scheduler
// never waits on delivery.
type Notifier interface {
	Notify(ctx context.Context, userID uuid.UUID, title, message, category string, appointmentID uuid.UUID)
}
