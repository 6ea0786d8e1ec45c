package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config carries the scheduling policy knobs. Per-doctor overrides from the
// staff directory take precedence; zero-valued overrides fall back here.
type Config struct {
	ShiftStart            string
	ConsultMinutes        int
	MaxPatientsPerDay     int
	RescheduleHorizonDays int
	ConflictRetries       int
}

// Service implements appointment booking and queue management. All mutating
// operations run inside one transaction holding the per-(doctor, date)
// queue lock, and retry on queue-number collisions.
type Service struct {
	appts    AppointmentRepository
	doctors  DoctorDirectory
	patients PatientDirectory
	tx       TxManager
	notifier Notifier
	logger   zerolog.Logger
	cfg      Config

	now func() time.Time
}

// NewService creates the scheduling service. notifier may be nil.
func NewService(appts AppointmentRepository, doctors DoctorDirectory, patients PatientDirectory, tx TxManager, notifier Notifier, logger zerolog.Logger, cfg Config) *Service {
	if cfg.ShiftStart == "" {
		cfg.ShiftStart = DefaultShiftStart
	}
	if cfg.ConsultMinutes <= 0 {
		cfg.ConsultMinutes = DefaultConsultMinutes
	}
	if cfg.MaxPatientsPerDay <= 0 {
		cfg.MaxPatientsPerDay = DefaultMaxPatientsPerDay
	}
	if cfg.RescheduleHorizonDays <= 0 {
		cfg.RescheduleHorizonDays = 30
	}
	if cfg.ConflictRetries <= 0 {
		cfg.ConflictRetries = 3
	}
	return &Service{
		appts:    appts,
		doctors:  doctors,
		patients: patients,
		tx:       tx,
		notifier: notifier,
		logger:   logger.With().Str("component", "queue").Logger(),
		cfg:      cfg,
		now:      time.Now,
	}
}

func (s *Service) shiftStart(d *DoctorInfo) string {
	if d != nil && d.ShiftStart != "" {
		return d.ShiftStart
	}
	return s.cfg.ShiftStart
}

func (s *Service) consultMinutes(d *DoctorInfo) int {
	if d != nil && d.ConsultMinutes > 0 {
		return d.ConsultMinutes
	}
	return s.cfg.ConsultMinutes
}

func (s *Service) maxPatients(d *DoctorInfo) int {
	if d != nil && d.MaxPatientsPerDay > 0 {
		return d.MaxPatientsPerDay
	}
	return s.cfg.MaxPatientsPerDay
}

// retryConflicts runs fn up to the configured attempt count, retrying only
// when the failure is a queue-number collision with a concurrent writer.
func (s *Service) retryConflicts(ctx context.Context, fn func(ctx context.Context) error) error {
	var err error
	for attempt := 1; attempt <= s.cfg.ConflictRetries; attempt++ {
		err = s.tx.InTx(ctx, fn)
		if !errors.Is(err, ErrQueueConflict) {
			return err
		}
		s.logger.Warn().Int("attempt", attempt).Msg("queue conflict, retrying")
	}
	return err
}

// BookRequest is the input to Book. DoctorID nil lets the load balancer pick.
type BookRequest struct {
	PatientID    uuid.UUID
	DepartmentID uuid.UUID
	DoctorID     *uuid.UUID
	Date         time.Time
	Reason       string
	Notes        *string
}

func (s *Service) validateBooking(req *BookRequest) error {
	if req.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if req.DepartmentID == uuid.Nil {
		return &ValidationError{Field: "department_id", Reason: "required"}
	}
	if req.Reason == "" {
		return &ValidationError{Field: "reason", Reason: "required"}
	}
	req.Date = DateOnly(req.Date)
	today := DateOnly(s.now())
	if req.Date.Before(today) {
		return &ValidationError{Field: "appointment_date", Reason: "must not be in the past"}
	}
	if IsWeekend(req.Date) {
		return &ValidationError{Field: "appointment_date", Reason: "clinic closed on weekends"}
	}
	return nil
}

// Book places a patient at the tail of a doctor's daily queue. The doctor is
// either the requested one, checked for activity and capacity, or chosen by
// PickDoctor. The queue number is the current active count plus one, computed
// and persisted under the queue lock.
func (s *Service) Book(ctx context.Context, req BookRequest) (*Appointment, error) {
	if err := s.validateBooking(&req); err != nil {
		return nil, err
	}

	exists, err := s.patients.Exists(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("checking patient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("patient %s: %w", req.PatientID, ErrNotFound)
	}

	var appt *Appointment
	err = s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.bookInTx(ctx, req)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", appt.ID.String()).
		Str("patient_id", appt.PatientID.String()).
		Str("date", appt.Date.Format("2006-01-02")).
		Int("queue_number", appt.QueueNumber).
		Msg("appointment booked")
	s.notify(ctx, appt, "Appointment confirmed",
		fmt.Sprintf("Your appointment on %s is confirmed. Queue number %d, expected time %s.",
			appt.Date.Format("2006-01-02"), appt.QueueNumber, appt.TimeOfDay))
	return appt, nil
}

// HasCapacity reports whether the doctor can take another appointment on the
// date, and the queue number the next booking would receive. A caller that
// goes on to insert must run this inside the booking transaction, after
// LockQueue, so the number it read stays valid.
func (s *Service) HasCapacity(ctx context.Context, doctorID uuid.UUID, date time.Time) (bool, int, error) {
	doctor, err := s.doctors.Doctor(ctx, doctorID)
	if err != nil {
		return false, 0, err
	}
	return s.capacity(ctx, doctor, DateOnly(date))
}

func (s *Service) capacity(ctx context.Context, doctor *DoctorInfo, date time.Time) (bool, int, error) {
	count, err := s.appts.CountActive(ctx, doctor.ID, date)
	if err != nil {
		return false, 0, err
	}
	return count < s.maxPatients(doctor), count + 1, nil
}

func (s *Service) bookInTx(ctx context.Context, req BookRequest) (*Appointment, error) {
	dup, err := s.appts.HasActiveOnDate(ctx, req.PatientID, req.Date)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, &DuplicateBookingError{PatientID: req.PatientID, Date: req.Date}
	}

	var doctor *DoctorInfo
	if req.DoctorID != nil {
		doctor, err = s.doctors.Doctor(ctx, *req.DoctorID)
		if errors.Is(err, ErrNotFound) {
			return nil, &PreferredDoctorUnavailableError{DoctorID: *req.DoctorID, Date: req.Date, Reason: "doctor not found"}
		}
		if err != nil {
			return nil, err
		}
		if !doctor.Active {
			return nil, &PreferredDoctorUnavailableError{DoctorID: doctor.ID, Date: req.Date, Reason: "doctor is inactive"}
		}
		if doctor.DepartmentID != req.DepartmentID {
			return nil, &PreferredDoctorUnavailableError{DoctorID: doctor.ID, Date: req.Date, Reason: "doctor is not in the requested department"}
		}
	} else {
		doctor, err = s.PickDoctor(ctx, req.DepartmentID, req.Date)
		if err != nil {
			return nil, err
		}
	}

	if err := s.appts.LockQueue(ctx, doctor.ID, req.Date); err != nil {
		return nil, err
	}
	free, next, err := s.capacity(ctx, doctor, req.Date)
	if err != nil {
		return nil, err
	}
	if !free {
		if req.DoctorID != nil {
			return nil, &PreferredDoctorUnavailableError{DoctorID: doctor.ID, Date: req.Date, Reason: "doctor is fully booked"}
		}
		return nil, &DepartmentFullError{DepartmentID: req.DepartmentID, Date: req.Date}
	}

	doctorID := doctor.ID
	appt := &Appointment{
		PatientID:    req.PatientID,
		DoctorID:     &doctorID,
		DepartmentID: req.DepartmentID,
		Date:         req.Date,
		TimeOfDay:    SlotTime(next, s.shiftStart(doctor), s.consultMinutes(doctor)),
		QueueNumber:  next,
		Status:       StatusScheduled,
		Reason:       req.Reason,
		Notes:        req.Notes,
	}
	if err := s.appts.Create(ctx, appt); err != nil {
		return nil, err
	}
	return appt, nil
}

// PickDoctor selects the active doctor of a department with the fewest
// active appointments on the date, breaking ties by lowest doctor id, and
// skipping doctors already at capacity. Returns ErrNoDoctorAvailable when the
// department has no active doctors at all, and DepartmentFullError when every
// one of them is full.
func (s *Service) PickDoctor(ctx context.Context, departmentID uuid.UUID, date time.Time) (*DoctorInfo, error) {
	candidates, err := s.doctors.ActiveDoctors(ctx, departmentID)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, fmt.Errorf("department %s: %w", departmentID, ErrNoDoctorAvailable)
	}

	var best *DoctorInfo
	bestLoad := 0
	for _, d := range candidates {
		load, err := s.appts.CountActive(ctx, d.ID, date)
		if err != nil {
			return nil, err
		}
		if load >= s.maxPatients(d) {
			continue
		}
		if best == nil || load < bestLoad {
			best, bestLoad = d, load
		}
	}
	if best == nil {
		return nil, &DepartmentFullError{DepartmentID: departmentID, Date: DateOnly(date)}
	}
	return best, nil
}

// PriorityRequest books an urgent patient at a specific queue position.
// TargetPosition zero defaults to the head of the queue.
type PriorityRequest struct {
	PatientID      uuid.UUID
	DoctorID       uuid.UUID
	Date           time.Time
	TargetPosition int
	Reason         string
	Notes          *string
}

// PriorityResult reports the inserted appointment and how many existing
// entries were pushed back to make room.
type PriorityResult struct {
	Appointment *Appointment `json:"appointment"`
	Displaced   int          `json:"displaced"`
}

// InsertPriority books an appointment at a given queue position, pushing every
// active appointment at or after that position back by one. Pushbacks are
// applied highest queue number first so positions never collide mid-update.
// Priority insertions may exceed the doctor's daily capacity by one.
func (s *Service) InsertPriority(ctx context.Context, req PriorityRequest) (*PriorityResult, error) {
	if req.TargetPosition == 0 {
		req.TargetPosition = 1
	}
	if req.TargetPosition < 1 {
		return nil, &ValidationError{Field: "target_position", Reason: "must be at least 1"}
	}
	if req.DoctorID == uuid.Nil {
		return nil, &ValidationError{Field: "doctor_id", Reason: "required"}
	}
	book := BookRequest{
		PatientID: req.PatientID,
		DoctorID:  &req.DoctorID,
		Date:      req.Date,
		Reason:    req.Reason,
		Notes:     req.Notes,
	}
	if err := s.validatePriority(&book); err != nil {
		return nil, err
	}

	exists, err := s.patients.Exists(ctx, req.PatientID)
	if err != nil {
		return nil, fmt.Errorf("checking patient: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("patient %s: %w", req.PatientID, ErrNotFound)
	}
	doctor, err := s.doctors.Doctor(ctx, req.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, &PreferredDoctorUnavailableError{DoctorID: doctor.ID, Date: DateOnly(req.Date), Reason: "doctor is inactive"}
	}
	book.DepartmentID = doctor.DepartmentID

	var result *PriorityResult
	err = s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		result, err = s.insertPriorityInTx(ctx, book, doctor, req.TargetPosition)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", result.Appointment.ID.String()).
		Int("queue_number", result.Appointment.QueueNumber).
		Int("displaced", result.Displaced).
		Msg("priority appointment inserted")
	s.notify(ctx, result.Appointment, "Urgent appointment confirmed",
		fmt.Sprintf("Your urgent appointment on %s is confirmed. Queue number %d, expected time %s.",
			result.Appointment.Date.Format("2006-01-02"), result.Appointment.QueueNumber,
			result.Appointment.TimeOfDay))
	return result, nil
}

// validatePriority mirrors validateBooking minus the department requirement,
// which priority bookings derive from the doctor.
func (s *Service) validatePriority(req *BookRequest) error {
	if req.PatientID == uuid.Nil {
		return &ValidationError{Field: "patient_id", Reason: "required"}
	}
	if req.Reason == "" {
		return &ValidationError{Field: "reason", Reason: "required"}
	}
	req.Date = DateOnly(req.Date)
	if req.Date.Before(DateOnly(s.now())) {
		return &ValidationError{Field: "appointment_date", Reason: "must not be in the past"}
	}
	if IsWeekend(req.Date) {
		return &ValidationError{Field: "appointment_date", Reason: "clinic closed on weekends"}
	}
	return nil
}

func (s *Service) insertPriorityInTx(ctx context.Context, req BookRequest, doctor *DoctorInfo, target int) (*PriorityResult, error) {
	dup, err := s.appts.HasActiveOnDate(ctx, req.PatientID, req.Date)
	if err != nil {
		return nil, err
	}
	if dup {
		return nil, &DuplicateBookingError{PatientID: req.PatientID, Date: req.Date}
	}

	if err := s.appts.LockQueue(ctx, doctor.ID, req.Date); err != nil {
		return nil, err
	}
	// Capacity is allowed to overflow by one here; only the target range is
	// checked.
	_, next, err := s.capacity(ctx, doctor, req.Date)
	if err != nil {
		return nil, err
	}
	if target > next {
		return nil, &ValidationError{
			Field:  "target_position",
			Reason: fmt.Sprintf("must be at most %d, the queue tail", next),
		}
	}

	// Push back the entries at or after the target position, highest first.
	shiftStart, minutes := s.shiftStart(doctor), s.consultMinutes(doctor)
	tail, err := s.appts.ActiveFromPosition(ctx, doctor.ID, req.Date, target)
	if err != nil {
		return nil, err
	}
	for _, a := range tail {
		pos := a.QueueNumber + 1
		err := s.appts.Displace(ctx, a.ID, pos, SlotTime(pos, shiftStart, minutes),
			"pushed back due to priority insertion")
		if err != nil {
			return nil, err
		}
	}

	doctorID := doctor.ID
	appt := &Appointment{
		PatientID:    req.PatientID,
		DoctorID:     &doctorID,
		DepartmentID: req.DepartmentID,
		Date:         req.Date,
		TimeOfDay:    SlotTime(target, shiftStart, minutes),
		QueueNumber:  target,
		Status:       StatusScheduled,
		Reason:       req.Reason,
		Notes:        req.Notes,
	}
	if err := s.appts.Create(ctx, appt); err != nil {
		return nil, err
	}
	return &PriorityResult{Appointment: appt, Displaced: len(tail)}, nil
}

// MarkNoShow closes an appointment as a no-show and books a replacement at
// the tail of the next workday's queue with the same doctor, falling back to
// the department's least loaded doctor when the original one has no room.
// Returns the replacement appointment.
func (s *Service) MarkNoShow(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	var replacement *Appointment
	err := s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		replacement, err = s.markNoShowInTx(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("replacement_id", replacement.ID.String()).
		Str("date", replacement.Date.Format("2006-01-02")).
		Msg("no-show rebooked")
	s.notify(ctx, replacement, "Appointment rescheduled",
		fmt.Sprintf("You missed your appointment. A new one is booked for %s, queue number %d, expected time %s.",
			replacement.Date.Format("2006-01-02"), replacement.QueueNumber, replacement.TimeOfDay))
	return replacement, nil
}

func (s *Service) markNoShowInTx(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	orig, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanTransition(orig.Status, StatusNoShow) {
		return nil, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("cannot mark a %s appointment as no-show", orig.Status),
		}
	}
	if err := s.appts.UpdateStatus(ctx, id, StatusNoShow); err != nil {
		return nil, err
	}

	date := NextWorkday(orig.Date)
	doctor, err := s.noShowDoctor(ctx, orig, date)
	if err != nil {
		return nil, err
	}
	if err := s.appts.LockQueue(ctx, doctor.ID, date); err != nil {
		return nil, err
	}
	// The replacement takes the next number even when the doctor is already
	// at the daily max.
	_, next, err := s.capacity(ctx, doctor, date)
	if err != nil {
		return nil, err
	}

	note := fmt.Sprintf("rebooked after no-show of appointment %s", orig.ID)
	doctorID := doctor.ID
	replacement := &Appointment{
		PatientID:    orig.PatientID,
		DoctorID:     &doctorID,
		DepartmentID: orig.DepartmentID,
		Date:         date,
		TimeOfDay:    SlotTime(next, s.shiftStart(doctor), s.consultMinutes(doctor)),
		QueueNumber:  next,
		Status:       StatusScheduled,
		Reason:       orig.Reason,
		Notes:        &note,
	}
	if err := s.appts.Create(ctx, replacement); err != nil {
		return nil, err
	}
	return replacement, nil
}

// noShowDoctor keeps the original doctor when still active, otherwise falls
// back to the department load balancer.
func (s *Service) noShowDoctor(ctx context.Context, orig *Appointment, date time.Time) (*DoctorInfo, error) {
	if orig.DoctorID != nil {
		doctor, err := s.doctors.Doctor(ctx, *orig.DoctorID)
		if err == nil && doctor.Active {
			return doctor, nil
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return s.PickDoctor(ctx, orig.DepartmentID, date)
}

// Reschedule moves an active appointment in place to the earliest weekday
// within the horizon, strictly after the current date, where the same doctor
// has a free slot. When requestingPatient is non-nil the appointment must
// belong to them.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, requestingPatient uuid.UUID) (*Appointment, error) {
	var moved *Appointment
	err := s.retryConflicts(ctx, func(ctx context.Context) error {
		var err error
		moved, err = s.rescheduleInTx(ctx, id, requestingPatient)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info().
		Str("appointment_id", moved.ID.String()).
		Str("date", moved.Date.Format("2006-01-02")).
		Int("queue_number", moved.QueueNumber).
		Msg("appointment rescheduled")
	s.notify(ctx, moved, "Appointment rescheduled",
		fmt.Sprintf("Your appointment moved to %s. Queue number %d, expected time %s.",
			moved.Date.Format("2006-01-02"), moved.QueueNumber, moved.TimeOfDay))
	return moved, nil
}

func (s *Service) rescheduleInTx(ctx context.Context, id, requestingPatient uuid.UUID) (*Appointment, error) {
	appt, err := s.appts.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if requestingPatient != uuid.Nil && appt.PatientID != requestingPatient {
		return nil, ErrNotFound
	}
	if !appt.Status.Active() {
		return nil, &ValidationError{
			Field:  "status",
			Reason: fmt.Sprintf("cannot reschedule a %s appointment", appt.Status),
		}
	}
	if appt.DoctorID == nil {
		return nil, &ValidationError{Field: "doctor_id", Reason: "appointment has no assigned doctor"}
	}
	doctor, err := s.doctors.Doctor(ctx, *appt.DoctorID)
	if err != nil {
		return nil, err
	}
	if !doctor.Active {
		return nil, &PreferredDoctorUnavailableError{DoctorID: doctor.ID, Date: appt.Date, Reason: "doctor is inactive"}
	}

	for offset := 1; offset <= s.cfg.RescheduleHorizonDays; offset++ {
		date := DateOnly(appt.Date).AddDate(0, 0, offset)
		if IsWeekend(date) {
			continue
		}
		if err := s.appts.LockQueue(ctx, doctor.ID, date); err != nil {
			return nil, err
		}
		free, pos, err := s.capacity(ctx, doctor, date)
		if err != nil {
			return nil, err
		}
		if !free {
			continue
		}

		note := fmt.Sprintf("rescheduled from %s", appt.Date.Format("2006-01-02"))
		slot := SlotTime(pos, s.shiftStart(doctor), s.consultMinutes(doctor))
		if err := s.appts.Move(ctx, appt.ID, date, slot, pos, note); err != nil {
			return nil, err
		}
		return s.appts.GetByID(ctx, appt.ID)
	}
	return nil, fmt.Errorf("doctor %s within %d days: %w",
		doctor.ID, s.cfg.RescheduleHorizonDays, ErrNoSlotAvailable)
}

// Transition moves an appointment through its lifecycle, enforcing the state
// machine. No-shows go through MarkNoShow so the rebooking happens too.
func (s *Service) Transition(ctx context.Context, id uuid.UUID, to Status) (*Appointment, error) {
	if !to.Valid() {
		return nil, &ValidationError{Field: "status", Reason: fmt.Sprintf("unknown status %q", to)}
	}
	var appt *Appointment
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		var err error
		appt, err = s.appts.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if !CanTransition(appt.Status, to) {
			return &ValidationError{
				Field:  "status",
				Reason: fmt.Sprintf("cannot transition from %s to %s", appt.Status, to),
			}
		}
		appt.Status = to
		return s.appts.UpdateStatus(ctx, id, to)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("appointment_id", id.String()).
		Str("status", string(to)).
		Msg("appointment status changed")
	return appt, nil
}

// Get returns one appointment by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.appts.GetByID(ctx, id)
}

// DoctorQueue returns a doctor's active queue for one date in call order.
func (s *Service) DoctorQueue(ctx context.Context, doctorID uuid.UUID, date time.Time) ([]*Appointment, error) {
	if _, err := s.doctors.Doctor(ctx, doctorID); err != nil {
		return nil, err
	}
	return s.appts.Queue(ctx, doctorID, DateOnly(date))
}

// NextForPatient returns the patient's earliest upcoming active appointment.
func (s *Service) NextForPatient(ctx context.Context, patientID uuid.UUID) (*Appointment, error) {
	return s.appts.NextForPatient(ctx, patientID, DateOnly(s.now()))
}

// History lists a patient's appointments, newest first.
func (s *Service) History(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	return s.appts.ListByPatient(ctx, patientID, limit, offset)
}

// notify fires a best-effort notification for the appointment's patient.
func (s *Service) notify(ctx context.Context, appt *Appointment, title, message string) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ctx, appt.PatientID, title, message, "appointment", appt.ID)
}
