package queue

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

func date(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

type mockApptRepo struct {
	store       map[uuid.UUID]*Appointment
	failCreates int
	locks       int
}

func newMockApptRepo() *mockApptRepo {
	return &mockApptRepo{store: make(map[uuid.UUID]*Appointment)}
}
func (m *mockApptRepo) Create(_ context.Context, a *Appointment) error {
	if m.failCreates > 0 {
		m.failCreates--
		return ErrQueueConflict
	}
	a.ID = uuid.New()
	cp := *a
	m.store[a.ID] = &cp
	return nil
}
func (m *mockApptRepo) GetByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	a, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}
func (m *mockApptRepo) CountActive(_ context.Context, doctorID uuid.UUID, day time.Time) (int, error) {
	n := 0
	for _, a := range m.store {
		if a.DoctorID != nil && *a.DoctorID == doctorID && a.Date.Equal(day) && a.Status.Active() {
			n++
		}
	}
	return n, nil
}
func (m *mockApptRepo) HasActiveOnDate(_ context.Context, patientID uuid.UUID, day time.Time) (bool, error) {
	for _, a := range m.store {
		if a.PatientID == patientID && a.Date.Equal(day) && a.Status.Active() {
			return true, nil
		}
	}
	return false, nil
}
func (m *mockApptRepo) Queue(_ context.Context, doctorID uuid.UUID, day time.Time) ([]*Appointment, error) {
	var r []*Appointment
	for _, a := range m.store {
		if a.DoctorID != nil && *a.DoctorID == doctorID && a.Date.Equal(day) && a.Status.Active() {
			cp := *a
			r = append(r, &cp)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].QueueNumber < r[j].QueueNumber })
	return r, nil
}
func (m *mockApptRepo) ActiveFromPosition(ctx context.Context, doctorID uuid.UUID, day time.Time, from int) ([]*Appointment, error) {
	all, _ := m.Queue(ctx, doctorID, day)
	var r []*Appointment
	for _, a := range all {
		if a.QueueNumber >= from {
			r = append(r, a)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].QueueNumber > r[j].QueueNumber })
	return r, nil
}
func (m *mockApptRepo) NextForPatient(_ context.Context, patientID uuid.UUID, from time.Time) (*Appointment, error) {
	var best *Appointment
	for _, a := range m.store {
		if a.PatientID != patientID || !a.Status.Active() || a.Date.Before(from) {
			continue
		}
		if best == nil || a.Date.Before(best.Date) ||
			(a.Date.Equal(best.Date) && a.QueueNumber < best.QueueNumber) {
			best = a
		}
	}
	if best == nil {
		return nil, ErrNotFound
	}
	cp := *best
	return &cp, nil
}
func (m *mockApptRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]*Appointment, int, error) {
	var r []*Appointment
	for _, a := range m.store {
		if a.PatientID == patientID {
			cp := *a
			r = append(r, &cp)
		}
	}
	return r, len(r), nil
}
func (m *mockApptRepo) UpdateStatus(_ context.Context, id uuid.UUID, status Status) error {
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.Status = status
	return nil
}
func (m *mockApptRepo) Displace(_ context.Context, id uuid.UUID, queueNumber int, timeOfDay, note string) error {
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.QueueNumber, a.TimeOfDay = queueNumber, timeOfDay
	if a.Notes == nil {
		a.Notes = &note
	} else {
		joined := *a.Notes + "\n" + note
		a.Notes = &joined
	}
	return nil
}
func (m *mockApptRepo) Move(_ context.Context, id uuid.UUID, day time.Time, timeOfDay string, queueNumber int, note string) error {
	a, ok := m.store[id]
	if !ok {
		return ErrNotFound
	}
	a.Date, a.TimeOfDay, a.QueueNumber = day, timeOfDay, queueNumber
	if a.Notes == nil {
		a.Notes = &note
	} else {
		joined := *a.Notes + "\n" + note
		a.Notes = &joined
	}
	return nil
}
func (m *mockApptRepo) LockQueue(_ context.Context, _ uuid.UUID, _ time.Time) error {
	m.locks++
	return nil
}

type mockDoctors struct{ store map[uuid.UUID]*DoctorInfo }

func (m *mockDoctors) Doctor(_ context.Context, id uuid.UUID) (*DoctorInfo, error) {
	d, ok := m.store[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}
func (m *mockDoctors) ActiveDoctors(_ context.Context, departmentID uuid.UUID) ([]*DoctorInfo, error) {
	var r []*DoctorInfo
	for _, d := range m.store {
		if d.Active && d.DepartmentID == departmentID {
			cp := *d
			r = append(r, &cp)
		}
	}
	sort.Slice(r, func(i, j int) bool { return r[i].ID.String() < r[j].ID.String() })
	return r, nil
}

type mockPatients struct{ store map[uuid.UUID]bool }

func (m *mockPatients) Exists(_ context.Context, id uuid.UUID) (bool, error) {
	return m.store[id], nil
}

type mockTx struct{}

func (mockTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }

type notice struct {
	userID   uuid.UUID
	title    string
	category string
}

type mockNotifier struct{ sent []notice }

func (m *mockNotifier) Notify(_ context.Context, userID uuid.UUID, title, _, category string, _ uuid.UUID) {
	m.sent = append(m.sent, notice{userID: userID, title: title, category: category})
}

var (
	dept1 = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	docA  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000001")
	docB  = uuid.MustParse("aaaaaaaa-0000-0000-0000-000000000002")
)

type fixture struct {
	svc      *Service
	appts    *mockApptRepo
	doctors  *mockDoctors
	patients *mockPatients
	notifier *mockNotifier
}

func newFixtureCfg(cfg Config) *fixture {
	f := &fixture{
		appts: newMockApptRepo(),
		doctors: &mockDoctors{store: map[uuid.UUID]*DoctorInfo{
			docA: {ID: docA, DepartmentID: dept1, Active: true},
			docB: {ID: docB, DepartmentID: dept1, Active: true},
		}},
		patients: &mockPatients{store: make(map[uuid.UUID]bool)},
		notifier: &mockNotifier{},
	}
	f.svc = NewService(f.appts, f.doctors, f.patients, mockTx{}, f.notifier, zerolog.Nop(), cfg)
	// Fixed clock: Monday 2026-03-02.
	f.svc.now = func() time.Time { return date("2026-03-02") }
	return f
}

func newFixture() *fixture { return newFixtureCfg(Config{}) }

func (f *fixture) newPatient() uuid.UUID {
	id := uuid.New()
	f.patients.store[id] = true
	return id
}

func (f *fixture) book(t *testing.T, doctorID *uuid.UUID, day string) *Appointment {
	t.Helper()
	appt, err := f.svc.Book(context.Background(), BookRequest{
		PatientID:    f.newPatient(),
		DepartmentID: dept1,
		DoctorID:     doctorID,
		Date:         date(day),
		Reason:       "checkup",
	})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	return appt
}

func TestBook_AssignsSequentialQueueNumbers(t *testing.T) {
	f := newFixture()
	wantTimes := []string{"08:00", "08:25", "08:50"}
	for i := 0; i < 3; i++ {
		appt := f.book(t, &docA, "2026-03-03")
		if appt.QueueNumber != i+1 {
			t.Errorf("booking %d got queue number %d", i+1, appt.QueueNumber)
		}
		if appt.TimeOfDay != wantTimes[i] {
			t.Errorf("booking %d got time %s, want %s", i+1, appt.TimeOfDay, wantTimes[i])
		}
		if appt.Status != StatusScheduled {
			t.Errorf("booking %d got status %s", i+1, appt.Status)
		}
	}
}

func TestBook_RejectsDuplicateSameDay(t *testing.T) {
	f := newFixture()
	patientID := f.newPatient()
	req := BookRequest{PatientID: patientID, DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-03"), Reason: "checkup"}
	if _, err := f.svc.Book(context.Background(), req); err != nil {
		t.Fatalf("first booking: %v", err)
	}
	req.DoctorID = &docB // a different doctor on the same day is still a duplicate
	_, err := f.svc.Book(context.Background(), req)
	var dup *DuplicateBookingError
	if !errors.As(err, &dup) {
		t.Fatalf("expected DuplicateBookingError, got %v", err)
	}
}

func TestBook_Validation(t *testing.T) {
	f := newFixture()
	patientID := f.newPatient()
	cases := []struct {
		name string
		req  BookRequest
	}{
		{"missing patient", BookRequest{DepartmentID: dept1, Date: date("2026-03-03"), Reason: "x"}},
		{"missing department", BookRequest{PatientID: patientID, Date: date("2026-03-03"), Reason: "x"}},
		{"missing reason", BookRequest{PatientID: patientID, DepartmentID: dept1, Date: date("2026-03-03")}},
		{"past date", BookRequest{PatientID: patientID, DepartmentID: dept1, Date: date("2026-02-27"), Reason: "x"}},
		{"weekend", BookRequest{PatientID: patientID, DepartmentID: dept1, Date: date("2026-03-07"), Reason: "x"}},
	}
	for _, tc := range cases {
		_, err := f.svc.Book(context.Background(), tc.req)
		var ve *ValidationError
		if !errors.As(err, &ve) {
			t.Errorf("%s: expected ValidationError, got %v", tc.name, err)
		}
	}
}

func TestBook_UnknownPatient(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: uuid.New(), DepartmentID: dept1, Date: date("2026-03-03"), Reason: "x"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBook_PreferredDoctorInactive(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].Active = false
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-03"), Reason: "x"})
	var unavailable *PreferredDoctorUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected PreferredDoctorUnavailableError, got %v", err)
	}
}

func TestBook_PreferredDoctorWrongDepartment(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: uuid.New(), DoctorID: &docA,
		Date: date("2026-03-03"), Reason: "x"})
	var unavailable *PreferredDoctorUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected PreferredDoctorUnavailableError, got %v", err)
	}
}

func TestBook_PreferredDoctorFull(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].MaxPatientsPerDay = 2
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-03"), Reason: "x"})
	var unavailable *PreferredDoctorUnavailableError
	if !errors.As(err, &unavailable) {
		t.Fatalf("expected PreferredDoctorUnavailableError, got %v", err)
	}
}

func TestBook_BalancesLoadAcrossDoctors(t *testing.T) {
	f := newFixture()
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docB, "2026-03-03")

	// docB carries less load, so the balancer picks it.
	appt := f.book(t, nil, "2026-03-03")
	if appt.DoctorID == nil || *appt.DoctorID != docB {
		t.Fatalf("expected docB, got %v", appt.DoctorID)
	}
	// Loads now tie at two each; the lowest doctor id wins.
	appt = f.book(t, nil, "2026-03-03")
	if appt.DoctorID == nil || *appt.DoctorID != docA {
		t.Fatalf("expected docA on tie, got %v", appt.DoctorID)
	}
}

func TestBook_NoActiveDoctors(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].Active = false
	f.doctors.store[docB].Active = false
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: dept1, Date: date("2026-03-03"), Reason: "x"})
	if !errors.Is(err, ErrNoDoctorAvailable) {
		t.Fatalf("expected ErrNoDoctorAvailable, got %v", err)
	}
}

func TestBook_DepartmentFull(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].MaxPatientsPerDay = 1
	f.doctors.store[docB].MaxPatientsPerDay = 1
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docB, "2026-03-03")
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: dept1, Date: date("2026-03-03"), Reason: "x"})
	var full *DepartmentFullError
	if !errors.As(err, &full) {
		t.Fatalf("expected DepartmentFullError, got %v", err)
	}
}

func TestBook_RetriesQueueConflict(t *testing.T) {
	f := newFixture()
	f.appts.failCreates = 2
	appt := f.book(t, &docA, "2026-03-03")
	if appt.QueueNumber != 1 {
		t.Errorf("got queue number %d after retries", appt.QueueNumber)
	}

	f = newFixture()
	f.appts.failCreates = 3
	_, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: f.newPatient(), DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-03"), Reason: "x"})
	if !errors.Is(err, ErrQueueConflict) {
		t.Fatalf("expected ErrQueueConflict after exhausted retries, got %v", err)
	}
}

func TestBook_SendsNotification(t *testing.T) {
	f := newFixture()
	appt := f.book(t, &docA, "2026-03-03")
	if len(f.notifier.sent) != 1 {
		t.Fatalf("expected 1 notification, got %d", len(f.notifier.sent))
	}
	n := f.notifier.sent[0]
	if n.userID != appt.PatientID || n.category != "appointment" {
		t.Errorf("unexpected notification %+v", n)
	}
}

func priorityReq(f *fixture, target int, day string) PriorityRequest {
	return PriorityRequest{
		PatientID:      f.newPatient(),
		DoctorID:       docA,
		Date:           date(day),
		TargetPosition: target,
		Reason:         "severe pain",
	}
}

func TestInsertPriority_HeadOfQueue(t *testing.T) {
	f := newFixture()
	existing := []*Appointment{
		f.book(t, &docA, "2026-03-03"),
		f.book(t, &docA, "2026-03-03"),
		f.book(t, &docA, "2026-03-03"),
	}

	result, err := f.svc.InsertPriority(context.Background(), priorityReq(f, 0, "2026-03-03"))
	if err != nil {
		t.Fatalf("insert priority: %v", err)
	}
	if result.Displaced != 3 {
		t.Errorf("expected 3 displaced, got %d", result.Displaced)
	}
	if result.Appointment.QueueNumber != 1 || result.Appointment.TimeOfDay != "08:00" {
		t.Errorf("expected head slot, got %d at %s",
			result.Appointment.QueueNumber, result.Appointment.TimeOfDay)
	}

	wantTimes := map[int]string{2: "08:25", 3: "08:50", 4: "09:15"}
	for i, orig := range existing {
		got, _ := f.appts.GetByID(context.Background(), orig.ID)
		if got.QueueNumber != i+2 {
			t.Errorf("existing %d: queue number %d, want %d", i, got.QueueNumber, i+2)
		}
		if got.TimeOfDay != wantTimes[got.QueueNumber] {
			t.Errorf("existing %d: time %s, want %s", i, got.TimeOfDay, wantTimes[got.QueueNumber])
		}
		if got.Notes == nil {
			t.Errorf("existing %d: missing pushback note", i)
		}
	}
}

func TestInsertPriority_MidQueue(t *testing.T) {
	f := newFixture()
	first := f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")

	result, err := f.svc.InsertPriority(context.Background(), priorityReq(f, 2, "2026-03-03"))
	if err != nil {
		t.Fatalf("insert priority: %v", err)
	}
	if result.Displaced != 2 {
		t.Errorf("expected 2 displaced, got %d", result.Displaced)
	}
	got, _ := f.appts.GetByID(context.Background(), first.ID)
	if got.QueueNumber != 1 {
		t.Errorf("head of queue should stay at 1, got %d", got.QueueNumber)
	}
}

func TestInsertPriority_TargetBeyondTail(t *testing.T) {
	f := newFixture()
	f.book(t, &docA, "2026-03-03")
	_, err := f.svc.InsertPriority(context.Background(), priorityReq(f, 3, "2026-03-03"))
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}

	// Position 2 is the tail of a one-entry queue and is fine.
	result, err := f.svc.InsertPriority(context.Background(), priorityReq(f, 2, "2026-03-03"))
	if err != nil {
		t.Fatalf("tail insert: %v", err)
	}
	if result.Displaced != 0 {
		t.Errorf("tail insert displaced %d", result.Displaced)
	}
}

func TestInsertPriority_AllowsCapacityOverflow(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].MaxPatientsPerDay = 2
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")

	result, err := f.svc.InsertPriority(context.Background(), priorityReq(f, 1, "2026-03-03"))
	if err != nil {
		t.Fatalf("priority insert into a full day: %v", err)
	}
	queue, _ := f.appts.Queue(context.Background(), docA, date("2026-03-03"))
	if len(queue) != 3 {
		t.Errorf("expected 3 entries after overflow insert, got %d", len(queue))
	}
	if result.Appointment.QueueNumber != 1 {
		t.Errorf("expected head position, got %d", result.Appointment.QueueNumber)
	}
}

func TestMarkNoShow_RebooksNextWorkday(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-06") // Friday

	replacement, err := f.svc.MarkNoShow(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	closed, _ := f.appts.GetByID(context.Background(), orig.ID)
	if closed.Status != StatusNoShow {
		t.Errorf("original status %s, want no-show", closed.Status)
	}
	if got := replacement.Date.Format("2006-01-02"); got != "2026-03-09" {
		t.Errorf("replacement date %s, want Monday 2026-03-09", got)
	}
	if replacement.ID == orig.ID {
		t.Error("replacement should be a new appointment")
	}
	if replacement.DoctorID == nil || *replacement.DoctorID != docA {
		t.Errorf("replacement doctor %v, want original doctor", replacement.DoctorID)
	}
	if replacement.QueueNumber != 1 || replacement.Status != StatusScheduled {
		t.Errorf("replacement at %d with status %s", replacement.QueueNumber, replacement.Status)
	}
	if replacement.Notes == nil {
		t.Error("replacement should note the missed appointment")
	}
}

func TestMarkNoShow_FallsBackWhenDoctorInactive(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-03")
	f.doctors.store[docA].Active = false

	replacement, err := f.svc.MarkNoShow(context.Background(), orig.ID)
	if err != nil {
		t.Fatalf("mark no-show: %v", err)
	}
	if replacement.DoctorID == nil || *replacement.DoctorID != docB {
		t.Errorf("expected fallback to docB, got %v", replacement.DoctorID)
	}
}

func TestMarkNoShow_RejectsTerminal(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-03")
	f.appts.store[orig.ID].Status = StatusCompleted

	_, err := f.svc.MarkNoShow(context.Background(), orig.ID)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestReschedule_MovesToNextOpenDay(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-03") // Tuesday

	moved, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if moved.ID != orig.ID {
		t.Error("reschedule should move the appointment in place")
	}
	if got := moved.Date.Format("2006-01-02"); got != "2026-03-04" {
		t.Errorf("moved to %s, want 2026-03-04", got)
	}
	if moved.QueueNumber != 1 || moved.TimeOfDay != "08:00" {
		t.Errorf("moved to position %d at %s", moved.QueueNumber, moved.TimeOfDay)
	}
	oldDay, _ := f.appts.Queue(context.Background(), docA, date("2026-03-03"))
	if len(oldDay) != 0 {
		t.Errorf("old day still has %d entries", len(oldDay))
	}
}

func TestReschedule_SkipsWeekend(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-06") // Friday

	moved, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := moved.Date.Format("2006-01-02"); got != "2026-03-09" {
		t.Errorf("moved to %s, want Monday 2026-03-09", got)
	}
}

func TestReschedule_SkipsFullDays(t *testing.T) {
	f := newFixture()
	f.doctors.store[docA].MaxPatientsPerDay = 1
	orig := f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-04") // Wednesday is full

	moved, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.Nil)
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if got := moved.Date.Format("2006-01-02"); got != "2026-03-05" {
		t.Errorf("moved to %s, want Thursday 2026-03-05", got)
	}
}

func TestReschedule_HorizonExhausted(t *testing.T) {
	f := newFixtureCfg(Config{RescheduleHorizonDays: 2})
	f.doctors.store[docA].MaxPatientsPerDay = 1
	orig := f.book(t, &docA, "2026-03-05") // Thursday
	f.book(t, &docA, "2026-03-06")         // Friday full; Saturday is skipped

	_, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.Nil)
	if !errors.Is(err, ErrNoSlotAvailable) {
		t.Fatalf("expected ErrNoSlotAvailable, got %v", err)
	}
}

func TestReschedule_OwnershipEnforced(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-03")

	if _, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for a stranger, got %v", err)
	}
	if _, err := f.svc.Reschedule(context.Background(), orig.ID, orig.PatientID); err != nil {
		t.Fatalf("owner reschedule: %v", err)
	}
}

func TestReschedule_RejectsTerminal(t *testing.T) {
	f := newFixture()
	orig := f.book(t, &docA, "2026-03-03")
	f.appts.store[orig.ID].Status = StatusCancelled

	_, err := f.svc.Reschedule(context.Background(), orig.ID, uuid.Nil)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestTransition_Lifecycle(t *testing.T) {
	f := newFixture()
	appt := f.book(t, &docA, "2026-03-03")
	ctx := context.Background()

	for _, next := range []Status{StatusCalled, StatusInProgress, StatusCompleted} {
		got, err := f.svc.Transition(ctx, appt.ID, next)
		if err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
		if got.Status != next {
			t.Errorf("status %s, want %s", got.Status, next)
		}
	}

	_, err := f.svc.Transition(ctx, appt.ID, StatusCalled)
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError leaving a terminal status, got %v", err)
	}
	if _, err := f.svc.Transition(ctx, appt.ID, Status("bogus")); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError for unknown status, got %v", err)
	}
}

func TestNextForPatient_ReturnsEarliest(t *testing.T) {
	f := newFixture()
	patientID := f.newPatient()
	later, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: patientID, DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-10"), Reason: "followup"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}
	sooner, err := f.svc.Book(context.Background(), BookRequest{
		PatientID: patientID, DepartmentID: dept1, DoctorID: &docA,
		Date: date("2026-03-04"), Reason: "checkup"})
	if err != nil {
		t.Fatalf("book: %v", err)
	}

	got, err := f.svc.NextForPatient(context.Background(), patientID)
	if err != nil {
		t.Fatalf("next for patient: %v", err)
	}
	if got.ID != sooner.ID {
		t.Errorf("got %s, want the earlier appointment %s over %s", got.ID, sooner.ID, later.ID)
	}
}

func TestDoctorQueue_OrderedByPosition(t *testing.T) {
	f := newFixture()
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")

	queue, err := f.svc.DoctorQueue(context.Background(), docA, date("2026-03-03"))
	if err != nil {
		t.Fatalf("doctor queue: %v", err)
	}
	if len(queue) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(queue))
	}
	for i, a := range queue {
		if a.QueueNumber != i+1 {
			t.Errorf("entry %d has queue number %d", i, a.QueueNumber)
		}
	}
	if _, err := f.svc.DoctorQueue(context.Background(), uuid.New(), date("2026-03-03")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown doctor, got %v", err)
	}
}

func TestHasCapacity(t *testing.T) {
	f := newFixtureCfg(Config{MaxPatientsPerDay: 2})

	free, next, err := f.svc.HasCapacity(context.Background(), docA, date("2026-03-03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !free || next != 1 {
		t.Errorf("empty day: free=%v next=%d, want free=true next=1", free, next)
	}

	f.book(t, &docA, "2026-03-03")
	f.book(t, &docA, "2026-03-03")

	free, next, err = f.svc.HasCapacity(context.Background(), docA, date("2026-03-03"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if free || next != 3 {
		t.Errorf("full day: free=%v next=%d, want free=false next=3", free, next)
	}

	if _, _, err := f.svc.HasCapacity(context.Background(), uuid.New(), date("2026-03-03")); err == nil {
		t.Error("expected error for unknown doctor")
	}
}
