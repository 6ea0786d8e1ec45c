package directory

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

type Service struct {
	departments DepartmentRepository
	doctors     DoctorRepository
}

func NewService(departments DepartmentRepository, doctors DoctorRepository) *Service {
	return &Service{departments: departments, doctors: doctors}
}

func (s *Service) CreateDepartment(ctx context.Context, d *Department) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	if existing, err := s.departments.GetByName(ctx, d.Name); err == nil && existing != nil {
		return fmt.Errorf("department %q already exists", d.Name)
	}
	return s.departments.Create(ctx, d)
}

func (s *Service) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	return s.departments.GetByID(ctx, id)
}

func (s *Service) ListDepartments(ctx context.Context, limit, offset int) ([]*Department, int, error) {
	return s.departments.List(ctx, limit, offset)
}

func (s *Service) UpdateDepartment(ctx context.Context, d *Department) error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("name is required")
	}
	return s.departments.Update(ctx, d)
}

func (s *Service) DeleteDepartment(ctx context.Context, id uuid.UUID) error {
	doctors, err := s.doctors.ListByDepartment(ctx, id, false)
	if err != nil {
		return err
	}
	if len(doctors) > 0 {
		return fmt.Errorf("department still has %d doctors", len(doctors))
	}
	return s.departments.Delete(ctx, id)
}

func validateDoctor(d *Doctor) error {
	if strings.TrimSpace(d.FirstName) == "" || strings.TrimSpace(d.LastName) == "" {
		return fmt.Errorf("first_name and last_name are required")
	}
	if d.DepartmentID == uuid.Nil {
		return fmt.Errorf("department_id is required")
	}
	if d.MaxPatientsPerDay < 0 {
		return fmt.Errorf("max_patients_per_day must not be negative")
	}
	if d.ConsultMinutes < 0 {
		return fmt.Errorf("consult_minutes must not be negative")
	}
	if d.ShiftStart != "" && !validClock(d.ShiftStart) {
		return fmt.Errorf("shift_start must be HH:MM")
	}
	return nil
}

func validClock(s string) bool {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return false
	}
	hour, err := strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return false
	}
	minute, err := strconv.Atoi(m)
	return err == nil && minute >= 0 && minute <= 59
}

func (s *Service) CreateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if _, err := s.departments.GetByID(ctx, d.DepartmentID); err != nil {
		return fmt.Errorf("department %s: %w", d.DepartmentID, err)
	}
	d.Active = true
	return s.doctors.Create(ctx, d)
}

func (s *Service) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	return s.doctors.GetByID(ctx, id)
}

func (s *Service) ListDoctors(ctx context.Context, limit, offset int) ([]*Doctor, int, error) {
	return s.doctors.List(ctx, limit, offset)
}

func (s *Service) ListDoctorsByDepartment(ctx context.Context, departmentID uuid.UUID, activeOnly bool) ([]*Doctor, error) {
	return s.doctors.ListByDepartment(ctx, departmentID, activeOnly)
}

func (s *Service) UpdateDoctor(ctx context.Context, d *Doctor) error {
	if err := validateDoctor(d); err != nil {
		return err
	}
	if _, err := s.departments.GetByID(ctx, d.DepartmentID); err != nil {
		return fmt.Errorf("department %s: %w", d.DepartmentID, err)
	}
	return s.doctors.Update(ctx, d)
}

// SetDoctorActive toggles a doctor on or off the bookable roster. Existing
// appointments keep their assignment; only new scheduling is affected.
func (s *Service) SetDoctorActive(ctx context.Context, id uuid.UUID, active bool) error {
	return s.doctors.SetActive(ctx, id, active)
}
