package directory

import (
	"time"

	"github.com/google/uuid"
)

// Department is a clinical unit patients book into.
type Department struct {
	ID          uuid.UUID `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// Doctor is a member of a department's roster. The scheduling overrides are
// optional; zero values defer to the platform defaults.
type Doctor struct {
	ID                uuid.UUID `db:"id" json:"id"`
	DepartmentID      uuid.UUID `db:"department_id" json:"department_id"`
	FirstName         string    `db:"first_name" json:"first_name"`
	LastName          string    `db:"last_name" json:"last_name"`
	Specialty         *string   `db:"specialty" json:"specialty,omitempty"`
	Active            bool      `db:"active" json:"active"`
	MaxPatientsPerDay int       `db:"max_patients_per_day" json:"max_patients_per_day"`
	ConsultMinutes    int       `db:"consult_minutes" json:"consult_minutes"`
	ShiftStart        string    `db:"shift_start" json:"shift_start"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time `db:"updated_at" json:"updated_at"`
}
