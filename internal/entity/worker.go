package entity

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Role is a worker's role in the company.
type Role string

const (
	RoleWorker     Role = "arbejder"
	RoleSiteLeader Role = "byggeleder"
	RoleChef       Role = "chef"
	RoleSystem     Role = "system"
)

// WorkerStatus is a worker's employment status.
type WorkerStatus string

const (
	WorkerActive     WorkerStatus = "aktiv"
	WorkerInactive   WorkerStatus = "inaktiv"
	WorkerSick       WorkerStatus = "sygemeldt"
	WorkerOnVacation WorkerStatus = "ferie"
	WorkerTerminated WorkerStatus = "opsagt"
)

// EmploymentType is the kind of contract a worker is on.
type EmploymentType string

const (
	FullTime   EmploymentType = "fuld_tid"
	PartTime   EmploymentType = "deltid"
	Hourly     EmploymentType = "timebaseret"
	Freelancer EmploymentType = "freelancer"
	Intern     EmploymentType = "praktikant"
)

// Worker is an employee as managed by a chef.
type Worker struct {
	ID       *int64 `json:"id,omitempty"`
	LocalKey string `json:"-"`

	Name           string          `json:"name" validate:"required,max=100"`
	Email          string          `json:"email" validate:"required,email"`
	Phone          string          `json:"phone,omitempty" validate:"max=32"`
	Address        string          `json:"address,omitempty" validate:"max=200"`
	HourlyRate     decimal.Decimal `json:"hourly_rate"`
	EmploymentType EmploymentType  `json:"employment_type" validate:"required,oneof=fuld_tid deltid timebaseret freelancer praktikant"`
	Role           Role            `json:"role" validate:"required,oneof=arbejder byggeleder chef system"`
	Status         WorkerStatus    `json:"status" validate:"required,oneof=aktiv inaktiv sygemeldt ferie opsagt"`
	CreatedAt      time.Time       `json:"created_at"`
}

// NewWorker returns an active full-time worker with defaults filled in.
func NewWorker(name, email string, hourlyRate decimal.Decimal) Worker {
	return Worker{
		Name:           name,
		Email:          email,
		HourlyRate:     hourlyRate,
		EmploymentType: FullTime,
		Role:           RoleWorker,
		Status:         WorkerActive,
		CreatedAt:      time.Now().UTC(),
	}
}

// Key returns the worker's local key: the assigned one, or the normalized
// email for workers not yet cached.
func (w Worker) Key() string {
	if w.LocalKey != "" {
		return w.LocalKey
	}
	return strings.ToLower(strings.TrimSpace(w.Email))
}

// IsActive reports whether the worker is currently employed and working.
func (w Worker) IsActive() bool {
	return w.Status == WorkerActive
}

// Validate checks the worker before it is written.
func (w Worker) Validate() error {
	if err := validateStruct(w); err != nil {
		return err
	}
	if w.HourlyRate.IsNegative() {
		return fieldError("hourly_rate", "must not be negative")
	}
	return nil
}
