package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// WorkEntryStatus tracks a work entry through approval.
type WorkEntryStatus string

const (
	EntryDraft     WorkEntryStatus = "draft"
	EntrySubmitted WorkEntryStatus = "submitted"
	EntryConfirmed WorkEntryStatus = "confirmed"
	EntryRejected  WorkEntryStatus = "rejected"
)

// WorkEntry is one day of logged hours on a task.
type WorkEntry struct {
	ID       *int64 `json:"id,omitempty"`
	LocalKey string `json:"-"`

	EmployeeID   int64           `json:"employee_id" validate:"gt=0"`
	TaskID       int64           `json:"task_id,omitempty" validate:"gte=0"`
	WorkDate     time.Time       `json:"work_date" validate:"required"`
	StartTime    time.Time       `json:"start_time" validate:"required"`
	EndTime      time.Time       `json:"end_time" validate:"required,gtfield=StartTime"`
	BreakMinutes int             `json:"break_minutes" validate:"gte=0,lte=480"`
	Hours        decimal.Decimal `json:"hours"`
	Notes        string          `json:"notes,omitempty" validate:"max=500"`
	Status       WorkEntryStatus `json:"status" validate:"required,oneof=draft submitted confirmed rejected"`
}

// NewWorkEntry builds a draft entry and computes its hours.
func NewWorkEntry(employeeID, taskID int64, start, end time.Time, breakMinutes int) WorkEntry {
	e := WorkEntry{
		EmployeeID:   employeeID,
		TaskID:       taskID,
		WorkDate:     time.Date(start.Year(), start.Month(), start.Day(), 0, 0, 0, 0, start.Location()),
		StartTime:    start,
		EndTime:      end,
		BreakMinutes: breakMinutes,
		Status:       EntryDraft,
	}
	e.Hours = e.ComputeHours()
	return e
}

// ComputeHours returns the worked hours: end minus start minus the break,
// rounded to two decimals.
func (e WorkEntry) ComputeHours() decimal.Decimal {
	worked := e.EndTime.Sub(e.StartTime) - time.Duration(e.BreakMinutes)*time.Minute
	minutes := decimal.NewFromInt(int64(worked / time.Minute))
	return minutes.Div(decimal.NewFromInt(60)).Round(2)
}

// Validate checks the entry before it is written.
func (e WorkEntry) Validate() error {
	if err := validateStruct(e); err != nil {
		return err
	}
	computed := e.ComputeHours()
	if !computed.IsPositive() {
		return fieldError("break_minutes", "break is longer than the working time")
	}
	if !e.Hours.Equal(computed) {
		return fieldError("hours", "is %s, expected %s", e.Hours, computed)
	}
	return nil
}
