package entity

import (
	"time"
)

// LeaveType is the reason category of a leave request.
type LeaveType string

const (
	LeaveVacation     LeaveType = "VACATION"
	LeaveSick         LeaveType = "SICK"
	LeavePersonal     LeaveType = "PERSONAL"
	LeaveParental     LeaveType = "PARENTAL"
	LeaveCompensatory LeaveType = "COMPENSATORY"
	LeaveEmergency    LeaveType = "EMERGENCY"
)

// LeaveStatus tracks a leave request through approval.
type LeaveStatus string

const (
	LeavePending   LeaveStatus = "PENDING"
	LeaveApproved  LeaveStatus = "APPROVED"
	LeaveRejected  LeaveStatus = "REJECTED"
	LeaveCancelled LeaveStatus = "CANCELLED"
	LeaveExpired   LeaveStatus = "EXPIRED"
)

// LeaveRequest is a worker's request for time off.
type LeaveRequest struct {
	ID       *int64 `json:"id,omitempty"`
	LocalKey string `json:"-"`

	EmployeeID     int64       `json:"employee_id" validate:"gt=0"`
	Type           LeaveType   `json:"type" validate:"required,oneof=VACATION SICK PERSONAL PARENTAL COMPENSATORY EMERGENCY"`
	StartDate      time.Time   `json:"start_date" validate:"required"`
	EndDate        time.Time   `json:"end_date" validate:"required,gtefield=StartDate"`
	TotalDays      int         `json:"total_days"`
	HalfDay        bool        `json:"half_day"`
	Status         LeaveStatus `json:"status" validate:"required,oneof=PENDING APPROVED REJECTED CANCELLED EXPIRED"`
	Reason         string      `json:"reason,omitempty" validate:"max=500"`
	EmergencyLeave bool        `json:"emergency_leave"`
}

// NewLeaveRequest builds a pending request covering start through end.
func NewLeaveRequest(employeeID int64, typ LeaveType, start, end time.Time, reason string) LeaveRequest {
	return LeaveRequest{
		EmployeeID:     employeeID,
		Type:           typ,
		StartDate:      truncateDay(start),
		EndDate:        truncateDay(end),
		TotalDays:      WorkingDays(start, end),
		Status:         LeavePending,
		Reason:         reason,
		EmergencyLeave: typ == LeaveEmergency,
	}
}

// WorkingDays counts the weekdays from start through end, inclusive.
func WorkingDays(start, end time.Time) int {
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return 0
	}
	days := 0
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		if wd := d.Weekday(); wd != time.Saturday && wd != time.Sunday {
			days++
		}
	}
	return days
}

// Overlaps reports whether r and other cover at least one common day.
func (r LeaveRequest) Overlaps(other LeaveRequest) bool {
	return !r.EndDate.Before(other.StartDate) && !other.EndDate.Before(r.StartDate)
}

// IsOpen reports whether the request still awaits or holds approval.
func (r LeaveRequest) IsOpen() bool {
	return r.Status == LeavePending || r.Status == LeaveApproved
}

// Validate checks the request before it is written.
func (r LeaveRequest) Validate() error {
	if err := validateStruct(r); err != nil {
		return err
	}
	if r.HalfDay && !truncateDay(r.StartDate).Equal(truncateDay(r.EndDate)) {
		return fieldError("half_day", "only allowed for single-day requests")
	}
	if r.TotalDays != WorkingDays(r.StartDate, r.EndDate) {
		return fieldError("total_days", "is %d, expected %d", r.TotalDays, WorkingDays(r.StartDate, r.EndDate))
	}
	return nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
