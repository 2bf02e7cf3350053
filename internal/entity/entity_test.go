package entity

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorker_Validate(t *testing.T) {
	w := NewWorker("Anna Hansen", "Anna@Example.dk", decimal.RequireFromString("245.50"))
	require.NoError(t, w.Validate())
	assert.Equal(t, "anna@example.dk", w.Key())
	assert.True(t, w.IsActive())

	w.LocalKey = "assigned"
	assert.Equal(t, "assigned", w.Key())

	bad := w
	bad.Email = "not-an-email"
	bad.Role = "boss"
	err := bad.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Len(t, verr.Fields, 2)
	assert.Equal(t, "email", verr.Fields[0].Field)
	assert.Equal(t, "role", verr.Fields[1].Field)
	assert.Contains(t, err.Error(), "must be one of: arbejder byggeleder chef system")

	negative := w
	negative.HourlyRate = decimal.NewFromInt(-1)
	assert.ErrorContains(t, negative.Validate(), "hourly_rate")
}

func TestWorker_JSONOmitsLocalKey(t *testing.T) {
	id := int64(7)
	w := NewWorker("Bo", "bo@example.dk", decimal.NewFromInt(200))
	w.ID = &id
	w.LocalKey = "bo@example.dk"

	data, err := json.Marshal(w)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "LocalKey")
	assert.NotContains(t, string(data), "local_key")

	var back Worker
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Empty(t, back.LocalKey)
	assert.True(t, back.HourlyRate.Equal(decimal.NewFromInt(200)))
	assert.Equal(t, int64(7), *back.ID)
}

func TestWorkEntry_ComputeHours(t *testing.T) {
	start := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)
	end := time.Date(2025, 6, 2, 15, 30, 0, 0, time.UTC)

	e := NewWorkEntry(3, 11, start, end, 30)
	assert.Equal(t, "8", e.Hours.String())
	assert.Equal(t, time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC), e.WorkDate)
	require.NoError(t, e.Validate())

	e = NewWorkEntry(3, 11, start, start.Add(100*time.Minute), 0)
	assert.Equal(t, "1.67", e.Hours.String())
}

func TestWorkEntry_Validate(t *testing.T) {
	start := time.Date(2025, 6, 2, 7, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		entry WorkEntry
		field string
	}{
		{"end before start", NewWorkEntry(3, 0, start, start.Add(-time.Hour), 0), "end_time"},
		{"break longer than day", NewWorkEntry(3, 0, start, start.Add(time.Hour), 90), "break_minutes"},
		{"missing employee", NewWorkEntry(0, 0, start, start.Add(time.Hour), 0), "employee_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.entry.Validate()
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.field, verr.Fields[0].Field)
		})
	}

	tampered := NewWorkEntry(3, 0, start, start.Add(2*time.Hour), 0)
	tampered.Hours = decimal.NewFromInt(10)
	assert.ErrorContains(t, tampered.Validate(), "hours")
}

func TestWorkingDays(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 1, WorkingDays(monday, monday))
	assert.Equal(t, 5, WorkingDays(monday, monday.AddDate(0, 0, 6)))
	assert.Equal(t, 6, WorkingDays(monday, monday.AddDate(0, 0, 7)))
	assert.Equal(t, 0, WorkingDays(monday.AddDate(0, 0, 5), monday.AddDate(0, 0, 6)))
	assert.Equal(t, 0, WorkingDays(monday, monday.AddDate(0, 0, -1)))
}

func TestLeaveRequest_Validate(t *testing.T) {
	monday := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)

	r := NewLeaveRequest(5, LeaveVacation, monday, monday.AddDate(0, 0, 4), "Sommerferie")
	require.NoError(t, r.Validate())
	assert.Equal(t, 5, r.TotalDays)
	assert.True(t, r.IsOpen())
	assert.False(t, r.EmergencyLeave)

	emergency := NewLeaveRequest(5, LeaveEmergency, monday, monday, "")
	assert.True(t, emergency.EmergencyLeave)

	halfDay := r
	halfDay.HalfDay = true
	assert.ErrorContains(t, halfDay.Validate(), "half_day")

	backwards := NewLeaveRequest(5, LeaveSick, monday, monday.AddDate(0, 0, -2), "")
	assert.ErrorContains(t, backwards.Validate(), "end_date")

	unknown := r
	unknown.Type = "HOLIDAY"
	assert.ErrorContains(t, unknown.Validate(), "type")
}

func TestLeaveRequest_Overlaps(t *testing.T) {
	monday := time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
	a := NewLeaveRequest(5, LeaveVacation, monday, monday.AddDate(0, 0, 2), "")
	b := NewLeaveRequest(5, LeavePersonal, monday.AddDate(0, 0, 2), monday.AddDate(0, 0, 3), "")
	c := NewLeaveRequest(5, LeavePersonal, monday.AddDate(0, 0, 3), monday.AddDate(0, 0, 4), "")

	assert.True(t, a.Overlaps(b))
	assert.False(t, a.Overlaps(c))
}

func TestKinds(t *testing.T) {
	wk := WorkerKind()
	w := NewWorker("Carl", "carl@example.dk", decimal.Zero)
	assert.Equal(t, "carl@example.dk", wk.Key(w))
	assert.Nil(t, wk.ID(w))
	wk.SetID(&w, 9)
	require.NotNil(t, wk.ID(w))
	assert.Equal(t, int64(9), *wk.ID(w))

	ek := WorkEntryKind()
	var e WorkEntry
	assert.Empty(t, ek.Key(e))
	ek.SetKey(&e, "abc")
	assert.Equal(t, "abc", e.LocalKey)

	lk := LeaveRequestKind()
	assert.Equal(t, LeaveRequests, lk.Name)
	assert.Equal(t, []string{Workers, WorkEntries, LeaveRequests}, All)
}
