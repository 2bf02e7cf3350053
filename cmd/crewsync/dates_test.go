package main

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/entity"
)

// Monday.
var base = time.Date(2025, 6, 2, 14, 30, 0, 0, time.UTC)

func TestParseDate(t *testing.T) {
	tests := []struct {
		in   string
		want time.Time
	}{
		{"2025-06-20", time.Date(2025, 6, 20, 0, 0, 0, 0, time.UTC)},
		{"today", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{" Now ", time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)},
		{"tomorrow", time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC)},
		{"yesterday", time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDate(tt.in, base)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}

	_, err := parseDate("", base)
	assert.Error(t, err)
	_, err = parseDate("whenever suits", base)
	assert.Error(t, err)
}

func TestParseClock(t *testing.T) {
	got, err := parseClock(base, "07:45")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 6, 2, 7, 45, 0, 0, time.UTC), got)

	for _, bad := range []string{"7pm", "25:00", ""} {
		_, err := parseClock(base, bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildWorkEntry(t *testing.T) {
	e, err := buildWorkEntry(base, 3, 11, "2025-06-03", "07:00", "15:30", 30)
	require.NoError(t, err)
	assert.Equal(t, int64(3), e.EmployeeID)
	assert.Equal(t, time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC), e.WorkDate)
	assert.True(t, decimal.NewFromInt(8).Equal(e.Hours), "hours %s", e.Hours)
	assert.Equal(t, entity.EntryDraft, e.Status)

	_, err = buildWorkEntry(base, 3, 0, "today", "15:00", "07:00", 0)
	assert.Error(t, err, "end before start")

	_, err = buildWorkEntry(base, 3, 0, "today", "07:00", "8 o'clock", 0)
	assert.Error(t, err)
}

func TestBuildLeaveRequest(t *testing.T) {
	r, err := buildLeaveRequest(base, 5, "vacation", "2025-06-02", "2025-06-08", "summer", false)
	require.NoError(t, err)
	assert.Equal(t, entity.LeaveVacation, r.Type)
	assert.Equal(t, 5, r.TotalDays)
	assert.Equal(t, entity.LeavePending, r.Status)

	single, err := buildLeaveRequest(base, 5, "SICK", "today", "", "", true)
	require.NoError(t, err)
	assert.True(t, single.StartDate.Equal(single.EndDate))
	assert.True(t, single.HalfDay)

	_, err = buildLeaveRequest(base, 5, "VACATION", "2025-06-02", "2025-06-03", "", true)
	assert.Error(t, err, "half day spanning two days")

	_, err = buildLeaveRequest(base, 5, "SABBATICAL", "today", "", "", false)
	assert.Error(t, err)
}
