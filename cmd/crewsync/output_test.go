package main

import (
	"bytes"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewsync/crewsync/internal/entity"
)

func TestValidateOutput(t *testing.T) {
	for _, ok := range []string{"table", "json", "yaml"} {
		assert.NoError(t, validateOutput(ok))
	}
	assert.Error(t, validateOutput("csv"))
}

func TestWriteOutput(t *testing.T) {
	v := []struct {
		Name string          `json:"name"`
		Rate decimal.Decimal `json:"rate"`
	}{{Name: "Ann", Rate: decimal.RequireFromString("250.5")}}

	var buf bytes.Buffer
	require.NoError(t, writeOutput(&buf, outputJSON, v, nil))
	assert.JSONEq(t, `[{"name":"Ann","rate":"250.5"}]`, buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, outputYAML, v, nil))
	assert.Equal(t, "- name: Ann\n  rate: \"250.5\"\n", buf.String())

	buf.Reset()
	require.NoError(t, writeOutput(&buf, outputTable, v, func() string { return "TABLE" }))
	assert.Equal(t, "TABLE\n", buf.String())
}

func TestNormalizeEntity(t *testing.T) {
	tests := map[string]string{
		"worker":         entity.Workers,
		"hours":          entity.WorkEntries,
		"work-entries":   entity.WorkEntries,
		"leave":          entity.LeaveRequests,
		"leave_requests": entity.LeaveRequests,
		"tasks":          "tasks",
	}
	for in, want := range tests {
		assert.Equal(t, want, normalizeEntity(in), in)
	}
}
