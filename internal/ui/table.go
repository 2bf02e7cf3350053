package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/crewsync/crewsync/internal/store"
)

// Table renders rows under headers with a rounded border.
func Table(headers []string, rows [][]string) string {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(mutedStyle).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	return t.String()
}

// PendingTable renders cached records awaiting submission.
func PendingTable(recs []store.Record) string {
	if len(recs) == 0 {
		return RenderMuted("no pending changes")
	}
	rows := make([][]string, 0, len(recs))
	for _, rec := range recs {
		server := "-"
		if rec.ServerID != nil {
			server = fmt.Sprintf("%d", *rec.ServerID)
		}
		var op string
		switch {
		case rec.Deleted:
			op = "delete"
		case rec.ServerID == nil:
			op = "create"
		default:
			op = "update"
		}
		rows = append(rows, []string{
			rec.Entity,
			rec.LocalKey,
			server,
			op,
			StateBadge(rec.SyncState),
			fmt.Sprintf("%d", rec.RetryCount),
			truncate(rec.SyncError, 40),
			rec.LastModifiedAt.Local().Format("2006-01-02 15:04"),
		})
	}
	return Table([]string{"ENTITY", "KEY", "SERVER ID", "OP", "STATE", "RETRIES", "LAST ERROR", "MODIFIED"}, rows)
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len([]rune(s)) <= n {
		return s
	}
	return string([]rune(s)[:n-1]) + "…"
}
