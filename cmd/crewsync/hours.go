package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/entity"
	"github.com/crewsync/crewsync/internal/ui"
)

var hoursCmd = &cobra.Command{
	Use:     "hours",
	GroupID: "data",
	Short:   "Log and list work hours",
}

var hoursListCmd = &cobra.Command{
	Use:   "list",
	Short: "List work entries",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		employee, _ := cmd.Flags().GetInt64("employee")
		since, _ := cmd.Flags().GetString("since")
		if err := validateOutput(output); err != nil {
			return err
		}

		var from time.Time
		if since != "" {
			t, err := parseDate(since, time.Now())
			if err != nil {
				return err
			}
			from = t
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		entries, err := a.entries.List(ctx, func(e entity.WorkEntry) bool {
			if employee > 0 && e.EmployeeID != employee {
				return false
			}
			return from.IsZero() || !e.WorkDate.Before(from)
		})
		if err != nil {
			return err
		}

		return writeOutput(cmd.OutOrStdout(), output, entries, func() string {
			total := decimal.Zero
			rows := make([][]string, 0, len(entries)+1)
			for _, e := range entries {
				total = total.Add(e.Hours)
				rows = append(rows, []string{
					idString(e.ID),
					fmt.Sprint(e.EmployeeID),
					e.WorkDate.Format("2006-01-02"),
					e.StartTime.Format("15:04") + "-" + e.EndTime.Format("15:04"),
					fmt.Sprint(e.BreakMinutes),
					e.Hours.StringFixed(2),
					string(e.Status),
				})
			}
			rows = append(rows, []string{"", "", "", "", "total", total.StringFixed(2), ""})
			return ui.Table([]string{"ID", "EMPLOYEE", "DATE", "TIME", "BREAK", "HOURS", "STATUS"}, rows)
		})
	},
}

var hoursLogCmd = &cobra.Command{
	Use:   "log",
	Short: "Log hours worked",
	Example: `  crewsync hours log --employee 3 --start 07:00 --end 15:30 --break 30
  crewsync hours log --employee 3 --date yesterday --start 06:30 --end 14:00`,
	RunE: func(cmd *cobra.Command, args []string) error {
		employee, _ := cmd.Flags().GetInt64("employee")
		task, _ := cmd.Flags().GetInt64("task")
		date, _ := cmd.Flags().GetString("date")
		start, _ := cmd.Flags().GetString("start")
		end, _ := cmd.Flags().GetString("end")
		breakMinutes, _ := cmd.Flags().GetInt("break")
		notes, _ := cmd.Flags().GetString("notes")
		submit, _ := cmd.Flags().GetBool("submit")

		if employee <= 0 {
			return errors.New("--employee is required")
		}
		entry, err := buildWorkEntry(time.Now(), employee, task, date, start, end, breakMinutes)
		if err != nil {
			return err
		}
		entry.Notes = notes
		if submit {
			entry.Status = entity.EntrySubmitted
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.entries.Create(ctx, entry)
		if err != nil {
			return err
		}
		what := fmt.Sprintf("%s hours on %s", created.Hours.StringFixed(2), created.WorkDate.Format("2006-01-02"))
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("✓ ")+reportWrite(a, what, created.ID))
		return nil
	},
}

func buildWorkEntry(now time.Time, employee, task int64, date, start, end string, breakMinutes int) (entity.WorkEntry, error) {
	day, err := parseDate(date, now)
	if err != nil {
		return entity.WorkEntry{}, err
	}
	from, err := parseClock(day, start)
	if err != nil {
		return entity.WorkEntry{}, err
	}
	to, err := parseClock(day, end)
	if err != nil {
		return entity.WorkEntry{}, err
	}
	e := entity.NewWorkEntry(employee, task, from, to, breakMinutes)
	if err := e.Validate(); err != nil {
		return e, err
	}
	return e, nil
}

func init() {
	hoursListCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	hoursListCmd.Flags().Int64("employee", 0, "only entries of this employee id")
	hoursListCmd.Flags().String("since", "", `only entries on or after this date ("monday", "2025-06-01")`)

	hoursLogCmd.Flags().Int64("employee", 0, "employee id")
	hoursLogCmd.Flags().Int64("task", 0, "task id")
	hoursLogCmd.Flags().String("date", "today", `work date ("today", "yesterday", "2025-06-02")`)
	hoursLogCmd.Flags().String("start", "07:00", "start time HH:MM")
	hoursLogCmd.Flags().String("end", "15:00", "end time HH:MM")
	hoursLogCmd.Flags().Int("break", 30, "break in minutes")
	hoursLogCmd.Flags().String("notes", "", "notes")
	hoursLogCmd.Flags().Bool("submit", false, "submit for approval instead of saving a draft")

	hoursCmd.AddCommand(hoursListCmd, hoursLogCmd)
	rootCmd.AddCommand(hoursCmd)
}
