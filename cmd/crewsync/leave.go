package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/entity"
	"github.com/crewsync/crewsync/internal/ui"
)

var leaveCmd = &cobra.Command{
	Use:     "leave",
	GroupID: "data",
	Short:   "Request and list leave",
}

var leaveListCmd = &cobra.Command{
	Use:   "list",
	Short: "List leave requests",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		employee, _ := cmd.Flags().GetInt64("employee")
		openOnly, _ := cmd.Flags().GetBool("open")
		if err := validateOutput(output); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		leaves, err := a.leaves.List(ctx, func(r entity.LeaveRequest) bool {
			if employee > 0 && r.EmployeeID != employee {
				return false
			}
			return !openOnly || r.IsOpen()
		})
		if err != nil {
			return err
		}

		return writeOutput(cmd.OutOrStdout(), output, leaves, func() string {
			rows := make([][]string, 0, len(leaves))
			for _, r := range leaves {
				rows = append(rows, []string{
					idString(r.ID),
					r.LocalKey,
					fmt.Sprint(r.EmployeeID),
					string(r.Type),
					r.StartDate.Format("2006-01-02") + " → " + r.EndDate.Format("2006-01-02"),
					fmt.Sprint(r.TotalDays),
					string(r.Status),
				})
			}
			return ui.Table([]string{"ID", "KEY", "EMPLOYEE", "TYPE", "PERIOD", "DAYS", "STATUS"}, rows)
		})
	},
}

var leaveRequestCmd = &cobra.Command{
	Use:   "request",
	Short: "Request leave",
	Example: `  crewsync leave request --employee 5 --type VACATION --from "next monday" --to "next friday"
  crewsync leave request --employee 5 --type SICK --from today --half-day`,
	RunE: func(cmd *cobra.Command, args []string) error {
		employee, _ := cmd.Flags().GetInt64("employee")
		typ, _ := cmd.Flags().GetString("type")
		from, _ := cmd.Flags().GetString("from")
		to, _ := cmd.Flags().GetString("to")
		reason, _ := cmd.Flags().GetString("reason")
		halfDay, _ := cmd.Flags().GetBool("half-day")

		if typ == "" && ui.Interactive() {
			if err := leaveForm(&typ, &from, &to, &reason).Run(); err != nil {
				return err
			}
		}
		if employee <= 0 {
			return errors.New("--employee is required")
		}
		if typ == "" {
			return errors.New("--type is required")
		}

		req, err := buildLeaveRequest(time.Now(), employee, typ, from, to, reason, halfDay)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		existing, err := a.leaves.List(ctx, func(r entity.LeaveRequest) bool {
			return r.EmployeeID == employee && r.IsOpen() && r.Overlaps(req)
		})
		if err != nil {
			return err
		}
		if len(existing) > 0 {
			return fmt.Errorf("overlaps open leave request %s", existing[0].LocalKey)
		}

		created, err := a.leaves.Create(ctx, req)
		if err != nil {
			return err
		}
		what := fmt.Sprintf("%s leave for %d day(s)", strings.ToLower(string(created.Type)), created.TotalDays)
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("✓ ")+reportWrite(a, what, created.ID))
		return nil
	},
}

var leaveCancelCmd = &cobra.Command{
	Use:   "cancel <key>",
	Short: "Cancel a leave request",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		r, err := a.leaves.Get(ctx, args[0])
		if err != nil {
			return fmt.Errorf("leave request %s: %w", args[0], err)
		}
		if !r.IsOpen() {
			return fmt.Errorf("leave request %s is %s", args[0], r.Status)
		}
		r.Status = entity.LeaveCancelled
		if _, err := a.leaves.Update(ctx, r); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("✓ ")+"leave request "+args[0]+" cancelled")
		return nil
	},
}

func buildLeaveRequest(now time.Time, employee int64, typ, from, to, reason string, halfDay bool) (entity.LeaveRequest, error) {
	start, err := parseDate(from, now)
	if err != nil {
		return entity.LeaveRequest{}, err
	}
	end := start
	if to != "" {
		if end, err = parseDate(to, start); err != nil {
			return entity.LeaveRequest{}, err
		}
	}
	r := entity.NewLeaveRequest(employee, entity.LeaveType(strings.ToUpper(typ)), start, end, reason)
	r.HalfDay = halfDay
	if err := r.Validate(); err != nil {
		return r, err
	}
	return r, nil
}

func leaveForm(typ, from, to, reason *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().Title("Type").Value(typ).Options(
				huh.NewOption("Ferie", string(entity.LeaveVacation)),
				huh.NewOption("Sygdom", string(entity.LeaveSick)),
				huh.NewOption("Personlig", string(entity.LeavePersonal)),
				huh.NewOption("Barsel", string(entity.LeaveParental)),
				huh.NewOption("Afspadsering", string(entity.LeaveCompensatory)),
				huh.NewOption("Akut", string(entity.LeaveEmergency)),
			),
			huh.NewInput().Title("From").Placeholder("next monday").Value(from).Validate(required("from")),
			huh.NewInput().Title("To").Placeholder("same day").Value(to),
			huh.NewText().Title("Reason").Value(reason),
		),
	)
}

func init() {
	leaveListCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	leaveListCmd.Flags().Int64("employee", 0, "only requests of this employee id")
	leaveListCmd.Flags().Bool("open", false, "only pending or approved requests")

	leaveRequestCmd.Flags().Int64("employee", 0, "employee id")
	leaveRequestCmd.Flags().String("type", "", "VACATION, SICK, PERSONAL, PARENTAL, COMPENSATORY, EMERGENCY")
	leaveRequestCmd.Flags().String("from", "today", "first day of leave")
	leaveRequestCmd.Flags().String("to", "", "last day of leave (default: same as --from)")
	leaveRequestCmd.Flags().String("reason", "", "reason")
	leaveRequestCmd.Flags().Bool("half-day", false, "half day (single-day requests only)")

	leaveCmd.AddCommand(leaveListCmd, leaveRequestCmd, leaveCancelCmd)
	rootCmd.AddCommand(leaveCmd)
}
