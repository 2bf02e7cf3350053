package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/entity"
	"github.com/crewsync/crewsync/internal/ui"
)

var workerCmd = &cobra.Command{
	Use:     "worker",
	GroupID: "data",
	Short:   "Manage workers",
}

var workerListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workers (from the API when reachable, else the cache)",
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")
		activeOnly, _ := cmd.Flags().GetBool("active")
		if err := validateOutput(output); err != nil {
			return err
		}

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		var match func(entity.Worker) bool
		if activeOnly {
			match = entity.Worker.IsActive
		}
		workers, err := a.workers.List(ctx, match)
		if err != nil {
			return err
		}

		return writeOutput(cmd.OutOrStdout(), output, workers, func() string {
			rows := make([][]string, 0, len(workers))
			for _, w := range workers {
				rows = append(rows, []string{idString(w.ID), w.Name, w.Email,
					string(w.Role), string(w.Status), w.HourlyRate.StringFixed(2)})
			}
			return ui.Table([]string{"ID", "NAME", "EMAIL", "ROLE", "STATUS", "RATE"}, rows)
		})
	},
}

var workerAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add a worker",
	Long: `Add a worker. The worker is stored locally first and created on the API
when it is reachable; offline additions are queued.

Without --name and --email an interactive form is shown on a terminal.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")
		phone, _ := cmd.Flags().GetString("phone")
		rate, _ := cmd.Flags().GetString("rate")
		role, _ := cmd.Flags().GetString("role")
		employment, _ := cmd.Flags().GetString("employment")

		if (name == "" || email == "") && ui.Interactive() {
			if err := workerForm(&name, &email, &phone, &rate, &role).Run(); err != nil {
				return err
			}
		}
		if name == "" || email == "" {
			return errors.New("--name and --email are required")
		}

		hourly, err := decimal.NewFromString(rate)
		if err != nil {
			return fmt.Errorf("invalid --rate %q: %w", rate, err)
		}
		w := entity.NewWorker(name, strings.ToLower(strings.TrimSpace(email)), hourly)
		w.Phone = phone
		w.Role = entity.Role(role)
		w.EmploymentType = entity.EmploymentType(employment)

		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		created, err := a.workers.Create(ctx, w)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("✓ ")+reportWrite(a, "worker "+created.Key(), created.ID))
		return nil
	},
}

var workerRemoveCmd = &cobra.Command{
	Use:   "remove <email>",
	Short: "Remove a worker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openDefaultApp(ctx, true)
		if err != nil {
			return err
		}
		defer a.Close()

		w, err := a.workers.Get(ctx, strings.ToLower(args[0]))
		if err != nil {
			return fmt.Errorf("worker %s: %w", args[0], err)
		}
		if err := a.workers.Remove(ctx, w); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), ui.RenderSuccess("✓ ")+"worker "+w.Key()+" removed")
		return nil
	},
}

func workerForm(name, email, phone, rate, role *string) *huh.Form {
	return huh.NewForm(
		huh.NewGroup(
			huh.NewInput().Title("Name").Value(name).Validate(required("name")),
			huh.NewInput().Title("Email").Value(email).Validate(required("email")),
			huh.NewInput().Title("Phone").Value(phone),
			huh.NewInput().Title("Hourly rate (DKK)").Value(rate).Validate(func(s string) error {
				_, err := decimal.NewFromString(s)
				return err
			}),
			huh.NewSelect[string]().Title("Role").Value(role).Options(
				huh.NewOption("Arbejder", string(entity.RoleWorker)),
				huh.NewOption("Byggeleder", string(entity.RoleSiteLeader)),
				huh.NewOption("Chef", string(entity.RoleChef)),
			),
		),
	)
}

func required(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", field)
		}
		return nil
	}
}

func idString(id *int64) string {
	if id == nil {
		return "-"
	}
	return fmt.Sprint(*id)
}

func init() {
	workerListCmd.Flags().StringP("output", "o", outputTable, "output format: table, json, yaml")
	workerListCmd.Flags().Bool("active", false, "only active workers")

	workerAddCmd.Flags().String("name", "", "full name")
	workerAddCmd.Flags().String("email", "", "email address (used as the local key)")
	workerAddCmd.Flags().String("phone", "", "phone number")
	workerAddCmd.Flags().String("rate", "0", "hourly rate")
	workerAddCmd.Flags().String("role", string(entity.RoleWorker), "arbejder, byggeleder, chef")
	workerAddCmd.Flags().String("employment", string(entity.FullTime), "fuld_tid, deltid, timebaseret, freelancer, praktikant")

	workerCmd.AddCommand(workerListCmd, workerAddCmd, workerRemoveCmd)
	rootCmd.AddCommand(workerCmd)
}
