package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/crewsync/crewsync/internal/mockapi"
)

var mockAPICmd = &cobra.Command{
	Use:     "mock-api",
	GroupID: "setup",
	Short:   "Run an in-memory fake of the crew management API",
	Long: `Serve an in-memory fake of the API for local development and demos.

Endpoints:
  GET    /health
  GET    /api/{workers,work-entries,leave-requests}
  POST   /api/{workers,work-entries,leave-requests}
  PUT    /api/{workers,work-entries,leave-requests}/:id
  DELETE /api/{workers,work-entries,leave-requests}/:id

Data is lost when the process exits.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		token, _ := cmd.Flags().GetString("token")
		seed, _ := cmd.Flags().GetBool("seed")
		if addr == "" {
			addr = cfg.MockAPI.Addr
		}

		var opts []mockapi.Option
		if token != "" {
			opts = append(opts, mockapi.WithToken(token))
		}
		srv := mockapi.New(log, opts...)
		if seed {
			seedMockAPI(srv)
		}

		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		fmt.Fprintf(cmd.OutOrStdout(), "Mock API on http://%s\nPress Ctrl+C to stop...\n", addr)
		return srv.ListenAndServe(ctx, addr)
	},
}

func seedMockAPI(srv *mockapi.Server) {
	srv.Seed(mockapi.Workers, map[string]any{
		"name": "Mette Hansen", "email": "mette@example.dk", "hourly_rate": "285.00",
		"employment_type": "fuld_tid", "role": "byggeleder", "status": "aktiv",
	})
	srv.Seed(mockapi.Workers, map[string]any{
		"name": "Jonas Berg", "email": "jonas@example.dk", "hourly_rate": "240.00",
		"employment_type": "timebaseret", "role": "arbejder", "status": "aktiv",
	})
	srv.Seed(mockapi.WorkEntries, map[string]any{
		"employee_id": 2, "task_id": 11, "work_date": "2025-06-02T00:00:00Z",
		"start_time": "2025-06-02T07:00:00Z", "end_time": "2025-06-02T15:30:00Z",
		"break_minutes": 30, "hours": "8", "status": "confirmed",
	})
	srv.Seed(mockapi.LeaveRequests, map[string]any{
		"employee_id": 2, "type": "VACATION", "start_date": "2025-07-07T00:00:00Z",
		"end_date": "2025-07-11T00:00:00Z", "total_days": 5, "half_day": false,
		"status": "APPROVED", "emergency_leave": false,
	})
}

func init() {
	mockAPICmd.Flags().String("addr", "", "listen address (default from config, 127.0.0.1:8081)")
	mockAPICmd.Flags().String("token", "", "require this bearer token on /api requests")
	mockAPICmd.Flags().Bool("seed", false, "start with a few sample records")
	rootCmd.AddCommand(mockAPICmd)
}
