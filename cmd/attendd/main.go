/*
main.go - Application entry point

PURPOSE:
  Initializes and runs the attendance engine. One binary, four commands:

    attendd serve     Run the HTTP API with the background sweep scheduler
    attendd ingest    Ingest a provider batch file from disk
    attendd sweep     Run an auto-checkout sweep once and exit
    attendd backfill  Backfill absences/holidays for a date range and exit

STARTUP SEQUENCE (serve):
  1. Parse command-line flags
  2. Initialize SQLite store
  3. Create API handler with dependencies
  4. Configure HTTP router, start sweep scheduler
  5. Start server with graceful shutdown

GRACEFUL SHUTDOWN:
  On SIGINT/SIGTERM:
  1. Stop accepting new connections
  2. Wait for active requests to complete (30s timeout)
  3. Stop the scheduler, close database connection
  4. Exit

EXAMPLES:
  # Run with file database
  ./attendd serve --db=./data/attendance.db

  # Ingest a batch exported from the provider
  ./attendd ingest --db=./data/attendance.db records.json

  # Close yesterday's forgotten checkouts at 18:00 instead of 17:00
  ./attendd sweep --db=./data/attendance.db --date=2026-08-29 --default-checkout=18:00

  # Backfill absences for August
  ./attendd backfill --db=./data/attendance.db --from=2026-08-01 --to=2026-08-31

SEE ALSO:
  - api/server.go: Router configuration
  - api/handlers.go: HTTP handlers
  - store/sqlite/sqlite.go: Database implementation
*/
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/warp/attendance-engine/api"
	"github.com/warp/attendance-engine/engine"
	"github.com/warp/attendance-engine/provider"
	"github.com/warp/attendance-engine/store/sqlite"
)

// rootFlags are shared by every command.
type rootFlags struct {
	dbPath string

	workdayStart    string
	graceMinutes    int
	defaultCheckout string
	minScore        float64
	autoAccept      float64
}

func main() {
	var flags rootFlags

	root := &cobra.Command{
		Use:   "attendd",
		Short: "Employee attendance reconciliation engine",
		Long:  "attendd ingests raw time-clock records, derives per-day attendance entries, and runs the auto-checkout and absence backfill batch jobs.",
	}
	pf := root.PersistentFlags()
	pf.StringVar(&flags.dbPath, "db", "attendance.db", "SQLite database path (\":memory:\" for in-memory)")
	pf.StringVar(&flags.workdayStart, "workday-start", "10:30", "Nominal workday start, HH:MM")
	pf.IntVar(&flags.graceMinutes, "grace-minutes", 15, "Late-arrival grace period in minutes")
	pf.StringVar(&flags.defaultCheckout, "default-checkout", "17:00", "Checkout time stamped by the sweep, HH:MM")
	pf.Float64Var(&flags.minScore, "min-score", 0.3, "Minimum identity match score to propose a mapping")
	pf.Float64Var(&flags.autoAccept, "auto-accept", 0.85, "Identity match score accepted without review")

	root.AddCommand(serveCmd(&flags))
	root.AddCommand(ingestCmd(&flags))
	root.AddCommand(sweepCmd(&flags))
	root.AddCommand(backfillCmd(&flags))

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// buildConfig turns flag values into the engine policy knobs.
func buildConfig(flags *rootFlags) (api.Config, error) {
	cfg := api.DefaultConfig()

	start, err := engine.ParseTimeOfDay(flags.workdayStart)
	if err != nil {
		return cfg, fmt.Errorf("invalid --workday-start: %w", err)
	}
	checkout, err := engine.ParseTimeOfDay(flags.defaultCheckout)
	if err != nil {
		return cfg, fmt.Errorf("invalid --default-checkout: %w", err)
	}
	if flags.graceMinutes < 0 {
		return cfg, fmt.Errorf("--grace-minutes must be >= 0, got %d", flags.graceMinutes)
	}

	cfg.LatePolicy = engine.LatePolicy{WorkdayStart: start, GraceMinutes: flags.graceMinutes}
	cfg.Sweep = engine.SweepConfig{DefaultCheckout: checkout}
	cfg.Identity.MinScore = decimal.NewFromFloat(flags.minScore)
	cfg.Identity.AutoAccept = decimal.NewFromFloat(flags.autoAccept)
	return cfg, nil
}

// openHandler opens the store and wires the handler; callers own store.Close.
func openHandler(flags *rootFlags) (*api.Handler, *sqlite.Store, error) {
	cfg, err := buildConfig(flags)
	if err != nil {
		return nil, nil, err
	}
	store, err := sqlite.New(flags.dbPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return api.NewHandler(store, cfg), store, nil
}

// =============================================================================
// SERVE
// =============================================================================

func serveCmd(flags *rootFlags) *cobra.Command {
	var (
		port              int
		schedulerInterval time.Duration
		schedulerEnabled  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the background auto-checkout scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, store, err := openHandler(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			scheduler := api.NewSweepScheduler(handler)
			scheduler.CheckInterval = schedulerInterval
			scheduler.Enabled = schedulerEnabled
			scheduler.Start()
			defer scheduler.Stop()

			router := api.NewRouter(handler)
			server := &http.Server{
				Addr:         fmt.Sprintf(":%d", port),
				Handler:      router,
				ReadTimeout:  15 * time.Second,
				WriteTimeout: 15 * time.Second,
				IdleTimeout:  60 * time.Second,
			}

			go func() {
				log.Printf("Server starting on http://localhost:%d", port)
				log.Printf("API available at http://localhost:%d/api", port)
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("Server failed: %v", err)
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit

			log.Println("Shutting down server...")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			if err := server.Shutdown(ctx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}

			log.Println("Server stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&port, "port", 8080, "HTTP server port")
	cmd.Flags().DurationVar(&schedulerInterval, "scheduler-interval", 15*time.Minute, "How often the sweep scheduler checks for open entries")
	cmd.Flags().BoolVar(&schedulerEnabled, "scheduler", true, "Run the background sweep scheduler")
	return cmd
}

// =============================================================================
// INGEST
// =============================================================================

func ingestCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <batch-file>",
		Short: "Ingest a JSON batch of provider records from disk",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, store, err := openHandler(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read batch file: %w", err)
			}
			records, err := provider.ParseBatch(data)
			if err != nil {
				return err
			}

			report, err := handler.Ingestor.Ingest(cmd.Context(), records)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}
}

// =============================================================================
// SWEEP
// =============================================================================

func sweepCmd(flags *rootFlags) *cobra.Command {
	var (
		date   string
		dryRun bool
	)

	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Close open entries with the default checkout time",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, store, err := openHandler(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			scope := engine.SweepToday()
			if date != "" {
				d, err := engine.ParseDate(date)
				if err != nil {
					return fmt.Errorf("invalid --date: %w", err)
				}
				scope = engine.SweepDate(d)
			}

			if dryRun {
				entries, err := handler.Sweeper.Preview(cmd.Context(), scope)
				if err != nil {
					return err
				}
				printPreview(entries)
				return nil
			}

			report, err := handler.Sweeper.Sweep(cmd.Context(), scope)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&date, "date", "", "Day to sweep, YYYY-MM-DD (default: today)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be swept without writing")
	return cmd
}

// =============================================================================
// BACKFILL
// =============================================================================

func backfillCmd(flags *rootFlags) *cobra.Command {
	var (
		from    string
		to      string
		userIDs []string
		dryRun  bool
	)

	cmd := &cobra.Command{
		Use:   "backfill",
		Short: "Mark missing days as absent or holiday over a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			handler, store, err := openHandler(flags)
			if err != nil {
				return err
			}
			defer store.Close()

			fromDate, err := engine.ParseDate(from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			toDate, err := engine.ParseDate(to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}
			scope := engine.BackfillScope{From: fromDate, To: toDate, UserIDs: userIDs}

			if dryRun {
				entries, err := handler.Backfiller.Preview(cmd.Context(), scope)
				if err != nil {
					return err
				}
				printPreview(entries)
				return nil
			}

			report, err := handler.Backfiller.Backfill(cmd.Context(), scope)
			if err != nil {
				return err
			}
			printReport(report)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date, YYYY-MM-DD (required)")
	cmd.Flags().StringVar(&to, "to", "", "End date inclusive, YYYY-MM-DD (required)")
	cmd.Flags().StringSliceVar(&userIDs, "user", nil, "Restrict to these user IDs (may be repeated)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "List what would be written without writing")
	cmd.MarkFlagRequired("from")
	cmd.MarkFlagRequired("to")
	return cmd
}

// =============================================================================
// OUTPUT
// =============================================================================

func printReport(r *engine.OperationReport) {
	fmt.Printf("%s %s: %d attempted, %d succeeded, %d failed\n",
		r.Kind, r.Scope, r.Attempted, r.Succeeded, r.Failed)
	for _, e := range r.Errors {
		fmt.Printf("  %s\n", e)
	}
}

func printPreview(entries []engine.DayEntry) {
	fmt.Printf("%d entries would be touched\n", len(entries))
	for _, e := range entries {
		v := e.View()
		fmt.Printf("  %s %s: %s\n", v.UserID, v.Date, v.Status)
	}
}
