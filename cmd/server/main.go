package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jimdaga/givethnotes/internal/auth"
	"github.com/jimdaga/givethnotes/internal/clock"
	"github.com/jimdaga/givethnotes/internal/config"
	"github.com/jimdaga/givethnotes/internal/database"
	"github.com/jimdaga/givethnotes/internal/jobstate"
	"github.com/jimdaga/givethnotes/internal/provisioning"
	"github.com/jimdaga/givethnotes/internal/server"
	"github.com/jimdaga/givethnotes/internal/worker"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "givethnotes",
		Short:         "GivethNotes career journal API",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configFile != "" {
				return os.Setenv("CONFIG_FILE", configFile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (overrides CONFIG_FILE)")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newProvisionCmd(),
		newReconcileCmd(),
		newStatusCmd(),
		newTokenCmd(),
	)
	return root
}

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API, plus the worker and scheduler when Redis is configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			verifier, err := auth.NewVerifier(a.cfg.JWTSecret)
			if err != nil {
				return err
			}

			deps := server.Deps{
				Config:      a.cfg,
				Logger:      a.logger,
				DB:          a.db,
				Metrics:     a.metrics,
				Verifier:    verifier,
				Users:       a.users,
				Journal:     a.journal,
				Blocks:      a.blocks,
				CareerPaths: a.careerPaths,
				Provisioner: a.engine,
			}
			if a.cfg.ProvisionOnRequest == config.ProvisionEnqueue {
				enqueuer, err := worker.NewEnqueuer(a.cfg.RedisURL)
				if err != nil {
					return err
				}
				defer enqueuer.Close()
				deps.Enqueuer = enqueuer
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			g, ctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return server.ListenAndServe(ctx, ":"+a.cfg.Port, server.NewRouter(deps), a.logger)
			})

			if a.cfg.RedisURL != "" {
				stopWorker, err := worker.Start(a.cfg, a.logger, a.engine, a.blocks)
				if err != nil {
					return err
				}
				stopScheduler, err := worker.StartScheduler(a.cfg, a.logger)
				if err != nil {
					stopWorker()
					return err
				}
				g.Go(func() error {
					<-ctx.Done()
					stopScheduler()
					stopWorker()
					return nil
				})
			} else {
				a.logger.Info("REDIS_URL not set, background worker and scheduler disabled")
			}

			if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}
}

func newWorkerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "worker",
		Short: "Run the background worker and periodic scheduler",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			if a.cfg.RedisURL == "" {
				return errors.New("REDIS_URL is required for worker mode")
			}

			stopScheduler, err := worker.StartScheduler(a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer stopScheduler()

			return worker.Run(a.cfg, a.logger, a.engine, a.blocks)
		},
	}
}

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			slogger := worker.NewLogger(cfg.LogLevel, cfg.LogFormat)

			db, err := database.Init(cfg.DatabaseURL)
			if err != nil {
				return err
			}
			defer database.Close(db)

			if err := database.RunMigrations(db); err != nil {
				return err
			}
			slogger.Info("Migrations applied")
			return nil
		},
	}
}

func newProvisionCmd() *cobra.Command {
	var date string

	cmd := &cobra.Command{
		Use:   "provision",
		Short: "Run daily journal entry provisioning once",
		Long: `Run daily journal entry provisioning once.

Without --date the run for today goes through the job marker like the
scheduled task does. With --date a missed past day is filled in; the job
marker is left alone. Days after today are rejected.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			var res provisioning.Result
			if date == "" {
				res, err = a.engine.RunIfNeeded(cmd.Context())
			} else {
				day, perr := clock.ParseDay(date)
				if perr != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", perr)
				}
				if time.Time(day).Equal(time.Time(a.cal.Today())) {
					res, err = a.engine.RunIfNeeded(cmd.Context())
				} else {
					res, err = a.engine.ProvisionDay(cmd.Context(), day)
				}
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if res.Skipped {
				fmt.Fprintf(out, "%s: already provisioned (run %s)\n", clock.FormatDay(res.Day), res.RunID)
				return nil
			}
			fmt.Fprintf(out, "%s: created %d entries, backfilled %d (run %s)\n",
				clock.FormatDay(res.Day), res.Created, res.Backfilled, res.RunID)
			return nil
		},
	}
	cmd.Flags().StringVar(&date, "date", "", "fill in this past day (YYYY-MM-DD) without touching the job marker")
	return cmd
}

func newReconcileCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Repair non-contiguous block positions",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			res, err := a.blocks.Reconcile(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "checked %d entries, repaired %d %v\n", res.Checked, len(res.Repaired), res.Repaired)
			return nil
		},
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show when daily provisioning last ran",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := loadApp()
			if err != nil {
				return err
			}
			defer a.close()

			day, ok, err := a.jobs.GetLastRun(cmd.Context(), provisioning.JobDailyJournalEntries)
			if err != nil {
				return err
			}
			due, err := a.engine.Due(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s (due: %t)\n", provisioning.JobDailyJournalEntries, jobstate.Describe(day, ok), due)
			return nil
		},
	}
}

func newTokenCmd() *cobra.Command {
	var (
		subject string
		email   string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a development bearer token signed with JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.IsProduction() {
				return errors.New("token command is disabled in production")
			}

			verifier, err := auth.NewVerifier(cfg.JWTSecret)
			if err != nil {
				return err
			}
			token, err := verifier.Issue(subject, email, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "sub", database.DevUserExternalID, "token subject (external user id)")
	cmd.Flags().StringVar(&email, "email", "dev@givethnotes.local", "email claim")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}
