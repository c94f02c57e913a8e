package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spec-kit/complaint-service/internal/app"
	"github.com/spec-kit/complaint-service/internal/config"
	"github.com/spec-kit/complaint-service/internal/domain"
	"github.com/spec-kit/complaint-service/internal/observability"
	"github.com/spec-kit/complaint-service/internal/persistence"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "complaintctl",
		Short:        "Operate the complaint lifecycle service",
		SilenceUsage: true,
	}
	root.AddCommand(newSweepCommand(), newDueDateCommand(), newMigrateCommand())
	return root
}

func newSweepCommand() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "sweep",
		Short: "Run one overdue/escalation sweep pass",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withContainer(cmd.Context(), func(c *app.Container) error {
				if at == "" {
					result, err := c.Sweeper.RunOnce(cmd.Context())
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), result)
				}
				now, err := time.Parse(time.RFC3339, at)
				if err != nil {
					return fmt.Errorf("--now must be RFC3339: %w", err)
				}
				result, err := c.Sweeper.SweepOnce(cmd.Context(), now.UTC())
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result)
			})
		},
	}
	cmd.Flags().StringVar(&at, "now", "", "evaluate as of this RFC3339 instant instead of the current time")
	return cmd
}

func newDueDateCommand() *cobra.Command {
	var (
		priority  string
		createdAt string
	)
	cmd := &cobra.Command{
		Use:   "due-date",
		Short: "Show the deadlines a priority receives under the active SLA policies",
		RunE: func(cmd *cobra.Command, _ []string) error {
			created := time.Now().UTC()
			if createdAt != "" {
				parsed, err := time.Parse(time.RFC3339, createdAt)
				if err != nil {
					return fmt.Errorf("--created-at must be RFC3339: %w", err)
				}
				created = parsed.UTC()
			}
			return withContainer(cmd.Context(), func(c *app.Container) error {
				due, err := c.Complaints.ComputeDueDate(cmd.Context(), domain.ComplaintPriority(priority), created)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"priority":           priority,
					"created_at":         created,
					"due_date":           due.DueDate,
					"response_due":       due.ResponseDue,
					"resolution_minutes": due.Policy.ResolutionMinutes,
					"escalation_minutes": due.Policy.EscalationMinutes,
					"source":             due.Policy.Source,
				})
			})
		},
	}
	cmd.Flags().StringVar(&priority, "priority", string(domain.ComplaintPriorityMedium), "complaint priority")
	cmd.Flags().StringVar(&createdAt, "created-at", "", "creation instant in RFC3339, defaults to now")
	return cmd
}

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck
			if cfg.Postgres.DSN == "" {
				return errors.New("POSTGRES_DSN is required for migrate")
			}
			pg, err := persistence.NewPostgres(cmd.Context(), cfg.Postgres, logger)
			if err != nil {
				return err
			}
			defer pg.Close()
			applied, err := persistence.RunMigrations(cmd.Context(), pg.PoolHandle(), cfg.Postgres.MigrationsDir, logger)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]int{"applied": applied})
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	logger, err := observability.NewLogger(cfg.Logger)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger, nil
}

func withContainer(ctx context.Context, fn func(*app.Container) error) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	container, err := app.Build(ctx, cfg, logger, app.Options{SkipMigrations: true})
	if err != nil {
		return err
	}
	defer container.Close()
	return fn(container)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
