package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/iho/numledger/internal/domain"
	"github.com/iho/numledger/internal/infrastructure/config"
	"github.com/iho/numledger/internal/infrastructure/postgres"
	"github.com/iho/numledger/internal/infrastructure/worker"
	"github.com/iho/numledger/internal/usecase"
)

// errDrift makes the process exit non-zero after a failed integrity check.
var errDrift = errors.New("integrity check failed")

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Database schema migrations",
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if err := postgres.RunMigrations(cfg.DatabaseURL); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
				return nil
			},
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the latest migration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				if err := postgres.RunMigrationsDown(cfg.DatabaseURL); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "rolled back one migration")
				return nil
			},
		},
		&cobra.Command{
			Use:   "version",
			Short: "Print the current schema version",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load()
				if err != nil {
					return err
				}
				version, dirty, err := postgres.MigrationVersion(cfg.DatabaseURL)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %v)\n", version, dirty)
				return nil
			},
		},
	)

	return cmd
}

func sentinelCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Wallet integrity checks",
	}

	verifyCmd := &cobra.Command{
		Use:   "verify <userID>",
		Short: "Verify one wallet against its ledger, quarantining on drift",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				intact, err := a.sentinel.VerifyIntegrity(ctx, args[0])
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{"user_id": args[0], "intact": intact}); err != nil {
					return err
				}
				if !intact {
					return errDrift
				}
				return nil
			})
		},
	}

	sweepCmd := &cobra.Command{
		Use:   "sweep",
		Short: "Verify every wallet once",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sweeper := worker.NewIntegritySweeper(a.sentinel, worker.SweeperConfig{
					ChecksPerSecond: a.cfg.SentinelSweepRate,
					Burst:           a.cfg.SentinelSweepBurst,
					Logger:          a.logger,
				})

				report, err := sweeper.RunOnce(ctx)
				if report != nil {
					if perr := printJSON(cmd.OutOrStdout(), sweepSummary(report)); perr != nil {
						return perr
					}
				}
				if err != nil {
					return err
				}
				if report.Quarantined > 0 {
					return errDrift
				}
				return nil
			})
		},
	}

	consistencyCmd := &cobra.Command{
		Use:   "consistency",
		Short: "Check that total balances equal the total ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if err := a.sentinel.CheckLedgerConsistency(ctx); err != nil {
					if errors.Is(err, domain.ErrWalletIntegrityViolation) {
						fmt.Fprintf(cmd.OutOrStdout(), "Consistency check FAILED\n%v\n", err)
						return errDrift
					}
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Consistency check PASSED")
				return nil
			})
		},
	}

	var incidentLimit int
	incidentsCmd := &cobra.Command{
		Use:   "incidents <userID>",
		Short: "List quarantine incidents recorded for a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				logs, err := a.sentinel.ListIncidents(ctx, args[0], incidentLimit)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), incidentRows(logs))
			})
		},
	}
	incidentsCmd.Flags().IntVar(&incidentLimit, "limit", 20, "Maximum number of incidents")

	var clearCooldown bool
	cooldownCmd := &cobra.Command{
		Use:   "cooldown <userID>",
		Short: "Show or clear the incident alert cooldown of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				if a.cooldown == nil {
					return errors.New("incident cooldowns are only shared through redis; set REDIS_ENABLED")
				}
				return runCooldown(ctx, cmd.OutOrStdout(), a.cooldown, args[0], clearCooldown)
			})
		},
	}
	cooldownCmd.Flags().BoolVar(&clearCooldown, "clear", false, "End the running cooldown")

	cmd.AddCommand(verifyCmd, sweepCmd, consistencyCmd, incidentsCmd, cooldownCmd)
	return cmd
}

func incidentRows(logs []*domain.AuditLog) []map[string]any {
	rows := make([]map[string]any, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, map[string]any{
			"id":          l.ID,
			"wallet_id":   l.ResourceID,
			"recorded_at": l.CreatedAt.UTC().Format(time.RFC3339),
			"details":     l.AfterState,
		})
	}
	return rows
}

// cooldownControl inspects and resets the shared incident cooldown.
type cooldownControl interface {
	Remaining(ctx context.Context, key string) (time.Duration, error)
	Clear(ctx context.Context, key string) error
}

func runCooldown(ctx context.Context, w io.Writer, store cooldownControl, userID string, clear bool) error {
	if clear {
		if err := store.Clear(ctx, userID); err != nil {
			return err
		}
		fmt.Fprintf(w, "cooldown for %s cleared\n", userID)
		return nil
	}

	left, err := store.Remaining(ctx, userID)
	if err != nil {
		return err
	}
	if left == 0 {
		fmt.Fprintf(w, "no cooldown running for %s\n", userID)
		return nil
	}
	fmt.Fprintf(w, "cooldown for %s ends in %s\n", userID, left.Round(time.Second))
	return nil
}

func sweepSummary(r *usecase.IntegrityReport) map[string]any {
	return map[string]any{
		"checked":     r.Checked,
		"intact":      r.Intact,
		"quarantined": r.Quarantined,
		"failed":      r.Failed,
		"duration":    r.Duration.Round(time.Millisecond).String(),
	}
}

func reservationsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reservations",
		Short: "Reservation maintenance",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "reap",
		Short: "Release expired holds and clamp orphaned reserved funds",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				res, err := worker.NewReservationReaper(a.reservations, 0, a.logger).RunOnce(ctx)
				if res != nil {
					if perr := printJSON(cmd.OutOrStdout(), map[string]int{"expired": res.Expired, "clamped": res.Clamped}); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	})

	return cmd
}
