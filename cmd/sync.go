package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/coplay/internal/adapters/render/summary"
	tomlreport "github.com/bnema/coplay/internal/adapters/report/toml"
	"github.com/bnema/coplay/internal/application"
	"github.com/bnema/coplay/internal/domain"
	"github.com/spf13/cobra"
)

type syncOutput struct {
	Tracked        domain.AccountID     `json:"tracked_account"`
	DryRun         bool                 `json:"dry_run"`
	NicknamesReady bool                 `json:"nicknames_ready"`
	Settled        bool                 `json:"settled"`
	Counts         []domain.CoPlayEntry `json:"counts"`
	Renames        []domain.Rename      `json:"renames"`
}

func newSyncCmd(flags *globalFlags) *cobra.Command {
	var account int64
	var dryRun bool
	var jsonOutput bool
	var limit int
	var reportPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Recompute co-play counts and rewrite friend nickname prefixes",
		Long:  "sync logs on to the social network, computes co-play counts for the tracked account, renames every friend whose nickname carries a stale two-digit prefix, waits for the renames to be acknowledged and logs off.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			app, err := wireApp(cmd, flags)
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, app.close(cmd.Context()))
			}()

			if err := app.cfg.RequireTrackedAccount(account); err != nil {
				return err
			}
			tracked := app.cfg.TrackedAccount

			creds, err := app.sessionCredentials(cmd.Context())
			if err != nil {
				return err
			}
			aggregator, err := app.newAggregator(cmd.Context())
			if err != nil {
				return err
			}
			sinks, closeSinks, err := app.renameSinks()
			if err != nil {
				return err
			}
			defer func() {
				err = errors.Join(err, closeSinks())
			}()

			orchestrator := application.NewOrchestrator(
				aggregator,
				app.newSession(creds),
				app.log,
				application.WithDryRun(dryRun),
				application.WithRenameSinks(sinks...),
			)

			previous := app.previousCounts(reportPath, tracked)

			var result application.SyncResult
			syncErr := app.runWork(cmd, "Syncing", jsonOutput, func(ctx context.Context) error {
				var runErr error
				result, runErr = orchestrator.Sync(ctx, tracked)
				return runErr
			})

			// Without counts there is nothing worth reporting.
			if result.Counts == nil {
				return syncErr
			}
			app.metrics.ObserveCounts(result.Counts)

			if reportPath != "" {
				report := tomlreport.Report{
					Tracked:     tracked,
					GeneratedAt: app.now(),
					DryRun:      result.DryRun,
					Counts:      result.Counts,
					Renames:     result.Renames,
				}
				if err := tomlreport.Write(reportPath, report); err != nil {
					return errors.Join(syncErr, err)
				}
			}

			if jsonOutput {
				return errors.Join(syncErr, writeJSON(cmd.OutOrStdout(), syncOutput{
					Tracked:        tracked,
					DryRun:         result.DryRun,
					NicknamesReady: result.NicknamesReady,
					Settled:        result.Settled,
					Counts:         result.Counts.Sorted(),
					Renames:        result.Renames,
				}))
			}

			rendered, err := summary.RenderSync(result, summary.RenderOptions{Previous: previous, Limit: limit})
			if err != nil {
				return errors.Join(syncErr, err)
			}
			if _, err := fmt.Fprintln(cmd.OutOrStdout(), rendered); err != nil {
				return errors.Join(syncErr, err)
			}
			return syncErr
		},
	}

	cmd.Flags().Int64Var(&account, "account", 0, "Tracked account id (overrides tracked_account)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Plan renames without sending them")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output the sync result as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many accounts (0 shows all)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a TOML report here; a previous report adds a change column")

	return cmd
}
