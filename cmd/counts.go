package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/bnema/coplay/internal/adapters/render/summary"
	tomlreport "github.com/bnema/coplay/internal/adapters/report/toml"
	"github.com/bnema/coplay/internal/domain"
	"github.com/spf13/cobra"
)

type countsOutput struct {
	Tracked domain.AccountID     `json:"tracked_account"`
	Counts  []domain.CoPlayEntry `json:"counts"`
}

func newCountsCmd(flags *globalFlags) *cobra.Command {
	var account int64
	var jsonOutput bool
	var limit int
	var reportPath string

	cmd := &cobra.Command{
		Use:   "counts",
		Short: "Show how often each player was on the tracked account's team",
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

			aggregator, err := app.newAggregator(cmd.Context())
			if err != nil {
				return err
			}

			previous := app.previousCounts(reportPath, tracked)

			var counts domain.CoPlayCounts
			err = app.runWork(cmd, "Aggregating", jsonOutput, func(ctx context.Context) error {
				var aggErr error
				counts, aggErr = aggregator.Aggregate(ctx, tracked)
				return aggErr
			})
			if err != nil {
				return err
			}
			app.metrics.ObserveCounts(counts)

			if reportPath != "" {
				report := tomlreport.Report{Tracked: tracked, GeneratedAt: app.now(), Counts: counts}
				if err := tomlreport.Write(reportPath, report); err != nil {
					return err
				}
			}

			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), countsOutput{Tracked: tracked, Counts: counts.Sorted()})
			}

			rendered, err := summary.RenderCounts(tracked, counts, summary.RenderOptions{Previous: previous, Limit: limit})
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
			return err
		},
	}

	cmd.Flags().Int64Var(&account, "account", 0, "Tracked account id (overrides tracked_account)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output counts as JSON")
	cmd.Flags().IntVar(&limit, "limit", 0, "Show at most this many accounts (0 shows all)")
	cmd.Flags().StringVar(&reportPath, "report", "", "Write a TOML report here; a previous report adds a change column")

	return cmd
}

// previousCounts reads the counts of an earlier report for the same account.
// A missing or unreadable report only drops the change column.
func (a *app) previousCounts(reportPath string, tracked domain.AccountID) domain.CoPlayCounts {
	if reportPath == "" {
		return nil
	}

	report, ok, err := tomlreport.Read(reportPath)
	if err != nil {
		a.log.WithError(err).Warn("ignoring previous report")
		return nil
	}
	if !ok || report.Tracked != tracked {
		return nil
	}
	return report.Counts
}

func writeJSON(w io.Writer, value any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(value)
}
