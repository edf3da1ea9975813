package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"coalesce/internal/engine"
	"coalesce/internal/store"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		threshold  int
		dryRun     bool
		resume     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a full batch: scan, plan, merge, verify",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine, _ *store.Store) error {
				report, err := eng.Run(cmd.Context(), engine.Options{
					Threshold: threshold,
					DryRun:    dryRun,
					Resume:    resume,
				})
				if report != nil {
					if jsonOutput {
						if writeErr := writeJSON(cmd, report); writeErr != nil {
							return writeErr
						}
					} else {
						printRunReport(cmd, report)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().IntVar(&threshold, "threshold", 0, "Override the auto-approve score threshold")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Scan and plan without merging")
	cmd.Flags().StringVar(&resume, "resume", "", "Resume a prior batch by id, honoring its scan checkpoints")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the batch report as JSON")
	return cmd
}

func newScanCommand(ctx *commandContext) *cobra.Command {
	var (
		resume     string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Score candidate pairs without planning or merging",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine, _ *store.Store) error {
				report, err := eng.Run(cmd.Context(), engine.Options{
					Resume:   resume,
					ScanOnly: true,
				})
				if report != nil {
					if jsonOutput {
						if writeErr := writeJSON(cmd, report); writeErr != nil {
							return writeErr
						}
					} else {
						printRunReport(cmd, report)
					}
				}
				return err
			})
		},
	}

	cmd.Flags().StringVar(&resume, "resume", "", "Resume a prior batch by id, honoring its scan checkpoints")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the scan report as JSON")
	return cmd
}

func printRunReport(cmd *cobra.Command, report *engine.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Batch %s", report.BatchID)
	if report.DryRun {
		fmt.Fprint(out, " (dry run)")
	}
	fmt.Fprintln(out)

	rows := [][]string{
		{"Blocks scanned", formatCount(report.BlocksScanned)},
		{"Blocks skipped", formatCount(report.BlocksSkipped)},
		{"Pairs scored", formatCount(report.PairsScored)},
		{"Pairs skipped", formatCount(report.PairsSkipped)},
		{"Approved", formatCount(report.Approved)},
		{"Pending review", formatCount(report.PendingReview)},
		{"Rejected", formatCount(report.Rejected)},
		{"Clusters", formatCount(report.Clusters)},
		{"Ambiguous clusters", formatCount(report.AmbiguousClusters)},
		{"Merges planned", formatCount(report.MergesPlanned)},
		{"Merges executed", formatCount(report.MergesExecuted)},
		{"Merges skipped", formatCount(report.MergesSkipped)},
		{"Contacts removed", formatCount(report.ContactsRemoved)},
	}
	printTable(cmd, []string{"Metric", "Value"}, rows, []columnAlignment{alignLeft, alignRight})

	if v := report.Verification; v != nil {
		if v.OK() {
			fmt.Fprintf(out, "Verification passed: sum %s unchanged, %d snapshots cover %d removals\n",
				formatCents(v.PostSumCents), v.BackedUp, v.RemovedContacts)
		} else {
			fmt.Fprintln(out, "Verification FAILED; batch halted:")
			for _, violation := range v.Violations {
				fmt.Fprintf(out, "  - %s\n", violation)
			}
		}
	}
	if report.Duration > 0 {
		fmt.Fprintf(out, "Finished in %s\n", report.Duration.Round(time.Millisecond))
	}
}
