package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coalesce/internal/config"
	"coalesce/internal/store"
)

func newBatchesCommand(ctx *commandContext) *cobra.Command {
	batchesCmd := &cobra.Command{
		Use:   "batches",
		Short: "Inspect batch history",
	}

	batchesCmd.AddCommand(newBatchesListCommand(ctx))
	batchesCmd.AddCommand(newBatchesShowCommand(ctx))

	return batchesCmd
}

func newBatchesListCommand(ctx *commandContext) *cobra.Command {
	var (
		limit      int
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List batches, newest first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, s *store.Store) error {
				batches, err := s.ListBatches(cmd.Context(), limit)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, batches)
				}
				if len(batches) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No batches recorded")
					return nil
				}

				rows := make([][]string, 0, len(batches))
				for _, b := range batches {
					rows = append(rows, []string{
						b.ID,
						string(b.Status),
						formatWhen(b.StartedAt),
						formatCount(b.PairsScored),
						formatCount(b.MergesExecuted),
						formatCount(b.ContactsRemoved),
						yesNo(b.DryRun),
					})
				}
				printTable(cmd,
					[]string{"Batch", "Status", "Started", "Pairs", "Merges", "Removed", "Dry run"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum batches to show (0 for all)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit batches as JSON")
	return cmd
}

func newBatchesShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <batch-id>",
		Short: "Show one batch with its decisions and snapshots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, s *store.Store) error {
				batch, err := s.GetBatch(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				if batch == nil {
					return fmt.Errorf("batch %s not found", args[0])
				}
				decisions, err := s.DecisionsForBatch(cmd.Context(), batch.ID)
				if err != nil {
					return err
				}
				backups, err := s.BackupsForBatch(cmd.Context(), batch.ID)
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"batch":     batch,
						"decisions": decisions,
						"backups":   backups,
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Batch %s: %s, started %s\n", batch.ID, batch.Status, formatWhen(batch.StartedAt))
				if batch.FinishedAt != nil {
					fmt.Fprintf(out, "Finished %s\n", formatWhen(*batch.FinishedAt))
				}
				if batch.HaltReason != "" {
					fmt.Fprintf(out, "Halt reason: %s\n", batch.HaltReason)
				}
				fmt.Fprintf(out, "Threshold %d, dry run %s\n", batch.Threshold, yesNo(batch.DryRun))
				fmt.Fprintf(out, "Pairs scored %s, merges %s, contacts removed %s\n",
					formatCount(batch.PairsScored), formatCount(batch.MergesExecuted), formatCount(batch.ContactsRemoved))
				fmt.Fprintf(out, "Transaction sum %s before, %s after\n",
					formatCents(batch.PreSumCents), formatCents(batch.PostSumCents))
				fmt.Fprintf(out, "%s decision rows, %s snapshots\n",
					formatCount(len(decisions)), formatCount(len(backups)))

				if len(decisions) > 0 {
					rows := make([][]string, 0, len(decisions))
					for _, d := range decisions {
						rows = append(rows, []string{
							fmt.Sprintf("%d", d.ID),
							d.PairKey,
							fmt.Sprintf("%d", d.Score),
							string(d.Status),
							d.DecidedBy,
						})
					}
					printTable(cmd, []string{"Row", "Pair", "Score", "Status", "Decided by"}, rows,
						[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft})
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the batch detail as JSON")
	return cmd
}
