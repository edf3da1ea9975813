package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"coalesce/internal/engine"
	"coalesce/internal/store"
)

func newPlanCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Show merge plans for the currently approved pairs",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine, _ *store.Store) error {
				plans, err := eng.BuildPlans(cmd.Context())
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, plans)
				}
				if len(plans) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No approved pairs to plan")
					return nil
				}

				rows := make([][]string, 0, len(plans))
				for _, plan := range plans {
					detail := fmt.Sprintf("%d merges", len(plan.Merges))
					if plan.Ambiguous {
						detail = "ambiguous: " + plan.Reason
					}
					canonical := "-"
					if plan.CanonicalID > 0 {
						canonical = strconv.FormatInt(plan.CanonicalID, 10)
					}
					rows = append(rows, []string{
						formatIDList(plan.MemberIDs),
						canonical,
						detail,
					})
				}
				printTable(cmd, []string{"Members", "Canonical", "Plan"}, rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit plans as JSON")
	return cmd
}

func formatIDList(ids []int64) string {
	parts := make([]string, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, fmt.Sprintf("%d", id))
	}
	return strings.Join(parts, ", ")
}
