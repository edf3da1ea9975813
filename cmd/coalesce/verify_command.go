package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"coalesce/internal/engine"
	"coalesce/internal/store"
)

func newVerifyCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-run the store-wide integrity checks and clear the halt latch",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(func(eng *engine.Engine, _ *store.Store) error {
				report, err := eng.ClearHaltAfterVerify(cmd.Context())
				if report != nil {
					if jsonOutput {
						if writeErr := writeJSON(cmd, report); writeErr != nil {
							return writeErr
						}
					} else {
						out := cmd.OutOrStdout()
						if report.OK() {
							fmt.Fprintf(out, "Store verified: %d orphaned records, live sum %s\n",
								report.OrphanedRecords, formatCents(report.PostSumCents))
						} else {
							fmt.Fprintln(out, "Verification FAILED:")
							for _, violation := range report.Violations {
								fmt.Fprintf(out, "  - %s\n", violation)
							}
						}
					}
				}
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the verification report as JSON")
	return cmd
}
