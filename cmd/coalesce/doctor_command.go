package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"coalesce/internal/logging"
	"coalesce/internal/preflight"
)

func newDoctorCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the environment before running a batch",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.buildLogger(cfg)
			if err != nil {
				logger = logging.NewNop()
			}

			result := preflight.Run(cmd.Context(), cfg, logger)
			if jsonOutput {
				if err := writeJSON(cmd, result); err != nil {
					return err
				}
			} else {
				rows := make([][]string, 0, len(result.Checks))
				for _, check := range result.Checks {
					rows = append(rows, []string{check.Name, string(check.Status), check.Detail})
				}
				printTable(cmd, []string{"Check", "Status", "Detail"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft})
			}

			if !result.Healthy() {
				return errors.New("environment checks failed")
			}
			if !jsonOutput {
				fmt.Fprintln(cmd.OutOrStdout(), "Environment looks good")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit check results as JSON")
	return cmd
}
