package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"coalesce/internal/config"
	"coalesce/internal/ingest"
	"coalesce/internal/store"
)

func newImportCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a JSONL contact feed (use - for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, s *store.Store) error {
				logger, err := ctx.buildLogger(cfg)
				if err != nil {
					return err
				}

				var input io.Reader
				if args[0] == "-" {
					input = cmd.InOrStdin()
				} else {
					path, err := config.ExpandPath(args[0])
					if err != nil {
						return err
					}
					file, err := os.Open(path)
					if err != nil {
						return fmt.Errorf("open feed: %w", err)
					}
					defer file.Close()
					input = file
				}

				summary, err := ingest.New(s, logger).Run(cmd.Context(), input)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, summary)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %s contacts, skipped %s already known, %s failed (correlation %s)\n",
					formatCount(summary.Imported), formatCount(summary.Skipped),
					formatCount(summary.Failed), summary.CorrelationID)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the import summary as JSON")
	return cmd
}
