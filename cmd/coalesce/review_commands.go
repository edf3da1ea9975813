package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"coalesce/internal/config"
	"coalesce/internal/store"
)

func newReviewCommand(ctx *commandContext) *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Work the pending-review queue",
	}

	reviewCmd.AddCommand(newReviewListCommand(ctx))
	reviewCmd.AddCommand(newReviewShowCommand(ctx))
	reviewCmd.AddCommand(newReviewDecideCommand(ctx, store.StatusApproved, "approve",
		"Approve a pending pair for merging in the next batch"))
	reviewCmd.AddCommand(newReviewDecideCommand(ctx, store.StatusRejected, "reject",
		"Reject a pending pair permanently"))

	return reviewCmd
}

func newReviewListCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List pairs waiting for a decision, highest score first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, s *store.Store) error {
				pending, err := s.CurrentDecisionsByStatus(cmd.Context(), store.StatusPendingReview)
				if err != nil {
					return err
				}
				if jsonOutput {
					return writeJSON(cmd, pending)
				}
				if len(pending) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Review queue is empty")
					return nil
				}

				rows := make([][]string, 0, len(pending))
				for _, d := range pending {
					rows = append(rows, []string{
						fmt.Sprintf("%d", d.ID),
						d.PairKey,
						fmt.Sprintf("%d", d.Score),
						d.Tier,
						d.Reason,
					})
				}
				printTable(cmd, []string{"Decision", "Pair", "Score", "Tier", "Reason"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignRight, alignLeft, alignLeft})
				fmt.Fprintf(cmd.OutOrStdout(), "%s pairs pending\n", formatCount(len(pending)))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit pending decisions as JSON")
	return cmd
}

func newReviewShowCommand(ctx *commandContext) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show <pair-key|decision-id>",
		Short: "Show both contacts and the full decision history for a pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, s *store.Store) error {
				pairKey, err := resolvePairKey(cmd, s, args[0])
				if err != nil {
					return err
				}
				history, err := s.DecisionHistory(cmd.Context(), pairKey)
				if err != nil {
					return err
				}
				if len(history) == 0 {
					return fmt.Errorf("pair %s has no decisions", pairKey)
				}
				current := history[len(history)-1]

				a, err := s.GetContact(cmd.Context(), current.ContactAID)
				if err != nil {
					return err
				}
				b, err := s.GetContact(cmd.Context(), current.ContactBID)
				if err != nil {
					return err
				}

				if jsonOutput {
					return writeJSON(cmd, map[string]any{
						"pair_key":  pairKey,
						"contact_a": a,
						"contact_b": b,
						"history":   history,
					})
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Pair %s: score %d (%s), currently %s\n",
					pairKey, current.Score, current.Tier, current.Status)
				if len(current.BlockKeys) > 0 {
					fmt.Fprintf(out, "Matched blocks: %s\n", strings.Join(current.BlockKeys, ", "))
				}
				if current.SignalsJSON != "" {
					fmt.Fprintf(out, "Signals: %s\n", current.SignalsJSON)
				}
				printContactSummary(cmd, "A", a)
				printContactSummary(cmd, "B", b)

				rows := make([][]string, 0, len(history))
				for _, d := range history {
					rows = append(rows, []string{
						fmt.Sprintf("%d", d.ID),
						string(d.Status),
						d.DecidedBy,
						formatWhen(d.CreatedAt),
						d.Reason,
					})
				}
				printTable(cmd, []string{"Row", "Status", "Decided by", "When", "Reason"}, rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft})
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Emit the pair detail as JSON")
	return cmd
}

func newReviewDecideCommand(ctx *commandContext, status store.DecisionStatus, use, short string) *cobra.Command {
	var (
		decidedBy string
		reason    string
	)

	cmd := &cobra.Command{
		Use:   use + " <decision-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, s *store.Store) error {
				id, err := parseID(args[0])
				if err != nil {
					return err
				}
				decision, err := s.GetDecision(cmd.Context(), id)
				if err != nil {
					return err
				}
				if decision == nil {
					return fmt.Errorf("decision %d not found", id)
				}

				by := strings.TrimSpace(decidedBy)
				if by == "" {
					by = operatorName()
				}
				if by == store.DecidedByScorer {
					return fmt.Errorf("decided-by %q is reserved for automatic routing", by)
				}

				appended, err := s.AppendDecision(cmd.Context(), &store.Decision{
					BatchID:     decision.BatchID,
					PairKey:     decision.PairKey,
					ContactAID:  decision.ContactAID,
					ContactBID:  decision.ContactBID,
					BlockKeys:   decision.BlockKeys,
					SignalsJSON: decision.SignalsJSON,
					Score:       decision.Score,
					Tier:        decision.Tier,
					Status:      status,
					Reason:      strings.TrimSpace(reason),
					DecidedBy:   by,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Pair %s is now %s (decision %d, by %s)\n",
					appended.PairKey, appended.Status, appended.ID, by)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&decidedBy, "by", "", "Operator name to record (defaults to the current user)")
	cmd.Flags().StringVar(&reason, "reason", "", "Free-form note stored with the decision")
	return cmd
}

// resolvePairKey accepts either a pair key like "3:9" or a decision id and
// returns the pair key.
func resolvePairKey(cmd *cobra.Command, s *store.Store, arg string) (string, error) {
	arg = strings.TrimSpace(arg)
	if strings.Contains(arg, ":") {
		return arg, nil
	}
	id, err := parseID(arg)
	if err != nil {
		return "", err
	}
	decision, err := s.GetDecision(cmd.Context(), id)
	if err != nil {
		return "", err
	}
	if decision == nil {
		return "", fmt.Errorf("decision %d not found", id)
	}
	return decision.PairKey, nil
}

func printContactSummary(cmd *cobra.Command, label string, c *store.Contact) {
	out := cmd.OutOrStdout()
	if c == nil {
		fmt.Fprintf(out, "Contact %s: missing\n", label)
		return
	}
	state := "live"
	if c.IsRemoved() {
		state = fmt.Sprintf("removed (merged into %d)", derefID(c.MergedIntoID))
	}
	fmt.Fprintf(out, "Contact %s: #%d %s <%s> phone=%s kind=%s consent=%s, %s\n",
		label, c.ID, c.DisplayName(), c.Email, c.Phone, c.NameKind, yesNo(c.Consent), state)
}

func derefID(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
