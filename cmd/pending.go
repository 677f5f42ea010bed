package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/governance"
)

const (
	PromptApprove = "Approve"
	PromptReject  = "Reject"
	PromptSkip    = "Skip"
	PromptQuit    = "Quit"
)

var errQuit = errors.New("quit requested")

type pendingOutput struct {
	ID          string    `json:"id"`
	ActionType  string    `json:"action_type"`
	OldCategory string    `json:"old_category,omitempty"`
	NewCategory string    `json:"new_category,omitempty"`
	OldValue    string    `json:"old_value,omitempty"`
	NewValue    string    `json:"new_value,omitempty"`
	Score       float64   `json:"score"`
	CreatedAt   time.Time `json:"created_at"`
	Summary     string    `json:"summary"`
}

func toPendingOutput(a governance.PendingAction) pendingOutput {
	f := a.Proposal.Fields()
	return pendingOutput{
		ID:          a.ID,
		ActionType:  string(a.Type()),
		OldCategory: f.OldCategory,
		NewCategory: f.NewCategory,
		OldValue:    f.OldValue,
		NewValue:    f.NewValue,
		Score:       a.Score,
		CreatedAt:   a.CreatedAt,
		Summary:     a.String(),
	}
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "Review proposed schema changes",
}

var pendingListCmd = &cobra.Command{
	Use:   "list",
	Short: "List pending actions",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		e := newEngine(false)

		out := []pendingOutput{}
		for _, a := range e.queue.List() {
			out = append(out, toPendingOutput(a))
		}

		if err := printJSON(out); err != nil {
			e.logger.Fatal("writing pending actions", zap.Error(err))
		}
	},
}

var pendingApproveCmd = &cobra.Command{
	Use:   "approve ID...",
	Short: "Apply pending actions to the schema",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		e := newEngine(false)
		defer e.close()

		for _, id := range args {
			e.check("approving pending action", e.queue.Approve(id), zap.String("id", id))
		}
	},
}

var pendingRejectCmd = &cobra.Command{
	Use:   "reject ID...",
	Short: "Discard pending actions without changing the schema",
	Args:  cobra.MinimumNArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		e := newEngine(false)

		for _, id := range args {
			e.check("rejecting pending action", e.queue.Reject(id), zap.String("id", id))
		}
	},
}

var pendingAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Queue a pending action by hand",
	Example: `  prefcanon pending add --type Mapping --old-category location_type --new-category "Work Mode"
  prefcanon pending add --type Creation --new-category job_type --new-value Internship`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		e := newEngine(false)

		flags := cmd.Flags()
		typ, _ := flags.GetString("type")
		score, _ := flags.GetFloat64("score")

		actionType, err := governance.ParseActionType(typ)
		if err != nil {
			e.logger.Fatal("parsing action type", zap.Error(err))
		}

		var f governance.Fields
		f.OldCategory, _ = flags.GetString("old-category")
		f.NewCategory, _ = flags.GetString("new-category")
		f.OldValue, _ = flags.GetString("old-value")
		f.NewValue, _ = flags.GetString("new-value")

		action, err := e.queue.AddFields(actionType, f, score)
		if errors.Is(err, governance.ErrInvalidAction) {
			e.logger.Fatal("adding pending action", zap.Error(err))
		}
		e.check("adding pending action", err)

		if err := printJSON(toPendingOutput(action)); err != nil {
			e.logger.Fatal("writing pending action", zap.Error(err))
		}
	},
}

var pendingReviewCmd = &cobra.Command{
	Use:   "review",
	Short: "Walk through pending actions interactively",
	Args:  cobra.NoArgs,
	Run: func(_ *cobra.Command, _ []string) {
		e := newEngine(false)
		defer e.close()

		actions := e.queue.List()
		if len(actions) == 0 {
			e.logger.Info("exiting", zap.String("reason", "no pending actions"))
			return
		}

		for i, action := range actions {
			if err := review(e, action, i+1, len(actions)); err != nil {
				if errors.Is(err, errQuit) {
					return
				}
				e.logger.Fatal("exiting", zap.Error(err))
			}
		}

		e.logger.Info("review finished", zap.Int("remaining", e.queue.Len()))
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	pendingCmd.AddCommand(pendingListCmd, pendingApproveCmd, pendingRejectCmd, pendingAddCmd, pendingReviewCmd)

	pendingAddCmd.Flags().String("type", "", "action type: Mapping, Creation or Rejection")
	pendingAddCmd.Flags().String("old-category", "", "existing category")
	pendingAddCmd.Flags().String("new-category", "", "proposed category or synonym")
	pendingAddCmd.Flags().String("old-value", "", "existing canonical value")
	pendingAddCmd.Flags().String("new-value", "", "proposed value or variant")
	pendingAddCmd.Flags().Float64("score", 0, "confidence behind the proposal")
	pendingAddCmd.MarkFlagRequired("type")
}

func review(e *engine, action governance.PendingAction, n, total int) error {
	prompt := promptui.Select{
		Label: fmt.Sprintf("[%d/%d] %s (score %.2f)", n, total, action, action.Score),
		Items: []string{PromptApprove, PromptReject, PromptSkip, PromptQuit},
	}

	_, choice, err := prompt.Run()
	if err != nil {
		return err
	}

	fields := []zap.Field{zap.String("id", action.ID)}
	switch choice {
	case PromptApprove:
		e.check("approving pending action", e.queue.Approve(action.ID), fields...)
	case PromptReject:
		e.check("rejecting pending action", e.queue.Reject(action.ID), fields...)
	case PromptSkip:
	case PromptQuit:
		return errQuit
	default:
		return fmt.Errorf("invalid choice: %s", choice)
	}
	return nil
}
