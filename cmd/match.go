package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/governance"
	"github.com/spigell/prefcanon/internal/matcher"
)

type matchOutput struct {
	Input      string          `json:"input"`
	Category   string          `json:"category,omitempty"`
	Match      *string         `json:"match"`
	Confidence float64         `json:"confidence"`
	Strategy   string          `json:"strategy,omitempty"`
	Pending    []pendingOutput `json:"pending,omitempty"`
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Resolve a single label against the schema",
}

var matchCategoryCmd = &cobra.Command{
	Use:   "category INPUT",
	Short: "Resolve a category label",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEngine(true)
		defer e.close()

		res, actions := e.matcher.MatchCategory(e.ctx, args[0], matchOptions(cmd, e.config))
		printMatch(e, matchOutput{Input: args[0]}, res, actions)
	},
}

var matchValueCmd = &cobra.Command{
	Use:   "value CATEGORY INPUT",
	Short: "Resolve a value label inside a category",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEngine(true)
		defer e.close()

		res, actions := e.matcher.MatchValue(e.ctx, args[0], args[1], matchOptions(cmd, e.config))
		printMatch(e, matchOutput{Input: args[1], Category: args[0]}, res, actions)
	},
}

func init() {
	rootCmd.AddCommand(matchCmd)
	matchCmd.AddCommand(matchCategoryCmd, matchValueCmd)
	addMatchFlags(matchCmd)
}

func printMatch(e *engine, out matchOutput, res matcher.Result, actions []governance.PendingAction) {
	if res.Found {
		out.Match = &res.Name
		out.Confidence = res.Confidence
		out.Strategy = res.Strategy
	}
	for _, a := range actions {
		out.Pending = append(out.Pending, toPendingOutput(a))
	}

	if err := printJSON(out); err != nil {
		e.logger.Fatal("writing result", zap.Error(err))
	}
}
