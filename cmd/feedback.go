package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var feedbackCmd = &cobra.Command{
	Use:   "feedback CATEGORY_VARIANT VALUE_VARIANT CATEGORY VALUE",
	Short: "Teach the schema that a label pair means a canonical pair",
	Long: `Records a correction directly, without going through the pending queue:
CATEGORY_VARIANT becomes a synonym of CATEGORY and VALUE_VARIANT a variant of
VALUE. Missing categories and values are created.`,
	Args: cobra.ExactArgs(4),
	Run: func(_ *cobra.Command, args []string) {
		e := newEngine(false)
		defer e.close()

		err := e.store.ApplyFeedback(args[0], args[1], args[2], args[3])
		e.check("applying feedback", err,
			zap.String("category", args[2]),
			zap.String("value", args[3]),
		)
	},
}

func init() {
	rootCmd.AddCommand(feedbackCmd)
}
