package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/mapping"
	"github.com/spigell/prefcanon/internal/matcher"
	"github.com/spigell/prefcanon/internal/profile"
)

var mapCmd = &cobra.Command{
	Use:   "map [FILE|-]",
	Short: "Canonicalize a preferences document",
	Long: `Reads a JSON object of category -> value (a string or a list of strings),
maps every entry onto the schema and prints the canonical document. Entries
that cannot be resolved are kept unchanged. Without FILE the configured
preferences file is used.`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		e := newEngine(true)
		defer e.close()

		source := e.config.PreferencesFile
		if len(args) == 1 {
			source = args[0]
		}
		if source == "" {
			e.logger.Fatal("no input document", zap.String("hint", "pass FILE, '-' for stdin, or set preferences-file"))
		}

		doc, err := readDocument(source)
		if err != nil {
			e.logger.Fatal("reading preferences", zap.String("source", source), zap.Error(err))
		}

		mapper := mapping.NewMapper(e.matcher, matchOptions(cmd, e.config), e.logger)
		mapped, summary := mapper.MapWithSummary(e.ctx, doc)

		output, _ := cmd.Flags().GetString("output")
		if output != "" {
			if err := profile.Save(output, mapped); err != nil {
				e.logger.Fatal("writing mapped preferences", zap.Error(err))
			}
			e.logger.Info("mapped preferences written", zap.String("path", output))
		} else if err := printJSON(mapped); err != nil {
			e.logger.Fatal("writing mapped preferences", zap.Error(err))
		}

		if summary.Pending > 0 {
			e.logger.Info("review queued proposals with 'prefcanon pending review'", zap.Int("pending", summary.Pending))
		}
	},
}

func init() {
	rootCmd.AddCommand(mapCmd)
	mapCmd.Flags().StringP("output", "o", "", "write the canonical document to this file instead of stdout")
	addMatchFlags(mapCmd)
}

func readDocument(source string) (mapping.Document, error) {
	var (
		data []byte
		err  error
	)
	if source == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, err
	}

	var generic map[string]any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("decoding json object: %w", err)
	}

	return mapping.Decode(generic)
}

func addMatchFlags(cmd *cobra.Command) {
	flags := cmd.PersistentFlags()
	flags.Float64("threshold", 0, "minimum score for a fuzzy match (default matching.threshold)")
	flags.Bool("pending", true, "queue pending actions for uncertain matches (default matching.create-pending)")
	flags.Bool("force-pending", false, "queue a creation for every unmatched label (default matching.force-pending-for-new)")
}

// matchOptions starts from the configured matching options and applies any
// flag the user set explicitly.
func matchOptions(cmd *cobra.Command, config *Config) matcher.Options {
	opts := config.Matching.Options()

	if f := cmd.Flags().Lookup("threshold"); f != nil && f.Changed {
		opts.Threshold, _ = cmd.Flags().GetFloat64("threshold")
	}
	if f := cmd.Flags().Lookup("pending"); f != nil && f.Changed {
		opts.CreatePending, _ = cmd.Flags().GetBool("pending")
	}
	if f := cmd.Flags().Lookup("force-pending"); f != nil && f.Changed {
		opts.ForcePendingForNew, _ = cmd.Flags().GetBool("force-pending")
	}

	return opts
}
