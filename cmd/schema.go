package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/schema"
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect and edit the canonical schema",
}

var schemaInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write the built-in job-preference vocabulary to the schema file",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		logger := newLogger()
		path := viper.GetString("schema-file")

		force, _ := cmd.Flags().GetBool("force")
		if _, err := os.Stat(path); err == nil && !force {
			logger.Fatal("schema file already exists", zap.String("path", path), zap.String("hint", "pass --force to overwrite"))
		}

		def, err := schema.Default()
		if err != nil {
			logger.Fatal("loading built-in schema", zap.Error(err))
		}

		if err := schema.Save(def, path); err != nil {
			logger.Fatal("writing schema", zap.Error(err))
		}

		logger.Info("schema written", zap.String("path", path), zap.Int("categories", def.Len()))
	},
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the schema",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		e := newEngine(false)
		snapshot := e.store.Snapshot()

		verbose, _ := cmd.Flags().GetBool("verbose")
		if !verbose {
			data, err := schema.Marshal(snapshot)
			if err != nil {
				e.logger.Fatal("encoding schema", zap.Error(err))
			}
			os.Stdout.Write(data)
			return
		}

		writeSchemaListing(os.Stdout, snapshot)
	},
}

var schemaAddCategoryCmd = &cobra.Command{
	Use:   "add-category NAME",
	Short: "Add a category",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		synonyms, _ := cmd.Flags().GetStringSlice("synonym")
		mutate(func(st *schema.Store) error { return st.AddCategory(args[0], synonyms) },
			"adding category", zap.String("category", args[0]))
	},
}

var schemaAddSynonymCmd = &cobra.Command{
	Use:   "add-synonym CATEGORY SYNONYM",
	Short: "Add a synonym to a category",
	Args:  cobra.ExactArgs(2),
	Run: func(_ *cobra.Command, args []string) {
		mutate(func(st *schema.Store) error { return st.AddCategorySynonym(args[0], args[1]) },
			"adding synonym", zap.String("category", args[0]), zap.String("synonym", args[1]))
	},
}

var schemaAddValueCmd = &cobra.Command{
	Use:   "add-value CATEGORY VALUE",
	Short: "Add a canonical value to a category",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		variants, _ := cmd.Flags().GetStringSlice("variant")
		mutate(func(st *schema.Store) error { return st.AddCanonicalValue(args[0], args[1], variants) },
			"adding canonical value", zap.String("category", args[0]), zap.String("value", args[1]))
	},
}

var schemaAddVariantCmd = &cobra.Command{
	Use:   "add-variant CATEGORY VALUE VARIANT",
	Short: "Add a variant spelling to a canonical value",
	Args:  cobra.ExactArgs(3),
	Run: func(_ *cobra.Command, args []string) {
		mutate(func(st *schema.Store) error { return st.AddValueVariant(args[0], args[1], args[2]) },
			"adding variant", zap.String("category", args[0]), zap.String("value", args[1]), zap.String("variant", args[2]))
	},
}

func init() {
	rootCmd.AddCommand(schemaCmd)
	schemaCmd.AddCommand(schemaInitCmd, schemaShowCmd, schemaAddCategoryCmd, schemaAddSynonymCmd, schemaAddValueCmd, schemaAddVariantCmd)

	schemaInitCmd.Flags().Bool("force", false, "overwrite an existing schema file")
	schemaShowCmd.Flags().BoolP("verbose", "v", false, "print a readable listing with variants")
	schemaAddCategoryCmd.Flags().StringSlice("synonym", nil, "synonym for the category, repeatable")
	schemaAddValueCmd.Flags().StringSlice("variant", nil, "variant spelling, repeatable")
}

// mutate runs one schema change. Duplicates are reported and skipped.
func mutate(fn func(st *schema.Store) error, msg string, fields ...zap.Field) {
	e := newEngine(false)
	defer e.close()

	err := fn(e.store)
	if schema.IsDuplicate(err) {
		e.logger.Info("already present, nothing to do", append(fields, zap.Error(err))...)
		return
	}
	if errors.Is(err, schema.ErrUnknownCategory) || errors.Is(err, schema.ErrUnknownValue) {
		e.logger.Fatal(msg, append(fields, zap.Error(err), zap.String("hint", "create the parent first"))...)
	}
	e.check(msg, err, fields...)
}

func writeSchemaListing(w io.Writer, s *schema.Schema) {
	for _, c := range s.Categories() {
		fmt.Fprintf(w, "%s\n", c.Name)
		if len(c.Synonyms) > 0 {
			fmt.Fprintf(w, "  synonyms: %s\n", strings.Join(c.Synonyms, ", "))
		}
		for _, v := range c.Values {
			if len(v.Variants) == 0 {
				fmt.Fprintf(w, "  - %s\n", v.Name)
				continue
			}
			fmt.Fprintf(w, "  - %s (%s)\n", v.Name, strings.Join(v.Variants, ", "))
		}
	}
}
