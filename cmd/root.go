package cmd

import (
	"errors"
	"log"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/prefcanon/internal/ai"
	"github.com/spigell/prefcanon/internal/matcher"
	"github.com/spigell/prefcanon/internal/similarity"
)

const (
	app = "prefcanon"
)

type Config struct {
	SchemaFile         string         `mapstructure:"schema-file"`
	PendingFile        string         `mapstructure:"pending-file"`
	PreferencesFile    string         `mapstructure:"preferences-file"`
	AutoPersist        bool           `mapstructure:"auto-persist"`
	AllowMissingSchema bool           `mapstructure:"allow-missing-schema"`
	Matching           MatchingConfig `mapstructure:"matching"`
	AI                 ai.Config      `mapstructure:"ai"`
}

type MatchingConfig struct {
	Threshold          float64 `mapstructure:"threshold"`
	NearMiss           float64 `mapstructure:"near-miss"`
	CreatePending      bool    `mapstructure:"create-pending"`
	ForcePendingForNew bool    `mapstructure:"force-pending-for-new"`
	CacheSize          int     `mapstructure:"cache-size"`
}

func (c MatchingConfig) Options() matcher.Options {
	return matcher.Options{
		Threshold:          c.Threshold,
		CreatePending:      c.CreatePending,
		ForcePendingForNew: c.ForcePendingForNew,
	}
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "prefcanon normalizes job-preference labels into a canonical vocabulary",
		Long: `prefcanon maps free-form preference categories and values onto a canonical
schema. Anything it is not sure about is queued as a pending action for a
human to approve or reject.`,
		SilenceUsage: true,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	if err := viper.BindEnv("ai.gemini.api-key", "GEMINI_API_KEY"); err != nil {
		log.Fatalf("binding GEMINI_API_KEY environment variable: %v", err)
	}
	if err := viper.BindEnv("ai.gemini.api-key-file", "PREFCANON_GEMINI_KEY_FILE"); err != nil {
		log.Fatalf("binding PREFCANON_GEMINI_KEY_FILE environment variable: %v", err)
	}

	setDefaults()

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is prefcanon.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")
	rootCmd.PersistentFlags().String("schema-file", "", "schema file (default schema.json)")
	rootCmd.PersistentFlags().String("pending-file", "", "pending actions file (default pending_actions.json)")
	rootCmd.PersistentFlags().Bool("allow-missing-schema", false, "start from an empty schema when the schema file does not exist")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	viper.BindPFlag("schema-file", rootCmd.PersistentFlags().Lookup("schema-file"))
	viper.BindPFlag("pending-file", rootCmd.PersistentFlags().Lookup("pending-file"))
	viper.BindPFlag("allow-missing-schema", rootCmd.PersistentFlags().Lookup("allow-missing-schema"))
}

func setDefaults() {
	viper.SetDefault("schema-file", "schema.json")
	viper.SetDefault("pending-file", "pending_actions.json")
	viper.SetDefault("auto-persist", true)
	viper.SetDefault("matching.threshold", matcher.DefaultThreshold)
	viper.SetDefault("matching.near-miss", matcher.DefaultNearMiss)
	viper.SetDefault("matching.create-pending", true)
	viper.SetDefault("matching.cache-size", similarity.DefaultCacheSize)
	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.mode", ai.ModeEmbedding)
	viper.SetDefault("ai.threshold", ai.DefaultThreshold)
	viper.SetDefault("ai.timeout", ai.DefaultTimeout)
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// The config file is optional unless given explicitly, but a broken one is fatal.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
