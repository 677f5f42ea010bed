package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/ai"
	"github.com/spigell/prefcanon/internal/governance"
	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/matcher"
	"github.com/spigell/prefcanon/internal/profile"
	"github.com/spigell/prefcanon/internal/schema"
)

// engine bundles everything a command needs. Construction failures are fatal,
// as they are for any CLI entry point.
type engine struct {
	ctx     context.Context
	logger  *zap.Logger
	config  *Config
	store   *schema.Store
	queue   *governance.Queue
	matcher *matcher.Matcher
	dirty   bool
}

func newLogger() *zap.Logger {
	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}
	return logger
}

func newEngine(withAI bool) *engine {
	ctx := context.Background()
	logger := newLogger()

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}
	if config == nil {
		logger.Fatal("config is required")
	}

	// do not bother error since there is a valid parseable config
	pretty, _ := json.MarshalIndent(redacted(config), "", "  ")
	logger.Debug(fmt.Sprintf("starting with config: \n %s", pretty))

	e := &engine{ctx: ctx, logger: logger, config: config}

	s, err := loadSchema(config, logger)
	if err != nil {
		logger.Fatal("loading schema", zap.Error(err))
	}

	e.store = schema.NewStore(s,
		schema.WithPath(config.SchemaFile),
		schema.WithAutoPersist(config.AutoPersist),
		schema.WithLogger(logger.Named("schema")),
	)
	e.store.OnChange(func([]string) { e.dirty = true })

	if config.PreferencesFile != "" {
		if err := profile.NewSyncer(config.PreferencesFile, logger.Named("profile")).Attach(e.store); err != nil {
			logger.Warn("preferences document not synced", zap.String("path", config.PreferencesFile), zap.Error(err))
		}
	}

	e.queue, err = governance.Open(config.PendingFile, e.store, governance.WithLogger(logger.Named("governance")))
	if err != nil {
		logger.Fatal("opening pending actions", zap.Error(err))
	}

	opts := []matcher.Option{
		matcher.WithLogger(logger.Named("matcher")),
		matcher.WithDefaultThreshold(config.Matching.Threshold),
		matcher.WithNearMiss(config.Matching.NearMiss),
		matcher.WithCacheSize(config.Matching.CacheSize),
	}

	if withAI {
		tier, err := ai.New(ctx, config.AI, logger.Named("ai"))
		if err != nil {
			logger.Warn("semantic matching unavailable", zap.Error(err))
		}
		if tier != nil {
			opts = append(opts, matcher.WithSemantic(*tier), matcher.WithTierTimeout(config.AI.TierTimeout()))
		}
	}

	e.matcher, err = matcher.New(e.store, e.queue, opts...)
	if err != nil {
		logger.Fatal("building matcher", zap.Error(err))
	}

	return e
}

// loadSchema reads the schema file. A missing file yields an empty schema
// only when the caller asked for it.
func loadSchema(config *Config, logger *zap.Logger) (*schema.Schema, error) {
	s, err := schema.Load(config.SchemaFile)
	if err == nil {
		logger.Debug("schema loaded", zap.String("path", config.SchemaFile), zap.Int("categories", s.Len()))
		return s, nil
	}

	if config.AllowMissingSchema && errors.Is(err, os.ErrNotExist) {
		logger.Warn("schema file not found, starting from an empty schema",
			zap.String("path", config.SchemaFile),
			zap.String("hint", "run 'prefcanon schema init' to write the built-in vocabulary"),
		)
		return schema.New(), nil
	}

	return nil, err
}

// close flushes the schema when auto-persist is off.
func (e *engine) close() {
	if e.config.AutoPersist || !e.dirty {
		return
	}

	if err := e.store.Save(); err != nil {
		e.logger.Fatal("saving schema", zap.Error(err))
	}
	e.logger.Info("schema saved", zap.String("path", e.store.Path()))
}

// check logs persistence failures, which leave the change applied in
// memory, and treats every other error as fatal.
func (e *engine) check(msg string, err error, fields ...zap.Field) {
	if err == nil {
		return
	}

	var schemaSave *schema.SaveError
	var queueSave *governance.SaveError
	if errors.As(err, &schemaSave) || errors.As(err, &queueSave) {
		e.logger.Warn(msg+" (not persisted)", append(fields, zap.Error(err))...)
		return
	}

	e.logger.Fatal(msg, append(fields, zap.Error(err))...)
}

func redacted(c *Config) Config {
	out := *c
	if out.AI.Gemini.APIKey != "" {
		out.AI.Gemini.APIKey = "***"
	}
	return out
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
