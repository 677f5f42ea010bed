package gemini

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/similarity"
)

//go:embed prompt.md
var promptTemplate string

const systemInstruction = "You are a precise vocabulary normalizer. Reply with JSON only."

type generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// SelectorStrategy asks the model to pick the candidate that means the same
// as the query.
type SelectorStrategy struct {
	client generator
	logger *zap.Logger
}

func NewSelectorStrategy(client generator, log *zap.Logger) *SelectorStrategy {
	return &SelectorStrategy{client: client, logger: logger.OrNop(log)}
}

func (s *SelectorStrategy) Name() string { return "selector" }

func (s *SelectorStrategy) BestMatch(ctx context.Context, query string, candidates []string) (similarity.Match, error) {
	if len(candidates) == 0 || strings.TrimSpace(query) == "" {
		return similarity.NoMatch, nil
	}

	raw, err := s.client.Generate(ctx, systemInstruction, buildPrompt(query, candidates))
	if err != nil {
		return similarity.NoMatch, err
	}

	match, err := parseSelection(raw, candidates)
	if err != nil {
		return similarity.NoMatch, err
	}

	if match.Index < 0 {
		s.logger.Debug("selector found no match", zap.String("query", query))
	}
	return match, nil
}

func buildPrompt(query string, candidates []string) string {
	var list strings.Builder
	for i, c := range candidates {
		fmt.Fprintf(&list, "%d. %s\n", i+1, c)
	}

	prompt := strings.ReplaceAll(promptTemplate, "{{QUERY}}", query)
	return strings.ReplaceAll(prompt, "{{CANDIDATES}}", strings.TrimRight(list.String(), "\n"))
}

// parseSelection maps the model answer back to a candidate. The answer may
// name the label or its number from the list.
func parseSelection(raw string, candidates []string) (similarity.Match, error) {
	var data map[string]any
	if err := json.Unmarshal([]byte(extractJSON(raw)), &data); err != nil {
		return similarity.NoMatch, fmt.Errorf("parse gemini response: %w", err)
	}

	label := coerceString(data["match"])
	score := coerceFloat(data["score"])
	if math.IsNaN(score) {
		score = 0
	}

	if label == "" || strings.EqualFold(label, "none") || strings.EqualFold(label, "null") {
		return similarity.NoMatch, nil
	}

	for i, c := range candidates {
		if c == label {
			return similarity.Match{Index: i, Score: similarity.Clamp(score)}, nil
		}
	}
	for i, c := range candidates {
		if strings.EqualFold(c, label) {
			return similarity.Match{Index: i, Score: similarity.Clamp(score)}, nil
		}
	}
	if n, err := strconv.Atoi(strings.TrimSuffix(label, ".")); err == nil && n >= 1 && n <= len(candidates) {
		return similarity.Match{Index: n - 1, Score: similarity.Clamp(score)}, nil
	}

	return similarity.NoMatch, fmt.Errorf("gemini selected unknown label %q", label)
}

func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func coerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	default:
		return ""
	}
}
