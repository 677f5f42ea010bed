package gemini

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"google.golang.org/genai"

	"github.com/spigell/prefcanon/internal/logger"
	"github.com/spigell/prefcanon/internal/utils"
)

const (
	Provider = "gemini"

	defaultModel          = "gemini-2.5-flash"
	defaultEmbeddingModel = "gemini-embedding-001"
	defaultMaxRetries     = 3
	defaultMaxLogLength   = 200

	baseRetryDelay = time.Second
	maxQuotaDelay  = 10 * time.Second
)

var wait = utils.WaitFor

var retryAfterPattern = regexp.MustCompile(`(?i)retry (?:after|in) (\d+(?:\.\d+)?)\s*s`)

type modelsAPI interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

type Config struct {
	APIKey         string
	Model          string
	EmbeddingModel string
	MaxRetries     int
	MaxLogLength   int
}

// Client is a thin wrapper over the GenAI models service with retries for
// temporary failures.
type Client struct {
	models         modelsAPI
	model          string
	embeddingModel string
	maxRetries     int
	maxLogLen      int
	logger         *zap.Logger
}

// NewClient creates a client for the Gemini API backend.
func NewClient(ctx context.Context, cfg Config, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("gemini api key is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}

	return newClient(client.Models, cfg, log), nil
}

func newClient(models modelsAPI, cfg Config, log *zap.Logger) *Client {
	c := &Client{
		models:         models,
		model:          strings.TrimSpace(cfg.Model),
		embeddingModel: strings.TrimSpace(cfg.EmbeddingModel),
		maxRetries:     cfg.MaxRetries,
		maxLogLen:      cfg.MaxLogLength,
	}

	if c.model == "" {
		c.model = defaultModel
	}
	if c.embeddingModel == "" {
		c.embeddingModel = defaultEmbeddingModel
	}
	if c.maxRetries <= 0 {
		c.maxRetries = defaultMaxRetries
	}
	if c.maxLogLen <= 0 {
		c.maxLogLen = defaultMaxLogLength
	}
	c.logger = logger.WithCommonFields(log, Provider, c.model)

	return c
}

func (c *Client) Model() string {
	return c.model
}

func (c *Client) EmbeddingModel() string {
	return c.embeddingModel
}

// Generate sends prompt with the given system instruction and returns the
// concatenated text of the response.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	cfg := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		Temperature:      genai.Ptr[float32](0),
	}
	if system = strings.TrimSpace(system); system != "" {
		cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	c.logger.Debug("gemini generate content request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.maxLogLen)),
	)

	var resp *genai.GenerateContentResponse
	err := c.retry(ctx, "generate content", func() error {
		var err error
		resp, err = c.models.GenerateContent(ctx, c.model, genai.Text(prompt), cfg)
		return err
	})
	if err != nil {
		return "", err
	}

	output := responseText(resp)
	if output == "" {
		return "", errors.New("gemini api returned empty response")
	}

	c.logger.Debug("gemini generate content response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, c.maxLogLen)),
	)

	return output, nil
}

// Embed returns one vector per input text, in order.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	contents := make([]*genai.Content, 0, len(texts))
	for _, text := range texts {
		contents = append(contents, &genai.Content{
			Role:  genai.RoleUser,
			Parts: []*genai.Part{{Text: text}},
		})
	}

	cfg := &genai.EmbedContentConfig{TaskType: "SEMANTIC_SIMILARITY"}

	var resp *genai.EmbedContentResponse
	err := c.retry(ctx, "embed content", func() error {
		var err error
		resp, err = c.models.EmbedContent(ctx, c.embeddingModel, contents, cfg)
		return err
	})
	if err != nil {
		return nil, err
	}

	if resp == nil || len(resp.Embeddings) != len(texts) {
		got := 0
		if resp != nil {
			got = len(resp.Embeddings)
		}
		return nil, fmt.Errorf("gemini api returned %d embeddings for %d texts", got, len(texts))
	}

	vectors := make([][]float32, len(texts))
	for i, e := range resp.Embeddings {
		if e == nil || len(e.Values) == 0 {
			return nil, fmt.Errorf("gemini api returned empty embedding for text %d", i)
		}
		vectors[i] = e.Values
	}

	c.logger.Debug("gemini embed content", zap.String("model", c.embeddingModel), zap.Int("texts", len(texts)))
	return vectors, nil
}

func (c *Client) retry(ctx context.Context, op string, call func() error) error {
	var err error
	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		err = call()
		if err == nil {
			return nil
		}

		delay, ok := retryDelay(err, attempt)
		if !ok || attempt == c.maxRetries {
			break
		}

		c.logger.Warn("gemini request failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		if waitErr := wait(ctx, delay); waitErr != nil {
			return fmt.Errorf("%s: %w", op, waitErr)
		}
	}

	return fmt.Errorf("%s: %w", op, err)
}

// retryDelay reports whether err is temporary and how long to wait before the
// next attempt. Quota errors asking for a long pause are not retried.
func retryDelay(err error, attempt int) (time.Duration, bool) {
	var apiErr genai.APIError
	if !errors.As(err, &apiErr) {
		return 0, false
	}

	switch {
	case apiErr.Code == http.StatusTooManyRequests:
		delay := baseRetryDelay
		if m := retryAfterPattern.FindStringSubmatch(apiErr.Message); m != nil {
			if secs, perr := strconv.ParseFloat(m[1], 64); perr == nil {
				delay = time.Duration(secs * float64(time.Second))
			}
		}
		if delay > maxQuotaDelay {
			return 0, false
		}
		return delay, true
	case apiErr.Code >= http.StatusInternalServerError:
		return time.Duration(attempt) * baseRetryDelay, true
	default:
		return 0, false
	}
}

func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil {
		return ""
	}

	var builder strings.Builder
	for _, candidate := range resp.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			text := strings.TrimSpace(part.Text)
			if text == "" {
				continue
			}
			if builder.Len() > 0 {
				builder.WriteString("\n")
			}
			builder.WriteString(text)
		}
	}

	return strings.TrimSpace(builder.String())
}
