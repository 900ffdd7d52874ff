package openai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"golang.org/x/time/rate"

	"github.com/marr05/RAG-TO-AWS/internal/platform/envutil"
	"github.com/marr05/RAG-TO-AWS/internal/platform/logger"
)

type Config struct {
	APIKey            string
	BaseURL           string
	ChatModel         string
	EmbedModel        string
	Temperature       *float64
	Timeout           time.Duration
	MaxRetries        int
	RequestsPerSecond float64

	// HTTPClient overrides the transport; nil uses the SDK default.
	HTTPClient *http.Client
}

// ConfigFromEnv reads OPENAI_* variables. The API key is required by NewClient, not here.
func ConfigFromEnv() Config {
	cfg := Config{
		APIKey:            strings.TrimSpace(envutil.String("OPENAI_API_KEY", "")),
		BaseURL:           strings.TrimSpace(envutil.String("OPENAI_BASE_URL", "")),
		ChatModel:         envutil.String("OPENAI_MODEL", "gpt-4o-mini"),
		EmbedModel:        envutil.String("OPENAI_EMBED_MODEL", "text-embedding-3-small"),
		Timeout:           envutil.Seconds("OPENAI_TIMEOUT_SECONDS", 120),
		MaxRetries:        envutil.Int("OPENAI_MAX_RETRIES", 2),
		RequestsPerSecond: envutil.Float("OPENAI_REQUESTS_PER_SECOND", 5),
	}
	if !envutil.Bool("OPENAI_DISABLE_TEMPERATURE", false) {
		t := envutil.Float("OPENAI_TEMPERATURE", 0.2)
		cfg.Temperature = &t
	}
	return cfg
}

// Client is the embedding + chat surface the RAG services consume.
type Client interface {
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
	Complete(ctx context.Context, system, user string) (string, error)
}

type client struct {
	log     *logger.Logger
	sdk     oai.Client
	cfg     Config
	limiter *rate.Limiter
}

func NewClient(log *logger.Logger, cfg Config) (Client, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	if cfg.ChatModel == "" || cfg.EmbedModel == "" {
		return nil, fmt.Errorf("openai chat and embedding models are required")
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}

	c := &client{
		log:     log.With("service", "OpenAIClient"),
		sdk:     oai.NewClient(opts...),
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, 1),
	}
	c.log.Info("OpenAI client configured", "chat_model", cfg.ChatModel, "embed_model", cfg.EmbedModel, "base_url", cfg.BaseURL)
	return c, nil
}

func (c *client) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if len(inputs) == 0 {
		return [][]float32{}, nil
	}
	clean := make([]string, len(inputs))
	for i, s := range inputs {
		s = strings.TrimSpace(s)
		if s == "" {
			s = " "
		}
		clean[i] = s
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	resp, err := c.sdk.Embeddings.New(ctx, oai.EmbeddingNewParams{
		Model: oai.EmbeddingModel(c.cfg.EmbedModel),
		Input: oai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: clean},
	})
	if err != nil {
		return nil, describe("embeddings", err)
	}

	out := make([][]float32, len(clean))
	for _, d := range resp.Data {
		idx := int(d.Index)
		if idx < 0 || idx >= len(out) {
			continue
		}
		vec := make([]float32, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float32(f)
		}
		out[idx] = vec
	}
	for i := range out {
		if len(out[i]) == 0 {
			return nil, fmt.Errorf("openai embeddings missing index %d: requested=%d returned=%d model=%s", i, len(clean), len(resp.Data), c.cfg.EmbedModel)
		}
	}
	return out, nil
}

func (c *client) Complete(ctx context.Context, system, user string) (string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return "", err
	}
	messages := make([]oai.ChatCompletionMessageParamUnion, 0, 2)
	if strings.TrimSpace(system) != "" {
		messages = append(messages, oai.SystemMessage(system))
	}
	messages = append(messages, oai.UserMessage(user))

	params := oai.ChatCompletionNewParams{
		Model:    oai.ChatModel(c.cfg.ChatModel),
		Messages: messages,
	}
	if c.cfg.Temperature != nil {
		params.Temperature = oai.Float(*c.cfg.Temperature)
	}

	resp, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", describe("chat.completions", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai chat.completions returned no choices (model=%s)", c.cfg.ChatModel)
	}
	return resp.Choices[0].Message.Content, nil
}

func describe(op string, err error) error {
	var apiErr *oai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("openai %s failed (status=%d): %w", op, apiErr.StatusCode, err)
	}
	return fmt.Errorf("openai %s failed: %w", op, err)
}
