// Package generator produces quest content through an OpenAI-compatible
// chat completion endpoint.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	oaishared "github.com/openai/openai-go/v3/shared"

	"github.com/questforge/questbot/internal/domain/quest"
	"github.com/questforge/questbot/internal/domain/shared"
	"github.com/questforge/questbot/pkg/logger"
	"github.com/questforge/questbot/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains configuration for the quest generator.
type Config struct {
	// APIKey authenticates against the completion endpoint.
	APIKey string

	// BaseURL overrides the endpoint for OpenAI-compatible providers.
	BaseURL string

	// Model is the chat model name.
	Model string

	// Timeout bounds a single completion request.
	Timeout time.Duration

	// Temperature controls how varied the quests are.
	Temperature float64

	// RateLimiter throttles outgoing requests during broadcasts.
	RateLimiter RateLimiterConfig

	// Logger for structured logging.
	Logger *slog.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Model:       "gpt-4o-mini",
		Timeout:     30 * time.Second,
		Temperature: 0.9,
		RateLimiter: DefaultRateLimiterConfig(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// CLIENT
// ══════════════════════════════════════════════════════════════════════════════

// completer is the part of the SDK the generator needs.
type completer interface {
	Complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error)
}

type sdkCompleter struct {
	client openai.Client
}

func (c sdkCompleter) Complete(ctx context.Context, params openai.ChatCompletionNewParams) (string, error) {
	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("completion has no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// Generator implements quest.Generator on top of a chat completion API.
type Generator struct {
	config  Config
	api     completer
	limiter *RateLimiter
	logger  *slog.Logger
}

var _ quest.Generator = (*Generator)(nil)

// New creates a generator backed by the OpenAI SDK.
// Retries are disabled in the SDK; the issuing command owns the retry policy.
func New(config Config) (*Generator, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, errors.New("generator: api key is required")
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}
	if config.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(config.Timeout))
	}

	return newGenerator(config, sdkCompleter{client: openai.NewClient(opts...)}), nil
}

func newGenerator(config Config, api completer) *Generator {
	defaults := DefaultConfig()
	if config.Model == "" {
		config.Model = defaults.Model
	}
	if config.RateLimiter.RequestsPerSecond <= 0 {
		config.RateLimiter = defaults.RateLimiter
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	return &Generator{
		config:  config,
		api:     api,
		limiter: NewRateLimiter(config.RateLimiter),
		logger:  config.Logger.With(logger.Component("generator")),
	}
}

// Generate asks the model for a quest of the requested type.
func (g *Generator) Generate(ctx context.Context, req quest.GenerateRequest) (*quest.Generated, error) {
	if !req.Type.IsValid() {
		return nil, retry.Permanent(shared.Generation("Generate", fmt.Sprintf("unknown quest type %q", req.Type), nil))
	}

	if err := g.limiter.Allow(ctx); err != nil {
		return nil, shared.Generation("Generate", "rate limited", err)
	}

	start := time.Now()
	content, err := g.api.Complete(ctx, g.params(req))
	if err != nil {
		return nil, g.classify(err)
	}

	generated, err := Parse(content, req.Type)
	if err != nil {
		g.logger.Warn("malformed generator payload",
			logger.QuestType(string(req.Type)),
			slog.Int("length", len(content)),
			logger.Err(err),
		)
		return nil, err
	}

	g.logger.Debug("quest generated",
		logger.QuestType(string(req.Type)),
		slog.Int("tasks", len(generated.Tasks)),
		logger.Latency(time.Since(start)),
	)
	return generated, nil
}

func (g *Generator) params(req quest.GenerateRequest) openai.ChatCompletionNewParams {
	system, user := buildPrompt(req)

	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.config.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(system),
			openai.UserMessage(user),
		},
		ResponseFormat: openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &oaishared.ResponseFormatJSONObjectParam{},
		},
	}
	if g.config.Temperature > 0 {
		params.Temperature = openai.Float(g.config.Temperature)
	}
	return params
}

// classify maps SDK failures to generation errors. Client errors other than
// 429 are not worth retrying.
func (g *Generator) classify(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		status := apiErr.StatusCode
		genErr := shared.Generation("Generate", fmt.Sprintf("completion failed with status %d", status), err)

		if status == http.StatusTooManyRequests {
			g.limiter.RecordRateLimitHit(0)
			return genErr
		}
		if status >= 400 && status < 500 {
			return retry.Permanent(genErr)
		}
		return genErr
	}

	return shared.Generation("Generate", "completion request failed", err)
}
