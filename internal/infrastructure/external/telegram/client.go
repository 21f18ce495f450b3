// Package telegram is a small Telegram Bot API client: messages, inline and
// reply keyboards, callback answers, long polling and webhook management.
// Calls go through a retrier and, optionally, a circuit breaker.
package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/questforge/questbot/pkg/circuitbreaker"
	"github.com/questforge/questbot/pkg/logger"
	"github.com/questforge/questbot/pkg/retry"
)

const (
	defaultBaseURL = "https://api.telegram.org"

	// maxResponseBytes caps a decoded API response.
	maxResponseBytes = 8 << 20
)

// ClientConfig contains configuration for the Telegram client.
type ClientConfig struct {
	Token   string
	BaseURL string

	// Timeout bounds one HTTP request. It must exceed the polling timeout.
	Timeout time.Duration

	// Retrier retries transient failures (default: retry.TelegramRetrier).
	Retrier *retry.Retrier

	// Breaker stops calls while the API keeps failing. Optional.
	Breaker *circuitbreaker.CircuitBreaker

	// HTTPClient overrides the transport.
	HTTPClient *http.Client

	Logger *slog.Logger
	Debug  bool
}

// DefaultClientConfig returns the production settings for token.
func DefaultClientConfig(token string) ClientConfig {
	return ClientConfig{
		Token:   token,
		BaseURL: defaultBaseURL,
		Timeout: 90 * time.Second,
	}
}

// Client is the Telegram Bot API client.
type Client struct {
	config     ClientConfig
	httpClient *http.Client
	retrier    *retry.Retrier
	breaker    *circuitbreaker.CircuitBreaker
	logger     *slog.Logger

	offsetMu sync.Mutex
	offset   int64
}

// NewClient creates a new Telegram client.
func NewClient(config ClientConfig) *Client {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Retrier == nil {
		config.Retrier = retry.TelegramRetrier()
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: config.Timeout}
	}

	return &Client{
		config:     config,
		httpClient: httpClient,
		retrier:    config.Retrier,
		breaker:    config.Breaker,
		logger:     config.Logger.With(logger.Component("telegram_client")),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// METHODS
// ══════════════════════════════════════════════════════════════════════════════

// SendMessage sends a text message.
func (c *Client) SendMessage(ctx context.Context, params SendMessageParams) (*Message, error) {
	var msg Message
	if err := c.call(ctx, "sendMessage", params, &msg); err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return &msg, nil
}

// EditMessageText replaces the text and inline keyboard of a message.
// An edit that changes nothing is not an error.
func (c *Client) EditMessageText(ctx context.Context, chatID, messageID int64, text, parseMode string, keyboard *InlineKeyboardMarkup) error {
	req := editMessageTextRequest{
		ChatID:      chatID,
		MessageID:   messageID,
		Text:        text,
		ParseMode:   parseMode,
		ReplyMarkup: keyboard,
	}
	if err := c.call(ctx, "editMessageText", req, nil); err != nil && !IsMessageNotModified(err) {
		return fmt.Errorf("edit message text: %w", err)
	}
	return nil
}

// AnswerCallbackQuery stops the button spinner, optionally with a toast.
func (c *Client) AnswerCallbackQuery(ctx context.Context, callbackQueryID, text string, showAlert bool) error {
	req := answerCallbackQueryRequest{CallbackQueryID: callbackQueryID, Text: text}
	if text != "" {
		req.ShowAlert = showAlert
	}
	if err := c.call(ctx, "answerCallbackQuery", req, nil); err != nil {
		return fmt.Errorf("answer callback query: %w", err)
	}
	return nil
}

// SetWebhook points Telegram at url. secretToken comes back in the
// X-Telegram-Bot-Api-Secret-Token header of every delivery.
func (c *Client) SetWebhook(ctx context.Context, url, secretToken string, allowedUpdates []string) error {
	req := setWebhookRequest{URL: url, SecretToken: secretToken, AllowedUpdates: allowedUpdates}
	if err := c.call(ctx, "setWebhook", req, nil); err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	return nil
}

// DeleteWebhook switches the bot back to getUpdates.
func (c *Client) DeleteWebhook(ctx context.Context, dropPendingUpdates bool) error {
	if err := c.call(ctx, "deleteWebhook", deleteWebhookRequest{DropPendingUpdates: dropPendingUpdates}, nil); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	return nil
}

// GetMe returns the bot account. It doubles as a token check.
func (c *Client) GetMe(ctx context.Context) (*User, error) {
	var me User
	if err := c.call(ctx, "getMe", nil, &me); err != nil {
		return nil, fmt.Errorf("get me: %w", err)
	}
	return &me, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSPORT
// ══════════════════════════════════════════════════════════════════════════════

// call runs one API method through the breaker with retries. Flood control
// (429 with retry_after) is waited out before the next attempt.
func (c *Client) call(ctx context.Context, method string, req, result any) error {
	return c.retrier.Do(ctx, func(ctx context.Context) error {
		attempt := func(ctx context.Context) error {
			return c.do(ctx, method, req, result)
		}

		var err error
		if c.breaker != nil {
			err = c.breaker.Execute(ctx, attempt)
		} else {
			err = attempt(ctx)
		}
		if err == nil {
			return nil
		}
		if !isRetryableError(err) {
			return retry.Permanent(err)
		}

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
			wait := time.NewTimer(time.Duration(apiErr.RetryAfter) * time.Second)
			defer wait.Stop()
			select {
			case <-ctx.Done():
				return retry.Permanent(ctx.Err())
			case <-wait.C:
			}
		}
		return retry.Retryable(err)
	})
}

// do performs a single HTTP round trip and decodes result.
func (c *Client) do(ctx context.Context, method string, req, result any) error {
	var body io.Reader = http.NoBody
	if req != nil {
		raw, err := json.Marshal(req)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", method, err)
		}
		body = bytes.NewReader(raw)
	}

	endpoint := c.config.BaseURL + "/bot" + c.config.Token + "/" + method
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	if c.config.Debug {
		c.logger.DebugContext(ctx, "telegram api call", logger.Operation(method))
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		// The URL embeds the token; keep it out of logs and errors.
		var urlErr interface{ Unwrap() error }
		if errors.As(err, &urlErr) {
			err = urlErr.Unwrap()
		}
		return fmt.Errorf("%s: %w", method, err)
	}
	defer resp.Body.Close()

	var env apiResponse[json.RawMessage]
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&env); err != nil {
		return &APIError{Code: resp.StatusCode, Description: "unexpected response body"}
	}

	if !env.OK {
		apiErr := &APIError{Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		}
		return apiErr
	}

	if result != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, result); err != nil {
			return fmt.Errorf("decode %s result: %w", method, err)
		}
	}
	return nil
}
