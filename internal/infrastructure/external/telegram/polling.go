package telegram

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/questforge/questbot/pkg/logger"
)

// UpdateHandler receives updates from polling or the webhook endpoint.
type UpdateHandler func(ctx context.Context, update *Update) error

// allowedUpdates limits deliveries to what the bot handles.
var allowedUpdates = []string{"message", "callback_query"}

// pollBackoff is the pause after a failed getUpdates.
const pollBackoff = 3 * time.Second

// getUpdates fetches the next batch after the stored offset.
func (c *Client) getUpdates(ctx context.Context, timeout int) ([]Update, error) {
	c.offsetMu.Lock()
	req := getUpdatesRequest{Offset: c.offset, Limit: 100, Timeout: timeout, AllowedUpdates: allowedUpdates}
	c.offsetMu.Unlock()

	var updates []Update
	if err := c.call(ctx, "getUpdates", req, &updates); err != nil {
		return nil, err
	}
	return updates, nil
}

// StartPolling long-polls getUpdates until ctx is cancelled. The offset is
// advanced before handler runs, so a failing update is not redelivered.
func (c *Client) StartPolling(ctx context.Context, timeout int, handler UpdateHandler) error {
	c.logger.Info("starting telegram long polling", slog.Int("timeout_sec", timeout))

	for {
		if ctx.Err() != nil {
			c.logger.Info("stopping telegram long polling")
			return ctx.Err()
		}

		updates, err := c.getUpdates(ctx, timeout)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				continue
			}
			c.logger.Warn("getUpdates failed", logger.Err(err))
			select {
			case <-ctx.Done():
			case <-time.After(pollBackoff):
			}
			continue
		}

		for i := range updates {
			u := &updates[i]
			c.offsetMu.Lock()
			if u.UpdateID >= c.offset {
				c.offset = u.UpdateID + 1
			}
			c.offsetMu.Unlock()

			if err := handler(ctx, u); err != nil {
				c.logger.Error("update handler failed",
					slog.Int64("update_id", u.UpdateID),
					logger.Err(err),
				)
			}
		}
	}
}

// commandEntity returns the bot_command entity that starts the message.
func commandEntity(msg *Message) (MessageEntity, bool) {
	if msg == nil || msg.Text == "" {
		return MessageEntity{}, false
	}
	for _, e := range msg.Entities {
		if e.Type == "bot_command" && e.Offset == 0 && e.Length > 1 && e.Length <= len(msg.Text) {
			return e, true
		}
	}
	return MessageEntity{}, false
}

// ExtractCommand returns the command without the slash and @botname suffix.
func ExtractCommand(msg *Message) string {
	e, ok := commandEntity(msg)
	if !ok {
		return ""
	}
	cmd, _, _ := strings.Cut(msg.Text[1:e.Length], "@")
	return cmd
}

// ExtractCommandArgs returns the text after the command.
func ExtractCommandArgs(msg *Message) string {
	e, ok := commandEntity(msg)
	if !ok {
		return ""
	}
	return strings.TrimSpace(msg.Text[e.Length:])
}
