package handlers

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/questforge/questbot/internal/infrastructure/external/telegram"
	"github.com/questforge/questbot/pkg/logger"
)

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// maxUpdateBytes bounds a single webhook body.
const maxUpdateBytes = 1 << 20

// UpdateDispatcher accepts an update for asynchronous processing.
type UpdateDispatcher interface {
	Dispatch(ctx context.Context, update *telegram.Update) error
}

// WebhookHandler receives Telegram updates pushed over HTTPS.
type WebhookHandler struct {
	dispatcher UpdateDispatcher
	secret     string
	logger     *slog.Logger
}

// NewWebhookHandler creates a webhook handler. An empty secret disables the
// token check.
func NewWebhookHandler(dispatcher UpdateDispatcher, secret string, log *slog.Logger) *WebhookHandler {
	if log == nil {
		log = slog.Default()
	}
	return &WebhookHandler{
		dispatcher: dispatcher,
		secret:     secret,
		logger:     log.With(logger.Component("webhook")),
	}
}

// ServeHTTP validates the secret, decodes the update and hands it to the bot.
// Telegram retries any non-2xx answer, so handler failures still answer 200.
func (h *WebhookHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.secret != "" {
		got := r.Header.Get(SecretTokenHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.secret)) != 1 {
			h.logger.WarnContext(r.Context(), "webhook secret mismatch",
				slog.String("remote_addr", r.RemoteAddr))
			RespondWithError(w, http.StatusUnauthorized, "invalid_secret", "")
			return
		}
	}

	var update telegram.Update
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUpdateBytes)).Decode(&update); err != nil {
		RespondWithError(w, http.StatusBadRequest, "invalid_update", err.Error())
		return
	}

	if err := h.dispatcher.Dispatch(r.Context(), &update); err != nil {
		h.logger.ErrorContext(r.Context(), "failed to dispatch update",
			slog.Int64("update_id", update.UpdateID), logger.Err(err))
	}

	w.WriteHeader(http.StatusOK)
}
