package api

import (
	"context"
	"crypto/subtle"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/go-github/v60/github"

	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/internal/log"
)

// maxWebhookBody bounds webhook payload reads.
const maxWebhookBody = 1 << 20

// githubWebhook verifies the X-Hub-Signature-256 HMAC over the raw body,
// classifies the event, and applies it. A bad signature or malformed body
// is a 400 with no side effects.
func (h *Handlers) githubWebhook(w http.ResponseWriter, r *http.Request) {
	payload, err := github.ValidatePayload(r, []byte(h.githubSecret))
	if err != nil {
		h.metrics.WebhookEvent("github", "bad_signature")
		h.writeError(w, http.StatusBadRequest, "bad signature", err.Error())
		return
	}

	event, err := github.ParseWebHook(github.WebHookType(r), payload)
	if err != nil {
		h.metrics.WebhookEvent("github", "malformed")
		h.writeError(w, http.StatusBadRequest, "malformed payload", err.Error())
		return
	}

	ctx := log.WithDeliveryID(r.Context(), r.Header.Get("X-GitHub-Delivery"))
	ev, ok := forge.GitHubEvent(event, h.botLogins[thread.SourceGitHub])
	if !ok {
		// Well-formed but carries no indexing consequence.
		h.metrics.WebhookEvent("github", "unsupported")
		h.writeStatus(w, http.StatusOK, "unsupported")
		return
	}

	h.applyEvent(ctx, w, "github", ev)
}

// huggingfaceWebhook verifies the shared secret in X-Webhook-Secret, which
// is how the hub authenticates deliveries.
func (h *Handlers) huggingfaceWebhook(w http.ResponseWriter, r *http.Request) {
	presented := r.Header.Get("X-Webhook-Secret")
	if h.hfSecret == "" ||
		subtle.ConstantTimeCompare([]byte(presented), []byte(h.hfSecret)) != 1 {
		h.metrics.WebhookEvent("huggingface", "bad_signature")
		h.writeError(w, http.StatusBadRequest, "bad signature", "webhook secret mismatch")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		h.metrics.WebhookEvent("huggingface", "malformed")
		h.writeError(w, http.StatusBadRequest, "malformed payload", err.Error())
		return
	}

	ev, ok, err := forge.ParseHuggingFaceEvent(body, h.botLogins[thread.SourceHuggingFace])
	if err != nil {
		h.metrics.WebhookEvent("huggingface", "malformed")
		h.writeError(w, http.StatusBadRequest, "malformed payload", err.Error())
		return
	}
	if !ok {
		h.metrics.WebhookEvent("huggingface", "unsupported")
		h.writeStatus(w, http.StatusOK, "unsupported")
		return
	}

	h.applyEvent(r.Context(), w, "huggingface", ev)
}

// applyEvent runs the reducer under the webhook deadline. Store failures
// are the only 500: the forge retries the delivery on its side. Everything
// else is acknowledged with 202 so the forge does not re-deliver work that
// was applied, queued, or deliberately dropped.
func (h *Handlers) applyEvent(ctx context.Context, w http.ResponseWriter, source string, ev thread.Event) {
	ctx, cancel := context.WithTimeout(ctx, h.webhookDeadline)
	defer cancel()

	outcome, err := h.reducer.Apply(ctx, ev)
	if err != nil {
		h.metrics.WebhookEvent(source, "error")
		h.logger.Error("webhook event failed",
			slog.String("source", source),
			slog.String("event", ev.EventName()),
			slog.String("error", err.Error()))
		h.writeError(w, http.StatusInternalServerError, "store failure", err.Error())
		return
	}

	h.metrics.WebhookEvent(source, outcome.String())
	h.writeStatus(w, http.StatusAccepted, outcome.String())
}
