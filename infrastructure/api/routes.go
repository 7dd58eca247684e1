package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/api/jsonapi"
	"github.com/dupbot/dupbot/infrastructure/api/middleware"
	"github.com/dupbot/dupbot/internal/database"
	"github.com/dupbot/dupbot/internal/metrics"
)

// DefaultWebhookDeadline bounds inline webhook processing. Events that
// cannot finish in time fall back to a queued job.
const DefaultWebhookDeadline = 10 * time.Second

// Handlers holds the route implementations and their dependencies.
type Handlers struct {
	reducer         *service.Reducer
	jobs            job.Store
	db              database.Database
	metrics         *metrics.Metrics
	logger          *slog.Logger
	githubSecret    string
	hfSecret        string
	authToken       string
	botLogins       map[thread.Source]string
	webhookDeadline time.Duration
}

// HandlersConfig carries the secrets and tuning for NewHandlers.
type HandlersConfig struct {
	// GitHubSecret is the HMAC key for GitHub webhook signatures.
	GitHubSecret string
	// HuggingFaceSecret is the shared secret for hub webhook deliveries.
	HuggingFaceSecret string
	// AuthToken protects the management endpoints. Empty disables them.
	AuthToken string
	// BotLogins maps each forge to the bot's own account login.
	BotLogins map[thread.Source]string
	// WebhookDeadline bounds inline event processing. Zero means
	// DefaultWebhookDeadline.
	WebhookDeadline time.Duration
}

// NewHandlers creates the route implementations.
func NewHandlers(
	reducer *service.Reducer,
	jobs job.Store,
	db database.Database,
	m *metrics.Metrics,
	logger *slog.Logger,
	cfg HandlersConfig,
) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	deadline := cfg.WebhookDeadline
	if deadline <= 0 {
		deadline = DefaultWebhookDeadline
	}

	return &Handlers{
		reducer:         reducer,
		jobs:            jobs,
		db:              db,
		metrics:         m,
		logger:          logger,
		githubSecret:    cfg.GitHubSecret,
		hfSecret:        cfg.HuggingFaceSecret,
		authToken:       cfg.AuthToken,
		botLogins:       cfg.BotLogins,
		webhookDeadline: deadline,
	}
}

// Mount registers all routes on the router.
func (h *Handlers) Mount(r chi.Router) {
	r.Use(middleware.Logging(h.logger))
	r.Use(middleware.Metrics(h.metrics))

	r.Post("/webhook/github", h.githubWebhook)
	r.Post("/webhook/hf", h.huggingfaceWebhook)

	r.Group(func(r chi.Router) {
		r.Use(middleware.BearerAuth(h.authToken))
		r.Post("/index/{owner}/{repo}", h.indexRepository)
		r.Post("/index-issue", h.indexThread)
		r.Post("/regenerate-embeddings", h.regenerateEmbeddings)
	})

	r.Get("/health", h.health)
}

// indexRepository enqueues a full backfill of one repository. Enqueueing
// again while the backfill is queued returns the existing job.
func (h *Handlers) indexRepository(w http.ResponseWriter, r *http.Request) {
	repository := chi.URLParam(r, "owner") + "/" + chi.URLParam(r, "repo")

	source := thread.SourceGitHub
	if s := r.URL.Query().Get("source"); s != "" {
		source = thread.Source(s)
	}
	switch source {
	case thread.SourceGitHub, thread.SourceHuggingFace:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid source",
			"source must be github or huggingface")
		return
	}

	j := job.New(job.TypeIssueIndexation, job.IndexationScope(repository),
		job.Data{Source: string(source)})
	h.enqueue(w, r, j)
}

// indexThreadRequest is the body of POST /index-issue.
type indexThreadRequest struct {
	Source     string `json:"source"`
	Repository string `json:"repository"`
	Number     int    `json:"number"`
	Kind       string `json:"kind"`
}

// indexThread enqueues ingestion of one thread.
func (h *Handlers) indexThread(w http.ResponseWriter, r *http.Request) {
	var req indexThreadRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "malformed body", err.Error())
		return
	}

	source := thread.SourceGitHub
	if req.Source != "" {
		source = thread.Source(req.Source)
	}
	switch source {
	case thread.SourceGitHub, thread.SourceHuggingFace:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid source",
			"source must be github or huggingface")
		return
	}

	kind := thread.KindIssue
	if req.Kind != "" {
		kind = thread.Kind(req.Kind)
	}
	switch kind {
	case thread.KindIssue, thread.KindPull, thread.KindDiscussion:
	default:
		h.writeError(w, http.StatusBadRequest, "invalid kind",
			"kind must be issue, pull, or discussion")
		return
	}

	if !strings.Contains(req.Repository, "/") || req.Number <= 0 {
		h.writeError(w, http.StatusBadRequest, "invalid request",
			"repository must be owner/name and number must be positive")
		return
	}

	j := job.New(job.TypeThreadIngest, job.ThreadIngestScope(req.Repository, req.Number),
		job.Data{Source: string(source), Kind: string(kind), Number: req.Number})
	h.enqueue(w, r, j)
}

// regenerateEmbeddings enqueues the regeneration singleton. A second
// request while one is queued is a no-op.
func (h *Handlers) regenerateEmbeddings(w http.ResponseWriter, r *http.Request) {
	j := job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{})
	h.enqueue(w, r, j)
}

func (h *Handlers) enqueue(w http.ResponseWriter, r *http.Request, j job.Job) {
	queued, created, err := h.jobs.Enqueue(r.Context(), j)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "enqueue failed", err.Error())
		return
	}

	resource := jsonapi.NewResource("job", strconv.FormatInt(queued.ID(), 10), map[string]any{
		"job_type": string(queued.Type()),
		"scope":    queued.Scope(),
		"created":  created,
	})
	h.writeDocument(w, http.StatusAccepted, jsonapi.NewSingleResponse(resource))
}

// health reports whether the database answers a trivial query.
func (h *Handlers) health(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Session(r.Context()).Exec("SELECT 1").Error; err != nil {
		h.writeError(w, http.StatusServiceUnavailable, "database unreachable", err.Error())
		return
	}
	h.writeStatus(w, http.StatusOK, "ok")
}

func (h *Handlers) writeDocument(w http.ResponseWriter, status int, doc *jsonapi.Document) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(doc); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) writeStatus(w http.ResponseWriter, status int, outcome string) {
	h.writeDocument(w, status, &jsonapi.Document{Meta: &jsonapi.Meta{"status": outcome}})
}

func (h *Handlers) writeError(w http.ResponseWriter, status int, title, detail string) {
	doc := jsonapi.NewErrorResponse(jsonapi.NewError(strconv.Itoa(status), title, detail))
	h.writeDocument(w, status, doc)
}
