package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dupbot/dupbot/application/handler"
	"github.com/dupbot/dupbot/application/service"
	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/api"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/persistence"
	"github.com/dupbot/dupbot/infrastructure/provider"
	"github.com/dupbot/dupbot/infrastructure/slack"
	"github.com/dupbot/dupbot/internal/config"
	"github.com/dupbot/dupbot/internal/database"
	"github.com/dupbot/dupbot/internal/log"
	"github.com/dupbot/dupbot/internal/metrics"
)

const (
	probeTimeout    = 10 * time.Second
	shutdownTimeout = 15 * time.Second
)

func runServe(configPath, envFile string) error {
	if err := config.LoadDotEnv(envFile); err != nil {
		return err
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := log.NewLogger(cfg)
	slogger := logger.Slog()
	logger.SetDefault()

	attrs := append([]slog.Attr{slog.String("version", version)}, cfg.LogAttrs()...)
	slogger.LogAttrs(context.Background(), slog.LevelInfo, "starting dupbot", attrs...)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.New()

	db, err := database.NewDatabase(ctx, cfg.Database().ConnectionString())
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			slogger.Error("failed to close database", slog.Any("error", err))
		}
	}()
	if err := db.ConfigurePool(cfg.Database().MaxConnections(), cfg.Database().MaxConnections()/2, time.Hour); err != nil {
		return fmt.Errorf("configure connection pool: %w", err)
	}

	if err := persistence.Migrate(ctx, db, cfg.Model().EmbeddingsSize()); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	embedder := provider.NewEmbeddingClient(
		cfg.EmbeddingAPI().URL(),
		cfg.EmbeddingAPI().AuthToken(),
		cfg.Model().EmbeddingsSize(),
		cfg.Model().MaxInputSize(),
		provider.WithLatencyObserver(m.ObserveEmbeddingLatency),
	)
	probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	if err := embedder.Probe(probeCtx); err != nil {
		return fmt.Errorf("probe embedding service: %w", err)
	}

	threads := persistence.NewThreadStore(db, embedder)
	jobs := persistence.NewJobStore(db)

	if err := enqueueRegenerationIfStale(ctx, threads, jobs, embedder.Dimension(), slogger); err != nil {
		return err
	}

	clients := map[thread.Source]forge.Client{
		thread.SourceGitHub:      forge.NewGitHubClient(cfg.GitHub().AuthToken(), cfg.GitHub().CommentsEnabled()),
		thread.SourceHuggingFace: forge.NewHuggingFaceClient(cfg.HuggingFace().AuthToken(), cfg.HuggingFace().CommentsEnabled()),
	}
	botLogins := map[thread.Source]string{
		thread.SourceGitHub:      cfg.GitHub().BotLogin(),
		thread.SourceHuggingFace: cfg.HuggingFace().BotLogin(),
	}

	var slackClient *slack.Client
	if cfg.Slack().IsConfigured() {
		slackClient = slack.NewClient(cfg.Slack().AuthToken(), cfg.Slack().Channel(), cfg.Slack().ChatWriteURL())
	}

	var summarizer service.Summarizer
	if s := cfg.SummarizationAPI(); s.IsConfigured() {
		summarizer = provider.NewSummarizer(s.URL(), s.AuthToken(), s.Model(), s.SystemPrompt(), s.SpecialTokens())
	}

	ingestor := service.NewIngestor(threads, clients, botLogins, m, slogger)
	suggester := service.NewSuggester(
		threads, clients, slackClient, summarizer,
		cfg.Suggestion().Limit(), cfg.Suggestion().ScoreFloor(),
		cfg.Message().Pre(), cfg.Message().Post(),
		m, slogger,
	)
	reducer := service.NewReducer(threads, jobs, ingestor, suggester, m, slogger)

	engine := service.NewEngine(jobs, m, slogger)
	engine.Register(job.TypeIssueIndexation, handler.NewBackfill(ingestor, clients, slogger))
	engine.Register(job.TypeThreadIngest, handler.NewThreadIngest(ingestor))
	engine.Register(job.TypeEmbeddingsRegeneration, handler.NewRegeneration(threads, slogger))

	handlers := api.NewHandlers(reducer, jobs, db, m, slogger, api.HandlersConfig{
		GitHubSecret:      cfg.GitHub().WebhookSecret(),
		HuggingFaceSecret: cfg.HuggingFace().WebhookSecret(),
		AuthToken:         cfg.AuthToken(),
		BotLogins:         botLogins,
		WebhookDeadline:   config.DefaultWebhookDeadline,
	})
	server := api.NewServer(cfg.Server().Addr(), slogger)
	handlers.Mount(server.Router())

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", m.Handler())
	metricsServer := &http.Server{
		Addr:              cfg.Server().MetricsAddr(),
		Handler:           metricsMux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	engine.Start(ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(server.Start)
	g.Go(func() error {
		slogger.Info("starting metrics server", slog.String("addr", metricsServer.Addr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("metrics server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slogger.Info("shutting down")

		engine.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slogger.Error("api shutdown error", slog.Any("error", err))
		}
		return metricsServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// enqueueRegenerationIfStale compares the dimensionality of stored embeddings
// against what the configured model produces and queues the regeneration
// singleton when they diverge. An empty index has nothing to regenerate.
func enqueueRegenerationIfStale(
	ctx context.Context,
	threads *persistence.ThreadStore,
	jobs *persistence.JobStore,
	want int,
	logger *slog.Logger,
) error {
	stored, err := threads.Dimension(ctx)
	if err != nil {
		return fmt.Errorf("inspect stored embeddings: %w", err)
	}
	if stored == 0 || stored == want {
		return nil
	}

	_, created, err := jobs.Enqueue(ctx,
		job.New(job.TypeEmbeddingsRegeneration, job.RegenerationScope(), job.Data{}))
	if err != nil {
		return fmt.Errorf("enqueue embeddings regeneration: %w", err)
	}
	logger.Warn("stored embeddings do not match the configured model, regeneration queued",
		slog.Int("stored_dimension", stored),
		slog.Int("model_dimension", want),
		slog.Bool("newly_queued", created))
	return nil
}
