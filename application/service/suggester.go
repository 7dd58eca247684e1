package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/infrastructure/forge"
	"github.com/dupbot/dupbot/infrastructure/provider"
	"github.com/dupbot/dupbot/infrastructure/slack"
	"github.com/dupbot/dupbot/internal/metrics"
)

// nearestK is how many neighbors the store is asked for before the score
// floor and reply cap are applied.
const nearestK = 5

// Summarizer condenses a thread body into a short description with tags.
type Summarizer interface {
	Summarize(ctx context.Context, text, fallbackTitle string) (provider.Summary, error)
}

// Suggester runs the suggestion path for freshly opened threads: nearest
// neighbors from the store, score floor, reply cap, then delivery to the
// forge or, when commenting is disabled there, to Slack.
type Suggester struct {
	store      thread.Store
	clients    map[thread.Source]forge.Client
	slack      *slack.Client
	summarizer Summarizer
	limit      int
	scoreFloor float64
	messagePre string
	messagePost string
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewSuggester creates a Suggester. slackClient and summarizer may be nil.
func NewSuggester(
	store thread.Store,
	clients map[thread.Source]forge.Client,
	slackClient *slack.Client,
	summarizer Summarizer,
	limit int,
	scoreFloor float64,
	messagePre, messagePost string,
	m *metrics.Metrics,
	logger *slog.Logger,
) *Suggester {
	return &Suggester{
		store:       store,
		clients:     clients,
		slack:       slackClient,
		summarizer:  summarizer,
		limit:       limit,
		scoreFloor:  scoreFloor,
		messagePre:  messagePre,
		messagePost: messagePost,
		metrics:     m,
		logger:      logger,
	}
}

// Suggest posts the nearest prior threads for t. A thread without neighbors
// above the score floor produces nothing at all.
func (s *Suggester) Suggest(ctx context.Context, t thread.Thread) error {
	vector := t.Embedding()
	if len(vector) == 0 {
		stored, err := s.store.BySourceID(ctx, t.SourceID())
		if err != nil {
			return fmt.Errorf("load embedding of %s: %w", t.SourceID(), err)
		}
		vector = stored.Embedding()
	}
	if len(vector) == 0 {
		return fmt.Errorf("thread %s has no embedding", t.SourceID())
	}

	matches, err := s.store.Nearest(ctx, vector, nearestK, t.SourceID())
	if err != nil {
		return fmt.Errorf("nearest neighbors of %s: %w", t.SourceID(), err)
	}

	kept := make([]thread.Match, 0, s.limit)
	for _, m := range matches {
		if m.Score() < s.scoreFloor {
			continue
		}
		kept = append(kept, m)
		if len(kept) == s.limit {
			break
		}
	}
	if len(kept) == 0 {
		s.logger.Debug("no neighbors above score floor", slog.String("source_id", t.SourceID()))
		return nil
	}

	client := s.clients[t.Source()]
	if client != nil && client.CommentsEnabled() {
		if err := client.PostReply(ctx, t, s.renderReply(ctx, t, kept)); err != nil {
			return fmt.Errorf("post reply on %s: %w", t.SourceID(), err)
		}
		s.metrics.SuggestionMade("forge")
		return nil
	}

	if s.slack == nil {
		s.logger.Debug("suggestion suppressed, no sink configured",
			slog.String("source_id", t.SourceID()))
		return nil
	}
	if err := s.slack.ClosestThreads(ctx, t, kept); err != nil {
		return fmt.Errorf("notify slack for %s: %w", t.SourceID(), err)
	}
	s.metrics.SuggestionMade("slack")
	return nil
}

// renderReply builds the forge comment: configured preamble, one bullet per
// neighbor, configured closing, and the reply marker so the bot recognizes
// its own comment later.
func (s *Suggester) renderReply(ctx context.Context, t thread.Thread, matches []thread.Match) string {
	var b strings.Builder

	if s.summarizer != nil {
		summary, err := s.summarizer.Summarize(ctx, t.Body(), t.Title())
		if err != nil {
			// Degrade to a reply without the summary line.
			s.logger.Error("summarization failed",
				slog.String("source_id", t.SourceID()),
				slog.String("error", err.Error()))
		} else {
			b.WriteString("> ")
			b.WriteString(summary.Description)
			if len(summary.Tags) > 0 {
				b.WriteString("\n> Tags: ")
				b.WriteString(strings.Join(summary.Tags, ", "))
			}
			b.WriteString("\n\n")
		}
	}

	b.WriteString(s.messagePre)
	for i, m := range matches {
		mt := m.Thread()
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s ([#%d](%s))", mt.Title(), mt.Number(), mt.HTMLURL())
	}
	b.WriteString(s.messagePost)
	b.WriteString("\n\n")
	b.WriteString(thread.ReplyMarker)
	return b.String()
}
