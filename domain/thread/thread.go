package thread

import (
	"strings"
	"time"
)

// ReplyMarker is embedded invisibly in every suggestion reply the bot posts.
// Comments containing it are classified as bot-authored even when the sender
// login is missing from the payload, which keeps the bot from indexing its
// own replies.
const ReplyMarker = "<!-- issue-bot-suggestion -->"

// Thread is the canonical representation of an issue, pull request, or
// discussion. Immutable; mutations go through the store, which owns the
// embedding lifecycle.
type Thread struct {
	id            int64
	sourceID      string
	source        Source
	repository    string
	kind          Kind
	number        int
	title         string
	body          string
	htmlURL       string
	apiURL        string
	authorLogin   string
	isPullRequest bool
	embedding     []float32
	createdAt     time.Time
	updatedAt     time.Time
}

// New creates a Thread from forge metadata. The source ID is derived from
// source, repository, kind, and number.
func New(source Source, repository string, kind Kind, number int, title, body string, opts ...Option) Thread {
	t := Thread{
		sourceID:      SourceID(source, repository, kind, number),
		source:        source,
		repository:    repository,
		kind:          kind,
		number:        number,
		title:         title,
		body:          body,
		isPullRequest: kind == KindPull,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Option is a functional option for Thread.
type Option func(*Thread)

// WithID sets the database identifier.
func WithID(id int64) Option {
	return func(t *Thread) { t.id = id }
}

// WithURLs sets the browser and API URLs.
func WithURLs(htmlURL, apiURL string) Option {
	return func(t *Thread) { t.htmlURL = htmlURL; t.apiURL = apiURL }
}

// WithAuthorLogin sets the author login.
func WithAuthorLogin(login string) Option {
	return func(t *Thread) { t.authorLogin = login }
}

// WithEmbedding sets the stored embedding.
func WithEmbedding(embedding []float32) Option {
	return func(t *Thread) {
		cp := make([]float32, len(embedding))
		copy(cp, embedding)
		t.embedding = cp
	}
}

// WithTimestamps sets creation and update times.
func WithTimestamps(createdAt, updatedAt time.Time) Option {
	return func(t *Thread) { t.createdAt = createdAt; t.updatedAt = updatedAt }
}

// ID returns the database identifier, zero for unsaved threads.
func (t Thread) ID() int64 { return t.id }

// SourceID returns the globally unique identifier.
func (t Thread) SourceID() string { return t.sourceID }

// Source returns the originating forge.
func (t Thread) Source() Source { return t.source }

// Repository returns the owner/name repository slug.
func (t Thread) Repository() string { return t.repository }

// Kind returns the thread kind.
func (t Thread) Kind() Kind { return t.kind }

// Number returns the thread number on its forge.
func (t Thread) Number() int { return t.number }

// Title returns the thread title.
func (t Thread) Title() string { return t.title }

// Body returns the thread body.
func (t Thread) Body() string { return t.body }

// HTMLURL returns the browser URL.
func (t Thread) HTMLURL() string { return t.htmlURL }

// APIURL returns the API URL.
func (t Thread) APIURL() string { return t.apiURL }

// AuthorLogin returns the author login.
func (t Thread) AuthorLogin() string { return t.authorLogin }

// IsPullRequest reports whether this thread is a pull request.
func (t Thread) IsPullRequest() bool { return t.isPullRequest }

// Embedding returns a copy of the stored embedding, nil when absent.
func (t Thread) Embedding() []float32 {
	if t.embedding == nil {
		return nil
	}
	cp := make([]float32, len(t.embedding))
	copy(cp, t.embedding)
	return cp
}

// CreatedAt returns the creation time.
func (t Thread) CreatedAt() time.Time { return t.createdAt }

// UpdatedAt returns the last update time.
func (t Thread) UpdatedAt() time.Time { return t.updatedAt }

// Edited returns a copy with a new title and body. A nil field keeps the
// current value, matching the partial payloads of edit events.
func (t Thread) Edited(title, body *string) Thread {
	if title != nil {
		t.title = *title
	}
	if body != nil {
		t.body = *body
	}
	return t
}

// CanonicalText builds the deterministic embedding input for a thread:
// title and body, then each non-bot comment body in creation order. It is
// the single definition the whole pipeline shares; the stored embedding is
// always the embedding of this text.
func CanonicalText(title, body string, comments []Comment) string {
	var b strings.Builder
	b.Grow(len(title) + len(body) + 64*len(comments))
	b.WriteString(title)
	b.WriteString("\n\n")
	b.WriteString(body)
	for _, c := range comments {
		b.WriteString("\n\n")
		b.WriteString(c.Body())
	}
	return b.String()
}

// IsBotAuthored classifies a comment as bot-authored when the author login
// matches the configured bot account or the body carries the reply marker.
// Both signals are honored; either one suffices.
func IsBotAuthored(authorLogin, body, botLogin string) bool {
	if botLogin != "" && authorLogin == botLogin {
		return true
	}
	return strings.Contains(body, ReplyMarker)
}
