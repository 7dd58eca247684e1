package thread

import "context"

// Embedder produces fixed-dimension embeddings for canonical text. The
// store owns one so every canonical-text mutation can refresh the embedding
// inside the same transaction.
type Embedder interface {
	// Embed returns the embedding of text.
	Embed(ctx context.Context, text string) ([]float32, error)
	// Dimension returns the dimensionality the embedder produces.
	Dimension() int
}

// Match is one nearest-neighbor result.
type Match struct {
	thread Thread
	score  float64
}

// NewMatch creates a Match.
func NewMatch(t Thread, score float64) Match {
	return Match{thread: t, score: score}
}

// Thread returns the matched thread.
func (m Match) Thread() Thread { return m.thread }

// Score returns the cosine similarity in [-1,1]. Higher is closer; the
// suggester's score floor keeps anti-correlated matches out of replies.
func (m Match) Score() float64 { return m.score }

// Store persists threads and comments and serves nearest-neighbor queries.
// Implementations serialize mutations per thread with a row-level lock and
// guarantee that the committed embedding always matches the committed
// canonical text.
type Store interface {
	// UpsertThread inserts or updates a thread by source ID, recomputing
	// the embedding from the canonical text within the same transaction.
	// Returns the stored thread.
	UpsertThread(ctx context.Context, t Thread) (Thread, error)
	// UpsertComment inserts or updates a comment under the thread with
	// parentSourceID and refreshes the parent's embedding in the same
	// transaction.
	UpsertComment(ctx context.Context, parentSourceID string, c Comment) error
	// DeleteThread removes a thread and its comments. Deleting an unknown
	// source ID is a no-op.
	DeleteThread(ctx context.Context, sourceID string) error
	// DeleteComment removes a comment and refreshes the parent's embedding.
	// Deleting an unknown source ID is a no-op.
	DeleteComment(ctx context.Context, sourceID string) error
	// BySourceID returns the thread with the given source ID, or
	// database.ErrNotFound.
	BySourceID(ctx context.Context, sourceID string) (Thread, error)
	// Comments returns the thread's comments in creation order.
	Comments(ctx context.Context, threadID int64) ([]Comment, error)
	// Nearest returns up to k threads by cosine similarity to vector,
	// excluding the thread with excludeSourceID.
	Nearest(ctx context.Context, vector []float32, k int, excludeSourceID string) ([]Match, error)
	// ThreadsAfter returns up to limit threads with ID greater than afterID
	// in ID order. The regeneration job uses it as a resumable cursor.
	ThreadsAfter(ctx context.Context, afterID int64, limit int) ([]Thread, error)
	// RefreshEmbedding recomputes and stores the embedding of the thread
	// with the given source ID under its row lock.
	RefreshEmbedding(ctx context.Context, sourceID string) error
	// Dimension returns the dimensionality of stored vectors, or 0 when
	// no thread has an embedding yet.
	Dimension(ctx context.Context) (int, error)
}
