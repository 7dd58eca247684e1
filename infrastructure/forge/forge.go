// Package forge implements the upstream forge clients (GitHub and the
// Hugging Face hub) behind one capability set: fetch a thread, list threads
// and comments, post a reply.
package forge

import (
	"context"

	"github.com/dupbot/dupbot/domain/thread"
)

// Client is the forge capability set the reducer and job engine depend on.
// Implementations map their forge's API onto the canonical thread model.
type Client interface {
	// Source identifies the forge.
	Source() thread.Source
	// FetchThread returns the thread with the given number, including its
	// current title and body. A 404 surfaces as ErrNotFound, which callers
	// downgrade to a delete mutation.
	FetchThread(ctx context.Context, repository string, number int) (thread.Thread, error)
	// ListThreads returns one page of threads (open and closed) with the
	// cursor of the next page, empty when exhausted. An empty cursor
	// requests the first page.
	ListThreads(ctx context.Context, repository, cursor string) ([]thread.Thread, string, error)
	// ListComments returns one page of a thread's comments in creation
	// order, with the next-page cursor.
	ListComments(ctx context.Context, t thread.Thread, cursor string) ([]thread.Comment, string, error)
	// PostReply posts text as a comment on the thread.
	PostReply(ctx context.Context, t thread.Thread, text string) error
	// CommentsEnabled reports whether replies may be posted on this forge.
	// When false the suggestion path redirects to the Slack sink.
	CommentsEnabled() bool
}
