package thread

import "time"

// Comment is a single comment, review, or review comment on a thread.
type Comment struct {
	id          int64
	sourceID    string
	threadID    int64
	body        string
	url         string
	authorLogin string
	createdAt   time.Time
	updatedAt   time.Time
}

// NewComment creates a Comment.
func NewComment(sourceID, body string, opts ...CommentOption) Comment {
	c := Comment{sourceID: sourceID, body: body}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}

// CommentOption is a functional option for Comment.
type CommentOption func(*Comment)

// CommentWithID sets the database identifier.
func CommentWithID(id int64) CommentOption {
	return func(c *Comment) { c.id = id }
}

// CommentWithThreadID sets the owning thread's database identifier.
func CommentWithThreadID(threadID int64) CommentOption {
	return func(c *Comment) { c.threadID = threadID }
}

// CommentWithURL sets the browser URL.
func CommentWithURL(url string) CommentOption {
	return func(c *Comment) { c.url = url }
}

// CommentWithAuthorLogin sets the author login.
func CommentWithAuthorLogin(login string) CommentOption {
	return func(c *Comment) { c.authorLogin = login }
}

// CommentWithTimestamps sets creation and update times.
func CommentWithTimestamps(createdAt, updatedAt time.Time) CommentOption {
	return func(c *Comment) { c.createdAt = createdAt; c.updatedAt = updatedAt }
}

// ID returns the database identifier, zero for unsaved comments.
func (c Comment) ID() int64 { return c.id }

// SourceID returns the globally unique identifier.
func (c Comment) SourceID() string { return c.sourceID }

// ThreadID returns the owning thread's database identifier.
func (c Comment) ThreadID() int64 { return c.threadID }

// Body returns the comment body.
func (c Comment) Body() string { return c.body }

// URL returns the browser URL.
func (c Comment) URL() string { return c.url }

// AuthorLogin returns the author login.
func (c Comment) AuthorLogin() string { return c.authorLogin }

// CreatedAt returns the creation time.
func (c Comment) CreatedAt() time.Time { return c.createdAt }

// UpdatedAt returns the last update time.
func (c Comment) UpdatedAt() time.Time { return c.updatedAt }

// WithBody returns a copy with a new body.
func (c Comment) WithBody(body string) Comment {
	c.body = body
	return c
}
