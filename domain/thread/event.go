package thread

// Event is the internal algebra the webhook router reduces forge payloads
// into. The reducer consumes Events without knowing which forge or payload
// shape produced them.
type Event interface {
	// EventName returns a stable name for logging and metrics.
	EventName() string
}

// Opened signals a newly created thread.
type Opened struct {
	Thread      Thread
	AuthorIsBot bool
}

// EventName implements Event.
func (Opened) EventName() string { return "thread_opened" }

// Edited signals a title or body change. Nil fields were absent from the
// payload and keep their stored values.
type Edited struct {
	SourceID string
	Title    *string
	Body     *string
}

// EventName implements Event.
func (Edited) EventName() string { return "thread_edited" }

// Deleted signals thread removal; owned comments cascade.
type Deleted struct {
	SourceID string
}

// EventName implements Event.
func (Deleted) EventName() string { return "thread_deleted" }

// CommentCreated signals a new comment on an existing thread.
type CommentCreated struct {
	Comment        Comment
	ParentSourceID string
	AuthorIsBot    bool
}

// EventName implements Event.
func (CommentCreated) EventName() string { return "comment_created" }

// CommentEdited signals a comment body change.
type CommentEdited struct {
	SourceID       string
	ParentSourceID string
	NewBody        string
	AuthorIsBot    bool
}

// EventName implements Event.
func (CommentEdited) EventName() string { return "comment_edited" }

// CommentDeleted signals comment removal.
type CommentDeleted struct {
	SourceID       string
	ParentSourceID string
}

// EventName implements Event.
func (CommentDeleted) EventName() string { return "comment_deleted" }
