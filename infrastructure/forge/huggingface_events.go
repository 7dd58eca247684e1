package forge

import (
	"encoding/json"
	"fmt"

	"github.com/dupbot/dupbot/domain/thread"
)

// huggingFaceWebhook is the hub webhook envelope. Only the fields the event
// algebra needs are decoded.
type huggingFaceWebhook struct {
	Event struct {
		Action string `json:"action"`
		Scope  string `json:"scope"`
	} `json:"event"`
	Repo struct {
		Type string `json:"type"`
		Name string `json:"name"`
	} `json:"repo"`
	Discussion *struct {
		Num           int    `json:"num"`
		Title         string `json:"title"`
		Status        string `json:"status"`
		IsPullRequest bool   `json:"isPullRequest"`
		URL           struct {
			Web string `json:"web"`
			API string `json:"api"`
		} `json:"url"`
		Author struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"author"`
	} `json:"discussion"`
	Comment *struct {
		ID      string `json:"id"`
		Content string `json:"content"`
		Hidden  bool   `json:"hidden"`
		URL     struct {
			Web string `json:"web"`
		} `json:"url"`
		Author struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"author"`
	} `json:"comment"`
}

func (w huggingFaceWebhook) repository() string {
	switch w.Repo.Type {
	case "dataset":
		return "datasets/" + w.Repo.Name
	case "space":
		return "spaces/" + w.Repo.Name
	default:
		return w.Repo.Name
	}
}

// ParseHuggingFaceEvent decodes a hub webhook body and classifies it into
// the internal event algebra. The boolean is false for well-formed payloads
// that carry no indexing consequence (e.g. status changes).
func ParseHuggingFaceEvent(body []byte, botLogin string) (thread.Event, bool, error) {
	var w huggingFaceWebhook
	if err := json.Unmarshal(body, &w); err != nil {
		return nil, false, fmt.Errorf("decode huggingface webhook: %w", err)
	}

	switch w.Event.Scope {
	case "discussion":
		ev, ok := w.discussionEvent(botLogin)
		return ev, ok, nil
	case "discussion.comment":
		ev, ok := w.commentEvent(botLogin)
		return ev, ok, nil
	}
	return nil, false, nil
}

func (w huggingFaceWebhook) discussionEvent(botLogin string) (thread.Event, bool) {
	if w.Discussion == nil {
		return nil, false
	}

	kind := thread.KindDiscussion
	if w.Discussion.IsPullRequest {
		kind = thread.KindPull
	}
	repository := w.repository()
	sourceID := thread.SourceID(thread.SourceHuggingFace, repository, kind, w.Discussion.Num)

	switch w.Event.Action {
	case "create":
		// A new discussion ships its body as the attached comment.
		body := ""
		author := w.Discussion.Author.Name
		if w.Comment != nil {
			body = w.Comment.Content
		}
		t := thread.New(thread.SourceHuggingFace, repository, kind, w.Discussion.Num,
			w.Discussion.Title, body,
			thread.WithURLs(w.Discussion.URL.Web, w.Discussion.URL.API),
			thread.WithAuthorLogin(author),
		)
		return thread.Opened{
			Thread:      t,
			AuthorIsBot: thread.IsBotAuthored(author, body, botLogin),
		}, true
	case "update":
		return thread.Edited{
			SourceID: sourceID,
			Title:    &w.Discussion.Title,
		}, true
	case "delete":
		return thread.Deleted{SourceID: sourceID}, true
	}
	return nil, false
}

func (w huggingFaceWebhook) commentEvent(botLogin string) (thread.Event, bool) {
	if w.Discussion == nil || w.Comment == nil {
		return nil, false
	}

	kind := thread.KindDiscussion
	if w.Discussion.IsPullRequest {
		kind = thread.KindPull
	}
	repository := w.repository()
	parentID := thread.SourceID(thread.SourceHuggingFace, repository, kind, w.Discussion.Num)
	sourceID := thread.CommentSourceID(thread.SourceHuggingFace, repository, w.Comment.ID)
	isBot := thread.IsBotAuthored(w.Comment.Author.Name, w.Comment.Content, botLogin)

	switch w.Event.Action {
	case "create":
		return thread.CommentCreated{
			Comment: thread.NewComment(sourceID, w.Comment.Content,
				thread.CommentWithURL(w.Comment.URL.Web),
				thread.CommentWithAuthorLogin(w.Comment.Author.Name),
			),
			ParentSourceID: parentID,
			AuthorIsBot:    isBot,
		}, true
	case "update":
		// Hiding a comment retracts it from the canonical text.
		if w.Comment.Hidden {
			return thread.CommentDeleted{
				SourceID:       sourceID,
				ParentSourceID: parentID,
			}, true
		}
		return thread.CommentEdited{
			SourceID:       sourceID,
			ParentSourceID: parentID,
			NewBody:        w.Comment.Content,
			AuthorIsBot:    isBot,
		}, true
	case "delete":
		return thread.CommentDeleted{
			SourceID:       sourceID,
			ParentSourceID: parentID,
		}, true
	}
	return nil, false
}
