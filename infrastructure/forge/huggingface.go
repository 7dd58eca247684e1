package forge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dupbot/dupbot/domain/thread"
)

const defaultHuggingFaceBaseURL = "https://huggingface.co"

// HuggingFaceClient implements Client for the Hugging Face hub, where every
// thread is a repository discussion (pull requests included).
type HuggingFaceClient struct {
	baseURL         string
	token           string
	httpClient      *http.Client
	commentsEnabled bool
}

// HuggingFaceOption is a functional option for HuggingFaceClient.
type HuggingFaceOption func(*HuggingFaceClient)

// WithHuggingFaceBaseURL points the client at a different hub, for tests.
func WithHuggingFaceBaseURL(baseURL string) HuggingFaceOption {
	return func(h *HuggingFaceClient) { h.baseURL = strings.TrimRight(baseURL, "/") }
}

// WithHuggingFaceHTTPClient sets the HTTP client.
func WithHuggingFaceHTTPClient(c *http.Client) HuggingFaceOption {
	return func(h *HuggingFaceClient) { h.httpClient = c }
}

// NewHuggingFaceClient creates a HuggingFaceClient authenticated with token.
func NewHuggingFaceClient(token string, commentsEnabled bool, opts ...HuggingFaceOption) *HuggingFaceClient {
	h := &HuggingFaceClient{
		baseURL:         defaultHuggingFaceBaseURL,
		token:           token,
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		commentsEnabled: commentsEnabled,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

var _ Client = (*HuggingFaceClient)(nil)

// Source implements Client.
func (h *HuggingFaceClient) Source() thread.Source { return thread.SourceHuggingFace }

// CommentsEnabled implements Client.
func (h *HuggingFaceClient) CommentsEnabled() bool { return h.commentsEnabled }

// repoAPIPath maps a repository string onto the hub API path. Dataset and
// space repositories carry their type prefix in the repository string;
// everything else is a model repository.
func repoAPIPath(repository string) string {
	if strings.HasPrefix(repository, "datasets/") || strings.HasPrefix(repository, "spaces/") {
		return repository
	}
	return "models/" + repository
}

func (h *HuggingFaceClient) discussionAPIURL(repository string, number int) string {
	return fmt.Sprintf("%s/api/%s/discussions/%d", h.baseURL, repoAPIPath(repository), number)
}

func (h *HuggingFaceClient) discussionWebURL(repository string, number int) string {
	return fmt.Sprintf("%s/%s/discussions/%d", h.baseURL, repository, number)
}

type hfDiscussionSummary struct {
	Num           int    `json:"num"`
	Title         string `json:"title"`
	Status        string `json:"status"`
	IsPullRequest bool   `json:"isPullRequest"`
	Author        struct {
		Name string `json:"name"`
	} `json:"author"`
}

type hfDiscussionList struct {
	Discussions []hfDiscussionSummary `json:"discussions"`
	Count       int                   `json:"count"`
	Start       int                   `json:"start"`
}

type hfDiscussionEvent struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	CreatedAt time.Time `json:"createdAt"`
	Author    struct {
		Name string `json:"name"`
	} `json:"author"`
	Data struct {
		Edited bool `json:"edited"`
		Hidden bool `json:"hidden"`
		Latest struct {
			Raw       string    `json:"raw"`
			UpdatedAt time.Time `json:"updatedAt"`
		} `json:"latest"`
	} `json:"data"`
}

type hfDiscussionDetail struct {
	Num           int                 `json:"num"`
	Title         string              `json:"title"`
	Status        string              `json:"status"`
	IsPullRequest bool                `json:"isPullRequest"`
	Events        []hfDiscussionEvent `json:"events"`
}

func (h *HuggingFaceClient) do(ctx context.Context, method, url string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("huggingface request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode huggingface response: %w", err)
	}
	return nil
}

// FetchThread implements Client. The discussion body is the first comment
// event on the discussion.
func (h *HuggingFaceClient) FetchThread(ctx context.Context, repository string, number int) (thread.Thread, error) {
	var detail hfDiscussionDetail
	if err := h.do(ctx, http.MethodGet, h.discussionAPIURL(repository, number), nil, &detail); err != nil {
		return thread.Thread{}, err
	}
	return h.detailThread(repository, detail), nil
}

func (h *HuggingFaceClient) detailThread(repository string, detail hfDiscussionDetail) thread.Thread {
	kind := thread.KindDiscussion
	if detail.IsPullRequest {
		kind = thread.KindPull
	}

	var body, author string
	if comments := commentEvents(detail.Events); len(comments) > 0 {
		body = comments[0].Data.Latest.Raw
		author = comments[0].Author.Name
	}
	return thread.New(thread.SourceHuggingFace, repository, kind, detail.Num,
		detail.Title, body,
		thread.WithURLs(h.discussionWebURL(repository, detail.Num), h.discussionAPIURL(repository, detail.Num)),
		thread.WithAuthorLogin(author),
	)
}

// ListThreads implements Client. The hub list endpoint returns summaries
// only, so each discussion is fetched for its body. The cursor is the
// 0-based page number.
func (h *HuggingFaceClient) ListThreads(ctx context.Context, repository, cursor string) ([]thread.Thread, string, error) {
	page := 0
	if cursor != "" {
		if parsed, err := strconv.Atoi(cursor); err == nil && parsed > 0 {
			page = parsed
		}
	}

	var list hfDiscussionList
	url := fmt.Sprintf("%s/api/%s/discussions?p=%d", h.baseURL, repoAPIPath(repository), page)
	if err := h.do(ctx, http.MethodGet, url, nil, &list); err != nil {
		return nil, "", err
	}

	threads := make([]thread.Thread, 0, len(list.Discussions))
	for _, summary := range list.Discussions {
		t, err := h.FetchThread(ctx, repository, summary.Num)
		if err != nil {
			return nil, "", err
		}
		threads = append(threads, t)
	}

	next := ""
	if list.Start+len(list.Discussions) < list.Count {
		next = strconv.Itoa(page + 1)
	}
	return threads, next, nil
}

// ListComments implements Client. Comments live on the discussion detail
// itself, so a single fetch returns them all and paging never continues.
func (h *HuggingFaceClient) ListComments(ctx context.Context, t thread.Thread, _ string) ([]thread.Comment, string, error) {
	var detail hfDiscussionDetail
	if err := h.do(ctx, http.MethodGet, h.discussionAPIURL(t.Repository(), t.Number()), nil, &detail); err != nil {
		return nil, "", err
	}

	comments := commentEvents(detail.Events)
	if len(comments) <= 1 {
		return nil, "", nil
	}

	// The first comment event is the discussion body, not a comment.
	out := make([]thread.Comment, 0, len(comments)-1)
	for _, ev := range comments[1:] {
		out = append(out, thread.NewComment(
			thread.CommentSourceID(thread.SourceHuggingFace, t.Repository(), ev.ID),
			ev.Data.Latest.Raw,
			thread.CommentWithURL(t.HTMLURL()),
			thread.CommentWithAuthorLogin(ev.Author.Name),
			thread.CommentWithTimestamps(ev.CreatedAt, ev.Data.Latest.UpdatedAt),
		))
	}
	return out, "", nil
}

// PostReply implements Client.
func (h *HuggingFaceClient) PostReply(ctx context.Context, t thread.Thread, text string) error {
	url := h.discussionAPIURL(t.Repository(), t.Number()) + "/comment"
	return h.do(ctx, http.MethodPost, url, map[string]string{"comment": text}, nil)
}

func commentEvents(events []hfDiscussionEvent) []hfDiscussionEvent {
	out := make([]hfDiscussionEvent, 0, len(events))
	for _, ev := range events {
		if ev.Type == "comment" && !ev.Data.Hidden {
			out = append(out, ev)
		}
	}
	return out
}
