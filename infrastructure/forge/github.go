package forge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/go-github/v60/github"

	"github.com/dupbot/dupbot/domain/thread"
)

const githubPageSize = 100

// GitHubClient implements Client for GitHub. Issues and pull requests share
// the issues API, so one client covers both kinds.
type GitHubClient struct {
	client          *github.Client
	commentsEnabled bool
}

// GitHubOption is a functional option for GitHubClient.
type GitHubOption func(*GitHubClient)

// WithGitHubHTTPClient sets the HTTP client, mainly for tests.
func WithGitHubHTTPClient(c *http.Client) GitHubOption {
	return func(g *GitHubClient) { g.client = github.NewClient(c) }
}

// WithGitHubBaseURL points the client at a different API root, for tests
// or GitHub Enterprise.
func WithGitHubBaseURL(baseURL string) GitHubOption {
	return func(g *GitHubClient) {
		client, err := g.client.WithEnterpriseURLs(baseURL, baseURL)
		if err == nil {
			g.client = client
		}
	}
}

// NewGitHubClient creates a GitHubClient authenticated with token.
func NewGitHubClient(token string, commentsEnabled bool, opts ...GitHubOption) *GitHubClient {
	g := &GitHubClient{
		client:          github.NewClient(nil),
		commentsEnabled: commentsEnabled,
	}
	for _, opt := range opts {
		opt(g)
	}
	if token != "" {
		g.client = g.client.WithAuthToken(token)
	}
	return g
}

var _ Client = (*GitHubClient)(nil)

// Source implements Client.
func (g *GitHubClient) Source() thread.Source { return thread.SourceGitHub }

// CommentsEnabled implements Client.
func (g *GitHubClient) CommentsEnabled() bool { return g.commentsEnabled }

func splitRepository(repository string) (string, string, error) {
	owner, name, ok := strings.Cut(repository, "/")
	if !ok || owner == "" || name == "" {
		return "", "", &PermanentError{
			StatusCode: http.StatusBadRequest,
			Message:    fmt.Sprintf("malformed repository %q", repository),
		}
	}
	return owner, name, nil
}

// FetchThread implements Client.
func (g *GitHubClient) FetchThread(ctx context.Context, repository string, number int) (thread.Thread, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return thread.Thread{}, err
	}

	issue, resp, err := g.client.Issues.Get(ctx, owner, name, number)
	if err != nil {
		return thread.Thread{}, githubError(resp, err)
	}
	return githubIssueThread(repository, issue), nil
}

// ListThreads implements Client. The cursor is the 1-based page number.
func (g *GitHubClient) ListThreads(ctx context.Context, repository, cursor string) ([]thread.Thread, string, error) {
	owner, name, err := splitRepository(repository)
	if err != nil {
		return nil, "", err
	}

	page := parsePageCursor(cursor)
	issues, resp, err := g.client.Issues.ListByRepo(ctx, owner, name, &github.IssueListByRepoOptions{
		State:     "all",
		Sort:      "created",
		Direction: "asc",
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: githubPageSize,
		},
	})
	if err != nil {
		return nil, "", githubError(resp, err)
	}

	threads := make([]thread.Thread, 0, len(issues))
	for _, issue := range issues {
		threads = append(threads, githubIssueThread(repository, issue))
	}
	return threads, nextPageCursor(resp), nil
}

// ListComments implements Client.
func (g *GitHubClient) ListComments(ctx context.Context, t thread.Thread, cursor string) ([]thread.Comment, string, error) {
	owner, name, err := splitRepository(t.Repository())
	if err != nil {
		return nil, "", err
	}

	page := parsePageCursor(cursor)
	sort := "created"
	direction := "asc"
	comments, resp, err := g.client.Issues.ListComments(ctx, owner, name, t.Number(), &github.IssueListCommentsOptions{
		Sort:      &sort,
		Direction: &direction,
		ListOptions: github.ListOptions{
			Page:    page,
			PerPage: githubPageSize,
		},
	})
	if err != nil {
		return nil, "", githubError(resp, err)
	}

	out := make([]thread.Comment, 0, len(comments))
	for _, c := range comments {
		out = append(out, githubComment(t.Repository(), c))
	}
	return out, nextPageCursor(resp), nil
}

// PostReply implements Client.
func (g *GitHubClient) PostReply(ctx context.Context, t thread.Thread, text string) error {
	owner, name, err := splitRepository(t.Repository())
	if err != nil {
		return err
	}

	_, resp, err := g.client.Issues.CreateComment(ctx, owner, name, t.Number(), &github.IssueComment{
		Body: github.String(text),
	})
	if err != nil {
		return githubError(resp, err)
	}
	return nil
}

func githubIssueThread(repository string, issue *github.Issue) thread.Thread {
	kind := thread.KindIssue
	if issue.IsPullRequest() {
		kind = thread.KindPull
	}
	return thread.New(thread.SourceGitHub, repository, kind, issue.GetNumber(),
		issue.GetTitle(), issue.GetBody(),
		thread.WithURLs(issue.GetHTMLURL(), issue.GetURL()),
		thread.WithAuthorLogin(issue.GetUser().GetLogin()),
	)
}

func githubComment(repository string, c *github.IssueComment) thread.Comment {
	return thread.NewComment(
		thread.CommentSourceID(thread.SourceGitHub, repository, strconv.FormatInt(c.GetID(), 10)),
		c.GetBody(),
		thread.CommentWithURL(c.GetHTMLURL()),
		thread.CommentWithAuthorLogin(c.GetUser().GetLogin()),
		thread.CommentWithTimestamps(c.GetCreatedAt().Time, c.GetUpdatedAt().Time),
	)
}

func parsePageCursor(cursor string) int {
	if cursor == "" {
		return 1
	}
	page, err := strconv.Atoi(cursor)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

func nextPageCursor(resp *github.Response) string {
	if resp == nil || resp.NextPage == 0 {
		return ""
	}
	return strconv.Itoa(resp.NextPage)
}

func githubError(resp *github.Response, err error) error {
	var errResp *github.ErrorResponse
	if errors.As(err, &errResp) && errResp.Response != nil {
		return statusError(errResp.Response.StatusCode, errResp.Message)
	}
	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return statusError(http.StatusTooManyRequests, rateErr.Message)
	}
	if resp != nil && resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, err.Error())
	}
	return fmt.Errorf("github request: %w", err)
}
