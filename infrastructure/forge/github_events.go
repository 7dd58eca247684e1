package forge

import (
	"strconv"

	"github.com/google/go-github/v60/github"

	"github.com/dupbot/dupbot/domain/thread"
)

// GitHubEvent classifies a parsed GitHub webhook payload into the internal
// event algebra. The second return value is false for supported payload
// types whose action carries no indexing consequence (e.g. labeled,
// closed), which the router acknowledges as a no-op.
func GitHubEvent(payload any, botLogin string) (thread.Event, bool) {
	switch p := payload.(type) {
	case *github.IssuesEvent:
		return githubIssuesEvent(p, botLogin)
	case *github.PullRequestEvent:
		return githubPullRequestEvent(p, botLogin)
	case *github.IssueCommentEvent:
		return githubIssueCommentEvent(p, botLogin)
	case *github.PullRequestReviewEvent:
		return githubReviewEvent(p, botLogin)
	case *github.PullRequestReviewCommentEvent:
		return githubReviewCommentEvent(p, botLogin)
	case *github.DiscussionEvent:
		return githubDiscussionEvent(p, botLogin)
	case *github.DiscussionCommentEvent:
		return githubDiscussionCommentEvent(p, botLogin)
	default:
		return nil, false
	}
}

func githubIssuesEvent(p *github.IssuesEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	issue := p.GetIssue()
	switch p.GetAction() {
	case "opened":
		return thread.Opened{
			Thread:      githubIssueThread(repo, issue),
			AuthorIsBot: thread.IsBotAuthored(issue.GetUser().GetLogin(), issue.GetBody(), botLogin),
		}, true
	case "edited":
		return thread.Edited{
			SourceID: githubIssueThread(repo, issue).SourceID(),
			Title:    issue.Title,
			Body:     issue.Body,
		}, true
	case "deleted":
		return thread.Deleted{
			SourceID: githubIssueThread(repo, issue).SourceID(),
		}, true
	}
	return nil, false
}

func githubPullRequestEvent(p *github.PullRequestEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	pr := p.GetPullRequest()
	t := thread.New(thread.SourceGitHub, repo, thread.KindPull, pr.GetNumber(),
		pr.GetTitle(), pr.GetBody(),
		thread.WithURLs(pr.GetHTMLURL(), pr.GetURL()),
		thread.WithAuthorLogin(pr.GetUser().GetLogin()),
	)
	switch p.GetAction() {
	case "opened":
		return thread.Opened{
			Thread:      t,
			AuthorIsBot: thread.IsBotAuthored(pr.GetUser().GetLogin(), pr.GetBody(), botLogin),
		}, true
	case "edited":
		return thread.Edited{
			SourceID: t.SourceID(),
			Title:    pr.Title,
			Body:     pr.Body,
		}, true
	}
	return nil, false
}

func githubIssueCommentEvent(p *github.IssueCommentEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	parent := githubIssueThread(repo, p.GetIssue())
	comment := p.GetComment()
	sourceID := thread.CommentSourceID(thread.SourceGitHub, repo, strconv.FormatInt(comment.GetID(), 10))
	isBot := thread.IsBotAuthored(comment.GetUser().GetLogin(), comment.GetBody(), botLogin)

	switch p.GetAction() {
	case "created":
		return thread.CommentCreated{
			Comment:        githubComment(repo, comment),
			ParentSourceID: parent.SourceID(),
			AuthorIsBot:    isBot,
		}, true
	case "edited":
		return thread.CommentEdited{
			SourceID:       sourceID,
			ParentSourceID: parent.SourceID(),
			NewBody:        comment.GetBody(),
			AuthorIsBot:    isBot,
		}, true
	case "deleted":
		return thread.CommentDeleted{
			SourceID:       sourceID,
			ParentSourceID: parent.SourceID(),
		}, true
	}
	return nil, false
}

// githubReviewEvent maps a submitted review to CommentCreated. Reviews
// without a body (bare approvals) carry nothing to index.
func githubReviewEvent(p *github.PullRequestReviewEvent, botLogin string) (thread.Event, bool) {
	if p.GetAction() != "submitted" {
		return nil, false
	}
	review := p.GetReview()
	if review.GetBody() == "" {
		return nil, false
	}

	repo := p.GetRepo().GetFullName()
	pr := p.GetPullRequest()
	parentID := thread.SourceID(thread.SourceGitHub, repo, thread.KindPull, pr.GetNumber())
	return thread.CommentCreated{
		Comment: thread.NewComment(
			thread.CommentSourceID(thread.SourceGitHub, repo, strconv.FormatInt(review.GetID(), 10)),
			review.GetBody(),
			thread.CommentWithURL(review.GetHTMLURL()),
			thread.CommentWithAuthorLogin(review.GetUser().GetLogin()),
		),
		ParentSourceID: parentID,
		AuthorIsBot:    thread.IsBotAuthored(review.GetUser().GetLogin(), review.GetBody(), botLogin),
	}, true
}

// githubDiscussionEvent maps repository discussions the same way issues are
// mapped. Answered, pinned and category changes carry nothing to index.
func githubDiscussionEvent(p *github.DiscussionEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	d := p.GetDiscussion()
	t := thread.New(thread.SourceGitHub, repo, thread.KindDiscussion, d.GetNumber(),
		d.GetTitle(), d.GetBody(),
		thread.WithURLs(d.GetHTMLURL(), ""),
		thread.WithAuthorLogin(d.GetUser().GetLogin()),
	)
	switch p.GetAction() {
	case "created":
		return thread.Opened{
			Thread:      t,
			AuthorIsBot: thread.IsBotAuthored(d.GetUser().GetLogin(), d.GetBody(), botLogin),
		}, true
	case "edited":
		return thread.Edited{
			SourceID: t.SourceID(),
			Title:    d.Title,
			Body:     d.Body,
		}, true
	case "deleted":
		return thread.Deleted{
			SourceID: t.SourceID(),
		}, true
	}
	return nil, false
}

func githubDiscussionCommentEvent(p *github.DiscussionCommentEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	parentID := thread.SourceID(thread.SourceGitHub, repo, thread.KindDiscussion, p.GetDiscussion().GetNumber())
	comment := p.GetComment()
	sourceID := thread.CommentSourceID(thread.SourceGitHub, repo, strconv.FormatInt(comment.GetID(), 10))
	isBot := thread.IsBotAuthored(comment.GetUser().GetLogin(), comment.GetBody(), botLogin)

	switch p.GetAction() {
	case "created":
		return thread.CommentCreated{
			Comment: thread.NewComment(sourceID, comment.GetBody(),
				thread.CommentWithURL(comment.GetHTMLURL()),
				thread.CommentWithAuthorLogin(comment.GetUser().GetLogin()),
				thread.CommentWithTimestamps(comment.GetCreatedAt().Time, comment.GetUpdatedAt().Time),
			),
			ParentSourceID: parentID,
			AuthorIsBot:    isBot,
		}, true
	case "edited":
		return thread.CommentEdited{
			SourceID:       sourceID,
			ParentSourceID: parentID,
			NewBody:        comment.GetBody(),
			AuthorIsBot:    isBot,
		}, true
	case "deleted":
		return thread.CommentDeleted{
			SourceID:       sourceID,
			ParentSourceID: parentID,
		}, true
	}
	return nil, false
}

func githubReviewCommentEvent(p *github.PullRequestReviewCommentEvent, botLogin string) (thread.Event, bool) {
	repo := p.GetRepo().GetFullName()
	pr := p.GetPullRequest()
	comment := p.GetComment()
	parentID := thread.SourceID(thread.SourceGitHub, repo, thread.KindPull, pr.GetNumber())
	sourceID := thread.CommentSourceID(thread.SourceGitHub, repo, strconv.FormatInt(comment.GetID(), 10))
	isBot := thread.IsBotAuthored(comment.GetUser().GetLogin(), comment.GetBody(), botLogin)

	switch p.GetAction() {
	case "created":
		return thread.CommentCreated{
			Comment: thread.NewComment(sourceID, comment.GetBody(),
				thread.CommentWithURL(comment.GetHTMLURL()),
				thread.CommentWithAuthorLogin(comment.GetUser().GetLogin()),
				thread.CommentWithTimestamps(comment.GetCreatedAt().Time, comment.GetUpdatedAt().Time),
			),
			ParentSourceID: parentID,
			AuthorIsBot:    isBot,
		}, true
	case "edited":
		return thread.CommentEdited{
			SourceID:       sourceID,
			ParentSourceID: parentID,
			NewBody:        comment.GetBody(),
			AuthorIsBot:    isBot,
		}, true
	case "deleted":
		return thread.CommentDeleted{
			SourceID:       sourceID,
			ParentSourceID: parentID,
		}, true
	}
	return nil, false
}
