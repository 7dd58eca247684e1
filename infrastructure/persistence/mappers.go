package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/dupbot/dupbot/domain/job"
	"github.com/dupbot/dupbot/domain/thread"
	"github.com/dupbot/dupbot/internal/database"
)

func threadToDomain(row threadRow) thread.Thread {
	opts := []thread.Option{
		thread.WithID(row.ID),
		thread.WithURLs(row.HTMLURL, row.APIURL),
		thread.WithAuthorLogin(row.AuthorLogin),
		thread.WithTimestamps(row.CreatedAt, row.UpdatedAt),
	}
	if row.Embedding != nil {
		opts = append(opts, thread.WithEmbedding(row.Embedding.Floats()))
	}
	return thread.New(
		thread.Source(row.Source),
		row.Repository,
		thread.Kind(row.Kind),
		row.Number,
		row.Title,
		row.Body,
		opts...,
	)
}

func threadToRow(t thread.Thread) threadRow {
	row := threadRow{
		ID:            t.ID(),
		SourceID:      t.SourceID(),
		Source:        string(t.Source()),
		Repository:    t.Repository(),
		Kind:          string(t.Kind()),
		Number:        t.Number(),
		Title:         t.Title(),
		Body:          t.Body(),
		HTMLURL:       t.HTMLURL(),
		APIURL:        t.APIURL(),
		AuthorLogin:   t.AuthorLogin(),
		IsPullRequest: t.IsPullRequest(),
		CreatedAt:     t.CreatedAt(),
		UpdatedAt:     t.UpdatedAt(),
	}
	if emb := t.Embedding(); emb != nil {
		v := database.NewHalfVector(emb)
		row.Embedding = &v
	}
	return row
}

func commentToDomain(row commentRow) thread.Comment {
	return thread.NewComment(row.SourceID, row.Body,
		thread.CommentWithID(row.ID),
		thread.CommentWithThreadID(row.ThreadID),
		thread.CommentWithURL(row.URL),
		thread.CommentWithAuthorLogin(row.AuthorLogin),
		thread.CommentWithTimestamps(row.CreatedAt, row.UpdatedAt),
	)
}

func commentToRow(c thread.Comment) commentRow {
	return commentRow{
		ID:          c.ID(),
		SourceID:    c.SourceID(),
		ThreadID:    c.ThreadID(),
		Body:        c.Body(),
		URL:         c.URL(),
		AuthorLogin: c.AuthorLogin(),
		CreatedAt:   c.CreatedAt(),
		UpdatedAt:   c.UpdatedAt(),
	}
}

func jobToDomain(row jobRow) (job.Job, error) {
	var data job.Data
	if row.Data != "" {
		if err := json.Unmarshal([]byte(row.Data), &data); err != nil {
			return job.Job{}, fmt.Errorf("decode job data: %w", err)
		}
	}
	return job.New(job.Type(row.JobType), row.Scope, data,
		job.WithID(row.ID),
		job.WithTimestamps(row.CreatedAt, row.UpdatedAt),
	), nil
}

func jobToRow(j job.Job) (jobRow, error) {
	data, err := json.Marshal(j.Data())
	if err != nil {
		return jobRow{}, fmt.Errorf("encode job data: %w", err)
	}
	return jobRow{
		ID:        j.ID(),
		JobType:   string(j.Type()),
		Scope:     j.Scope(),
		Data:      string(data),
		CreatedAt: j.CreatedAt(),
		UpdatedAt: j.UpdatedAt(),
	}, nil
}
