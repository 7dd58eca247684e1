// Package thread holds the canonical thread model: issues, pull requests,
// and discussions unified under one aggregate, plus the webhook event
// algebra that mutates it.
package thread

import (
	"fmt"
	"strconv"
	"strings"
)

// Source identifies the upstream forge a thread came from.
type Source string

// Source values.
const (
	SourceGitHub      Source = "github"
	SourceHuggingFace Source = "huggingface"
)

// Kind classifies a thread on its forge.
type Kind string

// Kind values.
const (
	KindIssue      Kind = "issue"
	KindPull       Kind = "pull"
	KindDiscussion Kind = "discussion"
)

// SourceID builds the globally unique thread identifier
// {forge}/{owner}/{repo}/{kind}/{number}. It is the UPSERT key.
func SourceID(source Source, repository string, kind Kind, number int) string {
	return fmt.Sprintf("%s/%s/%s/%d", source, repository, kind, number)
}

// CommentSourceID builds the globally unique comment identifier
// {forge}/{owner}/{repo}/comment/{id}. GitHub ids are numeric, Hugging Face
// ids are opaque strings, so the id is kept as-is.
func CommentSourceID(source Source, repository, id string) string {
	return fmt.Sprintf("%s/%s/comment/%s", source, repository, id)
}

// ParseSourceID splits a thread source ID back into its parts. The
// repository may itself contain slashes (Hugging Face dataset and space
// repositories do), so it is recovered from the middle.
func ParseSourceID(sourceID string) (Source, string, Kind, int, error) {
	parts := strings.Split(sourceID, "/")
	if len(parts) < 5 {
		return "", "", "", 0, fmt.Errorf("malformed source id %q", sourceID)
	}

	source := Source(parts[0])
	kind := Kind(parts[len(parts)-2])
	number, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil {
		return "", "", "", 0, fmt.Errorf("malformed source id %q: %w", sourceID, err)
	}

	switch source {
	case SourceGitHub, SourceHuggingFace:
	default:
		return "", "", "", 0, fmt.Errorf("unknown source in %q", sourceID)
	}
	switch kind {
	case KindIssue, KindPull, KindDiscussion:
	default:
		return "", "", "", 0, fmt.Errorf("unknown kind in %q", sourceID)
	}

	repository := strings.Join(parts[1:len(parts)-2], "/")
	return source, repository, kind, number, nil
}
