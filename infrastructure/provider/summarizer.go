package provider

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// summaryMaxTokens bounds the completion: summaries are one short paragraph.
const summaryMaxTokens = 100

// Summary is the structured output of the summarizer.
type Summary struct {
	Description string
	Tags        []string
}

// Summarizer produces a short description and tag list for a thread via a
// chat-completion service. The model is instructed to wrap its answer in
// <DESC> and <TAGS> markers; anything else in the response is ignored.
type Summarizer struct {
	client        *openai.Client
	model         string
	systemPrompt  string
	specialTokens []string
	retry         retrier
}

// SummarizerOption is a functional option for Summarizer.
type SummarizerOption func(*Summarizer)

// WithSummarizerRetry sets the retry parameters.
func WithSummarizerRetry(maxRetries int, initialDelay time.Duration) SummarizerOption {
	return func(s *Summarizer) {
		s.retry.maxRetries = maxRetries
		s.retry.initialDelay = initialDelay
	}
}

// NewSummarizer creates a Summarizer against an OpenAI-compatible endpoint.
// baseURL is the service root; the client appends /v1 paths.
func NewSummarizer(baseURL, authToken, model, systemPrompt string, specialTokens []string, opts ...SummarizerOption) *Summarizer {
	cfg := openai.DefaultConfig(authToken)
	cfg.BaseURL = strings.TrimSuffix(baseURL, "/") + "/v1"
	cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}

	s := &Summarizer{
		client:        openai.NewClientWithConfig(cfg),
		model:         model,
		systemPrompt:  systemPrompt,
		specialTokens: specialTokens,
		retry:         defaultRetrier(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	descPattern = regexp.MustCompile(`(?s)<DESC>(.*?)</DESC>`)
	tagsPattern = regexp.MustCompile(`(?s)<TAGS>(.*?)</TAGS>`)
)

// Summarize returns a Summary of the given text. A missing description
// falls back to fallbackTitle; missing tags yield an empty list. Errors are
// returned so callers can degrade to posting without a summary.
func (s *Summarizer) Summarize(ctx context.Context, text, fallbackTitle string) (Summary, error) {
	req := openai.ChatCompletionRequest{
		Model:     s.model,
		MaxTokens: summaryMaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: s.systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
	}

	var resp openai.ChatCompletionResponse
	err := s.retry.do(ctx, func() error {
		var callErr error
		resp, callErr = s.client.CreateChatCompletion(ctx, req)
		return wrapOpenAIError("summarize", callErr)
	})
	if err != nil {
		return Summary{}, err
	}
	if len(resp.Choices) == 0 {
		return Summary{}, NewProviderError("summarize", 0, "no choices in response", nil)
	}

	content := resp.Choices[0].Message.Content
	for _, token := range s.specialTokens {
		content = strings.ReplaceAll(content, token, "")
	}
	return parseSummary(content, fallbackTitle), nil
}

func parseSummary(content, fallbackTitle string) Summary {
	summary := Summary{Description: fallbackTitle, Tags: []string{}}

	if m := descPattern.FindStringSubmatch(content); m != nil {
		if desc := strings.TrimSpace(m[1]); desc != "" {
			summary.Description = desc
		}
	}
	if m := tagsPattern.FindStringSubmatch(content); m != nil {
		for _, tag := range strings.Split(m[1], ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				summary.Tags = append(summary.Tags, tag)
			}
		}
	}
	return summary
}

func wrapOpenAIError(operation string, err error) error {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return NewProviderError(operation, apiErr.HTTPStatusCode, apiErr.Message, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return NewProviderError(operation, reqErr.HTTPStatusCode, reqErr.Error(), err)
	}
	return NewProviderError(operation, 0, err.Error(), err)
}
