package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dupbot/dupbot/domain/thread"
)

// EmbeddingClient talks to a text-embeddings-inference endpoint. The wire
// protocol is a bare POST of {"inputs": text} returning a single-element
// batch of float vectors. Inputs are truncated to the configured maximum
// before sending, and the service is asked to truncate on its side too so
// an off-by-tokenization input never fails.
type EmbeddingClient struct {
	url        string
	authToken  string
	dimension  int
	maxInput   int
	httpClient *http.Client
	retry      retrier
	observe    func(time.Duration)
}

// EmbeddingOption is a functional option for EmbeddingClient.
type EmbeddingOption func(*EmbeddingClient)

// WithEmbeddingHTTPClient sets the HTTP client.
func WithEmbeddingHTTPClient(c *http.Client) EmbeddingOption {
	return func(e *EmbeddingClient) { e.httpClient = c }
}

// WithEmbeddingRetry sets the retry parameters.
func WithEmbeddingRetry(maxRetries int, initialDelay time.Duration) EmbeddingOption {
	return func(e *EmbeddingClient) {
		e.retry.maxRetries = maxRetries
		e.retry.initialDelay = initialDelay
	}
}

// WithLatencyObserver registers a callback invoked with each request's
// duration, for metrics.
func WithLatencyObserver(fn func(time.Duration)) EmbeddingOption {
	return func(e *EmbeddingClient) { e.observe = fn }
}

// NewEmbeddingClient creates an EmbeddingClient. dimension is the expected
// vector size; maxInput bounds the input length in characters.
func NewEmbeddingClient(url, authToken string, dimension, maxInput int, opts ...EmbeddingOption) *EmbeddingClient {
	c := &EmbeddingClient{
		url:        url,
		authToken:  authToken,
		dimension:  dimension,
		maxInput:   maxInput,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		retry:      defaultRetrier(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var _ thread.Embedder = (*EmbeddingClient)(nil)

type embeddingRequest struct {
	Inputs            string `json:"inputs"`
	Truncate          bool   `json:"truncate"`
	TruncateDirection string `json:"truncate_direction"`
}

// Embed implements thread.Embedder.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if runes := []rune(text); c.maxInput > 0 && len(runes) > c.maxInput {
		text = string(runes[:c.maxInput])
	}

	payload, err := json.Marshal(embeddingRequest{
		Inputs:            text,
		Truncate:          true,
		TruncateDirection: "Right",
	})
	if err != nil {
		return nil, fmt.Errorf("encode embedding request: %w", err)
	}

	var vector []float32
	err = c.retry.do(ctx, func() error {
		var reqErr error
		vector, reqErr = c.request(ctx, payload)
		return reqErr
	})
	if err != nil {
		return nil, err
	}

	if c.dimension > 0 && len(vector) != c.dimension {
		return nil, NewProviderError("embed", 0,
			fmt.Sprintf("got %d dimensions, expected %d", len(vector), c.dimension), nil)
	}
	return vector, nil
}

// Dimension implements thread.Embedder.
func (c *EmbeddingClient) Dimension() int { return c.dimension }

// Probe embeds a short fixed input to verify the endpoint is reachable and
// produces the configured dimensionality. Called once at startup.
func (c *EmbeddingClient) Probe(ctx context.Context) error {
	if _, err := c.Embed(ctx, "ping"); err != nil {
		return fmt.Errorf("embedding probe: %w", err)
	}
	return nil
}

func (c *EmbeddingClient) request(ctx context.Context, payload []byte) ([]float32, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return nil, NewProviderError("embed", 0, err.Error(), err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if c.observe != nil {
		c.observe(time.Since(start))
	}
	if err != nil {
		return nil, NewProviderError("embed", 0, err.Error(), err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, NewProviderError("embed", resp.StatusCode, err.Error(), err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, NewProviderError("embed", resp.StatusCode, string(body), nil)
	}

	var batch [][]float32
	if err := json.Unmarshal(body, &batch); err != nil {
		return nil, NewProviderError("embed", resp.StatusCode, "decode response: "+err.Error(), err)
	}
	if len(batch) == 0 {
		return nil, NewProviderError("embed", resp.StatusCode, "empty embedding batch", nil)
	}
	return batch[0], nil
}
