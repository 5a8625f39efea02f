// Package embedclient is an HTTP-backed Embedder. Grounded on the teacher's
// EmbedText (internal/embedding/client.go): same request/response shape and
// Authorization-or-custom-header dispatch, generalized to thread an explicit
// EmbedKind into the request payload (most embedding APIs that distinguish
// document/query projections accept an "input_type" field) and wrapped with
// observability.NewHTTPClient so embedding calls participate in the same
// trace as the rest of a request.
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"manifold/internal/observability"
	"manifold/internal/reasoningbank"
)

type embedRequest struct {
	Model     string   `json:"model"`
	Input     []string `json:"input"`
	InputType string   `json:"input_type,omitempty"`
}

type embedResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

// Client is an Embedder calling a single OpenAI-compatible /v1/embeddings
// endpoint (or any endpoint matching that request/response shape).
type Client struct {
	httpClient *http.Client
	baseURL    string
	path       string
	model      string
	apiKey     string
	apiHeader  string
	headers    map[string]string
	timeout    time.Duration
	dimension  int
	logger     reasoningbank.Logger
}

// Config carries the dial-out parameters for Client.
type Config struct {
	BaseURL   string
	Path      string
	Model     string
	APIKey    string
	APIHeader string
	Headers   map[string]string
	Timeout   time.Duration
	Dimension int
}

// New constructs an embedclient.Client. logger may be nil.
func New(cfg Config, logger reasoningbank.Logger) *Client {
	if logger == nil {
		logger = reasoningbank.NoopLogger{}
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	path := cfg.Path
	if path == "" {
		path = "/v1/embeddings"
	}
	header := cfg.APIHeader
	if header == "" {
		header = "Authorization"
	}
	return &Client{
		httpClient: observability.NewHTTPClient(nil),
		baseURL:    cfg.BaseURL,
		path:       path,
		model:      cfg.Model,
		apiKey:     cfg.APIKey,
		apiHeader:  header,
		headers:    cfg.Headers,
		timeout:    timeout,
		dimension:  cfg.Dimension,
		logger:     logger,
	}
}

func (c *Client) Dimension() int { return c.dimension }

func (c *Client) Embed(ctx context.Context, text string, kind reasoningbank.EmbedKind) ([]float32, error) {
	vecs, err := c.embedBatch(ctx, []string{text}, kind)
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (c *Client) embedBatch(ctx context.Context, inputs []string, kind reasoningbank.EmbedKind) ([][]float32, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no inputs", reasoningbank.ErrEmbedder)
	}
	body, err := json.Marshal(embedRequest{Model: c.model, Input: inputs, InputType: string(kind)})
	if err != nil {
		return nil, fmt.Errorf("%w: marshal request: %v", reasoningbank.ErrEmbedder, err)
	}

	cctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	url := c.baseURL + c.path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", reasoningbank.ErrEmbedder, err)
	}
	if c.apiHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	} else if c.apiHeader != "" {
		req.Header.Set(c.apiHeader, c.apiKey)
	}
	for k, v := range c.headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error(ctx, "reasoningbank: embed request failed", err, map[string]any{"count": len(inputs)})
		return nil, fmt.Errorf("%w: do request: %v", reasoningbank.ErrEmbedder, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", reasoningbank.ErrEmbedder, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: status %s", reasoningbank.ErrEmbedder, resp.Status)
	}

	var parsed embedResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", reasoningbank.ErrEmbedder, err)
	}
	if len(parsed.Data) != len(inputs) {
		return nil, fmt.Errorf("%w: got %d embeddings, want %d", reasoningbank.ErrEmbedder, len(parsed.Data), len(inputs))
	}

	c.logger.Debug(ctx, "reasoningbank: embed call complete", map[string]any{
		"count":      len(inputs),
		"durationMs": time.Since(start).Milliseconds(),
	})

	out := make([][]float32, len(parsed.Data))
	for i := range parsed.Data {
		out[i] = parsed.Data[i].Embedding
	}
	return out, nil
}
