// Package api provides the HTTP client for the campus question-answering
// backend. Every call applies a per-request deadline, classifies its
// failure into a DispatchError kind, and never retries on its own.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// ClientConfig holds configuration options for the backend client.
type ClientConfig struct {
	// BaseURL is the backend origin (default: http://127.0.0.1:8000).
	BaseURL string

	// Timeout applies per call (default: 30s).
	Timeout time.Duration

	// Tracer records one span per dispatch; nil disables tracing.
	Tracer trace.Tracer

	// Logger receives classification details; nil uses slog.Default.
	Logger *slog.Logger
}

// Client dispatches requests to the question-answering backend.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	timeout    time.Duration
	httpClient *http.Client
	tracer     trace.Tracer
	logger     *slog.Logger
}

// NewClient creates a backend client, filling defaults for zero values.
func NewClient(cfg ClientConfig) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://127.0.0.1:8000"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Tracer == nil {
		cfg.Tracer = noop.NewTracerProvider().Tracer("api")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		timeout:    cfg.Timeout,
		httpClient: &http.Client{},
		tracer:     cfg.Tracer,
		logger:     cfg.Logger,
	}
}

// Chat sends a question tagged with the session id and returns the
// validated answer.
func (c *Client) Chat(ctx context.Context, question, sessionID string) (*ChatResponse, error) {
	body, err := json.Marshal(ChatRequest{Question: question, SessionID: sessionID})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal chat request: %w", err)
	}

	var resp ChatResponse
	if err := c.dispatch(ctx, "chat", http.MethodPost, "/chat", body, &resp); err != nil {
		return nil, err
	}
	if err := validateChat(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Search runs a document search. The backend's ordering of the result
// list is authoritative and preserved as-is.
func (c *Client) Search(ctx context.Context, query string, k int) (*SearchResponse, error) {
	path := "/search?query=" + url.QueryEscape(query) + "&k=" + strconv.Itoa(k)

	var resp SearchResponse
	if err := c.dispatch(ctx, "search", http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for _, doc := range resp.Documents {
		if doc.Similarity < 0 || doc.Similarity > 1 {
			return nil, &DispatchError{
				Kind:   KindMalformedResponse,
				Detail: fmt.Sprintf("similarity %v out of range", doc.Similarity),
			}
		}
	}
	return &resp, nil
}

// Health queries backend liveness. It prefers the enhanced endpoint and
// falls back to the root endpoint when the backend does not expose it.
func (c *Client) Health(ctx context.Context) (*HealthResponse, error) {
	var resp HealthResponse
	err := c.dispatch(ctx, "health", http.MethodGet, "/health/enhanced", nil, &resp)
	if err == nil {
		return &resp, nil
	}
	if de := AsDispatchError(err); de.Kind == KindHTTP && de.Status == http.StatusNotFound {
		resp = HealthResponse{}
		if err := c.dispatch(ctx, "health", http.MethodGet, "/", nil, &resp); err != nil {
			return nil, err
		}
		return &resp, nil
	}
	return nil, err
}

// dispatch performs one request/response cycle and decodes the body into
// out. All failures come back as a *DispatchError.
func (c *Client) dispatch(ctx context.Context, kind, method, path string, body []byte, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	ctx, span := c.tracer.Start(ctx, "dispatch."+kind,
		trace.WithAttributes(attribute.String("http.method", method)))
	defer span.End()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &DispatchError{Kind: KindNetworkUnreachable, Cause: err}
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		de := classifyTransport(ctx, err)
		c.logger.Warn("dispatch failed", "endpoint", kind, "kind", de.Kind.String(), "error", err)
		return de
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		de := classifyTransport(ctx, err)
		c.logger.Warn("dispatch failed reading body", "endpoint", kind, "kind", de.Kind.String(), "error", err)
		return de
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		de := &DispatchError{Kind: KindHTTP, Status: resp.StatusCode, Detail: extractDetail(raw)}
		c.logger.Warn("dispatch rejected", "endpoint", kind, "status", resp.StatusCode, "detail", de.Detail)
		return de
	}

	if err := json.Unmarshal(raw, out); err != nil {
		c.logger.Warn("dispatch returned unparseable body", "endpoint", kind, "error", err)
		return &DispatchError{Kind: KindMalformedResponse, Cause: err}
	}
	return nil
}

// classifyTransport distinguishes an elapsed deadline from a connection
// that never got established.
func classifyTransport(ctx context.Context, err error) *DispatchError {
	if errors.Is(err, context.DeadlineExceeded) || ctx.Err() == context.DeadlineExceeded {
		return &DispatchError{Kind: KindTimeout, Cause: err}
	}
	return &DispatchError{Kind: KindNetworkUnreachable, Cause: err}
}

// extractDetail pulls the structured detail out of an error body when
// present, otherwise returns the body as opaque text.
func extractDetail(raw []byte) string {
	var det errorDetail
	if err := json.Unmarshal(raw, &det); err == nil {
		if det.Detail != "" {
			return det.Detail
		}
		if det.Error != "" {
			return det.Error
		}
	}
	return string(raw)
}

// validateChat enforces the response schema: the answer must be present
// and confidence/similarity scores must stay within [0,1]. Out-of-range
// values are rejected as malformed, never clamped.
func validateChat(resp *ChatResponse) error {
	if resp.Answer == "" {
		return &DispatchError{Kind: KindMalformedResponse, Detail: "missing answer"}
	}
	if resp.Confidence != nil && (*resp.Confidence < 0 || *resp.Confidence > 1) {
		return &DispatchError{
			Kind:   KindMalformedResponse,
			Detail: fmt.Sprintf("confidence %v out of range", *resp.Confidence),
		}
	}
	for _, src := range resp.Sources {
		if src.Similarity < 0 || src.Similarity > 1 {
			return &DispatchError{
				Kind:   KindMalformedResponse,
				Detail: fmt.Sprintf("similarity %v out of range", src.Similarity),
			}
		}
	}
	return nil
}
