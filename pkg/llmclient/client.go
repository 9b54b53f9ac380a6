// Package llmclient adapts an HTTP chat-completions endpoint to the
// Client contract, retrying transient failures with exponential backoff and
// honoring context cancellation as an abort rather than a retryable error.
package llmclient

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentsociety/runtime/pkg/apperr"
)

// defaultTransportTimeout bounds a single HTTP attempt; Chat's own backoff
// loop is what governs overall retry duration, not this client's timeout.
const defaultTransportTimeout = 30 * time.Second

// Codec translates between this package's provider-agnostic Request/Response
// and a specific provider's wire format. Implementations live alongside
// whichever provider they target (OpenAI-compatible, Anthropic, etc.).
type Codec interface {
	EncodeRequest(req Request) (method, url string, body []byte, headers map[string]string, err error)
	DecodeResponse(body []byte) (Response, error)
}

// HTTPClient is an llmclient.Client that owns its own retry/backoff
// schedule around a plain net/http transport.
type HTTPClient struct {
	http       *http.Client
	codec      Codec
	maxRetries int
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithMaxRetries overrides the default retry count.
func WithMaxRetries(n int) Option {
	return func(c *HTTPClient) { c.maxRetries = n }
}

// WithHTTPClient overrides the transport (e.g. for injecting a fake server
// dialer in tests or a custom *http.Transport for connection pooling).
func WithHTTPClient(h *http.Client) Option {
	return func(c *HTTPClient) { c.http = h }
}

// NewHTTPClient builds an HTTPClient over codec. The single-attempt
// transport is a plain *http.Client with a fixed timeout; the 2^i*1000ms
// retry schedule across attempts is owned entirely by Chat below.
func NewHTTPClient(codec Codec, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		http:       &http.Client{Timeout: defaultTransportTimeout},
		codec:      codec,
		maxRetries: 3,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Chat performs the chat completion call, retrying on transport/provider
// failure with backoff 2^i * 1000ms for i in [0, maxRetries). A context
// cancellation or deadline during the call is surfaced as request_aborted
// and is never retried.
func (c *HTTPClient) Chat(ctx context.Context, req Request) (Response, error) {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return Response{}, apperr.Wrap(apperr.RequestAborted, err, "context cancelled before llm call")
		}

		resp, err := c.attempt(ctx, req)
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return Response{}, apperr.Wrap(apperr.RequestAborted, ctx.Err(), "context cancelled during llm call")
		}
		lastErr = err

		if i < c.maxRetries-1 {
			delay := time.Duration(1<<uint(i)) * time.Second
			slog.Warn("llmclient: retrying after failure", "agentId", req.AgentID, "attempt", i+1, "delay", delay, "err", err)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return Response{}, apperr.Wrap(apperr.RequestAborted, ctx.Err(), "context cancelled while backing off")
			}
		}
	}
	return Response{}, apperr.Wrap(apperr.LLMCallFailedAfterRetries, lastErr, fmt.Sprintf("agentId=%s", req.AgentID))
}

func (c *HTTPClient) attempt(ctx context.Context, req Request) (Response, error) {
	method, url, body, headers, err := c.codec.EncodeRequest(req)
	if err != nil {
		return Response{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return Response{}, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, err
	}
	if resp.StatusCode >= 400 {
		return Response{}, fmt.Errorf("llm endpoint returned status %d: %s", resp.StatusCode, truncate(respBody, 500))
	}

	return c.codec.DecodeResponse(respBody)
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}
