package hal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/roach88/hyperdash/internal/faults"
)

const tracerName = "github.com/roach88/hyperdash/internal/hal"

// Client performs requests against hypermedia endpoints.
// GET is assumed idempotent; PUT and POST are not, and are never retried.
type Client interface {
	Get(ctx context.Context, url string) (Representation, error)
	Put(ctx context.Context, url string, body Representation) (Representation, error)
	Post(ctx context.Context, url string, body Representation) (Representation, error)
}

// HTTPClient is the Client backed by net/http.
// All failures are returned as faults.CodeTransport errors.
type HTTPClient struct {
	httpc  *http.Client
	tracer trace.Tracer
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithHTTPClient replaces the underlying *http.Client.
func WithHTTPClient(c *http.Client) Option {
	return func(h *HTTPClient) {
		h.httpc = c
	}
}

// WithTimeout bounds each request. A hung endpoint surfaces as a transport
// fault instead of stalling a poll cycle or workflow step.
func WithTimeout(d time.Duration) Option {
	return func(h *HTTPClient) {
		h.httpc.Timeout = d
	}
}

// NewHTTPClient creates a client with a 10 second default timeout.
func NewHTTPClient(opts ...Option) *HTTPClient {
	h := &HTTPClient{
		httpc:  &http.Client{Timeout: 10 * time.Second},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Get fetches a representation.
func (h *HTTPClient) Get(ctx context.Context, url string) (Representation, error) {
	return h.do(ctx, http.MethodGet, url, nil)
}

// Put replaces the resource at url with body and returns the server's
// representation of the result.
func (h *HTTPClient) Put(ctx context.Context, url string, body Representation) (Representation, error) {
	return h.do(ctx, http.MethodPut, url, body)
}

// Post submits body to url.
func (h *HTTPClient) Post(ctx context.Context, url string, body Representation) (Representation, error) {
	return h.do(ctx, http.MethodPost, url, body)
}

func (h *HTTPClient) do(ctx context.Context, method, url string, body Representation) (rep Representation, err error) {
	ctx, span := h.tracer.Start(ctx, "hal."+method,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.url", url),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, faults.NewTransport(method, url, 0, fmt.Errorf("encode body: %w", err))
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, faults.NewTransport(method, url, 0, err)
	}
	req.Header.Set("Accept", MediaType)
	if body != nil {
		req.Header.Set("Content-Type", MediaType)
	}

	resp, err := h.httpc.Do(req)
	if err != nil {
		return nil, faults.NewTransport(method, url, 0, err)
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, faults.NewTransport(method, url, resp.StatusCode, nil)
	}

	rep, err = Decode(resp.Body)
	if err != nil {
		return nil, faults.NewTransport(method, url, resp.StatusCode, err)
	}
	return rep, nil
}
