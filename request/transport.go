package request

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
)

const (
	// HeaderAPIClient marks requests as coming from an API client rather than a browser form.
	HeaderAPIClient = "X-Api-Client"
	// HeaderRequestID carries a per-call UUID for log correlation on both sides.
	HeaderRequestID = "X-Request-ID"

	// DefaultClientName is sent in HeaderAPIClient when none is configured.
	DefaultClientName = "branchauth"

	maxResponseBytes = 4 << 20
)

// Transport is the black-box remote collaborator: submit(url, payload) -> data | error.
type Transport interface {
	Submit(ctx context.Context, url string, payload map[string]any) (json.RawMessage, error)
}

// StatusError reports a non-2xx response.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("remote returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("remote returned status %d: %s", e.StatusCode, e.Body)
}

// HTTPTransport posts JSON payloads over HTTP.
type HTTPTransport struct {
	client     *http.Client
	clientName string
}

// NewHTTPTransport returns a transport using client. A nil client means http.DefaultClient.
// An empty clientName means DefaultClientName.
func NewHTTPTransport(client *http.Client, clientName string) *HTTPTransport {
	if client == nil {
		client = http.DefaultClient
	}
	if clientName == "" {
		clientName = DefaultClientName
	}
	return &HTTPTransport{client: client, clientName: clientName}
}

// Submit posts payload to url and returns the "data" member of the response.
func (t *HTTPTransport) Submit(ctx context.Context, url string, payload map[string]any) (json.RawMessage, error) {
	body, err := t.Post(ctx, url, payload)
	if err != nil {
		return nil, err
	}

	var envelope struct {
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if len(envelope.Data) == 0 {
		return json.RawMessage("null"), nil
	}
	return envelope.Data, nil
}

// Post sends payload as a JSON POST and returns the raw response body of a 2xx reply.
func (t *HTTPTransport) Post(ctx context.Context, url string, payload any) ([]byte, error) {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(encoded))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set(HeaderAPIClient, t.clientName)
	req.Header.Set(HeaderRequestID, requestID(ctx))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: truncate(string(body), 256)}
	}
	return body, nil
}

type requestIDKey struct{}

// WithRequestID attaches id to ctx. HTTPTransport sends it as HeaderRequestID instead of a
// fresh UUID.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the id attached by WithRequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func requestID(ctx context.Context) string {
	if id := RequestIDFromContext(ctx); id != "" {
		return id
	}
	return uuid.NewString()
}

// IsStatus reports whether err is a StatusError with the given code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == code
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
