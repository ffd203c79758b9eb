package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"assistant-relay/internal/models"
)

// ErrNetworkFailure wraps transport and stream read failures on the client side.
var ErrNetworkFailure = errors.New("relay network failure")

// StatusError is returned when the relay answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("relay responded with status %d: %s", e.StatusCode, e.Body)
}

// Relay opens a streamed answer for a conversation.
type Relay interface {
	Open(ctx context.Context, history []models.Message) (io.ReadCloser, error)
}

type HTTPRelay struct {
	endpoint string
	client   *http.Client
}

// NewHTTPRelay posts to <baseURL>/api/chat. A nil httpClient means no timeout.
func NewHTTPRelay(baseURL string, httpClient *http.Client) *HTTPRelay {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &HTTPRelay{
		endpoint: strings.TrimRight(baseURL, "/") + "/api/chat",
		client:   httpClient,
	}
}

func (r *HTTPRelay) Open(ctx context.Context, history []models.Message) (io.ReadCloser, error) {
	payload, err := json.Marshal(history)
	if err != nil {
		return nil, fmt.Errorf("encode conversation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build relay request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrNetworkFailure, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	return resp.Body, nil
}
