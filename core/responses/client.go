package responses

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// Delta is one server-sent fragment of a streamed tutoring response. Sentence
// indices start at 0 and may repeat across consecutive deltas when a sentence
// arrives split into fragments.
type Delta struct {
	Text          string `json:"text"`
	SentenceIndex int    `json:"sentence_index"`
	Done          bool   `json:"done"`
}

// Client consumes the tutoring backend's streaming response endpoint.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func NewClient(baseURL string, opts ...ClientOption) *Client {
	client := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			// Streams stay open for the whole response, so no client timeout.
			// Cancellation happens through the request context.
			Timeout:   0,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}
	for _, opt := range opts {
		opt(client)
	}

	return client
}

type askRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id,omitempty"`
}

// StreamResponse sends a question and forwards each delta to onDelta in
// arrival order. It returns once the server sends the terminal frame, the
// stream fails, or ctx is cancelled. onDelta never receives the terminal
// frame.
func (c *Client) StreamResponse(ctx context.Context, question string, onDelta func(Delta)) error {
	body, err := json.Marshal(askRequest{Question: question})
	if err != nil {
		return fmt.Errorf("failed to marshal stream request: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/respond", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create stream request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "text/event-stream")

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("stream request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("stream request failed with status %d: %s", response.StatusCode, payload)
	}

	scanner := bufio.NewScanner(response.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			// Blank frame separators and keepalive comments.
			continue
		}

		payload, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}

		var delta Delta
		if err := json.Unmarshal([]byte(strings.TrimSpace(payload)), &delta); err != nil {
			return fmt.Errorf("failed to unmarshal stream delta: %w", err)
		}

		if delta.Done {
			return nil
		}

		if onDelta != nil {
			onDelta(delta)
		}
	}

	if err := scanner.Err(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("stream read failed: %w", err)
	}

	return fmt.Errorf("stream ended without terminal frame")
}
