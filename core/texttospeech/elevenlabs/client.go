package elevenlabs

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	baseURL = "https://api.elevenlabs.io/v1"

	// ModelMultilingual is the multilingual v2 model used by the tutoring
	// backend.
	ModelMultilingual = "eleven_multilingual_v2"
	// ModelTurbo is the low-latency turbo model.
	ModelTurbo = "eleven_turbo_v2_5"

	defaultTimeout = 60 * time.Second

	defaultStability       = 0.5
	defaultSimilarityBoost = 0.75
)

// Client is the high-fidelity synthesis path. It supports a buffered request
// per task plus a low-latency websocket stream-input variant (streaming.go).
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	voice string
	model string
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = httpClient }
}

func WithDefaultVoice(voice string) ClientOption {
	return func(c *Client) { c.voice = voice }
}

func WithModel(model string) ClientOption {
	return func(c *Client) { c.model = model }
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("ELEVENLABS_API_KEY")
	if !ok {
		return nil, fmt.Errorf("elevenlabs api key not found")
	}

	client := &Client{
		apiKey:  apiKey,
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		voice: DefaultVoiceID,
		model: ModelMultilingual,
	}
	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

func (c *Client) Name() string { return "elevenlabs" }

type synthesisRequest struct {
	Text          string         `json:"text"`
	ModelID       string         `json:"model_id,omitempty"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
}

type voiceSettings struct {
	Stability       float64 `json:"stability"`
	SimilarityBoost float64 `json:"similarity_boost"`
}

// Synthesize converts text to audio in one buffered request.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := texttospeech.SynthesisOptions{Voice: c.voice, Model: c.model}
	for _, opt := range opts {
		opt(&options)
	}

	body, err := json.Marshal(synthesisRequest{
		Text:    text,
		ModelID: options.Model,
		VoiceSettings: &voiceSettings{
			Stability:       defaultStability,
			SimilarityBoost: defaultSimilarityBoost,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/text-to-speech/%s", c.baseURL, options.Voice),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("xi-api-key", c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return nil, fmt.Errorf("synthesis request failed with status %d: %s", response.StatusCode, payload)
	}

	audio, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	return audio, nil
}
