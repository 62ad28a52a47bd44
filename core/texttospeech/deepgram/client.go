package deepgram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/comprehension-engine/voice-core/core/audio"
	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultBaseURL = "https://api.deepgram.com/v1"
	defaultTimeout = 30 * time.Second
)

// Client synthesizes speech through Deepgram Aura. It is the lower-fidelity
// fallback path, so requests favour fast raw PCM over container formats.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client

	voice        string
	encodingInfo audio.EncodingInfo
}

type ClientOption func(*Client)

func WithBaseURL(url string) ClientOption {
	return func(c *Client) { c.baseURL = url }
}

func WithVoice(voice string) ClientOption {
	return func(c *Client) { c.voice = voice }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) ClientOption {
	return func(c *Client) {
		if encodingInfo.IsZero() {
			return
		}

		c.encodingInfo = encodingInfo
	}
}

func NewClient(opts ...ClientOption) (*Client, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	client := &Client{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout:   defaultTimeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		voice:        defaultVoice,
		encodingInfo: audio.GetDefaultEncodingInfo(),
	}
	for _, opt := range opts {
		opt(client)
	}

	if !slices.Contains(GetAvailableVoices(), client.voice) {
		return nil, fmt.Errorf("invalid voice")
	}

	return client, nil
}

func (c *Client) Name() string { return "deepgram" }

// Synthesize converts text to raw audio in one buffered request.
func (c *Client) Synthesize(ctx context.Context, text string, opts ...texttospeech.SynthesisOption) ([]byte, error) {
	options := texttospeech.SynthesisOptions{Voice: c.voice, EncodingInfo: c.encodingInfo}
	for _, opt := range opts {
		opt(&options)
	}

	body, err := json.Marshal(struct {
		Text string `json:"text"`
	}{Text: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal synthesis request: %w", err)
	}

	urlValues := url.Values{}
	urlValues.Set("model", options.Voice)
	urlValues.Set("encoding", options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	urlValues.Set("container", "none")

	request, err := http.NewRequestWithContext(
		ctx,
		http.MethodPost,
		fmt.Sprintf("%s/speak?%s", c.baseURL, urlValues.Encode()),
		bytes.NewReader(body),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create synthesis request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "token "+c.apiKey)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return nil, fmt.Errorf("synthesis request failed: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return nil, fmt.Errorf("synthesis request failed with status %d: %s", response.StatusCode, payload)
	}

	audioPayload, err := io.ReadAll(response.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read synthesized audio: %w", err)
	}

	return audioPayload, nil
}
