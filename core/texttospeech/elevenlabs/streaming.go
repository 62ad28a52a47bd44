package elevenlabs

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"

	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"github.com/gorilla/websocket"
)

const streamInputHost = "api.elevenlabs.io"

type streamInitMsg struct {
	Text          string         `json:"text"`
	VoiceSettings *voiceSettings `json:"voice_settings,omitempty"`
	APIKey        string         `json:"xi_api_key,omitempty"`
}

type streamTextMsg struct {
	Text string `json:"text"`
}

type streamResponseMsg struct {
	Audio   string  `json:"audio"`
	IsFinal bool    `json:"isFinal"`
	Error   *string `json:"error"`
}

// SynthesizeStream synthesizes text over the stream-input websocket, forwarding
// audio chunks to onAudio as they are generated. It opens a fresh connection
// per call so an aborted stream cannot bleed audio into the next one.
func (c *Client) SynthesizeStream(ctx context.Context, text string, onAudio func([]byte), opts ...texttospeech.SynthesisOption) error {
	options := texttospeech.SynthesisOptions{Voice: c.voice, Model: c.model}
	for _, opt := range opts {
		opt(&options)
	}

	urlValues := url.Values{}
	urlValues.Set("model_id", options.Model)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme:   "wss",
			Host:     streamInputHost,
			Path:     fmt.Sprintf("/v1/text-to-speech/%s/stream-input", options.Voice),
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"xi-api-key": {c.apiKey}},
	)
	if err != nil {
		return fmt.Errorf("failed to open socket connection to elevenlabs: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	// An empty-text frame also serves as the init message, so the sequence is
	// init, text, end-of-input.
	messages := []any{
		streamInitMsg{
			Text: " ",
			VoiceSettings: &voiceSettings{
				Stability:       defaultStability,
				SimilarityBoost: defaultSimilarityBoost,
			},
		},
		streamTextMsg{Text: text + " "},
		streamTextMsg{Text: ""},
	}
	for _, msg := range messages {
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to write to elevenlabs websocket: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				done <- fmt.Errorf("websocket read failed: %w", err)
				return
			}

			var parsedMsg streamResponseMsg
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				continue
			}

			if parsedMsg.Error != nil {
				done <- fmt.Errorf("elevenlabs stream error: %s", *parsedMsg.Error)
				return
			}

			if parsedMsg.Audio != "" {
				audio, err := base64.StdEncoding.DecodeString(parsedMsg.Audio)
				if err != nil {
					done <- fmt.Errorf("failed to decode audio chunk: %w", err)
					return
				}
				if onAudio != nil && len(audio) > 0 {
					onAudio(audio)
				}
			}

			if parsedMsg.IsFinal {
				done <- nil
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		closeConn()
		<-done
		return ctx.Err()
	case err := <-done:
		return err
	}
}
