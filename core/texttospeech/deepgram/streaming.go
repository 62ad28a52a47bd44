package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"

	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"github.com/gorilla/websocket"
)

const speakHost = "api.deepgram.com"

type websocketMessage struct {
	Type string `json:"type"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

type speakTextMsg struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// SynthesizeStream synthesizes text over the Speak websocket, forwarding raw
// audio chunks to onAudio as they are generated. A fresh connection is opened
// per call; the flush confirmation marks the end of the stream.
func (c *Client) SynthesizeStream(ctx context.Context, text string, onAudio func([]byte), opts ...texttospeech.SynthesisOption) error {
	options := texttospeech.SynthesisOptions{Voice: c.voice, EncodingInfo: c.encodingInfo}
	for _, opt := range opts {
		opt(&options)
	}

	urlValues := url.Values{}
	urlValues.Set("model", options.Voice)
	urlValues.Set("encoding", options.EncodingInfo.Format.Name())
	urlValues.Set("sample_rate", strconv.Itoa(options.EncodingInfo.SampleRate))
	urlValues.Set("container", "none")

	conn, _, err := websocket.DefaultDialer.DialContext(ctx,
		(&url.URL{
			Scheme:   "wss",
			Host:     speakHost,
			Path:     "/v1/speak",
			RawQuery: urlValues.Encode(),
		}).String(),
		http.Header{"Authorization": {"token " + c.apiKey}},
	)
	if err != nil {
		return fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	var closeOnce sync.Once
	closeConn := func() { closeOnce.Do(func() { _ = conn.Close() }) }
	defer closeConn()

	for _, msg := range []any{speakTextMsg{Type: "Speak", Text: text}, flushMsg} {
		if err := conn.WriteJSON(msg); err != nil {
			return fmt.Errorf("failed to write to deepgram websocket: %w", err)
		}
	}

	done := make(chan error, 1)
	go func() {
		for {
			msgType, msg, err := conn.ReadMessage()
			if err != nil {
				done <- fmt.Errorf("websocket read failed: %w", err)
				return
			}

			switch msgType {
			case websocket.BinaryMessage:
				if onAudio != nil && len(msg) > 0 {
					onAudio(msg)
				}
			case websocket.TextMessage:
				var parsedMsg websocketMessage
				if err := json.Unmarshal(msg, &parsedMsg); err != nil {
					continue
				}

				if parsedMsg.Type == "Flushed" {
					_ = conn.WriteJSON(closeMsg)
					done <- nil
					return
				}
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
