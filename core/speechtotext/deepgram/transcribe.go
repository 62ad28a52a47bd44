package deepgram

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/comprehension-engine/voice-core/core/audio"
	"github.com/comprehension-engine/voice-core/core/speechtotext"
	api "github.com/deepgram/deepgram-go-sdk/pkg/api/listen/v1/websocket/interfaces"
	"github.com/gorilla/websocket"
)

// Transcribe opens a live transcription stream. Audio is fed through
// [TranscriptionClient.SendAudio]; results and speech boundary events arrive
// through the configured callbacks until the stream is stopped or ctx is
// cancelled.
func (s *TranscriptionClient) Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error {
	options := &speechtotext.TranscriptionOptions{EncodingInfo: audio.GetDefaultEncodingInfo()}
	for _, opt := range opts {
		opt(options)
	}

	encoding, err := convertEncoding(options.EncodingInfo)
	if err != nil {
		return fmt.Errorf("invalid encoding: %w", err)
	}

	callbacks, wsConfig := newCallbackConfig(*options)
	wsConfig.sampleRate = encoding.SampleRate
	wsConfig.encoding = encoding.Format.Name()

	conn, err := connectWebsocket(wsConfig)
	if err != nil {
		return fmt.Errorf("failed to open websocket: %w", err)
	}

	s.connMu.Lock()
	s.conn = conn
	s.connMu.Unlock()

	go s.readAndProcessMessages(ctx, conn, options.EncodingInfo, callbacks)

	return nil
}

type transcriptionCallbacks struct {
	interimTranscriptionCallback func(transcript string)
	transcriptionCallback        func(transcript string)
	startSpeechCallback          func()
	endSpeechCallback            func()

	wantsTranscripts bool
}

type websocketConfig struct {
	sampleRate int
	encoding   string

	shouldDetectSpeechStart            bool
	shouldEnhanceSpeechEndingDetection bool
	shouldRequestInterimResults        bool
}

// newCallbackConfig normalizes options into always-callable callbacks and the
// websocket features they require.
func newCallbackConfig(options speechtotext.TranscriptionOptions) (transcriptionCallbacks, websocketConfig) {
	callbacks := transcriptionCallbacks{
		interimTranscriptionCallback: options.InterimTranscriptionCallback,
		transcriptionCallback:        options.TranscriptionCallback,
		startSpeechCallback:          options.SpeechStartedCallback,
		endSpeechCallback:            options.SpeechEndedCallback,
		wantsTranscripts:             options.TranscriptionCallback != nil,
	}
	if callbacks.interimTranscriptionCallback == nil {
		callbacks.interimTranscriptionCallback = func(string) {}
	}
	if callbacks.transcriptionCallback == nil {
		callbacks.transcriptionCallback = func(string) {}
	}
	if callbacks.startSpeechCallback == nil {
		callbacks.startSpeechCallback = func() {}
	}
	if callbacks.endSpeechCallback == nil {
		callbacks.endSpeechCallback = func() {}
	}

	return callbacks, websocketConfig{
		shouldDetectSpeechStart: options.SpeechStartedCallback != nil,
		shouldEnhanceSpeechEndingDetection: options.TranscriptionCallback != nil ||
			options.SpeechEndedCallback != nil,
		shouldRequestInterimResults: options.InterimTranscriptionCallback != nil,
	}
}

func connectWebsocket(config websocketConfig) (*websocket.Conn, error) {
	apiKey, ok := os.LookupEnv("DEEPGRAM_API_KEY")
	if !ok {
		return nil, fmt.Errorf("deepgram api key not found")
	}

	listenUrl, _ := url.Parse("wss://api.deepgram.com/v1/listen")
	queryParams := listenUrl.Query()
	queryParams.Set("encoding", config.encoding)
	queryParams.Set("sample_rate", strconv.Itoa(config.sampleRate))
	queryParams.Set("channels", "1")
	queryParams.Set("model", "nova-3")
	queryParams.Set("language", "en-US")
	queryParams.Set("smart_format", "true")
	if config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("utterance_end_ms", "1000")
		queryParams.Set("interim_results", "true")
	} else if config.shouldRequestInterimResults {
		queryParams.Set("interim_results", "true")
	}
	queryParams.Set("endpointing", "300")
	if config.shouldDetectSpeechStart || config.shouldEnhanceSpeechEndingDetection {
		queryParams.Set("vad_events", "true")
	}

	listenUrl.RawQuery = queryParams.Encode()
	conn, _, err := websocket.DefaultDialer.Dial(listenUrl.String(),
		http.Header{"Authorization": {"Token " + apiKey}})
	if err != nil {
		return nil, fmt.Errorf("failed to open socket connection to deepgram: %w", err)
	}

	return conn, nil
}

func (s *TranscriptionClient) readAndProcessMessages(ctx context.Context, conn *websocket.Conn, encoding audio.EncodingInfo, callbacks transcriptionCallbacks) {
	silenceCtx, silenceCancel := context.WithCancel(ctx)
	defer silenceCancel()

	go s.generateSilence(silenceCtx, encoding)

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			if err.Error() != "websocket: close 1000 (normal)" {
				logger.Warn("Failed to read deepgram websocket message", "error", err)
			}

			s.connMu.Lock()
			s.conn = nil
			s.connMu.Unlock()
			conn.Close()
			return
		}
		if msgType != websocket.BinaryMessage {
			s.processMessage(msg, callbacks)
		}
	}
}

func (s *TranscriptionClient) processMessage(msg []byte, callbacks transcriptionCallbacks) {
	var parsedMsg struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(msg, &parsedMsg); err != nil {
		logger.Warn("Failed to unmarshal deepgram message", "error", err)
		return
	}

	switch api.TypeResponse(parsedMsg.Type) {
	case api.TypeMessageResponse:
		var msgResp api.MessageResponse
		if err := json.Unmarshal(msg, &msgResp); err != nil {
			logger.Warn("Failed to unmarshal deepgram message", "error", err)
			return
		}

		if len(msgResp.Channel.Alternatives) == 0 {
			return
		}
		transcript := strings.TrimSpace(msgResp.Channel.Alternatives[0].Transcript)

		if msgResp.IsFinal {
			if len(transcript) > 0 && callbacks.wantsTranscripts {
				s.accumulatedTranscript += " " + transcript
			}
			if msgResp.SpeechFinal {
				s.onSpeechEnded(callbacks)
			}
			return
		}

		if len(transcript) > 0 {
			callbacks.interimTranscriptionCallback(strings.TrimSpace(s.accumulatedTranscript + " " + transcript))
		}

	case api.TypeUtteranceEndResponse:
		if s.unendedSegment {
			s.onSpeechEnded(callbacks)
		}

	case api.TypeSpeechStartedResponse:
		s.unendedSegment = true
		callbacks.startSpeechCallback()
	}
}

func (s *TranscriptionClient) onSpeechEnded(callbacks transcriptionCallbacks) {
	s.unendedSegment = false

	fullTranscript := strings.TrimSpace(s.accumulatedTranscript)
	s.accumulatedTranscript = ""
	if len(fullTranscript) > 0 {
		callbacks.transcriptionCallback(fullTranscript)
	}

	callbacks.endSpeechCallback()
}
