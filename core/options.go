package orchestration

import (
	"context"
	"time"

	"github.com/comprehension-engine/voice-core/core/audio"
	"github.com/comprehension-engine/voice-core/core/speechtotext"
	"github.com/comprehension-engine/voice-core/core/texttospeech"
)

type OrchestratorOption func(*Orchestrator)

// WithSynthesizer sets the primary, high-fidelity synthesis client.
func WithSynthesizer(client texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.primarySynthesizer = client }
}

// WithFallbackSynthesizer sets the synthesis client used when the primary one
// fails for a task.
func WithFallbackSynthesizer(client texttospeech.Synthesizer) OrchestratorOption {
	return func(o *Orchestrator) { o.fallbackSynthesizer = client }
}

// WithStreamingSynthesis prefers streamed synthesis for playback when the
// primary synthesizer supports it and an audio output is configured. Tasks
// become audible as the first chunk arrives instead of after full synthesis.
func WithStreamingSynthesis() OrchestratorOption {
	return func(o *Orchestrator) { o.streamingSynthesis = true }
}

type SpeechToText interface {
	Transcribe(ctx context.Context, opts ...speechtotext.TranscriptionOption) error
	SendAudio(audio []byte) error
}

func WithSpeechToTextClient(client SpeechToText) OrchestratorOption {
	return func(o *Orchestrator) { o.speechToText = client }
}

type AudioInput interface {
	EncodingInfo() audio.EncodingInfo
	Stream(ctx context.Context, onAudio func(audio []byte)) error
	Close()
}

type AudioInputWithCaptureControl interface {
	StartCapture(ctx context.Context, onAudio func(audio []byte)) error
	StopCapture() error
}

func WithAudioInput(client AudioInput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioInput.Set(client) }
}

type AudioOutput interface {
	EncodingInfo() audio.EncodingInfo
	SendAudio(audio []byte) error
	ClearBuffer()
}

type AudioOutputWithMarks interface {
	AudioOutput
	Mark(name string, callback func(string)) error
}

func WithAudioOutput(client AudioOutput) OrchestratorOption {
	return func(o *Orchestrator) { o.audioOutput.Set(client) }
}

// SpokenLedger remembers which responses were already read aloud.
type SpokenLedger interface {
	HasSpoken(responseID string) bool
	MarkSpoken(responseID string) error
}

func WithSpokenLedger(ledger SpokenLedger) OrchestratorOption {
	return func(o *Orchestrator) { o.ledger = ledger }
}

// WithVoice sets the synthesis voice for subsequently enqueued sentences.
func WithVoice(voice string) OrchestratorOption {
	return func(o *Orchestrator) { o.voice = voice }
}

// WithCooldown overrides how long the microphone stays closed after the
// assistant finishes speaking.
func WithCooldown(cooldown time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if cooldown <= 0 {
			return
		}
		o.arbitrator.cooldown = cooldown
	}
}

// WithSettleWindow overrides the inter-task settle window.
func WithSettleWindow(window time.Duration) OrchestratorOption {
	return func(o *Orchestrator) {
		if window <= 0 {
			return
		}
		o.arbitrator.settleWindow = window
	}
}

type turnOptions struct {
	responseID string
}

type TurnOption func(*turnOptions)

// WithTurnResponseID associates the turn's final response with a ledger id.
// When the stream completes while voice mode is active, the response is
// recorded as spoken so later re-deliveries are not auto-spoken again.
func WithTurnResponseID(responseID string) TurnOption {
	return func(o *turnOptions) { o.responseID = responseID }
}

type OrchestrateOptions struct {
	onTranscription        func(transcript string)
	onInterimTranscription func(transcript string)
	onUserSpeechChanged    func(isSpeaking bool)

	onSentenceReady   func(turnID uint64, index int, text string)
	onSpeakingStarted func(text string)
	onSpeakingEnded   func(text string, err error)

	onVoiceModeChanged func(state, previous string)
	onCooldownTick     func(remaining time.Duration)

	onTurnStarted   func(turnID uint64)
	onTurnCompleted func(turnID uint64)
	onTurnCancelled func(turnID uint64)
}

type OrchestrateOption func(*OrchestrateOptions)

// WithTranscriptionCallback registers a callback for finalized user
// utterances from the configured speech-to-text client.
func WithTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTranscription = callback
	}
}

// WithInterimTranscriptionCallback registers a callback for in-progress
// transcription hypotheses.
func WithInterimTranscriptionCallback(callback func(transcript string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onInterimTranscription = callback
	}
}

func WithUserSpeechChangedCallback(callback func(isSpeaking bool)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onUserSpeechChanged = callback
	}
}

func WithSentenceReadyCallback(callback func(turnID uint64, index int, text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSentenceReady = callback
	}
}

func WithSpeakingStartedCallback(callback func(text string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSpeakingStarted = callback
	}
}

func WithSpeakingEndedCallback(callback func(text string, err error)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onSpeakingEnded = callback
	}
}

func WithVoiceModeChangedCallback(callback func(state, previous string)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onVoiceModeChanged = callback
	}
}

func WithCooldownTickCallback(callback func(remaining time.Duration)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onCooldownTick = callback
	}
}

func WithTurnStartedCallback(callback func(turnID uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnStarted = callback
	}
}

func WithTurnCompletedCallback(callback func(turnID uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnCompleted = callback
	}
}

func WithTurnCancelledCallback(callback func(turnID uint64)) OrchestrateOption {
	return func(o *OrchestrateOptions) {
		o.onTurnCancelled = callback
	}
}
