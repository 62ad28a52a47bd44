package orchestration

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/comprehension-engine/voice-core/core/events"
	"github.com/comprehension-engine/voice-core/core/speechtotext"
	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Orchestrator coordinates the voice turn lifecycle on the client side of the
// tutoring app: reassembling streamed response deltas into sentences, playing
// them strictly in order, and arbitrating the microphone against its own
// speech.
type Orchestrator struct {
	turns turnController

	queue      *playbackQueue
	arbitrator *audioArbitrator

	// audioInput is the capture facade enforcing the half-duplex gate.
	audioInput *audioInput
	// audioOutput is the playback facade used by the queue.
	audioOutput  *audioOutput
	speechToText SpeechToText
	ledger       SpokenLedger

	primarySynthesizer  texttospeech.Synthesizer
	fallbackSynthesizer texttospeech.Synthesizer
	voice               string
	streamingSynthesis  bool

	mu sync.Mutex
	// reassembler belongs to the live turn; replaced wholesale on StartTurn
	// so a superseded turn's deltas can never leak into the new one.
	reassembler   *sentenceReassembler
	activeTurnID  uint64
	turnCompleted bool
	// activeResponseID is the ledger id for the live turn's final response,
	// empty when the caller did not provide one.
	activeResponseID string

	emitMu  sync.RWMutex
	emitter eventEmitter

	orchestrateOptions OrchestrateOptions
	baseContext        context.Context
	cancelRuntime      context.CancelFunc

	started   atomic.Bool
	closeOnce sync.Once
}

func NewOrchestrator(opts ...OrchestratorOption) *Orchestrator {
	o := &Orchestrator{
		emitter:     noopEventEmitter,
		baseContext: context.Background(),
	}

	o.audioOutput = newAudioOutput(nil)
	o.audioInput = newAudioInput(nil, func(audio []byte) {
		if o.speechToText == nil {
			return
		}
		if err := o.speechToText.SendAudio(audio); err != nil {
			logger.Warn("Failed to forward captured audio", "error", err)
		}
	})
	o.arbitrator = newAudioArbitrator(o.audioInput, o.emitEvent, o.hasPendingWork)

	for _, opt := range opts {
		opt(o)
	}

	o.queue = newPlaybackQueue(
		o.primarySynthesizer,
		o.fallbackSynthesizer,
		o.audioOutput,
		o.emitEvent,
		playbackCallbacks{
			onSpeakingStarted: func(playbackTask) { o.arbitrator.OnSpeakingStarted() },
			onSpeakingEnded:   func(playbackTask, error) { o.arbitrator.OnSpeakingEnded() },
			onQueueDrained:    func() { o.arbitrator.OnQueueDrained() },
		},
	)
	o.queue.SetVoice(o.voice)
	o.queue.streamingPreferred = o.streamingSynthesis

	return o
}

// Orchestrate starts the playback worker, the arbitration scheduler, and live
// transcription. ctx bounds everything; cancelling it is equivalent to Close.
//
// Contract: call Orchestrate at most once per orchestrator instance.
func (o *Orchestrator) Orchestrate(ctx context.Context, opts ...OrchestrateOption) {
	if !o.started.CompareAndSwap(false, true) {
		logger.Warn("Orchestrator already started, skipping Orchestrate")
		return
	}

	o.orchestrateOptions = OrchestrateOptions{}
	for _, opt := range opts {
		opt(&o.orchestrateOptions)
	}

	o.emitMu.Lock()
	o.emitter = newCallbackEventEmitter(o.orchestrateOptions)
	o.emitMu.Unlock()

	o.baseContext = ctx
	runtimeCtx, cancel := context.WithCancel(ctx)
	o.cancelRuntime = cancel

	go o.queue.Run(runtimeCtx)
	go o.arbitrator.Run(runtimeCtx)
	go func() {
		<-ctx.Done()
		o.Close()
	}()

	if o.speechToText != nil {
		if err := o.speechToText.Transcribe(
			runtimeCtx,
			speechtotext.WithEncodingInfo(o.audioInput.EncodingInfo()),
			speechtotext.WithTranscriptionCallback(func(transcript string) {
				if o.orchestrateOptions.onTranscription != nil {
					o.orchestrateOptions.onTranscription(transcript)
				}
			}),
			speechtotext.WithInterimTranscriptionCallback(func(transcript string) {
				if o.orchestrateOptions.onInterimTranscription != nil {
					o.orchestrateOptions.onInterimTranscription(transcript)
				}
			}),
			speechtotext.WithSpeechStartedCallback(func() {
				if o.orchestrateOptions.onUserSpeechChanged != nil {
					o.orchestrateOptions.onUserSpeechChanged(true)
				}
			}),
			speechtotext.WithSpeechEndedCallback(func() {
				if o.orchestrateOptions.onUserSpeechChanged != nil {
					o.orchestrateOptions.onUserSpeechChanged(false)
				}
			}),
		); err != nil {
			recordedErr := fmt.Errorf("failed to initialize speech-to-text: %w", err)
			span := trace.SpanFromContext(o.baseContext)
			span.RecordError(recordedErr)
			span.SetStatus(codes.Error, recordedErr.Error())
		}
	}

	o.audioInput.Start(runtimeCtx)
}

func (o *Orchestrator) Close() {
	o.closeOnce.Do(func() {
		if o.cancelRuntime != nil {
			o.cancelRuntime()
		}
		o.queue.Close()
		o.audioInput.Close()
	})
}

// StartTurn supersedes the live turn and returns the new turn id. Any
// playback and held sentences from the previous turn are aborted before the
// id is returned, so no stale audio can slip out afterwards.
func (o *Orchestrator) StartTurn(opts ...TurnOption) uint64 {
	options := turnOptions{}
	for _, opt := range opts {
		opt(&options)
	}

	o.mu.Lock()
	var cancelledTurnID uint64
	if o.reassembler != nil && !o.turnCompleted {
		cancelledTurnID = o.activeTurnID
	}

	turnID := o.turns.Begin()
	o.activeTurnID = turnID
	o.turnCompleted = false
	o.activeResponseID = options.responseID
	o.reassembler = newSentenceReassembler(func(index int, text string) {
		o.onSentence(turnID, index, text)
	})
	o.mu.Unlock()

	o.queue.Reset()

	if cancelledTurnID != 0 {
		o.emitEvent(events.NewTurnCancelled(cancelledTurnID))
	}
	o.emitEvent(events.NewTurnStarted(turnID))

	return turnID
}

// OnDelta feeds one streamed response fragment into the live turn. Deltas
// carrying a superseded turn id are dropped.
func (o *Orchestrator) OnDelta(turnID uint64, index int, text string) {
	if !o.turns.IsCurrent(turnID) {
		return
	}

	o.mu.Lock()
	reassembler := o.reassembler
	if o.activeTurnID != turnID {
		reassembler = nil
	}
	o.mu.Unlock()

	reassembler.AddDelta(index, text)
}

// OnStreamDone marks the live turn's stream complete, releasing every held
// sentence. When the turn carries a response id and voice mode is still
// active, the response is recorded in the spoken ledger. Stale turn ids are
// dropped.
func (o *Orchestrator) OnStreamDone(turnID uint64) {
	if !o.turns.IsCurrent(turnID) {
		return
	}

	o.mu.Lock()
	reassembler := o.reassembler
	if o.activeTurnID != turnID {
		reassembler = nil
	}
	responseID := o.activeResponseID
	o.turnCompleted = true
	o.mu.Unlock()

	reassembler.Flush()

	if responseID != "" && o.ledger != nil && !o.turns.IsAutoSpeakBlocked() {
		if err := o.ledger.MarkSpoken(responseID); err != nil {
			logger.Warn("Failed to mark response as spoken", "response_id", responseID, "error", err)
		}
	}

	o.emitEvent(events.NewTurnCompleted(turnID))
}

// CancelTurn aborts the live turn: held sentences are dropped and playback
// stops.
func (o *Orchestrator) CancelTurn() {
	o.mu.Lock()
	turnID := o.activeTurnID
	alreadyDone := o.turnCompleted || o.reassembler == nil
	o.turnCompleted = true
	o.reassembler = nil
	o.activeResponseID = ""
	o.mu.Unlock()

	o.queue.Reset()

	if !alreadyDone {
		o.emitEvent(events.NewTurnCancelled(turnID))
	}
}

// Speak enqueues text for playback directly, outside any turn.
func (o *Orchestrator) Speak(text string) {
	o.queue.Enqueue(text)
}

// AutoSpeak speaks a response unless auto-speech is blocked or the response
// was already read aloud. It reports whether the response was scheduled.
func (o *Orchestrator) AutoSpeak(responseID, text string) bool {
	if o.turns.IsAutoSpeakBlocked() {
		return false
	}
	if o.ledger != nil && o.ledger.HasSpoken(responseID) {
		return false
	}

	o.Speak(text)

	if o.ledger != nil {
		if err := o.ledger.MarkSpoken(responseID); err != nil {
			logger.Warn("Failed to mark response as spoken", "response_id", responseID, "error", err)
		}
	}

	return true
}

// EnterVoiceMode opens the microphone and re-enables auto-speech.
func (o *Orchestrator) EnterVoiceMode() {
	o.turns.UnblockAutoSpeak()
	o.arbitrator.EnterVoiceMode()
}

// ExitVoiceMode closes the microphone, stops playback, and blocks auto-speech
// for responses that finish streaming afterwards.
func (o *Orchestrator) ExitVoiceMode() {
	o.turns.BlockAutoSpeak()
	o.queue.Reset()
	o.arbitrator.ExitVoiceMode()
}

// ForceActivateMicrophone cuts off assistant speech and reopens the
// microphone immediately, skipping the cooldown.
func (o *Orchestrator) ForceActivateMicrophone() {
	o.queue.Reset()
	o.arbitrator.ForceActivate()
}

// ResetQueue aborts active playback and drops all pending sentences.
func (o *Orchestrator) ResetQueue() {
	o.queue.Reset()
}

// SetVoice changes the synthesis voice for subsequently enqueued sentences.
func (o *Orchestrator) SetVoice(voice string) {
	o.queue.SetVoice(voice)
}

// SendAudio forwards externally captured audio to the transcriber, bypassing
// the input facade.
func (o *Orchestrator) SendAudio(audio []byte) error {
	if o.speechToText == nil {
		return fmt.Errorf("no speech-to-text client configured")
	}

	return o.speechToText.SendAudio(audio)
}

func (o *Orchestrator) State() ArbitrationState { return o.arbitrator.State() }
func (o *Orchestrator) CooldownRemaining() time.Duration {
	return o.arbitrator.CooldownRemaining()
}
func (o *Orchestrator) IsSpeaking() bool      { return o.queue.IsSpeaking() }
func (o *Orchestrator) PendingSentences() int { return o.queue.PendingCount() }
func (o *Orchestrator) CurrentTurn() uint64   { return o.turns.Current() }

func (o *Orchestrator) onSentence(turnID uint64, index int, text string) {
	if !o.turns.IsCurrent(turnID) {
		return
	}

	o.emitEvent(events.NewSentenceReady(turnID, index, text))

	if o.turns.IsAutoSpeakBlocked() {
		// Voice mode was exited while this response was in flight; the text
		// still surfaces, it just is not spoken.
		return
	}

	o.queue.Enqueue(text)
}

func (o *Orchestrator) hasPendingWork() bool {
	if o.queue.PendingCount() > 0 || o.queue.IsSpeaking() {
		return true
	}

	o.mu.Lock()
	reassembler := o.reassembler
	completed := o.turnCompleted
	o.mu.Unlock()

	return !completed && reassembler.PendingCount() > 0
}

func (o *Orchestrator) emitEvent(event events.Event) {
	o.emitMu.RLock()
	emit := o.emitter
	o.emitMu.RUnlock()

	emit(event)
}
