package orchestration

import (
	"context"
	"fmt"
	"sync"

	"github.com/comprehension-engine/voice-core/core/events"
	"github.com/comprehension-engine/voice-core/core/texttospeech"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/codes"
)

// playbackTask is one sentence scheduled for synthesis and playback.
type playbackTask struct {
	ID    string
	Text  string
	Voice string
}

type playbackCallbacks struct {
	onSpeakingStarted func(task playbackTask)
	onSpeakingEnded   func(task playbackTask, err error)
	onQueueDrained    func()
}

// playbackQueue plays sentences strictly in enqueue order with at most one
// task audible at a time. While a task plays, the audio for the next queued
// task is prefetched so back-to-back sentences do not pause for synthesis.
// Prefetching stops at synthesis; playback of the next task never starts
// before the current one ends.
type playbackQueue struct {
	mu sync.Mutex

	tasks  []playbackTask
	active *playbackTask
	// generation invalidates in-flight work after a reset. A worker holding a
	// stale generation must not touch queue state or emit further events for
	// pending tasks.
	generation uint64

	lastEnqueuedText string

	// streamingPreferred routes tasks through streamed synthesis when the
	// primary synthesizer supports it and an output client is configured.
	// Prefetching is skipped in that mode; latency comes from the stream
	// itself.
	streamingPreferred bool

	activeCancel  context.CancelFunc
	activeTaskCtx context.Context
	prefetch      *prefetchedAudio

	voice string

	primary  texttospeech.Synthesizer
	fallback texttospeech.Synthesizer
	sink     *audioOutput

	callbacks playbackCallbacks
	emit      eventEmitter

	updateSignal chan struct{}
	closed       bool

	// baseContext bounds prefetch work started outside the worker loop.
	baseContext context.Context
}

type prefetchedAudio struct {
	text  string
	voice string

	ready  chan struct{}
	audio  []byte
	err    error
	cancel context.CancelFunc
}

func newPlaybackQueue(primary, fallback texttospeech.Synthesizer, sink *audioOutput, emit eventEmitter, callbacks playbackCallbacks) *playbackQueue {
	if emit == nil {
		emit = noopEventEmitter
	}
	if callbacks.onSpeakingStarted == nil {
		callbacks.onSpeakingStarted = func(playbackTask) {}
	}
	if callbacks.onSpeakingEnded == nil {
		callbacks.onSpeakingEnded = func(playbackTask, error) {}
	}
	if callbacks.onQueueDrained == nil {
		callbacks.onQueueDrained = func() {}
	}

	return &playbackQueue{
		primary:      primary,
		fallback:     fallback,
		sink:         sink,
		emit:         emit,
		callbacks:    callbacks,
		updateSignal: make(chan struct{}, 1),
		baseContext:  context.Background(),
	}
}

// SetVoice changes the voice applied to tasks enqueued from now on. Tasks
// already queued keep the voice they were enqueued with.
func (q *playbackQueue) SetVoice(voice string) {
	if q == nil {
		return
	}

	q.mu.Lock()
	q.voice = voice
	q.mu.Unlock()
}

// Enqueue appends a sentence to the queue. A sentence identical to the most
// recently enqueued one is dropped, which absorbs duplicate submissions from
// retried streams.
func (q *playbackQueue) Enqueue(text string) (queued bool) {
	if q == nil || text == "" {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}

	if text == q.lastEnqueuedText {
		q.mu.Unlock()
		return false
	}

	q.tasks = append(q.tasks, playbackTask{
		ID:    uuid.NewString(),
		Text:  text,
		Voice: q.voice,
	})
	q.lastEnqueuedText = text

	// A sentence arriving while its predecessor is audible becomes the next
	// head; prefetching it now hides its synthesis latency behind the active
	// playback.
	if q.active != nil && len(q.tasks) == 1 && !q.streamingPreferred {
		q.startPrefetchLocked(q.baseContext, q.tasks[0])
	}
	q.mu.Unlock()

	q.signalUpdate()
	return true
}

// PendingCount reports queued tasks, not counting the active one.
func (q *playbackQueue) PendingCount() int {
	if q == nil {
		return 0
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// IsSpeaking reports whether a task is currently audible.
func (q *playbackQueue) IsSpeaking() bool {
	if q == nil {
		return false
	}

	q.mu.Lock()
	defer q.mu.Unlock()
	return q.active != nil
}

// Reset aborts the active task, drops every pending task, and invalidates the
// prefetched audio. The aborted task still reports speaking-ended; dropped
// pending tasks never became audible so they report nothing.
func (q *playbackQueue) Reset() {
	if q == nil {
		return
	}

	q.mu.Lock()
	q.tasks = nil
	q.lastEnqueuedText = ""
	q.generation++
	if q.activeCancel != nil {
		q.activeCancel()
	}
	q.invalidatePrefetchLocked()
	q.mu.Unlock()

	q.signalUpdate()
}

// Close resets the queue and stops the worker.
func (q *playbackQueue) Close() {
	if q == nil {
		return
	}

	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.Reset()
}

// Run consumes tasks until ctx is cancelled or the queue is closed. Call it
// once, on its own goroutine.
func (q *playbackQueue) Run(ctx context.Context) {
	q.mu.Lock()
	q.baseContext = ctx
	q.mu.Unlock()

	for {
		task, generation, ok := q.takeNext(ctx)
		if !ok {
			select {
			case <-ctx.Done():
				return
			case <-q.updateSignal:
				q.mu.Lock()
				closed := q.closed
				q.mu.Unlock()
				if closed {
					return
				}
				continue
			}
		}

		q.playTask(ctx, task, generation)

		q.mu.Lock()
		drained := len(q.tasks) == 0 && q.active == nil
		q.mu.Unlock()
		if drained {
			q.callbacks.onQueueDrained()
		}
	}
}

func (q *playbackQueue) takeNext(ctx context.Context) (playbackTask, uint64, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed || len(q.tasks) == 0 {
		return playbackTask{}, 0, false
	}

	task := q.tasks[0]
	q.tasks = q.tasks[1:]
	q.active = &task

	taskCtx, cancel := context.WithCancel(ctx)
	q.activeCancel = cancel
	q.activeTaskCtx = taskCtx

	// Lookahead for the new head while this task plays.
	if len(q.tasks) > 0 && !q.streamingPreferred {
		q.startPrefetchLocked(ctx, q.tasks[0])
	}

	return task, q.generation, true
}

func (q *playbackQueue) playTask(ctx context.Context, task playbackTask, generation uint64) {
	q.mu.Lock()
	taskCtx := q.activeTaskCtx
	q.mu.Unlock()

	defer func() {
		q.mu.Lock()
		if q.active != nil && q.active.ID == task.ID {
			q.active = nil
			if q.activeCancel != nil {
				q.activeCancel()
				q.activeCancel = nil
			}
			q.activeTaskCtx = nil
		}
		q.mu.Unlock()
	}()

	if q.streamingPreferred && q.sink.IsConfigured() {
		if q.playTaskStreaming(taskCtx, task, generation) {
			return
		}
	}

	audio, err := q.audioForTask(taskCtx, task)
	if err != nil {
		// Never became audible, so no speaking-started. Synthesis failures
		// still end the task so the queue can move on.
		q.emit(events.NewSpeakingEnded(task.ID, task.Text, err))
		q.callbacks.onSpeakingEnded(task, err)
		return
	}

	if taskCtx.Err() != nil || q.isStale(generation) {
		q.emit(events.NewSpeakingEnded(task.ID, task.Text, taskCtx.Err()))
		q.callbacks.onSpeakingEnded(task, taskCtx.Err())
		return
	}

	q.emit(events.NewSpeakingStarted(task.ID, task.Text))
	q.callbacks.onSpeakingStarted(task)

	playErr := q.sink.Play(taskCtx, audio)

	q.emit(events.NewSpeakingEnded(task.ID, task.Text, playErr))
	q.callbacks.onSpeakingEnded(task, playErr)
}

// playTaskStreaming plays the task while its synthesis is still in flight,
// forwarding chunks to the output as they arrive. It reports false when the
// stream produced no audio, leaving the task to the buffered path with its
// provider fallback.
func (q *playbackQueue) playTaskStreaming(ctx context.Context, task playbackTask, generation uint64) bool {
	streamer, ok := q.primary.(texttospeech.StreamingSynthesizer)
	if !ok {
		return false
	}

	ctx, span := tracer.Start(ctx, "stream playback task")
	defer span.End()

	opts := []texttospeech.SynthesisOption{
		texttospeech.WithEncodingInfo(q.sink.EncodingInfo()),
	}
	if task.Voice != "" {
		opts = append(opts, texttospeech.WithVoice(task.Voice))
	}

	started := false
	byteCount := 0
	err := streamer.SynthesizeStream(ctx, task.Text, func(chunk []byte) {
		if len(chunk) == 0 || ctx.Err() != nil {
			return
		}
		if !started {
			if q.isStale(generation) {
				return
			}
			started = true
			q.emit(events.NewSpeakingStarted(task.ID, task.Text))
			q.callbacks.onSpeakingStarted(task)
		}
		byteCount += len(chunk)
		if sendErr := q.sink.Send(chunk); sendErr != nil {
			logger.Warn("Failed to deliver streamed audio chunk", "error", sendErr)
		}
	}, opts...)

	if !started {
		if ctx.Err() != nil {
			// Cancelled before becoming audible; nothing started, nothing to
			// hand to the buffered path.
			q.emit(events.NewSpeakingEnded(task.ID, task.Text, ctx.Err()))
			q.callbacks.onSpeakingEnded(task, ctx.Err())
			return true
		}
		if err != nil {
			span.RecordError(err)
			logger.Warn("Streaming synthesis produced no audio, using buffered path",
				"provider", q.primary.Name(), "error", err)
		}
		return false
	}

	if err == nil {
		err = q.sink.AwaitPlayed(ctx, byteCount)
	} else {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}

	q.emit(events.NewSpeakingEnded(task.ID, task.Text, err))
	q.callbacks.onSpeakingEnded(task, err)
	return true
}

// audioForTask consumes the prefetched audio when it matches the task's text
// and voice exactly; any mismatch falls back to a fresh synthesis so a stale
// prefetch can never be heard.
func (q *playbackQueue) audioForTask(ctx context.Context, task playbackTask) ([]byte, error) {
	q.mu.Lock()
	prefetch := q.prefetch
	if prefetch != nil && prefetch.text == task.Text && prefetch.voice == task.Voice {
		q.prefetch = nil
	} else {
		prefetch = nil
	}
	q.mu.Unlock()

	if prefetch != nil {
		select {
		case <-prefetch.ready:
			if prefetch.err == nil {
				return prefetch.audio, nil
			}
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return q.synthesize(ctx, task)
}

func (q *playbackQueue) synthesize(ctx context.Context, task playbackTask) ([]byte, error) {
	ctx, span := tracer.Start(ctx, "synthesize playback task")
	defer span.End()

	opts := []texttospeech.SynthesisOption{}
	if task.Voice != "" {
		opts = append(opts, texttospeech.WithVoice(task.Voice))
	}

	audio, err := q.primary.Synthesize(ctx, task.Text, opts...)
	if err == nil {
		return audio, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	span.RecordError(err)
	if q.fallback == nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("synthesis failed: %w", err)
	}

	logger.Warn("Primary synthesis failed, using fallback",
		"primary", q.primary.Name(), "fallback", q.fallback.Name(), "error", err)

	// The fallback provider has its own voice catalog, so the task voice does
	// not carry over.
	audio, fallbackErr := q.fallback.Synthesize(ctx, task.Text)
	if fallbackErr != nil {
		combined := fmt.Errorf("synthesis failed on both providers: %w", fallbackErr)
		span.SetStatus(codes.Error, combined.Error())
		return nil, combined
	}

	return audio, nil
}

func (q *playbackQueue) startPrefetchLocked(ctx context.Context, next playbackTask) {
	if q.prefetch != nil {
		if q.prefetch.text == next.Text && q.prefetch.voice == next.Voice {
			return
		}
		q.invalidatePrefetchLocked()
	}

	prefetchCtx, cancel := context.WithCancel(ctx)
	prefetch := &prefetchedAudio{
		text:   next.Text,
		voice:  next.Voice,
		ready:  make(chan struct{}),
		cancel: cancel,
	}
	q.prefetch = prefetch

	task := next
	go func() {
		defer close(prefetch.ready)
		prefetch.audio, prefetch.err = q.synthesize(prefetchCtx, task)
	}()
}

func (q *playbackQueue) invalidatePrefetchLocked() {
	if q.prefetch == nil {
		return
	}

	q.prefetch.cancel()
	q.prefetch = nil
}

func (q *playbackQueue) isStale(generation uint64) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.generation != generation
}

func (q *playbackQueue) signalUpdate() {
	select {
	case q.updateSignal <- struct{}{}:
	default:
	}
}
