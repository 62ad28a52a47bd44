package orchestration

import (
	"context"
	"sync"
	"time"

	"github.com/comprehension-engine/voice-core/core/events"
)

// ArbitrationState is the half-duplex microphone state.
type ArbitrationState string

const (
	// StateIdle means voice mode is off and the microphone is closed.
	StateIdle ArbitrationState = "idle"
	// StateListening means the microphone is open for the user.
	StateListening ArbitrationState = "listening"
	// StateSpeaking means assistant audio is playing and the microphone is
	// closed.
	StateSpeaking ArbitrationState = "speaking"
	// StateSettling is the short window after a playback task ends, bridging
	// the gap to the next task without reopening the microphone.
	StateSettling ArbitrationState = "settling"
	// StateCooling is the cooldown after the last task, absorbing the audio
	// tail before the microphone reopens.
	StateCooling ArbitrationState = "cooling"
)

const (
	defaultCooldown     = 3 * time.Second
	defaultSettleWindow = 300 * time.Millisecond
	defaultTickInterval = 250 * time.Millisecond
)

// audioArbitrator owns the half-duplex state machine. All timing runs off a
// single pending deadline evaluated by one recurring scheduler tick, so
// transitions cannot race between overlapping timers.
type audioArbitrator struct {
	mu sync.Mutex

	state ArbitrationState
	// deadline is the single pending transition time. Zero means no
	// transition is scheduled.
	deadline time.Time

	cooldown     time.Duration
	settleWindow time.Duration
	tickInterval time.Duration

	// hasPendingWork reports whether sentences are still queued or held. The
	// cooldown holds while it returns true.
	hasPendingWork func() bool

	input *audioInput
	emit  eventEmitter
	now   func() time.Time

	baseContext context.Context
}

func newAudioArbitrator(input *audioInput, emit eventEmitter, hasPendingWork func() bool) *audioArbitrator {
	if emit == nil {
		emit = noopEventEmitter
	}
	if hasPendingWork == nil {
		hasPendingWork = func() bool { return false }
	}

	return &audioArbitrator{
		state:          StateIdle,
		cooldown:       defaultCooldown,
		settleWindow:   defaultSettleWindow,
		tickInterval:   defaultTickInterval,
		hasPendingWork: hasPendingWork,
		input:          input,
		emit:           emit,
		now:            time.Now,
		baseContext:    context.Background(),
	}
}

// Run drives scheduled transitions until ctx is cancelled. Call it once, on
// its own goroutine.
func (a *audioArbitrator) Run(ctx context.Context) {
	a.mu.Lock()
	a.baseContext = ctx
	a.mu.Unlock()

	ticker := time.NewTicker(a.tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.tick()
		}
	}
}

func (a *audioArbitrator) State() ArbitrationState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.state
}

// CooldownRemaining reports how long until the microphone reopens, zero when
// no cooldown is running.
func (a *audioArbitrator) CooldownRemaining() time.Duration {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateCooling || a.deadline.IsZero() {
		return 0
	}

	remaining := a.deadline.Sub(a.now())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// EnterVoiceMode opens the microphone and starts listening.
func (a *audioArbitrator) EnterVoiceMode() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateIdle {
		return
	}

	a.deadline = time.Time{}
	a.transitionLocked(StateListening)
}

// ExitVoiceMode closes the microphone and abandons any scheduled transition.
func (a *audioArbitrator) ExitVoiceMode() {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.deadline = time.Time{}
	a.transitionLocked(StateIdle)
}

// OnSpeakingStarted closes the microphone for assistant playback. A task
// starting during the cooldown moves straight back to speaking.
func (a *audioArbitrator) OnSpeakingStarted() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateIdle {
		return
	}

	a.deadline = time.Time{}
	a.transitionLocked(StateSpeaking)
}

// OnSpeakingEnded schedules the settle window that bridges the gap to the
// next playback task.
func (a *audioArbitrator) OnSpeakingEnded() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateSpeaking {
		return
	}

	a.deadline = a.now().Add(a.settleWindow)
	a.transitionLocked(StateSettling)
}

// OnQueueDrained starts the cooldown once nothing is left to play.
func (a *audioArbitrator) OnQueueDrained() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state != StateSpeaking && a.state != StateSettling {
		return
	}

	a.deadline = a.now().Add(a.cooldown)
	a.transitionLocked(StateCooling)
}

// ForceActivate reopens the microphone immediately, overriding any settle or
// cooldown in progress.
func (a *audioArbitrator) ForceActivate() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateIdle {
		return
	}

	a.deadline = time.Time{}
	a.transitionLocked(StateListening)
}

// tick evaluates the pending deadline. It is the only place scheduled
// transitions happen.
func (a *audioArbitrator) tick() {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.state == StateCooling && !a.deadline.IsZero() {
		remaining := a.deadline.Sub(a.now())
		if remaining < 0 {
			remaining = 0
		}
		a.emit(events.NewCooldownTick(remaining))
	}

	if a.deadline.IsZero() || a.now().Before(a.deadline) {
		return
	}

	switch a.state {
	case StateSettling:
		if a.hasPendingWork() {
			// The next task is on its way; keep the microphone closed and
			// check again next tick.
			a.deadline = a.now().Add(a.tickInterval)
			return
		}
		a.deadline = a.now().Add(a.cooldown)
		a.transitionLocked(StateCooling)

	case StateCooling:
		if a.hasPendingWork() {
			a.deadline = a.now().Add(a.tickInterval)
			return
		}
		a.deadline = time.Time{}
		a.transitionLocked(StateListening)

	default:
		a.deadline = time.Time{}
	}
}

// transitionLocked applies a state change and keeps the microphone gate in
// sync. The gate is open only while listening.
func (a *audioArbitrator) transitionLocked(to ArbitrationState) {
	if a.state == to {
		return
	}

	from := a.state
	a.state = to
	a.emit(events.NewVoiceModeChanged(string(from), string(to)))

	if to == StateListening {
		a.input.OpenGate(a.baseContext)
	} else {
		a.input.CloseGate()
	}
}
