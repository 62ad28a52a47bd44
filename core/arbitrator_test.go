package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comprehension-engine/voice-core/core/events"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *eventRecorder) emit(event events.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

func (r *eventRecorder) countKind(kind events.Kind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, event := range r.events {
		if event.Kind() == kind {
			count++
		}
	}
	return count
}

func newTestArbitrator(t *testing.T, pending *atomic.Bool) (*audioArbitrator, *audioInput, *eventRecorder) {
	t.Helper()

	recorder := &eventRecorder{}
	input := newAudioInput(nil, nil)
	arbitrator := newAudioArbitrator(input, recorder.emit, pending.Load)
	arbitrator.cooldown = 100 * time.Millisecond
	arbitrator.settleWindow = 30 * time.Millisecond
	arbitrator.tickInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go arbitrator.Run(ctx)

	return arbitrator, input, recorder
}

func waitForState(t *testing.T, arbitrator *audioArbitrator, state ArbitrationState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if arbitrator.State() == state {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, still in %q", state, arbitrator.State())
}

func TestMicrophoneClosesWhileAssistantSpeaks(t *testing.T) {
	var pending atomic.Bool
	arbitrator, input, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	if got := arbitrator.State(); got != StateListening {
		t.Fatalf("expected listening after entering voice mode, got %q", got)
	}
	if !input.IsGateOpen() {
		t.Fatal("expected microphone gate open while listening")
	}

	arbitrator.OnSpeakingStarted()
	if got := arbitrator.State(); got != StateSpeaking {
		t.Fatalf("expected speaking, got %q", got)
	}
	if input.IsGateOpen() {
		t.Fatal("expected microphone gate closed while speaking")
	}
}

func TestCooldownReopensMicrophoneAfterLastTask(t *testing.T) {
	var pending atomic.Bool
	arbitrator, input, recorder := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.OnSpeakingEnded()
	arbitrator.OnQueueDrained()

	if got := arbitrator.State(); got != StateCooling {
		t.Fatalf("expected cooling after queue drained, got %q", got)
	}
	if input.IsGateOpen() {
		t.Fatal("expected microphone gate closed during cooldown")
	}

	waitForState(t, arbitrator, StateListening)

	if !input.IsGateOpen() {
		t.Fatal("expected microphone gate open after cooldown")
	}
	if recorder.countKind(events.KindCooldownTick) == 0 {
		t.Fatal("expected cooldown ticks while cooling")
	}
}

func TestSettleWindowBridgesBetweenTasks(t *testing.T) {
	var pending atomic.Bool
	pending.Store(true)
	arbitrator, input, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.OnSpeakingEnded()

	if got := arbitrator.State(); got != StateSettling {
		t.Fatalf("expected settling between tasks, got %q", got)
	}
	if input.IsGateOpen() {
		t.Fatal("expected microphone gate closed while settling")
	}

	// The next task arrives before the settle window is up.
	arbitrator.OnSpeakingStarted()
	if got := arbitrator.State(); got != StateSpeaking {
		t.Fatalf("expected direct return to speaking, got %q", got)
	}
}

func TestCooldownHoldsWhileSentencesArePending(t *testing.T) {
	var pending atomic.Bool
	pending.Store(true)
	arbitrator, _, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.OnSpeakingEnded()
	arbitrator.OnQueueDrained()

	time.Sleep(250 * time.Millisecond)
	if got := arbitrator.State(); got != StateCooling {
		t.Fatalf("expected cooldown to hold while work is pending, got %q", got)
	}

	pending.Store(false)
	waitForState(t, arbitrator, StateListening)
}

func TestSpeakingDuringCooldownReturnsToSpeaking(t *testing.T) {
	var pending atomic.Bool
	arbitrator, _, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.OnSpeakingEnded()
	arbitrator.OnQueueDrained()

	arbitrator.OnSpeakingStarted()
	if got := arbitrator.State(); got != StateSpeaking {
		t.Fatalf("expected cooling to yield to new speech, got %q", got)
	}

	// The abandoned cooldown deadline must not fire later.
	time.Sleep(250 * time.Millisecond)
	if got := arbitrator.State(); got != StateSpeaking {
		t.Fatalf("expected stale cooldown deadline discarded, got %q", got)
	}
}

func TestForceActivateSkipsCooldown(t *testing.T) {
	var pending atomic.Bool
	arbitrator, input, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.OnSpeakingEnded()
	arbitrator.OnQueueDrained()

	arbitrator.ForceActivate()
	if got := arbitrator.State(); got != StateListening {
		t.Fatalf("expected immediate listening after force activate, got %q", got)
	}
	if !input.IsGateOpen() {
		t.Fatal("expected microphone gate open after force activate")
	}
}

func TestExitVoiceModeClosesEverything(t *testing.T) {
	var pending atomic.Bool
	arbitrator, input, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	arbitrator.OnSpeakingStarted()
	arbitrator.ExitVoiceMode()

	if got := arbitrator.State(); got != StateIdle {
		t.Fatalf("expected idle after exiting voice mode, got %q", got)
	}
	if input.IsGateOpen() {
		t.Fatal("expected microphone gate closed after exit")
	}

	// Playback callbacks from a dying queue must not resurrect the machine.
	arbitrator.OnSpeakingStarted()
	if got := arbitrator.State(); got != StateIdle {
		t.Fatalf("expected idle to ignore speaking callbacks, got %q", got)
	}
}

func TestCooldownRemainingCountsDown(t *testing.T) {
	var pending atomic.Bool
	arbitrator, _, _ := newTestArbitrator(t, &pending)

	arbitrator.EnterVoiceMode()
	if got := arbitrator.CooldownRemaining(); got != 0 {
		t.Fatalf("expected no cooldown while listening, got %v", got)
	}

	arbitrator.OnSpeakingStarted()
	arbitrator.OnQueueDrained()

	first := arbitrator.CooldownRemaining()
	if first <= 0 {
		t.Fatalf("expected a running cooldown, got %v", first)
	}

	time.Sleep(30 * time.Millisecond)
	second := arbitrator.CooldownRemaining()
	if second >= first {
		t.Fatalf("expected cooldown to count down, got %v then %v", first, second)
	}
}
