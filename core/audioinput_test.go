package orchestration

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/comprehension-engine/voice-core/core/audio"
)

type fakeAudioInput struct {
	mu      sync.Mutex
	onAudio func([]byte)
	closed  atomic.Bool
}

func (f *fakeAudioInput) EncodingInfo() audio.EncodingInfo {
	return audio.GetDefaultEncodingInfo()
}

func (f *fakeAudioInput) Stream(ctx context.Context, onAudio func(audio []byte)) error {
	f.mu.Lock()
	f.onAudio = onAudio
	f.mu.Unlock()
	<-ctx.Done()
	return nil
}

func (f *fakeAudioInput) Close() { f.closed.Store(true) }

func (f *fakeAudioInput) push(audio []byte) {
	f.mu.Lock()
	onAudio := f.onAudio
	f.mu.Unlock()
	if onAudio != nil {
		onAudio(audio)
	}
}

type fakeControlledAudioInput struct {
	fakeAudioInput
	captureStarts atomic.Int32
	captureStops  atomic.Int32
}

func (f *fakeControlledAudioInput) StartCapture(_ context.Context, onAudio func(audio []byte)) error {
	f.mu.Lock()
	f.onAudio = onAudio
	f.mu.Unlock()
	f.captureStarts.Add(1)
	return nil
}

func (f *fakeControlledAudioInput) StopCapture() error {
	f.captureStops.Add(1)
	return nil
}

func waitForCondition(t *testing.T, what string, condition func() bool) {
	t.Helper()
	for range 200 {
		if condition() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestClosedGateDropsCapturedAudio(t *testing.T) {
	var received atomic.Int32
	client := &fakeAudioInput{}
	input := newAudioInput(client, func([]byte) { received.Add(1) })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	input.Start(ctx)

	waitForCondition(t, "stream to attach", func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return client.onAudio != nil
	})

	client.push(make([]byte, 8))
	if got := received.Load(); got != 0 {
		t.Fatalf("expected audio dropped while gate closed, got %d frames", got)
	}

	input.OpenGate(ctx)
	client.push(make([]byte, 8))
	if got := received.Load(); got != 1 {
		t.Fatalf("expected audio forwarded while gate open, got %d frames", got)
	}

	input.CloseGate()
	client.push(make([]byte, 8))
	if got := received.Load(); got != 1 {
		t.Fatalf("expected audio dropped again after gate closed, got %d frames", got)
	}
}

func TestControlledClientStartsAndStopsWithGate(t *testing.T) {
	client := &fakeControlledAudioInput{}
	input := newAudioInput(client, nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	// Controlled clients do not stream continuously.
	input.Start(ctx)
	if got := client.captureStarts.Load(); got != 0 {
		t.Fatalf("expected no capture before the gate opens, got %d starts", got)
	}

	input.OpenGate(ctx)
	waitForCondition(t, "capture to start", func() bool { return client.captureStarts.Load() == 1 })

	// Reopening an open gate must not start a second capture.
	input.OpenGate(ctx)
	if got := client.captureStarts.Load(); got != 1 {
		t.Fatalf("expected a single capture start, got %d", got)
	}

	input.CloseGate()
	if got := client.captureStops.Load(); got != 1 {
		t.Fatalf("expected capture stopped with the gate, got %d stops", got)
	}
}

func TestUnconfiguredInputIsSafe(t *testing.T) {
	input := newAudioInput(nil, nil)

	ctx := context.Background()
	input.Start(ctx)
	input.OpenGate(ctx)
	input.CloseGate()
	input.Close()

	if input.IsConfigured() {
		t.Fatal("expected unconfigured input")
	}
	if got := input.EncodingInfo(); got.IsZero() {
		t.Fatal("expected default encoding info for unconfigured input")
	}
}
