package orchestration

import (
	"context"
	"sync/atomic"

	"github.com/comprehension-engine/voice-core/core/audio"
)

// audioInput normalizes capture clients and enforces the half-duplex gate.
// While the gate is closed, captured audio never reaches the transcriber.
// Clients with explicit capture controls get started and stopped at the
// device; plain streaming clients keep running and their frames are dropped
// at the gate instead.
type audioInput struct {
	// base stores the configured input client used for streaming audio.
	base AudioInput
	// captureControl is set when the input client supports explicit capture
	// start/stop.
	captureControl AudioInputWithCaptureControl

	// connected reports whether a concrete input client is configured.
	connected atomic.Bool
	// isCapturing reports whether the device is currently capturing.
	isCapturing atomic.Bool
	// gateOpen is the half-duplex gate. Closed while assistant audio plays or
	// settles.
	gateOpen atomic.Bool

	// onAudio receives gated capture frames.
	onAudio func(audio []byte)
}

func newAudioInput(client AudioInput, onAudio func(audio []byte)) *audioInput {
	if onAudio == nil {
		onAudio = func([]byte) {}
	}

	audioInput := audioInput{onAudio: onAudio}
	audioInput.Set(client)
	return &audioInput
}

func (a *audioInput) Set(client AudioInput) {
	if a == nil {
		return
	}

	a.base = nil
	a.captureControl = nil
	a.connected.Store(false)
	a.isCapturing.Store(false)

	if isNilInterface(client) {
		return
	}

	a.base = client
	a.connected.Store(true)
	if control, ok := client.(AudioInputWithCaptureControl); ok {
		a.captureControl = control
	}
}

func (a *audioInput) IsConfigured() bool           { return a != nil && a.connected.Load() }
func (a *audioInput) SupportsCaptureControl() bool { return a != nil && a.captureControl != nil }
func (a *audioInput) IsGateOpen() bool             { return a != nil && a.gateOpen.Load() }

// Start begins streaming for clients without capture controls. Controlled
// clients start capturing when the gate opens.
func (a *audioInput) Start(ctx context.Context) {
	if !a.IsConfigured() || a.SupportsCaptureControl() {
		return
	}

	if !a.isCapturing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		if err := a.base.Stream(ctx, a.forward); err != nil {
			a.isCapturing.Store(false)
			logger.Warn("Audio input stream stopped", "error", err)
		}
	}()
}

// OpenGate lets captured audio through and, when supported, starts the
// capture device.
func (a *audioInput) OpenGate(ctx context.Context) {
	if a == nil {
		return
	}

	a.gateOpen.Store(true)

	if !a.SupportsCaptureControl() {
		return
	}
	if !a.isCapturing.CompareAndSwap(false, true) {
		return
	}

	go func() {
		if err := a.captureControl.StartCapture(ctx, a.forward); err != nil {
			a.isCapturing.Store(false)
			logger.Warn("Failed to start audio capture", "error", err)
		}
	}()
}

// CloseGate blocks captured audio and, when supported, stops the capture
// device.
func (a *audioInput) CloseGate() {
	if a == nil {
		return
	}

	a.gateOpen.Store(false)

	if !a.SupportsCaptureControl() {
		return
	}
	if !a.isCapturing.CompareAndSwap(true, false) {
		return
	}

	if err := a.captureControl.StopCapture(); err != nil {
		logger.Warn("Failed to stop audio capture", "error", err)
	}
}

func (a *audioInput) Close() {
	if a == nil || !a.IsConfigured() {
		return
	}

	if a.captureControl != nil && a.isCapturing.CompareAndSwap(true, false) {
		if err := a.captureControl.StopCapture(); err != nil {
			logger.Warn("Failed to stop audio capture", "error", err)
		}
	}

	a.base.Close()
	a.isCapturing.Store(false)
}

func (a *audioInput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.base == nil {
		return audio.GetDefaultEncodingInfo()
	}

	return a.base.EncodingInfo()
}

func (a *audioInput) forward(audio []byte) {
	if !a.gateOpen.Load() {
		return
	}

	a.onAudio(audio)
}
