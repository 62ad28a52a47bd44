package orchestration

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"github.com/comprehension-engine/voice-core/core/audio"
	"github.com/google/uuid"
)

// audioOutput normalizes playback clients behind one facade. Clients that
// support marks report playback completion precisely; for the rest, completion
// is derived from the audio duration under the client's encoding.
//
// Without a configured client, Play simulates playback by waiting out the
// audio duration. Speaking lifecycles then keep honest timing even when the
// process has no audio device, which is what the state machine and tests rely
// on.
type audioOutput struct {
	// base stores the configured output client.
	base AudioOutput
	// marked is set when the output client can confirm playback positions.
	marked AudioOutputWithMarks
}

func newAudioOutput(client AudioOutput) *audioOutput {
	audioOutput := audioOutput{}
	audioOutput.Set(client)
	return &audioOutput
}

// Set replaces the configured output client. Nil and typed-nil clients are
// treated as unconfigured.
func (a *audioOutput) Set(client AudioOutput) {
	if a == nil {
		return
	}

	a.base = nil
	a.marked = nil

	if isNilInterface(client) {
		return
	}
	a.base = client

	if marked, ok := client.(AudioOutputWithMarks); ok {
		a.marked = marked
	}
}

func (a *audioOutput) IsConfigured() bool { return a != nil && a.base != nil }

func (a *audioOutput) EncodingInfo() audio.EncodingInfo {
	if a == nil || a.base == nil {
		return audio.GetDefaultEncodingInfo()
	}

	return a.base.EncodingInfo()
}

// Play delivers one task's audio and blocks until it has been played out or
// ctx is cancelled. Cancellation flushes the client buffer so no stale audio
// lingers into the next task.
func (a *audioOutput) Play(ctx context.Context, audioPayload []byte) error {
	if len(audioPayload) == 0 {
		return nil
	}

	duration := a.EncodingInfo().Duration(len(audioPayload))

	if a == nil || a.base == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(duration):
			return nil
		}
	}

	if err := a.base.SendAudio(audioPayload); err != nil {
		return fmt.Errorf("failed to send audio to output: %w", err)
	}

	if a.marked != nil {
		played := make(chan struct{})
		if err := a.marked.Mark(uuid.NewString(), func(string) { close(played) }); err != nil {
			return fmt.Errorf("failed to mark audio output: %w", err)
		}

		select {
		case <-ctx.Done():
			a.base.ClearBuffer()
			return ctx.Err()
		case <-played:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		a.base.ClearBuffer()
		return ctx.Err()
	case <-time.After(duration):
		return nil
	}
}

// Send delivers one chunk of streamed audio to the client without waiting for
// playback. Unconfigured outputs discard chunks; completion timing then comes
// from AwaitPlayed's duration estimate alone.
func (a *audioOutput) Send(chunk []byte) error {
	if a == nil || a.base == nil || len(chunk) == 0 {
		return nil
	}

	return a.base.SendAudio(chunk)
}

// AwaitPlayed blocks until audio previously delivered with Send has played
// out. byteCount sizes the duration estimate for clients without marks.
func (a *audioOutput) AwaitPlayed(ctx context.Context, byteCount int) error {
	if byteCount <= 0 {
		return nil
	}

	duration := a.EncodingInfo().Duration(byteCount)

	if a != nil && a.marked != nil {
		played := make(chan struct{})
		if err := a.marked.Mark(uuid.NewString(), func(string) { close(played) }); err != nil {
			return fmt.Errorf("failed to mark audio output: %w", err)
		}

		select {
		case <-ctx.Done():
			a.base.ClearBuffer()
			return ctx.Err()
		case <-played:
			return nil
		}
	}

	select {
	case <-ctx.Done():
		if a != nil && a.base != nil {
			a.base.ClearBuffer()
		}
		return ctx.Err()
	case <-time.After(duration):
		return nil
	}
}

// isNilInterface detects nil and typed-nil interface values so Set can avoid
// storing unusable interface wrappers as configured clients.
func isNilInterface(client any) bool {
	if client == nil {
		return true
	}

	v := reflect.ValueOf(client)
	switch v.Kind() {
	case reflect.Chan, reflect.Func, reflect.Interface, reflect.Map, reflect.Pointer, reflect.Slice:
		return v.IsNil()
	default:
		return false
	}
}
