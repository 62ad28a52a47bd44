package texttospeech

import (
	"context"

	"github.com/comprehension-engine/voice-core/core/audio"
)

type SynthesisOptions struct {
	// Voice is the provider-specific voice identifier. Empty selects the
	// provider default.
	Voice string
	// Model is the provider-specific synthesis model. Empty selects the
	// provider default.
	Model string

	EncodingInfo audio.EncodingInfo
}

type SynthesisOption func(*SynthesisOptions)

func WithVoice(voice string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Voice = voice }
}

func WithModel(model string) SynthesisOption {
	return func(o *SynthesisOptions) { o.Model = model }
}

func WithEncodingInfo(encodingInfo audio.EncodingInfo) SynthesisOption {
	return func(o *SynthesisOptions) {
		if encodingInfo.IsZero() {
			return
		}

		o.EncodingInfo = encodingInfo
	}
}

// Synthesizer is the buffered synthesis path: one request in, the complete
// audio for the text back.
type Synthesizer interface {
	// Name returns the provider identifier, used for logging and
	// instrumentation attributes.
	Name() string
	// Synthesize converts text to audio and returns the full raw payload.
	// Cancelling ctx aborts the request; the returned audio is then nil.
	Synthesize(ctx context.Context, text string, opts ...SynthesisOption) ([]byte, error)
}

// StreamingSynthesizer is the low-latency variant. Audio chunks are forwarded
// to onAudio in generation order as they arrive; the call returns once the
// provider reports the end of speech or ctx is cancelled.
type StreamingSynthesizer interface {
	Synthesizer
	SynthesizeStream(ctx context.Context, text string, onAudio func([]byte), opts ...SynthesisOption) error
}

// Voice describes a selectable synthesis voice.
type Voice struct {
	ID          string
	Name        string
	Description string
	Category    string
}
