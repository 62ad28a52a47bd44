package events

const (
	// KindSpeakingStarted identifies the start of audible output for a task.
	KindSpeakingStarted Kind = "playback.speaking_started"
	// KindSpeakingEnded identifies the end of audible output for a task.
	KindSpeakingEnded Kind = "playback.speaking_ended"
)

// SpeakingStarted marks the moment a playback task begins emitting audio.
// Exactly one is emitted per task.
type SpeakingStarted struct {
	Base
	TaskID string
	Text   string
}

// NewSpeakingStarted creates a speaking started event.
func NewSpeakingStarted(taskID, text string) SpeakingStarted {
	return SpeakingStarted{Base: NewBase(KindSpeakingStarted), TaskID: taskID, Text: text}
}

// SpeakingEnded marks the end of audible output for a task. It is emitted for
// every task that reported SpeakingStarted, on success, error and cancel
// paths alike.
type SpeakingEnded struct {
	Base
	TaskID string
	Text   string
	Err    error
}

// NewSpeakingEnded creates a speaking ended event.
func NewSpeakingEnded(taskID, text string, err error) SpeakingEnded {
	return SpeakingEnded{Base: NewBase(KindSpeakingEnded), TaskID: taskID, Text: text, Err: err}
}
