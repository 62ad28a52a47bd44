package orchestration

import "github.com/comprehension-engine/voice-core/core/events"

type eventEmitter func(events.Event)

func noopEventEmitter(events.Event) {}

func newCallbackEventEmitter(opts OrchestrateOptions) eventEmitter {
	return func(event events.Event) {
		switch typedEvent := event.(type) {
		case events.TurnStarted:
			if opts.onTurnStarted != nil {
				opts.onTurnStarted(typedEvent.TurnID)
			}
		case events.TurnCompleted:
			if opts.onTurnCompleted != nil {
				opts.onTurnCompleted(typedEvent.TurnID)
			}
		case events.TurnCancelled:
			if opts.onTurnCancelled != nil {
				opts.onTurnCancelled(typedEvent.TurnID)
			}
		case events.SentenceReady:
			if opts.onSentenceReady != nil {
				opts.onSentenceReady(typedEvent.TurnID, typedEvent.Index, typedEvent.Text)
			}
		case events.SpeakingStarted:
			if opts.onSpeakingStarted != nil {
				opts.onSpeakingStarted(typedEvent.Text)
			}
		case events.SpeakingEnded:
			if opts.onSpeakingEnded != nil {
				opts.onSpeakingEnded(typedEvent.Text, typedEvent.Err)
			}
		case events.VoiceModeChanged:
			if opts.onVoiceModeChanged != nil {
				opts.onVoiceModeChanged(typedEvent.State, typedEvent.Previous)
			}
		case events.CooldownTick:
			if opts.onCooldownTick != nil {
				opts.onCooldownTick(typedEvent.Remaining)
			}
		}
	}
}
