package events

import "time"

const (
	// KindVoiceModeChanged identifies an arbitrator state transition.
	KindVoiceModeChanged Kind = "voice_mode.state_changed"
	// KindCooldownTick identifies a cooldown countdown update.
	KindCooldownTick Kind = "voice_mode.cooldown_tick"
)

// VoiceModeChanged carries the arbitrator state after a transition.
type VoiceModeChanged struct {
	Base
	State    string
	Previous string
}

// NewVoiceModeChanged creates a voice mode changed event.
func NewVoiceModeChanged(previous, state string) VoiceModeChanged {
	return VoiceModeChanged{Base: NewBase(KindVoiceModeChanged), State: state, Previous: previous}
}

// CooldownTick carries the remaining settle time before capture resumes.
type CooldownTick struct {
	Base
	Remaining time.Duration
}

// NewCooldownTick creates a cooldown tick event.
func NewCooldownTick(remaining time.Duration) CooldownTick {
	return CooldownTick{Base: NewBase(KindCooldownTick), Remaining: remaining}
}
