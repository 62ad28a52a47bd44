package events

const (
	// KindTurnStarted identifies the start of a streamed response turn.
	KindTurnStarted Kind = "turn_state.started"
	// KindTurnCompleted identifies stream completion for the current turn.
	KindTurnCompleted Kind = "turn_state.completed"
	// KindTurnCancelled identifies cancellation of the current turn.
	KindTurnCancelled Kind = "turn_state.cancelled"
)

// TurnStarted marks the start of a new streamed response turn.
type TurnStarted struct {
	Base
	TurnID uint64
}

// NewTurnStarted creates a turn started event.
func NewTurnStarted(turnID uint64) TurnStarted {
	return TurnStarted{Base: NewBase(KindTurnStarted), TurnID: turnID}
}

// TurnCompleted marks the end of the current turn's delta stream.
type TurnCompleted struct {
	Base
	TurnID uint64
}

// NewTurnCompleted creates a turn completed event.
func NewTurnCompleted(turnID uint64) TurnCompleted {
	return TurnCompleted{Base: NewBase(KindTurnCompleted), TurnID: turnID}
}

// TurnCancelled marks the current turn as superseded or explicitly cancelled.
type TurnCancelled struct {
	Base
	TurnID uint64
}

// NewTurnCancelled creates a turn cancelled event.
func NewTurnCancelled(turnID uint64) TurnCancelled {
	return TurnCancelled{Base: NewBase(KindTurnCancelled), TurnID: turnID}
}
