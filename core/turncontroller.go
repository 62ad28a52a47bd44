package orchestration

import "sync/atomic"

// turnController hands out monotonically increasing turn ids and answers
// whether a callback still belongs to the live turn. Starting a new turn
// supersedes the previous one; late callbacks carrying a stale id must be
// dropped by their callers.
type turnController struct {
	current atomic.Uint64

	// blockAutoSpeak suppresses automatic speech for responses arriving after
	// the user left voice mode. Cleared when voice mode is re-entered.
	blockAutoSpeak atomic.Bool
}

// Begin supersedes the current turn and returns the new turn id. Ids start at
// 1 so the zero value never matches a live turn.
func (t *turnController) Begin() uint64 {
	return t.current.Add(1)
}

func (t *turnController) Current() uint64 {
	return t.current.Load()
}

// IsCurrent reports whether turnID belongs to the live turn.
func (t *turnController) IsCurrent(turnID uint64) bool {
	return turnID != 0 && t.current.Load() == turnID
}

func (t *turnController) BlockAutoSpeak()          { t.blockAutoSpeak.Store(true) }
func (t *turnController) UnblockAutoSpeak()        { t.blockAutoSpeak.Store(false) }
func (t *turnController) IsAutoSpeakBlocked() bool { return t.blockAutoSpeak.Load() }
