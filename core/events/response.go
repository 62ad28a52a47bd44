package events

const (
	// KindSentenceReady identifies release of the next in-order sentence unit.
	KindSentenceReady Kind = "response.sentence_ready"
)

// SentenceReady carries one reassembled sentence unit, released in strict
// source index order.
type SentenceReady struct {
	Base
	TurnID uint64
	Index  int
	Text   string
}

// NewSentenceReady creates a sentence ready event.
func NewSentenceReady(turnID uint64, index int, text string) SentenceReady {
	return SentenceReady{Base: NewBase(KindSentenceReady), TurnID: turnID, Index: index, Text: text}
}
