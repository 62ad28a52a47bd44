package orchestration

import (
	"sort"
	"strings"
	"sync"
	"unicode"
)

// sentenceReassembler turns streamed response deltas back into whole
// sentences. Deltas carry a sentence index; fragments of the same sentence
// share an index and concatenate in arrival order. A sentence is released only
// once a delta for a higher index has been seen, or on flush, so trailing
// fragments cannot be cut off.
//
// Sentences are released strictly in index order. A sentence whose normalized
// text matches the previously released one is dropped, but its index still
// advances so later sentences are not blocked.
type sentenceReassembler struct {
	mu sync.Mutex

	holding       map[int]string
	expectedIndex int
	maxSeenIndex  int
	flushed       bool

	lastReleasedNormalized string

	onSentence func(index int, text string)
}

func newSentenceReassembler(onSentence func(index int, text string)) *sentenceReassembler {
	if onSentence == nil {
		onSentence = func(int, string) {}
	}

	return &sentenceReassembler{
		holding:      map[int]string{},
		maxSeenIndex: -1,
		onSentence:   onSentence,
	}
}

// AddDelta folds one streamed fragment into the holding map and releases any
// sentences that are now known to be complete. Fragments for already-released
// indices are dropped.
func (r *sentenceReassembler) AddDelta(index int, text string) {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flushed || index < r.expectedIndex {
		return
	}

	r.holding[index] += text
	if index > r.maxSeenIndex {
		r.maxSeenIndex = index
	}

	r.drainLocked(false)
}

// Flush releases every held sentence in index order. The stream is complete,
// so the highest index no longer needs a successor to prove it is whole.
// Further deltas are ignored.
func (r *sentenceReassembler) Flush() {
	if r == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.flushed {
		return
	}

	r.drainLocked(true)
	r.flushed = true
	r.holding = map[int]string{}
}

// PendingCount reports how many sentences are held back waiting for
// completion.
func (r *sentenceReassembler) PendingCount() int {
	if r == nil {
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.holding)
}

func (r *sentenceReassembler) drainLocked(flushing bool) {
	for {
		if !flushing && r.expectedIndex >= r.maxSeenIndex {
			return
		}
		if flushing && r.expectedIndex > r.maxSeenIndex {
			return
		}

		text, ok := r.holding[r.expectedIndex]
		if !ok {
			if !flushing {
				// A later index arrived first; hold until the gap fills.
				return
			}
			r.expectedIndex++
			continue
		}

		delete(r.holding, r.expectedIndex)
		r.expectedIndex++
		r.releaseLocked(r.expectedIndex-1, text)
	}
}

func (r *sentenceReassembler) releaseLocked(index int, text string) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return
	}

	normalized := normalizeSentence(trimmed)
	if normalized != "" && normalized == r.lastReleasedNormalized {
		return
	}
	r.lastReleasedNormalized = normalized

	r.onSentence(index, trimmed)
}

// heldIndices is only used by tests to assert holding-map contents.
func (r *sentenceReassembler) heldIndices() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	indices := make([]int, 0, len(r.holding))
	for index := range r.holding {
		indices = append(indices, index)
	}
	sort.Ints(indices)
	return indices
}

// normalizeSentence lowercases and strips punctuation so duplicate detection
// survives cosmetic differences between consecutive sentences. Distinct
// sentences that normalize identically are indistinguishable here; keeping the
// comparison scoped to the immediately previous sentence bounds that risk.
func normalizeSentence(text string) string {
	var b strings.Builder
	lastWasSpace := false
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			b.WriteRune(r)
			lastWasSpace = false
		case unicode.IsSpace(r):
			if !lastWasSpace && b.Len() > 0 {
				b.WriteRune(' ')
			}
			lastWasSpace = true
		}
	}
	return strings.TrimSpace(b.String())
}
