package orchestration

import (
	"fmt"
	"testing"
)

type releasedSentence struct {
	index int
	text  string
}

func collectSentences(released *[]releasedSentence) func(int, string) {
	return func(index int, text string) {
		*released = append(*released, releasedSentence{index: index, text: text})
	}
}

func TestFragmentsOfSameSentenceConcatenate(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Hello ")
	reassembler.AddDelta(0, "world.")
	reassembler.AddDelta(1, "How are ")
	reassembler.AddDelta(1, "you?")

	if len(released) != 1 {
		t.Fatalf("expected only the completed sentence released, got %d", len(released))
	}
	if released[0] != (releasedSentence{index: 0, text: "Hello world."}) {
		t.Fatalf("unexpected first sentence: %+v", released[0])
	}

	reassembler.Flush()

	if len(released) != 2 {
		t.Fatalf("expected flush to release the held sentence, got %d released", len(released))
	}
	if released[1] != (releasedSentence{index: 1, text: "How are you?"}) {
		t.Fatalf("unexpected second sentence: %+v", released[1])
	}
}

func TestSentencesReleaseInIndexOrderForAnyArrivalOrder(t *testing.T) {
	sentences := map[int]string{0: "First.", 1: "Second.", 2: "Third."}
	arrivalOrders := [][]int{
		{0, 1, 2},
		{0, 2, 1},
		{1, 0, 2},
		{1, 2, 0},
		{2, 0, 1},
		{2, 1, 0},
	}

	for _, order := range arrivalOrders {
		t.Run(fmt.Sprintf("order %v", order), func(t *testing.T) {
			var released []releasedSentence
			reassembler := newSentenceReassembler(collectSentences(&released))

			for _, index := range order {
				reassembler.AddDelta(index, sentences[index])
			}
			reassembler.Flush()

			if len(released) != len(sentences) {
				t.Fatalf("expected %d sentences, got %d", len(sentences), len(released))
			}
			for i, sentence := range released {
				if sentence.index != i {
					t.Fatalf("expected sentence %d at position %d, got index %d", i, i, sentence.index)
				}
				if sentence.text != sentences[i] {
					t.Fatalf("expected text %q at position %d, got %q", sentences[i], i, sentence.text)
				}
			}
		})
	}
}

func TestHighestIndexIsHeldUntilFlush(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Complete.")
	reassembler.AddDelta(1, "Trailing")

	if len(released) != 1 {
		t.Fatalf("expected highest index held back, got %d released", len(released))
	}

	reassembler.AddDelta(1, " fragment.")
	reassembler.Flush()

	if len(released) != 2 {
		t.Fatalf("expected both sentences after flush, got %d", len(released))
	}
	if released[1].text != "Trailing fragment." {
		t.Fatalf("expected late fragment included, got %q", released[1].text)
	}
}

func TestDuplicateSentenceIsDroppedButIndexAdvances(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Great question!")
	reassembler.AddDelta(1, "Great question!")
	reassembler.AddDelta(2, "Let me explain.")
	reassembler.Flush()

	if len(released) != 2 {
		t.Fatalf("expected duplicate dropped, got %d sentences", len(released))
	}
	if released[0].text != "Great question!" {
		t.Fatalf("unexpected first sentence %q", released[0].text)
	}
	if released[1] != (releasedSentence{index: 2, text: "Let me explain."}) {
		t.Fatalf("expected release to continue past the dropped duplicate, got %+v", released[1])
	}
}

func TestDuplicateDetectionIgnoresCaseAndPunctuation(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Great question!")
	reassembler.AddDelta(1, "great   question")
	reassembler.Flush()

	if len(released) != 1 {
		t.Fatalf("expected normalized duplicate dropped, got %d sentences", len(released))
	}
}

func TestRepeatedSentenceLaterInResponseIsKept(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Yes.")
	reassembler.AddDelta(1, "Think about it.")
	reassembler.AddDelta(2, "Yes.")
	reassembler.Flush()

	if len(released) != 3 {
		t.Fatalf("expected non-consecutive repeat kept, got %d sentences", len(released))
	}
}

func TestGapsAreSkippedOnFlushOnly(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(2, "Third.")
	reassembler.AddDelta(0, "First.")

	if len(released) != 1 {
		t.Fatalf("expected index 2 held while index 1 is missing, got %d released", len(released))
	}

	reassembler.Flush()

	if len(released) != 2 {
		t.Fatalf("expected flush to skip the missing index, got %d released", len(released))
	}
	if released[1] != (releasedSentence{index: 2, text: "Third."}) {
		t.Fatalf("unexpected sentence after gap: %+v", released[1])
	}
}

func TestDeltasAfterFlushAreIgnored(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "Hello.")
	reassembler.Flush()
	reassembler.AddDelta(1, "Too late.")
	reassembler.Flush()

	if len(released) != 1 {
		t.Fatalf("expected post-flush deltas ignored, got %d sentences", len(released))
	}
}

func TestEmptySentencesAdvanceWithoutRelease(t *testing.T) {
	var released []releasedSentence
	reassembler := newSentenceReassembler(collectSentences(&released))

	reassembler.AddDelta(0, "   ")
	reassembler.AddDelta(1, "Real sentence.")
	reassembler.Flush()

	if len(released) != 1 {
		t.Fatalf("expected whitespace-only sentence dropped, got %d", len(released))
	}
	if released[0] != (releasedSentence{index: 1, text: "Real sentence."}) {
		t.Fatalf("unexpected sentence: %+v", released[0])
	}
}

func TestPendingCountTracksHeldSentences(t *testing.T) {
	reassembler := newSentenceReassembler(nil)

	reassembler.AddDelta(1, "Held.")
	reassembler.AddDelta(3, "Also held.")

	if got := reassembler.PendingCount(); got != 2 {
		t.Fatalf("expected 2 pending sentences, got %d", got)
	}
	if got := reassembler.heldIndices(); len(got) != 2 || got[0] != 1 || got[1] != 3 {
		t.Fatalf("unexpected held indices: %v", got)
	}

	reassembler.Flush()
	if got := reassembler.PendingCount(); got != 0 {
		t.Fatalf("expected no pending sentences after flush, got %d", got)
	}
}
