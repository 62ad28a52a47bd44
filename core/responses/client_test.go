package responses

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestStreamResponseForwardsDeltasInOrder(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"text\": \"Hello \", \"sentence_index\": 0}\n\n")
		fmt.Fprint(w, ": keepalive\n\n")
		fmt.Fprint(w, "data: {\"text\": \"world.\", \"sentence_index\": 0}\n\n")
		fmt.Fprint(w, "data: {\"text\": \"How are you?\", \"sentence_index\": 1}\n\n")
		fmt.Fprint(w, "data: {\"done\": true}\n\n")
	}))
	defer server.Close()

	var got []Delta
	client := NewClient(server.URL)
	err := client.StreamResponse(context.Background(), "greet me", func(delta Delta) {
		got = append(got, delta)
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}

	expected := []Delta{
		{Text: "Hello ", SentenceIndex: 0},
		{Text: "world.", SentenceIndex: 0},
		{Text: "How are you?", SentenceIndex: 1},
	}
	if len(got) != len(expected) {
		t.Fatalf("expected %d deltas, got %d", len(expected), len(got))
	}
	for i, delta := range expected {
		if got[i] != delta {
			t.Fatalf("expected delta %d to be %+v, got %+v", i, delta, got[i])
		}
	}
}

func TestStreamResponseFailsWithoutTerminalFrame(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"text\": \"Hello.\", \"sentence_index\": 0}\n\n")
	}))
	defer server.Close()

	client := NewClient(server.URL)
	if err := client.StreamResponse(context.Background(), "greet me", nil); err == nil {
		t.Fatal("expected truncated stream to be reported as an error")
	}
}

func TestStreamResponseHonoursCancellation(t *testing.T) {
	streamStarted := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "data: {\"text\": \"Hello.\", \"sentence_index\": 0}\n\n")
		if flusher, ok := w.(http.Flusher); ok {
			flusher.Flush()
		}
		close(streamStarted)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-streamStarted
		cancel()
	}()

	client := NewClient(server.URL)
	err := client.StreamResponse(ctx, "greet me", nil)
	if err == nil {
		t.Fatal("expected cancelled stream to return an error")
	}
	if ctx.Err() == nil {
		t.Fatal("expected context to be cancelled")
	}
}
