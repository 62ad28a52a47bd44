package deepgram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClientRejectsUnknownVoice(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	if _, err := NewClient(WithVoice("aura-nonexistent-en")); err == nil {
		t.Fatal("expected unknown voice to be rejected")
	}
}

func TestSynthesizeEncodesRequestParameters(t *testing.T) {
	t.Setenv("DEEPGRAM_API_KEY", "test-key")

	var gotQuery map[string][]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query()
		_, _ = w.Write([]byte("raw-audio"))
	}))
	defer server.Close()

	client, err := NewClient(WithBaseURL(server.URL), WithVoice(VoiceLuna))
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	audio, err := client.Synthesize(context.Background(), "Hello world.")
	if err != nil {
		t.Fatalf("synthesis failed: %v", err)
	}

	if string(audio) != "raw-audio" {
		t.Fatalf("expected audio payload %q, got %q", "raw-audio", audio)
	}

	expectations := map[string]string{
		"model":       VoiceLuna,
		"encoding":    "linear16",
		"sample_rate": "16000",
		"container":   "none",
	}
	for key, expected := range expectations {
		values, ok := gotQuery[key]
		if !ok || len(values) == 0 {
			t.Fatalf("expected query parameter %q to be set", key)
		}
		if values[0] != expected {
			t.Fatalf("expected query parameter %q to be %q, got %q", key, expected, values[0])
		}
	}
}
