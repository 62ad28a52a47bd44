// Command tutor is a terminal client for the comprehension tutor. It streams
// answers from the response backend, reads them aloud sentence by sentence,
// and lets the learner interrupt by voice or keyboard.
package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	orchestration "github.com/comprehension-engine/voice-core/core"
	"github.com/comprehension-engine/voice-core/core/audio/miniaudio"
	"github.com/comprehension-engine/voice-core/core/responses"
	deepgramstt "github.com/comprehension-engine/voice-core/core/speechtotext/deepgram"
	"github.com/comprehension-engine/voice-core/core/spoken"
	"github.com/comprehension-engine/voice-core/core/texttospeech"
	deepgramtts "github.com/comprehension-engine/voice-core/core/texttospeech/deepgram"
	"github.com/comprehension-engine/voice-core/core/texttospeech/elevenlabs"
)

func main() {
	_ = godotenv.Load()

	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "tutor: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	backendURL := os.Getenv("RESPONSES_URL")
	if backendURL == "" {
		backendURL = "http://localhost:8000"
	}
	responsesClient := responses.NewClient(backendURL)

	var primary, fallback texttospeech.Synthesizer
	if client, err := elevenlabs.NewClient(); err == nil {
		primary = client
	}
	if client, err := deepgramtts.NewClient(); err == nil {
		if primary == nil {
			primary = client
		} else {
			fallback = client
		}
	}
	if primary == nil {
		return fmt.Errorf("no synthesis client available, set ELEVENLABS_API_KEY or DEEPGRAM_API_KEY")
	}

	ledger, err := spoken.NewLedger(spoken.NewFileStore(ledgerPath()))
	if err != nil {
		return fmt.Errorf("failed to open spoken ledger: %w", err)
	}
	ledger.StartSweeping(ctx)
	defer ledger.Close()

	options := []orchestration.OrchestratorOption{
		orchestration.WithSynthesizer(primary),
		orchestration.WithSpokenLedger(ledger),
		orchestration.WithSpeechToTextClient(deepgramstt.NewTranscriptionClient()),
	}
	if fallback != nil {
		options = append(options, orchestration.WithFallbackSynthesizer(fallback))
	}

	audioClient, audioErr := miniaudio.NewClient()
	if audioErr == nil {
		defer audioClient.Close()
		options = append(options,
			orchestration.WithAudioInput(audioClient),
			orchestration.WithAudioOutput(audioClient),
			orchestration.WithStreamingSynthesis(),
		)
	}

	orchestrator := orchestration.NewOrchestrator(options...)
	defer orchestrator.Close()

	app := newApp(ctx, orchestrator, responsesClient)
	if audioErr != nil {
		app.notice = fmt.Sprintf("audio devices unavailable (%v), playback is simulated", audioErr)
	}

	orchestrator.Orchestrate(ctx,
		orchestration.WithTranscriptionCallback(app.onTranscript),
		orchestration.WithInterimTranscriptionCallback(app.onInterimTranscript),
		orchestration.WithUserSpeechChangedCallback(app.onUserSpeechChanged),
		orchestration.WithSentenceReadyCallback(app.onSentenceReady),
		orchestration.WithSpeakingStartedCallback(app.onSpeakingStarted),
		orchestration.WithSpeakingEndedCallback(app.onSpeakingEnded),
		orchestration.WithVoiceModeChangedCallback(app.onVoiceModeChanged),
		orchestration.WithCooldownTickCallback(app.onCooldownTick),
	)

	program := tea.NewProgram(app, tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		return fmt.Errorf("tui exited with error: %w", err)
	}

	return nil
}

func ledgerPath() string {
	if path := os.Getenv("SPOKEN_LEDGER_PATH"); path != "" {
		return path
	}

	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return "spoken.json"
	}
	return filepath.Join(cacheDir, "comprehension-engine", "spoken.json")
}
