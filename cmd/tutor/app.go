package main

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"

	orchestration "github.com/comprehension-engine/voice-core/core"
	"github.com/comprehension-engine/voice-core/core/responses"
)

type chatRole int

const (
	roleLearner chatRole = iota
	roleTutor
	roleSystem
)

type chatLine struct {
	role chatRole
	text string
}

// Messages delivered from orchestrator callbacks through the event channel.
type (
	transcriptMsg      string
	interimMsg         string
	userSpeechMsg      bool
	sentenceMsg        struct{ text string }
	speakingStartedMsg string
	speakingEndedMsg   struct {
		text string
		err  error
	}
	voiceModeMsg  struct{ state string }
	cooldownMsg   time.Duration
	streamDoneMsg struct {
		turnID uint64
		err    error
	}
)

type app struct {
	ctx          context.Context
	orchestrator *orchestration.Orchestrator
	responses    *responses.Client

	events chan tea.Msg

	input    textinput.Model
	spinner  spinner.Model
	viewport viewport.Model

	lines       []chatLine
	answerOpen  bool
	interim     string
	notice      string
	lastError   string
	voiceState  string
	voiceMode   bool
	cooldown    time.Duration
	userTalking bool
	speaking    bool
	streaming   bool

	width  int
	height int
	ready  bool
}

func newApp(ctx context.Context, orchestrator *orchestration.Orchestrator, responsesClient *responses.Client) *app {
	input := textinput.New()
	input.Placeholder = "Ask a question..."
	input.Focus()
	input.CharLimit = 500

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("#7D56F4"))

	return &app{
		ctx:          ctx,
		orchestrator: orchestrator,
		responses:    responsesClient,
		events:       make(chan tea.Msg, 64),
		input:        input,
		spinner:      s,
		voiceState:   string(orchestration.StateIdle),
	}
}

// Orchestrator callbacks. These run on orchestrator goroutines, so they only
// push messages for Update to consume.

func (a *app) onTranscript(transcript string)        { a.events <- transcriptMsg(transcript) }
func (a *app) onInterimTranscript(transcript string) { a.events <- interimMsg(transcript) }
func (a *app) onUserSpeechChanged(isSpeaking bool)   { a.events <- userSpeechMsg(isSpeaking) }

func (a *app) onSentenceReady(_ uint64, _ int, text string) { a.events <- sentenceMsg{text: text} }
func (a *app) onSpeakingStarted(text string)                { a.events <- speakingStartedMsg(text) }
func (a *app) onSpeakingEnded(text string, err error) {
	a.events <- speakingEndedMsg{text: text, err: err}
}

func (a *app) onVoiceModeChanged(state, _ string)     { a.events <- voiceModeMsg{state: state} }
func (a *app) onCooldownTick(remaining time.Duration) { a.events <- cooldownMsg(remaining) }

func (a *app) listenForEvents() tea.Cmd {
	return func() tea.Msg { return <-a.events }
}

func (a *app) Init() tea.Cmd {
	return tea.Batch(a.spinner.Tick, a.listenForEvents(), textinput.Blink)
}

func (a *app) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			return a, tea.Quit
		case "enter":
			if cmd := a.ask(strings.TrimSpace(a.input.Value())); cmd != nil {
				a.input.Reset()
				cmds = append(cmds, cmd)
			}
		case "ctrl+v":
			a.toggleVoiceMode()
		case "ctrl+f":
			a.orchestrator.ForceActivateMicrophone()
		case "esc":
			a.orchestrator.CancelTurn()
			a.streaming = false
			a.appendSystem("turn cancelled")
		}

	case tea.WindowSizeMsg:
		a.resize(msg.Width, msg.Height)

	case spinner.TickMsg:
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		cmds = append(cmds, cmd)

	case transcriptMsg:
		a.interim = ""
		if cmd := a.ask(strings.TrimSpace(string(msg))); cmd != nil {
			cmds = append(cmds, cmd)
		}
		cmds = append(cmds, a.listenForEvents())

	case interimMsg:
		a.interim = string(msg)
		cmds = append(cmds, a.listenForEvents())

	case userSpeechMsg:
		a.userTalking = bool(msg)
		cmds = append(cmds, a.listenForEvents())

	case sentenceMsg:
		a.appendAnswer(msg.text)
		cmds = append(cmds, a.listenForEvents())

	case speakingStartedMsg:
		a.speaking = true
		cmds = append(cmds, a.listenForEvents())

	case speakingEndedMsg:
		a.speaking = false
		if msg.err != nil {
			a.lastError = msg.err.Error()
		}
		cmds = append(cmds, a.listenForEvents())

	case voiceModeMsg:
		a.voiceState = msg.state
		cmds = append(cmds, a.listenForEvents())

	case cooldownMsg:
		a.cooldown = time.Duration(msg)
		cmds = append(cmds, a.listenForEvents())

	case streamDoneMsg:
		a.streaming = false
		a.answerOpen = false
		if msg.err != nil {
			a.lastError = msg.err.Error()
		}
	}

	var cmd tea.Cmd
	a.input, cmd = a.input.Update(msg)
	cmds = append(cmds, cmd)

	a.refreshViewport()
	return a, tea.Batch(cmds...)
}

// ask starts a new turn for the question and streams the backend's answer
// into it. Empty questions are ignored.
func (a *app) ask(question string) tea.Cmd {
	if question == "" {
		return nil
	}

	a.lines = append(a.lines, chatLine{role: roleLearner, text: question})
	a.answerOpen = false
	a.streaming = true
	a.lastError = ""

	turnID := a.orchestrator.StartTurn(orchestration.WithTurnResponseID(uuid.NewString()))
	return func() tea.Msg {
		err := a.responses.StreamResponse(a.ctx, question, func(delta responses.Delta) {
			a.orchestrator.OnDelta(turnID, delta.SentenceIndex, delta.Text)
		})
		if err == nil {
			a.orchestrator.OnStreamDone(turnID)
		}
		return streamDoneMsg{turnID: turnID, err: err}
	}
}

func (a *app) toggleVoiceMode() {
	if a.voiceMode {
		a.orchestrator.ExitVoiceMode()
		a.voiceMode = false
		a.appendSystem("voice mode off")
		return
	}

	a.orchestrator.EnterVoiceMode()
	a.voiceMode = true
	a.appendSystem("voice mode on")
}

func (a *app) appendAnswer(sentence string) {
	if a.answerOpen && len(a.lines) > 0 && a.lines[len(a.lines)-1].role == roleTutor {
		a.lines[len(a.lines)-1].text += " " + sentence
		return
	}

	a.lines = append(a.lines, chatLine{role: roleTutor, text: sentence})
	a.answerOpen = true
}

func (a *app) appendSystem(text string) {
	a.lines = append(a.lines, chatLine{role: roleSystem, text: text})
}

func (a *app) resize(width, height int) {
	a.width = width
	a.height = height

	chromeHeight := 6
	if !a.ready {
		a.viewport = viewport.New(width, max(height-chromeHeight, 3))
		a.ready = true
	} else {
		a.viewport.Width = width
		a.viewport.Height = max(height-chromeHeight, 3)
	}
	a.input.Width = max(width-4, 10)
}

func (a *app) refreshViewport() {
	if !a.ready {
		return
	}

	atBottom := a.viewport.AtBottom()
	a.viewport.SetContent(a.renderConversation())
	if atBottom {
		a.viewport.GotoBottom()
	}
}
