package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	orchestration "github.com/comprehension-engine/voice-core/core"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	learnerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	tutorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA"))

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262")).
			Italic(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888"))

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#04B575")).
			Bold(true)

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF4444"))

	interimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			Italic(true)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#626262"))
)

func (a *app) View() string {
	if !a.ready {
		return "starting..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("Comprehension Tutor"))
	b.WriteString("\n")
	b.WriteString(a.renderStatus())
	b.WriteString("\n")
	b.WriteString(a.viewport.View())
	b.WriteString("\n")

	if a.interim != "" {
		b.WriteString(interimStyle.Render("you: " + a.interim))
		b.WriteString("\n")
	}

	b.WriteString(a.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("enter: ask  ctrl+v: voice mode  ctrl+f: interrupt  esc: cancel  ctrl+c: quit"))

	return b.String()
}

func (a *app) renderStatus() string {
	parts := []string{}

	switch orchestration.ArbitrationState(a.voiceState) {
	case orchestration.StateListening:
		indicator := "listening"
		if a.userTalking {
			indicator = "listening (speech detected)"
		}
		parts = append(parts, activeStyle.Render(indicator))
	case orchestration.StateSpeaking, orchestration.StateSettling:
		parts = append(parts, activeStyle.Render("speaking"))
	case orchestration.StateCooling:
		parts = append(parts, statusStyle.Render(fmt.Sprintf("cooling down %.1fs", a.cooldown.Seconds())))
	default:
		parts = append(parts, statusStyle.Render("idle"))
	}

	if a.streaming {
		parts = append(parts, a.spinner.View()+statusStyle.Render("thinking"))
	}
	if pending := a.orchestrator.PendingSentences(); pending > 0 {
		parts = append(parts, statusStyle.Render(fmt.Sprintf("%d queued", pending)))
	}
	if a.notice != "" {
		parts = append(parts, statusStyle.Render(a.notice))
	}
	if a.lastError != "" {
		parts = append(parts, errorStyle.Render(a.lastError))
	}

	return strings.Join(parts, statusStyle.Render("  |  "))
}

func (a *app) renderConversation() string {
	width := max(a.viewport.Width-2, 20)

	var b strings.Builder
	for i, line := range a.lines {
		if i > 0 {
			b.WriteString("\n")
		}

		switch line.role {
		case roleLearner:
			b.WriteString(learnerStyle.Render("you: "))
			b.WriteString(wordwrap.String(line.text, width))
		case roleTutor:
			b.WriteString(tutorStyle.Render(wordwrap.String(line.text, width)))
		case roleSystem:
			b.WriteString(systemStyle.Render(wordwrap.String(line.text, width)))
		}
		b.WriteString("\n")
	}

	return b.String()
}
