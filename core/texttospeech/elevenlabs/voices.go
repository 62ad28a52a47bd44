package elevenlabs

import "github.com/comprehension-engine/voice-core/core/texttospeech"

// DefaultVoiceID is Rachel, the default tutoring voice.
const DefaultVoiceID = "21m00Tcm4TlvDq8ikWAM"

var availableVoices = []texttospeech.Voice{
	{
		ID:          "21m00Tcm4TlvDq8ikWAM",
		Name:        "Rachel",
		Description: "Calm and clear, well suited for explanations",
		Category:    "premade",
	},
	{
		ID:          "AZnzlk1XvdvUeBnXmlld",
		Name:        "Domi",
		Description: "Strong and confident",
		Category:    "premade",
	},
	{
		ID:          "EXAVITQu4vr4xnSDxMaL",
		Name:        "Bella",
		Description: "Soft and friendly",
		Category:    "premade",
	},
	{
		ID:          "ErXwobaYiN019PkySvjV",
		Name:        "Antoni",
		Description: "Well rounded narration voice",
		Category:    "premade",
	},
}

// GetAvailableVoices returns the curated voice catalog.
func GetAvailableVoices() []texttospeech.Voice {
	return availableVoices
}

// IsAvailableVoice reports whether id names a voice in the catalog.
func IsAvailableVoice(id string) bool {
	for _, voice := range availableVoices {
		if voice.ID == id {
			return true
		}
	}
	return false
}
