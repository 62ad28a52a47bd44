package deepgram

const (
	VoiceAsteria = "aura-asteria-en"
	VoiceLuna    = "aura-luna-en"
	VoiceStella  = "aura-stella-en"
	VoiceOrion   = "aura-orion-en"
	VoiceArcas   = "aura-arcas-en"

	defaultVoice = VoiceAsteria
)

// GetAvailableVoices returns the Aura models the client accepts.
func GetAvailableVoices() []string {
	return []string{VoiceAsteria, VoiceLuna, VoiceStella, VoiceOrion, VoiceArcas}
}
