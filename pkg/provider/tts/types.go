package tts

// Clip is a complete synthesised audio clip.
type Clip struct {
	// Data is the encoded audio payload.
	Data []byte

	// MIMEType describes the encoding of Data (e.g., "audio/mpeg").
	MIMEType string
}

// VoiceProfile describes a synthesis voice offered by a provider.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// LanguageCode is the BCP-47-like tag the voice speaks ("en-US", "hi-IN").
	LanguageCode string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// Metadata holds provider-specific voice attributes (gender, engine, etc.).
	Metadata map[string]string
}
