// Package tts defines the Provider interface for server-side Text-to-Speech
// backends.
//
// A TTS provider wraps a speech synthesis service (e.g., the Google Translate
// speech endpoint or StreamElements) and presents a uniform one-shot
// interface: text and a language code in, a complete encoded audio clip out.
// Clips are served to browser clients that cannot synthesize speech locally,
// so providers return compressed formats (MP3) rather than raw PCM.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any server-side TTS backend.
//
// Implementations must be safe for concurrent use. Multiple synthesis
// requests may run in parallel (e.g., several browser sessions at once).
type Provider interface {
	// Synthesize renders text in the given language into a complete encoded
	// audio clip. languageCode is a BCP-47-like tag ("ta-IN", "en"); providers
	// map it to whatever their service expects and should fall back to a
	// sensible default voice when the language is not supported rather than
	// failing outright.
	//
	// Returns an error if text is empty, the service cannot be reached, or
	// ctx is cancelled before the clip is complete.
	Synthesize(ctx context.Context, text, languageCode string) (*Clip, error)

	// ListVoices returns the voice profiles this provider can synthesize
	// with. Providers with a fixed per-language voice table return that
	// table; the list may change between calls if the underlying service
	// adds or removes voices.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
