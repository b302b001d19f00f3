// Package speak implements the speech-output fallback chain: given a request
// and a device profile, it tries an ordered list of strategies until one
// produces audible output, working around the audio-policy quirks of mobile
// browsers.
//
// The synthesis engine is a single shared, mutable resource. All strategies
// go through the [Engine] handle so the cancel-before-speak invariant holds:
// a new request always cancels whatever is currently playing before its own
// attempt chain begins. Engine callback events (start/end/error) are mapped
// to a single awaitable [Outcome] value; the ambiguous "timed out after the
// engine signalled start" case is modelled explicitly as [OutcomeStarted]
// rather than inferred.
package speak

import "context"

// Outcome is the resolved result of a single synthesis or playback attempt.
type Outcome int

const (
	// OutcomeFailed means the engine reported an error before or during
	// playback. The chain advances to the next strategy.
	OutcomeFailed Outcome = iota

	// OutcomeTimedOut means the attempt deadline passed without the engine
	// ever signalling start. Treated as failure.
	OutcomeTimedOut

	// OutcomeStarted means the engine signalled start but the end event was
	// never delivered before the deadline. An utterance that started usually
	// played, so this counts as success and the chain stops; retrying would
	// risk overlapping audio.
	OutcomeStarted

	// OutcomeCompleted means the engine delivered both start and end events.
	OutcomeCompleted
)

// String returns the human-readable name of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeFailed:
		return "failed"
	case OutcomeTimedOut:
		return "timed-out"
	case OutcomeStarted:
		return "started"
	case OutcomeCompleted:
		return "completed"
	default:
		return "unknown"
	}
}

// Audible reports whether the attempt plausibly produced audible output.
func (o Outcome) Audible() bool {
	return o == OutcomeStarted || o == OutcomeCompleted
}

// Request describes one logical utterance to vocalise. It has no persisted
// identity; requests are transient inputs to the chain.
type Request struct {
	// Text is the string to vocalise.
	Text string

	// LanguageCode is a BCP-47-like code, e.g. "ta-IN".
	LanguageCode string

	// Rate is the speaking rate (0.5–2.0, 0 = engine default).
	Rate float64

	// Pitch is the voice pitch (0.5–2.0, 0 = engine default).
	Pitch float64

	// VoiceID selects a specific engine voice. Empty means the engine's
	// default voice; the chain fills this in via [SelectVoice] when the
	// engine exposes a voice list.
	VoiceID string
}

// Voice describes one voice available to a synthesis engine.
type Voice struct {
	// ID is the engine-specific voice identifier.
	ID string

	// Name is the human-readable voice name (e.g. "Microsoft Ravi").
	Name string

	// LanguageCode is the BCP-47-like code the voice speaks.
	LanguageCode string
}

// Engine is the handle over a speech-synthesis engine. Exactly one utterance
// may be active at a time; callers must cancel before speaking.
//
// Speak blocks until the utterance resolves or ctx is done, and maps the
// engine's callback events to an [Outcome]. When ctx expires after the engine
// signalled start, implementations must return [OutcomeStarted] with a nil
// error. Implementation errors (engine unreachable, connection lost) are
// returned alongside [OutcomeFailed].
type Engine interface {
	Speak(ctx context.Context, req Request) (Outcome, error)

	// CancelCurrent stops any in-flight utterance. Cancelling an idle engine
	// is a no-op.
	CancelCurrent()

	// Voices lists the voices currently available to the engine. The list may
	// change between calls; an empty list is not an error.
	Voices(ctx context.Context) ([]Voice, error)
}

// Sink plays pre-rendered audio (server-rendered or web-service TTS) through
// the client's audio element, returning the playback outcome under the same
// event-mapping rules as [Engine.Speak].
type Sink interface {
	Play(ctx context.Context, audio []byte, mimeType string) (Outcome, error)
}

// RenderFunc produces encoded audio for the given text and language. Used to
// plug server-side TTS backends into the chain without the chain knowing
// about provider types.
type RenderFunc func(ctx context.Context, text, languageCode string) (audio []byte, mimeType string, err error)
