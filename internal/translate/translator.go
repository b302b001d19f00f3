// Package translate defines the Translator interface for machine translation
// backends.
//
// A translator takes recognised text plus a source and target language and
// returns the translated text together with the backend's confidence. The
// primary implementations are [googlecloud] (Google Cloud Translation v2)
// and [openai] (chat-model translation); [mock] provides a scriptable test
// double.
package translate

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned when a translator is constructed without
// the API credentials its backend requires.
var ErrMissingCredentials = errors.New("translate: missing API credentials")

// ErrEmptyText is returned when a request carries no text to translate.
var ErrEmptyText = errors.New("translate: text must not be empty")

// Request is a single translation request.
type Request struct {
	// Text is the text to translate.
	Text string

	// SourceLanguage is a BCP-47-like tag ("en-US"). May be empty, in which
	// case backends that support detection detect the source language.
	SourceLanguage string

	// TargetLanguage is a BCP-47-like tag ("ta-IN"). Must not be empty.
	TargetLanguage string
}

// Result is a completed translation.
type Result struct {
	// TranslatedText is the backend's translation of the request text.
	TranslatedText string

	// DetectedSource is the source language the backend detected, when the
	// request omitted one. Empty otherwise.
	DetectedSource string

	// Confidence is the backend's confidence in the translation (0..1).
	Confidence float64
}

// Translator is the abstraction over any machine translation backend.
//
// Implementations must be safe for concurrent use.
type Translator interface {
	// Translate translates the request text into the target language.
	// Returns an error if the request text is empty, the backend cannot be
	// reached, or ctx is cancelled.
	Translate(ctx context.Context, req Request) (*Result, error)
}
