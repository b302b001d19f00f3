// Package mock provides a test double for the translate.Translator interface.
//
// Example:
//
//	tr := &mock.Translator{
//	    Result: &translate.Result{TranslatedText: "வணக்கம்", Confidence: 0.95},
//	}
//	result, _ := tr.Translate(ctx, translate.Request{Text: "Hello", TargetLanguage: "ta-IN"})
package mock

import (
	"context"
	"sync"

	"github.com/voicebridge/voicebridge/internal/translate"
)

// Translator is a mock implementation of translate.Translator.
type Translator struct {
	mu sync.Mutex

	// Result is returned by Translate when Err is nil.
	Result *translate.Result

	// Err, if non-nil, is returned as the error from Translate.
	Err error

	// TranslateCalls records every request passed to Translate in order.
	TranslateCalls []translate.Request
}

// Translate records the call and returns Result, Err.
func (t *Translator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.TranslateCalls = append(t.TranslateCalls, req)
	if t.Err != nil {
		return nil, t.Err
	}
	return t.Result, nil
}

// Calls returns a copy of all recorded requests. Thread-safe.
func (t *Translator) Calls() []translate.Request {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]translate.Request, len(t.TranslateCalls))
	copy(out, t.TranslateCalls)
	return out
}

// Ensure Translator implements translate.Translator at compile time.
var _ translate.Translator = (*Translator)(nil)
