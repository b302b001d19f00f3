package resilience

import (
	"context"

	"github.com/voicebridge/voicebridge/internal/translate"
)

// TranslateFallback implements [translate.Translator] with automatic failover
// across multiple translation backends. Each backend has its own circuit
// breaker.
type TranslateFallback struct {
	group *FallbackGroup[translate.Translator]
}

// Compile-time interface assertion.
var _ translate.Translator = (*TranslateFallback)(nil)

// NewTranslateFallback creates a [TranslateFallback] with primary as the
// preferred backend.
func NewTranslateFallback(primary translate.Translator, primaryName string, cfg FallbackConfig) *TranslateFallback {
	return &TranslateFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional translator as a fallback.
func (f *TranslateFallback) AddFallback(name string, translator translate.Translator) {
	f.group.AddFallback(name, translator)
}

// Translate runs the request against the first healthy translator.
func (f *TranslateFallback) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	return ExecuteWithResult(f.group, func(tr translate.Translator) (*translate.Result, error) {
		return tr.Translate(ctx, req)
	})
}
