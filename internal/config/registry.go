package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/voicebridge/voicebridge/internal/translate"
	"github.com/voicebridge/voicebridge/internal/translate/googlecloud"
	troai "github.com/voicebridge/voicebridge/internal/translate/openai"
	"github.com/voicebridge/voicebridge/pkg/provider/tts"
	"github.com/voicebridge/voicebridge/pkg/provider/tts/gtrans"
	"github.com/voicebridge/voicebridge/pkg/provider/tts/streamelements"
)

// ErrProviderNotRegistered is returned by Create* methods when no factory has
// been registered under the requested provider name.
var ErrProviderNotRegistered = errors.New("config: provider not registered")

// defaultOpenAIModel is used when an openai translation entry omits the model.
const defaultOpenAIModel = "gpt-4o-mini"

// Registry maps provider names to their constructor functions for each
// provider kind. It is safe for concurrent use.
type Registry struct {
	mu          sync.RWMutex
	translators map[string]func(ProviderEntry) (translate.Translator, error)
	tts         map[string]func(ProviderEntry) (tts.Provider, error)
}

// NewRegistry returns an empty [Registry]. Most callers want
// [DefaultRegistry], which has the built-in providers pre-registered.
func NewRegistry() *Registry {
	return &Registry{
		translators: make(map[string]func(ProviderEntry) (translate.Translator, error)),
		tts:         make(map[string]func(ProviderEntry) (tts.Provider, error)),
	}
}

// DefaultRegistry returns a [Registry] with all built-in translation and TTS
// providers registered.
func DefaultRegistry() *Registry {
	r := NewRegistry()

	r.RegisterTranslator("googlecloud", func(entry ProviderEntry) (translate.Translator, error) {
		var opts []googlecloud.Option
		if entry.BaseURL != "" {
			opts = append(opts, googlecloud.WithBaseURL(entry.BaseURL))
		}
		return googlecloud.New(entry.APIKey, opts...)
	})
	r.RegisterTranslator("openai", func(entry ProviderEntry) (translate.Translator, error) {
		model := entry.Model
		if model == "" {
			model = defaultOpenAIModel
		}
		var opts []troai.Option
		if entry.BaseURL != "" {
			opts = append(opts, troai.WithBaseURL(entry.BaseURL))
		}
		return troai.New(entry.APIKey, model, opts...)
	})

	r.RegisterTTS("gtrans", func(entry ProviderEntry) (tts.Provider, error) {
		var opts []gtrans.Option
		if entry.BaseURL != "" {
			opts = append(opts, gtrans.WithBaseURL(entry.BaseURL))
		}
		return gtrans.New(opts...), nil
	})
	r.RegisterTTS("streamelements", func(entry ProviderEntry) (tts.Provider, error) {
		var opts []streamelements.Option
		if entry.BaseURL != "" {
			opts = append(opts, streamelements.WithBaseURL(entry.BaseURL))
		}
		if voice, ok := entry.Options["default_voice"].(string); ok && voice != "" {
			opts = append(opts, streamelements.WithDefaultVoice(voice))
		}
		return streamelements.New(opts...), nil
	})

	return r
}

// RegisterTranslator registers a translation backend constructor under name,
// replacing any previous registration.
func (r *Registry) RegisterTranslator(name string, factory func(ProviderEntry) (translate.Translator, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.translators[name] = factory
}

// RegisterTTS registers a TTS backend constructor under name, replacing any
// previous registration.
func (r *Registry) RegisterTTS(name string, factory func(ProviderEntry) (tts.Provider, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tts[name] = factory
}

// CreateTranslator constructs the translation backend selected by entry.
func (r *Registry) CreateTranslator(entry ProviderEntry) (translate.Translator, error) {
	r.mu.RLock()
	factory, ok := r.translators[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: translation provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}

// CreateTTS constructs the TTS backend selected by entry.
func (r *Registry) CreateTTS(entry ProviderEntry) (tts.Provider, error) {
	r.mu.RLock()
	factory, ok := r.tts[entry.Name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: tts provider %q", ErrProviderNotRegistered, entry.Name)
	}
	return factory(entry)
}
