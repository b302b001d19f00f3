// Package streamelements provides a TTS provider backed by the
// StreamElements speech API (api.streamelements.com/kappa/v2/speech). It
// implements the tts.Provider interface.
//
// The API synthesises with Amazon Polly voices selected by name. The
// provider carries a per-language voice table and falls back to the
// default English voice when a language has no entry.
//
// Typical usage:
//
//	p := streamelements.New(
//	    streamelements.WithDefaultVoice("Brian"),
//	)
//	clip, err := p.Synthesize(ctx, "Hello there", "en-GB")
package streamelements

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL   = "https://api.streamelements.com"
	speechEndpoint   = "/kappa/v2/speech"
	defaultTimeout   = 10 * time.Second
	defaultVoiceName = "Brian"
)

// voiceByLanguage maps primary language subtags to Polly voice names the
// speech API accepts. Languages without an entry use the default voice.
var voiceByLanguage = map[string]string{
	"en": "Brian",
	"hi": "Aditi",
	"de": "Hans",
	"fr": "Mathieu",
	"es": "Enrique",
	"it": "Giorgio",
	"pt": "Ricardo",
	"ja": "Takumi",
	"ko": "Seoyeon",
	"zh": "Zhiyu",
	"ru": "Maxim",
	"nl": "Ruben",
	"pl": "Jacek",
	"sv": "Astrid",
	"tr": "Filiz",
	"da": "Mads",
	"ro": "Carmen",
	"cy": "Geraint",
}

// Option is a functional option for configuring a StreamElements Provider.
type Option func(*Provider)

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(p *Provider) {
		p.httpClient.Timeout = d
	}
}

// WithDefaultVoice sets the voice used for languages without a table entry.
// Defaults to "Brian" if not set.
func WithDefaultVoice(name string) Option {
	return func(p *Provider) {
		p.defaultVoice = name
	}
}

// Provider implements tts.Provider against the StreamElements speech API.
// It is safe for concurrent use.
type Provider struct {
	baseURL      string
	defaultVoice string
	httpClient   *http.Client
}

// New creates a new Provider. Functional options may override the base URL,
// default voice, and per-request timeout.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL:      defaultBaseURL,
		defaultVoice: defaultVoiceName,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements [tts.Provider.Synthesize].
func (p *Provider) Synthesize(ctx context.Context, text, languageCode string) (*tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("streamelements: text must not be empty")
	}

	params := url.Values{}
	params.Set("voice", p.voiceFor(languageCode))
	params.Set("text", text)

	reqURL := p.baseURL + speechEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("streamelements: create speech request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("streamelements: GET %s: %w", speechEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("streamelements: GET %s returned status %d", speechEndpoint, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("streamelements: read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("streamelements: speech response was empty")
	}

	return &tts.Clip{
		Data:     audio,
		MIMEType: "audio/mpeg",
	}, nil
}

// ListVoices implements [tts.Provider.ListVoices]. The catalogue is the
// static per-language voice table, sorted by language for deterministic
// output.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	langs := make([]string, 0, len(voiceByLanguage))
	for lang := range voiceByLanguage {
		langs = append(langs, lang)
	}
	sort.Strings(langs)

	profiles := make([]tts.VoiceProfile, 0, len(langs))
	for _, lang := range langs {
		name := voiceByLanguage[lang]
		profiles = append(profiles, tts.VoiceProfile{
			ID:           name,
			Name:         name,
			LanguageCode: lang,
			Provider:     "streamelements",
			Metadata: map[string]string{
				"engine": "polly",
			},
		})
	}
	return profiles, nil
}

// voiceFor resolves the Polly voice name for a BCP-47-like language tag.
func (p *Provider) voiceFor(languageCode string) string {
	code := strings.ToLower(languageCode)
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		code = code[:idx]
	}
	if voice, ok := voiceByLanguage[code]; ok {
		return voice
	}
	return p.defaultVoice
}
