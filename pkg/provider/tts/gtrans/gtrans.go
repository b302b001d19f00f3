// Package gtrans provides a TTS provider backed by the public Google
// Translate speech endpoint (the same endpoint the translate.google.com
// web widget uses). It implements the tts.Provider interface.
//
// The endpoint accepts at most 200 characters of text per request, so
// Synthesize splits longer input into chunks on sentence and word
// boundaries, fetches each chunk sequentially, and concatenates the
// resulting MP3 frames into a single clip.
//
// Typical usage:
//
//	p := gtrans.New(
//	    gtrans.WithTimeout(10 * time.Second),
//	)
//	clip, err := p.Synthesize(ctx, "வணக்கம்", "ta-IN")
package gtrans

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode"

	"github.com/voicebridge/voicebridge/pkg/provider/tts"
)

// Compile-time interface assertion.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultBaseURL = "https://translate.google.com"
	speechEndpoint = "/translate_tts"
	defaultTimeout = 10 * time.Second

	// maxChunkRunes is the endpoint's per-request text limit.
	maxChunkRunes = 200
)

// Option is a functional option for configuring a gtrans Provider.
type Option func(*Provider)

// WithBaseURL overrides the endpoint base URL. Intended for tests.
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

// Provider implements tts.Provider against the Google Translate speech
// endpoint. It is safe for concurrent use.
type Provider struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a new Provider. Functional options may override the base URL
// and per-request timeout.
func New(opts ...Option) *Provider {
	p := &Provider{
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Synthesize implements [tts.Provider.Synthesize]. Text longer than the
// endpoint's 200-character limit is split into chunks and the MP3 payloads
// are concatenated in order.
func (p *Provider) Synthesize(ctx context.Context, text, languageCode string) (*tts.Clip, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("gtrans: text must not be empty")
	}

	var data bytes.Buffer
	for _, chunk := range splitChunks(text, maxChunkRunes) {
		audio, err := p.fetchChunk(ctx, chunk, languageCode)
		if err != nil {
			return nil, err
		}
		data.Write(audio)
	}

	return &tts.Clip{
		Data:     data.Bytes(),
		MIMEType: "audio/mpeg",
	}, nil
}

// ListVoices implements [tts.Provider.ListVoices]. The endpoint exposes one
// implicit voice per language, so the catalogue is a single generic entry.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	return []tts.VoiceProfile{
		{
			ID:       "default",
			Name:     "Google Translate",
			Provider: "gtrans",
			Metadata: map[string]string{
				"note": "voice is selected by the service from the tl parameter",
			},
		},
	}, nil
}

// fetchChunk performs a single GET /translate_tts call and returns the MP3 bytes.
func (p *Provider) fetchChunk(ctx context.Context, chunk, languageCode string) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("tl", speechLang(languageCode))
	params.Set("q", chunk)

	reqURL := p.baseURL + speechEndpoint + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("gtrans: create speech request: %w", err)
	}
	req.Header.Set("Accept", "audio/mpeg")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gtrans: GET %s: %w", speechEndpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gtrans: GET %s returned status %d", speechEndpoint, resp.StatusCode)
	}

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("gtrans: read speech response: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("gtrans: speech response was empty")
	}
	return audio, nil
}

// speechLang maps a BCP-47-like tag to the form the tl parameter expects.
// The endpoint accepts both full tags ("ta-IN") and bare primary subtags
// ("ta"); it is more forgiving with the latter for regional variants it
// does not know, so the region is dropped.
func speechLang(languageCode string) string {
	if languageCode == "" {
		return "en"
	}
	code := strings.ToLower(languageCode)
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return code[:idx]
	}
	return code
}

// splitChunks splits text into pieces of at most maxRunes runes each,
// preferring sentence boundaries, then word boundaries. A single word longer
// than maxRunes is split mid-word as a last resort.
func splitChunks(text string, maxRunes int) []string {
	runes := []rune(text)
	if len(runes) <= maxRunes {
		return []string{text}
	}

	var chunks []string
	for len(runes) > 0 {
		if len(runes) <= maxRunes {
			chunks = append(chunks, strings.TrimSpace(string(runes)))
			break
		}

		window := runes[:maxRunes]
		cut := lastBoundary(window)
		if cut <= 0 {
			cut = maxRunes
		}
		chunk := strings.TrimSpace(string(runes[:cut]))
		if chunk != "" {
			chunks = append(chunks, chunk)
		}
		runes = runes[cut:]
		for len(runes) > 0 && unicode.IsSpace(runes[0]) {
			runes = runes[1:]
		}
	}
	return chunks
}

// lastBoundary returns the cut position after the last sentence terminator
// in window, or after the last space when no terminator exists. Returns -1
// if the window contains neither.
func lastBoundary(window []rune) int {
	lastSpace := -1
	lastSentence := -1
	for i, r := range window {
		switch {
		case r == '.' || r == '!' || r == '?':
			lastSentence = i
		case unicode.IsSpace(r):
			lastSpace = i
		}
	}
	if lastSentence >= 0 {
		return lastSentence + 1
	}
	if lastSpace >= 0 {
		return lastSpace + 1
	}
	return -1
}
