// Package openai provides a Translator backed by an OpenAI chat model. It
// implements the translate.Translator interface.
//
// The model is instructed to output only the translation, no commentary, so
// the raw completion text can be used directly.
package openai

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/voicebridge/voicebridge/internal/translate"
)

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

// defaultConfidence is reported for successful translations. Chat models
// return no calibrated confidence score.
const defaultConfidence = 0.85

// config holds optional configuration for the translator.
type config struct {
	baseURL string
	timeout time.Duration
}

// Option is a functional option for Translator.
type Option func(*config)

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(c *config) {
		c.baseURL = url
	}
}

// WithTimeout sets a per-request HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *config) {
		c.timeout = d
	}
}

// Translator implements translate.Translator using an OpenAI chat model.
type Translator struct {
	client oai.Client
	model  string
}

// New constructs a new OpenAI Translator. Returns
// [translate.ErrMissingCredentials] when apiKey is empty.
func New(apiKey, model string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, translate.ErrMissingCredentials
	}
	if model == "" {
		return nil, fmt.Errorf("openai: model must not be empty")
	}

	cfg := &config{}
	for _, o := range opts {
		o(cfg)
	}

	reqOpts := []option.RequestOption{
		option.WithAPIKey(apiKey),
	}
	if cfg.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(cfg.baseURL))
	}
	if cfg.timeout > 0 {
		reqOpts = append(reqOpts, option.WithHTTPClient(&http.Client{
			Timeout: cfg.timeout,
		}))
	}

	client := oai.NewClient(reqOpts...)
	return &Translator{client: client, model: model}, nil
}

// Translate implements [translate.Translator.Translate].
func (t *Translator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, translate.ErrEmptyText
	}
	if req.TargetLanguage == "" {
		return nil, fmt.Errorf("openai: target language must not be empty")
	}

	resp, err := t.client.Chat.Completions.New(ctx, oai.ChatCompletionNewParams{
		Model: shared.ChatModel(t.model),
		Messages: []oai.ChatCompletionMessageParamUnion{
			oai.SystemMessage(systemPrompt(req.SourceLanguage, req.TargetLanguage)),
			oai.UserMessage(text),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai: chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai: empty choices in response")
	}

	translated := strings.TrimSpace(resp.Choices[0].Message.Content)
	if translated == "" {
		return nil, fmt.Errorf("openai: model returned an empty translation")
	}

	return &translate.Result{
		TranslatedText: translated,
		Confidence:     defaultConfidence,
	}, nil
}

// systemPrompt builds the translation instruction for the chat model.
func systemPrompt(source, target string) string {
	var b strings.Builder
	if source != "" {
		fmt.Fprintf(&b, "Translate the user's text from %s to %s.", source, target)
	} else {
		fmt.Fprintf(&b, "Translate the user's text to %s.", target)
	}
	b.WriteString(" Output only the translation, with no commentary, quotes, or explanations.")
	return b.String()
}
