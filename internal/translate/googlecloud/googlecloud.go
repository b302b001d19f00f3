// Package googlecloud provides a Translator backed by the Google Cloud
// Translation v2 REST API. It implements the translate.Translator interface.
//
// Authentication uses an API key passed as a query parameter, which is the
// v2 API's simplest credential model and needs no service-account file.
//
// Typical usage:
//
//	t, err := googlecloud.New(apiKey,
//	    googlecloud.WithTimeout(10 * time.Second),
//	)
//	result, err := t.Translate(ctx, translate.Request{
//	    Text:           "Hello",
//	    SourceLanguage: "en-US",
//	    TargetLanguage: "ta-IN",
//	})
package googlecloud

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/voicebridge/voicebridge/internal/translate"
)

// Compile-time interface assertion.
var _ translate.Translator = (*Translator)(nil)

const (
	defaultBaseURL    = "https://translation.googleapis.com"
	translateEndpoint = "/language/translate/v2"
	defaultTimeout    = 10 * time.Second

	// defaultConfidence is reported for successful translations. The v2 API
	// returns no per-translation confidence score.
	defaultConfidence = 0.95
)

// Option is a functional option for configuring a googlecloud Translator.
type Option func(*Translator)

// WithBaseURL overrides the API base URL. Intended for tests.
func WithBaseURL(baseURL string) Option {
	return func(t *Translator) {
		t.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithTimeout sets the per-request HTTP timeout. Defaults to 10 s if not set.
func WithTimeout(d time.Duration) Option {
	return func(t *Translator) {
		t.httpClient.Timeout = d
	}
}

// Translator implements translate.Translator against the Google Cloud
// Translation v2 REST API. It is safe for concurrent use.
type Translator struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

// New constructs a new Translator. Returns [translate.ErrMissingCredentials]
// when apiKey is empty.
func New(apiKey string, opts ...Option) (*Translator, error) {
	if apiKey == "" {
		return nil, translate.ErrMissingCredentials
	}
	t := &Translator{
		apiKey:  apiKey,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: defaultTimeout,
		},
	}
	for _, o := range opts {
		o(t)
	}
	return t, nil
}

// translateRequest is the JSON body sent to POST /language/translate/v2.
type translateRequest struct {
	Q      string `json:"q"`
	Source string `json:"source,omitempty"`
	Target string `json:"target"`
	Format string `json:"format"`
}

// translateResponse is the JSON body returned by the v2 API.
type translateResponse struct {
	Data struct {
		Translations []struct {
			TranslatedText         string `json:"translatedText"`
			DetectedSourceLanguage string `json:"detectedSourceLanguage"`
		} `json:"translations"`
	} `json:"data"`
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Translate implements [translate.Translator.Translate].
func (t *Translator) Translate(ctx context.Context, req translate.Request) (*translate.Result, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, translate.ErrEmptyText
	}
	if req.TargetLanguage == "" {
		return nil, fmt.Errorf("googlecloud: target language must not be empty")
	}

	body := translateRequest{
		Q:      text,
		Source: apiLang(req.SourceLanguage),
		Target: apiLang(req.TargetLanguage),
		Format: "text",
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("googlecloud: marshal translate request: %w", err)
	}

	params := url.Values{}
	params.Set("key", t.apiKey)
	reqURL := t.baseURL + translateEndpoint + "?" + params.Encode()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("googlecloud: create translate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := t.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("googlecloud: POST %s: %w", translateEndpoint, err)
	}
	defer resp.Body.Close()

	var parsed translateResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("googlecloud: decode translate response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		if parsed.Error.Message != "" {
			return nil, fmt.Errorf("googlecloud: POST %s returned status %d: %s",
				translateEndpoint, resp.StatusCode, parsed.Error.Message)
		}
		return nil, fmt.Errorf("googlecloud: POST %s returned status %d", translateEndpoint, resp.StatusCode)
	}

	if len(parsed.Data.Translations) == 0 {
		return nil, fmt.Errorf("googlecloud: translate response contained no translations")
	}

	tr := parsed.Data.Translations[0]
	return &translate.Result{
		TranslatedText: tr.TranslatedText,
		DetectedSource: tr.DetectedSourceLanguage,
		Confidence:     defaultConfidence,
	}, nil
}

// apiLang maps a BCP-47-like tag to the bare ISO-639-1 form the v2 API
// expects ("en-US" becomes "en"). Chinese keeps its region because the API
// distinguishes zh-CN from zh-TW.
func apiLang(languageCode string) string {
	if languageCode == "" {
		return ""
	}
	code := strings.ToLower(languageCode)
	if strings.HasPrefix(code, "zh") {
		return strings.ReplaceAll(code, "_", "-")
	}
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return code[:idx]
	}
	return code
}
