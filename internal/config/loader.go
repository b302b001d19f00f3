package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"translation": {"googlecloud", "openai"},
	"tts":         {"gtrans", "streamelements"},
}

// Load reads the YAML configuration file at path and returns a validated [Config].
// It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" {
			errs = append(errs, errors.New("server.tls.cert_file is required when tls is set"))
		}
		if cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls.key_file is required when tls is set"))
		}
	}

	// Provider name validation — warn for unknown provider names.
	validateProviderName("translation", cfg.Translation.Primary.Name)
	for _, fb := range cfg.Translation.Fallbacks {
		validateProviderName("translation", fb.Name)
	}
	validateProviderName("tts", cfg.TTS.Primary.Name)
	for _, fb := range cfg.TTS.Fallbacks {
		validateProviderName("tts", fb.Name)
	}

	// Translation availability warnings. A missing backend is not fatal:
	// the translate endpoint reports the error per request instead.
	if cfg.Translation.Primary.Name == "" {
		slog.Warn("translation.primary is not configured; translation requests will fail")
	} else if requiresAPIKey(cfg.Translation.Primary.Name) && cfg.Translation.Primary.APIKey == "" {
		slog.Warn("translation provider has no api_key; translation requests will fail",
			"provider", cfg.Translation.Primary.Name)
	}

	// Fallbacks without a primary make no sense.
	if cfg.Translation.Primary.Name == "" && len(cfg.Translation.Fallbacks) > 0 {
		errs = append(errs, errors.New("translation.fallbacks requires translation.primary to be set"))
	}
	if cfg.TTS.Primary.Name == "" && len(cfg.TTS.Fallbacks) > 0 {
		errs = append(errs, errors.New("tts.fallbacks requires tts.primary to be set"))
	}

	// History
	if cfg.History.ListLimit < 0 {
		errs = append(errs, fmt.Errorf("history.list_limit %d must not be negative", cfg.History.ListLimit))
	}
	if cfg.History.PostgresDSN == "" {
		slog.Warn("history.postgres_dsn is empty; translation history will not survive restarts")
	}

	// Speak
	errs = append(errs, validateSpeak(&cfg.Speak)...)

	return errors.Join(errs...)
}

// validateSpeak checks the fallback chain tuning block.
func validateSpeak(s *SpeakConfig) []error {
	var errs []error

	durations := []struct {
		name  string
		value time.Duration
	}{
		{"speak.unlock_timeout", s.UnlockTimeout},
		{"speak.local_timeout", s.LocalTimeout},
		{"speak.priming_timeout", s.PrimingTimeout},
		{"speak.primed_timeout", s.PrimedTimeout},
		{"speak.web_service_timeout", s.WebServiceTimeout},
		{"speak.server_audio_timeout", s.ServerAudioTimeout},
	}
	for _, d := range durations {
		if d.value < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative", d.name))
		}
	}

	if s.MaxMobileRate < 0 || s.MaxMobileRate > 2 {
		errs = append(errs, fmt.Errorf("speak.max_mobile_rate %.2f is out of range [0, 2]", s.MaxMobileRate))
	}
	if s.DeviceOverride != "" && !s.DeviceOverride.IsValid() {
		errs = append(errs, fmt.Errorf("speak.device_override %q is invalid; valid values: desktop, generic-mobile, samsung-mobile, ios-mobile", s.DeviceOverride))
	}
	return errs
}

// requiresAPIKey reports whether the named translation provider needs an API key.
func requiresAPIKey(name string) bool {
	return name == "googlecloud" || name == "openai"
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name — may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
