package speak

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/voicebridge/voicebridge/internal/device"
	"github.com/voicebridge/voicebridge/internal/observe"
)

// ErrInFlight is returned when an identical (text, languageCode) request is
// already being spoken. Duplicates are rejected, never queued: queuing would
// produce two overlapping renditions of the same content.
var ErrInFlight = errors.New("speak: identical request already in progress")

// ErrExhausted is returned when every strategy for the device profile failed.
// The chain reports failure to the caller rather than resolving optimistically,
// so the UI can show a playback-failed state.
var ErrExhausted = errors.New("speak: all strategies exhausted")

// ErrEmptyText is returned for requests with nothing to vocalise.
var ErrEmptyText = errors.New("speak: empty text")

// Config holds per-strategy attempt deadlines and rate limits. Zero fields
// take defaults.
type Config struct {
	// UnlockTimeout bounds the audio-unlock handshake. Default: 2s.
	UnlockTimeout time.Duration

	// LocalTimeout bounds a plain local synthesis attempt. Default: 6s.
	LocalTimeout time.Duration

	// PrimingTimeout bounds each Samsung priming utterance. Default: 2s.
	PrimingTimeout time.Duration

	// PrimedTimeout bounds the real utterance after priming. Samsung engines
	// can take a long time to warm up. Default: 15s.
	PrimedTimeout time.Duration

	// WebServiceTimeout bounds an external TTS web-service attempt.
	// Default: 10s.
	WebServiceTimeout time.Duration

	// ServerAudioTimeout bounds a server-rendered audio attempt.
	// Default: 12s.
	ServerAudioTimeout time.Duration

	// MaxMobileRate caps the speaking rate on mobile profiles, where engines
	// are unreliable at high rates. Default: 0.9.
	MaxMobileRate float64
}

func (c *Config) applyDefaults() {
	if c.UnlockTimeout <= 0 {
		c.UnlockTimeout = 2 * time.Second
	}
	if c.LocalTimeout <= 0 {
		c.LocalTimeout = 6 * time.Second
	}
	if c.PrimingTimeout <= 0 {
		c.PrimingTimeout = 2 * time.Second
	}
	if c.PrimedTimeout <= 0 {
		c.PrimedTimeout = 15 * time.Second
	}
	if c.WebServiceTimeout <= 0 {
		c.WebServiceTimeout = 10 * time.Second
	}
	if c.ServerAudioTimeout <= 0 {
		c.ServerAudioTimeout = 12 * time.Second
	}
	if c.MaxMobileRate <= 0 {
		c.MaxMobileRate = 0.9
	}
}

// Chain runs the speech-output fallback sequence for one client session.
// It owns the session's audio-unlock [Gate] and the in-flight de-dup set.
//
// Chain is safe for concurrent use; attempts for a given logical utterance
// are strictly sequential, and a later strategy never starts before the
// prior attempt has resolved.
type Chain struct {
	engine Engine
	cfg    Config

	sink         Sink
	webService   RenderFunc
	serverAudio  RenderFunc
	unlockAction UnlockFunc
	gate         *Gate
	metrics      *observe.Metrics

	mu       sync.Mutex
	inflight map[string]struct{}
}

// Option configures optional chain collaborators.
type Option func(*Chain)

// WithSink sets the audio sink used to play rendered audio.
func WithSink(s Sink) Option {
	return func(c *Chain) { c.sink = s }
}

// WithWebServiceTTS sets the external TTS web-service renderer, used as a
// Samsung fallback when local synthesis does not clearly succeed.
func WithWebServiceTTS(r RenderFunc) Option {
	return func(c *Chain) { c.webService = r }
}

// WithServerAudio sets the server-rendered TTS backend, the final fallback
// and the only strategy on iOS.
func WithServerAudio(r RenderFunc) Option {
	return func(c *Chain) { c.serverAudio = r }
}

// WithUnlock sets the audio-unlock action issued once per session on mobile
// profiles before the first attempt.
func WithUnlock(fn UnlockFunc) Option {
	return func(c *Chain) { c.unlockAction = fn }
}

// WithMetrics enables per-attempt metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Chain) { c.metrics = m }
}

// NewChain creates a [Chain] over the given engine. Strategies whose
// collaborators are not configured are skipped at selection time.
func NewChain(engine Engine, cfg Config, opts ...Option) *Chain {
	cfg.applyDefaults()
	c := &Chain{
		engine:   engine,
		cfg:      cfg,
		gate:     NewGate(),
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Speak runs the fallback chain for req on the given profile. It returns nil
// as soon as one strategy plausibly produced audible output, [ErrInFlight]
// if an identical request is still being spoken, and [ErrExhausted] (wrapping
// the last attempt error) when every strategy failed.
func (c *Chain) Speak(ctx context.Context, profile device.Profile, req Request) error {
	if strings.TrimSpace(req.Text) == "" {
		return ErrEmptyText
	}

	key := dedupKey(req)
	if !c.acquire(key) {
		if c.metrics != nil {
			c.metrics.RecordSpeakRejected(ctx)
		}
		return ErrInFlight
	}
	defer c.release(key)

	// A new logical utterance supersedes whatever is playing. Cancel before
	// any attempt so renditions never overlap.
	c.engine.CancelCurrent()

	if needsUnlock(profile) && c.unlockAction != nil {
		unlockCtx, cancel := context.WithTimeout(ctx, c.cfg.UnlockTimeout)
		err := c.gate.Ensure(unlockCtx, c.unlockAction)
		cancel()
		if err != nil {
			// A locked audio subsystem is not fatal: local synthesis may
			// still work and a later request retries the unlock.
			slog.Warn("audio unlock failed", "profile", profile, "error", err)
		}
	}

	start := time.Now()
	var lastErr error
	for _, s := range c.strategies(profile) {
		attemptCtx, cancel := context.WithTimeout(ctx, s.timeout)
		outcome, err := s.run(attemptCtx, req)
		cancel()

		if c.metrics != nil {
			c.metrics.RecordSpeakAttempt(ctx, s.name, outcome.String())
		}

		if err == nil && s.succeeded(outcome) {
			if c.metrics != nil {
				c.metrics.SpeakDuration.Record(ctx, time.Since(start).Seconds())
			}
			slog.Info("speech output produced",
				"strategy", s.name, "outcome", outcome.String(), "lang", req.LanguageCode)
			return nil
		}

		if err != nil {
			lastErr = err
		} else {
			lastErr = fmt.Errorf("strategy %s resolved %s", s.name, outcome)
		}
		slog.Warn("speech strategy failed, trying next",
			"strategy", s.name, "outcome", outcome.String(), "error", err)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	return fmt.Errorf("%w: %v", ErrExhausted, lastErr)
}

// Unlocked reports whether this session's audio subsystem has been unlocked.
func (c *Chain) Unlocked() bool {
	return c.gate.Unlocked()
}

// strategy pairs an attempt function with its deadline and success rule.
type strategy struct {
	name    string
	timeout time.Duration
	run     func(ctx context.Context, req Request) (Outcome, error)

	// strict requires a delivered end event. Used on Samsung, where a start
	// event without an end is not trustworthy enough to stop the chain.
	strict bool
}

// succeeded applies the strategy's success rule to an outcome.
func (s strategy) succeeded(o Outcome) bool {
	if s.strict {
		return o == OutcomeCompleted
	}
	return o.Audible()
}

// strategies returns the ordered attempt list for a profile, omitting
// entries whose collaborators are not configured.
func (c *Chain) strategies(profile device.Profile) []strategy {
	var list []strategy
	switch profile {
	case device.ProfileIOSMobile:
		// iOS suppresses local synthesis entirely until unlocked, and even
		// then is unreliable; server-rendered audio through the audio
		// element is the only strategy that consistently works.
		list = append(list, c.serverAudioStrategy())

	case device.ProfileSamsungMobile:
		list = append(list,
			c.primedLocalStrategy(),
			c.webServiceStrategy(),
			c.serverAudioStrategy(),
		)

	case device.ProfileGenericMobile:
		list = append(list, c.localStrategy("local-capped", true))

	default: // desktop
		list = append(list, c.localStrategy("local", false))
	}

	available := list[:0]
	for _, s := range list {
		if s.run != nil {
			available = append(available, s)
		}
	}
	return available
}

// localStrategy is a single local synthesis call. capRate limits the
// speaking rate for mobile engines.
func (c *Chain) localStrategy(name string, capRate bool) strategy {
	return strategy{
		name:    name,
		timeout: c.cfg.LocalTimeout,
		run: func(ctx context.Context, req Request) (Outcome, error) {
			if capRate {
				req.Rate = capMobileRate(req.Rate, c.cfg.MaxMobileRate)
			}
			c.resolveVoice(ctx, &req)
			return c.engine.Speak(ctx, req)
		},
	}
}

// primedLocalStrategy coaxes Samsung engines into a working state with a
// sequence of short utterances of increasing length before the real one.
// Silent utterances alone are not enough on some Samsung browsers.
func (c *Chain) primedLocalStrategy() strategy {
	return strategy{
		name:    "primed-local",
		timeout: c.cfg.PrimedTimeout,
		strict:  true,
		run: func(ctx context.Context, req Request) (Outcome, error) {
			for _, priming := range []string{" ", ".", "ok"} {
				primeCtx, cancel := context.WithTimeout(ctx, c.cfg.PrimingTimeout)
				outcome, err := c.engine.Speak(primeCtx, Request{
					Text:         priming,
					LanguageCode: req.LanguageCode,
					Rate:         1,
				})
				cancel()
				// Priming outcomes are informational only.
				slog.Debug("priming utterance resolved",
					"text", priming, "outcome", outcome.String(), "error", err)
				if ctx.Err() != nil {
					return OutcomeTimedOut, nil
				}
			}

			req.Rate = capMobileRate(req.Rate, c.cfg.MaxMobileRate)
			c.resolveVoice(ctx, &req)
			return c.engine.Speak(ctx, req)
		},
	}
}

// webServiceStrategy renders speech via an external TTS web service and
// plays it through the audio sink.
func (c *Chain) webServiceStrategy() strategy {
	if c.webService == nil || c.sink == nil {
		return strategy{name: "web-service"}
	}
	return strategy{
		name:    "web-service",
		timeout: c.cfg.WebServiceTimeout,
		run:     c.renderAndPlay(c.webService),
	}
}

// serverAudioStrategy streams server-rendered audio through the audio sink.
func (c *Chain) serverAudioStrategy() strategy {
	if c.serverAudio == nil || c.sink == nil {
		return strategy{name: "server-audio"}
	}
	return strategy{
		name:    "server-audio",
		timeout: c.cfg.ServerAudioTimeout,
		run:     c.renderAndPlay(c.serverAudio),
	}
}

func (c *Chain) renderAndPlay(render RenderFunc) func(context.Context, Request) (Outcome, error) {
	return func(ctx context.Context, req Request) (Outcome, error) {
		audio, mimeType, err := render(ctx, req.Text, req.LanguageCode)
		if err != nil {
			return OutcomeFailed, err
		}
		return c.sink.Play(ctx, audio, mimeType)
	}
}

// resolveVoice fills req.VoiceID using the voice-selection heuristic. A
// missing or empty voice list leaves the engine's default voice in place.
func (c *Chain) resolveVoice(ctx context.Context, req *Request) {
	if req.VoiceID != "" {
		return
	}
	voices, err := c.engine.Voices(ctx)
	if err != nil {
		slog.Debug("voice list unavailable, using engine default", "error", err)
		return
	}
	if v, ok := SelectVoice(req.LanguageCode, voices); ok {
		req.VoiceID = v.ID
	}
}

func (c *Chain) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.inflight[key]; exists {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

func (c *Chain) release(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.inflight, key)
}

// dedupKey identifies a logical utterance. Language codes are compared
// case-insensitively; text is compared verbatim.
func dedupKey(req Request) string {
	return req.Text + "\x00" + strings.ToLower(req.LanguageCode)
}

// needsUnlock reports whether the profile requires an audio unlock before
// non-gesture audio may play.
func needsUnlock(p device.Profile) bool {
	return p != device.ProfileDesktop
}

// capMobileRate clamps rate to max. A zero rate (engine default) is also
// pulled down: mobile engines default too fast to be reliable.
func capMobileRate(rate, max float64) float64 {
	if rate <= 0 || rate > max {
		return max
	}
	return rate
}
