// Package server exposes the VoiceBridge HTTP and WebSocket API.
//
// The HTTP surface covers translation ([POST /api/translate]), the
// translation history ([GET /api/translations], [DELETE /api/translations]),
// server-rendered speech audio ([GET /api/tts-audio]), and speech-output
// requests against a connected session ([POST /api/speak]). Browser clients
// additionally hold a WebSocket session ([GET /api/session]) over which the
// server drives the client's local synthesis engine and audio element.
//
// Typical usage:
//
//	srv := server.New(
//		server.WithAddr(":8080"),
//		server.WithTranslator(translator),
//		server.WithTTS(ttsGroup),
//		server.WithStore(store),
//	)
//	if err := srv.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/voicebridge/voicebridge/internal/device"
	"github.com/voicebridge/voicebridge/internal/health"
	"github.com/voicebridge/voicebridge/internal/history"
	"github.com/voicebridge/voicebridge/internal/observe"
	"github.com/voicebridge/voicebridge/internal/speak"
	"github.com/voicebridge/voicebridge/internal/translate"
	"github.com/voicebridge/voicebridge/pkg/provider/tts"
)

// shutdownTimeout bounds graceful shutdown once the run context is cancelled.
const shutdownTimeout = 15 * time.Second

// Server holds the API dependencies and the set of connected sessions.
type Server struct {
	addr     string
	certFile string
	keyFile  string

	translator translate.Translator
	tts        tts.Provider
	webTTS     tts.Provider
	store      history.Store
	metrics    *observe.Metrics
	health     *health.Handler
	speakCfg   speak.Config
	override   device.Profile
	listLimit  int

	sessions *sessionRegistry

	// speakMu guards speakCfg, which hot reload may swap while sessions
	// connect.
	speakMu sync.RWMutex

	// inflight tracks (text, language) pairs currently being rendered by
	// /api/tts-audio so duplicate concurrent renders are rejected.
	mu       sync.Mutex
	inflight map[string]struct{}

	httpSrv *http.Server
}

// Option configures optional server collaborators.
type Option func(*Server)

// WithAddr sets the listen address. Default ":8080".
func WithAddr(addr string) Option {
	return func(s *Server) { s.addr = addr }
}

// WithTLS enables TLS with the given certificate and key files.
func WithTLS(certFile, keyFile string) Option {
	return func(s *Server) {
		s.certFile = certFile
		s.keyFile = keyFile
	}
}

// WithTranslator sets the translation backend. When unset, translation
// requests fail with a configuration error at request time.
func WithTranslator(t translate.Translator) Option {
	return func(s *Server) { s.translator = t }
}

// WithTTS sets the TTS backend used for /api/tts-audio and the chain's
// server-rendered audio strategy.
func WithTTS(p tts.Provider) Option {
	return func(s *Server) { s.tts = p }
}

// WithWebTTS sets the external web-service TTS backend used by the chain's
// Samsung fallback. Defaults to the provider set via [WithTTS].
func WithWebTTS(p tts.Provider) Option {
	return func(s *Server) { s.webTTS = p }
}

// WithStore sets the translation history store. Default is an in-memory
// store.
func WithStore(st history.Store) Option {
	return func(s *Server) { s.store = st }
}

// WithListLimit caps how many history records a single list request may
// return, regardless of the limit the client asks for. Zero means no cap
// beyond the store default.
func WithListLimit(n int) Option {
	return func(s *Server) { s.listLimit = n }
}

// WithMetrics sets the metrics instance. Default is [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithHealth sets the health handler, letting the caller attach readiness
// checkers.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithSpeakConfig sets the per-strategy deadlines for session speak chains.
func WithSpeakConfig(cfg speak.Config) Option {
	return func(s *Server) { s.speakCfg = cfg }
}

// WithDeviceOverride forces every session onto the given profile, regardless
// of what the client reports. Used for deployments targeting a known device
// fleet.
func WithDeviceOverride(p device.Profile) Option {
	return func(s *Server) { s.override = p }
}

// New creates a [Server] with the given options.
func New(opts ...Option) *Server {
	s := &Server{
		addr:     ":8080",
		sessions: newSessionRegistry(),
		inflight: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = history.NewMemStore()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	if s.webTTS == nil {
		s.webTTS = s.tts
	}
	return s
}

// Handler returns the full API handler: application routes plus health and
// metrics endpoints, wrapped in the observability middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/translate", s.handleTranslate)
	mux.HandleFunc("GET /api/translations", s.handleListTranslations)
	mux.HandleFunc("DELETE /api/translations", s.handleClearTranslations)
	mux.HandleFunc("GET /api/tts-audio", s.handleTTSAudio)
	mux.HandleFunc("POST /api/speak", s.handleSpeak)
	mux.HandleFunc("GET /api/session", s.handleSession)

	mux.Handle("GET /metrics", promhttp.Handler())
	s.health.Register(mux)

	return observe.Middleware(s.metrics)(mux)
}

// Run serves the API until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.httpSrv = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.certFile != "" {
			err = s.httpSrv.ListenAndServeTLS(s.certFile, s.keyFile)
		} else {
			err = s.httpSrv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server: listen on %s: %w", s.addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpSrv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}

// SetSpeakConfig replaces the chain deadlines applied to sessions that
// connect from now on. Existing sessions keep the config they were created
// with.
func (s *Server) SetSpeakConfig(cfg speak.Config) {
	s.speakMu.Lock()
	s.speakCfg = cfg
	s.speakMu.Unlock()
}

func (s *Server) speakConfig() speak.Config {
	s.speakMu.RLock()
	defer s.speakMu.RUnlock()
	return s.speakCfg
}

// acquireRender reserves a (text, language) render slot. It returns false if
// an identical render is already in flight.
func (s *Server) acquireRender(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[key]; exists {
		return false
	}
	s.inflight[key] = struct{}{}
	return true
}

func (s *Server) releaseRender(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}
