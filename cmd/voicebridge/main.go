// Command voicebridge is the main entry point for the VoiceBridge server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/voicebridge/voicebridge/internal/config"
	"github.com/voicebridge/voicebridge/internal/health"
	"github.com/voicebridge/voicebridge/internal/history"
	"github.com/voicebridge/voicebridge/internal/observe"
	"github.com/voicebridge/voicebridge/internal/resilience"
	"github.com/voicebridge/voicebridge/internal/server"
	"github.com/voicebridge/voicebridge/internal/speak"
	"github.com/voicebridge/voicebridge/internal/translate"
	"github.com/voicebridge/voicebridge/pkg/provider/tts"
)

// version is stamped into telemetry; overridden at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "voicebridge: config file %q not found — copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "voicebridge: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	logger, logLevel := newLogger(cfg.Server.LogLevel)
	slog.SetDefault(logger)

	slog.Info("voicebridge starting",
		"version", version,
		"config", *configPath,
		"listen_addr", listenAddr(cfg),
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "voicebridge",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(flushCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.DefaultRegistry()

	translator, err := buildTranslator(cfg, reg)
	if err != nil {
		slog.Error("failed to build translation provider", "err", err)
		return 1
	}
	ttsProvider, webTTS, err := buildTTS(cfg, reg)
	if err != nil {
		slog.Error("failed to build tts provider", "err", err)
		return 1
	}

	// ── History store ─────────────────────────────────────────────────────────
	store, pool, err := buildStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open history store", "err", err)
		return 1
	}
	if pool != nil {
		defer pool.Close()
	}

	// ── Health checks ─────────────────────────────────────────────────────────
	var checkers []health.Checker
	if pool != nil {
		checkers = append(checkers, health.Checker{
			Name:  "database",
			Check: func(ctx context.Context) error { return pool.Ping(ctx) },
		})
	}

	// ── HTTP server ───────────────────────────────────────────────────────────
	opts := []server.Option{
		server.WithAddr(listenAddr(cfg)),
		server.WithTranslator(translator),
		server.WithTTS(ttsProvider),
		server.WithWebTTS(webTTS),
		server.WithStore(store),
		server.WithListLimit(cfg.History.ListLimit),
		server.WithMetrics(observe.DefaultMetrics()),
		server.WithHealth(health.New(checkers...)),
		server.WithSpeakConfig(speakConfig(cfg.Speak)),
		server.WithDeviceOverride(cfg.Speak.DeviceOverride),
	}
	if cfg.Server.TLS != nil {
		opts = append(opts, server.WithTLS(cfg.Server.TLS.CertFile, cfg.Server.TLS.KeyFile))
	}
	srv := server.New(opts...)

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(old, new *config.Config) {
		d := config.Diff(old, new)
		if d.LogLevelChanged {
			logLevel.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.SpeakChanged {
			srv.SetSpeakConfig(speakConfig(d.NewSpeak))
			slog.Info("speak deadlines updated; applies to new sessions")
		}
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	printStartupSummary(cfg)
	slog.Info("server ready — press Ctrl+C to shut down")

	if err := srv.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Provider wiring ───────────────────────────────────────────────────────────

// buildTranslator constructs the translation backend with its fallbacks. A
// missing provider or API key is not fatal: the server starts and translation
// requests report the configuration problem.
func buildTranslator(cfg *config.Config, reg *config.Registry) (translate.Translator, error) {
	primary := cfg.Translation.Primary
	if primary.Name == "" {
		slog.Warn("no translation provider configured; /api/translate will fail until one is set")
		return nil, nil
	}

	p, err := reg.CreateTranslator(primary)
	if errors.Is(err, translate.ErrMissingCredentials) {
		slog.Warn("translation provider has no API key; /api/translate will fail until one is set",
			"name", primary.Name)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create translation provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "translation", "name", primary.Name)

	if len(cfg.Translation.Fallbacks) == 0 {
		return p, nil
	}

	group := resilience.NewTranslateFallback(p, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "translation"},
	})
	for _, entry := range cfg.Translation.Fallbacks {
		fb, err := reg.CreateTranslator(entry)
		if err != nil {
			slog.Warn("skipping translation fallback", "name", entry.Name, "err", err)
			continue
		}
		group.AddFallback(entry.Name, fb)
		slog.Info("provider created", "kind", "translation", "name", entry.Name, "role", "fallback")
	}
	return group, nil
}

// buildTTS constructs the server-side TTS chain. The first return value is
// the full fallback group; the second is the bare primary, used by the speech
// chain's web-service strategy. With nothing configured it defaults to the
// keyless gtrans endpoint backed by streamelements.
func buildTTS(cfg *config.Config, reg *config.Registry) (tts.Provider, tts.Provider, error) {
	primary := cfg.TTS.Primary
	fallbacks := cfg.TTS.Fallbacks
	if primary.Name == "" {
		primary.Name = "gtrans"
		if len(fallbacks) == 0 {
			fallbacks = []config.ProviderEntry{{Name: "streamelements"}}
		}
	}

	p, err := reg.CreateTTS(primary)
	if err != nil {
		return nil, nil, fmt.Errorf("create tts provider %q: %w", primary.Name, err)
	}
	slog.Info("provider created", "kind", "tts", "name", primary.Name)

	if len(fallbacks) == 0 {
		return p, p, nil
	}

	group := resilience.NewTTSFallback(p, primary.Name, resilience.FallbackConfig{
		CircuitBreaker: resilience.CircuitBreakerConfig{Name: "tts"},
	})
	for _, entry := range fallbacks {
		fb, err := reg.CreateTTS(entry)
		if err != nil {
			slog.Warn("skipping tts fallback", "name", entry.Name, "err", err)
			continue
		}
		group.AddFallback(entry.Name, fb)
		slog.Info("provider created", "kind", "tts", "name", entry.Name, "role", "fallback")
	}
	return group, p, nil
}

// buildStore opens the configured history store. The returned pool is nil
// when history is kept in memory.
func buildStore(ctx context.Context, cfg *config.Config) (history.Store, *pgxpool.Pool, error) {
	if cfg.History.PostgresDSN == "" {
		slog.Info("history store: in-memory (set history.postgres_dsn to persist)")
		return history.NewMemStore(), nil, nil
	}

	pool, err := pgxpool.New(ctx, cfg.History.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	store := history.NewPostgresStore(pool)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, err
	}
	slog.Info("history store: postgres")
	return store, pool, nil
}

// speakConfig maps the YAML speak block onto the chain's config.
func speakConfig(sc config.SpeakConfig) speak.Config {
	return speak.Config{
		UnlockTimeout:      sc.UnlockTimeout,
		LocalTimeout:       sc.LocalTimeout,
		PrimingTimeout:     sc.PrimingTimeout,
		PrimedTimeout:      sc.PrimedTimeout,
		WebServiceTimeout:  sc.WebServiceTimeout,
		ServerAudioTimeout: sc.ServerAudioTimeout,
		MaxMobileRate:      sc.MaxMobileRate,
	}
}

func listenAddr(cfg *config.Config) string {
	if cfg.Server.ListenAddr != "" {
		return cfg.Server.ListenAddr
	}
	return ":8080"
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║       VoiceBridge — startup summary   ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Translation", cfg.Translation.Primary.Name, cfg.Translation.Primary.Model)
	printProvider("TTS", cfg.TTS.Primary.Name, "")
	if cfg.History.PostgresDSN != "" {
		fmt.Printf("║  History       : %-20s ║\n", "postgres")
	} else {
		fmt.Printf("║  History       : %-20s ║\n", "in-memory")
	}
	if cfg.Speak.DeviceOverride != "" {
		fmt.Printf("║  Device        : %-20s ║\n", string(cfg.Speak.DeviceOverride))
	} else {
		fmt.Printf("║  Device        : %-20s ║\n", "auto-classified")
	}
	fmt.Printf("║  Listen addr   : %-20s ║\n", listenAddr(cfg))
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	if len(value) > 20 {
		value = value[:17] + "…"
	}
	fmt.Printf("║  %-14s: %-20s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

// newLogger builds the default text logger. The returned LevelVar lets config
// hot reload adjust verbosity without recreating the logger.
func newLogger(level config.LogLevel) (*slog.Logger, *slog.LevelVar) {
	lvl := new(slog.LevelVar)
	lvl.Set(slogLevel(level))
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})), lvl
}

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
