package speak_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/voicebridge/voicebridge/internal/device"
	"github.com/voicebridge/voicebridge/internal/speak"
	speakmock "github.com/voicebridge/voicebridge/internal/speak/mock"
)

func render(audio []byte, err error) speak.RenderFunc {
	return func(ctx context.Context, text, lang string) ([]byte, string, error) {
		if err != nil {
			return nil, "", err
		}
		return audio, "audio/mpeg", nil
	}
}

func req(text, lang string) speak.Request {
	return speak.Request{Text: text, LanguageCode: lang}
}

func TestChain_DesktopLocalSuccess(t *testing.T) {
	engine := &speakmock.Engine{Outcomes: []speak.Outcome{speak.OutcomeCompleted}}
	chain := speak.NewChain(engine, speak.Config{})

	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	ops := engine.OpLog()
	if len(ops) != 2 || ops[0] != "cancel" || ops[1] != "speak:hello" {
		t.Fatalf("op log = %v, want [cancel speak:hello]", ops)
	}
}

func TestChain_CancelPrecedesEveryAttempt(t *testing.T) {
	engine := &speakmock.Engine{}
	chain := speak.NewChain(engine, speak.Config{})

	for _, text := range []string{"first", "second"} {
		if err := chain.Speak(context.Background(), device.ProfileDesktop, req(text, "en-US")); err != nil {
			t.Fatalf("Speak(%q): %v", text, err)
		}
	}

	ops := engine.OpLog()
	lastCancel := -1
	for i, op := range ops {
		if op == "cancel" {
			lastCancel = i
			continue
		}
		if strings.HasPrefix(op, "speak:") && lastCancel == -1 {
			t.Fatalf("speak op %q at index %d without a preceding cancel: %v", op, i, ops)
		}
	}
}

func TestChain_TimeoutAfterStartIsSuccess(t *testing.T) {
	// The engine signalled start but never delivered the end event. An
	// utterance that started usually played; retrying risks echo.
	engine := &speakmock.Engine{Outcomes: []speak.Outcome{speak.OutcomeStarted}}
	chain := speak.NewChain(engine, speak.Config{})

	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("hi", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if reqs := engine.Requests(); len(reqs) != 1 {
		t.Fatalf("engine spoken to %d times, want 1", len(reqs))
	}
}

func TestChain_DesktopExhausted(t *testing.T) {
	engine := &speakmock.Engine{
		Outcomes: []speak.Outcome{speak.OutcomeFailed},
		Errs:     []error{errors.New("synthesis error")},
	}
	chain := speak.NewChain(engine, speak.Config{})

	err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US"))
	if !errors.Is(err, speak.ErrExhausted) {
		t.Fatalf("err = %v, want ErrExhausted", err)
	}
}

func TestChain_EmptyText(t *testing.T) {
	chain := speak.NewChain(&speakmock.Engine{}, speak.Config{})
	err := chain.Speak(context.Background(), device.ProfileDesktop, req("  ", "en-US"))
	if !errors.Is(err, speak.ErrEmptyText) {
		t.Fatalf("err = %v, want ErrEmptyText", err)
	}
}

func TestChain_GenericMobileCapsRate(t *testing.T) {
	engine := &speakmock.Engine{}
	var unlocks atomic.Int32
	chain := speak.NewChain(engine, speak.Config{},
		speak.WithUnlock(func(ctx context.Context) error {
			unlocks.Add(1)
			return nil
		}),
	)

	r := req("hello", "en-US")
	r.Rate = 1.5
	if err := chain.Speak(context.Background(), device.ProfileGenericMobile, r); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	reqs := engine.Requests()
	if len(reqs) != 1 {
		t.Fatalf("engine spoken to %d times, want 1", len(reqs))
	}
	if reqs[0].Rate != 0.9 {
		t.Fatalf("rate = %v, want capped to 0.9", reqs[0].Rate)
	}
	if got := unlocks.Load(); got != 1 {
		t.Fatalf("unlock called %d times, want 1", got)
	}

	// A second request must not unlock again.
	if err := chain.Speak(context.Background(), device.ProfileGenericMobile, req("again", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := unlocks.Load(); got != 1 {
		t.Fatalf("unlock called %d times after second request, want 1", got)
	}
}

func TestChain_DesktopSkipsUnlock(t *testing.T) {
	var unlocks atomic.Int32
	chain := speak.NewChain(&speakmock.Engine{}, speak.Config{},
		speak.WithUnlock(func(ctx context.Context) error {
			unlocks.Add(1)
			return nil
		}),
	)
	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := unlocks.Load(); got != 0 {
		t.Fatalf("unlock called %d times on desktop, want 0", got)
	}
}

func TestChain_IOSUsesServerAudioOnly(t *testing.T) {
	engine := &speakmock.Engine{}
	sink := &speakmock.Sink{Outcome: speak.OutcomeCompleted}
	chain := speak.NewChain(engine, speak.Config{},
		speak.WithSink(sink),
		speak.WithServerAudio(render([]byte("mp3-bytes"), nil)),
		speak.WithUnlock(func(ctx context.Context) error { return nil }),
	)

	if err := chain.Speak(context.Background(), device.ProfileIOSMobile, req("hello", "ta-IN")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if sink.PlayCount() != 1 {
		t.Fatalf("sink played %d times, want 1", sink.PlayCount())
	}
	if sink.MimeTypes[0] != "audio/mpeg" {
		t.Fatalf("mime = %q, want audio/mpeg", sink.MimeTypes[0])
	}
	// Local synthesis must not be attempted on iOS.
	for _, op := range engine.OpLog() {
		if strings.HasPrefix(op, "speak:") {
			t.Fatalf("local engine spoken to on iOS: %v", engine.OpLog())
		}
	}
}

func TestChain_SamsungPrimesThenFallsThrough(t *testing.T) {
	// Three priming utterances resolve, then the real utterance only reports
	// "started". On Samsung a start without an end is not trusted, so the
	// chain falls through to the web-service strategy.
	engine := &speakmock.Engine{
		Outcomes: []speak.Outcome{
			speak.OutcomeCompleted, // priming " "
			speak.OutcomeCompleted, // priming "."
			speak.OutcomeCompleted, // priming "ok"
			speak.OutcomeStarted,   // real utterance, no end event
		},
	}
	sink := &speakmock.Sink{Outcome: speak.OutcomeCompleted}
	chain := speak.NewChain(engine, speak.Config{},
		speak.WithSink(sink),
		speak.WithWebServiceTTS(render([]byte("web-audio"), nil)),
		speak.WithServerAudio(render([]byte("server-audio"), nil)),
		speak.WithUnlock(func(ctx context.Context) error { return nil }),
	)

	if err := chain.Speak(context.Background(), device.ProfileSamsungMobile, req("vanakkam", "ta-IN")); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	reqs := engine.Requests()
	if len(reqs) != 4 {
		t.Fatalf("engine spoken to %d times, want 4 (3 priming + 1 real)", len(reqs))
	}
	if reqs[3].Text != "vanakkam" {
		t.Fatalf("real utterance text = %q", reqs[3].Text)
	}
	if sink.PlayCount() != 1 {
		t.Fatalf("sink played %d times, want 1 (web-service fallback)", sink.PlayCount())
	}
	if string(sink.Plays[0]) != "web-audio" {
		t.Fatalf("played %q, want web-service audio", sink.Plays[0])
	}
}

func TestChain_SamsungCompletedStopsChain(t *testing.T) {
	engine := &speakmock.Engine{
		Outcomes: []speak.Outcome{
			speak.OutcomeCompleted,
			speak.OutcomeCompleted,
			speak.OutcomeCompleted,
			speak.OutcomeCompleted, // real utterance clearly succeeded
		},
	}
	sink := &speakmock.Sink{Outcome: speak.OutcomeCompleted}
	chain := speak.NewChain(engine, speak.Config{},
		speak.WithSink(sink),
		speak.WithWebServiceTTS(render([]byte("web-audio"), nil)),
		speak.WithServerAudio(render([]byte("server-audio"), nil)),
	)

	if err := chain.Speak(context.Background(), device.ProfileSamsungMobile, req("hello", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if sink.PlayCount() != 0 {
		t.Fatalf("sink played %d times, want 0", sink.PlayCount())
	}
}

func TestChain_SamsungFullFallbackToServerAudio(t *testing.T) {
	engine := &speakmock.Engine{Outcomes: []speak.Outcome{speak.OutcomeFailed}}
	webErr := errors.New("web tts unreachable")
	sink := &speakmock.Sink{Outcome: speak.OutcomeCompleted}
	chain := speak.NewChain(engine, speak.Config{},
		speak.WithSink(sink),
		speak.WithWebServiceTTS(render(nil, webErr)),
		speak.WithServerAudio(render([]byte("server-audio"), nil)),
	)

	if err := chain.Speak(context.Background(), device.ProfileSamsungMobile, req("hello", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if sink.PlayCount() != 1 || string(sink.Plays[0]) != "server-audio" {
		t.Fatalf("server-audio fallback not played: plays=%v", sink.Plays)
	}
}

func TestChain_DuplicateInFlightRejected(t *testing.T) {
	block := make(chan struct{})
	engine := &speakmock.Engine{Block: block}
	chain := speak.NewChain(engine, speak.Config{LocalTimeout: 5 * time.Second})

	var wg sync.WaitGroup
	wg.Add(1)
	firstErr := make(chan error, 1)
	go func() {
		defer wg.Done()
		firstErr <- chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US"))
	}()

	// Wait for the first request to reach the engine.
	deadline := time.After(2 * time.Second)
	for {
		if len(engine.Requests()) > 0 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("first request never reached the engine")
		case <-time.After(5 * time.Millisecond):
		}
	}

	// Identical request while the first is in flight: rejected, not queued.
	err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US"))
	if !errors.Is(err, speak.ErrInFlight) {
		t.Fatalf("duplicate err = %v, want ErrInFlight", err)
	}

	// Language comparison is case-insensitive.
	err = chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "EN-us"))
	if !errors.Is(err, speak.ErrInFlight) {
		t.Fatalf("case-variant duplicate err = %v, want ErrInFlight", err)
	}

	close(block)
	wg.Wait()
	if err := <-firstErr; err != nil {
		t.Fatalf("first request: %v", err)
	}

	// Only the first request ever reached the engine.
	if got := len(engine.Requests()); got != 1 {
		t.Fatalf("engine spoken to %d times, want 1", got)
	}

	// After resolution the same request is accepted again.
	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US")); err != nil {
		t.Fatalf("post-flight repeat: %v", err)
	}
}

func TestChain_VoiceResolvedFromEngineList(t *testing.T) {
	engine := &speakmock.Engine{
		VoicesList: []speak.Voice{
			{ID: "en-f", Name: "Samantha", LanguageCode: "en-US"},
			{ID: "ta-v", Name: "Google தமிழ்", LanguageCode: "ta-IN"},
		},
	}
	chain := speak.NewChain(engine, speak.Config{})

	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("vanakkam", "ta-IN")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	reqs := engine.Requests()
	if reqs[0].VoiceID != "ta-v" {
		t.Fatalf("voice id = %q, want ta-v", reqs[0].VoiceID)
	}
}

func TestChain_VoiceListUnavailableUsesDefault(t *testing.T) {
	engine := &speakmock.Engine{VoicesErr: errors.New("voices not loaded")}
	chain := speak.NewChain(engine, speak.Config{})

	if err := chain.Speak(context.Background(), device.ProfileDesktop, req("hello", "en-US")); err != nil {
		t.Fatalf("Speak: %v", err)
	}
	if got := engine.Requests()[0].VoiceID; got != "" {
		t.Fatalf("voice id = %q, want engine default (empty)", got)
	}
}
