package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/voicebridge/voicebridge/internal/device"
	"github.com/voicebridge/voicebridge/pkg/provider/tts"
	ttsmock "github.com/voicebridge/voicebridge/pkg/provider/tts/mock"
)

const (
	desktopUA = "Mozilla/5.0 (X11; Linux x86_64; rv:122.0) Gecko/20100101 Firefox/122.0"
	iphoneUA  = "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) AppleWebKit/605.1.15"
)

// wsClient plays the part of a connected browser: it completes the hello
// handshake and then answers engine commands the way a cooperative client
// would.
type wsClient struct {
	t         *testing.T
	conn      *websocket.Conn
	sessionID string
	profile   device.Profile

	mu       sync.Mutex
	commands []map[string]any
}

// dialSession connects to the session endpoint and completes the handshake.
func dialSession(t *testing.T, baseURL string, hello map[string]any) *wsClient {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/api/session"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial session: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })

	hello["type"] = "hello"
	data, _ := json.Marshal(hello)
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("send hello: %v", err)
	}

	_, raw, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read ready: %v", err)
	}
	var ready readyMessage
	if err := json.Unmarshal(raw, &ready); err != nil {
		t.Fatalf("decode ready: %v", err)
	}
	if ready.Type != "ready" {
		t.Fatalf("handshake reply type = %q, want 'ready'", ready.Type)
	}
	if ready.SessionID == "" {
		t.Fatal("handshake reply has empty session ID")
	}

	return &wsClient{t: t, conn: conn, sessionID: ready.SessionID, profile: ready.Profile}
}

// serveEngine answers commands until the connection closes: voice listings
// get the given voices, speak and play resolve started-then-completed, and
// unlock succeeds. Run it in a goroutine.
func (c *wsClient) serveEngine(voices []map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for {
		_, raw, err := c.conn.Read(ctx)
		if err != nil {
			return
		}
		var cmd map[string]any
		if err := json.Unmarshal(raw, &cmd); err != nil {
			continue
		}
		c.mu.Lock()
		c.commands = append(c.commands, cmd)
		c.mu.Unlock()

		id, _ := cmd["id"].(float64)
		switch cmd["type"] {
		case "cancel":
			// No reply expected.
		case "listVoices":
			c.reply(ctx, map[string]any{"type": "voices", "id": id, "voices": voices})
		case "speak", "play":
			c.reply(ctx, map[string]any{"type": "result", "id": id, "outcome": "started"})
			c.reply(ctx, map[string]any{"type": "result", "id": id, "outcome": "completed"})
		case "unlock":
			c.reply(ctx, map[string]any{"type": "unlocked", "id": id, "ok": true})
		}
	}
}

func (c *wsClient) reply(ctx context.Context, msg map[string]any) {
	data, _ := json.Marshal(msg)
	if err := c.conn.Write(ctx, websocket.MessageText, data); err != nil {
		c.t.Logf("client reply failed: %v", err)
	}
}

// received returns all commands of the given type seen so far.
func (c *wsClient) received(typ string) []map[string]any {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []map[string]any
	for _, cmd := range c.commands {
		if cmd["type"] == typ {
			out = append(out, cmd)
		}
	}
	return out
}

func TestSession_HandshakeClassifiesDevice(t *testing.T) {
	tests := []struct {
		name  string
		hello map[string]any
		want  device.Profile
	}{
		{
			name:  "desktop user agent",
			hello: map[string]any{"userAgent": desktopUA},
			want:  device.ProfileDesktop,
		},
		{
			name:  "iphone user agent",
			hello: map[string]any{"userAgent": iphoneUA},
			want:  device.ProfileIOSMobile,
		},
		{
			name:  "client override wins over user agent",
			hello: map[string]any{"userAgent": desktopUA, "deviceOverride": "samsung-mobile"},
			want:  device.ProfileSamsungMobile,
		},
		{
			name:  "invalid override ignored",
			hello: map[string]any{"userAgent": desktopUA, "deviceOverride": "toaster"},
			want:  device.ProfileDesktop,
		},
	}

	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			client := dialSession(t, ts.URL, tc.hello)
			if client.profile != tc.want {
				t.Errorf("profile = %q, want %q", client.profile, tc.want)
			}
		})
	}
}

func TestSession_ServerOverrideOutranksClient(t *testing.T) {
	srv := New(WithDeviceOverride(device.ProfileIOSMobile))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := dialSession(t, ts.URL, map[string]any{
		"userAgent":      desktopUA,
		"deviceOverride": "samsung-mobile",
	})
	if client.profile != device.ProfileIOSMobile {
		t.Errorf("profile = %q, want server-forced 'ios-mobile'", client.profile)
	}
}

func TestSession_RejectsNonHelloFirstMessage(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/session"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial session: %v", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "test done")

	if err := conn.Write(ctx, websocket.MessageText, []byte(`{"type":"result","id":1}`)); err != nil {
		t.Fatalf("send: %v", err)
	}

	// The server closes the connection; the next read fails.
	if _, _, err := conn.Read(ctx); err == nil {
		t.Error("read succeeded, want connection closed after bad first message")
	}
}

func TestSession_SpeakRoundTrip(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := dialSession(t, ts.URL, map[string]any{"userAgent": desktopUA})
	go client.serveEngine([]map[string]any{
		{"id": "voice-1", "name": "Daniel", "lang": "en-GB"},
	})

	resp := postJSON(t, ts.URL+"/api/speak", speakRequest{
		SessionID:    client.sessionID,
		Text:         "hello there",
		LanguageCode: "en-GB",
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	body := decodeBody[speakResponse](t, resp)
	if body.Status != "ok" {
		t.Errorf("status = %q, want 'ok'", body.Status)
	}

	speaks := client.received("speak")
	if len(speaks) != 1 {
		t.Fatalf("speak commands = %d, want 1", len(speaks))
	}
	if speaks[0]["text"] != "hello there" {
		t.Errorf("spoken text = %q, want 'hello there'", speaks[0]["text"])
	}
	// The voice heuristic should have picked the engine's en-GB voice.
	if speaks[0]["voiceId"] != "voice-1" {
		t.Errorf("voiceId = %v, want 'voice-1'", speaks[0]["voiceId"])
	}
}

func TestSession_IOSUsesServerAudio(t *testing.T) {
	provider := &ttsmock.Provider{
		SynthesizeClip: &tts.Clip{Data: []byte("rendered-mp3"), MIMEType: "audio/mpeg"},
	}
	srv := New(WithTTS(provider))
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := dialSession(t, ts.URL, map[string]any{"userAgent": iphoneUA})
	go client.serveEngine(nil)

	resp := postJSON(t, ts.URL+"/api/speak", speakRequest{
		SessionID:    client.sessionID,
		Text:         "வணக்கம்",
		LanguageCode: "ta-IN",
	})
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	// iOS never attempts local synthesis.
	if speaks := client.received("speak"); len(speaks) != 0 {
		t.Errorf("speak commands = %d, want 0 on iOS", len(speaks))
	}
	plays := client.received("play")
	if len(plays) != 1 {
		t.Fatalf("play commands = %d, want 1", len(plays))
	}
	decoded, err := base64.StdEncoding.DecodeString(plays[0]["audio"].(string))
	if err != nil {
		t.Fatalf("decode audio: %v", err)
	}
	if string(decoded) != "rendered-mp3" {
		t.Errorf("audio = %q, want rendered clip", decoded)
	}
	if plays[0]["mimeType"] != "audio/mpeg" {
		t.Errorf("mimeType = %v, want 'audio/mpeg'", plays[0]["mimeType"])
	}
	// The unlock handshake ran before the first attempt.
	if unlocks := client.received("unlock"); len(unlocks) != 1 {
		t.Errorf("unlock commands = %d, want 1", len(unlocks))
	}
}

func TestSession_EmptySpeakTextRejected(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := dialSession(t, ts.URL, map[string]any{"userAgent": desktopUA})
	go client.serveEngine(nil)

	resp := postJSON(t, ts.URL+"/api/speak", speakRequest{
		SessionID:    client.sessionID,
		Text:         "   ",
		LanguageCode: "en-US",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
}

func TestSession_RemovedOnDisconnect(t *testing.T) {
	srv := New()
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := dialSession(t, ts.URL, map[string]any{"userAgent": desktopUA})
	if srv.sessions.len() != 1 {
		t.Fatalf("sessions = %d, want 1", srv.sessions.len())
	}

	client.conn.Close(websocket.StatusNormalClosure, "leaving")

	deadline := time.Now().Add(5 * time.Second)
	for srv.sessions.len() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("session still registered after disconnect")
		}
		time.Sleep(10 * time.Millisecond)
	}

	resp := postJSON(t, ts.URL+"/api/speak", speakRequest{
		SessionID:    client.sessionID,
		Text:         "hello",
		LanguageCode: "en-US",
	})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want %d after disconnect", resp.StatusCode, http.StatusNotFound)
	}
}
