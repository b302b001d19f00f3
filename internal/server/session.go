package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/voicebridge/voicebridge/internal/device"
	"github.com/voicebridge/voicebridge/internal/speak"
	"github.com/voicebridge/voicebridge/pkg/provider/tts"
)

// helloTimeout bounds how long a freshly accepted connection may take to
// identify itself before the server drops it.
const helloTimeout = 10 * time.Second

// command is a server-to-client message driving the browser's synthesis
// engine or audio element.
type command struct {
	Type         string  `json:"type"`
	ID           uint64  `json:"id,omitempty"`
	Text         string  `json:"text,omitempty"`
	LanguageCode string  `json:"lang,omitempty"`
	Rate         float64 `json:"rate,omitempty"`
	Pitch        float64 `json:"pitch,omitempty"`
	VoiceID      string  `json:"voiceId,omitempty"`
	Audio        string  `json:"audio,omitempty"`
	MIMEType     string  `json:"mimeType,omitempty"`
}

// clientMessage is a client-to-server message: the initial hello, or a reply
// to a numbered command.
type clientMessage struct {
	Type    string      `json:"type"`
	ID      uint64      `json:"id,omitempty"`
	Outcome string      `json:"outcome,omitempty"`
	Error   string      `json:"error,omitempty"`
	Voices  []voiceInfo `json:"voices,omitempty"`
	OK      bool        `json:"ok,omitempty"`

	UserAgent      string `json:"userAgent,omitempty"`
	TouchCapable   bool   `json:"touchCapable,omitempty"`
	DeviceOverride string `json:"deviceOverride,omitempty"`
}

type voiceInfo struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	LanguageCode string `json:"lang"`
}

// readyMessage acknowledges a hello and tells the client which profile it
// was classified into.
type readyMessage struct {
	Type      string         `json:"type"`
	SessionID string         `json:"sessionId"`
	Profile   device.Profile `json:"profile"`
}

// session is one connected browser client. It proxies the client's local
// synthesis engine and audio element over the WebSocket, so it satisfies both
// [speak.Engine] and [speak.Sink] and a per-session [speak.Chain] can drive
// the browser as if it were a local resource.
type session struct {
	id      string
	conn    *websocket.Conn
	profile device.Profile
	chain   *speak.Chain

	nextID uint64
	mu     sync.Mutex
	// pending maps command IDs to the channel awaiting the client's replies.
	pending map[uint64]chan clientMessage

	done chan struct{}
}

var (
	_ speak.Engine = (*session)(nil)
	_ speak.Sink   = (*session)(nil)
)

// handleSession upgrades the connection, waits for the client's hello,
// classifies the device, and then relays command replies until the
// connection closes.
func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("session accept failed", "error", err)
		return
	}

	helloCtx, cancel := context.WithTimeout(r.Context(), helloTimeout)
	hello, err := readHello(helloCtx, conn)
	cancel()
	if err != nil {
		slog.Warn("session hello failed", "error", err)
		conn.Close(websocket.StatusPolicyViolation, "expected hello")
		return
	}

	override := device.Profile(hello.DeviceOverride)
	if s.override.IsValid() {
		// A deployment-wide override outranks whatever the client asks for.
		override = s.override
	}
	profile := device.Classify(device.Signals{
		UserAgent:    hello.UserAgent,
		TouchCapable: hello.TouchCapable,
		Override:     override,
	})

	sess := &session{
		id:      uuid.NewString(),
		conn:    conn,
		profile: profile,
		pending: make(map[uint64]chan clientMessage),
		done:    make(chan struct{}),
	}
	sess.chain = speak.NewChain(sess, s.speakConfig(),
		speak.WithSink(sess),
		speak.WithUnlock(sess.unlock),
		speak.WithWebServiceTTS(renderWith(s.webTTS)),
		speak.WithServerAudio(renderWith(s.tts)),
		speak.WithMetrics(s.metrics),
	)

	if err := sess.send(r.Context(), readyMessage{Type: "ready", SessionID: sess.id, Profile: profile}); err != nil {
		slog.Warn("session ready send failed", "error", err)
		conn.Close(websocket.StatusInternalError, "handshake failed")
		return
	}

	s.sessions.add(sess)
	s.metrics.ActiveSessions.Add(r.Context(), 1)
	slog.Info("session connected", "session", sess.id, "profile", profile)
	defer func() {
		s.sessions.remove(sess.id)
		s.metrics.ActiveSessions.Add(context.Background(), -1)
		slog.Info("session closed", "session", sess.id)
	}()

	sess.readLoop(r.Context())
	conn.Close(websocket.StatusNormalClosure, "session closed")
}

// readHello reads and validates the client's first message.
func readHello(ctx context.Context, conn *websocket.Conn) (*clientMessage, error) {
	_, data, err := conn.Read(ctx)
	if err != nil {
		return nil, err
	}
	var msg clientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.Type != "hello" {
		return nil, errors.New("first message must be hello, got " + msg.Type)
	}
	return &msg, nil
}

// renderWith adapts a TTS provider into the chain's render shape. A nil
// provider yields a nil render, which the chain treats as "strategy not
// configured".
func renderWith(p tts.Provider) speak.RenderFunc {
	if p == nil {
		return nil
	}
	return func(ctx context.Context, text, languageCode string) ([]byte, string, error) {
		clip, err := p.Synthesize(ctx, text, languageCode)
		if err != nil {
			return nil, "", err
		}
		return clip.Data, clip.MIMEType, nil
	}
}

// readLoop dispatches numbered client replies to their waiting command. It
// returns when the connection errors or closes.
func (sess *session) readLoop(ctx context.Context) {
	defer close(sess.done)
	for {
		_, data, err := sess.conn.Read(ctx)
		if err != nil {
			return
		}
		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			slog.Debug("discarding malformed session message", "error", err)
			continue
		}
		if msg.ID == 0 {
			continue
		}
		sess.mu.Lock()
		ch := sess.pending[msg.ID]
		sess.mu.Unlock()
		if ch == nil {
			continue
		}
		select {
		case ch <- msg:
		default:
			// The waiter stopped listening; drop the late reply.
		}
	}
}

// register allocates a command ID and its reply channel. The channel is
// buffered for the started-then-completed reply pair.
func (sess *session) register() (uint64, chan clientMessage) {
	ch := make(chan clientMessage, 4)
	sess.mu.Lock()
	sess.nextID++
	id := sess.nextID
	sess.pending[id] = ch
	sess.mu.Unlock()
	return id, ch
}

func (sess *session) unregister(id uint64) {
	sess.mu.Lock()
	delete(sess.pending, id)
	sess.mu.Unlock()
}

// send writes v as a JSON text message.
func (sess *session) send(ctx context.Context, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return sess.conn.Write(ctx, websocket.MessageText, data)
}

// Speak commands the client's local synthesis engine and waits for the
// utterance to resolve. When ctx expires after the client reported start,
// the utterance is assumed audible per the chain's event-mapping rules.
func (sess *session) Speak(ctx context.Context, req speak.Request) (speak.Outcome, error) {
	id, ch := sess.register()
	defer sess.unregister(id)

	err := sess.send(ctx, command{
		Type:         "speak",
		ID:           id,
		Text:         req.Text,
		LanguageCode: req.LanguageCode,
		Rate:         req.Rate,
		Pitch:        req.Pitch,
		VoiceID:      req.VoiceID,
	})
	if err != nil {
		return speak.OutcomeFailed, err
	}
	return sess.awaitOutcome(ctx, ch)
}

// CancelCurrent tells the client to stop any in-flight utterance. Best
// effort: a dropped cancel only means the next speak command interrupts.
func (sess *session) CancelCurrent() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := sess.send(ctx, command{Type: "cancel"}); err != nil {
		slog.Debug("cancel send failed", "session", sess.id, "error", err)
	}
}

// Voices asks the client for its engine's current voice list.
func (sess *session) Voices(ctx context.Context) ([]speak.Voice, error) {
	id, ch := sess.register()
	defer sess.unregister(id)

	if err := sess.send(ctx, command{Type: "listVoices", ID: id}); err != nil {
		return nil, err
	}
	select {
	case msg := <-ch:
		voices := make([]speak.Voice, 0, len(msg.Voices))
		for _, v := range msg.Voices {
			voices = append(voices, speak.Voice{ID: v.ID, Name: v.Name, LanguageCode: v.LanguageCode})
		}
		return voices, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-sess.done:
		return nil, errors.New("session closed")
	}
}

// Play sends encoded audio for the client's audio element and waits for the
// playback outcome.
func (sess *session) Play(ctx context.Context, audio []byte, mimeType string) (speak.Outcome, error) {
	id, ch := sess.register()
	defer sess.unregister(id)

	err := sess.send(ctx, command{
		Type:     "play",
		ID:       id,
		Audio:    base64.StdEncoding.EncodeToString(audio),
		MIMEType: mimeType,
	})
	if err != nil {
		return speak.OutcomeFailed, err
	}
	return sess.awaitOutcome(ctx, ch)
}

// unlock asks the client to run its audio-unlock gesture handler.
func (sess *session) unlock(ctx context.Context) error {
	id, ch := sess.register()
	defer sess.unregister(id)

	if err := sess.send(ctx, command{Type: "unlock", ID: id}); err != nil {
		return err
	}
	select {
	case msg := <-ch:
		if !msg.OK {
			if msg.Error != "" {
				return errors.New(msg.Error)
			}
			return errors.New("client reported unlock failure")
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-sess.done:
		return errors.New("session closed")
	}
}

// awaitOutcome collects the client's replies for one command and maps them
// to a single [speak.Outcome].
func (sess *session) awaitOutcome(ctx context.Context, ch chan clientMessage) (speak.Outcome, error) {
	started := false
	for {
		select {
		case msg := <-ch:
			switch msg.Outcome {
			case "started":
				started = true
			case "completed":
				return speak.OutcomeCompleted, nil
			case "failed":
				if msg.Error != "" {
					return speak.OutcomeFailed, errors.New(msg.Error)
				}
				return speak.OutcomeFailed, errors.New("client reported failure")
			default:
				slog.Debug("ignoring unknown outcome", "outcome", msg.Outcome)
			}
		case <-ctx.Done():
			if started {
				return speak.OutcomeStarted, nil
			}
			return speak.OutcomeTimedOut, nil
		case <-sess.done:
			return speak.OutcomeFailed, errors.New("session closed")
		}
	}
}

// sessionRegistry tracks connected sessions by ID.
type sessionRegistry struct {
	mu       sync.RWMutex
	sessions map[string]*session
}

func newSessionRegistry() *sessionRegistry {
	return &sessionRegistry{sessions: make(map[string]*session)}
}

func (r *sessionRegistry) add(s *session) {
	r.mu.Lock()
	r.sessions[s.id] = s
	r.mu.Unlock()
}

func (r *sessionRegistry) remove(id string) {
	r.mu.Lock()
	delete(r.sessions, id)
	r.mu.Unlock()
}

func (r *sessionRegistry) get(id string) *session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sessions[id]
}

// notifyAll sends msg to every connected session. Best effort: a client that
// misses a notification refreshes its view on the next poll.
func (r *sessionRegistry) notifyAll(ctx context.Context, msg any) {
	r.mu.RLock()
	sessions := make([]*session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, s)
	}
	r.mu.RUnlock()

	for _, s := range sessions {
		if err := s.send(ctx, msg); err != nil {
			slog.Debug("session notify failed", "session", s.id, "error", err)
		}
	}
}

func (r *sessionRegistry) len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
