// Package mock provides scriptable speak.Engine and speak.Sink doubles for
// testing the fallback chain without a real client.
package mock

import (
	"context"
	"sync"

	"github.com/voicebridge/voicebridge/internal/speak"
)

// Engine is a scriptable [speak.Engine]. Each Speak call consumes the next
// entry of Outcomes/Errs; when the script is exhausted the last entry
// repeats. The zero value completes every utterance immediately.
//
// Engine records an ordered operation log (Ops) so tests can assert
// cancel-before-speak ordering.
type Engine struct {
	mu sync.Mutex

	// Outcomes is the scripted outcome per Speak call, in order.
	Outcomes []speak.Outcome

	// Errs is the scripted error per Speak call, in order. May be shorter
	// than Outcomes; missing entries mean nil.
	Errs []error

	// VoicesList is returned by Voices.
	VoicesList []speak.Voice

	// VoicesErr, when set, is returned by Voices instead of the list.
	VoicesErr error

	// Block, when non-nil, makes Speak wait until the channel is closed or
	// ctx is done. Used to hold a request in flight.
	Block chan struct{}

	// Ops is the ordered operation log: "cancel" and "speak:<text>".
	Ops []string

	// SpeakCalls records every Speak request in order.
	SpeakCalls []speak.Request

	speakCount int
}

var _ speak.Engine = (*Engine)(nil)

// Speak implements [speak.Engine.Speak].
func (e *Engine) Speak(ctx context.Context, req speak.Request) (speak.Outcome, error) {
	e.mu.Lock()
	e.Ops = append(e.Ops, "speak:"+req.Text)
	e.SpeakCalls = append(e.SpeakCalls, req)
	i := e.speakCount
	e.speakCount++
	block := e.Block
	e.mu.Unlock()

	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return speak.OutcomeTimedOut, nil
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	outcome := speak.OutcomeCompleted
	if len(e.Outcomes) > 0 {
		if i >= len(e.Outcomes) {
			i = len(e.Outcomes) - 1
		}
		outcome = e.Outcomes[i]
	}
	var err error
	if i < len(e.Errs) {
		err = e.Errs[i]
	}
	return outcome, err
}

// CancelCurrent implements [speak.Engine.CancelCurrent].
func (e *Engine) CancelCurrent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Ops = append(e.Ops, "cancel")
}

// Voices implements [speak.Engine.Voices].
func (e *Engine) Voices(ctx context.Context) ([]speak.Voice, error) {
	if e.VoicesErr != nil {
		return nil, e.VoicesErr
	}
	return e.VoicesList, nil
}

// OpLog returns a copy of the ordered operation log.
func (e *Engine) OpLog() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.Ops))
	copy(out, e.Ops)
	return out
}

// Requests returns a copy of all recorded Speak requests.
func (e *Engine) Requests() []speak.Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]speak.Request, len(e.SpeakCalls))
	copy(out, e.SpeakCalls)
	return out
}

// Sink is a scriptable [speak.Sink].
type Sink struct {
	mu sync.Mutex

	// Outcome is returned by every Play call. Zero value is
	// speak.OutcomeFailed; set explicitly.
	Outcome speak.Outcome

	// Err, when set, is returned by Play.
	Err error

	// Plays records the audio payloads passed to Play.
	Plays [][]byte

	// MimeTypes records the MIME type of each Play call.
	MimeTypes []string
}

var _ speak.Sink = (*Sink)(nil)

// Play implements [speak.Sink.Play].
func (s *Sink) Play(ctx context.Context, audio []byte, mimeType string) (speak.Outcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Plays = append(s.Plays, audio)
	s.MimeTypes = append(s.MimeTypes, mimeType)
	return s.Outcome, s.Err
}

// PlayCount returns the number of Play calls so far.
func (s *Sink) PlayCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Plays)
}
