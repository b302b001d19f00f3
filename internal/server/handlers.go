package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/voicebridge/voicebridge/internal/history"
	"github.com/voicebridge/voicebridge/internal/observe"
	"github.com/voicebridge/voicebridge/internal/speak"
	"github.com/voicebridge/voicebridge/internal/translate"
)

// maxBodyBytes caps request bodies; translation inputs are short utterances.
const maxBodyBytes = 64 << 10

type translateRequest struct {
	Text           string `json:"text"`
	SourceLanguage string `json:"from"`
	TargetLanguage string `json:"to"`
}

type translateResponse struct {
	TranslatedText string         `json:"translatedText"`
	Confidence     float64        `json:"confidence"`
	Translation    history.Record `json:"translation"`
}

// handleTranslate translates the request text and appends the result to the
// history store. A server without a configured translation backend reports a
// configuration error rather than failing silently.
func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var req translateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if s.translator == nil {
		writeError(w, http.StatusInternalServerError, "no translation provider configured; set a translation API key")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	if req.TargetLanguage == "" {
		writeError(w, http.StatusBadRequest, "targetLanguage must not be empty")
		return
	}

	start := time.Now()
	res, err := s.translator.Translate(r.Context(), translate.Request{
		Text:           req.Text,
		SourceLanguage: req.SourceLanguage,
		TargetLanguage: req.TargetLanguage,
	})
	s.metrics.TranslateDuration.Record(r.Context(), time.Since(start).Seconds())
	if err != nil {
		s.metrics.RecordTranslation(r.Context(), req.SourceLanguage, req.TargetLanguage, "error")
		switch {
		case errors.Is(err, translate.ErrEmptyText):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, translate.ErrMissingCredentials):
			writeError(w, http.StatusInternalServerError, err.Error())
		default:
			s.metrics.RecordProviderError(r.Context(), "translation", "translate")
			slog.Error("translation failed", "target", req.TargetLanguage, "error", err)
			writeError(w, http.StatusBadGateway, "translation failed: "+err.Error())
		}
		return
	}
	s.metrics.RecordTranslation(r.Context(), req.SourceLanguage, req.TargetLanguage, "ok")

	source := req.SourceLanguage
	if source == "" {
		source = res.DetectedSource
	}
	rec, err := s.store.Append(r.Context(), history.Record{
		SourceLanguage: source,
		TargetLanguage: req.TargetLanguage,
		SourceText:     req.Text,
		TranslatedText: res.TranslatedText,
		Confidence:     res.Confidence,
	})
	if err != nil {
		// The translation itself succeeded; losing one history row should not
		// cost the user the result.
		slog.Warn("history append failed", "error", err)
	} else {
		s.sessions.notifyAll(r.Context(), command{Type: "historyUpdated"})
	}

	writeJSON(w, http.StatusOK, translateResponse{
		TranslatedText: res.TranslatedText,
		Confidence:     res.Confidence,
		Translation:    rec,
	})
}

type listResponse struct {
	Translations []history.Record `json:"translations"`
}

// handleListTranslations returns stored translations, newest first. The
// client's limit is honoured up to the operator-configured cap.
func (s *Server) handleListTranslations(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "limit must be an integer")
			return
		}
		limit = n
	}
	if s.listLimit > 0 && (limit <= 0 || limit > s.listLimit) {
		limit = s.listLimit
	}

	recs, err := s.store.List(r.Context(), limit)
	if err != nil {
		slog.Error("history list failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not load translation history")
		return
	}
	if recs == nil {
		recs = []history.Record{}
	}
	writeJSON(w, http.StatusOK, listResponse{Translations: recs})
}

// handleClearTranslations removes the entire translation history.
func (s *Server) handleClearTranslations(w http.ResponseWriter, r *http.Request) {
	if err := s.store.ClearAll(r.Context()); err != nil {
		slog.Error("history clear failed", "error", err)
		writeError(w, http.StatusInternalServerError, "could not clear translation history")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleTTSAudio renders the given text to an encoded audio clip. Identical
// concurrent (text, lang) requests are rejected with 429 rather than queued:
// a browser retrying a slow fetch would otherwise pile up duplicate renders
// of the same utterance.
func (s *Server) handleTTSAudio(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	lang := r.URL.Query().Get("lang")
	if strings.TrimSpace(text) == "" {
		writeError(w, http.StatusBadRequest, "text must not be empty")
		return
	}
	if s.tts == nil {
		writeError(w, http.StatusInternalServerError, "no TTS provider configured")
		return
	}

	key := text + "\x00" + strings.ToLower(lang)
	if !s.acquireRender(key) {
		s.metrics.RecordTTSRejected(r.Context())
		writeError(w, http.StatusTooManyRequests, "request already in progress")
		return
	}
	defer s.releaseRender(key)

	start := time.Now()
	clip, err := s.tts.Synthesize(r.Context(), text, lang)
	s.metrics.TTSRenderDuration.Record(r.Context(), time.Since(start).Seconds(),
		metric.WithAttributes(observe.Attr("lang", lang)))
	if err != nil {
		s.metrics.RecordProviderError(r.Context(), "tts", "synthesize")
		slog.Error("tts render failed", "lang", lang, "error", err)
		writeError(w, http.StatusBadGateway, "speech rendering failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", clip.MIMEType)
	w.Header().Set("Content-Length", strconv.Itoa(len(clip.Data)))
	// Clips for the same text are stable; let the browser cache retries.
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	w.Write(clip.Data)
}

type speakRequest struct {
	SessionID    string  `json:"sessionId"`
	Text         string  `json:"text"`
	LanguageCode string  `json:"languageCode"`
	Rate         float64 `json:"rate"`
	Pitch        float64 `json:"pitch"`
	VoiceID      string  `json:"voiceId"`
}

type speakResponse struct {
	Status   string `json:"status"`
	Unlocked bool   `json:"unlocked"`
}

// handleSpeak runs the speech-output fallback chain for a connected session.
func (s *Server) handleSpeak(w http.ResponseWriter, r *http.Request) {
	var req speakRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	sess := s.sessions.get(req.SessionID)
	if sess == nil {
		writeError(w, http.StatusNotFound, "unknown session; open /api/session first")
		return
	}

	err := sess.chain.Speak(r.Context(), sess.profile, speak.Request{
		Text:         req.Text,
		LanguageCode: req.LanguageCode,
		Rate:         req.Rate,
		Pitch:        req.Pitch,
		VoiceID:      req.VoiceID,
	})
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, speakResponse{Status: "ok", Unlocked: sess.chain.Unlocked()})
	case errors.Is(err, speak.ErrEmptyText):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, speak.ErrInFlight):
		writeError(w, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, speak.ErrExhausted):
		writeError(w, http.StatusBadGateway, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// decodeJSON decodes the request body into v, rejecting unknown fields and
// oversized bodies.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encoding failed", "error", err)
	}
}
