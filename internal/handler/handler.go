package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/scoring"
	"github.com/pavelanni/swar/internal/session"
	"github.com/pavelanni/swar/internal/store"
)

const maxBodyBytes = 64 << 10

// Handler holds shared dependencies for HTTP handlers.
type Handler struct {
	store    *store.Store
	sessions *session.Manager
	recorder *Recorder
	validate *validator.Validate
}

// New creates a new Handler.
func New(s *store.Store, m *session.Manager, rec *Recorder) *Handler {
	return &Handler{store: s, sessions: m, recorder: rec, validate: newValidator()}
}

// Routes registers all HTTP routes.
func (h *Handler) Routes(r chi.Router) {
	r.Post("/api/login", h.handleLogin)

	r.Group(func(r chi.Router) {
		r.Use(h.requireAuth)
		r.Post("/api/logout", h.handleLogout)

		r.Get("/api/subjects", h.handleListSubjects)
		r.Post("/api/subjects", h.handleCreateSubject)
		r.Get("/api/stats", h.handleStats)

		r.Post("/api/sessions", h.handleCreateSession)
		r.Route("/api/sessions/{sessionID}", func(r chi.Router) {
			r.Get("/", h.handleGetSession)
			r.Delete("/", h.handleDiscardSession)
			r.Get("/exercises", h.handleExercises)
			r.Post("/recording/start", h.handleStartRecording)
			r.Post("/recording/stop", h.handleStopRecording)
			r.Post("/transcript", h.handleTranscript)
			r.Post("/submit", h.handleSubmit)
			r.Post("/previous", h.handlePrevious)
			r.Post("/reset", h.handleReset)
			r.Post("/save", h.handleSave)
			r.Get("/report.pdf", h.handleSessionReport)
		})

		r.Get("/api/records", h.handleListRecords)
		r.Get("/api/records/export.xlsx", h.handleExportRecords)
		r.Get("/api/records/{recordID}", h.handleGetRecord)
		r.Get("/api/records/{recordID}/report.pdf", h.handleRecordReport)
	})
}

type errorBody struct {
	Error string          `json:"error"`
	Kind  model.ErrorKind `json:"kind,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}

func writeFile(w http.ResponseWriter, contentType, name string, data []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+name+`"`)
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	if _, err := w.Write(data); err != nil {
		slog.Error("write file", "name", name, "error", err)
	}
}

// statusFor maps an error kind to the HTTP status shown to the client.
func statusFor(kind model.ErrorKind) int {
	switch kind {
	case model.KindInput:
		return http.StatusBadRequest
	case model.KindCapabilityUnavailable, model.KindBusy, model.KindInvalidState:
		return http.StatusConflict
	case model.KindNotFound:
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}

// messageFor returns the localized message for an error kind.
func messageFor(r *http.Request, err error) string {
	ctx := r.Context()
	switch model.KindOf(err) {
	case model.KindInput:
		if errors.Is(err, scoring.ErrEmptyTranscript) {
			return appI18n.T(ctx, "ErrEmptyTranscript")
		}
		return appI18n.T(ctx, "ErrInvalidInput")
	case model.KindCapabilityUnavailable:
		return appI18n.T(ctx, "ErrRecordingUnsupported")
	case model.KindBusy:
		return appI18n.T(ctx, "ErrSessionBusy")
	case model.KindInvalidState:
		return appI18n.T(ctx, "ErrInvalidTransition")
	case model.KindNotFound:
		return appI18n.T(ctx, "ErrNotFound")
	case model.KindPersistence:
		return appI18n.T(ctx, "ErrSaveFailed")
	}
	return appI18n.T(ctx, "ErrInternal")
}

// writeError reports err with the status of its kind. Errors without a kind
// are internal and their text is not shown to the client.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	} else {
		slog.Debug("request rejected", "method", r.Method, "path", r.URL.Path, "kind", kind, "error", err)
	}
	writeJSON(w, status, errorBody{Error: messageFor(r, err), Kind: kind})
}

func writeMessage(w http.ResponseWriter, status int, kind model.ErrorKind, msg string) {
	writeJSON(w, status, errorBody{Error: msg, Kind: kind})
}

// decode reads a JSON body into v. An empty body leaves v untouched.
func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return model.NewError(model.KindInput, "decode body", err)
	}
	return nil
}
