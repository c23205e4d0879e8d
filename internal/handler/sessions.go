package handler

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/report"
	"github.com/pavelanni/swar/internal/session"
)

type createSessionRequest struct {
	SubjectID int64  `json:"subjectId" validate:"required"`
	Type      string `json:"type" validate:"required,assessment_type"`
	Grade     *int   `json:"grade"`
}

type transcriptRequest struct {
	Text  string `json:"text"`
	Final bool   `json:"final"`
	Error string `json:"error"`
}

type submitRequest struct {
	Transcript *string `json:"transcript"`
}

// session returns an active session owned by the authenticated teacher.
func (h *Handler) session(r *http.Request) (*session.Session, *model.Subject, error) {
	sess, err := h.sessions.Get(chi.URLParam(r, "sessionID"))
	if err != nil {
		return nil, nil, err
	}
	sub, err := h.ownedSubject(r, sess.SubjectID())
	if err != nil {
		return nil, nil, err
	}
	return sess, sub, nil
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, model.KindInput, validationMessage(r, err))
		return
	}
	t, err := model.ParseAssessmentType(req.Type)
	if err != nil {
		writeError(w, r, err)
		return
	}
	sub, err := h.ownedSubject(r, req.SubjectID)
	if err != nil {
		writeError(w, r, err)
		return
	}

	grade := sub.Grade
	if req.Grade != nil {
		grade = *req.Grade
	}
	sess := h.sessions.Create(sub.ID, t, grade)
	writeJSON(w, http.StatusCreated, sess.View())
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleDiscardSession(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.sessions.Remove(sess.ID())
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleExercises(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.Exercises())
}

// act applies a session action and answers with the resulting view.
func (h *Handler) act(w http.ResponseWriter, r *http.Request, fn func(*session.Session) error) {
	sess, _, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := fn(sess); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleStartRecording(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*session.Session).StartRecording)
}

func (h *Handler) handleStopRecording(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*session.Session).StopRecording)
}

func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	var req transcriptRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.act(w, r, func(s *session.Session) error {
		if req.Error != "" {
			return s.FailCapture(req.Error)
		}
		return s.Deliver(req.Text, req.Final)
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	h.act(w, r, func(s *session.Session) error {
		if req.Transcript == nil {
			return s.SubmitCaptured()
		}
		return s.Submit(*req.Transcript)
	})
}

func (h *Handler) handlePrevious(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*session.Session).GoToPrevious)
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	h.act(w, r, (*session.Session).Reset)
}

// handleSave writes the completed session now. It is the retry path after
// a failed automatic save and is a no-op once a record exists.
func (h *Handler) handleSave(w http.ResponseWriter, r *http.Request) {
	sess, _, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := sess.View()
	if v.Phase != model.PhaseComplete {
		writeMessage(w, http.StatusConflict, model.KindInvalidState, appI18n.T(r.Context(), "ErrSessionNotComplete"))
		return
	}
	if _, err := h.recorder.Save(sess, v); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sess.View())
}

func (h *Handler) handleSessionReport(w http.ResponseWriter, r *http.Request) {
	sess, sub, err := h.session(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	v := sess.View()
	if v.Result == nil {
		writeMessage(w, http.StatusConflict, model.KindInvalidState, appI18n.T(r.Context(), "ErrSessionNotComplete"))
		return
	}
	info, err := h.store.GetReportInfo()
	if err != nil {
		writeError(w, r, err)
		return
	}
	teacher := model.TeacherFromContext(r.Context())
	out, err := report.PDF(report.Input{
		Info:        info,
		SubjectName: sub.Name,
		TeacherName: teacher.DisplayName,
		Type:        v.Type,
		Grade:       v.Grade,
		Date:        time.Now(),
		Result:      *v.Result,
		AIStatus:    v.AIStatus,
		Responses:   v.Responses,
	}, ReportLabels(r.Context()))
	if err != nil {
		writeError(w, r, fmt.Errorf("render session report: %w", err))
		return
	}
	writeFile(w, "application/pdf", "session-"+v.ID+".pdf", out)
}
