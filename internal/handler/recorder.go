package handler

import (
	"context"
	"log/slog"

	"github.com/pavelanni/swar/internal/events"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/session"
	"github.com/pavelanni/swar/internal/store"
)

// Recorder persists completed sessions. It is driven by completion events
// and by explicit save requests; both paths write at most one record per
// session generation.
type Recorder struct {
	store    *store.Store
	sessions *session.Manager
}

// NewRecorder creates a recorder.
func NewRecorder(s *store.Store, m *session.Manager) *Recorder {
	return &Recorder{store: s, sessions: m}
}

// HandleCompleted saves the session named by ev. Events for sessions that
// were discarded or reset since are ignored.
func (rc *Recorder) HandleCompleted(_ context.Context, ev events.SessionCompleted) error {
	sess, err := rc.sessions.Get(ev.SessionID)
	if err != nil {
		slog.Debug("completed session no longer active", "session_id", ev.SessionID)
		return nil
	}
	v := sess.View()
	if v.Generation != ev.Generation || v.Phase != model.PhaseComplete {
		slog.Debug("skipping stale completion", "session_id", ev.SessionID,
			"event_generation", ev.Generation, "generation", v.Generation)
		return nil
	}
	_, err = rc.Save(sess, v)
	return err
}

// Save writes v as a session record and marks the session saved. A failed
// write leaves the session in memory so the save can be retried.
func (rc *Recorder) Save(sess *session.Session, v session.View) (string, error) {
	if v.RecordID != "" {
		return v.RecordID, nil
	}
	id, err := rc.store.CreateSessionRecord(recordFromView(v))
	if err != nil {
		err = model.NewError(model.KindPersistence, "save session", err)
		sess.MarkSaveFailed(v.Generation, err)
		slog.Error("saving session failed", "session_id", v.ID, "generation", v.Generation, "error", err)
		return "", err
	}
	sess.MarkSaved(v.Generation, id)
	slog.Info("session saved", "session_id", v.ID, "generation", v.Generation, "record_id", id)
	return id, nil
}

// recordFromView builds the persisted form of a completed session. The
// overall score is always the local score; the model's accuracy travels
// inside the stored analysis.
func recordFromView(v session.View) model.SessionRecord {
	rec := model.SessionRecord{
		SessionID:      v.ID,
		Generation:     v.Generation,
		SubjectID:      v.SubjectID,
		AssessmentType: v.Type,
		Grade:          v.Grade,
		Status:         model.RecordInProgress,
		AIStatus:       v.AIStatus,
		Responses:      v.Responses,
	}
	if v.Result == nil {
		return rec
	}
	res := v.Result
	score := res.LocalScorePercent
	flagged := res.EffectiveFlag
	rec.OverallScore = &score
	rec.Flagged = &flagged
	rec.CorrectCount = res.CorrectCount
	rec.TotalCount = res.TotalCount
	rec.AI = res.AI
	if v.Phase == model.PhaseComplete {
		rec.Status = model.RecordCompleted
	}
	return rec
}
