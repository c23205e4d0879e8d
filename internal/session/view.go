package session

import (
	"github.com/pavelanni/swar/internal/model"
)

// View is the read model shown to the teacher. LocalResultFinal is true as
// soon as every exercise is answered; AIStatus tells whether the model
// verdict is still pending, arrived, failed or timed out.
type View struct {
	ID               string               `json:"id"`
	SubjectID        int64                `json:"subject_id"`
	Type             model.AssessmentType `json:"assessment_type"`
	Grade            int                  `json:"grade"`
	Phase            model.Phase          `json:"phase"`
	Generation       int                  `json:"generation"`
	CurrentIndex     int                  `json:"current_index"`
	Total            int                  `json:"total"`
	Current          *model.Exercise      `json:"current,omitempty"`
	PreviousAnswer   *model.Response      `json:"previous_answer,omitempty"`
	Responses        []model.Response     `json:"responses"`
	Recording        bool                 `json:"recording"`
	Transcript       string               `json:"transcript,omitempty"`
	TranscriptFinal  bool                 `json:"transcript_final"`
	CaptureError     string               `json:"capture_error,omitempty"`
	LocalResultFinal bool                 `json:"local_result_final"`
	Result           *model.SessionResult `json:"result,omitempty"`
	AIStatus         model.AIStatus       `json:"ai_status"`
	AIErrorKind      model.AIErrorKind    `json:"ai_error_kind,omitempty"`
	RecordID         string               `json:"record_id,omitempty"`
	SaveError        string               `json:"save_error,omitempty"`
}

// View returns a snapshot of the session.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked()
}

func (s *Session) viewLocked() View {
	v := View{
		ID:           s.id,
		SubjectID:    s.subjectID,
		Type:         s.typ,
		Grade:        s.grade,
		Phase:        s.phase,
		Generation:   s.generation,
		CurrentIndex: s.current,
		Total:        len(s.exercises),
		Responses:    make([]model.Response, len(s.responses)),
		AIStatus:     s.aiStatus,
		AIErrorKind:  s.aiErrorKind,
		RecordID:     s.recordID,
		SaveError:    s.saveErr,
	}
	copy(v.Responses, s.responses)

	if s.phase == model.PhaseInProgress {
		ex := s.exercises[s.current]
		v.Current = &ex
		if prev, ok := s.stash[s.current]; ok {
			v.PreviousAnswer = &prev
		}
	} else {
		res := s.cfg.Policy.Summarize(s.responses, s.ai)
		v.Result = &res
		v.LocalResultFinal = true
	}

	s.capMu.Lock()
	v.Recording = s.cap.active
	v.Transcript = s.cap.text
	v.TranscriptFinal = s.cap.final
	v.CaptureError = s.cap.err
	s.capMu.Unlock()
	return v
}

// Exercises returns the exercise set of the session.
func (s *Session) Exercises() []model.Exercise {
	out := make([]model.Exercise, len(s.exercises))
	copy(out, s.exercises)
	return out
}
