// Package session drives one assessment from the first exercise to the merged
// local and model verdict.
//
// A Session moves through in_progress, awaiting_ai_analysis and complete.
// User actions are applied one at a time; an action that arrives while
// another is being applied fails with ErrBusy. The background analysis is
// tagged with the generation it was started for, so a result that arrives
// after a timeout or a reset is logged and dropped.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pavelanni/swar/internal/analysis"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/questionbank"
	"github.com/pavelanni/swar/internal/scoring"
	"github.com/pavelanni/swar/internal/transcribe"
)

// DefaultAITimeout bounds the background analysis when Config.AITimeout is unset.
const DefaultAITimeout = 20 * time.Second

var (
	// ErrBusy is returned when an action arrives while another is applied.
	ErrBusy = errors.New("another action is being applied to this session")
	// ErrInvalidTransition is returned for actions the current phase forbids.
	ErrInvalidTransition = errors.New("action not allowed in the current session state")
)

// Config holds the collaborators of a session.
type Config struct {
	Policy    scoring.Policy
	Analyzer  analysis.Analyzer  // nil completes without analysis
	Adapter   transcribe.Adapter // nil means recording is unsupported
	AITimeout time.Duration
	Now       func() time.Time
	// OnComplete is called, outside any session lock, each time the
	// session reaches the complete phase.
	OnComplete func(View)
}

type capture struct {
	id     int
	active bool // between Start and the end-of-capture signal
	text   string
	final  bool
	err    string
}

// Session is one learner working through one exercise set.
type Session struct {
	id        string
	subjectID int64
	typ       model.AssessmentType
	grade     int
	exercises []model.Exercise
	cfg       Config
	ctx       context.Context

	applying atomic.Bool

	mu          sync.Mutex
	phase       model.Phase
	generation  int
	current     int
	responses   []model.Response
	stash       map[int]model.Response // answers withdrawn by GoToPrevious
	presentedAt time.Time
	ai          *model.AIAnalysis
	aiStatus    model.AIStatus
	aiErrorKind model.AIErrorKind
	done        chan struct{}
	recordID    string
	saveErr     string

	capMu sync.Mutex
	cap   capture
}

// New creates a session for the exercises of grade and t. The context bounds
// every background analysis the session starts.
func New(ctx context.Context, id string, subjectID int64, t model.AssessmentType, grade int, cfg Config) *Session {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.AITimeout <= 0 {
		cfg.AITimeout = DefaultAITimeout
	}
	if cfg.Adapter == nil {
		cfg.Adapter = transcribe.Unsupported{}
	}
	grade = model.ClampGrade(grade)
	return &Session{
		id:          id,
		subjectID:   subjectID,
		typ:         t,
		grade:       grade,
		exercises:   questionbank.For(grade, t),
		cfg:         cfg,
		ctx:         ctx,
		phase:       model.PhaseInProgress,
		aiStatus:    model.AIStatusNone,
		stash:       map[int]model.Response{},
		presentedAt: cfg.Now(),
	}
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// SubjectID returns the subject the session assesses.
func (s *Session) SubjectID() int64 { return s.subjectID }

func (s *Session) acquire(op string) error {
	if !s.applying.CompareAndSwap(false, true) {
		return model.NewError(model.KindBusy, op, ErrBusy)
	}
	return nil
}

func (s *Session) release() { s.applying.Store(false) }

func (s *Session) invalid(op string, phase model.Phase, detail string) error {
	return model.NewError(model.KindInvalidState, op, fmt.Errorf("%w: %s (phase %s)", ErrInvalidTransition, detail, phase))
}

// StartRecording begins a capture for the current exercise.
func (s *Session) StartRecording() error {
	const op = "start recording"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	phase := s.phase
	s.mu.Unlock()
	if phase != model.PhaseInProgress {
		return s.invalid(op, phase, "session is not in progress")
	}

	s.capMu.Lock()
	if s.cap.active {
		s.capMu.Unlock()
		return s.invalid(op, phase, "already recording")
	}
	s.cap = capture{id: s.cap.id + 1, active: true}
	id := s.cap.id
	s.capMu.Unlock()

	if err := s.cfg.Adapter.Start(s.listener(id)); err != nil {
		s.capMu.Lock()
		if s.cap.id == id {
			s.cap.active = false
		}
		s.capMu.Unlock()
		if errors.Is(err, transcribe.ErrUnsupported) {
			return model.NewError(model.KindCapabilityUnavailable, op, err)
		}
		return model.NewError(model.KindCapabilityUnavailable, op, fmt.Errorf("start capture: %w", err))
	}
	slog.Debug("recording started", "session_id", s.id, "capture", id)
	return nil
}

// StopRecording asks the adapter to finish. The final transcript may still
// arrive afterwards.
func (s *Session) StopRecording() error {
	const op = "stop recording"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.capMu.Lock()
	active := s.cap.active
	s.capMu.Unlock()
	if !active {
		return s.invalid(op, s.Phase(), "not recording")
	}
	if err := s.cfg.Adapter.Stop(); err != nil {
		return model.NewError(model.KindCapabilityUnavailable, op, fmt.Errorf("stop capture: %w", err))
	}
	return nil
}

func (s *Session) listener(id int) transcribe.Listener {
	return transcribe.Listener{
		OnTranscript: func(text string, final bool) {
			s.capMu.Lock()
			defer s.capMu.Unlock()
			if s.cap.id != id || !s.cap.active {
				return
			}
			s.cap.text = text
			s.cap.final = final
		},
		OnError: func(reason string) {
			s.capMu.Lock()
			defer s.capMu.Unlock()
			if s.cap.id != id {
				return
			}
			s.cap.err = reason
			slog.Warn("capture error", "session_id", s.id, "capture", id, "reason", reason)
		},
		OnEnd: func() {
			s.capMu.Lock()
			defer s.capMu.Unlock()
			if s.cap.id != id {
				return
			}
			s.cap.active = false
		},
	}
}

// Deliver forwards a transcript produced outside the process to the adapter.
func (s *Session) Deliver(text string, final bool) error {
	f, ok := s.cfg.Adapter.(transcribe.Feeder)
	if !ok {
		return model.NewError(model.KindCapabilityUnavailable, "deliver transcript", transcribe.ErrUnsupported)
	}
	if err := f.Deliver(text, final); err != nil {
		return model.NewError(model.KindInvalidState, "deliver transcript", err)
	}
	return nil
}

// FailCapture reports a recognizer error from outside the process.
func (s *Session) FailCapture(reason string) error {
	f, ok := s.cfg.Adapter.(transcribe.Feeder)
	if !ok {
		return model.NewError(model.KindCapabilityUnavailable, "fail capture", transcribe.ErrUnsupported)
	}
	if err := f.Fail(reason); err != nil {
		return model.NewError(model.KindInvalidState, "fail capture", err)
	}
	return nil
}

// Submit records transcript as the answer to the current exercise.
func (s *Session) Submit(transcript string) error {
	const op = "submit response"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.capMu.Lock()
	active := s.cap.active
	s.capMu.Unlock()
	if active {
		return s.invalid(op, s.Phase(), "recording is still in progress")
	}
	return s.submit(op, transcript)
}

// SubmitCaptured submits the transcript of the last finished capture.
func (s *Session) SubmitCaptured() error {
	const op = "submit captured response"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.capMu.Lock()
	c := s.cap
	s.capMu.Unlock()
	if c.active {
		return s.invalid(op, s.Phase(), "recording is still in progress")
	}
	return s.submit(op, c.text)
}

func (s *Session) submit(op, transcript string) error {
	s.mu.Lock()
	if s.phase != model.PhaseInProgress {
		phase := s.phase
		s.mu.Unlock()
		return s.invalid(op, phase, "session is not in progress")
	}
	if err := scoring.ValidateTranscript(transcript); err != nil {
		s.mu.Unlock()
		return model.NewError(model.KindInput, op, err)
	}

	now := s.cfg.Now()
	ex := s.exercises[s.current]
	s.responses = append(s.responses, model.Response{
		ExerciseID:     ex.ID,
		Prompt:         ex.Prompt,
		ExpectedAnswer: ex.ExpectedAnswer,
		Kind:           ex.Kind,
		Transcript:     transcript,
		IsCorrect:      s.cfg.Policy.IsCorrect(transcript, ex.ExpectedAnswer),
		LatencyMs:      now.Sub(s.presentedAt).Milliseconds(),
	})
	delete(s.stash, s.current)
	s.current++
	s.presentedAt = now

	var notify *View
	if s.current == len(s.exercises) {
		notify = s.beginAnalysisLocked()
	}
	s.mu.Unlock()

	s.clearCapture()
	if notify != nil {
		s.completed(*notify)
	}
	return nil
}

// beginAnalysisLocked moves to awaiting_ai_analysis and starts the analysis.
// Without an analyzer the session completes at once and the returned view
// must be announced by the caller.
func (s *Session) beginAnalysisLocked() *View {
	s.phase = model.PhaseAwaitingAIAnalysis
	s.done = make(chan struct{})
	gen := s.generation

	if s.cfg.Analyzer == nil {
		s.phase = model.PhaseComplete
		s.aiStatus = model.AIStatusNone
		close(s.done)
		v := s.viewLocked()
		return &v
	}

	s.aiStatus = model.AIStatusPending
	responses := make([]model.Response, len(s.responses))
	copy(responses, s.responses)
	req := model.NewAnalysisRequest(s.typ, s.grade, responses)
	slog.Info("analysis started", "session_id", s.id, "generation", gen, "responses", len(responses))
	go s.analyze(gen, req)
	return nil
}

func (s *Session) analyze(gen int, req model.AnalysisRequest) {
	ctx, cancel := context.WithTimeout(s.ctx, s.cfg.AITimeout)
	defer cancel()

	result := make(chan model.AIAnalysis, 1)
	go func() {
		result <- s.cfg.Analyzer.Analyze(ctx, req)
	}()

	select {
	case a := <-result:
		s.resolve(gen, &a, ctx.Err())
	case <-ctx.Done():
		s.resolve(gen, nil, ctx.Err())
		go func() {
			late := <-result
			slog.Info("discarding late analysis", "session_id", s.id, "generation", gen,
				"flagged", late.IsFlagged, "kind", late.ErrorKind)
		}()
	}
}

// resolve applies the outcome of the analysis started for gen. It waits for
// the session lock rather than failing with ErrBusy.
func (s *Session) resolve(gen int, a *model.AIAnalysis, ctxErr error) {
	s.mu.Lock()
	if gen != s.generation || s.phase != model.PhaseAwaitingAIAnalysis {
		s.mu.Unlock()
		slog.Info("discarding stale analysis", "session_id", s.id, "generation", gen)
		return
	}

	switch {
	case a == nil && errors.Is(ctxErr, context.DeadlineExceeded):
		s.aiStatus = model.AIStatusTimedOut
		slog.Warn("analysis timed out", "session_id", s.id, "generation", gen, "timeout", s.cfg.AITimeout)
	case a == nil:
		s.aiStatus = model.AIStatusFailed
		s.aiErrorKind = model.AIUpstreamError
		slog.Warn("analysis canceled", "session_id", s.id, "generation", gen, "error", ctxErr)
	case a.Failed():
		s.aiStatus = model.AIStatusFailed
		s.aiErrorKind = a.ErrorKind
		slog.Warn("analysis failed", "session_id", s.id, "generation", gen, "kind", a.ErrorKind, "error", a.Error)
	default:
		s.aiStatus = model.AIStatusArrived
		s.ai = a
		if a.Degraded {
			slog.Warn("analysis degraded", "session_id", s.id, "generation", gen, "error", a.Error)
		}
	}
	s.phase = model.PhaseComplete
	close(s.done)
	v := s.viewLocked()
	s.mu.Unlock()

	s.completed(v)
}

func (s *Session) completed(v View) {
	slog.Info("session complete", "session_id", s.id, "generation", v.Generation,
		"score", v.Result.LocalScorePercent, "flagged", v.Result.EffectiveFlag, "ai_status", v.AIStatus)
	if s.cfg.OnComplete != nil {
		s.cfg.OnComplete(v)
	}
}

// GoToPrevious withdraws the last answer and re-presents its exercise. The
// withdrawn answer stays visible until a fresh submission overwrites it.
func (s *Session) GoToPrevious() error {
	const op = "go to previous"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.capMu.Lock()
	active := s.cap.active
	s.capMu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseInProgress {
		return s.invalid(op, s.phase, "session is not in progress")
	}
	if s.current == 0 {
		return s.invalid(op, s.phase, "already at the first exercise")
	}
	if active {
		return s.invalid(op, s.phase, "recording is still in progress")
	}

	s.current--
	s.stash[s.current] = s.responses[s.current]
	s.responses = s.responses[:s.current]
	s.presentedAt = s.cfg.Now()
	s.clearCapture()
	return nil
}

// Reset starts the same exercise set over. Any analysis still in flight for
// the old generation is discarded when it arrives.
func (s *Session) Reset() error {
	const op = "reset"
	if err := s.acquire(op); err != nil {
		return err
	}
	defer s.release()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.phase != model.PhaseComplete {
		return s.invalid(op, s.phase, "session is not complete")
	}
	s.generation++
	s.phase = model.PhaseInProgress
	s.current = 0
	s.responses = nil
	s.stash = map[int]model.Response{}
	s.ai = nil
	s.aiStatus = model.AIStatusNone
	s.aiErrorKind = ""
	s.done = nil
	s.recordID = ""
	s.saveErr = ""
	s.presentedAt = s.cfg.Now()
	s.clearCapture()
	slog.Info("session reset", "session_id", s.id, "generation", s.generation)
	return nil
}

func (s *Session) clearCapture() {
	s.capMu.Lock()
	s.cap = capture{id: s.cap.id}
	s.capMu.Unlock()
}

// MarkSaved records that generation gen was persisted as recordID. It
// reports false when the session has moved on to another generation.
func (s *Session) MarkSaved(gen int, recordID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.phase != model.PhaseComplete {
		return false
	}
	s.recordID = recordID
	s.saveErr = ""
	return true
}

// MarkSaveFailed records a persistence failure for generation gen.
func (s *Session) MarkSaveFailed(gen int, err error) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation || s.phase != model.PhaseComplete {
		return false
	}
	s.saveErr = err.Error()
	return true
}

// Phase returns the current phase.
func (s *Session) Phase() model.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Wait blocks until the current generation completes or ctx ends.
func (s *Session) Wait(ctx context.Context) (View, error) {
	s.mu.Lock()
	done := s.done
	phase := s.phase
	s.mu.Unlock()
	if done == nil {
		return View{}, s.invalid("wait", phase, "no answers pending analysis")
	}
	select {
	case <-done:
		return s.View(), nil
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}
