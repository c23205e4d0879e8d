package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/pavelanni/swar/internal/events"
	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/scoring"
	"github.com/pavelanni/swar/internal/session"
	"github.com/pavelanni/swar/internal/store"
	"github.com/pavelanni/swar/internal/transcribe"
)

func TestMain(m *testing.M) {
	if err := appI18n.Init("en"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

type testEnv struct {
	store    *store.Store
	sessions *session.Manager
	recorder *Recorder
	router   http.Handler
	token    string
}

func newTestEnv(t *testing.T, newAdapter func() transcribe.Adapter) *testEnv {
	t.Helper()
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	bus := events.NewBus(nil)
	manager := session.NewManager(session.Config{
		Policy: scoring.DefaultPolicy(),
		OnComplete: func(v session.View) {
			_ = bus.PublishSessionCompleted(events.SessionCompleted{
				SessionID: v.ID, Generation: v.Generation, SubjectID: v.SubjectID,
			})
		},
	}, newAdapter)
	rec := NewRecorder(db, manager)

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, bus.HandleSessionCompleted(ctx, rec.HandleCompleted))
	t.Cleanup(func() {
		cancel()
		manager.Close()
		_ = bus.Close()
	})

	r := chi.NewRouter()
	r.Use(appI18n.Middleware())
	New(db, manager, rec).Routes(r)

	env := &testEnv{store: db, sessions: manager, recorder: rec, router: r}
	env.addTeacher(t, "anita", "secret")
	env.token = env.login(t, "anita", "secret")
	return env
}

func (e *testEnv) addTeacher(t *testing.T, username, password string) int64 {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	id, err := e.store.CreateTeacher(model.Teacher{
		Username: username, DisplayName: "Ms " + username, PasswordHash: string(hash),
	})
	require.NoError(t, err)
	return id
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	t.Helper()
	w := e.do(t, "", http.MethodPost, "/api/login", map[string]string{"username": username, "password": password})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (e *testEnv) do(t *testing.T, token, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) createSubject(t *testing.T, name string, grade int) model.Subject {
	t.Helper()
	w := e.do(t, e.token, http.MethodPost, "/api/subjects", map[string]any{"name": name, "grade": grade})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub model.Subject
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	return sub
}

func (e *testEnv) createSession(t *testing.T, subjectID int64, typ string) session.View {
	t.Helper()
	w := e.do(t, e.token, http.MethodPost, "/api/sessions", map[string]any{"subjectId": subjectID, "type": typ})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decodeView(t, w)
}

func decodeView(t *testing.T, w *httptest.ResponseRecorder) session.View {
	t.Helper()
	var v session.View
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v))
	return v
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorBody {
	t.Helper()
	var e errorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &e))
	return e
}

// finish answers every exercise with its expected answer.
func (e *testEnv) finish(t *testing.T, v session.View) session.View {
	t.Helper()
	for v.Current != nil {
		w := e.do(t, e.token, http.MethodPost, "/api/sessions/"+v.ID+"/submit",
			map[string]string{"transcript": v.Current.ExpectedAnswer})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		v = decodeView(t, w)
	}
	return v
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, nil)

	w := env.do(t, "", http.MethodGet, "/api/subjects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Please sign in.", decodeError(t, w).Error)

	w = env.do(t, "bogus", http.MethodGet, "/api/subjects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, "", http.MethodPost, "/api/login", map[string]string{"username": "anita", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "Wrong username or password.", decodeError(t, w).Error)

	w = env.do(t, "", http.MethodPost, "/api/login", map[string]string{"username": "nobody", "password": "secret"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = env.do(t, env.token, http.MethodGet, "/api/subjects", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[]`, w.Body.String())

	w = env.do(t, env.token, http.MethodPost, "/api/logout", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, env.token, http.MethodGet, "/api/subjects", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateSubjectValidation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body map[string]any
		want string
	}{
		{"blank name", map[string]any{"name": "  ", "grade": 3}, "Enter the student's name."},
		{"grade too high", map[string]any{"name": "Riya", "grade": 13}, "Grade must be between 1 and 12."},
		{"grade missing", map[string]any{"name": "Riya"}, "Grade must be between 1 and 12."},
		{"age too low", map[string]any{"name": "Riya", "grade": 3, "age": 2}, "Age must be between 3 and 25."},
		{"unknown field", map[string]any{"name": "Riya", "grade": 3, "class": "B"}, "The request could not be read."},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, env.token, http.MethodPost, "/api/subjects", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			e := decodeError(t, w)
			assert.Equal(t, tt.want, e.Error)
			assert.Equal(t, model.KindInput, e.Kind)
		})
	}

	w := env.do(t, env.token, http.MethodPost, "/api/subjects", map[string]any{"name": " Riya ", "grade": 3, "age": 8})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var sub model.Subject
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sub))
	assert.Equal(t, "Riya", sub.Name)
	require.NotNil(t, sub.Age)
	assert.Equal(t, 8, *sub.Age)
}

func TestSessionLifecycle(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Riya", 3)

	v := env.createSession(t, sub.ID, "dyslexia")
	assert.Equal(t, model.PhaseInProgress, v.Phase)
	assert.Equal(t, 3, v.Grade)
	require.NotNil(t, v.Current)

	w := env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/submit", map[string]string{"transcript": "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Please record or type an answer before submitting.", decodeError(t, w).Error)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/save", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "The session is not finished yet.", decodeError(t, w).Error)

	w = env.do(t, env.token, http.MethodGet, "/api/sessions/"+v.ID+"/report.pdf", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	done := env.finish(t, v)
	assert.Equal(t, model.PhaseComplete, done.Phase)
	require.NotNil(t, done.Result)
	assert.Equal(t, 100, done.Result.LocalScorePercent)
	assert.False(t, done.Result.EffectiveFlag)
	assert.Equal(t, model.AIStatusNone, done.AIStatus)

	env.awaitSaved(t, v.ID)
	w = env.do(t, env.token, http.MethodGet, "/api/sessions/"+v.ID, nil)
	recordID := decodeView(t, w).RecordID
	require.NotEmpty(t, recordID)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/save", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, recordID, decodeView(t, w).RecordID, "saving twice keeps one record")

	w = env.do(t, env.token, http.MethodGet, "/api/records", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []model.RecordView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &records))
	require.Len(t, records, 1)
	assert.Equal(t, recordID, records[0].Record.ID)
	assert.Equal(t, "Riya", records[0].Subject.Name)
	assert.Equal(t, model.RecordCompleted, records[0].Record.Status)

	w = env.do(t, env.token, http.MethodGet, "/api/records/"+recordID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rv model.RecordView
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rv))
	assert.Len(t, rv.Record.Responses, done.Total)

	w = env.do(t, env.token, http.MethodGet, "/api/sessions/"+v.ID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF-")))
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("Response breakdown")))

	w = env.do(t, env.token, http.MethodGet, "/api/records/"+recordID+"/report.pdf", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, bytes.Contains(w.Body.Bytes(), []byte("Riya")))
	assert.False(t, bytes.Contains(w.Body.Bytes(), []byte("Response breakdown")))

	w = env.do(t, env.token, http.MethodGet, "/api/records/export.xlsx", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("PK")))

	w = env.do(t, env.token, http.MethodGet, "/api/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var stats statsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.TotalSubjects)
	assert.Equal(t, 1, stats.TotalSessions)
	assert.Equal(t, 100, stats.AverageScore)
	assert.Equal(t, "0 sessions flagged for follow-up.", stats.FlaggedSummary)
}

func TestSessionPreviousAndReset(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Kabir", 2)
	v := env.createSession(t, sub.ID, "dyscalculia")

	w := env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/previous", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, model.KindInvalidState, decodeError(t, w).Kind)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/submit", map[string]string{"transcript": "wrong"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, decodeView(t, w).CurrentIndex)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/previous", nil)
	require.Equal(t, http.StatusOK, w.Code)
	back := decodeView(t, w)
	assert.Equal(t, 0, back.CurrentIndex)
	assert.Empty(t, back.Responses)
	require.NotNil(t, back.PreviousAnswer)
	assert.Equal(t, "wrong", back.PreviousAnswer.Transcript)

	done := env.finish(t, back)
	require.Equal(t, model.PhaseComplete, done.Phase)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/reset", nil)
	require.Equal(t, http.StatusOK, w.Code)
	reset := decodeView(t, w)
	assert.Equal(t, model.PhaseInProgress, reset.Phase)
	assert.Equal(t, 1, reset.Generation)
	assert.Empty(t, reset.Responses)
	assert.Empty(t, reset.RecordID)
}

func TestSessionGradeDefaultsAndOverride(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Riya", 5)

	w := env.do(t, env.token, http.MethodPost, "/api/sessions", map[string]any{"subjectId": sub.ID, "type": "Dyslexia", "grade": 40})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, model.MaxGrade, decodeView(t, w).Grade)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions", map[string]any{"subjectId": sub.ID, "type": "spelling"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "Choose either dyslexia or dyscalculia.", decodeError(t, w).Error)

	w = env.do(t, env.token, http.MethodPost, "/api/sessions", map[string]any{"subjectId": 999, "type": "dyslexia"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSessionsAreScopedToTeacher(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Riya", 3)
	v := env.createSession(t, sub.ID, "dyslexia")
	done := env.finish(t, v)
	env.awaitSaved(t, v.ID)

	env.addTeacher(t, "ravi", "pass")
	other := env.login(t, "ravi", "pass")

	for _, path := range []string{
		"/api/sessions/" + v.ID,
		"/api/sessions/" + v.ID + "/report.pdf",
		"/api/records/" + env.sessionRecordID(t, v.ID),
	} {
		w := env.do(t, other, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, path)
	}
	w := env.do(t, other, http.MethodPost, "/api/sessions", map[string]any{"subjectId": sub.ID, "type": "dyslexia"})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, other, http.MethodGet, "/api/records", nil)
	assert.JSONEq(t, `[]`, w.Body.String())
	assert.Equal(t, model.PhaseComplete, done.Phase)
}

func (e *testEnv) awaitSaved(t *testing.T, sessionID string) {
	t.Helper()
	require.Eventually(t, func() bool {
		s, err := e.sessions.Get(sessionID)
		return err == nil && s.View().RecordID != ""
	}, 2*time.Second, 10*time.Millisecond)
}

func (e *testEnv) sessionRecordID(t *testing.T, sessionID string) string {
	t.Helper()
	s, err := e.sessions.Get(sessionID)
	require.NoError(t, err)
	return s.View().RecordID
}

func TestDiscardSession(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Riya", 3)
	v := env.createSession(t, sub.ID, "dyslexia")

	w := env.do(t, env.token, http.MethodDelete, "/api/sessions/"+v.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = env.do(t, env.token, http.MethodGet, "/api/sessions/"+v.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Not found.", decodeError(t, w).Error)
}

func TestRecordingUnsupported(t *testing.T) {
	env := newTestEnv(t, nil)
	sub := env.createSubject(t, "Riya", 3)
	v := env.createSession(t, sub.ID, "dyslexia")

	w := env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/recording/start", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	e := decodeError(t, w)
	assert.Equal(t, model.KindCapabilityUnavailable, e.Kind)
	assert.True(t, strings.HasPrefix(e.Error, "Speech recognition is not available"))

	w = env.do(t, env.token, http.MethodPost, "/api/sessions/"+v.ID+"/transcript", map[string]any{"text": "cat", "final": true})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPushedRecording(t *testing.T) {
	env := newTestEnv(t, func() transcribe.Adapter { return transcribe.NewPush() })
	sub := env.createSubject(t, "Riya", 3)
	v := env.createSession(t, sub.ID, "dyslexia")
	base := "/api/sessions/" + v.ID

	w := env.do(t, env.token, http.MethodPost, base+"/recording/start", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.True(t, decodeView(t, w).Recording)

	w = env.do(t, env.token, http.MethodPost, base+"/transcript", map[string]any{"text": "some"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decodeView(t, w).TranscriptFinal)

	w = env.do(t, env.token, http.MethodPost, base+"/submit", nil)
	assert.Equal(t, http.StatusConflict, w.Code, "submit waits for the capture to end")

	w = env.do(t, env.token, http.MethodPost, base+"/recording/stop", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, env.token, http.MethodPost, base+"/transcript", map[string]any{"text": v.Current.ExpectedAnswer, "final": true})
	require.Equal(t, http.StatusOK, w.Code)
	got := decodeView(t, w)
	assert.False(t, got.Recording)
	assert.True(t, got.TranscriptFinal)
	assert.Equal(t, v.Current.ExpectedAnswer, got.Transcript)

	w = env.do(t, env.token, http.MethodPost, base+"/submit", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	next := decodeView(t, w)
	assert.Equal(t, 1, next.CurrentIndex)
	require.Len(t, next.Responses, 1)
	assert.True(t, next.Responses[0].IsCorrect)

	w = env.do(t, env.token, http.MethodPost, base+"/recording/start", nil)
	require.Equal(t, http.StatusOK, w.Code)
	w = env.do(t, env.token, http.MethodPost, base+"/transcript", map[string]any{"error": "no-speech"})
	require.Equal(t, http.StatusOK, w.Code)
	failed := decodeView(t, w)
	assert.False(t, failed.Recording)
	assert.Equal(t, "no-speech", failed.CaptureError)
}

func TestLocalizedErrors(t *testing.T) {
	env := newTestEnv(t, nil)
	w := env.do(t, "", http.MethodGet, "/api/subjects?lang=es", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.NotEqual(t, "Please sign in.", decodeError(t, w).Error)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind model.ErrorKind
		want int
	}{
		{model.KindInput, http.StatusBadRequest},
		{model.KindCapabilityUnavailable, http.StatusConflict},
		{model.KindBusy, http.StatusConflict},
		{model.KindInvalidState, http.StatusConflict},
		{model.KindNotFound, http.StatusNotFound},
		{model.KindPersistence, http.StatusInternalServerError},
		{"", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.kind), string(tt.kind))
	}
}
