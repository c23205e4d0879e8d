package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pavelanni/swar/internal/events"
	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/scoring"
	"github.com/pavelanni/swar/internal/session"
	"github.com/pavelanni/swar/internal/store"
)

func completedSession(t *testing.T, m *session.Manager, subjectID int64) *session.Session {
	t.Helper()
	s := m.Create(subjectID, model.Dyscalculia, 4)
	for _, ex := range s.Exercises() {
		require.NoError(t, s.Submit(ex.ExpectedAnswer))
	}
	require.Equal(t, model.PhaseComplete, s.Phase())
	return s
}

func newRecorderStore(t *testing.T) (*store.Store, int64) {
	t.Helper()
	db, err := store.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	teacherID, err := db.CreateTeacher(model.Teacher{Username: "anita", PasswordHash: "x"})
	require.NoError(t, err)
	subjectID, err := db.CreateSubject(model.Subject{TeacherID: teacherID, Name: "Riya", Grade: 4})
	require.NoError(t, err)
	return db, subjectID
}

func TestRecorderSaveFailureKeepsSession(t *testing.T) {
	db, subjectID := newRecorderStore(t)
	m := session.NewManager(session.Config{Policy: scoring.DefaultPolicy()}, nil)
	defer m.Close()
	rec := NewRecorder(db, m)
	s := completedSession(t, m, subjectID)

	require.NoError(t, db.Close())
	_, err := rec.Save(s, s.View())
	require.Error(t, err)
	assert.Equal(t, model.KindPersistence, model.KindOf(err))

	v := s.View()
	assert.NotEmpty(t, v.SaveError)
	assert.Empty(t, v.RecordID)
	assert.Equal(t, model.PhaseComplete, v.Phase)
	assert.Len(t, v.Responses, v.Total)
}

func TestRecorderHandleCompleted(t *testing.T) {
	db, subjectID := newRecorderStore(t)
	m := session.NewManager(session.Config{Policy: scoring.DefaultPolicy()}, nil)
	defer m.Close()
	rec := NewRecorder(db, m)
	s := completedSession(t, m, subjectID)
	ctx := context.Background()

	require.NoError(t, rec.HandleCompleted(ctx, events.SessionCompleted{SessionID: "gone", Generation: 0}))
	require.NoError(t, rec.HandleCompleted(ctx, events.SessionCompleted{SessionID: s.ID(), Generation: 3}))
	assert.Empty(t, s.View().RecordID, "stale generation is not saved")

	require.NoError(t, rec.HandleCompleted(ctx, events.SessionCompleted{SessionID: s.ID(), Generation: 0}))
	v := s.View()
	require.NotEmpty(t, v.RecordID)
	assert.Empty(t, v.SaveError)

	stored, err := db.GetSessionRecord(v.RecordID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, model.RecordCompleted, stored.Status)
	require.NotNil(t, stored.OverallScore)
	assert.Equal(t, v.Result.LocalScorePercent, *stored.OverallScore)
	require.NotNil(t, stored.Flagged)
	assert.Equal(t, v.Result.EffectiveFlag, *stored.Flagged)
	assert.Len(t, stored.Responses, v.Total)

	require.NoError(t, rec.HandleCompleted(ctx, events.SessionCompleted{SessionID: s.ID(), Generation: 0}))
	records, err := db.ListSessionRecords(1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
