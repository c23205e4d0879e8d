package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/transcribe"
)

// Manager holds the active sessions of the process. Sessions share nothing
// but the read-only question bank.
type Manager struct {
	cfg        Config
	newAdapter func() transcribe.Adapter
	ctx        context.Context
	cancel     context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager creates a manager. cfg is the template for every session;
// newAdapter, when set, gives each session its own capture source.
func NewManager(cfg Config, newAdapter func() transcribe.Adapter) *Manager {
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		cfg:        cfg,
		newAdapter: newAdapter,
		ctx:        ctx,
		cancel:     cancel,
		sessions:   make(map[string]*Session),
	}
}

// Create starts a new session for a subject.
func (m *Manager) Create(subjectID int64, t model.AssessmentType, grade int) *Session {
	cfg := m.cfg
	if m.newAdapter != nil {
		cfg.Adapter = m.newAdapter()
	}
	id := uuid.NewString()
	s := New(m.ctx, id, subjectID, t, grade, cfg)

	m.mu.Lock()
	m.sessions[id] = s
	m.mu.Unlock()

	slog.Info("session created", "session_id", id, "subject_id", subjectID, "type", t, "grade", s.grade)
	return s
}

// Get returns an active session.
func (m *Manager) Get(id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, model.NewError(model.KindNotFound, "get session", fmt.Errorf("session %q not found", id))
	}
	return s, nil
}

// Remove forgets a session. An analysis still in flight finishes unobserved.
func (m *Manager) Remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// Len returns the number of active sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Close cancels every background analysis.
func (m *Manager) Close() {
	m.cancel()
}
