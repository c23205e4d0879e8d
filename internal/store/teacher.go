package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/pavelanni/swar/internal/model"
)

// CreateTeacher inserts a new teacher account.
func (s *Store) CreateTeacher(t model.Teacher) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO teachers (username, display_name, password_hash, created_at) VALUES (?, ?, ?, ?)`,
		t.Username, t.DisplayName, t.PasswordHash, time.Now(),
	)
	if err != nil {
		slog.Error("failed to create teacher", "username", t.Username, "error", err)
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	slog.Info("created teacher", "id", id, "username", t.Username)
	return id, nil
}

// GetTeacherByUsername returns a teacher by username, or nil if missing.
func (s *Store) GetTeacherByUsername(username string) (*model.Teacher, error) {
	return s.getTeacher(`WHERE username = ?`, username)
}

// GetTeacherByID returns a teacher by ID, or nil if missing.
func (s *Store) GetTeacherByID(id int64) (*model.Teacher, error) {
	return s.getTeacher(`WHERE id = ?`, id)
}

func (s *Store) getTeacher(where string, arg any) (*model.Teacher, error) {
	var t model.Teacher
	err := s.db.QueryRow(
		`SELECT id, username, display_name, password_hash, created_at FROM teachers `+where, arg,
	).Scan(&t.ID, &t.Username, &t.DisplayName, &t.PasswordHash, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// TeacherCount returns the total number of teachers.
func (s *Store) TeacherCount() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM teachers`).Scan(&count)
	return count, err
}
