package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/pavelanni/swar/internal/model"

	_ "modernc.org/sqlite"
)

const schemaVersion = "1"

type Store struct {
	db *sql.DB
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every pooled connection would otherwise get its own empty database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS teachers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		username TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS auth_sessions (
		id TEXT PRIMARY KEY,
		teacher_id INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		expires_at DATETIME NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES teachers(id)
	);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS subjects (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		teacher_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		age INTEGER,
		grade INTEGER NOT NULL,
		created_at DATETIME NOT NULL,
		FOREIGN KEY (teacher_id) REFERENCES teachers(id)
	);

	CREATE TABLE IF NOT EXISTS session_records (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		generation INTEGER NOT NULL DEFAULT 0,
		subject_id INTEGER NOT NULL,
		assessment_type TEXT NOT NULL,
		grade INTEGER NOT NULL,
		status TEXT NOT NULL,
		overall_score INTEGER,
		flagged INTEGER,
		correct_count INTEGER NOT NULL DEFAULT 0,
		total_count INTEGER NOT NULL DEFAULT 0,
		ai_status TEXT NOT NULL DEFAULT 'none',
		ai_analysis TEXT,
		created_at DATETIME NOT NULL,
		UNIQUE (session_id, generation),
		FOREIGN KEY (subject_id) REFERENCES subjects(id)
	);

	CREATE TABLE IF NOT EXISTS record_responses (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		record_id TEXT NOT NULL,
		position INTEGER NOT NULL,
		exercise_id INTEGER NOT NULL,
		prompt TEXT NOT NULL,
		expected_answer TEXT NOT NULL,
		kind TEXT NOT NULL,
		transcript TEXT NOT NULL,
		is_correct INTEGER NOT NULL,
		latency_ms INTEGER NOT NULL,
		FOREIGN KEY (record_id) REFERENCES session_records(id)
	);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return err
	}
	return s.SetMetadata("schema_version", schemaVersion)
}

// CreateSubject adds a subject to a teacher's roster.
func (s *Store) CreateSubject(sub model.Subject) (int64, error) {
	res, err := s.db.Exec(
		`INSERT INTO subjects (teacher_id, name, age, grade, created_at) VALUES (?, ?, ?, ?, ?)`,
		sub.TeacherID, sub.Name, sub.Age, sub.Grade, time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func scanSubject(sc interface{ Scan(...any) error }) (model.Subject, error) {
	var sub model.Subject
	var age sql.NullInt64
	err := sc.Scan(&sub.ID, &sub.TeacherID, &sub.Name, &age, &sub.Grade, &sub.CreatedAt)
	if age.Valid {
		a := int(age.Int64)
		sub.Age = &a
	}
	return sub, err
}

// ListSubjects returns the roster of a teacher, newest first.
func (s *Store) ListSubjects(teacherID int64) ([]model.Subject, error) {
	rows, err := s.db.Query(
		`SELECT id, teacher_id, name, age, grade, created_at FROM subjects
		 WHERE teacher_id = ? ORDER BY id DESC`, teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var subjects []model.Subject
	for rows.Next() {
		sub, err := scanSubject(rows)
		if err != nil {
			return nil, err
		}
		subjects = append(subjects, sub)
	}
	return subjects, rows.Err()
}

// GetSubject returns a subject by ID, or nil if it does not exist.
func (s *Store) GetSubject(id int64) (*model.Subject, error) {
	sub, err := scanSubject(s.db.QueryRow(
		`SELECT id, teacher_id, name, age, grade, created_at FROM subjects WHERE id = ?`, id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

// CreateSessionRecord writes a finished session with its responses. Writing
// the same session generation twice returns the first record's ID.
func (s *Store) CreateSessionRecord(rec model.SessionRecord) (string, error) {
	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer tx.Rollback()

	var existing string
	err = tx.QueryRow(
		`SELECT id FROM session_records WHERE session_id = ? AND generation = ?`,
		rec.SessionID, rec.Generation,
	).Scan(&existing)
	if err == nil {
		return existing, nil
	}
	if err != sql.ErrNoRows {
		return "", err
	}

	var aiJSON *string
	if rec.AI != nil {
		b, err := json.Marshal(rec.AI)
		if err != nil {
			return "", fmt.Errorf("marshal analysis: %w", err)
		}
		str := string(b)
		aiJSON = &str
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	_, err = tx.Exec(
		`INSERT INTO session_records (id, session_id, generation, subject_id, assessment_type, grade, status,
		 overall_score, flagged, correct_count, total_count, ai_status, ai_analysis, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SessionID, rec.Generation, rec.SubjectID, rec.AssessmentType, rec.Grade, rec.Status,
		rec.OverallScore, rec.Flagged, rec.CorrectCount, rec.TotalCount, rec.AIStatus, aiJSON, rec.CreatedAt,
	)
	if err != nil {
		return "", err
	}

	for i, r := range rec.Responses {
		_, err := tx.Exec(
			`INSERT INTO record_responses (record_id, position, exercise_id, prompt, expected_answer, kind,
			 transcript, is_correct, latency_ms) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, i, r.ExerciseID, r.Prompt, r.ExpectedAnswer, r.Kind, r.Transcript, r.IsCorrect, r.LatencyMs,
		)
		if err != nil {
			return "", err
		}
	}
	return rec.ID, tx.Commit()
}

const recordColumns = `id, session_id, generation, subject_id, assessment_type, grade, status,
	overall_score, flagged, correct_count, total_count, ai_status, ai_analysis, created_at`

func scanRecord(sc interface{ Scan(...any) error }) (model.SessionRecord, error) {
	var rec model.SessionRecord
	var score, flagged sql.NullInt64
	var ai sql.NullString
	err := sc.Scan(&rec.ID, &rec.SessionID, &rec.Generation, &rec.SubjectID, &rec.AssessmentType, &rec.Grade,
		&rec.Status, &score, &flagged, &rec.CorrectCount, &rec.TotalCount, &rec.AIStatus, &ai, &rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	if score.Valid {
		v := int(score.Int64)
		rec.OverallScore = &v
	}
	if flagged.Valid {
		v := flagged.Int64 != 0
		rec.Flagged = &v
	}
	if ai.Valid {
		var a model.AIAnalysis
		if err := json.Unmarshal([]byte(ai.String), &a); err != nil {
			return rec, fmt.Errorf("decode analysis of record %s: %w", rec.ID, err)
		}
		rec.AI = &a
	}
	return rec, nil
}

// GetSessionRecord returns a record with its responses, or nil if missing.
func (s *Store) GetSessionRecord(id string) (*model.SessionRecord, error) {
	rec, err := scanRecord(s.db.QueryRow(`SELECT `+recordColumns+` FROM session_records WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.Responses, err = s.recordResponses(id)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) recordResponses(recordID string) ([]model.Response, error) {
	rows, err := s.db.Query(
		`SELECT exercise_id, prompt, expected_answer, kind, transcript, is_correct, latency_ms
		 FROM record_responses WHERE record_id = ? ORDER BY position`, recordID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var responses []model.Response
	for rows.Next() {
		var r model.Response
		if err := rows.Scan(&r.ExerciseID, &r.Prompt, &r.ExpectedAnswer, &r.Kind, &r.Transcript, &r.IsCorrect, &r.LatencyMs); err != nil {
			return nil, err
		}
		responses = append(responses, r)
	}
	return responses, rows.Err()
}

// ListSessionRecords returns the records of a teacher's subjects, newest
// first, without responses.
func (s *Store) ListSessionRecords(teacherID int64) ([]model.SessionRecord, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.session_id, r.generation, r.subject_id, r.assessment_type, r.grade, r.status,
		 r.overall_score, r.flagged, r.correct_count, r.total_count, r.ai_status, r.ai_analysis, r.created_at
		 FROM session_records r JOIN subjects sub ON sub.id = r.subject_id
		 WHERE sub.teacher_id = ? ORDER BY r.created_at DESC, r.id`, teacherID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.SessionRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Stats summarizes a teacher's roster and session history.
func (s *Store) Stats(teacherID int64) (model.DashboardStats, error) {
	var st model.DashboardStats
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM subjects WHERE teacher_id = ?`, teacherID,
	).Scan(&st.TotalSubjects); err != nil {
		return st, err
	}

	var avg sql.NullFloat64
	err := s.db.QueryRow(
		`SELECT COUNT(*), COALESCE(SUM(CASE WHEN r.flagged = 1 THEN 1 ELSE 0 END), 0), AVG(r.overall_score)
		 FROM session_records r JOIN subjects sub ON sub.id = r.subject_id
		 WHERE sub.teacher_id = ?`, teacherID,
	).Scan(&st.TotalSessions, &st.Flagged, &avg)
	if err != nil {
		return st, err
	}
	if avg.Valid {
		st.AverageScore = int(math.Floor(avg.Float64 + 0.5))
	}
	return st, nil
}
