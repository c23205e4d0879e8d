package store

import (
	"database/sql"

	"github.com/pavelanni/swar/internal/model"
)

// SetMetadata upserts a key-value pair in the metadata table.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = ?`,
		key, value, value,
	)
	return err
}

// GetMetadata returns the value for a metadata key.
// Returns empty string and nil error if the key is missing.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

// SetReportInfo stores the report letterhead.
func (s *Store) SetReportInfo(info model.ReportInfo) error {
	if err := s.SetMetadata("report_school", info.School); err != nil {
		return err
	}
	return s.SetMetadata("report_title", info.Title)
}

// GetReportInfo reads the report letterhead.
func (s *Store) GetReportInfo() (model.ReportInfo, error) {
	var info model.ReportInfo
	var err error
	if info.School, err = s.GetMetadata("report_school"); err != nil {
		return info, err
	}
	if info.Title, err = s.GetMetadata("report_title"); err != nil {
		return info, err
	}
	return info, nil
}
