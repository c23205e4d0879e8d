package store

import (
	"fmt"

	"github.com/pavelanni/swar/internal/model"
)

// ExportRecords joins every record of a teacher with its subject, for the
// spreadsheet summary.
func (s *Store) ExportRecords(teacherID int64) ([]model.RecordView, error) {
	records, err := s.ListSessionRecords(teacherID)
	if err != nil {
		return nil, fmt.Errorf("list records: %w", err)
	}

	subjects := make(map[int64]model.Subject)
	var views []model.RecordView
	for _, rec := range records {
		sub, ok := subjects[rec.SubjectID]
		if !ok {
			got, err := s.GetSubject(rec.SubjectID)
			if err != nil {
				return nil, fmt.Errorf("get subject %d: %w", rec.SubjectID, err)
			}
			if got != nil {
				sub = *got
			}
			subjects[rec.SubjectID] = sub
		}
		views = append(views, model.RecordView{Record: rec, Subject: sub})
	}
	return views, nil
}
