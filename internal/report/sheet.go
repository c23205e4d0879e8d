package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/swar/internal/model"
)

// Summary renders one spreadsheet row per stored session.
func Summary(rows []model.RecordView, l Labels) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	sheet := l.SheetName
	index, err := f.NewSheet(sheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if sheet != "Sheet1" {
		if err := f.DeleteSheet("Sheet1"); err != nil {
			return nil, fmt.Errorf("delete default sheet: %w", err)
		}
	}

	headers := []string{
		l.Date, l.Subject, l.Grade, l.Assessment, l.Status, l.Score,
		l.Flagged, l.Correct, l.Total, l.AIStatus, l.Accuracy,
	}
	for i, h := range headers {
		if err := setCell(f, sheet, i+1, 1, h); err != nil {
			return nil, err
		}
	}

	for r, v := range rows {
		rec := v.Record
		values := []any{
			rec.CreatedAt.Format("2006-01-02 15:04"),
			v.Subject.Name,
			rec.Grade,
			l.assessment(rec.AssessmentType),
			string(rec.Status),
			"",
			"",
			rec.CorrectCount,
			rec.TotalCount,
			string(rec.AIStatus),
			"",
		}
		if rec.OverallScore != nil {
			values[5] = *rec.OverallScore
		}
		if rec.Flagged != nil {
			values[6] = l.yesNo(*rec.Flagged)
		}
		if rec.AI != nil {
			values[10] = rec.AI.OverallAccuracy
		}
		for c, val := range values {
			if err := setCell(f, sheet, c+1, r+2, val); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("write spreadsheet: %w", err)
	}
	return buf.Bytes(), nil
}

func setCell(f *excelize.File, sheet string, col, row int, value any) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return fmt.Errorf("cell name: %w", err)
	}
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		return fmt.Errorf("set %s: %w", cell, err)
	}
	return nil
}
