package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/pavelanni/swar/internal/model"
	"github.com/pavelanni/swar/internal/report"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (h *Handler) handleListRecords(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	views, err := h.store.ExportRecords(teacher.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if views == nil {
		views = []model.RecordView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// ownedRecord returns a stored record of one of the teacher's subjects.
func (h *Handler) ownedRecord(r *http.Request) (*model.SessionRecord, *model.Subject, error) {
	rec, err := h.store.GetSessionRecord(chi.URLParam(r, "recordID"))
	if err != nil {
		return nil, nil, err
	}
	if rec == nil {
		return nil, nil, model.NewError(model.KindNotFound, "get record", errors.New("no such record"))
	}
	sub, err := h.ownedSubject(r, rec.SubjectID)
	if err != nil {
		return nil, nil, err
	}
	return rec, sub, nil
}

func (h *Handler) handleGetRecord(w http.ResponseWriter, r *http.Request) {
	rec, sub, err := h.ownedRecord(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.RecordView{Record: *rec, Subject: *sub})
}

// handleRecordReport renders the summary PDF of a stored session.
func (h *Handler) handleRecordReport(w http.ResponseWriter, r *http.Request) {
	rec, sub, err := h.ownedRecord(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	info, err := h.store.GetReportInfo()
	if err != nil {
		writeError(w, r, err)
		return
	}
	teacher := model.TeacherFromContext(r.Context())
	out, err := RecordReport(r.Context(), info, rec, sub, teacher.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeFile(w, "application/pdf", "record-"+rec.ID+".pdf", out)
}

// RecordReport renders a stored session as a summary PDF. The response
// breakdown is only printed for live sessions.
func RecordReport(ctx context.Context, info model.ReportInfo, rec *model.SessionRecord, sub *model.Subject, teacherName string) ([]byte, error) {
	out, err := report.PDF(report.Input{
		Info:        info,
		SubjectName: sub.Name,
		TeacherName: teacherName,
		Type:        rec.AssessmentType,
		Grade:       rec.Grade,
		Date:        rec.CreatedAt,
		Result:      resultFromRecord(rec),
		AIStatus:    rec.AIStatus,
	}, ReportLabels(ctx))
	if err != nil {
		return nil, fmt.Errorf("render record report: %w", err)
	}
	return out, nil
}

func (h *Handler) handleExportRecords(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	views, err := h.store.ExportRecords(teacher.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out, err := report.Summary(views, ReportLabels(r.Context()))
	if err != nil {
		writeError(w, r, fmt.Errorf("render summary: %w", err))
		return
	}
	writeFile(w, xlsxContentType, "sessions-"+time.Now().Format("20060102")+".xlsx", out)
}

// resultFromRecord rebuilds the printable result of a stored session.
func resultFromRecord(rec *model.SessionRecord) model.SessionResult {
	res := model.SessionResult{
		CorrectCount: rec.CorrectCount,
		TotalCount:   rec.TotalCount,
		AI:           rec.AI,
	}
	if rec.OverallScore != nil {
		res.LocalScorePercent = *rec.OverallScore
	}
	if rec.Flagged != nil {
		res.EffectiveFlag = *rec.Flagged
	}
	return res
}
