package handler

import (
	"errors"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
)

const (
	minAge = 3
	maxAge = 25
)

type subjectRequest struct {
	Name  string `json:"name" validate:"required,max=100"`
	Age   *int   `json:"age" validate:"omitempty,min=3,max=25"`
	Grade int    `json:"grade" validate:"min=1,max=12"`
}

type statsResponse struct {
	model.DashboardStats
	FlaggedSummary string `json:"flagged_summary"`
}

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("assessment_type", func(fl validator.FieldLevel) bool {
		_, err := model.ParseAssessmentType(fl.Field().String())
		return err == nil
	})
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// validationMessage localizes the first failed field of a validation error.
func validationMessage(r *http.Request, err error) string {
	ctx := r.Context()
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return appI18n.T(ctx, "ErrInvalidInput")
	}
	switch verrs[0].Field() {
	case "name":
		return appI18n.T(ctx, "ErrNameRequired")
	case "grade":
		return appI18n.Td(ctx, "ErrInvalidGrade", map[string]any{"Min": model.MinGrade, "Max": model.MaxGrade})
	case "age":
		return appI18n.Td(ctx, "ErrInvalidAge", map[string]any{"Min": minAge, "Max": maxAge})
	case "type":
		return appI18n.T(ctx, "ErrInvalidAssessmentType")
	}
	return appI18n.T(ctx, "ErrInvalidInput")
}

func (h *Handler) handleListSubjects(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	subjects, err := h.store.ListSubjects(teacher.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if subjects == nil {
		subjects = []model.Subject{}
	}
	writeJSON(w, http.StatusOK, subjects)
}

func (h *Handler) handleCreateSubject(w http.ResponseWriter, r *http.Request) {
	var req subjectRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, model.KindInput, validationMessage(r, err))
		return
	}

	teacher := model.TeacherFromContext(r.Context())
	sub := model.Subject{TeacherID: teacher.ID, Name: req.Name, Age: req.Age, Grade: req.Grade}
	id, err := h.store.CreateSubject(sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	created, err := h.store.GetSubject(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	teacher := model.TeacherFromContext(r.Context())
	stats, err := h.store.Stats(teacher.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		DashboardStats: stats,
		FlaggedSummary: appI18n.Tp(r.Context(), "FlaggedSummary", stats.Flagged),
	})
}

// ownedSubject returns a subject of the authenticated teacher.
func (h *Handler) ownedSubject(r *http.Request, id int64) (*model.Subject, error) {
	sub, err := h.store.GetSubject(id)
	if err != nil {
		return nil, err
	}
	teacher := model.TeacherFromContext(r.Context())
	if sub == nil || sub.TeacherID != teacher.ID {
		return nil, model.NewError(model.KindNotFound, "get subject", errors.New("no such subject"))
	}
	return sub, nil
}
