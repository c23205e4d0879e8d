package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/model"
)

type loginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type loginResponse struct {
	Token   string         `json:"token"`
	Teacher *model.Teacher `json:"teacher"`
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(auth, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// requireAuth is middleware that checks for a valid bearer token.
func (h *Handler) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r)
		if token == "" {
			h.unauthorized(w, r)
			return
		}

		authSess, err := h.store.GetAuthSession(token)
		if err != nil {
			slog.Error("failed to get auth session", "error", err)
			h.unauthorized(w, r)
			return
		}
		if authSess == nil {
			h.unauthorized(w, r)
			return
		}

		teacher, err := h.store.GetTeacherByID(authSess.TeacherID)
		if err != nil || teacher == nil {
			h.unauthorized(w, r)
			return
		}

		ctx := model.ContextWithTeacher(r.Context(), teacher)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="swar"`)
	writeMessage(w, http.StatusUnauthorized, "", appI18n.T(r.Context(), "ErrUnauthorized"))
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		writeMessage(w, http.StatusBadRequest, model.KindInput, appI18n.T(r.Context(), "ErrInvalidCredentials"))
		return
	}

	teacher, err := h.store.GetTeacherByUsername(req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if teacher == nil || bcrypt.CompareHashAndPassword([]byte(teacher.PasswordHash), []byte(req.Password)) != nil {
		slog.Info("login failed", "username", req.Username)
		writeMessage(w, http.StatusUnauthorized, "", appI18n.T(r.Context(), "ErrInvalidCredentials"))
		return
	}

	token, err := h.store.CreateAuthSession(teacher.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	slog.Info("teacher logged in", "teacher_id", teacher.ID, "username", teacher.Username)
	writeJSON(w, http.StatusOK, loginResponse{Token: token, Teacher: teacher})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAuthSession(bearerToken(r)); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
