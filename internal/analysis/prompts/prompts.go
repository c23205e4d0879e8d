package prompts

import (
	"bytes"
	"embed"
	"fmt"
	"regexp"
	"strings"
	"text/template"
	"unicode/utf8"

	"github.com/pavelanni/swar/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.tmpl"))

var (
	studentAnswerRegex      = regexp.MustCompile(`(?i)</?\s*student-answer\b[^>]*>`)
	systemInstructionsRegex = regexp.MustCompile(`(?i)</?\s*system-instructions\b[^>]*>`)
)

const maxTranscriptRunes = 2000

// SystemData holds template data for the rubric prompts.
type SystemData struct {
	Grade int
}

// ResponseData is one numbered response in the session prompt.
type ResponseData struct {
	Number         int
	QuestionType   string
	ExpectedAnswer string
	Transcript     string
	ResponseTimeMs int64
}

// SessionData holds template data for the session prompt.
type SessionData struct {
	Responses []ResponseData
}

// System builds the rubric prompt for an assessment type.
func System(t model.AssessmentType, grade int) (string, error) {
	var name string
	switch t {
	case model.Dyslexia:
		name = "dyslexia.tmpl"
	case model.Dyscalculia:
		name = "dyscalculia.tmpl"
	default:
		return "", fmt.Errorf("no rubric for assessment type %q", t)
	}
	return execute(name, SystemData{Grade: model.ClampGrade(grade)})
}

// Session builds the user prompt listing every response of a session.
func Session(req model.AnalysisRequest) (string, error) {
	data := SessionData{Responses: make([]ResponseData, 0, len(req.AllResponses))}
	for i, r := range req.AllResponses {
		data.Responses = append(data.Responses, ResponseData{
			Number:         i + 1,
			QuestionType:   r.QuestionType,
			ExpectedAnswer: r.ExpectedAnswer,
			Transcript:     sanitizeTranscript(r.Transcript),
			ResponseTimeMs: r.ResponseTimeMs,
		})
	}
	return execute("session.tmpl", data)
}

func execute(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("execute %s: %w", name, err)
	}
	return buf.String(), nil
}

func sanitizeTranscript(s string) string {
	s = studentAnswerRegex.ReplaceAllString(s, "")
	s = systemInstructionsRegex.ReplaceAllString(s, "")
	s = strings.TrimSpace(s)

	if s == "" {
		return "[No response recorded]"
	}

	if utf8.RuneCountInString(s) > maxTranscriptRunes {
		runes := []rune(s)
		s = string(runes[:maxTranscriptRunes]) + " [truncated]"
	}
	return s
}
