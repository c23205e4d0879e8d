package model

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// AssessmentType selects the exercise bank and the analysis rubric.
type AssessmentType string

const (
	// Dyslexia screens reading and phonological processing.
	Dyslexia AssessmentType = "dyslexia"
	// Dyscalculia screens number sense and arithmetic.
	Dyscalculia AssessmentType = "dyscalculia"
)

// AssessmentTypes lists every supported assessment type in a stable order.
var AssessmentTypes = []AssessmentType{Dyslexia, Dyscalculia}

// ParseAssessmentType accepts the wire spelling of an assessment type.
func ParseAssessmentType(s string) (AssessmentType, error) {
	switch AssessmentType(strings.ToLower(strings.TrimSpace(s))) {
	case Dyslexia:
		return Dyslexia, nil
	case Dyscalculia:
		return Dyscalculia, nil
	}
	return "", NewError(KindInput, "parse assessment type", fmt.Errorf("unknown assessment type %q", s))
}

// ExerciseKind describes what a learner is asked to produce.
type ExerciseKind string

const (
	KindPhoneme     ExerciseKind = "phoneme"
	KindWord        ExerciseKind = "word"
	KindSentence    ExerciseKind = "sentence"
	KindNumber      ExerciseKind = "number"
	KindCalculation ExerciseKind = "calculation"
)

const (
	// MinGrade and MaxGrade bound the school grades the bank covers.
	MinGrade = 1
	MaxGrade = 12
)

// ClampGrade maps any integer onto [MinGrade, MaxGrade].
func ClampGrade(grade int) int {
	if grade < MinGrade {
		return MinGrade
	}
	if grade > MaxGrade {
		return MaxGrade
	}
	return grade
}

// Exercise is a single spoken-response prompt.
type Exercise struct {
	ID             int          `json:"id"`
	Prompt         string       `json:"prompt"`
	ExpectedAnswer string       `json:"expected_answer"`
	Kind           ExerciseKind `json:"kind"`
}

// Response is the learner's submitted answer to one exercise.
type Response struct {
	ExerciseID     int          `json:"exercise_id"`
	Prompt         string       `json:"prompt"`
	ExpectedAnswer string       `json:"expected_answer"`
	Kind           ExerciseKind `json:"kind"`
	Transcript     string       `json:"transcript"`
	IsCorrect      bool         `json:"is_correct"`
	LatencyMs      int64        `json:"latency_ms"`
}

// Phase is the lifecycle state of an assessment session.
type Phase string

const (
	PhaseInProgress         Phase = "in_progress"
	PhaseAwaitingAIAnalysis Phase = "awaiting_ai_analysis"
	PhaseComplete           Phase = "complete"
)

// AIStatus tells a reader what happened to the background analysis.
type AIStatus string

const (
	AIStatusNone     AIStatus = "none"
	AIStatusPending  AIStatus = "pending"
	AIStatusArrived  AIStatus = "arrived"
	AIStatusFailed   AIStatus = "failed"
	AIStatusTimedOut AIStatus = "timed_out"
)

// AIErrorKind classifies a failed call to the analysis endpoint.
type AIErrorKind string

const (
	AIRateLimited     AIErrorKind = "rate_limited"
	AIPaymentRequired AIErrorKind = "payment_required"
	AIUpstreamError   AIErrorKind = "upstream_error"
)

// AIAnalysis is the normalized verdict of the language model. Only the
// common fields are always populated; the rest depend on the assessment type.
type AIAnalysis struct {
	OverallAccuracy  float64 `json:"overallAccuracy"`
	Confidence       float64 `json:"confidence"`
	DetailedAnalysis string  `json:"detailedAnalysis"`
	IsFlagged        bool    `json:"isFlagged"`

	PhonemeErrorRate     *float64   `json:"phonemeErrorRate,omitempty"`
	PhonemeConfusions    StringList `json:"phonemeConfusions,omitempty"`
	SyllableStressErrors *bool      `json:"syllableStressErrors,omitempty"`
	LetterReversals      StringList `json:"letterReversals,omitempty"`
	WordSubstitutions    StringList `json:"wordSubstitutions,omitempty"`

	TranscodingErrors   StringList `json:"transcodingErrors,omitempty"`
	PlaceValueErrors    *bool      `json:"placeValueErrors,omitempty"`
	CountingAccuracy    *float64   `json:"countingAccuracy,omitempty"`
	OperationConfusion  *bool      `json:"operationConfusion,omitempty"`
	SequenceErrors      StringList `json:"sequenceErrors,omitempty"`
	CalculationAccuracy *float64   `json:"calculationAccuracy,omitempty"`

	// Degraded is set when the payload could not be used as returned.
	Degraded  bool        `json:"degraded,omitempty"`
	ErrorKind AIErrorKind `json:"errorKind,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// Failed reports whether the analysis stands in for a transport failure.
func (a AIAnalysis) Failed() bool {
	return a.ErrorKind != ""
}

// SessionResult is derived from responses and the optional analysis.
type SessionResult struct {
	LocalScorePercent int         `json:"local_score_percent"`
	CorrectCount      int         `json:"correct_count"`
	TotalCount        int         `json:"total_count"`
	LocalFlag         bool        `json:"local_flag"`
	AI                *AIAnalysis `json:"ai_analysis,omitempty"`
	EffectiveFlag     bool        `json:"effective_flag"`
}

// AnalysisResponse is one entry of the analysis wire request.
type AnalysisResponse struct {
	Transcript     string `json:"transcript"`
	ExpectedAnswer string `json:"expectedAnswer"`
	QuestionType   string `json:"questionType"`
	ResponseTimeMs int64  `json:"responseTimeMs"`
}

// AnalysisRequest is the payload sent for a whole-session analysis.
type AnalysisRequest struct {
	SessionType  AssessmentType     `json:"sessionType"`
	Grade        int                `json:"grade"`
	AllResponses []AnalysisResponse `json:"allResponses"`
}

// NewAnalysisRequest pairs each response with its expectation and latency.
func NewAnalysisRequest(t AssessmentType, grade int, responses []Response) AnalysisRequest {
	req := AnalysisRequest{
		SessionType:  t,
		Grade:        grade,
		AllResponses: make([]AnalysisResponse, 0, len(responses)),
	}
	for _, r := range responses {
		req.AllResponses = append(req.AllResponses, AnalysisResponse{
			Transcript:     r.Transcript,
			ExpectedAnswer: r.ExpectedAnswer,
			QuestionType:   string(r.Kind),
			ResponseTimeMs: r.LatencyMs,
		})
	}
	return req
}

// Teacher owns a roster of subjects.
type Teacher struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	DisplayName  string    `json:"display_name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Subject is a child on a teacher's roster.
type Subject struct {
	ID        int64     `json:"id"`
	TeacherID int64     `json:"teacher_id"`
	Name      string    `json:"name"`
	Age       *int      `json:"age,omitempty"`
	Grade     int       `json:"grade"`
	CreatedAt time.Time `json:"created_at"`
}

// RecordStatus is the persisted status of a session record.
type RecordStatus string

const (
	RecordInProgress RecordStatus = "in_progress"
	RecordCompleted  RecordStatus = "completed"
)

// SessionRecord is the persisted outcome of a finished session.
type SessionRecord struct {
	ID             string         `json:"id"`
	SessionID      string         `json:"session_id"`
	Generation     int            `json:"generation"`
	SubjectID      int64          `json:"subject_id"`
	AssessmentType AssessmentType `json:"assessment_type"`
	Grade          int            `json:"grade"`
	Status         RecordStatus   `json:"status"`
	OverallScore   *int           `json:"overall_score,omitempty"`
	Flagged        *bool          `json:"flagged,omitempty"`
	CorrectCount   int            `json:"correct_count"`
	TotalCount     int            `json:"total_count"`
	AIStatus       AIStatus       `json:"ai_status"`
	AI             *AIAnalysis    `json:"ai_analysis,omitempty"`
	Responses      []Response     `json:"responses,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// RecordView joins a record with the subject it belongs to.
type RecordView struct {
	Record  SessionRecord `json:"record"`
	Subject Subject       `json:"subject"`
}

// DashboardStats summarizes a teacher's roster and history.
type DashboardStats struct {
	TotalSubjects int `json:"total_subjects"`
	TotalSessions int `json:"total_sessions"`
	Flagged       int `json:"flagged"`
	AverageScore  int `json:"average_score"`
}

// ReportInfo is the letterhead printed on exported reports.
type ReportInfo struct {
	School string `json:"school"`
	Title  string `json:"title"`
}

// AuthSession is a bearer token issued to a teacher at login.
type AuthSession struct {
	ID        string
	TeacherID int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Config holds runtime parameters set via CLI flags.
type Config struct {
	Lang          string        // UI language for messages and report labels
	FlagThreshold int           // local flag when score is below this percentage
	AITimeout     time.Duration // bound on the background analysis
	CORSOrigins   []string
}

type ctxKey int

const teacherKey ctxKey = iota

// ContextWithTeacher stores the authenticated teacher in ctx.
func ContextWithTeacher(ctx context.Context, t *Teacher) context.Context {
	return context.WithValue(ctx, teacherKey, t)
}

// TeacherFromContext returns the authenticated teacher, or nil.
func TeacherFromContext(ctx context.Context) *Teacher {
	t, _ := ctx.Value(teacherKey).(*Teacher)
	return t
}
