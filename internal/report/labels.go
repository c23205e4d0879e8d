// Package report renders finished sessions as a PDF report for one learner
// and as a spreadsheet summary of a teacher's session history.
package report

import "github.com/pavelanni/swar/internal/model"

// Labels are the user-visible strings of the exported documents.
type Labels struct {
	Title         string
	Subject       string
	Grade         string
	Assessment    string
	Date          string
	Teacher       string
	LocalScore    string
	Flagged       string
	NotFlagged    string
	AISection     string
	Accuracy      string
	Confidence    string
	AIPending     string
	AIFailed      string
	AITimedOut    string
	AINone        string
	Breakdown     string
	Expected      string
	Heard         string
	Correct       string
	Time          string
	Yes           string
	No            string
	Disclaimer    string
	SheetName     string
	Status        string
	Score         string
	Total         string
	AIStatus      string
	Dyslexia      string
	Dyscalculia   string
	ErrorPatterns string
}

// DefaultLabels returns the English labels.
func DefaultLabels() Labels {
	return Labels{
		Title:         "Screening Report",
		Subject:       "Student",
		Grade:         "Grade",
		Assessment:    "Assessment",
		Date:          "Date",
		Teacher:       "Teacher",
		LocalScore:    "Score",
		Flagged:       "Flagged for follow-up",
		NotFlagged:    "No concerns flagged",
		AISection:     "AI analysis",
		Accuracy:      "Overall accuracy",
		Confidence:    "Confidence",
		AIPending:     "AI analysis is still running.",
		AIFailed:      "AI analysis was unavailable; the local score decides.",
		AITimedOut:    "AI analysis timed out; the local score decides.",
		AINone:        "No AI analysis was requested.",
		Breakdown:     "Response breakdown",
		Expected:      "Expected",
		Heard:         "Heard",
		Correct:       "Correct",
		Time:          "Time",
		Yes:           "yes",
		No:            "no",
		Disclaimer:    "This is a screening aid, not a diagnosis. Refer flagged students to a specialist.",
		SheetName:     "Sessions",
		Status:        "Status",
		Score:         "Score (%)",
		Total:         "Total",
		AIStatus:      "AI status",
		Dyslexia:      "Dyslexia",
		Dyscalculia:   "Dyscalculia",
		ErrorPatterns: "Observed patterns",
	}
}

func (l Labels) assessment(t model.AssessmentType) string {
	switch t {
	case model.Dyslexia:
		return l.Dyslexia
	case model.Dyscalculia:
		return l.Dyscalculia
	}
	return string(t)
}

func (l Labels) flag(flagged bool) string {
	if flagged {
		return l.Flagged
	}
	return l.NotFlagged
}

func (l Labels) yesNo(b bool) string {
	if b {
		return l.Yes
	}
	return l.No
}

func (l Labels) aiStatus(s model.AIStatus) string {
	switch s {
	case model.AIStatusPending:
		return l.AIPending
	case model.AIStatusFailed:
		return l.AIFailed
	case model.AIStatusTimedOut:
		return l.AITimedOut
	}
	return l.AINone
}
