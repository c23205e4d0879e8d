package report

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"

	"github.com/pavelanni/swar/internal/model"
)

// Input is everything printed on a session report.
type Input struct {
	Info        model.ReportInfo
	SubjectName string
	TeacherName string
	Type        model.AssessmentType
	Grade       int
	Date        time.Time
	Result      model.SessionResult
	AIStatus    model.AIStatus
	// Responses may be empty, in which case the breakdown is omitted.
	Responses []model.Response
}

// PDF renders a session report. The core fonts only cover Windows-1252, so
// labels should be in a Latin-script language.
func PDF(in Input, l Labels) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(false)
	if !in.Date.IsZero() {
		pdf.SetCreationDate(in.Date)
	}
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	title := l.Title
	if in.Info.Title != "" {
		title = in.Info.Title
	}
	pdf.SetTitle(title, true)
	pdf.SetCreator("swar", true)
	pdf.AddPage()

	if in.Info.School != "" {
		pdf.SetFont("Arial", "", 10)
		pdf.CellFormat(0, 6, tr(in.Info.School), "", 1, "C", false, 0, "")
	}
	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, tr(title), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	pdf.SetFont("Arial", "", 11)
	field := func(label, value string) {
		pdf.SetFont("Arial", "B", 11)
		pdf.CellFormat(40, 7, tr(label+":"), "", 0, "L", false, 0, "")
		pdf.SetFont("Arial", "", 11)
		pdf.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
	}
	field(l.Subject, in.SubjectName)
	field(l.Grade, fmt.Sprint(in.Grade))
	field(l.Assessment, l.assessment(in.Type))
	if !in.Date.IsZero() {
		field(l.Date, in.Date.Format("2006-01-02"))
	}
	if in.TeacherName != "" {
		field(l.Teacher, in.TeacherName)
	}
	pdf.Ln(4)

	res := in.Result
	field(l.LocalScore, fmt.Sprintf("%d%% (%d/%d)", res.LocalScorePercent, res.CorrectCount, res.TotalCount))
	if res.EffectiveFlag {
		pdf.SetTextColor(180, 30, 30)
	} else {
		pdf.SetTextColor(30, 120, 30)
	}
	pdf.SetFont("Arial", "B", 12)
	pdf.CellFormat(0, 8, tr(l.flag(res.EffectiveFlag)), "", 1, "L", false, 0, "")
	pdf.SetTextColor(0, 0, 0)
	pdf.Ln(4)

	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, tr(l.AISection), "B", 1, "L", false, 0, "")
	pdf.Ln(2)
	if a := res.AI; a != nil {
		field(l.Accuracy, fmt.Sprintf("%.0f%%", a.OverallAccuracy))
		field(l.Confidence, fmt.Sprintf("%.0f%%", a.Confidence))
		pdf.SetFont("Arial", "", 10)
		pdf.MultiCell(0, 5, tr(a.DetailedAnalysis), "", "L", false)
		if patterns := patterns(a); len(patterns) > 0 {
			pdf.Ln(2)
			pdf.SetFont("Arial", "B", 10)
			pdf.CellFormat(0, 6, tr(l.ErrorPatterns), "", 1, "L", false, 0, "")
			pdf.SetFont("Arial", "", 10)
			for _, p := range patterns {
				pdf.CellFormat(0, 5, tr("- "+p), "", 1, "L", false, 0, "")
			}
		}
	} else {
		pdf.SetFont("Arial", "I", 10)
		pdf.MultiCell(0, 5, tr(l.aiStatus(in.AIStatus)), "", "L", false)
	}
	pdf.Ln(4)

	if len(in.Responses) > 0 {
		breakdown(pdf, tr, in.Responses, l)
		pdf.Ln(4)
	}

	pdf.SetFont("Arial", "I", 8)
	pdf.MultiCell(0, 4, tr(l.Disclaimer), "", "L", false)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func breakdown(pdf *gofpdf.Fpdf, tr func(string) string, responses []model.Response, l Labels) {
	pdf.SetFont("Arial", "B", 13)
	pdf.CellFormat(0, 8, tr(l.Breakdown), "B", 1, "L", false, 0, "")
	pdf.Ln(2)

	widths := []float64{10, 60, 60, 20, 20}
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"#", l.Expected, l.Heard, l.Correct, l.Time} {
		pdf.CellFormat(widths[i], 7, tr(h), "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 9)
	for i, r := range responses {
		cells := []string{
			fmt.Sprint(i + 1),
			clip(r.ExpectedAnswer, 38),
			clip(r.Transcript, 38),
			l.yesNo(r.IsCorrect),
			fmt.Sprintf("%.1fs", float64(r.LatencyMs)/1000),
		}
		for j, c := range cells {
			align := "L"
			if j == 0 || j >= 3 {
				align = "C"
			}
			pdf.CellFormat(widths[j], 6, tr(c), "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}
}

// patterns lists the type-specific findings of an analysis.
func patterns(a *model.AIAnalysis) []string {
	var out []string
	add := func(name string, items model.StringList) {
		if len(items) > 0 {
			out = append(out, name+": "+strings.Join(items, ", "))
		}
	}
	add("Phoneme confusions", a.PhonemeConfusions)
	add("Letter reversals", a.LetterReversals)
	add("Word substitutions", a.WordSubstitutions)
	add("Transcoding errors", a.TranscodingErrors)
	add("Sequence errors", a.SequenceErrors)
	if a.PlaceValueErrors != nil && *a.PlaceValueErrors {
		out = append(out, "Place-value errors")
	}
	if a.OperationConfusion != nil && *a.OperationConfusion {
		out = append(out, "Operation confusion")
	}
	if a.SyllableStressErrors != nil && *a.SyllableStressErrors {
		out = append(out, "Syllable stress errors")
	}
	return out
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
