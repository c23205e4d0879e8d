package report

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/pavelanni/swar/internal/model"
)

var reportDate = time.Date(2026, 2, 14, 10, 30, 0, 0, time.UTC)

func sampleInput() Input {
	return Input{
		Info:        model.ReportInfo{School: "Green Valley School"},
		SubjectName: "Riya Sharma",
		TeacherName: "Ms Anita",
		Type:        model.Dyslexia,
		Grade:       3,
		Date:        reportDate,
		AIStatus:    model.AIStatusArrived,
		Result: model.SessionResult{
			LocalScorePercent: 63, CorrectCount: 5, TotalCount: 8, LocalFlag: true, EffectiveFlag: true,
			AI: &model.AIAnalysis{
				OverallAccuracy:   58,
				Confidence:        72,
				DetailedAnalysis:  "Frequent b and d substitutions.",
				IsFlagged:         true,
				PhonemeConfusions: model.StringList{"b/d"},
			},
		},
		Responses: []model.Response{
			{ExpectedAnswer: "apple", Transcript: "apple", IsCorrect: true, LatencyMs: 1200},
			{ExpectedAnswer: "butterfly", Transcript: "dutterfly", LatencyMs: 3400},
		},
	}
}

func TestPDF(t *testing.T) {
	out, err := PDF(sampleInput(), DefaultLabels())
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(out, []byte("%PDF-")))

	for _, want := range []string{
		"Green Valley School", "Screening Report", "Riya Sharma", "Dyslexia", "2026-02-14",
		"63% \\(5/8\\)", "Flagged for follow-up", "Overall accuracy", "Frequent b and d substitutions.",
		"Phoneme confusions: b/d", "Response breakdown", "dutterfly", "3.4s",
	} {
		assert.True(t, bytes.Contains(out, []byte(want)), "pdf should contain %q", want)
	}
}

func TestPDFWithoutResponsesOrAnalysis(t *testing.T) {
	in := sampleInput()
	in.Responses = nil
	in.Result.AI = nil
	in.Result.EffectiveFlag = false
	in.AIStatus = model.AIStatusTimedOut
	in.Info = model.ReportInfo{Title: "Term 2 screening"}

	out, err := PDF(in, DefaultLabels())
	require.NoError(t, err)
	assert.False(t, bytes.Contains(out, []byte("Response breakdown")))
	assert.True(t, bytes.Contains(out, []byte("AI analysis timed out")))
	assert.True(t, bytes.Contains(out, []byte("Term 2 screening")))
	assert.True(t, bytes.Contains(out, []byte("No concerns flagged")))
}

func TestPDFUsesLabels(t *testing.T) {
	l := DefaultLabels()
	l.Title = "Informe de cribado"
	l.Dyslexia = "Dislexia"
	out, err := PDF(sampleInput(), l)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(out, []byte("Informe de cribado")))
	assert.True(t, bytes.Contains(out, []byte("Dislexia")))
}

func TestSummary(t *testing.T) {
	score := 75
	flagged := false
	rows := []model.RecordView{
		{
			Subject: model.Subject{Name: "Riya"},
			Record: model.SessionRecord{
				AssessmentType: model.Dyscalculia, Grade: 4, Status: model.RecordCompleted,
				OverallScore: &score, Flagged: &flagged, CorrectCount: 6, TotalCount: 8,
				AIStatus: model.AIStatusArrived, AI: &model.AIAnalysis{OverallAccuracy: 80},
				CreatedAt: reportDate,
			},
		},
		{
			Subject: model.Subject{Name: "Kabir"},
			Record: model.SessionRecord{
				AssessmentType: model.Dyslexia, Grade: 2, Status: model.RecordInProgress,
				AIStatus: model.AIStatusNone, CreatedAt: reportDate,
			},
		},
	}

	out, err := Summary(rows, DefaultLabels())
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(out))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Sessions"}, f.GetSheetList())
	got, err := f.GetRows("Sessions")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "Date", got[0][0])
	assert.Equal(t, "AI status", got[0][9])
	assert.Equal(t, []string{
		"2026-02-14 10:30", "Riya", "4", "Dyscalculia", "completed", "75", "no", "6", "8", "arrived", "80",
	}, got[1])
	assert.Equal(t, "Kabir", got[2][1])
	assert.Equal(t, "", got[2][5])
}
