package handler

import (
	"context"

	appI18n "github.com/pavelanni/swar/internal/i18n"
	"github.com/pavelanni/swar/internal/report"
)

// ReportLabels localizes the exported documents for the language of ctx.
func ReportLabels(ctx context.Context) report.Labels {
	t := func(id string) string { return appI18n.T(ctx, id) }
	return report.Labels{
		Title:         t("ReportTitle"),
		Subject:       t("ReportSubject"),
		Grade:         t("ReportGrade"),
		Assessment:    t("ReportAssessment"),
		Date:          t("ReportDate"),
		Teacher:       t("ReportTeacher"),
		LocalScore:    t("ReportScore"),
		Flagged:       t("ReportFlagged"),
		NotFlagged:    t("ReportNotFlagged"),
		AISection:     t("ReportAISection"),
		Accuracy:      t("ReportAccuracy"),
		Confidence:    t("ReportConfidence"),
		AIPending:     t("ReportAIPending"),
		AIFailed:      t("ReportAIFailed"),
		AITimedOut:    t("ReportAITimedOut"),
		AINone:        t("ReportAINone"),
		Breakdown:     t("ReportBreakdown"),
		Expected:      t("ReportExpected"),
		Heard:         t("ReportHeard"),
		Correct:       t("ReportCorrect"),
		Time:          t("ReportTime"),
		Yes:           t("ReportYes"),
		No:            t("ReportNo"),
		Disclaimer:    t("ReportDisclaimer"),
		SheetName:     t("ReportSheetName"),
		Status:        t("ReportStatus"),
		Score:         t("ReportScorePercent"),
		Total:         t("ReportTotal"),
		AIStatus:      t("ReportAIStatus"),
		Dyslexia:      t("AssessmentDyslexia"),
		Dyscalculia:   t("AssessmentDyscalculia"),
		ErrorPatterns: t("ReportPatterns"),
	}
}
