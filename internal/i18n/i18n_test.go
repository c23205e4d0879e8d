package i18n

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func initLang(t *testing.T, lang string) context.Context {
	t.Helper()
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return WithLocalizer(context.Background(), NewLocalizer(lang))
}

func TestTranslateEnglish(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "ReportTitle"); got != "Screening Report" {
		t.Errorf("T(ReportTitle) = %q, want 'Screening Report'", got)
	}
	if got := T(ctx, "ErrEmptyTranscript"); got != "Please record or type an answer before submitting." {
		t.Errorf("T(ErrEmptyTranscript) = %q", got)
	}
}

func TestTranslateSpanish(t *testing.T) {
	ctx := initLang(t, "es")

	if got := T(ctx, "ReportTitle"); got != "Informe de cribado" {
		t.Errorf("T(ReportTitle) = %q, want 'Informe de cribado'", got)
	}
	if got := Lang(ctx); got != "es" {
		t.Errorf("Lang = %q, want es", got)
	}
}

func TestUnknownLanguageFallsBack(t *testing.T) {
	ctx := initLang(t, "fr")

	if got := T(ctx, "ReportTitle"); got != "Screening Report" {
		t.Errorf("T(ReportTitle) = %q, want English fallback", got)
	}
}

func TestInitRejectsUnsupportedDefault(t *testing.T) {
	if err := Init("de"); err == nil {
		t.Error("expected error for a language without translations")
	}
	if err := Init("not a tag!"); err == nil {
		t.Error("expected error for an invalid tag")
	}
	if err := Init("es-MX"); err != nil {
		t.Errorf("Init(es-MX): %v", err)
	}
}

func TestPluralTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	if got := Tp(ctx, "FlaggedSummary", 1); got != "1 session flagged for follow-up." {
		t.Errorf("Tp(FlaggedSummary, 1) = %q", got)
	}
	if got := Tp(ctx, "FlaggedSummary", 3); got != "3 sessions flagged for follow-up." {
		t.Errorf("Tp(FlaggedSummary, 3) = %q", got)
	}
}

func TestTemplateDataTranslation(t *testing.T) {
	ctx := initLang(t, "en")

	got := Td(ctx, "ErrInvalidGrade", map[string]any{"Min": 1, "Max": 12})
	if got != "Grade must be between 1 and 12." {
		t.Errorf("Td(ErrInvalidGrade) = %q", got)
	}
}

func TestMissingKey(t *testing.T) {
	ctx := initLang(t, "en")

	if got := T(ctx, "NonExistentKey"); got != "NonExistentKey" {
		t.Errorf("T(NonExistentKey) = %q, want 'NonExistentKey'", got)
	}
}

func TestMiddlewareNegotiates(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	var got string
	h := Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = T(r.Context(), "ReportTitle")
	}))

	tests := []struct {
		name   string
		query  string
		accept string
		want   string
	}{
		{"header", "", "es-ES,es;q=0.9,en;q=0.5", "Informe de cribado"},
		{"query wins", "?lang=en", "es", "Screening Report"},
		{"unsupported", "", "ja", "Screening Report"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/"+tt.query, nil)
			if tt.accept != "" {
				req.Header.Set("Accept-Language", tt.accept)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			if got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLanguages(t *testing.T) {
	if err := Init("en"); err != nil {
		t.Fatalf("Init: %v", err)
	}
	got := Languages()
	if len(got) != 2 || got[0] != "en" || got[1] != "es" {
		t.Errorf("Languages() = %v, want [en es]", got)
	}
}
