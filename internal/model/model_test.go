package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAssessmentType(t *testing.T) {
	tests := []struct {
		in      string
		want    AssessmentType
		wantErr bool
	}{
		{"dyslexia", Dyslexia, false},
		{" Dyscalculia ", Dyscalculia, false},
		{"math", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAssessmentType(tt.in)
			if tt.wantErr {
				assert.True(t, IsKind(err, KindInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClampGrade(t *testing.T) {
	assert.Equal(t, 1, ClampGrade(-4))
	assert.Equal(t, 1, ClampGrade(0))
	assert.Equal(t, 7, ClampGrade(7))
	assert.Equal(t, 12, ClampGrade(13))
}

func TestStringListDecodesMixedItems(t *testing.T) {
	var a AIAnalysis
	raw := `{"phonemeConfusions":["b/p",["d","t"],7],"letterReversals":null}`
	require.NoError(t, json.Unmarshal([]byte(raw), &a))
	assert.Equal(t, StringList{"b/p", "d/t", "7"}, a.PhonemeConfusions)
	assert.Nil(t, a.LetterReversals)
}

func TestStringListRejectsNonArray(t *testing.T) {
	var l StringList
	assert.Error(t, json.Unmarshal([]byte(`"b/d"`), &l))
}

func TestErrorKindThroughWrapping(t *testing.T) {
	base := NewError(KindPersistence, "save record", errors.New("disk full"))
	wrapped := fmt.Errorf("handler: %w", base)

	assert.Equal(t, KindPersistence, KindOf(wrapped))
	assert.True(t, IsKind(wrapped, KindPersistence))
	assert.False(t, IsKind(errors.New("plain"), KindPersistence))
	assert.Equal(t, "save record: disk full", base.Error())
}

func TestNewAnalysisRequest(t *testing.T) {
	req := NewAnalysisRequest(Dyscalculia, 4, []Response{
		{ExpectedAnswer: "8", Kind: KindCalculation, Transcript: "eight", LatencyMs: 1200},
	})
	b, err := json.Marshal(req)
	require.NoError(t, err)
	assert.JSONEq(t, `{"sessionType":"dyscalculia","grade":4,"allResponses":[
		{"transcript":"eight","expectedAnswer":"8","questionType":"calculation","responseTimeMs":1200}]}`, string(b))
}
