// Package scoring decides local correctness of spoken responses and derives
// the session result.
//
// The default correctness rule is deliberately lenient: a response counts as
// correct when its normalized transcript contains the first token of the
// normalized expected answer. It tolerates transcription noise and is not an
// exact-match scorer.
package scoring

import (
	"errors"
	"strings"

	"github.com/pavelanni/swar/internal/model"
)

// DefaultFlagThreshold is the score percentage below which a session is
// flagged for follow-up.
const DefaultFlagThreshold = 75

// ErrEmptyTranscript is returned for a blank submission.
var ErrEmptyTranscript = errors.New("transcript is empty")

// MatchRule selects how a transcript is compared with the expected answer.
type MatchRule string

const (
	// MatchFirstToken accepts a transcript containing the first expected token.
	MatchFirstToken MatchRule = "first_token"
	// MatchAllTokens requires every expected token to appear in the transcript.
	MatchAllTokens MatchRule = "all_tokens"
)

// Policy holds the tunable scoring constants.
type Policy struct {
	FlagThreshold int
	Match         MatchRule
}

// DefaultPolicy returns the 75% first-token policy.
func DefaultPolicy() Policy {
	return Policy{FlagThreshold: DefaultFlagThreshold, Match: MatchFirstToken}
}

// Normalize case-folds and trims s.
func Normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ValidateTranscript rejects submissions that cannot be scored.
func ValidateTranscript(transcript string) error {
	if strings.TrimSpace(transcript) == "" {
		return ErrEmptyTranscript
	}
	return nil
}

// IsCorrect applies the policy's match rule to one response.
func (p Policy) IsCorrect(transcript, expected string) bool {
	got := Normalize(transcript)
	tokens := strings.Fields(Normalize(expected))
	if len(tokens) == 0 {
		return true
	}
	if p.Match == MatchAllTokens {
		for _, tok := range tokens {
			if !strings.Contains(got, tok) {
				return false
			}
		}
		return true
	}
	return strings.Contains(got, tokens[0])
}

// Percent returns round(100*correct/total) with halves rounded up, or 0
// when total is zero.
func Percent(correct, total int) int {
	if total <= 0 {
		return 0
	}
	return (200*correct + total) / (2 * total)
}

// Summarize derives the session result. A transport-failure analysis is not
// attached; the local flag then decides.
func (p Policy) Summarize(responses []model.Response, ai *model.AIAnalysis) model.SessionResult {
	correct := 0
	for _, r := range responses {
		if r.IsCorrect {
			correct++
		}
	}
	res := model.SessionResult{
		CorrectCount: correct,
		TotalCount:   len(responses),
	}
	res.LocalScorePercent = Percent(correct, res.TotalCount)
	res.LocalFlag = res.LocalScorePercent < p.threshold()
	res.EffectiveFlag = res.LocalFlag

	if ai != nil && !ai.Failed() {
		a := *ai
		res.AI = &a
		res.EffectiveFlag = a.IsFlagged
	}
	return res
}

func (p Policy) threshold() int {
	if p.FlagThreshold <= 0 {
		return DefaultFlagThreshold
	}
	return p.FlagThreshold
}
