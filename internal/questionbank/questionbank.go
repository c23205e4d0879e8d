// Package questionbank holds the fixed exercise sets used by the screener.
// Exercises are grouped into grade bands; every grade in [1,12] maps to
// exactly one band per assessment type.
package questionbank

import (
	"github.com/pavelanni/swar/internal/model"
)

// Band names a contiguous range of grades sharing one exercise set.
type Band string

const (
	BandEarly     Band = "early"     // grades 1-2
	BandPrimary   Band = "primary"   // grades 3-5
	BandMiddle    Band = "middle"    // grades 6-8
	BandSecondary Band = "secondary" // grades 9-12
)

// BandFor returns the band of a grade after clamping it to [1,12].
func BandFor(grade int) Band {
	switch g := model.ClampGrade(grade); {
	case g <= 2:
		return BandEarly
	case g <= 5:
		return BandPrimary
	case g <= 8:
		return BandMiddle
	default:
		return BandSecondary
	}
}

// For returns the ordered exercises for a grade and assessment type.
// The result is a fresh copy; callers may keep it.
func For(grade int, t model.AssessmentType) []model.Exercise {
	src := bank[t][BandFor(grade)]
	out := make([]model.Exercise, len(src))
	copy(out, src)
	return out
}

func ex(id int, kind model.ExerciseKind, prompt, expected string) model.Exercise {
	return model.Exercise{ID: id, Prompt: prompt, ExpectedAnswer: expected, Kind: kind}
}

var bank = map[model.AssessmentType]map[Band][]model.Exercise{
	model.Dyslexia: {
		BandEarly: {
			ex(1, model.KindWord, `Please say the word: "CAT"`, "cat"),
			ex(2, model.KindWord, `Please say the word: "SUN"`, "sun"),
			ex(3, model.KindPhoneme, `Say the sounds in "DOG" (D-O-G)`, "d o g"),
			ex(4, model.KindPhoneme, "Say these letters: B, D", "b d"),
			ex(5, model.KindPhoneme, `What rhymes with "HAT"?`, "bat cat mat sat"),
			ex(6, model.KindWord, `Please say the word: "FISH"`, "fish"),
			ex(7, model.KindSentence, `Read this sentence: "I see a red ball"`, "i see a red ball"),
			ex(8, model.KindWord, `Please say the word: "TREE"`, "tree"),
		},
		BandPrimary: {
			ex(1, model.KindWord, `Please say the word: "APPLE"`, "apple"),
			ex(2, model.KindWord, `Please say the word: "BUTTERFLY"`, "butterfly"),
			ex(3, model.KindPhoneme, `Say the sounds in "CAT" (C-A-T)`, "c a t"),
			ex(4, model.KindSentence, `Read this sentence: "The quick brown fox jumps"`, "the quick brown fox jumps"),
			ex(5, model.KindWord, `Please say the word: "ELEPHANT"`, "elephant"),
			ex(6, model.KindPhoneme, "Say these letters: B, D, P, Q", "b d p q"),
			ex(7, model.KindPhoneme, `What rhymes with "CAT"?`, "bat hat mat sat"),
			ex(8, model.KindWord, `Please say: "CHOCOLATE"`, "chocolate"),
		},
		BandMiddle: {
			ex(1, model.KindWord, `Please say the word: "NECESSARY"`, "necessary"),
			ex(2, model.KindWord, `Please say the word: "ENVIRONMENT"`, "environment"),
			ex(3, model.KindPhoneme, `Say the sounds in "SHIP" (SH-I-P)`, "sh i p"),
			ex(4, model.KindSentence, `Read this sentence: "The scientist measured the temperature carefully"`, "the scientist measured the temperature carefully"),
			ex(5, model.KindPhoneme, "Say these letters: B, D, P, Q, G", "b d p q g"),
			ex(6, model.KindWord, `Please say the word: "PHOTOGRAPHER"`, "photographer"),
			ex(7, model.KindPhoneme, `What rhymes with "LIGHT"?`, "night fight kite bright"),
			ex(8, model.KindWord, `Please say the word: "COMFORTABLE"`, "comfortable"),
		},
		BandSecondary: {
			ex(1, model.KindWord, `Please say the word: "PHENOMENON"`, "phenomenon"),
			ex(2, model.KindWord, `Please say the word: "ENTREPRENEUR"`, "entrepreneur"),
			ex(3, model.KindSentence, `Read this sentence: "Although it was raining, the team kept practicing"`, "although it was raining the team kept practicing"),
			ex(4, model.KindPhoneme, `Say the sounds in "STRENGTH" (S-T-R-E-NG-TH)`, "s t r e ng th"),
			ex(5, model.KindWord, `Please say the word: "CONSCIENTIOUS"`, "conscientious"),
			ex(6, model.KindSentence, `Read this sentence: "Photosynthesis converts sunlight into chemical energy"`, "photosynthesis converts sunlight into chemical energy"),
			ex(7, model.KindPhoneme, `What rhymes with "NATION"?`, "station creation relation"),
			ex(8, model.KindWord, `Please say the word: "PSYCHOLOGY"`, "psychology"),
		},
	},
	model.Dyscalculia: {
		BandEarly: {
			ex(1, model.KindNumber, "Count from 1 to 5", "1 2 3 4 5"),
			ex(2, model.KindCalculation, "What is 2 + 1?", "3"),
			ex(3, model.KindCalculation, "What is 4 - 2?", "2"),
			ex(4, model.KindNumber, "What number comes after 7?", "8"),
			ex(5, model.KindNumber, "Count backwards from 5 to 1", "5 4 3 2 1"),
			ex(6, model.KindCalculation, "What is 3 + 3?", "6"),
			ex(7, model.KindNumber, "Which is bigger, 4 or 9?", "9"),
			ex(8, model.KindNumber, "Skip count by 10s: 10, 20, 30...", "10 20 30 40 50"),
		},
		BandPrimary: {
			ex(1, model.KindNumber, "Count from 1 to 10", "1 2 3 4 5 6 7 8 9 10"),
			ex(2, model.KindCalculation, "What is 5 + 3?", "8"),
			ex(3, model.KindCalculation, "What is 10 - 4?", "6"),
			ex(4, model.KindNumber, "Count backwards from 10 to 1", "10 9 8 7 6 5 4 3 2 1"),
			ex(5, model.KindCalculation, "What is 2 × 3?", "6"),
			ex(6, model.KindNumber, "What number comes after 15?", "16"),
			ex(7, model.KindCalculation, "What is 12 ÷ 4?", "3"),
			ex(8, model.KindNumber, "Skip count by 2s: 2, 4, 6...", "2 4 6 8 10"),
		},
		BandMiddle: {
			ex(1, model.KindCalculation, "What is 12 × 7?", "84"),
			ex(2, model.KindCalculation, "What is 144 ÷ 12?", "12"),
			ex(3, model.KindNumber, "Read this number aloud: 5007", "5007"),
			ex(4, model.KindCalculation, "What is 45 + 38?", "83"),
			ex(5, model.KindCalculation, "What is 100 - 37?", "63"),
			ex(6, model.KindCalculation, "What is half of 50?", "25"),
			ex(7, model.KindNumber, "Count backwards by 3 from 30", "30 27 24 21 18"),
			ex(8, model.KindCalculation, "What is three quarters of 20?", "15"),
		},
		BandSecondary: {
			ex(1, model.KindCalculation, "What is 15 percent of 200?", "30"),
			ex(2, model.KindCalculation, "What is 2 to the power of 5?", "32"),
			ex(3, model.KindCalculation, "What is 7 × 8 - 6?", "50"),
			ex(4, model.KindCalculation, "What is 0.5 + 0.25?", "0.75"),
			ex(5, model.KindCalculation, "Solve for x: 3x = 21", "7"),
			ex(6, model.KindCalculation, "What is the square root of 81?", "9"),
			ex(7, model.KindNumber, "Continue the sequence: 3, 6, 12, 24...", "48"),
			ex(8, model.KindCalculation, "What is 25 × 4?", "100"),
		},
	},
}
