// Package quiz scores submissions of forms that have quiz fields.
package quiz

import (
	"math"
	"sort"
	"strings"

	"formkit/internal/model"
)

// DefaultPassingScore is the pass mark, in percent, when a quiz does not set one
const DefaultPassingScore = 70

// FieldResult is the outcome of one quiz question
type FieldResult struct {
	FieldID       string `json:"fieldId"`
	Label         string `json:"label,omitempty"`
	UserAnswer    any    `json:"userAnswer"`
	CorrectAnswer any    `json:"correctAnswer"`
	IsAnswered    bool   `json:"isAnswered"`
	IsCorrect     bool   `json:"isCorrect"`
	Points        int    `json:"points"`
	PointsEarned  int    `json:"pointsEarned"`
	Explanation   string `json:"explanation,omitempty"`
}

// Result is the score breakdown of one submission
type Result struct {
	Score             int           `json:"score"`
	TotalPossible     int           `json:"totalPossible"`
	Percentage        int           `json:"percentage"`
	Passed            bool          `json:"passed"`
	PassingScore      int           `json:"passingScore"`
	TotalQuestions    int           `json:"totalQuestions"`
	AnsweredQuestions int           `json:"answeredQuestions"`
	CorrectAnswers    int           `json:"correctAnswers"`
	FieldResults      []FieldResult `json:"fieldResults"`
}

// PassingScore returns the form's pass mark
func PassingScore(s *model.FormSchema) int {
	if s.Settings.Quiz != nil && s.Settings.Quiz.PassingScore != nil {
		return *s.Settings.Quiz.PassingScore
	}
	return DefaultPassingScore
}

// Score grades data against the quiz fields of s. Points are only awarded for a fully
// correct answer. A form without quiz fields passes with 0%.
func Score(s *model.FormSchema, data map[string]any) Result {
	res := Result{PassingScore: PassingScore(s), FieldResults: []FieldResult{}}

	for _, f := range s.Fields {
		if !f.Settings.IsQuizField {
			continue
		}
		points := f.Settings.Points
		if points <= 0 {
			points = 1
		}
		answer := data[f.ID]
		fr := FieldResult{
			FieldID:       f.ID,
			Label:         f.Label,
			UserAnswer:    answer,
			CorrectAnswer: f.Settings.CorrectAnswer,
			IsAnswered:    !model.IsEmpty(answer),
			Points:        points,
			Explanation:   f.Settings.Explanation,
		}
		if fr.IsAnswered && IsCorrect(answer, f.Settings.CorrectAnswer) {
			fr.IsCorrect = true
			fr.PointsEarned = points
		}

		res.TotalQuestions++
		res.TotalPossible += points
		res.Score += fr.PointsEarned
		if fr.IsAnswered {
			res.AnsweredQuestions++
		}
		if fr.IsCorrect {
			res.CorrectAnswers++
		}
		res.FieldResults = append(res.FieldResults, fr)
	}

	if res.TotalPossible == 0 {
		res.Passed = true
		return res
	}
	res.Percentage = int(math.Round(100 * float64(res.Score) / float64(res.TotalPossible)))
	res.Passed = res.Percentage >= res.PassingScore
	return res
}

// IsCorrect compares an answer with the expected one, ignoring case and surrounding space.
// Lists match when they hold the same elements in any order.
func IsCorrect(answer, correct any) bool {
	if correct == nil {
		return false
	}
	want, wantList := model.ToSlice(correct)
	got, gotList := model.ToSlice(answer)
	if !wantList && !gotList {
		return normalize(answer) == normalize(correct)
	}
	if !wantList {
		want = []any{correct}
	}
	if !gotList {
		got = []any{answer}
	}
	if len(got) != len(want) {
		return false
	}
	a, b := normalizeAll(got), normalizeAll(want)
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func normalize(v any) string {
	return strings.ToLower(strings.TrimSpace(model.Stringify(v)))
}

func normalizeAll(vs []any) []string {
	out := make([]string, len(vs))
	for i, v := range vs {
		out[i] = normalize(v)
	}
	sort.Strings(out)
	return out
}
