package quiz

import (
	"testing"

	"formkit/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intp(v int) *int { return &v }

func quizField(id string, correct any, points int) model.Field {
	return model.Field{ID: id, Type: model.FieldText, Settings: model.FieldSettings{
		IsQuizField: true, CorrectAnswer: correct, Points: points,
	}}
}

func TestScore_TwoQuestionScenario(t *testing.T) {
	s := &model.FormSchema{
		Fields: []model.Field{
			quizField("q1", "Paris", 1),
			quizField("q2", "4", 2),
			{ID: "name", Type: model.FieldText},
		},
		Settings: model.Settings{Quiz: &model.QuizSettings{Enabled: true, PassingScore: intp(50)}},
	}

	res := Score(s, map[string]any{"q1": "  paris ", "q2": "", "name": "Ada"})
	assert.Equal(t, 1, res.Score)
	assert.Equal(t, 3, res.TotalPossible)
	assert.Equal(t, 33, res.Percentage)
	assert.False(t, res.Passed)
	assert.Equal(t, 1, res.AnsweredQuestions)
	assert.Equal(t, 1, res.CorrectAnswers)
	assert.Equal(t, 2, res.TotalQuestions)
	require.Len(t, res.FieldResults, 2)
	assert.False(t, res.FieldResults[1].IsAnswered)
	assert.Equal(t, 0, res.FieldResults[1].PointsEarned)
}

func TestScore_Deterministic(t *testing.T) {
	s := &model.FormSchema{Fields: []model.Field{quizField("q", []any{"a", "b"}, 3)}}
	data := map[string]any{"q": []any{"b", "a"}}
	assert.Equal(t, Score(s, data), Score(s, data))
}

func TestScore_ArrayAnswersAreOrderIndependent(t *testing.T) {
	s := &model.FormSchema{Fields: []model.Field{quizField("q", []any{"a", "b"}, 1)}}

	for _, answer := range []any{[]any{"a", "b"}, []any{"b", "a"}, []string{" B", "a "}} {
		assert.True(t, Score(s, map[string]any{"q": answer}).FieldResults[0].IsCorrect, "%v", answer)
	}
	for _, answer := range []any{[]any{"a"}, []any{"a", "b", "c"}, []any{"a", "a"}} {
		assert.False(t, Score(s, map[string]any{"q": answer}).FieldResults[0].IsCorrect, "%v", answer)
	}
}

func TestScore_NoQuizFields(t *testing.T) {
	res := Score(&model.FormSchema{Fields: []model.Field{{ID: "name", Type: model.FieldText}}}, map[string]any{"name": "x"})
	assert.True(t, res.Passed)
	assert.Equal(t, 0, res.Percentage)
	assert.Equal(t, 0, res.TotalPossible)
	assert.Empty(t, res.FieldResults)
}

func TestScore_DefaultPassingScore(t *testing.T) {
	s := &model.FormSchema{Fields: []model.Field{
		quizField("q1", "a", 7),
		quizField("q2", "b", 3),
	}}
	res := Score(s, map[string]any{"q1": "A", "q2": "x"})
	assert.Equal(t, 70, res.Percentage)
	assert.Equal(t, DefaultPassingScore, res.PassingScore)
	assert.True(t, res.Passed)
}

func TestIsCorrect(t *testing.T) {
	assert.True(t, IsCorrect(float64(4), "4"))
	assert.True(t, IsCorrect("TRUE", true))
	assert.True(t, IsCorrect("a", []any{"a"}))
	assert.False(t, IsCorrect("a", nil))
	assert.False(t, IsCorrect("a b", "ab"))
}

func TestAggregate(t *testing.T) {
	s := &model.FormSchema{
		Fields:   []model.Field{quizField("q1", "a", 1), quizField("q2", "b", 1)},
		Settings: model.Settings{Quiz: &model.QuizSettings{Enabled: true, PassingScore: intp(50)}},
	}
	subs := []map[string]any{
		{"q1": "a", "q2": "b"}, // 100
		{"q1": "a", "q2": "x"}, // 50
		{"q1": "", "q2": "x"},  // 0
	}

	stats := Aggregate(s, subs)
	assert.Equal(t, 3, stats.TotalSubmissions)
	assert.Equal(t, 50.0, stats.AverageScore)
	assert.Equal(t, 66.67, stats.PassRate)
	require.Len(t, stats.Questions, 2)
	assert.Equal(t, QuestionStats{FieldID: "q1", Answered: 2, Correct: 2, CorrectRate: 66.67}, stats.Questions[0])
	assert.Equal(t, QuestionStats{FieldID: "q2", Answered: 3, Correct: 1, CorrectRate: 33.33}, stats.Questions[1])

	for i, data := range subs {
		single := Score(s, data)
		assert.Equal(t, single.Passed, i < 2)
	}
}

func TestAggregate_Empty(t *testing.T) {
	stats := Aggregate(&model.FormSchema{Fields: []model.Field{quizField("q", "a", 1)}}, nil)
	assert.Equal(t, 0, stats.TotalSubmissions)
	assert.Equal(t, 0.0, stats.PassRate)
	assert.Len(t, stats.Questions, 1)
}
