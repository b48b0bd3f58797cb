package quiz

import (
	"math"

	"formkit/internal/model"
)

// QuestionStats is the cohort view of one question
type QuestionStats struct {
	FieldID     string  `json:"fieldId"`
	Label       string  `json:"label,omitempty"`
	Answered    int     `json:"answered"`
	Correct     int     `json:"correct"`
	CorrectRate float64 `json:"correctRate"`
}

// Stats summarises a collection of submissions
type Stats struct {
	TotalSubmissions int             `json:"totalSubmissions"`
	AverageScore     float64         `json:"averageScore"`
	PassRate         float64         `json:"passRate"`
	Questions        []QuestionStats `json:"questions"`
}

// Aggregate re-scores every submission with Score, so cohort figures always agree with
// single results. Rates are percentages rounded to two decimals.
func Aggregate(s *model.FormSchema, submissions []map[string]any) Stats {
	stats := Stats{TotalSubmissions: len(submissions), Questions: []QuestionStats{}}
	index := map[string]int{}
	for _, f := range s.Fields {
		if f.Settings.IsQuizField {
			index[f.ID] = len(stats.Questions)
			stats.Questions = append(stats.Questions, QuestionStats{FieldID: f.ID, Label: f.Label})
		}
	}
	if len(submissions) == 0 {
		return stats
	}

	var percentSum float64
	passed := 0
	for _, data := range submissions {
		res := Score(s, data)
		percentSum += float64(res.Percentage)
		if res.Passed {
			passed++
		}
		for _, fr := range res.FieldResults {
			q := &stats.Questions[index[fr.FieldID]]
			if fr.IsAnswered {
				q.Answered++
			}
			if fr.IsCorrect {
				q.Correct++
			}
		}
	}

	n := float64(len(submissions))
	stats.AverageScore = round2(percentSum / n)
	stats.PassRate = round2(100 * float64(passed) / n)
	for i := range stats.Questions {
		stats.Questions[i].CorrectRate = round2(100 * float64(stats.Questions[i].Correct) / n)
	}
	return stats
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
