package cli

import (
	"fmt"
	"time"

	"formkit/internal/quiz"
	"formkit/internal/schema"

	gojson "github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

type scoreReport struct {
	Results []quiz.Result `json:"results"`
	Stats   quiz.Stats    `json:"stats"`
}

func newScoreCmd(_ *rootOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "score <form> <submissions>",
		Short: "Score a file of quiz answers",
		Long: "Score a file of quiz answers. The submissions file is a JSON or YAML list of\n" +
			"answer objects, or of stored submissions carrying their answers under \"data\".",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			fs, err := loadSchema(cmd.Context(), schema.NewCompilerWithCache(1, time.Minute), args[0])
			if err != nil {
				return err
			}
			if !fs.QuizEnabled() {
				return fmt.Errorf("form %q is not a quiz", fs.ID)
			}

			var entries []map[string]any
			if err := readJSON(args[1], &entries); err != nil {
				return err
			}
			answers := make([]map[string]any, len(entries))
			for i, e := range entries {
				if data, ok := e["data"].(map[string]any); ok {
					e = data
				}
				answers[i] = e
			}

			report := scoreReport{Results: make([]quiz.Result, len(answers)), Stats: quiz.Aggregate(fs, answers)}
			for i, a := range answers {
				report.Results[i] = quiz.Score(fs, a)
			}

			out := cmd.OutOrStdout()
			if asJSON {
				raw, err := gojson.MarshalIndent(report, "", "  ")
				if err != nil {
					return err
				}
				fmt.Fprintln(out, string(raw))
				return nil
			}
			for i, r := range report.Results {
				verdict := "failed"
				if r.Passed {
					verdict = "passed"
				}
				fmt.Fprintf(out, "#%d  %d/%d  %d%%  %s\n", i+1, r.Score, r.TotalPossible, r.Percentage, verdict)
			}
			st := report.Stats
			fmt.Fprintf(out, "submissions: %d  average: %.2f%%  pass rate: %.2f%%\n", st.TotalSubmissions, st.AverageScore, st.PassRate)
			for _, q := range st.Questions {
				fmt.Fprintf(out, "  %s: %d/%d correct (%.2f%%)\n", labelOr(q.Label, q.FieldID), q.Correct, q.Answered, q.CorrectRate)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the report as JSON")
	return cmd
}

func labelOr(label, id string) string {
	if label != "" {
		return label
	}
	return id
}
