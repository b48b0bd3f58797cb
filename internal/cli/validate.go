package cli

import (
	"errors"
	"fmt"
	"time"

	"formkit/internal/schema"

	"github.com/spf13/cobra"
)

func newValidateCmd(_ *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <form>",
		Short: "Check a form document against the form schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fs, err := loadSchema(cmd.Context(), schema.NewCompilerWithCache(1, time.Minute), args[0])
			if err != nil {
				var serr *schema.Error
				if errors.As(err, &serr) {
					for _, c := range serr.Causes {
						fmt.Fprintln(out, "  "+c)
					}
					return fmt.Errorf("%s is not a valid form", args[0])
				}
				return err
			}
			kind := "form"
			if fs.QuizEnabled() {
				kind = "quiz"
			}
			fmt.Fprintf(out, "%s: valid %s, %d fields in %d steps\n", fs.ID, kind, len(fs.Fields), fs.StepCount())
			return nil
		},
	}
}
