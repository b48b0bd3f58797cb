// Package cli is the formkit command line: fill forms in the terminal, validate form
// documents and score quiz answers offline.
package cli

import (
	"io"
	"os"

	"formkit/internal/tui"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type rootOptions struct {
	configPath string
	verbose    bool
	newDriver  func(out io.Writer) tui.PromptDriver
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd(&rootOptions{newDriver: tui.NewSurveyDriver}).Execute()
}

func newRootCmd(opts *rootOptions) *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "formkit.yaml"
	}

	cmd := &cobra.Command{
		Use:           "formkit",
		Short:         "Fill, validate and score formkit forms",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log to stderr")
	cmd.AddCommand(newFillCmd(opts))
	cmd.AddCommand(newValidateCmd(opts))
	cmd.AddCommand(newScoreCmd(opts))
	return cmd
}

func (o *rootOptions) logger() *zap.Logger {
	if !o.verbose {
		return zap.NewNop()
	}
	log, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return log
}
