package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"formkit/internal/config"
	"formkit/internal/model"
	"formkit/internal/prepop"
	"formkit/internal/progress"
	"formkit/internal/runtime"
	"formkit/internal/schema"
	"formkit/internal/submission"
	"formkit/internal/tui"

	gojson "github.com/goccy/go-json"
	"github.com/oklog/ulid/v2"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type fillOptions struct {
	server      string
	dryRun      bool
	params      []string
	profilePath string
	email       string
	progressDir string
	noProgress  bool
}

func newFillCmd(root *rootOptions) *cobra.Command {
	opts := &fillOptions{}
	envServer := os.Getenv("FORMKIT_SERVER")
	if envServer == "" {
		envServer = "http://localhost:8080"
	}

	cmd := &cobra.Command{
		Use:   "fill <form>",
		Short: "Fill a form in the terminal and submit it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFill(cmd.Context(), root, opts, args[0], cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", envServer, "formkit API base URL")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "print the submission instead of sending it")
	cmd.Flags().StringArrayVarP(&opts.params, "param", "p", nil, "query parameter for url prepopulation, as key=value")
	cmd.Flags().StringVar(&opts.profilePath, "profile", "", "JSON or YAML file with the respondent profile")
	cmd.Flags().StringVar(&opts.email, "email", "", "respondent email")
	cmd.Flags().StringVar(&opts.progressDir, "progress-dir", "", "where partial answers are kept (default: user cache dir)")
	cmd.Flags().BoolVar(&opts.noProgress, "no-progress", false, "do not save or restore partial answers")
	return cmd
}

func runFill(ctx context.Context, root *rootOptions, opts *fillOptions, path string, out io.Writer) error {
	cfg, err := config.Load(root.configPath)
	if err != nil {
		return err
	}
	log := root.logger()
	defer log.Sync()

	fs, err := loadSchema(ctx, schema.NewCompilerWithCache(1, time.Minute), path)
	if err != nil {
		return err
	}

	query, err := parseParams(opts.params)
	if err != nil {
		return err
	}
	var profile prepop.Profile
	if opts.profilePath != "" {
		if err := readJSON(opts.profilePath, &profile); err != nil {
			return err
		}
	}
	coord := prepop.NewCoordinator(log,
		prepop.URLResolver{},
		prepop.NewAPIResolver(nil, prepop.APIOptions{
			Timeout:       config.Duration(cfg.Prepop.Timeout, prepop.DefaultTimeout),
			RetryAttempts: cfg.Prepop.RetryAttempts,
			BaseDelay:     config.Duration(cfg.Prepop.BaseDelay, prepop.DefaultBaseDelay),
			CacheTTL:      config.Duration(cfg.Prepop.CacheTTL, prepop.DefaultCacheTTL),
			CacheSize:     cfg.Prepop.CacheSize,
		}, log),
		prepop.ProfileResolver{Provider: prepop.ProfileFunc(func(context.Context) (prepop.Profile, error) {
			return profile, nil
		})},
	)

	var store *progress.Store
	if fs.ProgressEnabled() && !opts.noProgress {
		store, err = openProgress(cfg, fs, opts.progressDir, log)
		if err != nil {
			return err
		}
	}

	var sub runtime.Submitter = submission.NewClient(opts.server, nil, log)
	if opts.dryRun {
		sub = printSubmitter{out: out}
	}

	m, err := runtime.New(runtime.Config{
		Schema:      fs,
		Submitter:   sub,
		Coordinator: coord,
		Progress:    store,
		Log:         log,
	})
	if err != nil {
		return err
	}
	if err := m.Initialize(ctx, prepop.ResolveContext{Query: query, Email: opts.email}); err != nil {
		return err
	}
	// prompts show seeded values as defaults, so they must land first
	m.Wait()

	filler := &tui.Filler{Driver: root.newDriver(out), Log: log}
	if _, err := filler.Run(ctx, m); err != nil {
		if store != nil && (errors.Is(err, tui.ErrAborted) || errors.Is(err, tui.ErrGaveUp)) {
			store.Flush(ctx)
			fmt.Fprintln(out, "Answers saved, run fill again to resume")
		}
		return err
	}
	return nil
}

func openProgress(cfg config.Config, fs *model.FormSchema, dir string, log *zap.Logger) (*progress.Store, error) {
	if dir == "" {
		cache, err := os.UserCacheDir()
		if err != nil {
			return nil, err
		}
		dir = filepath.Join(cache, "formkit")
	}
	kv, err := progress.NewFileKV(dir)
	if err != nil {
		return nil, err
	}
	days := cfg.Progress.RetentionDays
	if fs.Settings.Progress != nil && fs.Settings.Progress.RetentionDays > 0 {
		days = fs.Settings.Progress.RetentionDays
	}
	return progress.NewStore(fs.ID, fs.Fields, kv, progress.Options{
		Debounce:  config.Duration(cfg.Progress.Debounce, progress.DefaultDebounce),
		Retention: progress.RetentionDays(days),
	}, log), nil
}

func parseParams(params []string) (url.Values, error) {
	q := url.Values{}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --param %q, want key=value", p)
		}
		q.Add(k, v)
	}
	return q, nil
}

// printSubmitter writes the payload instead of posting it
type printSubmitter struct {
	out io.Writer
}

func (p printSubmitter) Submit(_ context.Context, formID string, data map[string]any) (string, error) {
	raw, err := gojson.MarshalIndent(submission.Request{Data: data}, "", "  ")
	if err != nil {
		return "", err
	}
	fmt.Fprintf(p.out, "POST /v1/forms/%s/submissions\n%s\n", formID, raw)
	return ulid.Make().String(), nil
}
