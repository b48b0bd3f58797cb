package prepop

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"sync"

	"formkit/internal/model"

	"github.com/microcosm-cc/bluemonday"
)

var (
	urlPolicyOnce sync.Once
	urlPolicy     *bluemonday.Policy

	dangerousTag = regexp.MustCompile(`(?is)<\s*/?\s*(script|iframe)[^>]*>`)
	eventHandler = regexp.MustCompile(`(?i)\bon[a-z]+\s*=`)
	jsScheme     = regexp.MustCompile(`(?i)javascript\s*:`)
)

func textPolicy() *bluemonday.Policy {
	urlPolicyOnce.Do(func() {
		urlPolicy = bluemonday.StrictPolicy()
	})
	return urlPolicy
}

// Sanitize strips markup, script and iframe tags, inline event handlers and javascript: URLs.
// It is not a substitute for encoding on output.
func Sanitize(raw string) string {
	s := textPolicy().Sanitize(raw)
	s = html.UnescapeString(s)
	for {
		next := dangerousTag.ReplaceAllString(s, "")
		next = eventHandler.ReplaceAllString(next, "")
		next = jsScheme.ReplaceAllString(next, "")
		if next == s {
			break
		}
		s = next
	}
	return strings.TrimSpace(s)
}

// URLResolver reads query parameters of the page the form is rendered on
type URLResolver struct{}

func (URLResolver) Source() model.Source { return model.SourceURL }

func (URLResolver) Resolve(_ context.Context, f model.Field, rc ResolveContext) (any, error) {
	cfg, ok := f.Prepopulation.Config.(model.URLConfig)
	if !ok {
		return nil, fmt.Errorf("prepop: field %q: %w", f.ID, model.ErrConfigMismatch)
	}
	if rc.Query == nil || !rc.Query.Has(cfg.Param) {
		return nil, ErrNoValue
	}

	raw := rc.Query.Get(cfg.Param)
	// values are decoded once by net/url; a second pass handles double-encoded links
	if strings.Contains(raw, "%") {
		if dec, err := url.QueryUnescape(raw); err == nil {
			raw = dec
		}
	}
	v := Sanitize(raw)
	if v == "" {
		return nil, ErrNoValue
	}
	if f.Type.MultiValued() {
		return splitList(v), nil
	}
	return v, nil
}

func splitList(s string) []any {
	parts := strings.Split(s, ",")
	out := make([]any, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
