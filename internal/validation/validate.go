// Package validation checks field values: required-ness first, then the type-specific
// format, then the declared constraints. The first failing message is reported.
package validation

import (
	"fmt"
	"net/mail"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"formkit/internal/model"
)

// Errors maps field ids to their first failing message
type Errors map[string]string

var (
	emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	phonePattern = regexp.MustCompile(`^\+?[0-9 ()\-.]{6,20}$`)

	patternCache sync.Map // string -> *regexp.Regexp, nil for invalid patterns
)

// Field validates one value and returns the first failing message, or "" when it passes
func Field(f model.Field, v any) string {
	if model.IsEmpty(v) {
		if f.Required {
			return message(f, fmt.Sprintf("%s is required", label(f)))
		}
		return ""
	}

	if msg := checkType(f, v); msg != "" {
		return msg
	}
	return checkConstraints(f, v)
}

// Fields validates every field for which active returns true
func Fields(fields []model.Field, data map[string]any, active func(id string) bool) Errors {
	errs := Errors{}
	for _, f := range fields {
		if active != nil && !active(f.ID) {
			continue
		}
		if msg := Field(f, data[f.ID]); msg != "" {
			errs[f.ID] = msg
		}
	}
	return errs
}

func checkType(f model.Field, v any) string {
	switch f.Type {
	case model.FieldEmail:
		s, ok := v.(string)
		if !ok || !emailPattern.MatchString(strings.TrimSpace(s)) {
			return message(f, "Please enter a valid email address")
		}
		if _, err := mail.ParseAddress(strings.TrimSpace(s)); err != nil {
			return message(f, "Please enter a valid email address")
		}
	case model.FieldURL:
		s, _ := v.(string)
		u, err := url.ParseRequestURI(strings.TrimSpace(s))
		if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
			return message(f, "Please enter a valid URL")
		}
	case model.FieldPhone:
		s, _ := v.(string)
		if !phonePattern.MatchString(strings.TrimSpace(s)) {
			return message(f, "Please enter a valid phone number")
		}
	case model.FieldNumber, model.FieldSlider, model.FieldRating:
		if _, ok := toNumber(v); !ok {
			return message(f, fmt.Sprintf("%s must be a number", label(f)))
		}
	case model.FieldDate:
		s, _ := v.(string)
		if _, err := time.Parse("2006-01-02", s); err != nil {
			return message(f, "Please enter a valid date")
		}
	case model.FieldTime:
		s, _ := v.(string)
		if _, err := time.Parse("15:04", s); err != nil {
			if _, err := time.Parse("15:04:05", s); err != nil {
				return message(f, "Please enter a valid time")
			}
		}
	case model.FieldSelect, model.FieldRadio:
		if len(f.Options) > 0 && !hasOption(f.Options, model.Stringify(v)) {
			return message(f, "Please choose one of the available options")
		}
	case model.FieldMultiSelect, model.FieldCheckbox:
		items, ok := model.ToSlice(v)
		if !ok {
			return message(f, "Please choose one of the available options")
		}
		if len(f.Options) > 0 {
			for _, it := range items {
				if !hasOption(f.Options, model.Stringify(it)) {
					return message(f, "Please choose one of the available options")
				}
			}
		}
	case model.FieldFile:
		if err := PolicyFor(f).ValidateValue(v); err != nil {
			return message(f, err.Error())
		}
	}
	return ""
}

func checkConstraints(f model.Field, v any) string {
	rules := f.Validation
	if rules == nil {
		return ""
	}

	if rules.Min != nil || rules.Max != nil {
		if n, ok := toNumber(v); ok {
			if rules.Min != nil && n < *rules.Min {
				return message(f, fmt.Sprintf("%s must be at least %s", label(f), model.Stringify(*rules.Min)))
			}
			if rules.Max != nil && n > *rules.Max {
				return message(f, fmt.Sprintf("%s must be at most %s", label(f), model.Stringify(*rules.Max)))
			}
		}
	}

	if s, ok := v.(string); ok {
		n := utf8.RuneCountInString(s)
		if rules.MinLength != nil && n < *rules.MinLength {
			return message(f, fmt.Sprintf("%s must be at least %d characters", label(f), *rules.MinLength))
		}
		if rules.MaxLength != nil && n > *rules.MaxLength {
			return message(f, fmt.Sprintf("%s must be at most %d characters", label(f), *rules.MaxLength))
		}
		if rules.Pattern != "" {
			if re := compilePattern(rules.Pattern); re != nil && !re.MatchString(s) {
				return message(f, fmt.Sprintf("%s has an invalid format", label(f)))
			}
		}
	}
	return ""
}

// compilePattern returns nil for patterns that do not compile; those never fail a value
func compilePattern(p string) *regexp.Regexp {
	if cached, ok := patternCache.Load(p); ok {
		re, _ := cached.(*regexp.Regexp)
		return re
	}
	re, err := regexp.Compile(p)
	if err != nil {
		re = nil
	}
	patternCache.Store(p, re)
	return re
}

// message prefers the author's custom message
func message(f model.Field, fallback string) string {
	if f.Validation != nil && f.Validation.Message != "" {
		return f.Validation.Message
	}
	return fallback
}

func label(f model.Field) string {
	if f.Label != "" {
		return f.Label
	}
	return f.ID
}

func hasOption(options []string, v string) bool {
	for _, o := range options {
		if o == v {
			return true
		}
	}
	return false
}

func toNumber(v any) (float64, bool) {
	if n, ok := model.ToFloat(v); ok {
		return n, true
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	n, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return n, err == nil
}
