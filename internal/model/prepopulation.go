package model

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Source identifies where a prepopulated value comes from
type Source string

const (
	SourceURL      Source = "url"
	SourceAPI      Source = "api"
	SourceProfile  Source = "profile"
	SourcePrevious Source = "previous"
)

// ErrConfigMismatch is returned when a prepopulation config does not match its source
var ErrConfigMismatch = errors.New("model: prepopulation config does not match source")

// Prepopulation is the directive attached to a field that declares a dynamic initial value
type Prepopulation struct {
	Enabled bool
	Config  SourceConfig
}

// Source returns the source of the attached config
func (p *Prepopulation) Source() Source {
	if p == nil || p.Config == nil {
		return ""
	}
	return p.Config.Source()
}

// Active reports whether the directive should be resolved
func (p *Prepopulation) Active() bool {
	return p != nil && p.Enabled && p.Config != nil
}

// SourceConfig is implemented by exactly one config type per source
type SourceConfig interface {
	Source() Source
	Fallback() (any, bool)
	Overwrite() bool
}

// Common holds the fallback policy shared by every source
type Common struct {
	FallbackValue     any  `json:"fallbackValue,omitempty"`
	OverwriteExisting bool `json:"overwriteExisting,omitempty"`
}

// Fallback returns the configured fallback value, if any
func (c Common) Fallback() (any, bool) {
	return c.FallbackValue, c.FallbackValue != nil
}

// Overwrite reports whether a resolved value may replace a non-default value
func (c Common) Overwrite() bool {
	return c.OverwriteExisting
}

// URLConfig reads a query parameter of the current location
type URLConfig struct {
	Param string `json:"urlParam"`
	Common
}

func (URLConfig) Source() Source { return SourceURL }

// APIConfig calls an external HTTP endpoint
type APIConfig struct {
	Endpoint      string            `json:"apiEndpoint"`
	Method        string            `json:"apiMethod,omitempty"`
	Headers       map[string]string `json:"apiHeaders,omitempty"`
	Body          string            `json:"apiBody,omitempty"`
	JSONPath      string            `json:"jsonPath,omitempty"`
	CacheTTL      int               `json:"cacheTTL,omitempty"` // seconds
	RetryAttempts int               `json:"retryAttempts,omitempty"`
	Common
}

func (APIConfig) Source() Source { return SourceAPI }

// ProfileField names a logical attribute of the signed-in user
type ProfileField string

const (
	ProfileEmail   ProfileField = "email"
	ProfilePhone   ProfileField = "phone"
	ProfileAddress ProfileField = "address"
	ProfileName    ProfileField = "name"
	ProfileCustom  ProfileField = "custom"
)

// ProfileConfig maps the field onto the user's profile
type ProfileConfig struct {
	Field     ProfileField `json:"profileField"`
	CustomKey string       `json:"customKey,omitempty"`
	Common
}

func (ProfileConfig) Source() Source { return SourceProfile }

// MatchCriterion selects how a previous submission is matched
type MatchCriterion string

const (
	MatchEmail  MatchCriterion = "email"
	MatchIP     MatchCriterion = "ip"
	MatchCustom MatchCriterion = "custom"
)

// PreviousConfig lifts a value from the respondent's latest submission
type PreviousConfig struct {
	MatchBy     MatchCriterion `json:"matchBy"`
	MatchField  string         `json:"matchField,omitempty"`
	SourceField string         `json:"sourceField,omitempty"`
	Common
}

func (PreviousConfig) Source() Source { return SourcePrevious }

type prepopulationWire struct {
	Enabled bool            `json:"enabled"`
	Source  Source          `json:"source"`
	Config  json.RawMessage `json:"config,omitempty"`
}

// MarshalJSON writes the {enabled, source, config} wire shape
func (p Prepopulation) MarshalJSON() ([]byte, error) {
	w := prepopulationWire{Enabled: p.Enabled}
	if p.Config != nil {
		w.Source = p.Config.Source()
		raw, err := json.Marshal(p.Config)
		if err != nil {
			return nil, err
		}
		w.Config = raw
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes the config according to the declared source
func (p *Prepopulation) UnmarshalJSON(data []byte) error {
	var w prepopulationWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	p.Enabled = w.Enabled
	p.Config = nil
	if w.Source == "" {
		if len(w.Config) > 0 && string(w.Config) != "null" && string(w.Config) != "{}" {
			return fmt.Errorf("%w: config without source", ErrConfigMismatch)
		}
		return nil
	}

	raw := w.Config
	if len(raw) == 0 || string(raw) == "null" {
		raw = []byte("{}")
	}

	var (
		cfg      SourceConfig
		required string
		err      error
	)
	switch w.Source {
	case SourceURL:
		var c URLConfig
		err = json.Unmarshal(raw, &c)
		cfg, required = c, c.Param
		if required == "" {
			err = errors.Join(err, fmt.Errorf("%w: url source requires urlParam", ErrConfigMismatch))
		}
	case SourceAPI:
		var c APIConfig
		err = json.Unmarshal(raw, &c)
		cfg, required = c, c.Endpoint
		if required == "" {
			err = errors.Join(err, fmt.Errorf("%w: api source requires apiEndpoint", ErrConfigMismatch))
		}
	case SourceProfile:
		var c ProfileConfig
		err = json.Unmarshal(raw, &c)
		cfg = c
		if c.Field == "" {
			err = errors.Join(err, fmt.Errorf("%w: profile source requires profileField", ErrConfigMismatch))
		}
	case SourcePrevious:
		var c PreviousConfig
		err = json.Unmarshal(raw, &c)
		if c.MatchBy == "" {
			c.MatchBy = MatchEmail
		}
		cfg = c
	default:
		return fmt.Errorf("model: unknown prepopulation source %q", w.Source)
	}
	if err != nil {
		return err
	}
	if err := rejectForeignKeys(w.Source, raw); err != nil {
		return err
	}
	p.Config = cfg
	return nil
}

var sourceKeys = map[Source][]string{
	SourceURL:      {"urlParam"},
	SourceAPI:      {"apiEndpoint", "apiMethod", "apiHeaders", "apiBody", "jsonPath", "cacheTTL", "retryAttempts"},
	SourceProfile:  {"profileField", "customKey"},
	SourcePrevious: {"matchBy", "matchField", "sourceField"},
}

// rejectForeignKeys fails when a config carries keys that belong to another source
func rejectForeignKeys(src Source, raw []byte) error {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return err
	}
	for other, names := range sourceKeys {
		if other == src {
			continue
		}
		for _, name := range names {
			if _, ok := keys[name]; ok {
				return fmt.Errorf("%w: %q is not valid for source %q", ErrConfigMismatch, name, src)
			}
		}
	}
	return nil
}
