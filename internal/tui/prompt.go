package tui

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"formkit/internal/model"
	"formkit/internal/validation"
)

const skipOption = "(skip)"

// ask prompts for one field and returns the value in the shape the form data holds
func (f *Filler) ask(ctx context.Context, fld model.Field, current any) (any, error) {
	msg := fld.Label
	if msg == "" {
		msg = fld.ID
	}
	if fld.Required {
		msg += " *"
	}
	validate := func(s string) error {
		v, err := parseAnswer(fld, s)
		if err != nil {
			return err
		}
		if m := validation.Field(fld, v); m != "" {
			return errors.New(m)
		}
		return nil
	}

	switch fld.Type {
	case model.FieldTextarea:
		s, err := f.Driver.TextArea(ctx, TextAreaConfig{Message: msg, Help: fld.HelpText, Default: model.Stringify(current), Validator: validate})
		if err != nil {
			return nil, err
		}
		return s, nil

	case model.FieldSelect, model.FieldRadio:
		if len(fld.Options) == 0 {
			break
		}
		options := fld.Options
		if !fld.Required {
			options = append([]string{skipOption}, options...)
		}
		idx, err := f.Driver.Select(ctx, SelectConfig{
			Message:      msg,
			Help:         fld.HelpText,
			Options:      options,
			DefaultIndex: indexOf(options, model.Stringify(current)),
		})
		if err != nil {
			return nil, err
		}
		if idx < 0 || options[idx] == skipOption {
			return "", nil
		}
		return options[idx], nil

	case model.FieldMultiSelect, model.FieldCheckbox:
		if len(fld.Options) == 0 {
			ok, err := f.Driver.Confirm(ctx, ConfirmConfig{Message: msg, Help: fld.HelpText, Default: !model.IsEmpty(current)})
			if err != nil {
				return nil, err
			}
			if ok {
				return []any{true}, nil
			}
			return []any{}, nil
		}
		var selected []string
		if items, ok := model.ToSlice(current); ok {
			for _, it := range items {
				selected = append(selected, model.Stringify(it))
			}
		}
		idx, err := f.Driver.MultiSelect(ctx, SelectConfig{
			Message:  msg,
			Help:     fld.HelpText,
			Options:  fld.Options,
			Defaults: indicesOf(fld.Options, selected),
		})
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(idx))
		for _, i := range idx {
			out = append(out, fld.Options[i])
		}
		return out, nil

	case model.FieldTags:
		var parts []string
		if items, ok := model.ToSlice(current); ok {
			for _, it := range items {
				parts = append(parts, model.Stringify(it))
			}
		}
		s, err := f.Driver.Input(ctx, InputConfig{Message: msg + " (comma separated)", Help: fld.HelpText, Default: strings.Join(parts, ", ")})
		if err != nil {
			return nil, err
		}
		return parseAnswer(fld, s)
	}

	def := ""
	if fld.Type != model.FieldFile {
		def = model.Stringify(current)
	}
	s, err := f.Driver.Input(ctx, InputConfig{Message: msg, Help: fld.HelpText, Default: def, Validator: validate})
	if err != nil {
		return nil, err
	}
	return parseAnswer(fld, s)
}

// parseAnswer converts typed text into a form value. Empty input yields the field default.
func parseAnswer(fld model.Field, s string) (any, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return model.DefaultValue(fld), nil
	}
	switch fld.Type {
	case model.FieldNumber, model.FieldSlider, model.FieldRating:
		n, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("%q is not a number", s)
		}
		return n, nil
	case model.FieldTags:
		out := []any{}
		for _, p := range strings.Split(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	case model.FieldFile:
		return fileValue(s)
	}
	return s, nil
}

// fileValue describes a local file the way an upload widget reports it
func fileValue(path string) (map[string]any, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	name := filepath.Base(path)
	return map[string]any{
		"name": name,
		"type": mime.TypeByExtension(filepath.Ext(name)),
		"size": float64(info.Size()),
	}, nil
}
