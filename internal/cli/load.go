package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"formkit/internal/model"
	"formkit/internal/schema"

	gojson "github.com/goccy/go-json"
	"gopkg.in/yaml.v3"
)

// readDocument returns the JSON form of a .json, .yaml or .yml file
func readDocument(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc any
		if err := yaml.Unmarshal(raw, &doc); err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		return gojson.Marshal(doc)
	}
	return raw, nil
}

func loadSchema(ctx context.Context, comp *schema.Compiler, path string) (*model.FormSchema, error) {
	raw, err := readDocument(path)
	if err != nil {
		return nil, err
	}
	return comp.Parse(ctx, raw)
}

// readJSON decodes a JSON or YAML document into v
func readJSON(path string, v any) error {
	raw, err := readDocument(path)
	if err != nil {
		return err
	}
	if err := gojson.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}
