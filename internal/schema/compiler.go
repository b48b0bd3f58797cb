// Package schema checks the structure of form documents before they are decoded into
// model.FormSchema.
package schema

import (
	"bytes"
	"context"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"formkit/internal/model"

	"github.com/hashicorp/golang-lru/v2/expirable"
	js "github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed form.schema.json
var formSchema []byte

const formSchemaURL = "formkit://schema/form.json"

var ErrInvalid = errors.New("schema: invalid form document")

type Compiler struct {
	form  *js.Schema
	cache *expirable.LRU[string, []byte] // document hash -> normalized JSON
}

// NewCompilerWithCache creates a compiler that remembers up to maxSize accepted documents
// for ttl
func NewCompilerWithCache(maxSize int, ttl time.Duration) *Compiler {
	if maxSize <= 0 {
		maxSize = 64
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	c := js.NewCompiler()
	c.Draft = js.Draft2020
	if err := c.AddResource(formSchemaURL, bytes.NewReader(formSchema)); err != nil {
		panic(fmt.Sprintf("schema: add embedded form schema: %v", err))
	}
	compiled, err := c.Compile(formSchemaURL)
	if err != nil {
		panic(fmt.Sprintf("schema: compile embedded form schema: %v", err))
	}
	return &Compiler{
		form:  compiled,
		cache: expirable.NewLRU[string, []byte](maxSize, nil, ttl),
	}
}

func (c *Compiler) key(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

// Parse validates raw against the form document contract, decodes and normalizes it.
// Every call returns a fresh schema the caller may mutate.
func (c *Compiler) Parse(ctx context.Context, raw []byte) (*model.FormSchema, error) {
	key := c.key(raw)
	if normalized, ok := c.cache.Get(key); ok {
		return decode(normalized)
	}

	if err := c.Validate(ctx, raw); err != nil {
		return nil, err
	}
	s, err := decode(raw)
	if err != nil {
		return nil, err
	}
	if err := s.Normalize(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	normalized, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("schema: encode normalized form: %w", err)
	}
	c.cache.Add(key, normalized)
	return s, nil
}

// Validate checks raw against the embedded form contract without decoding it
func (c *Compiler) Validate(ctx context.Context, raw []byte) error {
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if err := c.form.Validate(doc); err != nil {
		var verr *js.ValidationError
		if errors.As(err, &verr) {
			return &Error{Causes: leafMessages(verr)}
		}
		return fmt.Errorf("validation failed: %w", err)
	}
	return nil
}

func decode(raw []byte) (*model.FormSchema, error) {
	var s model.FormSchema
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	return &s, nil
}
