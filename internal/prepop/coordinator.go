package prepop

import (
	"context"
	"errors"
	"sync"

	"formkit/internal/model"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MaxFieldConcurrency caps the resolver calls one source runs at once
const MaxFieldConcurrency = 8

// Batch is the outcome of one source for the fields that declared it
type Batch struct {
	Source model.Source
	Values map[string]any
}

// Coordinator runs one resolver per source and merges their results with the fallback and
// overwrite policy. It never fails: a failing field falls back or is left out.
type Coordinator struct {
	resolvers map[model.Source]Resolver
	log       *zap.Logger
}

// NewCoordinator registers resolvers by their source; a later resolver replaces an earlier one
func NewCoordinator(log *zap.Logger, resolvers ...Resolver) *Coordinator {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Coordinator{resolvers: make(map[model.Source]Resolver, len(resolvers)), log: log}
	for _, r := range resolvers {
		c.resolvers[r.Source()] = r
	}
	return c
}

// ResolveAll waits for every source and returns the merged values
func (c *Coordinator) ResolveAll(ctx context.Context, fields []model.Field, rc ResolveContext) map[string]any {
	out := make(map[string]any)
	c.Stream(ctx, fields, rc, func(b Batch) {
		for id, v := range b.Values {
			out[id] = v
		}
	})
	return out
}

// Stream delivers one batch per source as soon as that source is done.
// Calls to emit are serialized; Stream returns after the last one.
func (c *Coordinator) Stream(ctx context.Context, fields []model.Field, rc ResolveContext, emit func(Batch)) {
	groups := c.group(fields, rc)

	var (
		mu sync.Mutex
		g  errgroup.Group
	)
	// Plain group, not WithContext: sources are independent and ctx alone cancels them.
	for src, fs := range groups {
		src, fs := src, fs
		g.Go(func() error {
			values := c.resolveSource(ctx, c.resolvers[src], fs, rc)
			mu.Lock()
			defer mu.Unlock()
			emit(Batch{Source: src, Values: values})
			return nil
		})
	}
	_ = g.Wait()
}

// group buckets active directives by source, skipping fields the policy says not to touch
func (c *Coordinator) group(fields []model.Field, rc ResolveContext) map[model.Source][]model.Field {
	groups := make(map[model.Source][]model.Field)
	for _, f := range fields {
		if !f.Prepopulation.Active() {
			continue
		}
		src := f.Prepopulation.Source()
		if _, ok := c.resolvers[src]; !ok {
			c.log.Warn("No resolver for prepopulation source",
				zap.String("form_id", rc.FormID),
				zap.String("field_id", f.ID),
				zap.String("source", string(src)))
			continue
		}
		if !CanApply(f, rc.Current[f.ID]) {
			continue
		}
		groups[src] = append(groups[src], f)
	}
	return groups
}

// resolveSource resolves the fields of one source, at most MaxFieldConcurrency at a time.
// Goroutines never return errors: a failing field must not cancel its siblings.
func (c *Coordinator) resolveSource(ctx context.Context, r Resolver, fields []model.Field, rc ResolveContext) map[string]any {
	var (
		mu  sync.Mutex
		g   errgroup.Group
		out = make(map[string]any, len(fields))
	)
	g.SetLimit(MaxFieldConcurrency)
	for _, f := range fields {
		f := f
		g.Go(func() error {
			v, ok := c.resolveField(ctx, r, f, rc)
			if !ok {
				return nil
			}
			mu.Lock()
			out[f.ID] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (c *Coordinator) resolveField(ctx context.Context, r Resolver, f model.Field, rc ResolveContext) (any, bool) {
	cfg := f.Prepopulation.Config
	v, err := r.Resolve(ctx, f, rc)
	if err == nil && !model.IsEmpty(v) {
		return v, true
	}
	if err != nil && !errors.Is(err, ErrNoValue) {
		c.log.Warn("Prepopulation failed",
			zap.String("form_id", rc.FormID),
			zap.String("field_id", f.ID),
			zap.String("source", string(cfg.Source())),
			zap.Error(err))
	}
	if fb, ok := cfg.Fallback(); ok {
		return fb, true
	}
	return nil, false
}

// CanApply reports whether a prepopulated value may replace current.
// Without overwriteExisting only an untouched default may be replaced.
func CanApply(f model.Field, current any) bool {
	if f.Prepopulation != nil && f.Prepopulation.Config != nil && f.Prepopulation.Config.Overwrite() {
		return true
	}
	return current == nil || model.IsDefault(f, current)
}
