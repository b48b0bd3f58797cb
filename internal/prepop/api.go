package prepop

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"formkit/internal/model"

	gojson "github.com/goccy/go-json"
	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultTimeout       = 10 * time.Second
	DefaultRetryAttempts = 3
	DefaultBaseDelay     = time.Second
	DefaultCacheTTL      = 5 * time.Minute

	maxResponseBytes = 1 << 20
)

// Doer is the part of *http.Client the resolver needs
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// APIOptions are the engine defaults; a field's own apiConfig takes precedence
type APIOptions struct {
	Timeout       time.Duration
	RetryAttempts int
	BaseDelay     time.Duration
	CacheTTL      time.Duration
	CacheSize     int
	Now           func() time.Time
}

func (o APIOptions) withDefaults() APIOptions {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.RetryAttempts <= 0 {
		o.RetryAttempts = DefaultRetryAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = DefaultBaseDelay
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = DefaultCacheTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// StatusError is a non-2xx response from the endpoint
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("prepop: endpoint returned %d", e.Code)
}

// Temporary reports whether another attempt could succeed
func (e *StatusError) Temporary() bool {
	return e.Code >= 500 || e.Code == http.StatusRequestTimeout || e.Code == http.StatusTooManyRequests
}

// APIResolver calls external HTTP endpoints with timeout, linear-backoff retries and a response cache
type APIResolver struct {
	client Doer
	opts   APIOptions
	cache  *Cache
	group  singleflight.Group
	log    *zap.Logger
}

// NewAPIResolver creates a resolver with its own cache. A nil client means http.DefaultClient.
func NewAPIResolver(client Doer, opts APIOptions, log *zap.Logger) *APIResolver {
	if client == nil {
		client = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	opts = opts.withDefaults()
	return &APIResolver{
		client: client,
		opts:   opts,
		cache:  NewCache(opts.CacheSize, opts.Now),
		log:    log,
	}
}

// Cache exposes the response cache
func (r *APIResolver) Cache() *Cache {
	return r.cache
}

func (r *APIResolver) Source() model.Source { return model.SourceAPI }

func (r *APIResolver) Resolve(ctx context.Context, f model.Field, rc ResolveContext) (any, error) {
	cfg, ok := f.Prepopulation.Config.(model.APIConfig)
	if !ok {
		return nil, fmt.Errorf("prepop: field %q: %w", f.ID, model.ErrConfigMismatch)
	}

	path, err := ParsePath(cfg.JSONPath)
	if err != nil {
		return nil, err
	}

	req := requestSpec{
		endpoint: expand(cfg.Endpoint, rc, url.QueryEscape),
		method:   strings.ToUpper(cfg.Method),
		headers:  cfg.Headers,
		body:     expand(cfg.Body, rc, nil),
	}
	if req.method == "" {
		req.method = http.MethodGet
	}
	if req.method != http.MethodGet && req.method != http.MethodPost {
		return nil, fmt.Errorf("prepop: unsupported method %q", cfg.Method)
	}

	key := req.fingerprint()
	doc, hit := r.cache.Get(key)
	if !hit {
		v, err, _ := r.group.Do(key, func() (any, error) {
			if cached, ok := r.cache.Get(key); ok {
				return cached, nil
			}
			attempts := cfg.RetryAttempts
			if attempts <= 0 {
				attempts = r.opts.RetryAttempts
			}
			doc, err := r.fetch(ctx, req, attempts)
			if err != nil {
				return nil, err
			}
			ttl := r.opts.CacheTTL
			if cfg.CacheTTL > 0 {
				ttl = time.Duration(cfg.CacheTTL) * time.Second
			}
			r.cache.Set(key, doc, ttl)
			return doc, nil
		})
		if err != nil {
			return nil, err
		}
		doc = v
	}

	out, err := path.Eval(doc)
	if err != nil {
		return nil, err
	}
	if out == nil {
		return nil, ErrNoValue
	}
	// doc stays in the cache; callers get their own copy to edit
	return clone(out), nil
}

// clone deep-copies a decoded JSON value
func clone(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, e := range t {
			out[k] = clone(e)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = clone(e)
		}
		return out
	default:
		return v
	}
}

// fetch makes up to attempts calls, sleeping attempt x BaseDelay between them
func (r *APIResolver) fetch(ctx context.Context, req requestSpec, attempts int) (any, error) {
	attempt := 0
	backoff := retry.WithMaxRetries(uint64(attempts-1), retry.BackoffFunc(func() (time.Duration, bool) {
		attempt++
		return time.Duration(attempt) * r.opts.BaseDelay, false
	}))

	var doc any
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		v, err := r.once(ctx, req)
		if err == nil {
			doc = v
			return nil
		}
		r.log.Debug("API prepopulation attempt failed",
			zap.String("endpoint", req.endpoint),
			zap.Int("attempt", attempt+1),
			zap.Error(err))

		var se *StatusError
		if errors.As(err, &se) && !se.Temporary() {
			return err
		}
		if errors.Is(err, errDecode) {
			return err
		}
		return retry.RetryableError(err)
	})
	return doc, err
}

var errDecode = errors.New("prepop: malformed response body")

func (r *APIResolver) once(ctx context.Context, req requestSpec) (any, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	var body io.Reader
	if req.method == http.MethodPost && req.body != "" {
		body = strings.NewReader(req.body)
	}
	hr, err := http.NewRequestWithContext(ctx, req.method, req.endpoint, body)
	if err != nil {
		return nil, fmt.Errorf("prepop: build request: %w", err)
	}
	hr.Header.Set("Accept", "application/json")
	if body != nil {
		hr.Header.Set("Content-Type", "application/json")
	}
	for k, v := range req.headers {
		hr.Header.Set(k, v)
	}

	resp, err := r.client.Do(hr)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBytes))
		return nil, &StatusError{Code: resp.StatusCode}
	}

	var doc any
	if err := gojson.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %v", errDecode, err)
	}
	return doc, nil
}

type requestSpec struct {
	endpoint string
	method   string
	headers  map[string]string
	body     string
}

// fingerprint hashes everything that makes two requests different
func (s requestSpec) fingerprint() string {
	h := sha256.New()
	io.WriteString(h, s.method)
	h.Write([]byte{0})
	io.WriteString(h, s.endpoint)
	h.Write([]byte{0})

	keys := make([]string, 0, len(s.headers))
	for k := range s.headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		io.WriteString(h, strings.ToLower(k))
		h.Write([]byte{':'})
		io.WriteString(h, s.headers[k])
		h.Write([]byte{0})
	}
	io.WriteString(h, s.body)
	return hex.EncodeToString(h.Sum(nil))
}

var placeholder = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.\-]+)\s*\}\}`)

// expand replaces {{name}} with values from the form data or the query string.
// Unknown names expand to the empty string.
func expand(tmpl string, rc ResolveContext, escape func(string) string) string {
	if !strings.Contains(tmpl, "{{") {
		return tmpl
	}
	return placeholder.ReplaceAllStringFunc(tmpl, func(m string) string {
		name := placeholder.FindStringSubmatch(m)[1]
		v, _ := rc.lookup(name)
		if escape != nil {
			return escape(v)
		}
		return v
	})
}
