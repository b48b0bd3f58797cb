// Package submission is the wire contract of the submission API and a client for it.
package submission

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"formkit/internal/quiz"
	"formkit/internal/runtime"

	"go.uber.org/zap"
)

// DuplicateErrorText is the error value that marks a duplicate rejection on the wire
const DuplicateErrorText = "Duplicate submission detected"

// Request is the body posted to the submission endpoint
type Request struct {
	Data map[string]any `json:"data"`
}

// Response is either {success,id} or {error,message} with optional cooldown metadata.
// TimeRemaining is in seconds.
type Response struct {
	Success           bool              `json:"success"`
	ID                string            `json:"id,omitempty"`
	Quiz              *quiz.Result      `json:"quiz,omitempty"`
	Error             string            `json:"error,omitempty"`
	Message           string            `json:"message,omitempty"`
	TimeRemaining     *float64          `json:"timeRemaining,omitempty"`
	AttemptsRemaining *int              `json:"attemptsRemaining,omitempty"`
	Errors            map[string]string `json:"errors,omitempty"`
}

// Err converts a failed response into an error; duplicates become *runtime.DuplicateError
func (r Response) Err() error {
	if r.Success {
		return nil
	}
	if r.Error == DuplicateErrorText {
		de := &runtime.DuplicateError{Message: r.Message, AttemptsRemaining: r.AttemptsRemaining}
		if de.Message == "" {
			de.Message = r.Error
		}
		if r.TimeRemaining != nil {
			de.TimeRemaining = time.Duration(*r.TimeRemaining * float64(time.Second))
		}
		return de
	}
	msg := r.Message
	if msg == "" {
		msg = r.Error
	}
	if msg == "" {
		msg = "submission rejected"
	}
	return fmt.Errorf("submission: %s", msg)
}

// DuplicateResponse builds the wire shape of a duplicate rejection
func DuplicateResponse(d Decision) Response {
	resp := Response{Error: DuplicateErrorText, Message: d.Message, AttemptsRemaining: d.AttemptsRemaining}
	if d.TimeRemaining > 0 {
		secs := d.TimeRemaining.Seconds()
		resp.TimeRemaining = &secs
	}
	return resp
}

// Client posts submissions to a formkit API server
type Client struct {
	baseURL string
	http    *http.Client
	log     *zap.Logger
}

// NewClient creates a client for the server at baseURL. A nil http client gets a 30s timeout.
func NewClient(baseURL string, hc *http.Client, log *zap.Logger) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc, log: log}
}

var _ runtime.Submitter = (*Client)(nil)

// Submit sends data once; the caller decides whether to try again
func (c *Client) Submit(ctx context.Context, formID string, data map[string]any) (string, error) {
	body, err := json.Marshal(Request{Data: data})
	if err != nil {
		return "", fmt.Errorf("submission: encode: %w", err)
	}
	endpoint := fmt.Sprintf("%s/v1/forms/%s/submissions", c.baseURL, url.PathEscape(formID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("submission: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("submission: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("submission: read response: %w", err)
	}
	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return "", fmt.Errorf("submission: server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if err := out.Err(); err != nil {
		c.log.Debug("Submission rejected", zap.String("form_id", formID), zap.Int("status", resp.StatusCode), zap.Error(err))
		return "", err
	}
	return out.ID, nil
}
