// Package freeplay is a minimal client for the Freeplay observability API,
// covering the calls the verification engine needs: searching recent
// completions and listing prompt templates. Responses are handled
// schema-on-read because deployments disagree on envelope shapes.
package freeplay

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/jingkaihe/evalet/pkg/logger"
	"github.com/pkg/errors"
)

// DefaultBaseURL is used when FREEPLAY_BASE_URL is not set.
const DefaultBaseURL = "https://api.freeplay.ai"

// ErrNotConfigured indicates the client cannot be constructed from the
// environment. API checks are skipped, not failed, when this is returned.
var ErrNotConfigured = errors.New("freeplay API not configured: FREEPLAY_API_KEY and FREEPLAY_PROJECT_ID are required")

// Config carries the connection settings for the Freeplay API.
type Config struct {
	APIKey    string
	ProjectID string
	BaseURL   string
	VerifySSL bool
}

// ConfigFromEnv builds a Config from FREEPLAY_* environment variables.
func ConfigFromEnv() Config {
	sslEnv := strings.ToLower(os.Getenv("FREEPLAY_VERIFY_SSL"))
	verify := sslEnv != "false" && sslEnv != "0"
	return Config{
		APIKey:    os.Getenv("FREEPLAY_API_KEY"),
		ProjectID: os.Getenv("FREEPLAY_PROJECT_ID"),
		BaseURL:   os.Getenv("FREEPLAY_BASE_URL"),
		VerifySSL: verify,
	}
}

// Configured reports whether the required settings are present.
func (c Config) Configured() bool {
	return c.APIKey != "" && c.ProjectID != ""
}

// Completion is one completion record as returned by the API.
type Completion map[string]interface{}

// SearchResult is the outcome of a completion search: the completions inside
// the verification window plus how many the server returned before the
// client-side filter.
type SearchResult struct {
	Completions   []Completion
	TotalReturned int
}

// Client talks to the Freeplay API.
type Client struct {
	cfg        Config
	httpClient *http.Client
	retryDelay time.Duration
}

// New creates a client, validating the configuration.
func New(cfg Config) (*Client, error) {
	if !cfg.Configured() {
		return nil, ErrNotConfigured
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}

	transport := http.DefaultTransport
	if !cfg.VerifySSL {
		transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout:   10 * time.Second,
			Transport: transport,
		},
		retryDelay: 500 * time.Millisecond,
	}, nil
}

// NewFromEnv creates a client from FREEPLAY_* environment variables.
func NewFromEnv() (*Client, error) {
	return New(ConfigFromEnv())
}

// ProjectID returns the configured project.
func (c *Client) ProjectID() string {
	return c.cfg.ProjectID
}

type filter struct {
	Field    string `json:"field"`
	Operator string `json:"operator"`
	Value    string `json:"value"`
}

type searchRequest struct {
	Filters filter `json:"filters"`
}

// SearchCompletions returns completions recorded at or after since. The
// server-side filter is advisory; results are filtered again client-side
// because some deployments ignore it. Completions without a parseable
// timestamp cannot be placed in the window and are dropped.
func (c *Client) SearchCompletions(ctx context.Context, since time.Time) (SearchResult, error) {
	payload := searchRequest{
		Filters: filter{Field: "start_time", Operator: "gte", Value: since.Format(TimeLayout)},
	}

	var raw json.RawMessage
	path := fmt.Sprintf("/api/v2/projects/%s/search/completions", c.cfg.ProjectID)
	if err := c.do(ctx, http.MethodPost, path, payload, &raw); err != nil {
		return SearchResult{}, errors.Wrap(err, "failed to search completions")
	}

	all := decodeCompletions(raw)
	return SearchResult{
		Completions:   filterSince(all, since),
		TotalReturned: len(all),
	}, nil
}

// ListPromptTemplates returns the names of the project's prompt templates.
func (c *Client) ListPromptTemplates(ctx context.Context) ([]string, error) {
	var raw json.RawMessage
	path := fmt.Sprintf("/api/v2/projects/%s/prompt-templates", c.cfg.ProjectID)
	if err := c.do(ctx, http.MethodGet, path, nil, &raw); err != nil {
		return nil, errors.Wrap(err, "failed to list prompt templates")
	}
	return decodeTemplateNames(raw), nil
}

// APIError is an HTTP error response from the API. Its presence proves
// the API was reachable; the status code separates client from server
// faults.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("freeplay API returned %d: %s", e.StatusCode, e.Body)
}

func (c *Client) do(ctx context.Context, method, path string, payload, out interface{}) error {
	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + path

	attempt := func() error {
		var body io.Reader
		if payload != nil {
			data, err := json.Marshal(payload)
			if err != nil {
				return errors.Wrap(err, "failed to encode request")
			}
			body = bytes.NewReader(data)
		}

		req, err := http.NewRequestWithContext(ctx, method, endpoint, body)
		if err != nil {
			return errors.Wrap(err, "failed to build request")
		}
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		req.Header.Set("Accept", "application/json")
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		data, err := io.ReadAll(io.LimitReader(resp.Body, 10*1024*1024))
		if err != nil {
			return errors.Wrap(err, "failed to read response")
		}

		if resp.StatusCode >= 400 {
			return &APIError{StatusCode: resp.StatusCode, Body: snippet(data)}
		}

		if out != nil {
			if err := json.Unmarshal(data, out); err != nil {
				return errors.Wrapf(err, "failed to decode %s response", path)
			}
		}
		return nil
	}

	return retry.Do(
		attempt,
		retry.RetryIf(isRetryableError),
		retry.Attempts(3),
		retry.Delay(c.retryDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(2*time.Second),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			logger.G(ctx).WithError(err).WithField("attempt", n+1).WithField("path", path).Warn("retrying freeplay API call")
		}),
	)
}

// isRetryableError allows retries on transport failures and server errors,
// never on client errors or context cancellation.
func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode >= 500
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func snippet(data []byte) string {
	const limit = 200
	s := strings.TrimSpace(string(data))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}

// decodeCompletions accepts {"data": [...]}, {"completions": [...]} or a bare
// array.
func decodeCompletions(raw json.RawMessage) []Completion {
	if len(raw) == 0 {
		return nil
	}

	var envelope struct {
		Data        []Completion `json:"data"`
		Completions []Completion `json:"completions"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		if envelope.Data != nil {
			return envelope.Data
		}
		if envelope.Completions != nil {
			return envelope.Completions
		}
	}

	var bare []Completion
	if err := json.Unmarshal(raw, &bare); err == nil {
		return bare
	}
	return nil
}

// decodeTemplateNames accepts the same envelope variants as
// decodeCompletions, with names under "name" or "prompt_template_name".
func decodeTemplateNames(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}

	var envelope struct {
		Data      []map[string]interface{} `json:"data"`
		Templates []map[string]interface{} `json:"templates"`
	}
	var items []map[string]interface{}
	if err := json.Unmarshal(raw, &envelope); err == nil {
		switch {
		case envelope.Data != nil:
			items = envelope.Data
		case envelope.Templates != nil:
			items = envelope.Templates
		}
	}
	if items == nil {
		_ = json.Unmarshal(raw, &items)
	}

	var names []string
	for _, item := range items {
		if name, ok := item["name"].(string); ok && name != "" {
			names = append(names, name)
			continue
		}
		if name, ok := item["prompt_template_name"].(string); ok && name != "" {
			names = append(names, name)
		}
	}
	return names
}
