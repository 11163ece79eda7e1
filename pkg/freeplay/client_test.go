package freeplay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := New(Config{
		APIKey:    "test-key",
		ProjectID: "proj-1",
		BaseURL:   srv.URL,
		VerifySSL: true,
	})
	require.NoError(t, err)
	client.retryDelay = time.Millisecond
	return client
}

func TestNew(t *testing.T) {
	t.Run("requires credentials", func(t *testing.T) {
		_, err := New(Config{BaseURL: "https://example.com"})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrNotConfigured)
	})

	t.Run("defaults the base URL", func(t *testing.T) {
		client, err := New(Config{APIKey: "k", ProjectID: "p"})
		require.NoError(t, err)
		assert.Equal(t, DefaultBaseURL, client.cfg.BaseURL)
	})
}

func TestNewFromEnv(t *testing.T) {
	t.Setenv("FREEPLAY_API_KEY", "")
	t.Setenv("FREEPLAY_PROJECT_ID", "")

	_, err := NewFromEnv()
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestConfigFromEnv(t *testing.T) {
	tests := []struct {
		name       string
		verifySSL  string
		wantVerify bool
	}{
		{name: "unset verifies", verifySSL: "", wantVerify: true},
		{name: "false disables", verifySSL: "false", wantVerify: false},
		{name: "zero disables", verifySSL: "0", wantVerify: false},
		{name: "case insensitive", verifySSL: "FALSE", wantVerify: false},
		{name: "other values verify", verifySSL: "1", wantVerify: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("FREEPLAY_API_KEY", "key")
			t.Setenv("FREEPLAY_PROJECT_ID", "proj")
			t.Setenv("FREEPLAY_BASE_URL", "https://freeplay.internal")
			t.Setenv("FREEPLAY_VERIFY_SSL", tt.verifySSL)

			cfg := ConfigFromEnv()
			assert.Equal(t, "key", cfg.APIKey)
			assert.Equal(t, "proj", cfg.ProjectID)
			assert.Equal(t, "https://freeplay.internal", cfg.BaseURL)
			assert.Equal(t, tt.wantVerify, cfg.VerifySSL)
			assert.True(t, cfg.Configured())
		})
	}
}

func TestSearchCompletions(t *testing.T) {
	since := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	var gotReq searchRequest
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v2/projects/proj-1/search/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []map[string]interface{}{
				{"id": "old", "start_time": "2025-06-01 09:00:00"},
				{"id": "in-window", "start_time": "2025-06-01 10:30:00"},
				{"id": "untimed"},
			},
		})
	}))

	result, err := client.SearchCompletions(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, "start_time", gotReq.Filters.Field)
	assert.Equal(t, "gte", gotReq.Filters.Operator)
	assert.Equal(t, "2025-06-01 10:00:00", gotReq.Filters.Value)

	assert.Equal(t, 3, result.TotalReturned)
	require.Len(t, result.Completions, 1)
	assert.Equal(t, "in-window", result.Completions[0]["id"])
}

func TestSearchCompletionsEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{name: "data envelope", body: `{"data": [{"id": "a"}, {"id": "b"}]}`, want: 2},
		{name: "completions envelope", body: `{"completions": [{"id": "a"}]}`, want: 1},
		{name: "bare array", body: `[{"id": "a"}, {"id": "b"}, {"id": "c"}]`, want: 3},
		{name: "unrecognized envelope", body: `{"results": 7}`, want: 0},
		{name: "empty data", body: `{"data": []}`, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			result, err := client.SearchCompletions(context.Background(), time.Time{})
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.TotalReturned)
			assert.Len(t, result.Completions, tt.want)
		})
	}
}

func TestListPromptTemplates(t *testing.T) {
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v2/projects/proj-1/prompt-templates", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Write([]byte(`{"data": [
			{"name": "support-bot"},
			{"prompt_template_name": "triage"},
			{"id": 3}
		]}`))
	}))

	names, err := client.ListPromptTemplates(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"support-bot", "triage"}, names)
}

func TestListPromptTemplatesEnvelopes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{name: "templates envelope", body: `{"templates": [{"name": "a"}]}`, want: []string{"a"}},
		{name: "bare array", body: `[{"name": "a"}, {"name": "b"}]`, want: []string{"a", "b"}},
		{name: "name wins over prompt_template_name", body: `{"data": [{"name": "a", "prompt_template_name": "b"}]}`, want: []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Write([]byte(tt.body))
			}))

			names, err := client.ListPromptTemplates(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestDoRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			http.Error(w, "bad gateway", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data": []}`))
	}))

	_, err := client.SearchCompletions(context.Background(), time.Time{})
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestDoDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "no such project", http.StatusNotFound)
	}))

	_, err := client.ListPromptTemplates(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	var calls atomic.Int32
	client := testClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "boom", http.StatusInternalServerError)
	}))

	_, err := client.SearchCompletions(context.Background(), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	assert.Equal(t, int32(3), calls.Load())
}
