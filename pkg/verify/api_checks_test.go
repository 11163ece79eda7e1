package verify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jingkaihe/evalet/pkg/freeplay"
	"github.com/jingkaihe/evalet/pkg/scenario"
)

func apiVerifier(t *testing.T, handler http.Handler) *Verifier {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := freeplay.New(freeplay.Config{
		APIKey:    "test-key",
		ProjectID: "proj-1",
		BaseURL:   srv.URL,
		VerifySSL: true,
	})
	require.NoError(t, err)

	return testVerifier(t, Options{Client: client})
}

func TestCheckAPIVerifySkippedWhenUnconfigured(t *testing.T) {
	t.Setenv("FREEPLAY_API_KEY", "")
	t.Setenv("FREEPLAY_PROJECT_ID", "")

	v := testVerifier(t, Options{})
	result := v.checkAPIVerify(context.Background(), scenario.Check{
		Type:   scenario.CheckAPIVerify,
		Method: scenario.MethodSearchCompletions,
	})

	assert.True(t, result.Skipped)
	assert.False(t, result.Passed)
	assert.Equal(t, SkipReasonNotConfigured, result.Reason)
}

func TestCheckAPIVerifySkippedWhenDisabled(t *testing.T) {
	v := testVerifier(t, Options{SkipAPI: true})
	result := v.checkAPIVerify(context.Background(), scenario.Check{
		Type:       scenario.CheckAPIVerify,
		Method:     scenario.MethodCheckPromptExists,
		PromptName: "support-bot",
	})

	assert.True(t, result.Skipped)
	assert.Equal(t, SkipReasonDisabled, result.Reason)
}

func TestVerifyCompletionLogged(t *testing.T) {
	t.Run("completions in the window pass", func(t *testing.T) {
		v := apiVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [
				{"id": "old", "start_time": "2025-06-01 09:00:00"},
				{"id": "new", "start_time": "2025-06-01 10:30:00"}
			]}`))
		}))

		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:   scenario.CheckAPIVerify,
			Method: scenario.MethodSearchCompletions,
		})

		assert.True(t, result.Passed)
		require.NotNil(t, result.APIReachable)
		assert.True(t, *result.APIReachable)
		require.NotNil(t, result.CompletionCount)
		assert.Equal(t, 1, *result.CompletionCount)
		require.NotNil(t, result.TotalReturned)
		assert.Equal(t, 2, *result.TotalReturned)
		assert.Equal(t, "2025-06-01 10:00:00", result.Since)
	})

	t.Run("no recent completions fail", func(t *testing.T) {
		v := apiVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [{"id": "old", "start_time": "2025-06-01 09:00:00"}]}`))
		}))

		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:   scenario.CheckAPIVerify,
			Method: scenario.MethodSearchCompletions,
		})

		assert.False(t, result.Passed)
		require.NotNil(t, result.CompletionCount)
		assert.Equal(t, 0, *result.CompletionCount)
	})
}

func TestVerifyPromptExists(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data": [{"name": "support-bot"}, {"name": "triage"}]}`))
	})

	t.Run("exact name match passes", func(t *testing.T) {
		v := apiVerifier(t, handler)
		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:       scenario.CheckAPIVerify,
			Method:     scenario.MethodCheckPromptExists,
			PromptName: "support-bot",
		})

		assert.True(t, result.Passed)
		assert.Equal(t, "support-bot", result.PromptName)
		require.NotNil(t, result.TemplateCount)
		assert.Equal(t, 2, *result.TemplateCount)
	})

	t.Run("match is case sensitive", func(t *testing.T) {
		v := apiVerifier(t, handler)
		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:       scenario.CheckAPIVerify,
			Method:     scenario.MethodCheckPromptExists,
			PromptName: "Support-Bot",
		})

		assert.False(t, result.Passed)
	})
}

func TestVerifyCompletionHasPrompt(t *testing.T) {
	t.Run("linked completion passes and records the template", func(t *testing.T) {
		v := apiVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [
				{"id": "bare", "start_time": "2025-06-01 10:10:00"},
				{"id": "linked", "start_time": "2025-06-01 10:20:00",
				 "completion_metadata": {"prompt_template": "support-bot"}}
			]}`))
		}))

		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:   scenario.CheckAPIVerify,
			Method: scenario.MethodCheckCompletionHasPrompt,
		})

		assert.True(t, result.Passed)
		require.NotNil(t, result.HasPrompt)
		assert.True(t, *result.HasPrompt)
		assert.Equal(t, "support-bot", result.PromptTemplate)
		require.NotNil(t, result.CompletionCount)
		assert.Equal(t, 2, *result.CompletionCount)
	})

	t.Run("no linked completion fails", func(t *testing.T) {
		v := apiVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"data": [{"id": "bare", "start_time": "2025-06-01 10:10:00"}]}`))
		}))

		result := v.checkAPIVerify(context.Background(), scenario.Check{
			Type:   scenario.CheckAPIVerify,
			Method: scenario.MethodCheckCompletionHasPrompt,
		})

		assert.False(t, result.Passed)
		require.NotNil(t, result.HasPrompt)
		assert.False(t, *result.HasPrompt)
		assert.Empty(t, result.PromptTemplate)
	})
}

func TestCheckAPIVerifyHTTPError(t *testing.T) {
	v := apiVerifier(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "no such project", http.StatusNotFound)
	}))

	result := v.checkAPIVerify(context.Background(), scenario.Check{
		Type:   scenario.CheckAPIVerify,
		Method: scenario.MethodSearchCompletions,
	})

	assert.False(t, result.Passed)
	assert.False(t, result.Skipped)
	require.NotNil(t, result.APIReachable)
	assert.True(t, *result.APIReachable)
	assert.Equal(t, http.StatusNotFound, result.StatusCode)
	assert.Contains(t, result.Error, "404")
}

func TestCheckAPIVerifyUnreachable(t *testing.T) {
	if testing.Short() {
		t.Skip("retries against a dead server")
	}

	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client, err := freeplay.New(freeplay.Config{
		APIKey:    "test-key",
		ProjectID: "proj-1",
		BaseURL:   url,
		VerifySSL: true,
	})
	require.NoError(t, err)

	v := testVerifier(t, Options{Client: client, Since: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)})
	result := v.checkAPIVerify(context.Background(), scenario.Check{
		Type:   scenario.CheckAPIVerify,
		Method: scenario.MethodSearchCompletions,
	})

	assert.False(t, result.Passed)
	require.NotNil(t, result.APIReachable)
	assert.False(t, *result.APIReachable)
	assert.NotEmpty(t, result.Error)
}
