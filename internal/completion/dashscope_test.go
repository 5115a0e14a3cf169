package completion

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *DashScope {
	return &DashScope{
		apiKey: "test-key",
		appID:  "test-app",
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
		log:    zerolog.Nop(),
	}
}

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotPayload completionPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotPayload))
		json.NewEncoder(w).Encode(map[string]any{"output": map[string]string{"text": "建议慢跑三十分钟。"}})
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Complete(context.Background(), "今天练什么")
	require.NoError(t, err)
	assert.Equal(t, "建议慢跑三十分钟。", text)
	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "今天练什么", gotPayload.Input.Prompt)
}

func TestCompleteRetriesTransientFailure(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			http.Error(w, "upstream busy", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"output": map[string]string{"text": "ok"}})
	}))
	defer srv.Close()

	text, err := newTestClient(srv.URL).Complete(context.Background(), "p")
	require.NoError(t, err)
	assert.Equal(t, "ok", text)
	assert.Equal(t, 2, attempts)
}

func TestCompleteGivesUpAfterMaxRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	start := time.Now()
	_, err := newTestClient(srv.URL).Complete(context.Background(), "p")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	// Two backoffs (1s + 2s) between three attempts; no sleep after the last.
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestCompleteEmptyOutputIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"output": map[string]string{"text": ""}})
	}))
	defer srv.Close()

	_, err := newTestClient(srv.URL).Complete(context.Background(), "p")
	assert.Error(t, err)
}

func TestCompleteWithoutCredentials(t *testing.T) {
	c := &DashScope{log: zerolog.Nop(), client: http.DefaultClient}
	_, err := c.Complete(context.Background(), "p")
	assert.Error(t, err)
}
