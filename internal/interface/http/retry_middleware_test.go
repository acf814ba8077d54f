package http

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yanqian/ai-helloworld/internal/infra/config"
)

func TestWithRetry_DisabledConfigPassesThroughUnchanged(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: false}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, 1, calls)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWithRetry_RetriesOnServerErrorThenSucceeds(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		body, _ := io.ReadAll(r.Body)
		if calls == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		assert.Equal(t, "payload", string(body), "body must be replayed unchanged on retry")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0}, newTestLogger())
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader("payload"))
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, 2, calls)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestWithRetry_GivesUpAfterMaxAttempts(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	assert.Equal(t, 3, calls)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestWithRetry_NeverRetriesNonPostRequests(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, 1, calls)
}

func TestWithRetry_ExcludedPathSkipsRetry(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0, Exclude: []string{"/skip"}}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/skip", nil))

	assert.Equal(t, 1, calls)
}

func TestWithRetry_StreamingPathSuffixSkipsRetry(t *testing.T) {
	calls := 0
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/chat/sessions/abc/messages/stream", nil))

	assert.Equal(t, 1, calls)
}

func TestWithRetry_BodyExceedingLimitReturnsEntityTooLarge(t *testing.T) {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be invoked when body exceeds the retry buffer limit")
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 0}, newTestLogger())
	rec := httptest.NewRecorder()
	oversized := strings.NewReader(strings.Repeat("a", retryBodyLimit+10))
	req := httptest.NewRequest(http.MethodPost, "/x", oversized)
	wrapped.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func TestWithRetry_BackoffDelayGrowsExponentially(t *testing.T) {
	var timestamps []time.Time
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		timestamps = append(timestamps, time.Now())
		w.WriteHeader(http.StatusInternalServerError)
	})

	wrapped := withRetry(inner, config.RetryConfig{Enabled: true, MaxAttempts: 3, BaseBackoff: 20 * time.Millisecond}, newTestLogger())
	rec := httptest.NewRecorder()
	wrapped.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/x", nil))

	require.Len(t, timestamps, 3)
	assert.GreaterOrEqual(t, timestamps[1].Sub(timestamps[0]), 15*time.Millisecond)
	assert.GreaterOrEqual(t, timestamps[2].Sub(timestamps[1]), 35*time.Millisecond)
}
