package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry() RetryConfig {
	return RetryConfig{MaxRetries: 2, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, BackoffFactor: 2}
}

func writeEnvelope(w http.ResponseWriter, code int, status, errMsg string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{"status": status, "error": errMsg, "data": data})
}

func TestHealthDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		writeEnvelope(w, http.StatusOK, "completed", "", map[string]any{
			"status":     "degraded",
			"components": map[string]string{"startup:folder:user": "degraded"},
		})
	}))
	defer srv.Close()

	h, err := New(srv.URL, fastRetry()).Health(context.Background())
	if err != nil {
		t.Fatalf("Health: %v", err)
	}
	if h.Status != "degraded" || h.Components["startup:folder:user"] != "degraded" {
		t.Fatalf("health = %+v", h)
	}
}

func TestRetriesUnavailable(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writeEnvelope(w, http.StatusOK, "completed", "", map[string]any{"version": "1.2.3"})
	}))
	defer srv.Close()

	v, err := New(srv.URL, fastRetry()).Version(context.Background())
	if err != nil {
		t.Fatalf("Version: %v", err)
	}
	if v.Version != "1.2.3" || calls.Load() != 3 {
		t.Fatalf("version = %+v after %d calls", v, calls.Load())
	}
}

func TestRetriesExhausted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := New(srv.URL, fastRetry()).Health(context.Background())
	var rse *RetryableStatusError
	if !errors.As(err, &rse) || rse.StatusCode != http.StatusBadGateway {
		t.Fatalf("err = %v", err)
	}
}

func TestFailedResultIsError(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&body)
		writeEnvelope(w, http.StatusForbidden, "failed", "administrator rights required", nil)
	}))
	defer srv.Close()

	err := New(srv.URL, fastRetry()).SetStartupEnabled(context.Background(), "Agent", false)
	if !errors.Is(err, ErrServer) || !strings.Contains(err.Error(), "administrator") {
		t.Fatalf("err = %v", err)
	}
	if body["key"] != "Agent" || body["enabled"] != false {
		t.Fatalf("request body = %v", body)
	}
}

func TestSoftwareQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("q"); got != "visual studio" {
			t.Errorf("q = %q", got)
		}
		writeEnvelope(w, http.StatusOK, "completed", "", []map[string]any{{"name": "Visual Studio Code"}})
	}))
	defer srv.Close()

	list, err := New(srv.URL, fastRetry()).Software(context.Background(), "visual studio")
	if err != nil || len(list) != 1 || list[0]["name"] != "Visual Studio Code" {
		t.Fatalf("Software = %v, %v", list, err)
	}
}

func TestNewAddsScheme(t *testing.T) {
	if c := New("127.0.0.1:8787/", DefaultRetryConfig()); c.base != "http://127.0.0.1:8787" {
		t.Fatalf("base = %q", c.base)
	}
}

func TestApplyJitterBounds(t *testing.T) {
	for i := 0; i < 100; i++ {
		d := applyJitter(100*time.Millisecond, 0.3)
		if d < 70*time.Millisecond || d > 130*time.Millisecond {
			t.Fatalf("jitter out of bounds: %v", d)
		}
	}
	if applyJitter(time.Second, 0) != time.Second {
		t.Fatal("zero jitter should return the delay unchanged")
	}
}
