package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/envforge/resolve/internal/core"
)

func TestBreakerClientSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok": true}`))
	}))
	defer server.Close()

	bc := NewBreakerClient(NewClient())
	var out struct {
		OK bool `json:"ok"`
	}
	if err := bc.GetJSON(context.Background(), server.URL, &out); err != nil {
		t.Fatalf("GetJSON: %v", err)
	}
	if !out.OK {
		t.Error("expected decoded body")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	bc := NewBreakerClient(NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(0)))

	// Each failed call counts once toward the threshold of 5.
	for i := 0; i < 5; i++ {
		var out any
		if err := bc.GetJSON(context.Background(), server.URL, &out); err == nil {
			t.Fatalf("call %d: expected failure", i)
		}
	}

	states := bc.BreakerState()
	host := extractHost(server.URL)
	if states[host] != "open" {
		t.Fatalf("expected breaker open for %s, states: %v", host, states)
	}

	var out any
	err := bc.GetJSON(context.Background(), server.URL, &out)
	if !errors.Is(err, core.ErrUnavailable) {
		t.Fatalf("open breaker should fail fast with ErrUnavailable, got %v", err)
	}
}

// A not-found is a domain answer, not an outage. It must pass through
// unchanged and never trip the breaker.
func TestBreakerIgnoresNotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	bc := NewBreakerClient(NewClient(WithBaseDelay(time.Millisecond)))

	for i := 0; i < 10; i++ {
		var out any
		err := bc.GetJSON(context.Background(), server.URL, &out)
		if !errors.Is(err, core.ErrNotFound) {
			t.Fatalf("call %d: expected ErrNotFound, got %v", i, err)
		}
	}

	host := extractHost(server.URL)
	if state := bc.BreakerState()[host]; state != "closed" {
		t.Fatalf("breaker should stay closed on not-found, got %s", state)
	}
}

func TestBreakerPerHostIsolation(t *testing.T) {
	bad := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer bad.Close()
	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer good.Close()

	bc := NewBreakerClient(NewClient(WithBaseDelay(time.Millisecond), WithMaxRetries(0)))

	for i := 0; i < 5; i++ {
		var out any
		_ = bc.GetJSON(context.Background(), bad.URL, &out)
	}

	var out any
	if err := bc.GetJSON(context.Background(), good.URL, &out); err != nil {
		t.Fatalf("healthy host should be unaffected, got %v", err)
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		url  string
		want string
	}{
		{"https://registry.example.com/api/v1/components/x", "registry.example.com"},
		{"https://registry.example.com:8443/api", "registry.example.com:8443"},
		{"not a url", "not a url"},
	}
	for _, tt := range tests {
		if got := extractHost(tt.url); got != tt.want {
			t.Errorf("extractHost(%q) = %q, want %q", tt.url, got, tt.want)
		}
	}
}
