package discordwebhook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

func TestNewRejectsEmptyURL(t *testing.T) {
	if _, err := New("", 0); err == nil {
		t.Fatal("expected error for empty webhook URL")
	}
}

func TestNewRejectsNonDiscordURL(t *testing.T) {
	if _, err := New("https://example.com/webhook", 0); err == nil {
		t.Fatal("expected error for a non-Discord webhook URL")
	}
}

func TestSendEventPostsPayload(t *testing.T) {
	var received atomic.Int32
	var capturedContent string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		var p payload
		if err := json.NewDecoder(r.Body).Decode(&p); err == nil {
			capturedContent = p.Content
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := newForTest(srv.URL, time.Millisecond)
	if err != nil {
		t.Fatalf("newForTest: %v", err)
	}

	if err := n.SendEvent(context.Background(), "group_state_changed", "running"); err != nil {
		t.Fatalf("SendEvent: %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("expected 1 request, got %d", received.Load())
	}
	if capturedContent == "" {
		t.Fatal("expected non-empty content in the posted payload")
	}
}

func TestSendEventRateLimited(t *testing.T) {
	var received atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received.Add(1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	n, err := newForTest(srv.URL, time.Hour)
	if err != nil {
		t.Fatalf("newForTest: %v", err)
	}

	if err := n.SendEvent(context.Background(), "group_state_changed", "running"); err != nil {
		t.Fatalf("first SendEvent: %v", err)
	}
	if err := n.SendEvent(context.Background(), "group_state_changed", "draining"); err != nil {
		t.Fatalf("second SendEvent (should be dropped, not error): %v", err)
	}
	if received.Load() != 1 {
		t.Fatalf("expected exactly 1 request to reach the server, got %d", received.Load())
	}
}

// newForTest builds a Notifier pointed at an arbitrary (non-Discord) test
// server URL, bypassing the host-prefix validation New enforces.
func newForTest(url string, minInterval time.Duration) (*Notifier, error) {
	if minInterval <= 0 {
		minInterval = 10 * time.Second
	}
	n := &Notifier{
		webhookURL: url,
		httpClient: http.DefaultClient,
		limiter:    rate.NewLimiter(rate.Every(minInterval), 1),
	}
	return n, nil
}
