package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func mustTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	defer func() {
		if r := recover(); r != nil {
			t.Skipf("cannot start local test server in this environment: %v", r)
		}
	}()
	return httptest.NewServer(handler)
}

func TestWebhookNotifierPostsSuccess(t *testing.T) {
	var got webhookPayload
	var auth string
	srv := mustTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "hook-token", nil)
	err := n.RunSucceeded(context.Background(), "run-7", map[string]string{
		"status":      "ok",
		"content_id":  "song-42",
		"content_url": "https://studio.example/song/song-42",
	})
	if err != nil {
		t.Fatalf("RunSucceeded: %v", err)
	}
	if auth != "Bearer hook-token" {
		t.Fatalf("authorization = %q, want bearer token", auth)
	}
	if got.RunID != "run-7" || got.Outcome != "completed" {
		t.Fatalf("payload = %+v, want run-7 completed", got)
	}
	if got.Output["content_id"] != "song-42" {
		t.Fatalf("output content_id = %q", got.Output["content_id"])
	}
	if got.NotifiedAt.IsZero() {
		t.Fatal("payload missing notified_at")
	}
}

func TestWebhookNotifierPostsFailure(t *testing.T) {
	var got webhookPayload
	srv := mustTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "", nil)
	if err := n.RunFailed(context.Background(), "run-8", "style selector missing"); err != nil {
		t.Fatalf("RunFailed: %v", err)
	}
	if got.Outcome != "failed" || got.Reason != "style selector missing" {
		t.Fatalf("payload = %+v, want failed with reason", got)
	}
}

func TestWebhookNotifierRejectsBadStatus(t *testing.T) {
	srv := mustTestServer(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "audit sink unavailable", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "", nil)
	err := n.RunFailed(context.Background(), "run-9", "boom")
	if err == nil {
		t.Fatal("expected error for non-2xx status")
	}
}
