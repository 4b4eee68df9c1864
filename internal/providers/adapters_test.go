package providers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func writeJSON(t *testing.T, w http.ResponseWriter, status int, body map[string]any) {
	t.Helper()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		t.Fatalf("encode response: %v", err)
	}
}

func TestInferenceAdapterGenerate(t *testing.T) {
	var gotAuth string
	var gotBody map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/generate" {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		writeJSON(t, w, http.StatusOK, map[string]any{"output": map[string]any{"url": "https://cdn/img.png"}})
	}))
	defer server.Close()

	adapter := NewInferenceAdapter(server.URL, server.Client())
	res, err := adapter.Generate(context.Background(), Request{Prompt: "a red fox", Width: 512, Height: 512}, ModelConfig{Model: "fox-v1"}, Credential{APIKey: "secret", Index: 0})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MediaURL != "https://cdn/img.png" {
		t.Fatalf("unexpected url %q", res.MediaURL)
	}
	if gotAuth != "Bearer secret" {
		t.Fatalf("unexpected auth header %q", gotAuth)
	}
	if gotBody["model"] != "fox-v1" || gotBody["prompt"] != "a red fox" {
		t.Fatalf("unexpected payload %v", gotBody)
	}
}

func TestInferenceAdapterClassifiesQuota(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusTooManyRequests, map[string]any{"error": "rate limited"})
	}))
	defer server.Close()

	adapter := NewInferenceAdapter(server.URL, server.Client())
	_, err := adapter.Generate(context.Background(), Request{Prompt: "x"}, ModelConfig{Model: "m"}, Credential{APIKey: "k"})
	f, ok := AsFailure(err)
	if !ok {
		t.Fatalf("expected failure, got %v", err)
	}
	if f.Kind != FailureQuota || !f.Retryable {
		t.Fatalf("expected retryable quota failure, got %+v", f)
	}
}

func TestInferenceAdapterRejectsBadRequestTerminally(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusUnprocessableEntity, map[string]any{"error": "prompt rejected"})
	}))
	defer server.Close()

	adapter := NewInferenceAdapter(server.URL, server.Client())
	_, err := adapter.Generate(context.Background(), Request{Prompt: "x"}, ModelConfig{Model: "m"}, Credential{APIKey: "k"})
	f, ok := AsFailure(err)
	if !ok || f.Retryable {
		t.Fatalf("expected terminal failure, got %v", err)
	}
}

func TestQueueAdapterSubmitsThenPolls(t *testing.T) {
	var polls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/jobs":
			writeJSON(t, w, http.StatusAccepted, map[string]any{"request_id": "job-7"})
		case r.Method == http.MethodGet && r.URL.Path == "/v1/jobs/job-7":
			if polls.Add(1) < 3 {
				writeJSON(t, w, http.StatusOK, map[string]any{"status": "processing"})
				return
			}
			writeJSON(t, w, http.StatusOK, map[string]any{"status": "finished", "result": map[string]any{"url": "https://cdn/q.mp4"}})
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewQueueAdapter(server.URL, server.Client())
	res, err := adapter.Generate(context.Background(), Request{Prompt: "waves"}, ModelConfig{Model: "vid-1", PollInterval: time.Millisecond, PollAttempts: 10}, Credential{APIKey: "k"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MediaURL != "https://cdn/q.mp4" {
		t.Fatalf("unexpected url %q", res.MediaURL)
	}
	if polls.Load() != 3 {
		t.Fatalf("expected 3 polls got %d", polls.Load())
	}
}

func TestQueueAdapterFailsWithoutJobID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(t, w, http.StatusOK, map[string]any{"accepted": true})
	}))
	defer server.Close()

	adapter := NewQueueAdapter(server.URL, server.Client())
	_, err := adapter.Generate(context.Background(), Request{Prompt: "x"}, ModelConfig{Model: "m", PollInterval: time.Millisecond, PollAttempts: 2}, Credential{APIKey: "k"})
	f, ok := AsFailure(err)
	if !ok || f.Retryable {
		t.Fatalf("expected terminal failure, got %v", err)
	}
}

func TestSessionAdapterClosesSessionAfterGenerate(t *testing.T) {
	var closed atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
			writeJSON(t, w, http.StatusCreated, map[string]any{"id": "sess-1"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions/sess-1/generate":
			writeJSON(t, w, http.StatusOK, map[string]any{"images": []any{map[string]any{"url": "https://cdn/s.png"}}})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/sessions/sess-1":
			closed.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewSessionAdapter(server.URL, server.Client())
	res, err := adapter.Generate(context.Background(), Request{Prompt: "portrait"}, ModelConfig{Model: "sess-m"}, Credential{APIKey: "k"})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if res.MediaURL != "https://cdn/s.png" {
		t.Fatalf("unexpected url %q", res.MediaURL)
	}
	if !closed.Load() {
		t.Fatal("expected session to be closed")
	}
}

func TestSessionAdapterClosesSessionOnFailure(t *testing.T) {
	var closed atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions":
			writeJSON(t, w, http.StatusCreated, map[string]any{"id": "sess-2"})
		case r.Method == http.MethodPost && r.URL.Path == "/v1/sessions/sess-2/generate":
			writeJSON(t, w, http.StatusInternalServerError, map[string]any{"error": "gpu fell over"})
		case r.Method == http.MethodDelete && r.URL.Path == "/v1/sessions/sess-2":
			closed.Store(true)
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	}))
	defer server.Close()

	adapter := NewSessionAdapter(server.URL, server.Client())
	_, err := adapter.Generate(context.Background(), Request{Prompt: "portrait"}, ModelConfig{Model: "sess-m"}, Credential{APIKey: "k"})
	f, ok := AsFailure(err)
	if !ok || f.Kind != FailureProvider || !f.Retryable {
		t.Fatalf("expected retryable provider failure, got %v", err)
	}
	if !closed.Load() {
		t.Fatal("expected session to be closed even on failure")
	}
}
