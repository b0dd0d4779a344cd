package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func chatServer(t *testing.T, replies ...func(w http.ResponseWriter)) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		n := atomic.AddInt32(&calls, 1)
		idx := int(n) - 1
		if idx >= len(replies) {
			idx = len(replies) - 1
		}
		replies[idx](w)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func answer(content string) func(w http.ResponseWriter) {
	return func(w http.ResponseWriter) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]any{
			"id":     "c1",
			"object": "chat.completion",
			"choices": []map[string]any{
				{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"},
			},
		})
	}
}

func serverError(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]any{"error": map[string]any{"message": "boom"}})
}

func newTestJudge(url string) *Judge {
	return NewJudge(&JudgeConfig{APIKey: "k", BaseURL: url, Model: "judge", Timeout: time.Second, Logger: zap.NewNop()})
}

func TestJudge_Verdicts(t *testing.T) {
	tests := []struct {
		reply string
		want  bool
	}{
		{"Yes", true},
		{"no.", false},
		{"Oui", true},
		{"نعم", true},
		{"لا", false},
	}
	for _, tt := range tests {
		srv, _ := chatServer(t, answer(tt.reply))
		got, err := newTestJudge(srv.URL).Relevant(context.Background(), "q", "p")
		if err != nil {
			t.Fatalf("reply %q: %v", tt.reply, err)
		}
		if got != tt.want {
			t.Errorf("reply %q = %v, want %v", tt.reply, got, tt.want)
		}
	}
}

func TestJudge_RetriesOnce(t *testing.T) {
	srv, calls := chatServer(t, serverError, answer("yes"))
	got, err := newTestJudge(srv.URL).Relevant(context.Background(), "q", "p")
	if err != nil || !got {
		t.Fatalf("expected yes after retry, got %v %v", got, err)
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Errorf("calls = %d, want 2", atomic.LoadInt32(calls))
	}
}

func TestJudge_GivesUpAfterAttempts(t *testing.T) {
	srv, calls := chatServer(t, serverError)
	if _, err := newTestJudge(srv.URL).Relevant(context.Background(), "q", "p"); err == nil {
		t.Fatal("expected error")
	}
	if atomic.LoadInt32(calls) != 2 {
		t.Errorf("calls = %d, want 2", atomic.LoadInt32(calls))
	}
}

func TestParseVerdict_Unexpected(t *testing.T) {
	if _, err := parseVerdict("maybe"); err == nil {
		t.Error("expected error for unexpected verdict")
	}
}
