package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHTTPClientComplete_SendsChatRequest(t *testing.T) {
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer key" {
			t.Errorf("unexpected auth header %q", r.Header.Get("Authorization"))
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"[[1]]"}}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL+"/v1/", "key", "gpt-test", time.Second, nil)
	out, err := c.Complete(context.Background(), CompletionRequest{SystemPrompt: "sys", UserPrompt: "user", Temperature: 0.3, MaxTokens: 10})
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if out != "[[1]]" {
		t.Fatalf("unexpected content %q", out)
	}
	if got.Model != "gpt-test" || len(got.Messages) != 2 || got.Messages[0].Role != "system" || got.MaxTokens != 10 {
		t.Fatalf("unexpected request %+v", got)
	}
}

func TestHTTPClientComplete_StatusErrorIsClassifiable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded"}}`))
	}))
	defer srv.Close()

	_, err := NewHTTPClient(srv.URL, "key", "m", time.Second, nil).Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "status=503") {
		t.Fatalf("expected status error, got %v", err)
	}
}

func TestHTTPClientComplete_EmptyAndAPIError(t *testing.T) {
	cases := map[string]string{
		"empty choices": `{"choices":[]}`,
		"api error":     `{"error":{"message":"bad model"}}`,
		"not json":      `<html>`,
	}
	for name, body := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(body))
		}))
		_, err := NewHTTPClient(srv.URL, "key", "m", time.Second, nil).Complete(context.Background(), CompletionRequest{UserPrompt: "x"})
		srv.Close()
		if err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestMockClient_SequencesResponses(t *testing.T) {
	m := &MockClient{Responses: []string{"a", "b"}, Response: "z"}
	for _, want := range []string{"a", "b", "z"} {
		got, _ := m.Complete(context.Background(), CompletionRequest{UserPrompt: want})
		if got != want {
			t.Fatalf("expected %q, got %q", want, got)
		}
	}
	if m.Calls() != 3 || len(m.Requests()) != 3 {
		t.Fatalf("expected 3 recorded calls")
	}
}
