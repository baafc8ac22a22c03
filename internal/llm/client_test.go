package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCompleteSuccess(t *testing.T) {
	var gotAuth string
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Choices: []chatChoice{{Message: Message{Role: "assistant", Content: "hello there"}}},
			Usage:   chatUsage{PromptTokens: 12, CompletionTokens: 3},
		})
	}))
	defer srv.Close()

	c, err := NewClient(Config{BaseURL: srv.URL, APIKey: "sk-test", Model: "gpt-4o-mini"}, nil)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	reply, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q", reply)
	}
	if gotAuth != "Bearer sk-test" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotReq.Model != "gpt-4o-mini" || len(gotReq.Messages) != 1 {
		t.Errorf("request = %+v", gotReq)
	}
}

func TestCompleteErrors(t *testing.T) {
	t.Run("http error status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "rate limited", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c, _ := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil)
		if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("api error body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(chatResponse{Error: &chatError{Type: "invalid_request_error", Message: "bad model"}})
		}))
		defer srv.Close()

		c, _ := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil)
		if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("no choices", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			json.NewEncoder(w).Encode(chatResponse{})
		}))
		defer srv.Close()

		c, _ := NewClient(Config{BaseURL: srv.URL, APIKey: "k", Model: "m"}, nil)
		if _, err := c.Complete(context.Background(), []Message{{Role: "user", Content: "hi"}}); err == nil {
			t.Error("expected error")
		}
	})

	t.Run("empty conversation", func(t *testing.T) {
		c, _ := NewClient(Config{BaseURL: "http://unused", APIKey: "k", Model: "m"}, nil)
		if _, err := c.Complete(context.Background(), nil); err == nil {
			t.Error("expected error")
		}
	})
}

func TestNewClientValidation(t *testing.T) {
	if _, err := NewClient(Config{APIKey: "k"}, nil); err == nil {
		t.Error("expected error for missing model")
	}
	if _, err := NewClient(Config{Model: "m"}, nil); err == nil {
		t.Error("expected error for missing api key")
	}
}
