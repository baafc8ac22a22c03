package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/chatvault/chatvault/internal/agent"
	"github.com/chatvault/chatvault/internal/config"
	"github.com/chatvault/chatvault/internal/llm"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/privacy"
	"github.com/chatvault/chatvault/internal/session"
)

type fakeCompleter struct {
	reply string
}

func (f *fakeCompleter) Complete(_ context.Context, _ []llm.Message) (string, error) {
	return f.reply, nil
}

func newTestServer(t *testing.T, mutate func(*config.Config)) *Server {
	t.Helper()
	cfg := config.GetDefaults()
	cfg.Server.RateLimit.Enabled = false
	if mutate != nil {
		mutate(cfg)
	}

	engine := privacy.NewRedactor(nil, nil, nil, nil)
	sessions := session.NewManager(nil, time.Hour, nil)
	ag, err := agent.New(agent.Config{}, engine, sessions, &fakeCompleter{reply: "reply text"}, nil, nil)
	if err != nil {
		t.Fatalf("agent.New failed: %v", err)
	}

	s, err := New(cfg, logger.Nop(), engine, sessions, ag)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func doJSON(t *testing.T, s *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal failed: %v", err)
		}
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func TestChatCreatesSessionAndRedacts(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{
		Question: "My email is bob@x.com",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if resp.SessionID == "" {
		t.Error("no session id assigned")
	}
	if resp.Answer != "reply text" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if !strings.Contains(resp.RedactedQuestion, "[EMAIL_1]") {
		t.Errorf("redacted question = %q", resp.RedactedQuestion)
	}

	// The stored history holds tokens only.
	rec = doJSON(t, s, http.MethodGet, "/api/session/"+resp.SessionID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "bob@x.com") {
		t.Errorf("stored history leaked PII: %s", rec.Body.String())
	}
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{SessionID: "ghost", Question: "hi"})
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestSessionLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/session/new", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	var created session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/session/list", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), created.ID) {
		t.Errorf("list status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodDelete, "/api/session/"+created.ID, nil)
	if rec.Code != http.StatusOK {
		t.Errorf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/session/"+created.ID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d", rec.Code)
	}
}

func TestRedactionStatsAndMap(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{Question: "Call 555-123-4567 and email bob@x.com"})
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/session/"+resp.SessionID+"/redaction-stats", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("stats status = %d", rec.Code)
	}
	var stats privacy.Stats
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if stats.TotalRedactions != 2 {
		t.Errorf("stats = %+v", stats)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/session/"+resp.SessionID+"/redaction-map", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("map status = %d", rec.Code)
	}
	var record privacy.ExportRecord
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if record.RedactionMap["EMAIL_1"] != "bob@x.com" {
		t.Errorf("map = %+v", record.RedactionMap)
	}
}

func TestSearch(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{Question: "tell me about kubernetes"})
	if rec.Code != http.StatusOK {
		t.Fatalf("chat status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/search?q=kubernetes", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("search status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "kubernetes") {
		t.Errorf("search body = %s", rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/api/search", nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing query status = %d", rec.Code)
	}
}

func TestReset(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{Question: "my email is bob@x.com"})
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/reset", map[string]string{"session_id": resp.SessionID})
	if rec.Code != http.StatusOK {
		t.Fatalf("reset status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/session/"+resp.SessionID, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after reset status = %d", rec.Code)
	}
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.Server.RateLimit.Enabled = true
		cfg.Server.RateLimit.RequestsPerSecond = 1
		cfg.Server.RateLimit.Burst = 2
	})

	var limited bool
	for i := 0; i < 5; i++ {
		rec := doJSON(t, s, http.MethodGet, "/api/session/list", nil)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
			break
		}
	}
	if !limited {
		t.Error("rate limit never triggered")
	}
}

func TestRedactionCounterAddsPerTurnDelta(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{Question: "my email is bob@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var resp chatResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	// A repeated value reuses its token; the counter only moves for
	// freshly minted ones.
	rec = doJSON(t, s, http.MethodPost, "/api/chat", chatRequest{SessionID: resp.SessionID, Question: "again: bob@x.com"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	if got := atomic.LoadInt64(&s.redactionCount); got != 1 {
		t.Errorf("redaction counter = %d, want 1", got)
	}
	if got := atomic.LoadInt64(&s.turnCount); got != 2 {
		t.Errorf("turn counter = %d, want 2", got)
	}
}

func TestHealthAndInfo(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/health", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "healthy") {
		t.Errorf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodGet, "/info", nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "chatvault") {
		t.Errorf("info = %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuditEventsWithoutTrail(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodGet, "/api/session/any/audit-events", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"count":0`) {
		t.Errorf("body = %s", rec.Body.String())
	}
}

func TestCacheClear(t *testing.T) {
	s := newTestServer(t, nil)

	rec := doJSON(t, s, http.MethodPost, "/api/session/new", nil)
	var created session.Session
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode failed: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/session/"+created.ID+"/clear-cache", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear-cache status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/cache/clear-all", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("clear-all status = %d", rec.Code)
	}
}
