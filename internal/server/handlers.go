package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/audit"
	"github.com/chatvault/chatvault/internal/session"
	"github.com/chatvault/chatvault/internal/websocket"
)

type chatRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
	// Redaction defaults to enabled when omitted.
	RedactionEnabled *bool `json:"redaction_enabled,omitempty"`
}

type chatResponse struct {
	SessionID        string      `json:"session_id"`
	Answer           string      `json:"answer"`
	RedactedQuestion string      `json:"redacted_question,omitempty"`
	RedactionStats   interface{} `json:"redaction_stats,omitempty"`
	ToolUsed         string      `json:"tool_used,omitempty"`
}

// handleChat runs one conversation turn. A missing session_id starts a
// new session.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	if s.agent == nil {
		s.writeError(w, http.StatusServiceUnavailable, "chat is not configured")
		return
	}
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		s.writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx := r.Context()
	if req.SessionID == "" {
		sess, err := s.sessions.Create(ctx)
		if err != nil {
			s.internalError(w, r, "failed to create session", err)
			return
		}
		req.SessionID = sess.ID
	}

	redact := req.RedactionEnabled == nil || *req.RedactionEnabled

	answer, err := s.agent.Ask(ctx, req.SessionID, req.Question, redact)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "chat turn failed", err)
		return
	}

	atomic.AddInt64(&s.turnCount, 1)
	if redact {
		atomic.AddInt64(&s.redactionCount, int64(answer.NewRedactions))
		s.wsHub.BroadcastEvent(websocket.Event{
			Type:      websocket.EventTypeRedaction,
			Timestamp: time.Now(),
			RequestID: getRequestID(ctx),
			Data: websocket.RedactionEvent{
				SessionID:       req.SessionID,
				TotalRedactions: answer.RedactionStats.TotalRedactions,
				ByType:          answer.RedactionStats.ByType,
			},
		})
	}

	s.wsHub.BroadcastEvent(websocket.Event{
		Type:      websocket.EventTypeTurn,
		Timestamp: time.Now(),
		RequestID: getRequestID(ctx),
		Data: websocket.TurnEvent{
			SessionID:  req.SessionID,
			ToolUsed:   answer.ToolUsed,
			Duration:   time.Since(start),
			StatusCode: http.StatusOK,
		},
	})

	resp := chatResponse{
		SessionID:        req.SessionID,
		Answer:           answer.Text,
		RedactedQuestion: answer.RedactedQuestion,
		ToolUsed:         answer.ToolUsed,
	}
	if redact {
		resp.RedactionStats = answer.RedactionStats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

// handleReset discards a session's history and redaction state.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" {
		s.writeError(w, http.StatusBadRequest, "session_id is required")
		return
	}

	if err := s.engine.ClearSession(r.Context(), req.SessionID); err != nil {
		s.internalError(w, r, "failed to clear redaction state", err)
		return
	}
	if err := s.sessions.Delete(r.Context(), req.SessionID); err != nil {
		s.internalError(w, r, "failed to delete session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "reset",
		"session_id": req.SessionID,
	})
}

func (s *Server) handleSessionNew(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Create(r.Context())
	if err != nil {
		s.internalError(w, r, "failed to create session", err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess)
}

func (s *Server) handleSessionList(w http.ResponseWriter, r *http.Request) {
	list := s.sessions.List(r.Context())
	sort.Slice(list, func(i, j int) bool {
		return list[i].LastActive.After(list[j].LastActive)
	})
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessions": list,
		"count":    len(list),
	})
}

func (s *Server) handleSessionGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load session", err)
		return
	}
	messages, err := s.sessions.History(r.Context(), id, 0)
	if err != nil {
		s.internalError(w, r, "failed to load messages", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":  sess,
		"messages": messages,
	})
}

func (s *Server) handleSessionDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.engine.ClearSession(r.Context(), id); err != nil {
		s.internalError(w, r, "failed to clear redaction state", err)
		return
	}
	if err := s.sessions.Delete(r.Context(), id); err != nil {
		s.internalError(w, r, "failed to delete session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "deleted",
		"session_id": id,
	})
}

// handleSessionExport returns the stored (redacted) conversation plus
// the token mapping for audits.
func (s *Server) handleSessionExport(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	sess, err := s.sessions.Get(r.Context(), id)
	if errors.Is(err, session.ErrNotFound) {
		s.writeError(w, http.StatusNotFound, "session not found")
		return
	}
	if err != nil {
		s.internalError(w, r, "failed to load session", err)
		return
	}
	messages, err := s.sessions.History(r.Context(), id, 0)
	if err != nil {
		s.internalError(w, r, "failed to load messages", err)
		return
	}
	record, err := s.engine.ExportMap(r.Context(), id)
	if err != nil {
		s.internalError(w, r, "failed to export redaction map", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session":   sess,
		"messages":  messages,
		"redaction": record,
	})
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	if query == "" {
		s.writeError(w, http.StatusBadRequest, "q is required")
		return
	}
	hits, err := s.sessions.Search(r.Context(), query, r.URL.Query().Get("session_id"))
	if err != nil {
		s.internalError(w, r, "search failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"query":   query,
		"results": hits,
		"count":   len(hits),
	})
}

func (s *Server) handleRedactionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.engine.Stats(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.internalError(w, r, "failed to read stats", err)
		return
	}
	s.writeJSON(w, http.StatusOK, stats)
}

func (s *Server) handleRedactionMap(w http.ResponseWriter, r *http.Request) {
	record, err := s.engine.ExportMap(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.internalError(w, r, "failed to export redaction map", err)
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// handleAuditEvents returns the latest recorded redaction events for a
// session. Empty when the audit trail is disabled.
func (s *Server) handleAuditEvents(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	events, err := s.trail.Recent(r.Context(), id, limit)
	if err != nil {
		s.internalError(w, r, "failed to query audit events", err)
		return
	}
	if events == nil {
		events = []audit.Event{}
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"session_id": id,
		"events":     events,
		"count":      len(events),
	})
}

func (s *Server) handleClearCache(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	s.sessions.ClearCache(id)
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":     "cache cleared",
		"session_id": id,
	})
}

func (s *Server) handleClearAllCache(w http.ResponseWriter, r *http.Request) {
	n := s.sessions.ClearAllCache()
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "cache cleared",
		"evicted": n,
	})
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintf(w, `{"status":"healthy","timestamp":"%s"}`, time.Now().Format(time.RFC3339))
}

// handleInfo handles info requests
func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"name":            "chatvault",
		"version":         "0.1.0",
		"engine":          s.config.Privacy.Engine,
		"storage_enabled": s.config.Storage.Enabled,
		"github_enabled":  s.config.GitHub.Enabled,
		"uptime":          time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) internalError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	s.logger.WithRequestID(getRequestID(r.Context())).Error(msg, zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, msg)
}
