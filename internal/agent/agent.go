// Package agent orchestrates one conversation turn: history assembly,
// redaction for storage, tool routing, and the upstream model call.
//
// The privacy contract is storage-side only: the model and the caller
// both see original text, while everything persisted (user turns and
// assistant turns alike) is redacted first.
package agent

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/audit"
	"github.com/chatvault/chatvault/internal/github"
	"github.com/chatvault/chatvault/internal/llm"
	"github.com/chatvault/chatvault/internal/logger"
	"github.com/chatvault/chatvault/internal/privacy"
	"github.com/chatvault/chatvault/internal/session"
)

const defaultSystemPrompt = "You are a helpful AI assistant."

// RepoTool is the repository introspection surface the agent can route
// questions to. Implemented by the github client.
type RepoTool interface {
	ListRepos(ctx context.Context) ([]github.Repo, error)
	Analyze(ctx context.Context, repo string) (*github.Analysis, error)
	FileContent(ctx context.Context, repo, path string) (string, error)
	Qualify(repo string) string
}

// Config holds agent configuration.
type Config struct {
	HistoryWindow int
	SystemPrompt  string
}

// Answer is the result of one conversation turn. Text carries the
// original, unredacted reply; the redacted forms exist only in storage.
type Answer struct {
	Text             string        `json:"answer"`
	RedactedQuestion string        `json:"redacted_question,omitempty"`
	RedactionStats   privacy.Stats `json:"redaction_stats"`
	// NewRedactions counts only the tokens minted by this turn.
	// RedactionStats is the session's cumulative view.
	NewRedactions int    `json:"new_redactions"`
	ToolUsed      string `json:"tool_used,omitempty"`
}

// Agent ties the redaction engine, session manager, repo tool, and
// model client together.
type Agent struct {
	engine       privacy.Engine
	sessions     *session.Manager
	completer    llm.Completer
	repos        RepoTool
	window       int
	systemPrompt string
	logger       *logger.Logger
	audit        *audit.Trail
}

// SetAuditTrail enables audit recording. A nil trail stays a no-op.
func (a *Agent) SetAuditTrail(trail *audit.Trail) {
	a.audit = trail
}

// New creates an agent. repos may be nil to disable tool routing.
func New(cfg Config, engine privacy.Engine, sessions *session.Manager, completer llm.Completer, repos RepoTool, log *logger.Logger) (*Agent, error) {
	if engine == nil {
		return nil, errors.New("agent: engine must not be nil")
	}
	if sessions == nil {
		return nil, errors.New("agent: session manager must not be nil")
	}
	if completer == nil {
		return nil, errors.New("agent: completer must not be nil")
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = 10
	}
	if cfg.SystemPrompt == "" {
		cfg.SystemPrompt = defaultSystemPrompt
	}
	return &Agent{
		engine:       engine,
		sessions:     sessions,
		completer:    completer,
		repos:        repos,
		window:       cfg.HistoryWindow,
		systemPrompt: cfg.SystemPrompt,
		logger:       log,
	}, nil
}

// Ask processes one user question for the session. When redaction is
// enabled the stored history holds tokens; the reply returned to the
// caller is always the original text.
func (a *Agent) Ask(ctx context.Context, sessionID, question string, redact bool) (*Answer, error) {
	if question == "" {
		return nil, errors.New("agent: empty question")
	}
	if _, err := a.sessions.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	// History is assembled before this turn is appended, and carries
	// redacted content by construction.
	history, err := a.sessions.History(ctx, sessionID, a.window)
	if err != nil {
		return nil, err
	}

	storedQuestion := question
	var statsBefore privacy.Stats
	if redact {
		statsBefore, err = a.engine.Stats(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		var meta *privacy.Metadata
		storedQuestion, meta, err = a.engine.Redact(ctx, question, sessionID)
		if err != nil {
			return nil, fmt.Errorf("agent: redacting question: %w", err)
		}
		a.recordRedactions(ctx, sessionID, meta)
	}
	if err := a.sessions.Append(ctx, sessionID, session.Message{Role: session.RoleUser, Content: storedQuestion}); err != nil {
		return nil, err
	}

	var reply, tool string
	if a.repos != nil {
		reply, tool, err = a.routeRepoIntent(ctx, question)
		if err != nil {
			return nil, err
		}
	}
	if tool == "" {
		reply, err = a.complete(ctx, history, question)
		if err != nil {
			return nil, err
		}
	}

	storedReply := reply
	if redact && reply != "" {
		var meta *privacy.Metadata
		storedReply, meta, err = a.engine.Redact(ctx, reply, sessionID)
		if err != nil {
			return nil, fmt.Errorf("agent: redacting reply: %w", err)
		}
		a.recordRedactions(ctx, sessionID, meta)
	}
	if err := a.sessions.Append(ctx, sessionID, session.Message{Role: session.RoleAssistant, Content: storedReply}); err != nil {
		return nil, err
	}

	answer := &Answer{Text: reply, ToolUsed: tool}
	if redact {
		answer.RedactedQuestion = storedQuestion
		stats, err := a.engine.Stats(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		answer.RedactionStats = stats
		answer.NewRedactions = stats.TotalRedactions - statsBefore.TotalRedactions
	}

	if a.logger != nil {
		a.logger.Info("turn completed",
			zap.String("session_id", sessionID),
			zap.Bool("redaction", redact),
			zap.String("tool", tool),
			zap.Int("history", len(history)),
		)
	}
	return answer, nil
}

func (a *Agent) complete(ctx context.Context, history []session.Message, question string) (string, error) {
	messages := make([]llm.Message, 0, len(history)+2)
	messages = append(messages, llm.Message{Role: "system", Content: a.systemPrompt})
	for _, msg := range history {
		messages = append(messages, llm.Message{Role: msg.Role, Content: msg.Content})
	}
	messages = append(messages, llm.Message{Role: "user", Content: question})

	reply, err := a.completer.Complete(ctx, messages)
	if err != nil {
		return "", fmt.Errorf("agent: completing: %w", err)
	}
	return reply, nil
}

// recordRedactions writes the tokens touched by one Redact call to the
// audit trail. Failures are logged, never surfaced; the turn already
// succeeded.
func (a *Agent) recordRedactions(ctx context.Context, sessionID string, meta *privacy.Metadata) {
	if a.audit == nil || meta == nil {
		return
	}
	for token, redaction := range meta.Redactions {
		err := a.audit.Record(ctx, audit.Event{
			SessionID: sessionID,
			Token:     token,
			Category:  redaction.Type,
			Method:    meta.Method,
		})
		if err != nil && a.logger != nil {
			a.logger.Warn("audit record failed", zap.Error(err))
		}
	}
}

// Reset discards the session's conversation history and its redaction
// state.
func (a *Agent) Reset(ctx context.Context, sessionID string) error {
	if err := a.engine.ClearSession(ctx, sessionID); err != nil {
		return err
	}
	if err := a.audit.Purge(ctx, sessionID); err != nil && a.logger != nil {
		a.logger.Warn("audit purge failed", zap.Error(err))
	}
	return a.sessions.Delete(ctx, sessionID)
}
