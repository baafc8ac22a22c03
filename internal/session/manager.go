package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chatvault/chatvault/internal/logger"
)

// ErrNotFound is returned when a session id is unknown to both the
// in-memory cache and the backing store.
var ErrNotFound = errors.New("session not found")

// Store persists sessions and their message history. Implementations
// must tolerate concurrent calls for different sessions.
type Store interface {
	SaveSession(ctx context.Context, s *Session) error
	LoadSession(ctx context.Context, id string) (*Session, error)
	DeleteSession(ctx context.Context, id string) error
	SaveMessages(ctx context.Context, sessionID string, messages []Message) error
	LoadMessages(ctx context.Context, sessionID string) ([]Message, error)
}

// ErrStoreNotFound is returned by Store implementations for unknown
// keys, so the manager can distinguish absence from transport failure.
var ErrStoreNotFound = errors.New("object not found")

// Manager tracks active conversations in memory with write-through to
// an optional durable store. With no store configured, sessions live
// only for the process lifetime.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message

	store  Store
	ttl    time.Duration
	logger *logger.Logger
	now    func() time.Time
}

// NewManager creates a session manager. store may be nil for purely
// in-memory operation.
func NewManager(store Store, ttl time.Duration, log *logger.Logger) *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
		store:    store,
		ttl:      ttl,
		logger:   log,
		now:      time.Now,
	}
}

// Create starts a new session with a generated id. The returned
// session is a snapshot; the cached copy stays private to the manager.
func (m *Manager) Create(ctx context.Context) (*Session, error) {
	now := m.now().UTC()
	s := &Session{
		ID:         uuid.NewString(),
		CreatedAt:  now,
		LastActive: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	snapshot := *s
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveSession(ctx, &snapshot); err != nil {
			return nil, fmt.Errorf("failed to persist session: %w", err)
		}
	}
	if m.logger != nil {
		m.logger.Info("session created", zap.String("session_id", snapshot.ID))
	}
	return &snapshot, nil
}

// Get returns a snapshot of the session, falling back to the store for
// sessions created by a previous process.
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	m.mu.RLock()
	s, ok := m.sessions[id]
	var snapshot Session
	if ok {
		snapshot = *s
	}
	m.mu.RUnlock()
	if ok {
		return &snapshot, nil
	}

	if m.store == nil {
		return nil, ErrNotFound
	}
	s, err := m.store.LoadSession(ctx, id)
	if errors.Is(err, ErrStoreNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	m.mu.Lock()
	if cached, exists := m.sessions[id]; exists {
		s = cached
	} else {
		m.sessions[id] = s
	}
	snapshot = *s
	m.mu.Unlock()
	return &snapshot, nil
}

// Touch updates the session's last-active timestamp.
func (m *Manager) Touch(ctx context.Context, id string) error {
	m.mu.Lock()
	s, ok := m.sessions[id]
	var snapshot Session
	if ok {
		s.LastActive = m.now().UTC()
		snapshot = *s
	}
	m.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	if m.store != nil {
		if err := m.store.SaveSession(ctx, &snapshot); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// Append records a conversation turn and persists the full history.
func (m *Manager) Append(ctx context.Context, id string, msg Message) error {
	if msg.Timestamp.IsZero() {
		msg.Timestamp = m.now().UTC()
	}

	m.mu.Lock()
	s, ok := m.sessions[id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	m.messages[id] = append(m.messages[id], msg)
	s.MessageCount = len(m.messages[id])
	s.LastActive = m.now().UTC()
	// The store sees a private snapshot; the live session keeps
	// changing under concurrent turns.
	snapshot := *s
	history := make([]Message, len(m.messages[id]))
	copy(history, m.messages[id])
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.SaveMessages(ctx, id, history); err != nil {
			return fmt.Errorf("failed to persist messages: %w", err)
		}
		if err := m.store.SaveSession(ctx, &snapshot); err != nil {
			return fmt.Errorf("failed to persist session: %w", err)
		}
	}
	return nil
}

// History returns the most recent window messages, oldest first.
// window <= 0 returns the full history.
func (m *Manager) History(ctx context.Context, id string, window int) ([]Message, error) {
	m.mu.RLock()
	msgs, ok := m.messages[id]
	m.mu.RUnlock()

	if !ok && m.store != nil {
		loaded, err := m.store.LoadMessages(ctx, id)
		if errors.Is(err, ErrStoreNotFound) {
			loaded = nil
		} else if err != nil {
			return nil, fmt.Errorf("failed to load messages: %w", err)
		}
		m.mu.Lock()
		if _, exists := m.messages[id]; !exists {
			m.messages[id] = loaded
		}
		msgs = m.messages[id]
		m.mu.Unlock()
	}

	if window > 0 && len(msgs) > window {
		msgs = msgs[len(msgs)-window:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, nil
}

// Lister is an optional Store capability for enumerating persisted
// sessions. Search uses it to reach sessions not currently cached.
type Lister interface {
	ListSessionIDs(ctx context.Context) ([]string, error)
}

// SearchHit is one message matched by Search.
type SearchHit struct {
	SessionID string  `json:"session_id"`
	Message   Message `json:"message"`
}

// Search scans message history for a case-insensitive substring match.
// Stored content is redacted before it gets here, so matches never
// expose raw PII. sessionID narrows the search to one session; empty
// searches everything reachable.
func (m *Manager) Search(ctx context.Context, query, sessionID string) ([]SearchHit, error) {
	if query == "" {
		return nil, errors.New("empty search query")
	}
	needle := strings.ToLower(query)

	ids := make(map[string]struct{})
	if sessionID != "" {
		ids[sessionID] = struct{}{}
	} else {
		m.mu.RLock()
		for id := range m.sessions {
			ids[id] = struct{}{}
		}
		m.mu.RUnlock()
		if lister, ok := m.store.(Lister); ok {
			stored, err := lister.ListSessionIDs(ctx)
			if err != nil {
				return nil, fmt.Errorf("failed to list sessions: %w", err)
			}
			for _, id := range stored {
				ids[id] = struct{}{}
			}
		}
	}

	var hits []SearchHit
	for id := range ids {
		msgs, err := m.History(ctx, id, 0)
		if err != nil {
			return nil, err
		}
		for _, msg := range msgs {
			if strings.Contains(strings.ToLower(msg.Content), needle) {
				hits = append(hits, SearchHit{SessionID: id, Message: msg})
			}
		}
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].SessionID != hits[j].SessionID {
			return hits[i].SessionID < hits[j].SessionID
		}
		return hits[i].Message.Timestamp.Before(hits[j].Message.Timestamp)
	})
	return hits, nil
}

// Delete removes the session and its history everywhere.
func (m *Manager) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.messages, id)
	m.mu.Unlock()

	if m.store != nil {
		if err := m.store.DeleteSession(ctx, id); err != nil && !errors.Is(err, ErrStoreNotFound) {
			return fmt.Errorf("failed to delete session: %w", err)
		}
	}
	if m.logger != nil {
		m.logger.Info("session deleted", zap.String("session_id", id))
	}
	return nil
}

// ClearCache drops one session from the in-memory cache. The durable
// copy, if any, is untouched and reloads on next access.
func (m *Manager) ClearCache(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	delete(m.messages, id)
	m.mu.Unlock()
}

// ClearAllCache drops every cached session. Returns the number evicted.
func (m *Manager) ClearAllCache() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := len(m.sessions)
	m.sessions = make(map[string]*Session)
	m.messages = make(map[string][]Message)
	return n
}

// List returns snapshots of the sessions currently cached in memory.
func (m *Manager) List(_ context.Context) []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		cp := *s
		out = append(out, &cp)
	}
	return out
}

// Sweep evicts sessions idle past the TTL from the in-memory cache.
// Durable copies stay in the store until deleted explicitly.
func (m *Manager) Sweep(_ context.Context) int {
	if m.ttl <= 0 {
		return 0
	}
	cutoff := m.now().UTC().Add(-m.ttl)

	m.mu.Lock()
	defer m.mu.Unlock()
	evicted := 0
	for id, s := range m.sessions {
		if s.LastActive.Before(cutoff) {
			delete(m.sessions, id)
			delete(m.messages, id)
			evicted++
		}
	}
	if evicted > 0 && m.logger != nil {
		m.logger.Debug("idle sessions evicted", zap.Int("count", evicted))
	}
	return evicted
}
