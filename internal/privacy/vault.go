package privacy

import (
	"context"
	"fmt"
	"sync"
)

// TokenVault stores the per-session token mapping and category counters
// used to mint stable, deduplicated tokens. Implementations must be safe
// for concurrent use: GetOrCreateToken performs a reverse lookup and a
// counter increment that have to be observed atomically, or concurrent
// Redact calls for the same session could mint duplicate tokens.
type TokenVault interface {
	// GetOrCreateToken returns the existing token for value within the
	// session, or mints LABEL_N with the next per-(session, label)
	// counter and records the mapping.
	GetOrCreateToken(ctx context.Context, sessionID, label, value string) (string, error)
	// Mapping returns a copy of the session's token -> value mapping.
	// Unknown sessions yield an empty map.
	Mapping(ctx context.Context, sessionID string) (map[string]string, error)
	// Clear discards all state for the session. Clearing an unknown
	// session is a no-op.
	Clear(ctx context.Context, sessionID string) error
}

// MemoryVault is the default in-process TokenVault. Session state is
// lazily initialized on first token mint and lives until cleared.
type MemoryVault struct {
	mu       sync.RWMutex
	sessions map[string]*sessionState
}

type sessionState struct {
	tokens   map[string]string // token -> original value
	counters map[string]int    // category label -> last minted suffix
}

// NewMemoryVault creates an empty in-memory token vault.
func NewMemoryVault() *MemoryVault {
	return &MemoryVault{sessions: make(map[string]*sessionState)}
}

// GetOrCreateToken implements TokenVault.
func (v *MemoryVault) GetOrCreateToken(_ context.Context, sessionID, label, value string) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	state, ok := v.sessions[sessionID]
	if !ok {
		state = &sessionState{
			tokens:   make(map[string]string),
			counters: make(map[string]int),
		}
		v.sessions[sessionID] = state
	}

	// Reverse lookup: an already-seen value keeps its token.
	for token, existing := range state.tokens {
		if existing == value {
			return token, nil
		}
	}

	state.counters[label]++
	token := fmt.Sprintf("%s_%d", label, state.counters[label])
	state.tokens[token] = value
	return token, nil
}

// Mapping implements TokenVault.
func (v *MemoryVault) Mapping(_ context.Context, sessionID string) (map[string]string, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make(map[string]string)
	if state, ok := v.sessions[sessionID]; ok {
		for token, value := range state.tokens {
			out[token] = value
		}
	}
	return out, nil
}

// Clear implements TokenVault.
func (v *MemoryVault) Clear(_ context.Context, sessionID string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.sessions, sessionID)
	return nil
}
