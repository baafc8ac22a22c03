package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

// memStore is an in-memory Store for manager tests.
type memStore struct {
	sessions map[string]*Session
	messages map[string][]Message
	saveErr  error
}

func newMemStore() *memStore {
	return &memStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *memStore) SaveSession(_ context.Context, sess *Session) error {
	if s.saveErr != nil {
		return s.saveErr
	}
	cp := *sess
	s.sessions[sess.ID] = &cp
	return nil
}

func (s *memStore) LoadSession(_ context.Context, id string) (*Session, error) {
	sess, ok := s.sessions[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	cp := *sess
	return &cp, nil
}

func (s *memStore) DeleteSession(_ context.Context, id string) error {
	delete(s.sessions, id)
	delete(s.messages, id)
	return nil
}

func (s *memStore) SaveMessages(_ context.Context, id string, msgs []Message) error {
	s.messages[id] = append([]Message(nil), msgs...)
	return nil
}

func (s *memStore) LoadMessages(_ context.Context, id string) ([]Message, error) {
	msgs, ok := s.messages[id]
	if !ok {
		return nil, ErrStoreNotFound
	}
	return append([]Message(nil), msgs...), nil
}

func TestManagerCreateGet(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewManager(store, time.Hour, nil)

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if s.ID == "" {
		t.Fatal("empty session id")
	}
	if _, ok := store.sessions[s.ID]; !ok {
		t.Error("session not persisted")
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.ID != s.ID {
		t.Errorf("got = %+v", got)
	}

	if _, err := m.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManagerGetFallsBackToStore(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	store.sessions["old"] = &Session{ID: "old", CreatedAt: time.Now().UTC()}
	store.messages["old"] = []Message{{Role: RoleUser, Content: "[EMAIL_1]"}}

	m := NewManager(store, time.Hour, nil)

	s, err := m.Get(ctx, "old")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if s.ID != "old" {
		t.Errorf("session = %+v", s)
	}

	history, err := m.History(ctx, "old", 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Content != "[EMAIL_1]" {
		t.Errorf("history = %+v", history)
	}
}

func TestManagerAppendAndWindow(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, time.Hour, nil)

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	for i := 0; i < 5; i++ {
		role := RoleUser
		if i%2 == 1 {
			role = RoleAssistant
		}
		if err := m.Append(ctx, s.ID, Message{Role: role, Content: string(rune('a' + i))}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	full, err := m.History(ctx, s.ID, 0)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(full) != 5 {
		t.Fatalf("history = %d messages", len(full))
	}

	windowed, err := m.History(ctx, s.ID, 2)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(windowed) != 2 || windowed[0].Content != "d" || windowed[1].Content != "e" {
		t.Errorf("windowed = %+v", windowed)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 5 {
		t.Errorf("message count = %d", got.MessageCount)
	}

	if err := m.Append(ctx, "missing", Message{Role: RoleUser, Content: "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestManagerDelete(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	m := NewManager(store, time.Hour, nil)

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Append(ctx, s.ID, Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	if err := m.Delete(ctx, s.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := m.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
	if _, ok := store.sessions[s.ID]; ok {
		t.Error("session still in store")
	}
}

func (s *memStore) ListSessionIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids, nil
}

func TestManagerSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemStore()
	// A session that exists only in the store.
	store.sessions["archived"] = &Session{ID: "archived"}
	store.messages["archived"] = []Message{{Role: RoleUser, Content: "deploy [EMAIL_1] to prod"}}

	m := NewManager(store, time.Hour, nil)
	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := m.Append(ctx, s.ID, Message{Role: RoleUser, Content: "Deploy finished"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := m.Append(ctx, s.ID, Message{Role: RoleAssistant, Content: "nothing relevant"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	hits, err := m.Search(ctx, "deploy", "")
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("hits = %+v", hits)
	}

	scoped, err := m.Search(ctx, "deploy", s.ID)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(scoped) != 1 || scoped[0].SessionID != s.ID {
		t.Errorf("scoped hits = %+v", scoped)
	}

	if _, err := m.Search(ctx, "", ""); err == nil {
		t.Error("expected error for empty query")
	}
}

// fieldStore reads every field of the sessions it is handed, the way a
// real store marshals them before writing.
type fieldStore struct {
	mu       sync.Mutex
	lastSeen *Session
}

func (s *fieldStore) SaveSession(_ context.Context, sess *Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = sess.MessageCount
	_ = sess.LastActive
	s.lastSeen = sess
	return nil
}

func (s *fieldStore) LoadSession(_ context.Context, _ string) (*Session, error) {
	return nil, ErrStoreNotFound
}

func (s *fieldStore) DeleteSession(_ context.Context, _ string) error { return nil }

func (s *fieldStore) SaveMessages(_ context.Context, _ string, _ []Message) error { return nil }

func (s *fieldStore) LoadMessages(_ context.Context, _ string) ([]Message, error) {
	return nil, ErrStoreNotFound
}

func TestManagerConcurrentAppend(t *testing.T) {
	ctx := context.Background()
	store := &fieldStore{}
	m := NewManager(store, time.Hour, nil)

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	const workers = 8
	const turns = 20
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < turns; j++ {
				if err := m.Append(ctx, s.ID, Message{Role: RoleUser, Content: "x"}); err != nil {
					t.Errorf("Append failed: %v", err)
				}
				if err := m.Touch(ctx, s.ID); err != nil {
					t.Errorf("Touch failed: %v", err)
				}
				if _, err := m.Get(ctx, s.ID); err != nil {
					t.Errorf("Get failed: %v", err)
				}
			}
		}()
	}
	wg.Wait()

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != workers*turns {
		t.Errorf("message count = %d, want %d", got.MessageCount, workers*turns)
	}
}

func TestManagerReturnsSnapshots(t *testing.T) {
	ctx := context.Background()
	store := &fieldStore{}
	m := NewManager(store, time.Hour, nil)

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Mutating a returned session must not reach the cached copy.
	s.MessageCount = 99
	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 0 {
		t.Errorf("message count = %d after mutating the Create result", got.MessageCount)
	}

	if err := m.Append(ctx, s.ID, Message{Role: RoleUser, Content: "hi"}); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// The store never receives the live cached session.
	m.mu.RLock()
	cached := m.sessions[s.ID]
	m.mu.RUnlock()
	store.mu.Lock()
	leaked := store.lastSeen == cached
	store.mu.Unlock()
	if leaked {
		t.Error("store received the live session, not a snapshot")
	}

	list := m.List(ctx)
	if len(list) != 1 {
		t.Fatalf("list = %+v", list)
	}
	list[0].MessageCount = 42
	got, err = m.Get(ctx, s.ID)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.MessageCount != 1 {
		t.Errorf("message count = %d after mutating the List result", got.MessageCount)
	}
}

func TestManagerSweep(t *testing.T) {
	ctx := context.Background()
	m := NewManager(nil, time.Minute, nil)

	now := time.Now().UTC()
	m.now = func() time.Time { return now }

	s, err := m.Create(ctx)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	// Not yet idle.
	if evicted := m.Sweep(ctx); evicted != 0 {
		t.Errorf("evicted = %d", evicted)
	}

	m.now = func() time.Time { return now.Add(2 * time.Minute) }
	if evicted := m.Sweep(ctx); evicted != 1 {
		t.Errorf("evicted = %d", evicted)
	}
	if _, err := m.Get(ctx, s.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}
