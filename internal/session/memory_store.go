package session

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// memSession pairs session metadata with its messages under one lock, so
// appends on the same id are linearized and a sweep never removes a
// session mid-append.
type memSession struct {
	mu       sync.Mutex
	meta     Session
	messages []Message
	deleted  bool
}

// MemoryStore is an in-memory Store for tests and the memory driver. The
// map lock only guards membership; per-session operations take the
// session's own lock, so unrelated ids do not block each other.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*memSession
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory session store.
func NewMemoryStore(opts ...StoreOption) *MemoryStore {
	cfg := defaultStoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &MemoryStore{
		sessions: make(map[string]*memSession),
		ttl:      cfg.ttl,
		now:      cfg.now,
	}
}

// Create makes a fresh session with a generated id.
func (s *MemoryStore) Create(_ context.Context) (*Session, error) {
	now := s.now()
	sess := &memSession{
		meta: Session{
			ID:        newID(),
			CreatedAt: now,
			ExpiresAt: now.Add(s.ttl),
		},
	}

	s.mu.Lock()
	s.sessions[sess.meta.ID] = sess
	s.mu.Unlock()

	meta := sess.meta
	return &meta, nil
}

// lookup returns the live session for id, or ErrNotFound.
func (s *MemoryStore) lookup(id string) (*memSession, error) {
	s.mu.RLock()
	sess, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	return sess, nil
}

// alive reports whether the session is usable. Callers hold sess.mu.
func (s *MemoryStore) alive(sess *memSession) bool {
	return !sess.deleted && !sess.meta.ExpiresAt.Before(s.now())
}

// Get retrieves session metadata.
func (s *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.alive(sess) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}
	meta := sess.meta
	return &meta, nil
}

// TouchAppend appends one message and extends the expiry by the full TTL.
func (s *MemoryStore) TouchAppend(_ context.Context, id, role, text string) error {
	sess, err := s.lookup(id)
	if err != nil {
		return err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.alive(sess) {
		return fmt.Errorf("session %q: %w", id, ErrNotFound)
	}

	now := s.now()
	sess.messages = append(sess.messages, Message{
		Seq:       len(sess.messages),
		Role:      role,
		Text:      text,
		CreatedAt: now,
	})
	sess.meta.ExpiresAt = now.Add(s.ttl)
	return nil
}

// ListSessions returns live session summaries, newest created first.
func (s *MemoryStore) ListSessions(_ context.Context) ([]Summary, error) {
	s.mu.RLock()
	snapshot := make([]*memSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess)
	}
	s.mu.RUnlock()

	summaries := make([]Summary, 0, len(snapshot))
	for _, sess := range snapshot {
		sess.mu.Lock()
		if s.alive(sess) {
			summaries = append(summaries, Summary{
				ID:           sess.meta.ID,
				MessageCount: len(sess.messages),
				CreatedAt:    sess.meta.CreatedAt,
				ExpiresAt:    sess.meta.ExpiresAt,
			})
		}
		sess.mu.Unlock()
	}

	sort.Slice(summaries, func(i, j int) bool {
		if !summaries[i].CreatedAt.Equal(summaries[j].CreatedAt) {
			return summaries[i].CreatedAt.After(summaries[j].CreatedAt)
		}
		return summaries[i].ID < summaries[j].ID
	})
	return summaries, nil
}

// ReadPage returns one page of messages walking backward from the newest.
func (s *MemoryStore) ReadPage(_ context.Context, id string, page, pageSize int) ([]Message, error) {
	if page < 0 {
		return nil, fmt.Errorf("page %d: %w", page, ErrInvalidPage)
	}
	pageSize = clampPageSize(pageSize)

	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.alive(sess) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}

	start, end := pageBounds(len(sess.messages), page, pageSize)
	out := make([]Message, end-start)
	copy(out, sess.messages[start:end])
	return out, nil
}

// Recent returns the last n messages in ascending Seq order.
func (s *MemoryStore) Recent(_ context.Context, id string, n int) ([]Message, error) {
	sess, err := s.lookup(id)
	if err != nil {
		return nil, err
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if !s.alive(sess) {
		return nil, fmt.Errorf("session %q: %w", id, ErrNotFound)
	}

	if n <= 0 {
		return nil, nil
	}
	start := len(sess.messages) - n
	if start < 0 {
		start = 0
	}
	out := make([]Message, len(sess.messages)-start)
	copy(out, sess.messages[start:])
	return out, nil
}

// Delete removes a session. Absent ids are not an error.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil
	}
	sess.mu.Lock()
	sess.deleted = true
	sess.mu.Unlock()
	delete(s.sessions, id)
	return nil
}

// DeleteIfEmpty removes the session only when it has no messages.
func (s *MemoryStore) DeleteIfEmpty(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[id]
	if !ok {
		return false, nil
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.deleted || len(sess.messages) > 0 {
		return false, nil
	}
	sess.deleted = true
	delete(s.sessions, id)
	return true, nil
}

// SweepExpired deletes every session whose expiry has passed.
func (s *MemoryStore) SweepExpired(_ context.Context) (int, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := 0
	for id, sess := range s.sessions {
		sess.mu.Lock()
		if !sess.deleted && sess.meta.ExpiresAt.Before(now) {
			sess.deleted = true
			delete(s.sessions, id)
			deleted++
		}
		sess.mu.Unlock()
	}
	return deleted, nil
}

// Stats counts live sessions and their messages.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	snapshot := make([]*memSession, 0, len(s.sessions))
	for _, sess := range s.sessions {
		snapshot = append(snapshot, sess)
	}
	s.mu.RUnlock()

	var stats Stats
	for _, sess := range snapshot {
		sess.mu.Lock()
		if s.alive(sess) {
			stats.Sessions++
			stats.Messages += len(sess.messages)
		}
		sess.mu.Unlock()
	}
	return stats, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
