// Package store is the process-wide session registry: per-session state
// with atomic merge updates and an append-only activity log. One writer
// (the owning pipeline runner) mutates a session while stream pollers read
// snapshots concurrently.
package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// RecentWindow bounds what a subscriber with no (or stale) cursor gets.
const RecentWindow = 20

// Store is an in-memory session registry. Sessions are fully independent;
// a single lock suffices because every critical section is short and
// synchronous.
type Store struct {
	mu         sync.RWMutex
	sessions   map[string]*types.Session
	activities map[string][]types.ActivityEntry
	seq        map[string]uint64
	logger     *zap.Logger
}

// New creates an empty store.
func New(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{
		sessions:   make(map[string]*types.Session),
		activities: make(map[string][]types.ActivityEntry),
		seq:        make(map[string]uint64),
		logger:     logger,
	}
}

// Create registers a new session. The store takes ownership of the value.
func (s *Store) Create(session *types.Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session.LastActive = time.Now()
	s.sessions[session.ID] = session
	s.activities[session.ID] = nil
}

// Get returns a snapshot of the session, safe for concurrent readers.
func (s *Store) Get(id string) (*types.Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// Update applies mutate to the session under the write lock. Readers never
// observe a partially applied update. Returns false for unknown sessions.
func (s *Store) Update(id string, mutate func(*types.Session)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[id]
	if !ok {
		return false
	}
	mutate(session)
	session.LastActive = time.Now()
	return true
}

// AppendActivity appends one log entry for the session and returns it.
// Entries get a strictly increasing per-session sequence number.
func (s *Store) AppendActivity(id, mode, action, message string) (types.ActivityEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.sessions[id]; !ok {
		return types.ActivityEntry{}, false
	}

	s.seq[id]++
	entry := types.ActivityEntry{
		ID:        fmt.Sprintf("act_%d_%s", time.Now().UnixMilli(), uuid.NewString()[:8]),
		Seq:       s.seq[id],
		SessionID: id,
		Mode:      mode,
		Action:    action,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	s.activities[id] = append(s.activities[id], entry)
	if session, ok := s.sessions[id]; ok {
		session.LastActive = time.Now()
	}
	return entry, true
}

// ActivitiesSince returns the entries appended after lastID, in order.
// With no cursor, or a cursor that no longer matches anything, it degrades
// to the most recent window rather than replaying the full history.
func (s *Store) ActivitiesSince(id, lastID string) []types.ActivityEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := s.activities[id]
	if lastID == "" {
		return cloneTail(entries, RecentWindow)
	}

	for i := len(entries) - 1; i >= 0; i-- {
		if entries[i].ID == lastID {
			out := make([]types.ActivityEntry, len(entries)-i-1)
			copy(out, entries[i+1:])
			return out
		}
	}
	return cloneTail(entries, RecentWindow)
}

// Delete evicts a session and its log.
func (s *Store) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
	delete(s.activities, id)
	delete(s.seq, id)
}

// Len reports how many sessions are registered.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// RunJanitor evicts terminal sessions that have been inactive longer than
// evictAfter. In-flight sessions are never evicted. Blocks until ctx is
// canceled; run it on its own goroutine.
func (s *Store) RunJanitor(ctx context.Context, evictAfter, sweepInterval time.Duration) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(evictAfter)
		}
	}
}

func (s *Store) sweep(evictAfter time.Duration) {
	cutoff := time.Now().Add(-evictAfter)

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, session := range s.sessions {
		if !session.Status.Terminal() {
			continue
		}
		if session.LastActive.After(cutoff) {
			continue
		}
		delete(s.sessions, id)
		delete(s.activities, id)
		delete(s.seq, id)
		s.logger.Debug("Evicted inactive session", zap.String("session", id))
	}
}

func cloneTail(entries []types.ActivityEntry, n int) []types.ActivityEntry {
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	out := make([]types.ActivityEntry, len(entries))
	copy(out, entries)
	return out
}
