package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

func newSession(id string) *types.Session {
	return &types.Session{
		ID:        id,
		Status:    types.StatusInitializing,
		StartedAt: time.Now(),
	}
}

func TestStore_UpdateMergesAtomically(t *testing.T) {
	s := New(zap.NewNop())
	s.Create(newSession("pg_1"))

	ok := s.Update("pg_1", func(sess *types.Session) {
		sess.Status = types.StatusProcessing
		sess.HealerProgress = 30
	})
	require.True(t, ok)

	got, ok := s.Get("pg_1")
	require.True(t, ok)
	assert.Equal(t, types.StatusProcessing, got.Status)
	assert.Equal(t, 30, got.HealerProgress)

	// Untouched fields survive subsequent partial updates.
	s.Update("pg_1", func(sess *types.Session) { sess.HealerIssuesFound = 3 })
	got, _ = s.Get("pg_1")
	assert.Equal(t, 30, got.HealerProgress)
	assert.Equal(t, 3, got.HealerIssuesFound)
}

func TestStore_UpdateUnknownSession(t *testing.T) {
	s := New(zap.NewNop())
	assert.False(t, s.Update("missing", func(*types.Session) {}))
	_, ok := s.Get("missing")
	assert.False(t, ok)
}

func TestStore_GetReturnsSnapshot(t *testing.T) {
	s := New(zap.NewNop())
	sess := newSession("pg_1")
	sess.NavigatorTests = []types.TestCase{{Name: "t1", Status: types.TestPending}}
	s.Create(sess)

	snap, _ := s.Get("pg_1")
	snap.NavigatorTests[0].Status = types.TestFailed

	fresh, _ := s.Get("pg_1")
	assert.Equal(t, types.TestPending, fresh.NavigatorTests[0].Status)
}

func TestStore_ActivityOrderingAndCursor(t *testing.T) {
	s := New(zap.NewNop())
	s.Create(newSession("pg_1"))

	var ids []string
	for i := 0; i < 30; i++ {
		e, ok := s.AppendActivity("pg_1", "healer", "step", fmt.Sprintf("msg %d", i))
		require.True(t, ok)
		ids = append(ids, e.ID)
	}

	// No cursor: bounded recent window, not full history.
	recent := s.ActivitiesSince("pg_1", "")
	require.Len(t, recent, RecentWindow)
	assert.Equal(t, "msg 10", recent[0].Message)
	assert.Equal(t, "msg 29", recent[len(recent)-1].Message)

	// Valid cursor: everything strictly after it, in order, no duplicates.
	after := s.ActivitiesSince("pg_1", ids[24])
	require.Len(t, after, 5)
	for i, e := range after {
		assert.Equal(t, fmt.Sprintf("msg %d", 25+i), e.Message)
	}

	// Sequence numbers are strictly increasing.
	for i := 1; i < len(after); i++ {
		assert.Greater(t, after[i].Seq, after[i-1].Seq)
	}

	// Cursor at the tail: nothing new.
	assert.Empty(t, s.ActivitiesSince("pg_1", ids[29]))
}

func TestStore_StaleCursorDegradesToWindow(t *testing.T) {
	s := New(zap.NewNop())
	s.Create(newSession("pg_1"))
	for i := 0; i < 25; i++ {
		s.AppendActivity("pg_1", "healer", "step", fmt.Sprintf("msg %d", i))
	}

	got := s.ActivitiesSince("pg_1", "act_unknown_cursor")
	assert.Len(t, got, RecentWindow)
}

func TestStore_ConcurrentWriterAndReaders(t *testing.T) {
	s := New(zap.NewNop())
	s.Create(newSession("pg_1"))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			s.Update("pg_1", func(sess *types.Session) {
				sess.HealerProgress = i
				sess.HealerIssuesFixed = i
			})
			s.AppendActivity("pg_1", "healer", "tick", "progress")
		}
	}()

	var wg sync.WaitGroup
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var lastSeq uint64
			for i := 0; i < 200; i++ {
				snap, ok := s.Get("pg_1")
				if !ok {
					continue
				}
				// Torn update would let these fields diverge.
				assert.Equal(t, snap.HealerProgress, snap.HealerIssuesFixed)

				for _, e := range s.ActivitiesSince("pg_1", "") {
					if lastSeq > 0 {
						assert.GreaterOrEqual(t, e.Seq, lastSeq)
					}
					lastSeq = e.Seq
				}
			}
		}()
	}

	<-done
	wg.Wait()
}

func TestStore_SweepEvictsOnlyInactiveTerminalSessions(t *testing.T) {
	s := New(zap.NewNop())

	terminal := newSession("pg_done")
	terminal.Status = types.StatusComplete
	s.Create(terminal)

	running := newSession("pg_live")
	running.Status = types.StatusProcessing
	s.Create(running)

	// Age both sessions past the cutoff.
	s.mu.Lock()
	old := time.Now().Add(-time.Hour)
	s.sessions["pg_done"].LastActive = old
	s.sessions["pg_live"].LastActive = old
	s.mu.Unlock()

	s.sweep(30 * time.Minute)

	_, ok := s.Get("pg_done")
	assert.False(t, ok, "terminal inactive session should be evicted")
	_, ok = s.Get("pg_live")
	assert.True(t, ok, "in-flight session must never be evicted")
}
