// Package stream turns session state and activity-log deltas into an
// ordered push feed. Each subscriber gets its own polling loop over the
// session store with a sliding activity cursor, so entries are delivered
// exactly in append order with no duplicates and no gaps.
package stream

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/UtkarsHMer05/accessibilityos/internal/store"
	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// Frame kinds sent to a subscriber.
const (
	FrameConnected = "connected"
	FrameUpdate    = "update"
	FrameComplete  = "complete"
)

// SessionView is the session snapshot carried by update frames, with the
// elapsed duration precomputed for the client.
type SessionView struct {
	*types.Session
	Duration int64 `json:"duration"` // seconds since the session started
}

// Frame is one unit of the push feed.
type Frame struct {
	Type        string                `json:"type"`
	Message     string                `json:"message,omitempty"`
	Session     *SessionView          `json:"session,omitempty"`
	Activities  []types.ActivityEntry `json:"activities,omitempty"`
	FinalStatus types.SessionStatus   `json:"finalStatus,omitempty"`
}

// Streamer produces progress feeds for sessions in the store.
type Streamer struct {
	store        *store.Store
	logger       *zap.Logger
	pollInterval time.Duration
	maxPolls     int
}

// New creates a streamer. pollInterval bounds how stale a subscriber's
// view can be; maxPolls caps the feed's total lifetime.
func New(st *store.Store, logger *zap.Logger, pollInterval time.Duration, maxPolls int) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	if maxPolls <= 0 {
		maxPolls = 600
	}
	return &Streamer{
		store:        st,
		logger:       logger,
		pollInterval: pollInterval,
		maxPolls:     maxPolls,
	}
}

// Subscribe returns a feed of frames for the session. The channel closes
// after a terminal complete frame, when the session disappears, when the
// maximum feed age is exceeded, or when ctx is canceled. Canceling ctx
// halts the polling loop immediately; it never touches the underlying
// pipeline.
func (s *Streamer) Subscribe(ctx context.Context, sessionID string) <-chan Frame {
	out := make(chan Frame, 8)

	go func() {
		defer close(out)

		if !send(ctx, out, Frame{Type: FrameConnected, Message: "Stream connected"}) {
			return
		}

		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()

		lastActivityID := ""
		for polls := 0; polls < s.maxPolls; polls++ {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			session, ok := s.store.Get(sessionID)
			if !ok {
				s.logger.Debug("Session gone, closing feed", zap.String("session", sessionID))
				return
			}

			activities := s.store.ActivitiesSince(sessionID, lastActivityID)
			if len(activities) > 0 {
				lastActivityID = activities[len(activities)-1].ID
			}

			frame := Frame{
				Type: FrameUpdate,
				Session: &SessionView{
					Session:  session,
					Duration: int64(time.Since(session.StartedAt).Seconds()),
				},
				Activities: activities,
			}
			if !send(ctx, out, frame) {
				return
			}

			if session.Status.Terminal() {
				send(ctx, out, Frame{Type: FrameComplete, FinalStatus: session.Status})
				return
			}
		}

		// Feed age limit: tell the client we are done watching.
		if session, ok := s.store.Get(sessionID); ok {
			send(ctx, out, Frame{Type: FrameComplete, FinalStatus: session.Status})
		}
	}()

	return out
}

func send(ctx context.Context, out chan<- Frame, f Frame) bool {
	select {
	case <-ctx.Done():
		return false
	case out <- f:
		return true
	}
}
