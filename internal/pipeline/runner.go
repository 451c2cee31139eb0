// Package pipeline drives a session through its ordered phases:
// scanning, fixing, generating-tests, running-tests, complete. One runner
// goroutine owns each session; everything it learns flows into the session
// store as state updates plus human-readable activity entries.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/UtkarsHMer05/accessibilityos/internal/gemini"
	"github.com/UtkarsHMer05/accessibilityos/internal/store"
	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

const (
	// Each applied fix lifts the score by a bounded amount, capped at 100.
	scorePerFix = 12

	// Final score policy: 100 minus 20 per failing case, floor 60.
	failPenalty   = 20
	minFinalScore = 60

	maxTestCases = 5
)

// Rerun preconditions.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotRerunnable   = errors.New("session is not in a rerunnable state")
	ErrNoFailingTests  = errors.New("session has no failing test cases")
	ErrRerunLimit      = errors.New("rerun iteration limit reached")
)

// Config holds runner pacing and policy knobs.
type Config struct {
	// InterTestDelay is the fixed pause between sequential verification
	// calls, required by the reasoner's rate limit.
	InterTestDelay time.Duration

	// StepDelay paces cosmetic activity entries so a polling subscriber
	// sees smooth advancement instead of phase-boundary jumps.
	StepDelay time.Duration

	// MaxRerunIterations bounds the feedback loop.
	MaxRerunIterations int
}

// Runner executes the pipeline for sessions it is handed. It is safe to
// share one Runner across sessions; all per-session state lives in the
// store.
type Runner struct {
	store    *store.Store
	detector types.Detector
	reasoner types.Reasoner
	caller   *gemini.Caller
	ledger   types.Ledger
	logger   *zap.Logger
	cfg      Config

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a runner.
func New(st *store.Store, detector types.Detector, reasoner types.Reasoner, caller *gemini.Caller, ledg types.Ledger, logger *zap.Logger, cfg Config) *Runner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxRerunIterations <= 0 {
		cfg.MaxRerunIterations = 3
	}
	return &Runner{
		store:    st,
		detector: detector,
		reasoner: reasoner,
		caller:   caller,
		ledger:   ledg,
		logger:   logger,
		cfg:      cfg,
		sleep:    sleepCtx,
	}
}

// Run drives one session to a terminal state. Designed to be launched on
// its own goroutine; it never panics out and never returns an error. Any
// failure lands in the session as status "error".
func (r *Runner) Run(ctx context.Context, sessionID string) {
	defer func() {
		if rec := recover(); rec != nil {
			r.fail(sessionID, fmt.Errorf("panic in pipeline: %v", rec))
		}
	}()

	session, ok := r.store.Get(sessionID)
	if !ok {
		r.logger.Warn("Run called for unknown session", zap.String("session", sessionID))
		return
	}

	if !session.RunHealer {
		r.store.Update(sessionID, func(s *types.Session) { s.Status = types.StatusComplete })
		r.log(sessionID, "system", "complete", "Nothing to do: healer phase disabled")
		return
	}

	if err := r.runHealer(ctx, session); err != nil {
		r.fail(sessionID, err)
	}
}

// runHealer performs the scanning and fixing phases, then hands off to the
// navigator when enabled.
func (r *Runner) runHealer(ctx context.Context, session *types.Session) error {
	id := session.ID

	r.log(id, "healer", "started", "🛠️ Healer: Starting analysis of your code...")
	r.store.Update(id, func(s *types.Session) {
		s.Status = types.StatusProcessing
		s.HealerStatus = types.PhaseScanning
		s.HealerProgress = 10
	})

	r.log(id, "healer", "scanning", "🔍 Healer: Running hybrid scan...")
	scan, err := r.detector.Scan(ctx, session.UserCode)
	if err != nil {
		return fmt.Errorf("scan failed: %w", err)
	}

	findings := scan.Findings
	beforeScore := scan.ScoreEstimate

	r.store.Update(id, func(s *types.Session) {
		s.HealerIssuesFound = len(findings)
		s.HealerProgress = 30
		s.BeforeScore = beforeScore
		s.Findings = findings
	})
	r.log(id, "healer", "scan_complete",
		fmt.Sprintf("📊 Healer: Found %d accessibility %s (Score: %d/100)",
			len(findings), plural(len(findings), "issue", "issues"), beforeScore))

	for i, f := range findings {
		r.log(id, "healer", "issue_detected", fmt.Sprintf("⚠️ Issue %d: %s - %s", i+1, f.ID, f.Description))
		if err := r.pace(ctx, r.cfg.StepDelay); err != nil {
			return err
		}
	}

	if len(findings) == 0 {
		// Nothing to fix: the fix phase completes immediately with zero
		// fixes and unmodified output.
		r.store.Update(id, func(s *types.Session) {
			s.HealerStatus = types.PhaseComplete
			s.HealerProgress = 100
			s.FixedCode = s.UserCode
			s.AfterScore = beforeScore
		})
		r.log(id, "healer", "complete", "🎉 Healer: Your code is already accessible!")

		if session.RunNavigator {
			return r.runNavigator(ctx, id, session.UserCode, nil)
		}
		r.store.Update(id, func(s *types.Session) { s.Status = types.StatusComplete })
		return nil
	}

	fixedHTML, fixedCount := r.runFixPhase(ctx, id, session.UserCode, findings)

	afterScore := min(100, beforeScore+fixedCount*scorePerFix)
	r.log(id, "healer", "scoring", "📊 Healer: Calculating final accessibility score...")
	r.store.Update(id, func(s *types.Session) {
		s.HealerStatus = types.PhaseComplete
		s.HealerProgress = 100
		s.HealerIssuesFixed = fixedCount
		s.FixedCode = fixedHTML
		s.AfterScore = afterScore
	})
	r.log(id, "healer", "complete",
		fmt.Sprintf("🎉 Healer: Complete! Fixed %d/%d issues. Score: %d → %d",
			fixedCount, len(findings), beforeScore, afterScore))

	r.record(ctx, "healer", "fixes_saved", fmt.Sprintf("session=%s fixes=%d", id, fixedCount))

	if session.RunNavigator {
		r.log(id, "integration", "healer_to_navigator", "🔄 Integration: Healer triggering Navigator verification...")
		r.store.Update(id, func(s *types.Session) { s.DataFlowCount = 1 })
		return r.runNavigator(ctx, id, fixedHTML, findings)
	}

	r.store.Update(id, func(s *types.Session) { s.Status = types.StatusComplete })
	return nil
}

// runFixPhase issues the aggregated fix call and reports per-finding
// progress. Any reasoner or parse failure degrades to the deterministic
// local fallback; this phase never fails the session.
func (r *Runner) runFixPhase(ctx context.Context, id, html string, findings []types.Finding) (string, int) {
	r.log(id, "healer", "fixing_started", "🤖 Healer: Starting AI-powered fixes...")
	r.store.Update(id, func(s *types.Session) {
		s.HealerStatus = types.PhaseFixing
		s.HealerProgress = 40
	})

	fixedHTML := html
	raw, err := r.generate(ctx, buildFixPrompt(html, findings))
	if err == nil {
		fixedHTML, err = parseFixedHTML(raw)
	}
	if err != nil {
		r.log(id, "gemini", "error", fmt.Sprintf("❌ Gemini fix failed: %v", err))
		r.log(id, "healer", "fallback", "⚠️ Using deterministic fallback fixes...")
		fixedHTML = applyFallbackFixes(html, findings)
	} else {
		r.log(id, "gemini", "fix_generated", fmt.Sprintf("✅ Gemini: Generated fixes for %d issues", len(findings)))
	}

	for i, f := range findings {
		r.log(id, "healer", "fix_applied", fmt.Sprintf("✅ Fixed: %s - %s", f.ID, f.Description))
		applied := i + 1
		r.store.Update(id, func(s *types.Session) {
			s.HealerIssuesFixed = applied
			s.HealerProgress = 40 + applied*40/len(findings)
		})
		if r.pace(ctx, r.cfg.StepDelay) != nil {
			break
		}
	}

	return fixedHTML, len(findings)
}

// fail marks the session as terminally errored and halts further phases.
func (r *Runner) fail(sessionID string, err error) {
	r.logger.Error("Pipeline failed", zap.String("session", sessionID), zap.Error(err))
	r.store.Update(sessionID, func(s *types.Session) {
		s.Status = types.StatusError
		if s.HealerStatus != types.PhaseComplete && s.HealerStatus != types.PhaseSkipped {
			s.HealerStatus = types.PhaseError
		}
		if s.NavigatorStatus != types.PhaseComplete && s.NavigatorStatus != types.PhaseSkipped {
			s.NavigatorStatus = types.PhaseError
		}
	})
	r.log(sessionID, "system", "error", fmt.Sprintf("❌ Pipeline error: %v", err))
}

// generate funnels every reasoner call through the retrying caller.
func (r *Runner) generate(ctx context.Context, prompt string) (string, error) {
	return r.caller.Call(ctx, func(ctx context.Context) (string, error) {
		return r.reasoner.Generate(ctx, prompt)
	})
}

// log appends an activity entry; the session feed is the primary operator
// surface, zap carries a debug copy.
func (r *Runner) log(sessionID, mode, action, message string) {
	if _, ok := r.store.AppendActivity(sessionID, mode, action, message); !ok {
		return
	}
	r.logger.Debug("activity",
		zap.String("session", sessionID),
		zap.String("mode", mode),
		zap.String("action", action))
}

// record writes to the ledger, best-effort. Ledger failures never fail the
// pipeline.
func (r *Runner) record(ctx context.Context, mode, action, details string) {
	if r.ledger == nil {
		return
	}
	if err := r.ledger.RecordActivity(ctx, mode, action, details); err != nil {
		r.logger.Warn("Ledger write failed", zap.Error(err))
	}
}

func (r *Runner) pace(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	return r.sleep(ctx, d)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
