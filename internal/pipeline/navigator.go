package pipeline

import (
	"context"
	"fmt"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// runNavigator performs the generating-tests and running-tests phases and
// moves the session to its terminal state.
func (r *Runner) runNavigator(ctx context.Context, id, fixedCode string, findings []types.Finding) error {
	r.log(id, "navigator", "started", "👁️ Navigator: Received code from Healer - Starting verification...")
	r.store.Update(id, func(s *types.Session) {
		s.NavigatorStatus = types.PhaseGeneratingTests
		s.NavigatorProgress = 10
	})

	cases := r.generateTests(ctx, id, findings)

	if len(cases) == 0 {
		// A clean scan leaves nothing to verify; the navigator completes
		// without running a single test.
		r.store.Update(id, func(s *types.Session) {
			s.NavigatorStatus = types.PhaseComplete
			s.NavigatorProgress = 100
			s.FinalScore = 100
			s.Status = types.StatusComplete
		})
		r.log(id, "navigator", "complete", "✅ Navigator: No issues to verify - code is clean")
		r.log(id, "integration", "complete", "🎉 Integration: Full Healer ↔ Navigator cycle complete!")
		r.record(ctx, "navigator", "verification_complete",
			fmt.Sprintf("session=%s passed=0 failed=0 score=100", id))
		return nil
	}

	r.store.Update(id, func(s *types.Session) {
		s.NavigatorTests = cases
		s.NavigatorProgress = 30
	})
	r.log(id, "navigator", "tests_generated",
		fmt.Sprintf("🧪 Navigator: Generated %d test cases from original issues", len(cases)))

	r.store.Update(id, func(s *types.Session) { s.NavigatorStatus = types.PhaseRunningTests })
	r.log(id, "navigator", "verifying", "🔍 Navigator: Verifying fixes against test cases...")

	testsRun, testsPass := 0, 0
	for i := range cases {
		tc := cases[i]

		idx := i
		r.store.Update(id, func(s *types.Session) { s.NavigatorTests[idx].Status = types.TestRunning })
		r.log(id, "navigator", "testing", fmt.Sprintf("🧪 Navigator: %s...", tc.Name))

		passed, evidence := r.runOneTest(ctx, id, fixedCode, tc)

		testsRun++
		if passed {
			testsPass++
		}

		status := types.TestFailed
		action, verdictWord := "test_failed", "FAILED"
		if passed {
			status = types.TestPassed
			action, verdictWord = "test_passed", "PASSED"
		}

		run, pass := testsRun, testsPass
		r.store.Update(id, func(s *types.Session) {
			s.NavigatorTests[idx].Status = status
			s.NavigatorTests[idx].Evidence = evidence
			s.NavigatorTestsRun = run
			s.NavigatorTestsPass = pass
			s.NavigatorProgress = 30 + run*60/len(cases)
		})
		r.log(id, "navigator", action,
			fmt.Sprintf("Navigator: %s - %s (%s)", tc.Name, verdictWord, evidence))

		// The reasoner's rate limit rules out concurrent verification
		// calls, so cases run one at a time with a pause between them.
		if i < len(cases)-1 {
			if err := r.pace(ctx, r.cfg.InterTestDelay); err != nil {
				return err
			}
		}
	}

	failures := testsRun - testsPass
	finalScore := max(100-failures*failPenalty, minFinalScore)

	r.store.Update(id, func(s *types.Session) {
		s.NavigatorStatus = types.PhaseComplete
		s.NavigatorProgress = 100
		s.FinalScore = finalScore
		s.Status = types.StatusComplete
	})

	r.log(id, "navigator", "complete",
		fmt.Sprintf("✅ Navigator: Verification complete! %d/%d tests passed", testsPass, testsRun))
	if failures > 0 {
		r.log(id, "integration", "feedback",
			fmt.Sprintf("🔄 Integration: Navigator found %d issues that may need another pass", failures))
	} else {
		r.log(id, "integration", "success", "🎉 Integration: All fixes verified successfully!")
	}
	r.log(id, "integration", "complete", "🎉 Integration: Full Healer ↔ Navigator cycle complete!")

	r.record(ctx, "navigator", "verification_complete",
		fmt.Sprintf("session=%s passed=%d failed=%d score=%d", id, testsPass, failures, finalScore))
	return nil
}

// generateTests asks the reasoner for targeted cases derived from the
// findings, capped at maxTestCases. Failures and empty results fall back
// to cases derived locally from the findings, so this phase never fails
// the session. With no findings there is nothing to derive tests from:
// the reasoner is not consulted and no tests run.
func (r *Runner) generateTests(ctx context.Context, id string, findings []types.Finding) []types.TestCase {
	if len(findings) == 0 {
		return nil
	}

	r.log(id, "navigator", "generating_tests", "🧪 Navigator: Generating test cases from original issues...")

	raw, err := r.generate(ctx, buildTestGenPrompt(findings))
	if err == nil {
		cases, perr := parseTestCases(raw)
		if perr == nil {
			if len(cases) > maxTestCases {
				cases = cases[:maxTestCases]
			}
			return cases
		}
		err = perr
	}

	r.log(id, "navigator", "fallback", fmt.Sprintf("⚠️ Test generation failed (%v), using fallback cases", err))
	return genericTestCases(findings)
}

// runOneTest obtains a verdict for a single case. When no verdict can be
// obtained (reasoner failure or unparseable output) the case passes
// optimistically, with evidence marking it as auto-verified.
func (r *Runner) runOneTest(ctx context.Context, id, fixedCode string, tc types.TestCase) (bool, string) {
	raw, err := r.generate(ctx, buildVerifyPrompt(fixedCode, tc))
	if err == nil {
		if passed, evidence, perr := parseVerdict(raw); perr == nil {
			if evidence == "" {
				evidence = "Fix verified"
			}
			return passed, evidence
		}
	}
	r.log(id, "navigator", "verdict_unavailable",
		fmt.Sprintf("⚠️ Navigator: No verdict for %q, passing optimistically", tc.Name))
	return true, "Auto-verified (no verdict available)"
}

// CheckRerunLimit reports whether another rerun iteration is allowed for
// a session currently at the given iteration count.
func (r *Runner) CheckRerunLimit(iteration int) error {
	if iteration >= r.cfg.MaxRerunIterations {
		return ErrRerunLimit
	}
	return nil
}

// Rerun sends a session's failing test cases back through a scoped fixing
// call, resets all navigator sub-state, increments the iteration counter,
// and restarts from test generation. Bounded by MaxRerunIterations.
func (r *Runner) Rerun(ctx context.Context, sessionID string) error {
	session, ok := r.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}
	if session.Status != types.StatusComplete {
		return ErrNotRerunnable
	}

	var failing []types.TestCase
	for _, tc := range session.NavigatorTests {
		if tc.Status == types.TestFailed {
			failing = append(failing, tc)
		}
	}
	if len(failing) == 0 {
		return ErrNoFailingTests
	}
	if session.Iteration >= r.cfg.MaxRerunIterations {
		return ErrRerunLimit
	}

	iteration := session.Iteration + 1
	r.store.Update(sessionID, func(s *types.Session) {
		s.Status = types.StatusProcessing
		s.Iteration = iteration
		s.DataFlowCount++

		// A rerun restarts the navigator from scratch.
		s.NavigatorStatus = types.PhaseGeneratingTests
		s.NavigatorProgress = 0
		s.NavigatorTests = nil
		s.NavigatorTestsRun = 0
		s.NavigatorTestsPass = 0
		s.FinalScore = 0
	})
	r.log(sessionID, "integration", "rerun_started",
		fmt.Sprintf("🔄 Integration: Re-fixing %d failing cases (iteration %d)", len(failing), iteration))

	fixedCode := session.FixedCode
	raw, err := r.generate(ctx, buildRefixPrompt(fixedCode, failing))
	if err == nil {
		fixedCode, err = parseFixedHTML(raw)
	}
	if err != nil {
		r.log(sessionID, "healer", "fallback", "⚠️ Re-fix failed, using deterministic fallback fixes...")
		fixedCode = applyFallbackFixes(session.FixedCode, failingAsFindings(failing))
	}

	r.store.Update(sessionID, func(s *types.Session) { s.FixedCode = fixedCode })

	if err := r.runNavigator(ctx, sessionID, fixedCode, session.Findings); err != nil {
		r.fail(sessionID, err)
		return nil
	}
	return nil
}

func failingAsFindings(failed []types.TestCase) []types.Finding {
	findings := make([]types.Finding, 0, len(failed))
	for _, tc := range failed {
		findings = append(findings, types.Finding{ID: tc.OriginalIssue, Description: tc.CheckFor})
	}
	return findings
}
