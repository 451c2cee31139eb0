package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/UtkarsHMer05/accessibilityos/internal/gemini"
	"github.com/UtkarsHMer05/accessibilityos/internal/store"
	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// --- stubDetector ---

type stubDetector struct {
	result *types.ScanResult
	err    error
	panics bool
}

func (d *stubDetector) Scan(ctx context.Context, html string) (*types.ScanResult, error) {
	if d.panics {
		panic("detector exploded")
	}
	if d.err != nil {
		return nil, d.err
	}
	return d.result, nil
}

// --- scriptedReasoner ---

// scriptedReasoner routes prompts to a handler func so tests can answer
// fix, test-generation and verification calls differently.
type scriptedReasoner struct {
	generate func(prompt string) (string, error)
	calls    int
}

func (r *scriptedReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	r.calls++
	return r.generate(prompt)
}

// --- recordingLedger ---

type recordingLedger struct {
	actions []string
	err     error
}

func (l *recordingLedger) RecordActivity(ctx context.Context, mode, action, details string) error {
	l.actions = append(l.actions, action)
	return l.err
}

func (l *recordingLedger) Close() error { return nil }

// --- helpers ---

func threeFindings() []types.Finding {
	return []types.Finding{
		{ID: "image-alt", Impact: "critical", Description: "Image element is missing alternative text"},
		{ID: "button-name", Impact: "serious", Description: "Clickable div is not keyboard accessible"},
		{ID: "label", Impact: "critical", Description: "Form input has no associated label"},
	}
}

func newTestRunner(detector types.Detector, reasoner types.Reasoner, ledg types.Ledger) (*Runner, *store.Store) {
	st := store.New(zap.NewNop())
	caller := gemini.NewCaller(0, time.Millisecond, zap.NewNop())
	r := New(st, detector, reasoner, caller, ledg, zap.NewNop(), Config{
		InterTestDelay:     0,
		StepDelay:          0,
		MaxRerunIterations: 3,
	})
	return r, st
}

func seedSession(st *store.Store, id string, runHealer, runNavigator bool) {
	st.Create(&types.Session{
		ID:           id,
		Status:       types.StatusInitializing,
		UserCode:     `<html><body><img src="a.png"><div onclick="go()">Go</div><input type="text"></body></html>`,
		RunHealer:    runHealer,
		RunNavigator: runNavigator,
		HealerStatus: types.PhasePending,
		StartedAt:    time.Now(),
	})
}

func actionsByName(st *store.Store, id, action string) []types.ActivityEntry {
	var out []types.ActivityEntry
	for _, e := range st.ActivitiesSince(id, "") {
		if e.Action == action {
			out = append(out, e)
		}
	}
	return out
}
