package types

import "context"

// Detector finds issues in source text. Implementations are expected to be
// fast and deterministic; the hybrid scanner layers best-effort AI findings
// on top.
type Detector interface {
	Scan(ctx context.Context, html string) (*ScanResult, error)
}

// Reasoner is the external text-generation service used for fixing and
// verification judgments. Slow, rate-limited, occasionally fails or
// returns malformed output.
type Reasoner interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Ledger records activity history. Best-effort: callers must never fail
// the pipeline on a ledger error.
type Ledger interface {
	RecordActivity(ctx context.Context, mode, action, details string) error
	Close() error
}
