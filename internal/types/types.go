// Package types holds the shared data model for the playground
// orchestration engine: sessions, activity entries, findings and
// test cases, plus the interfaces for external collaborators.
package types

import "time"

// SessionStatus is the overall lifecycle state of a session.
type SessionStatus string

const (
	StatusInitializing SessionStatus = "initializing"
	StatusProcessing   SessionStatus = "processing"
	StatusComplete     SessionStatus = "complete"
	StatusError        SessionStatus = "error"
)

// Terminal reports whether the session will never change again.
func (s SessionStatus) Terminal() bool {
	return s == StatusComplete || s == StatusError
}

// PhaseStatus is the state of one pipeline phase (healer or navigator side).
type PhaseStatus string

const (
	PhasePending         PhaseStatus = "pending"
	PhaseSkipped         PhaseStatus = "skipped"
	PhaseScanning        PhaseStatus = "scanning"
	PhaseFixing          PhaseStatus = "fixing"
	PhaseGeneratingTests PhaseStatus = "generating-tests"
	PhaseRunningTests    PhaseStatus = "running-tests"
	PhaseComplete        PhaseStatus = "complete"
	PhaseError           PhaseStatus = "error"
)

// TestStatus is the state of a single navigator test case.
type TestStatus string

const (
	TestPending TestStatus = "pending"
	TestRunning TestStatus = "running"
	TestPassed  TestStatus = "passed"
	TestFailed  TestStatus = "failed"
)

// TestCase is one verification case generated from the original findings.
// Cases are created once per session and transitioned in place; they are
// never re-ordered.
type TestCase struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	OriginalIssue string     `json:"originalIssue"`
	CheckFor      string     `json:"checkFor"`
	HowToVerify   string     `json:"howToVerify"`
	Status        TestStatus `json:"status"`
	Evidence      string     `json:"evidence,omitempty"`
}

// Session is the full state of one playground run. It is owned by the
// pipeline runner that processes it; everyone else reads snapshots.
type Session struct {
	ID     string        `json:"id"`
	Status SessionStatus `json:"status"`

	// Input payload, sanitized before the runner ever sees it.
	UserCode     string `json:"userCode"`
	UserCSS      string `json:"userCss"`
	RunHealer    bool   `json:"runHealer"`
	RunNavigator bool   `json:"runNavigator"`

	// Healer sub-state.
	HealerStatus      PhaseStatus `json:"healerStatus"`
	HealerProgress    int         `json:"healerProgress"`
	HealerIssuesFound int         `json:"healerIssuesFound"`
	HealerIssuesFixed int         `json:"healerIssuesFixed"`

	// Navigator sub-state.
	NavigatorStatus    PhaseStatus `json:"navigatorStatus"`
	NavigatorProgress  int         `json:"navigatorProgress"`
	NavigatorTestsRun  int         `json:"navigatorTestsRun"`
	NavigatorTestsPass int         `json:"navigatorTestsPass"`
	NavigatorTests     []TestCase  `json:"navigatorTests"`

	// Findings from the scan phase, kept so the navigator (and reruns)
	// can derive tests from the original issues.
	Findings []Finding `json:"-"`

	DataFlowCount int       `json:"dataFlowCount"`
	Iteration     int       `json:"iteration"`
	StartedAt     time.Time `json:"startedAt"`
	LastActive    time.Time `json:"-"`

	// Terminal result payload.
	FixedCode   string `json:"fixedCode,omitempty"`
	BeforeScore int    `json:"beforeScore"`
	AfterScore  int    `json:"afterScore"`
	FinalScore  int    `json:"finalScore"`
}

// Clone returns a deep copy safe to hand to concurrent readers.
func (s *Session) Clone() *Session {
	out := *s
	out.NavigatorTests = make([]TestCase, len(s.NavigatorTests))
	copy(out.NavigatorTests, s.NavigatorTests)
	out.Findings = make([]Finding, len(s.Findings))
	copy(out.Findings, s.Findings)
	return &out
}

// ActivityEntry is one immutable record in a session's append-only log.
// Seq is assigned by the store and is strictly increasing per session.
type ActivityEntry struct {
	ID        string    `json:"id"`
	Seq       uint64    `json:"-"`
	SessionID string    `json:"-"`
	Mode      string    `json:"mode"`
	Action    string    `json:"action"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// Finding is one issue detected in the input.
type Finding struct {
	ID          string `json:"id"`
	Impact      string `json:"impact"`
	Description string `json:"description"`
	Element     string `json:"element,omitempty"`
}

// ScanResult is the detector output for one input.
type ScanResult struct {
	Findings      []Finding `json:"findings"`
	ScoreEstimate int       `json:"scoreEstimate"`
	Source        string    `json:"source"` // "hybrid" or "local_only"
}
