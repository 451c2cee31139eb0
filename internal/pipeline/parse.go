package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// stripFences removes markdown code fences the reasoner tends to wrap
// responses in, despite being told not to.
func stripFences(s string) string {
	s = strings.ReplaceAll(s, "```html", "")
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

// parseFixedHTML extracts the corrected document from a fix response.
// An empty or implausibly short result counts as a parse failure so the
// caller falls back instead of corrupting the input.
func parseFixedHTML(raw string) (string, error) {
	cleaned := stripFences(raw)
	if len(cleaned) < 10 || !strings.Contains(cleaned, "<") {
		return "", fmt.Errorf("fix response does not look like HTML")
	}
	return cleaned, nil
}

type generatedTest struct {
	TestName      string `json:"testName"`
	OriginalIssue string `json:"originalIssue"`
	CheckFor      string `json:"checkFor"`
	HowToVerify   string `json:"howToVerify"`
}

// parseTestCases decodes the test-generation response.
func parseTestCases(raw string) ([]types.TestCase, error) {
	cleaned := stripFences(raw)

	var generated []generatedTest
	if err := json.Unmarshal([]byte(cleaned), &generated); err != nil {
		return nil, fmt.Errorf("failed to parse test cases: %w", err)
	}
	if len(generated) == 0 {
		return nil, fmt.Errorf("reasoner returned no test cases")
	}

	cases := make([]types.TestCase, 0, len(generated))
	for i, g := range generated {
		if g.TestName == "" {
			continue
		}
		cases = append(cases, types.TestCase{
			ID:            fmt.Sprintf("tc_%d", i+1),
			Name:          g.TestName,
			OriginalIssue: g.OriginalIssue,
			CheckFor:      g.CheckFor,
			HowToVerify:   g.HowToVerify,
			Status:        types.TestPending,
		})
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("reasoner returned no usable test cases")
	}
	return cases, nil
}

type verdict struct {
	Passed   bool   `json:"passed"`
	Evidence string `json:"evidence"`
}

// parseVerdict decodes a single-test verification response.
func parseVerdict(raw string) (bool, string, error) {
	cleaned := stripFences(raw)
	var v verdict
	if err := json.Unmarshal([]byte(cleaned), &v); err != nil {
		return false, "", fmt.Errorf("failed to parse verdict: %w", err)
	}
	return v.Passed, v.Evidence, nil
}

type aiFinding struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Element     string `json:"element"`
	Description string `json:"description"`
	Suggestion  string `json:"suggestion"`
}

// ParseAIFindings decodes the AI audit response used by the hybrid scanner.
func ParseAIFindings(raw string) ([]types.Finding, error) {
	cleaned := stripFences(raw)

	var decoded []aiFinding
	if err := json.Unmarshal([]byte(cleaned), &decoded); err != nil {
		return nil, fmt.Errorf("failed to parse AI findings: %w", err)
	}

	findings := make([]types.Finding, 0, len(decoded))
	for _, f := range decoded {
		id := f.ID
		if id == "" {
			id = f.Type
		}
		if id == "" {
			continue
		}
		desc := f.Description
		if desc == "" {
			desc = f.Suggestion
		}
		findings = append(findings, types.Finding{
			ID:          id,
			Description: desc,
			Element:     f.Element,
		})
	}
	return findings, nil
}
