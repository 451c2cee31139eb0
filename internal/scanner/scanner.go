// Package scanner implements the Detector capability: a fast, deterministic
// rule scan over raw HTML, plus a hybrid wrapper that merges best-effort
// AI findings on top of the local results.
package scanner

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

var (
	reImg        = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	reAlt        = regexp.MustCompile(`(?i)\balt\s*=`)
	reDivOnclick = regexp.MustCompile(`(?i)<div\b[^>]*\bonclick\s*=`)
	reInput      = regexp.MustCompile(`(?i)<input\b[^>]*>`)
	reInputLabel = regexp.MustCompile(`(?i)\b(aria-label|aria-labelledby|id)\s*=`)
	reLabelTag   = regexp.MustCompile(`(?i)<label\b`)
	reClickHere  = regexp.MustCompile(`(?i)<a\b[^>]*>\s*(click here|here|read more|link)\s*</a>`)
	reHTMLTag    = regexp.MustCompile(`(?i)<html\b[^>]*>`)
	reLang       = regexp.MustCompile(`(?i)\blang\s*=`)
	reTitle      = regexp.MustCompile(`(?i)<title\b`)
	reHead       = regexp.MustCompile(`(?i)<head\b`)
)

// impact weights used for the score estimate.
var impactPenalty = map[string]int{
	"critical": 15,
	"serious":  10,
	"moderate": 5,
	"minor":    3,
}

// Local is the deterministic rule-based detector.
type Local struct{}

// NewLocal creates the rule-based detector.
func NewLocal() *Local {
	return &Local{}
}

// Scan runs every rule against the input and estimates a baseline score.
func (l *Local) Scan(_ context.Context, html string) (*types.ScanResult, error) {
	var findings []types.Finding

	for _, m := range reImg.FindAllString(html, -1) {
		if !reAlt.MatchString(m) {
			findings = append(findings, types.Finding{
				ID:          "image-alt",
				Impact:      "critical",
				Description: "Image element is missing alternative text",
				Element:     truncate(m, 120),
			})
		}
	}

	for _, m := range reDivOnclick.FindAllString(html, -1) {
		findings = append(findings, types.Finding{
			ID:          "button-name",
			Impact:      "serious",
			Description: "Clickable div is not keyboard accessible; use a button element",
			Element:     truncate(m, 120),
		})
	}

	for _, m := range reInput.FindAllString(html, -1) {
		if !reInputLabel.MatchString(m) && !reLabelTag.MatchString(html) {
			findings = append(findings, types.Finding{
				ID:          "label",
				Impact:      "critical",
				Description: "Form input has no associated label",
				Element:     truncate(m, 120),
			})
		}
	}

	for _, m := range reClickHere.FindAllString(html, -1) {
		findings = append(findings, types.Finding{
			ID:          "link-name",
			Impact:      "serious",
			Description: "Link text does not describe its destination",
			Element:     truncate(m, 120),
		})
	}

	if m := reHTMLTag.FindString(html); m != "" && !reLang.MatchString(m) {
		findings = append(findings, types.Finding{
			ID:          "html-has-lang",
			Impact:      "serious",
			Description: "The html element is missing a lang attribute",
			Element:     truncate(m, 120),
		})
	}

	if reHead.MatchString(html) && !reTitle.MatchString(html) {
		findings = append(findings, types.Finding{
			ID:          "document-title",
			Impact:      "moderate",
			Description: "Document is missing a title element",
		})
	}

	score := 100
	for _, f := range findings {
		penalty, ok := impactPenalty[f.Impact]
		if !ok {
			penalty = 5
		}
		score -= penalty
	}
	if score < 0 {
		score = 0
	}

	return &types.ScanResult{
		Findings:      findings,
		ScoreEstimate: score,
		Source:        "local_only",
	}, nil
}

func truncate(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// Hybrid merges local rule results with AI-detected findings. The AI pass
// is strictly best-effort: on any reasoner failure the local results are
// returned unchanged.
type Hybrid struct {
	local    *Local
	reasoner types.Reasoner
	parse    func(raw string) ([]types.Finding, error)
}

// NewHybrid wraps the local detector with an AI augmentation pass.
// parse converts the reasoner's raw response into findings; it lives with
// the prompt that produced the response, so it is injected here.
func NewHybrid(local *Local, reasoner types.Reasoner, parse func(raw string) ([]types.Finding, error)) *Hybrid {
	return &Hybrid{local: local, reasoner: reasoner, parse: parse}
}

// Scan runs the local scan, then attempts the AI scan and merges. The score
// estimate always comes from the local scan; AI findings only add issues.
func (h *Hybrid) Scan(ctx context.Context, html string) (*types.ScanResult, error) {
	result, err := h.local.Scan(ctx, html)
	if err != nil {
		return nil, err
	}

	raw, err := h.reasoner.Generate(ctx, auditPrompt(html))
	if err != nil {
		result.Source = "local_only"
		return result, nil
	}

	aiFindings, err := h.parse(raw)
	if err != nil {
		result.Source = "local_only"
		return result, nil
	}

	for _, f := range aiFindings {
		f.ID = "ai-" + f.ID
		if f.Impact == "" {
			f.Impact = "serious"
		}
		result.Findings = append(result.Findings, f)
	}
	result.Source = "hybrid"
	return result, nil
}

func auditPrompt(html string) string {
	if len(html) > 15000 {
		html = html[:15000]
	}
	return fmt.Sprintf(`You are an expert Accessibility Auditor (WCAG 2.1 AA).
Find accessibility issues in the provided HTML code.

FOCUS ON:
1. Interactive elements that are not keyboard accessible.
2. Form inputs missing associated labels.
3. Images missing valid alt text.
4. Non-descriptive link text.
5. Color contrast issues visible in inline styles.

HTML TO AUDIT:
`+"```html\n%s\n```"+`

Return a JSON array:
[{"id": "issue-type-id", "element": "exact substring", "description": "explanation of the failure"}]

Return ONLY valid JSON. No markdown.`, html)
}
