package pipeline

import (
	"regexp"
	"strings"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

var (
	reImgNoAlt     = regexp.MustCompile(`(?i)<img([^>]*)>`)
	reDivButton    = regexp.MustCompile(`(?i)<div([^>]*)onclick="([^"]*)"([^>]*)>([^<]*)</div>`)
	reInputNoLabel = regexp.MustCompile(`(?i)<input([^>]*)>`)
	reHTMLNoLang   = regexp.MustCompile(`(?i)<html(\s[^>]*)?>`)
)

// applyFallbackFixes performs local deterministic substitutions keyed by
// finding type. It is the degraded path when the reasoner fails: the
// pipeline must always produce some output, so a usable approximation
// beats aborting.
func applyFallbackFixes(html string, findings []types.Finding) string {
	fixed := html

	for _, f := range findings {
		switch {
		case strings.Contains(f.ID, "image-alt") || strings.Contains(f.ID, "alt"):
			fixed = reImgNoAlt.ReplaceAllStringFunc(fixed, func(m string) string {
				if strings.Contains(strings.ToLower(m), "alt=") {
					return m
				}
				return strings.TrimSuffix(m, ">") + ` alt="Descriptive image content">`
			})

		case strings.Contains(f.ID, "button"):
			fixed = reDivButton.ReplaceAllString(fixed, `<button$1onclick="$2"$3>$4</button>`)

		case strings.Contains(f.ID, "label"):
			fixed = reInputNoLabel.ReplaceAllStringFunc(fixed, func(m string) string {
				lower := strings.ToLower(m)
				if strings.Contains(lower, "aria-label") || strings.Contains(lower, "id=") {
					return m
				}
				return strings.TrimSuffix(m, ">") + ` aria-label="Input field">`
			})

		case strings.Contains(f.ID, "lang"):
			fixed = reHTMLNoLang.ReplaceAllStringFunc(fixed, func(m string) string {
				if strings.Contains(strings.ToLower(m), "lang=") {
					return m
				}
				return strings.TrimSuffix(m, ">") + ` lang="en">`
			})
		}
	}

	return fixed
}

// genericTestCases derives one fallback case per finding, capped, used
// when reasoner test generation fails. Tests only ever cover categories
// actually present in the findings.
func genericTestCases(findings []types.Finding) []types.TestCase {
	cases := make([]types.TestCase, 0, len(findings))
	for i, f := range findings {
		if i >= maxTestCases {
			break
		}
		cases = append(cases, types.TestCase{
			ID:            "tc_fb_" + f.ID,
			Name:          "Verify " + f.ID + " fix",
			OriginalIssue: f.ID,
			CheckFor:      f.Description,
			HowToVerify:   "Check that the issue \"" + f.Description + "\" has been fixed",
			Status:        types.TestPending,
		})
	}
	return cases
}
