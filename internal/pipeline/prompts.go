package pipeline

import (
	"fmt"
	"strings"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

// buildFixPrompt builds one aggregated remediation request covering every
// finding. Batching all findings into a single call is deliberate: the
// reasoner is rate-limited and a per-finding call would burn the budget.
func buildFixPrompt(html string, findings []types.Finding) string {
	var issues strings.Builder
	for _, f := range findings {
		fmt.Fprintf(&issues, "- %s: %s\n", f.ID, f.Description)
	}

	return fmt.Sprintf(`You are an expert Frontend Accessibility Engineer.

FIX ALL of these accessibility violations in the HTML below:
%s
ORIGINAL HTML:
`+"```html\n%s\n```"+`

INSTRUCTIONS:
1. Fix ALL the issues listed above
2. Return ONLY the complete fixed HTML code
3. Do NOT include any explanation, just the raw HTML
4. Maintain original structure, classes, and IDs
5. Common fixes:
   - Missing alt: add descriptive alt text
   - Div as button: change to <button> element
   - Missing labels: add <label> or aria-label
   - Vague links: change "click here" to descriptive text
   - Missing title: add <title> tag
   - Missing lang: add lang="en" to html tag

Return ONLY the fixed HTML, nothing else:`, issues.String(), html)
}

// buildRefixPrompt is the rerun variant, scoped only to the test cases
// that failed verification.
func buildRefixPrompt(html string, failed []types.TestCase) string {
	var issues strings.Builder
	for i, tc := range failed {
		fmt.Fprintf(&issues, "%d. %s: %s (evidence: %s)\n", i+1, tc.OriginalIssue, tc.CheckFor, tc.Evidence)
	}

	return fmt.Sprintf(`You are an expert Frontend Accessibility Engineer.

A previous fix attempt left these specific issues unresolved:
%s
CURRENT HTML:
`+"```html\n%s\n```"+`

Fix ONLY the issues listed above. Keep everything else exactly as it is.
Return ONLY the complete corrected HTML, no explanation:`, issues.String(), html)
}

// buildTestGenPrompt asks for targeted verification cases derived from the
// original findings, one per finding.
func buildTestGenPrompt(findings []types.Finding) string {
	var issues strings.Builder
	for i, f := range findings {
		fmt.Fprintf(&issues, "%d. %s: %s\n", i+1, f.ID, f.Description)
	}

	return fmt.Sprintf(`You are an accessibility QA expert.

The following accessibility issues were found in the ORIGINAL code:
%s
Generate specific test cases to verify if each of these issues has been fixed.
Each test should check for the SPECIFIC fix that should have been applied.
Do NOT invent tests for issue categories that are not listed above.

Return a JSON array with this format:
[
  {
    "testName": "Verify image alt text fix",
    "originalIssue": "image-alt",
    "checkFor": "Images should now have descriptive alt attributes",
    "howToVerify": "Look for <img> tags with meaningful alt text"
  }
]

Generate ONE test per original issue. Return ONLY a valid JSON array.`, issues.String())
}

// buildVerifyPrompt scopes a verification call to a single test case.
func buildVerifyPrompt(fixedCode string, tc types.TestCase) string {
	if len(fixedCode) > 8000 {
		fixedCode = fixedCode[:8000]
	}

	return fmt.Sprintf(`You are verifying an accessibility fix.

ORIGINAL ISSUE: %s - %s

FIXED HTML CODE:
`+"```html\n%s\n```"+`

VERIFICATION TASK: %s

Has this specific issue been fixed? Analyze the code carefully.

Return JSON: {"passed": true/false, "evidence": "brief explanation of what you found"}`,
		tc.OriginalIssue, tc.CheckFor, fixedCode, tc.HowToVerify)
}
