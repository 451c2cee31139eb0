package scanner

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/UtkarsHMer05/accessibilityos/internal/types"
)

const badHTML = `<html><head></head><body>
<img src="hero.png">
<div onclick="openMenu()">Menu</div>
<input type="email">
<a href="/more">click here</a>
</body></html>`

func findingIDs(findings []types.Finding) []string {
	ids := make([]string, len(findings))
	for i, f := range findings {
		ids[i] = f.ID
	}
	return ids
}

func TestLocal_DetectsCommonViolations(t *testing.T) {
	result, err := NewLocal().Scan(context.Background(), badHTML)
	require.NoError(t, err)

	ids := findingIDs(result.Findings)
	assert.Contains(t, ids, "image-alt")
	assert.Contains(t, ids, "button-name")
	assert.Contains(t, ids, "label")
	assert.Contains(t, ids, "link-name")
	assert.Contains(t, ids, "html-has-lang")
	assert.Contains(t, ids, "document-title")

	assert.Less(t, result.ScoreEstimate, 100)
	assert.GreaterOrEqual(t, result.ScoreEstimate, 0)
	assert.Equal(t, "local_only", result.Source)
}

func TestLocal_CleanDocumentHasNoFindings(t *testing.T) {
	clean := `<html lang="en"><head><title>Fine</title></head><body>
<img src="hero.png" alt="A sunrise over hills">
<button onclick="openMenu()">Menu</button>
<label for="email">Email</label><input type="email" id="email">
<a href="/pricing">See our pricing</a>
</body></html>`

	result, err := NewLocal().Scan(context.Background(), clean)
	require.NoError(t, err)
	assert.Empty(t, result.Findings)
	assert.Equal(t, 100, result.ScoreEstimate)
}

type fakeReasoner struct {
	response string
	err      error
}

func (f *fakeReasoner) Generate(ctx context.Context, prompt string) (string, error) {
	return f.response, f.err
}

func TestHybrid_MergesAIFindings(t *testing.T) {
	reasoner := &fakeReasoner{response: `[{"id":"contrast","element":"<p>","description":"low contrast"}]`}
	parse := func(raw string) ([]types.Finding, error) {
		return []types.Finding{{ID: "contrast", Description: "low contrast"}}, nil
	}

	result, err := NewHybrid(NewLocal(), reasoner, parse).Scan(context.Background(), badHTML)
	require.NoError(t, err)

	assert.Equal(t, "hybrid", result.Source)
	ids := findingIDs(result.Findings)
	assert.Contains(t, ids, "ai-contrast")
	assert.Contains(t, ids, "image-alt", "local findings survive the merge")
}

func TestHybrid_DegradesToLocalOnReasonerFailure(t *testing.T) {
	reasoner := &fakeReasoner{err: errors.New("rate limit exceeded (429)")}
	parse := func(string) ([]types.Finding, error) { return nil, nil }

	result, err := NewHybrid(NewLocal(), reasoner, parse).Scan(context.Background(), badHTML)
	require.NoError(t, err, "AI failure must not fail the scan")
	assert.Equal(t, "local_only", result.Source)
	assert.NotEmpty(t, result.Findings)
}

func TestHybrid_DegradesToLocalOnParseFailure(t *testing.T) {
	reasoner := &fakeReasoner{response: "not json"}
	parse := func(string) ([]types.Finding, error) { return nil, errors.New("bad json") }

	result, err := NewHybrid(NewLocal(), reasoner, parse).Scan(context.Background(), badHTML)
	require.NoError(t, err)
	assert.Equal(t, "local_only", result.Source)
}
