package report

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hpungsan/casefile/internal/dupe"
	"github.com/hpungsan/casefile/internal/labels"
	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

func TestSuggestions(t *testing.T) {
	res := suggest.Result{
		AutoSelectCaseID: "c1",
		Suggestions: []suggest.Suggestion{
			{CaseID: "c1", Title: "Smith v. Jones", Score: 130, ConfidencePct: 92, Reasons: []string{"reference 2024-017 found in subject"}},
			{CaseID: "c2", Title: "Acme_Merger", Score: 20, ConfidencePct: 11, Reasons: []string{"recently used case"}},
		},
	}

	out := Suggestions("RE: Smith | update", res)
	assert.Contains(t, out, `# Suggested cases for "RE: Smith \| update"`)
	assert.Contains(t, out, "Auto-selected: **c1**")
	assert.Contains(t, out, "| 1 | Smith v. Jones (c1) | 92% | 130.0 |")
	assert.Contains(t, out, `Acme\_Merger (c2)`)
	assert.Contains(t, out, "- reference 2024-017 found in subject")
}

func TestSuggestions_Empty(t *testing.T) {
	out := Suggestions("Hello", suggest.Result{})
	assert.Contains(t, out, "No case matched this email.")
	assert.NotContains(t, out, "Auto-selected")
}

func TestResolution(t *testing.T) {
	item := resolver.CurrentItemContext{Subject: "Quarterly report"}
	res := resolver.Resolution{
		State:      resolver.StateFiled,
		Source:     resolver.SourceCache,
		CaseID:     "c1",
		CaseName:   "Smith",
		DocumentID: "d1",
		Labels:     labels.State{Filed: true},
		Notes:      []string{"cache hit by subject"},
	}

	out := Resolution(item, res)
	assert.Contains(t, out, "- State: **filed**\n")
	assert.Contains(t, out, "- Evidence: cache")
	assert.Contains(t, out, "- Case: Smith (c1)")
	assert.Contains(t, out, "- Document: d1")
	assert.Contains(t, out, "- Labels: Filed")
	assert.Contains(t, out, "## Notes")

	res = resolver.Resolution{State: resolver.StateUnfiled, Override: true, Source: resolver.SourceLabel, Labels: labels.State{Unfiled: true}}
	out = Resolution(item, res)
	assert.Contains(t, out, "**unfiled** (marked do-not-file)")
	assert.NotContains(t, out, "- Case:")
}

func TestDeferred(t *testing.T) {
	assert.Contains(t, Deferred(nil), "Nothing is waiting")

	out := Deferred([]dupe.Deferred{{ID: "01ABC", CaseID: "c1", Subject: "Budget", CreatedAt: 1_700_000_000_000}})
	assert.Contains(t, out, "| 01ABC | c1 | Budget | 2023-11-14 22:13 |")
}

func TestHTML(t *testing.T) {
	page, err := HTML("Status <1>", "# Title\n\n| a | b |\n|---|---|\n| 1 | 2 |\n\n- one &lt;script&gt;\n")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))
	assert.Contains(t, page, "<title>Status &lt;1&gt;</title>")
	assert.Contains(t, page, "<h1>Title</h1>")
	assert.Contains(t, page, "<table>")
	assert.Contains(t, page, "<li>one &lt;script&gt;</li>")
	assert.NotContains(t, page, "<script>")
}

func TestEscape(t *testing.T) {
	assert.Equal(t, `a\|b \*c\* &lt;x&gt;`, escape("a|b *c* <x>"))
}
