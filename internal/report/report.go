// Package report renders suggestions, resolutions and deferred filings as
// markdown explanations, and markdown as a standalone HTML page.
package report

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/hpungsan/casefile/internal/dupe"
	"github.com/hpungsan/casefile/internal/resolver"
	"github.com/hpungsan/casefile/internal/suggest"
)

// Suggestions explains a ranked suggestion list.
func Suggestions(subject string, res suggest.Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Suggested cases for \"%s\"\n\n", escape(subject))
	if len(res.Suggestions) == 0 {
		b.WriteString("No case matched this email.\n")
		return b.String()
	}

	if res.AutoSelectCaseID != "" {
		fmt.Fprintf(&b, "Auto-selected: **%s**\n\n", escape(res.AutoSelectCaseID))
	}
	b.WriteString("| # | Case | Confidence | Score |\n|---|---|---|---|\n")
	for i, s := range res.Suggestions {
		fmt.Fprintf(&b, "| %d | %s | %d%% | %.1f |\n", i+1, escape(caseLabel(s)), s.ConfidencePct, s.Score)
	}
	b.WriteString("\n")
	for _, s := range res.Suggestions {
		fmt.Fprintf(&b, "## %s\n\n", escape(caseLabel(s)))
		for _, r := range s.Reasons {
			fmt.Fprintf(&b, "- %s\n", escape(r))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Resolution explains a resolved filing state.
func Resolution(item resolver.CurrentItemContext, res resolver.Resolution) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Filing status of \"%s\"\n\n", escape(item.Subject))
	fmt.Fprintf(&b, "- State: **%s**", res.State)
	if res.Override {
		b.WriteString(" (marked do-not-file)")
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Evidence: %s\n", res.Source)
	if res.CaseID != "" {
		name := res.CaseID
		if res.CaseName != "" {
			name = fmt.Sprintf("%s (%s)", res.CaseName, res.CaseID)
		}
		fmt.Fprintf(&b, "- Case: %s\n", escape(name))
	}
	if res.DocumentID != "" {
		fmt.Fprintf(&b, "- Document: %s\n", escape(res.DocumentID))
	}
	fmt.Fprintf(&b, "- Labels: %s\n", labelSummary(res))
	if len(res.Notes) > 0 {
		b.WriteString("\n## Notes\n\n")
		for _, n := range res.Notes {
			fmt.Fprintf(&b, "- %s\n", escape(n))
		}
	}
	return b.String()
}

// Deferred lists filings waiting for confirmation.
func Deferred(items []dupe.Deferred) string {
	var b strings.Builder
	b.WriteString("# Deferred filings\n\n")
	if len(items) == 0 {
		b.WriteString("Nothing is waiting for confirmation.\n")
		return b.String()
	}
	b.WriteString("| ID | Case | Subject | Queued |\n|---|---|---|---|\n")
	for _, d := range items {
		fmt.Fprintf(&b, "| %s | %s | %s | %s |\n",
			d.ID, escape(d.CaseID), escape(d.Subject), formatMillis(d.CreatedAt))
	}
	return b.String()
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
</head>
<body>
{{.Body}}
</body>
</html>
`))

// HTML renders markdown as a standalone HTML page.
func HTML(title, markdown string) (string, error) {
	var body bytes.Buffer
	if err := md.Convert([]byte(markdown), &body); err != nil {
		return "", err
	}
	var out bytes.Buffer
	err := page.Execute(&out, struct {
		Title string
		Body  template.HTML
	}{Title: title, Body: template.HTML(body.String())})
	if err != nil {
		return "", err
	}
	return out.String(), nil
}

func caseLabel(s suggest.Suggestion) string {
	if s.Title == "" {
		return s.CaseID
	}
	return fmt.Sprintf("%s (%s)", s.Title, s.CaseID)
}

func labelSummary(res resolver.Resolution) string {
	switch {
	case res.Labels.Filed && res.Labels.Unfiled:
		return "Filed, Unfiled"
	case res.Labels.Filed:
		return "Filed"
	case res.Labels.Unfiled:
		return "Unfiled"
	default:
		return "none"
	}
}

func formatMillis(ms int64) string {
	return time.UnixMilli(ms).UTC().Format("2006-01-02 15:04")
}

var mdEscaper = strings.NewReplacer(
	`\`, `\\`,
	"|", `\|`,
	"*", `\*`,
	"_", `\_`,
	"`", "\\`",
	"<", "&lt;",
	">", "&gt;",
)

// escape keeps user text from being read as markdown or raw HTML.
func escape(s string) string {
	return mdEscaper.Replace(s)
}
