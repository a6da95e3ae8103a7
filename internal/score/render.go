package score

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ppiankov/veracast/internal/model"
)

// Renderer writes session reports
type Renderer struct {
	includeFooter bool
}

// NewRenderer creates a renderer
func NewRenderer(includeFooter bool) *Renderer {
	return &Renderer{includeFooter: includeFooter}
}

// RenderJSON writes the report as indented JSON
func (r *Renderer) RenderJSON(report *model.SessionReport, path string) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	return writeFile(path, append(data, '\n'))
}

// RenderMarkdown writes the report as Markdown
func (r *Renderer) RenderMarkdown(report *model.SessionReport, path string) error {
	return writeFile(path, []byte(r.Markdown(report)))
}

// Markdown renders the report
func (r *Renderer) Markdown(report *model.SessionReport) string {
	var b strings.Builder
	c := report.Credibility

	fmt.Fprintf(&b, "# Session %s\n\n", report.Session.ID)
	fmt.Fprintf(&b, "- Started: %s\n", report.Session.StartedAt.UTC().Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Utterances: %d\n", report.Session.UtteranceCount)
	fmt.Fprintf(&b, "- Overall credibility: %s\n", formatScore(c.Overall))
	fmt.Fprintf(&b, "- Scored: %d | Pending: %d | Failed: %d | Skipped: %d\n\n", c.Scored, c.Pending, c.Failed, c.Skipped)

	if report.Session.ContextSummary != "" {
		b.WriteString("## Context\n\n")
		b.WriteString(report.Session.ContextSummary)
		b.WriteString("\n\n")
	}

	if len(c.BySpeaker) > 0 {
		b.WriteString("## Speakers\n\n")
		b.WriteString("| Speaker | Utterances | Scored | Score |\n")
		b.WriteString("|---|---|---|---|\n")
		for _, sp := range RankSpeakers(c) {
			fmt.Fprintf(&b, "| %s | %d | %d | %s |\n", escapeCell(sp.Key), sp.Utterances, sp.Scored, formatScore(sp.Score))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Transcript\n\n")
	for _, ru := range report.Utterances {
		u := ru.Utterance
		fmt.Fprintf(&b, "### #%d %s\n\n", u.SequenceNumber, u.SpeakerKey)
		fmt.Fprintf(&b, "> %s\n\n", u.Text)
		if ru.Verdict == nil {
			fmt.Fprintf(&b, "_Status: %s_\n\n", u.Status)
			continue
		}
		v := ru.Verdict
		if v.Skipped {
			fmt.Fprintf(&b, "_Skipped: %s_\n\n", v.Reason)
			continue
		}
		fmt.Fprintf(&b, "**Verdict:** %s (score %s)\n\n", v.Verdict, formatScore(v.Score))
		for i, cl := range v.Claims {
			fmt.Fprintf(&b, "%d. %s: **%s** (score %s)\n", i+1, cl.Text, cl.Verdict, formatScore(cl.Score))
			if cl.Explanation != "" {
				fmt.Fprintf(&b, "   - %s\n", cl.Explanation)
			}
			for _, src := range cl.Sources {
				fmt.Fprintf(&b, "   - <%s>\n", src)
			}
		}
		b.WriteString("\n")
	}

	if r.includeFooter {
		fmt.Fprintf(&b, "---\n_Generated by veracast at %s. Scores reflect automated verification and may be wrong._\n",
			report.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))
	}
	return b.String()
}

// RenderSummary prints a short summary
func (r *Renderer) RenderSummary(w io.Writer, report *model.SessionReport) {
	c := report.Credibility
	fmt.Fprintf(w, "\nSession: %s\n", report.Session.ID)
	fmt.Fprintf(w, "Utterances: %d (scored %d, pending %d, failed %d, skipped %d)\n",
		len(report.Utterances), c.Scored, c.Pending, c.Failed, c.Skipped)
	if c.Overall != nil {
		fmt.Fprintf(w, "Overall credibility: %.1f/10 (%s)\n", *c.Overall, Label(*c.Overall))
	} else {
		fmt.Fprintln(w, "Overall credibility: n/a")
	}
	for _, sp := range RankSpeakers(c) {
		fmt.Fprintf(w, "  %-20s %s\n", sp.Key, formatScore(sp.Score))
	}
}

func formatScore(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("%.1f", *v)
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
