package pipeline

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/score"
)

// Report builds the session report from the store, so utterances that left
// the display are still counted
func (p *Pipeline) Report(ctx context.Context) (*model.SessionReport, error) {
	return BuildReport(ctx, p.store, p.sessionID, p.now())
}

// ReportSource is the read side of the session store
type ReportSource interface {
	GetSession(ctx context.Context, id string) (*model.Session, error)
	ListUtterances(ctx context.Context, sessionID string) ([]model.ReportedUtterance, error)
}

// BuildReport assembles a report for any stored session
func BuildReport(ctx context.Context, src ReportSource, sessionID string, now time.Time) (*model.SessionReport, error) {
	sess, err := src.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	rows, err := src.ListUtterances(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load utterances: %w", err)
	}

	utterances := make([]model.Utterance, 0, len(rows))
	verdicts := make(map[string]*model.VerificationVerdict)
	for _, ru := range rows {
		utterances = append(utterances, ru.Utterance)
		if ru.Verdict != nil {
			verdicts[ru.Utterance.ID] = ru.Verdict
		}
	}

	return &model.SessionReport{
		Session:     *sess,
		GeneratedAt: now.UTC(),
		Utterances:  rows,
		Credibility: score.NewScorer().Calculate(utterances, verdicts),
	}, nil
}

// RenderReport writes the report to the requested outputs and prints the
// summary to w
func (p *Pipeline) RenderReport(report *model.SessionReport, jsonPath, mdPath string, w io.Writer) error {
	if jsonPath != "" {
		if err := p.renderer.RenderJSON(report, jsonPath); err != nil {
			return fmt.Errorf("render JSON: %w", err)
		}
		p.logger.Info("wrote report", "format", "json", "path", jsonPath)
	}
	if mdPath != "" {
		if err := p.renderer.RenderMarkdown(report, mdPath); err != nil {
			return fmt.Errorf("render markdown: %w", err)
		}
		p.logger.Info("wrote report", "format", "markdown", "path", mdPath)
	}
	if w != nil {
		p.renderer.RenderSummary(w, report)
	}
	return nil
}
