package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	outJSON       string
	outMD         string
	sessionID     string
	replayTimeout time.Duration
	storePath     string
	noFooter      bool
)

// replayCmd represents the replay command
var replayCmd = &cobra.Command{
	Use:   "replay <captions.jsonl>",
	Short: "Replay recorded captions and score the speakers",
	Long: `Replay feeds a recorded caption capture through the live pipeline:
- Reconcile fragments into speaker-attributed utterances
- Store every utterance in the session store
- Verify each utterance and attach its verdict
- Score every speaker and the session as a whole

Each line of the capture is a JSON object with one of:
  {"text": "...", "context": {"immediate": "@handle", "display_name": "..."}}
  {"snapshot": "<html of the caption area>"}
  {"flush": true}

Example:
  veracast replay room.jsonl
  veracast replay room.jsonl --json report.json --md report.md
  veracast replay more.jsonl --session 3f0c... (resume a session)`,
	Args: cobra.ExactArgs(1),
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&outJSON, "json", "", "output JSON report path (optional)")
	replayCmd.Flags().StringVar(&outMD, "md", "", "output Markdown report path (optional)")
	replayCmd.Flags().StringVar(&sessionID, "session", "", "session id to resume (default: new session)")
	replayCmd.Flags().StringVar(&storePath, "store", "", "session store path (overrides store.path)")
	replayCmd.Flags().DurationVar(&replayTimeout, "timeout", 30*time.Minute, "overall replay timeout")
	replayCmd.Flags().BoolVar(&noFooter, "no-footer", false, "disable footer in Markdown reports")
}

func runReplay(cmd *cobra.Command, args []string) error {
	path := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if noFooter {
		cfg.Output.IncludeFooter = false
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open capture: %w", err)
	}
	defer func() { _ = f.Close() }()

	s, err := openSession(ctx, cfg, sessionID)
	if err != nil {
		return err
	}
	defer s.close()
	p := s.pipeline

	if verbose {
		fmt.Fprintf(os.Stderr, "Replaying: %s\n", path)
		fmt.Fprintf(os.Stderr, "Session:   %s\n", p.SessionID())
		fmt.Fprintf(os.Stderr, "Store:     %s\n", cfg.Store.Path)
		fmt.Fprintln(os.Stderr)
	}

	stats, err := p.Replay(ctx, f)
	if err != nil {
		return fmt.Errorf("replay failed: %w", err)
	}
	// Wait for outstanding verifications before scoring
	p.Close()

	fmt.Fprintf(os.Stderr, "✓ Read %d capture lines (%d fragments, %d skipped)\n", stats.Lines, stats.Fragments, stats.Skipped)
	fmt.Fprintf(os.Stderr, "✓ Finalized %d utterances\n", stats.Finalized)

	report, err := p.Report(ctx)
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	if err := p.RenderReport(report, outJSON, outMD, os.Stdout); err != nil {
		return fmt.Errorf("render failed: %w", err)
	}
	return nil
}
