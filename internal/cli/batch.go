package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/pipeline"
	"github.com/ppiankov/veracast/internal/worker"
	"github.com/spf13/cobra"
)

var (
	concurrency  int
	outputDir    string
	batchTimeout time.Duration
	batchNodes   int
	batchExpand  int
	batchHTML    bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <file>",
	Short: "Build graphs for many claims from a file in parallel",
	Long: `Batch builds propagation graphs for many claims concurrently:
- Read claims from input file (one per line, # comments allowed)
- Build graphs in parallel with configurable worker count
- Share the graph cache, so repeated claims are built once
- Write one JSON (and optionally HTML) file per claim

Example:
  veracast batch claims.txt
  veracast batch claims.txt --concurrency 4 --output-dir ./graphs --html
  veracast batch claims.txt --nodes 50 --expand 1 --timeout 5m`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().IntVar(&concurrency, "concurrency", 0, "number of concurrent workers (default: concurrency.graph_workers)")
	batchCmd.Flags().StringVar(&outputDir, "output-dir", "./veracast-graphs", "output directory for graphs")
	batchCmd.Flags().DurationVar(&batchTimeout, "timeout", 10*time.Minute, "total timeout for batch processing")
	batchCmd.Flags().IntVar(&batchNodes, "nodes", 0, "target number of posts per claim (default: graph.target_nodes)")
	batchCmd.Flags().IntVar(&batchExpand, "expand", 0, "number of expansions per claim")
	batchCmd.Flags().BoolVar(&batchHTML, "html", false, "also write standalone HTML per claim")
}

func runBatch(cmd *cobra.Command, args []string) error {
	file := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), batchTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if concurrency <= 0 {
		concurrency = cfg.Concurrency.GraphWorkers
	}
	if batchNodes <= 0 {
		batchNodes = cfg.Graph.TargetNodes
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Veracast Batch Graphs\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Input file:   %s\n", file)
	fmt.Fprintf(os.Stderr, "  Workers:      %d\n", concurrency)
	fmt.Fprintf(os.Stderr, "  Posts:        %d (+%d expansions)\n", batchNodes, batchExpand)
	fmt.Fprintf(os.Stderr, "  Output dir:   %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "  Timeout:      %v\n", batchTimeout)
	if cfg.LLM.Provider != "" {
		fmt.Fprintf(os.Stderr, "  LLM:          %s/%s\n", cfg.LLM.Provider, cfg.LLM.Model)
	}
	fmt.Fprintf(os.Stderr, "\n")

	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	comps, err := pipeline.NewComponents(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	processor := worker.NewBatchProcessor(comps.Graphs, concurrency, batchNodes, batchExpand)

	fmt.Fprintf(os.Stderr, "⚙️  Building graphs with %d workers...\n\n", concurrency)
	results, err := processor.ProcessFile(ctx, file)
	if err != nil {
		return fmt.Errorf("process file: %w", err)
	}

	lcfg := layout.ConfigFromModel(cfg.Layout)
	lcfg.Frame = 0
	successCount := 0
	failureCount := 0

	for _, result := range results {
		if result.Error != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Claim, result.Error)
			continue
		}

		// Lay out before export so the HTML has positions
		g := result.Graph.Clone()
		sim := layout.New(g, lcfg)
		if _, err := sim.Run(ctx, nil); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: layout: %v\n", result.Claim, err)
			continue
		}
		sim.WriteBack(g)

		slug := fmt.Sprintf("%03d-%s", result.Index+1, sanitizeFilename(result.Claim))
		if err := writeGraphJSON(g, filepath.Join(outputDir, slug+".json")); err != nil {
			failureCount++
			fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Claim, err)
			continue
		}
		if batchHTML {
			if err := writeGraphHTML(g, lcfg, filepath.Join(outputDir, slug+".html")); err != nil {
				failureCount++
				fmt.Fprintf(os.Stderr, "✗ %s: %v\n", result.Claim, err)
				continue
			}
		}

		successCount++
		fmt.Fprintf(os.Stderr, "✓ %s (%d posts, %s, %v)\n", result.Claim, len(g.Nodes), g.Source, result.Duration.Round(time.Millisecond))
	}

	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "  Batch Complete\n")
	fmt.Fprintf(os.Stderr, "═══════════════════════════════════════════════════════════\n")
	fmt.Fprintf(os.Stderr, "\n")
	fmt.Fprintf(os.Stderr, "  Total:     %d claims\n", len(results))
	fmt.Fprintf(os.Stderr, "  Success:   %d\n", successCount)
	fmt.Fprintf(os.Stderr, "  Failures:  %d\n", failureCount)
	fmt.Fprintf(os.Stderr, "  Output:    %s\n", outputDir)
	fmt.Fprintf(os.Stderr, "\n")

	return nil
}

var filenameReplacer = strings.NewReplacer(
	"/", "_", "\\", "_", ":", "_", "*", "_", "?", "_",
	"\"", "_", "<", "_", ">", "_", "|", "_", " ", "-",
)

// sanitizeFilename turns a claim into a safe file name stem
func sanitizeFilename(s string) string {
	s = filenameReplacer.Replace(strings.ToLower(strings.TrimSpace(s)))
	s = strings.Trim(s, ".-_")
	if r := []rune(s); len(r) > 60 {
		s = string(r[:60])
	}
	if s == "" {
		s = "claim"
	}
	return s
}
