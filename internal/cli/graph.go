package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/ppiankov/veracast/internal/clock"
	"github.com/ppiankov/veracast/internal/events"
	"github.com/ppiankov/veracast/internal/graph"
	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/model"
	"github.com/ppiankov/veracast/internal/pipeline"
	"github.com/spf13/cobra"
)

var (
	graphNodes   int
	graphExpand  int
	graphJSON    string
	graphHTML    string
	graphTimeout time.Duration
	noCache      bool
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph <claim>",
	Short: "Build the propagation graph of a claim",
	Long: `Graph finds the posts that spread a claim and lays them out:
- Extract search keywords from the claim
- Collect matching posts (search, or generated when search finds nothing)
- Keep only posts relevant to the claim and classify their stance
- Group posts into stance clusters and connect them
- Run the force layout until it settles

Graphs are cached per claim; --expand grows a cached graph and keeps the
layout of the posts already placed.

Example:
  veracast graph "taxes went up 40% last year"
  veracast graph "taxes went up 40% last year" --nodes 50 --expand 2
  veracast graph "taxes went up 40% last year" --json graph.json --html graph.html`,
	Args: cobra.ExactArgs(1),
	RunE: runGraph,
}

func init() {
	rootCmd.AddCommand(graphCmd)

	graphCmd.Flags().IntVar(&graphNodes, "nodes", 0, "target number of posts (default: graph.target_nodes)")
	graphCmd.Flags().IntVar(&graphExpand, "expand", 0, "number of expansions after the first build")
	graphCmd.Flags().StringVar(&graphJSON, "json", "", "output JSON path (optional)")
	graphCmd.Flags().StringVar(&graphHTML, "html", "", "output standalone HTML path (optional)")
	graphCmd.Flags().DurationVar(&graphTimeout, "timeout", 2*time.Minute, "overall timeout")
	graphCmd.Flags().BoolVar(&noCache, "no-cache", false, "disable cache (force a fresh build)")
}

func runGraph(cmd *cobra.Command, args []string) error {
	claim := args[0]
	ctx, cancel := context.WithTimeout(context.Background(), graphTimeout)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if noCache {
		cfg.Cache.Enabled = false
	}
	if graphNodes <= 0 {
		graphNodes = cfg.Graph.TargetNodes
	}

	comps, err := pipeline.NewComponents(cfg, slog.Default())
	if err != nil {
		return err
	}
	defer func() { _ = comps.Close() }()

	bus := events.NewBus(events.WithHistory(0))
	if verbose {
		bus.Subscribe(func(ev events.Event) {
			if u, ok := ev.Data.(events.GraphUpdate); ok {
				fmt.Fprintf(os.Stderr, "⚙️  %s\n", u.Stage)
			}
		}, events.GraphStage)
	}
	lcfg := layout.ConfigFromModel(cfg.Layout)
	lcfg.Frame = 0
	view := pipeline.NewGraphView(comps.Graphs, lcfg, bus,
		pipeline.WithRevealClock(clock.Real{}, graph.RevealTiming{}),
		pipeline.WithGraphLogger(slog.Default()))

	g, err := view.Show(ctx, claim, graphNodes, false)
	if errors.Is(err, graph.ErrNoGraph) {
		fmt.Fprintf(os.Stderr, "✗ No posts relevant to the claim were found\n")
		return nil
	}
	if err != nil {
		return fmt.Errorf("build graph: %w", err)
	}
	for i := 0; i < graphExpand; i++ {
		expanded, err := view.Show(ctx, claim, graphNodes, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "✗ Expansion %d failed: %v\n", i+1, err)
			break
		}
		g = expanded
	}

	printGraphSummary(g)

	if graphJSON != "" {
		if err := writeGraphJSON(g, graphJSON); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", graphJSON)
	}
	if graphHTML != "" {
		if err := writeGraphHTML(g, lcfg, graphHTML); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "✓ Wrote %s\n", graphHTML)
	}
	return nil
}

func printGraphSummary(g *model.ClaimGraph) {
	st := g.Statistics
	fmt.Printf("\nClaim: %s\n", g.ClaimSummary)
	if len(g.Keywords) > 0 {
		fmt.Printf("Keywords: %v\n", g.Keywords)
	}
	fmt.Printf("Posts: %d (%s), edges: %d, expansions: %d\n", len(g.Nodes), g.Source, len(g.Edges), g.Expansions)
	fmt.Printf("Stance: %d supporting, %d contradicting, %d neutral\n", st.Supporters, st.Contradictors, st.Neutral)
	fmt.Printf("Total impressions: %d\n", st.TotalImpressions)
}

func writeGraphJSON(g *model.ClaimGraph, path string) error {
	data, err := json.MarshalIndent(g, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal graph: %w", err)
	}
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write graph: %w", err)
	}
	return nil
}

func writeGraphHTML(g *model.ClaimGraph, lcfg layout.Config, path string) (err error) {
	if err := ensureDir(path); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil && err == nil {
			err = fmt.Errorf("close %s: %w", path, closeErr)
		}
	}()
	return graph.WriteHTML(f, g, graph.HTMLOptions{
		Width:     lcfg.Width,
		Height:    lcfg.Height,
		MinRadius: lcfg.MinRadius,
		MaxRadius: lcfg.MaxRadius,
	})
}
