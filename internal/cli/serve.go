package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ppiankov/veracast/internal/layout"
	"github.com/ppiankov/veracast/internal/pipeline"
	"github.com/ppiankov/veracast/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve a live session to rendering surfaces",
	Long: `Serve starts a capture session and exposes it over HTTP:
- /ws streams every session event and accepts caption fragments,
  graph requests and layout interaction commands
- /api/report, /api/graph and /api/events return the current state
- /metrics exposes Prometheus metrics, /healthz liveness

The session report is printed when the server stops.

Example:
  veracast serve
  veracast serve --addr 0.0.0.0:8787 --session 3f0c...`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "listen address (default: server.addr)")
	serveCmd.Flags().StringVar(&sessionID, "session", "", "session id to resume (default: new session)")
	serveCmd.Flags().StringVar(&storePath, "store", "", "session store path (overrides store.path)")

	_ = viper.BindPFlag("server.addr", serveCmd.Flags().Lookup("addr"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}

	s, err := openSession(ctx, cfg, sessionID)
	if err != nil {
		return err
	}
	defer s.close()
	p := s.pipeline

	view := pipeline.NewGraphView(s.comps.Graphs, layout.ConfigFromModel(cfg.Layout), p.Bus(),
		pipeline.WithGraphLogger(slog.Default()))
	srv := server.New(p, view, server.Options{
		Logger:     slog.Default(),
		GraphNodes: cfg.Graph.TargetNodes,
	})

	fmt.Fprintf(os.Stderr, "✓ Session %s\n", p.SessionID())
	fmt.Fprintf(os.Stderr, "✓ Listening on http://%s (WebSocket at /ws)\n", cfg.Server.Addr)

	if err := srv.Run(ctx, cfg.Server.Addr); err != nil {
		return err
	}
	p.Close()

	report, err := p.Report(context.Background())
	if err != nil {
		return fmt.Errorf("build report: %w", err)
	}
	return p.RenderReport(report, "", "", os.Stdout)
}
