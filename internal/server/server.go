// Package server exposes a capture session to rendering surfaces: pipeline
// events stream out over a WebSocket and interaction commands stream back in.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/ppiankov/veracast/internal/events"
	"github.com/ppiankov/veracast/internal/metrics"
	"github.com/ppiankov/veracast/internal/pipeline"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Options holds the optional settings of a Server
type Options struct {
	Logger          *slog.Logger
	GraphNodes      int // Target size for graph commands without a node count
	ShutdownTimeout time.Duration
}

// Server serves one pipeline and its graph view
type Server struct {
	pipeline *pipeline.Pipeline
	view     *pipeline.GraphView
	hub      *Hub
	echo     *echo.Echo
	upgrader websocket.Upgrader
	opts     Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup
	subID  string
}

// New wires a server to p and view. Every bus event is forwarded to the
// connected surfaces.
func New(p *pipeline.Pipeline, view *pipeline.GraphView, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.GraphNodes <= 0 {
		opts.GraphNodes = 30
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 5 * time.Second
	}
	logger := opts.Logger.With("component", "server")

	s := &Server{
		pipeline: p,
		view:     view,
		hub:      NewHub(logger),
		opts:     opts,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			// The surface is served from the same machine
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.subID = p.Bus().Subscribe(s.hub.Broadcast)

	metrics.Register(prometheus.DefaultRegisterer)
	s.echo = s.routes()
	return s
}

func (s *Server) routes() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.HTTPErrorHandler = func(err error, c echo.Context) {
		code := http.StatusInternalServerError
		msg := err.Error()
		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			if he.Message != nil {
				msg = fmt.Sprint(he.Message)
			}
		}
		req := c.Request()
		s.logger.Debug("request failed", "status", code, "method", req.Method, "path", req.URL.Path, "error", err)
		if !c.Response().Committed {
			_ = c.JSON(code, map[string]string{"error": msg})
		}
	}

	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/ws", s.handleWS)

	api := e.Group("/api")
	api.GET("/report", s.handleReport)
	api.GET("/graph", s.handleGraph)
	api.GET("/events", s.handleEvents)
	return e
}

// Handler returns the HTTP handler
func (s *Server) Handler() http.Handler { return s.echo }

// Hub returns the connected surfaces
func (s *Server) Hub() *Hub { return s.hub }

// Run serves on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("serving rendering surfaces", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		s.Close()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	s.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

// Close disconnects every surface and waits for commands still running
func (s *Server) Close() {
	s.pipeline.Bus().Unsubscribe(s.subID)
	s.cancel()
	s.hub.CloseAll()
	s.bg.Wait()
}

func (s *Server) handleReport(c echo.Context) error {
	report, err := s.pipeline.Report(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, report)
}

func (s *Server) handleGraph(c echo.Context) error {
	g := s.view.Current()
	if g == nil {
		return echo.NewHTTPError(http.StatusNotFound, "no graph displayed")
	}
	return c.JSON(http.StatusOK, g)
}

func (s *Server) handleEvents(c echo.Context) error {
	return c.JSON(http.StatusOK, s.pipeline.Bus().History())
}

func (s *Server) handleWS(c echo.Context) error {
	conn, err := s.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err)
		return nil
	}

	cl := newClient(conn)
	// Late joiners catch up before live events
	for _, ev := range s.pipeline.Bus().History() {
		cl.enqueue(ev)
	}
	s.hub.add(cl)
	go cl.writeLoop(s.logger)

	s.readLoop(cl)
	s.hub.remove(cl)
	return nil
}

func (s *Server) readLoop(cl *client) {
	cl.conn.SetReadLimit(maxCommandSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Debug("websocket read failed", "client", cl.id, "error", err)
			}
			return
		}
		cmd, err := events.ParseCommand(data)
		if err != nil {
			s.reject(cl, cmd.Type, err)
			continue
		}
		if err := s.dispatch(cl, cmd); err != nil {
			s.reject(cl, cmd.Type, err)
		}
	}
}

// dispatch applies one command. Long-running work runs in the background
// and reports through the bus.
func (s *Server) dispatch(cl *client, cmd events.Command) error {
	switch cmd.Type {
	case events.CmdDragStart:
		if err := s.view.DragStart(cmd.NodeID); err != nil {
			return err
		}
		s.background(func(ctx context.Context) { _, _ = s.view.Settle(ctx) })
	case events.CmdDrag:
		return s.view.Drag(cmd.NodeID, cmd.X, cmd.Y)
	case events.CmdDragEnd:
		if err := s.view.DragEnd(cmd.NodeID); err != nil {
			return err
		}
		s.background(func(ctx context.Context) { _, _ = s.view.Settle(ctx) })
	case events.CmdZoom:
		s.reply(cl, events.ViewTransform, s.view.Zoom(cmd.K, cmd.X, cmd.Y))
	case events.CmdPan:
		s.reply(cl, events.ViewTransform, s.view.Pan(cmd.X, cmd.Y))
	case events.CmdClick:
		s.view.Click(cmd.X, cmd.Y)
	case events.CmdGraph, events.CmdExpand:
		nodes := cmd.Nodes
		if nodes <= 0 {
			nodes = s.opts.GraphNodes
		}
		claim, expand := cmd.Claim, cmd.Type == events.CmdExpand
		// Failures are published by the view
		s.background(func(ctx context.Context) { _, _ = s.view.Show(ctx, claim, nodes, expand) })
	case events.CmdFlush:
		s.pipeline.Flush()
	case events.CmdSources:
		id, idx := cmd.UtteranceID, cmd.ClaimIndex
		s.background(func(ctx context.Context) {
			if _, err := s.pipeline.RegenerateSources(ctx, id, idx); err != nil {
				s.reject(cl, events.CmdSources, err)
			}
		})
	case events.CmdFragment:
		var domCtx any
		if cmd.Context != nil {
			domCtx = *cmd.Context
		}
		s.pipeline.Ingest(cmd.Text, domCtx)
	}
	return nil
}

func (s *Server) background(fn func(ctx context.Context)) {
	s.bg.Add(1)
	go func() {
		defer s.bg.Done()
		fn(s.ctx)
	}()
}

// reply sends an event to one surface only
func (s *Server) reply(cl *client, t events.Type, data any) {
	cl.enqueue(events.Event{ID: uuid.NewString(), Type: t, At: time.Now().UTC(), Data: data})
}

func (s *Server) reject(cl *client, cmd events.CommandType, err error) {
	s.logger.Debug("command rejected", "client", cl.id, "command", cmd, "error", err)
	s.reply(cl, events.CommandFailed, events.CommandError{Command: cmd, Error: err.Error()})
}
