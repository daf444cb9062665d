package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/teslashibe/go-focus/internal/log"
	"github.com/teslashibe/go-focus/pkg/detection"
	"github.com/teslashibe/go-focus/pkg/hub"
	"github.com/teslashibe/go-focus/pkg/metrics"
	"github.com/teslashibe/go-focus/pkg/session"
	"github.com/teslashibe/go-focus/pkg/web"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the focus API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return a.serve(ctx)
		},
	}

	flags := cmd.Flags()
	flags.String("addr", ":8080", "listen address")
	flags.String("backend", "none", "default detector backend for frame sessions: none, yunet, cascade, yunet+cascade")
	flags.String("profile", "landmark", "default engine profile")
	flags.Int("max-sessions", 0, "maximum concurrent sessions (0 = unlimited)")
	flags.Bool("request-log", false, "log every HTTP request")
	_ = a.v.BindPFlag("server.addr", flags.Lookup("addr"))
	_ = a.v.BindPFlag("session.default_backend", flags.Lookup("backend"))
	_ = a.v.BindPFlag("session.default_profile", flags.Lookup("profile"))
	_ = a.v.BindPFlag("session.max_sessions", flags.Lookup("max-sessions"))
	_ = a.v.BindPFlag("server.request_log", flags.Lookup("request-log"))
	return cmd
}

func (a *app) serve(ctx context.Context) error {
	cfg := a.cfg
	logger := log.With("service", "focusd")

	// Fail at startup rather than on the first session when the default
	// backend's models are missing.
	if b := cfg.Session.DefaultBackend; b != "" && b != "none" {
		obs, err := detection.Open(b, cfg.Detection, logger)
		if err != nil {
			return err
		}
		obs.Close()
	}

	opts := []session.Option{
		session.WithLogger(logger),
		session.WithObserverFactory(func(backend string) (session.FrameObserver, error) {
			obs, err := detection.Open(backend, cfg.Detection, logger)
			if err != nil {
				return nil, err
			}
			return obs, nil
		}),
	}
	var webOpts []web.Option
	if cfg.Metrics.Enabled {
		m := metrics.New(cfg.Metrics.Runtime)
		opts = append(opts, session.WithRecorder(m))
		webOpts = append(webOpts, web.WithMetrics(m.Handler()))
	}
	webOpts = append(webOpts, web.WithLogger(logger))

	sessions := session.NewManager(cfg.Session, opts...)
	defer sessions.Close()

	var monitors *hub.Hub
	if cfg.Monitor.Enabled {
		monitors = hub.New("monitor", logger)
	}
	srv := web.NewServer(cfg.Server, sessions, monitors, webOpts...)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(srv.Listen)
	g.Go(func() error {
		return sessions.Run(ctx)
	})
	if monitors != nil {
		g.Go(func() error {
			monitors.Run(ctx)
			return nil
		})
	}
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	logger.Info("focusd started",
		slog.String("addr", cfg.Server.Addr),
		slog.String("profile", cfg.Session.DefaultProfile),
		slog.String("backend", cfg.Session.DefaultBackend),
		slog.Bool("metrics", cfg.Metrics.Enabled),
		slog.Bool("monitor", cfg.Monitor.Enabled),
	)
	return g.Wait()
}
