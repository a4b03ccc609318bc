package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/urfave/cli/v3"
	"golang.org/x/sync/errgroup"

	"github.com/rickgao/storetwin/internal/api"
	"github.com/rickgao/storetwin/internal/auth"
	"github.com/rickgao/storetwin/internal/codec"
	"github.com/rickgao/storetwin/internal/config"
	"github.com/rickgao/storetwin/internal/database"
	"github.com/rickgao/storetwin/internal/hub"
	"github.com/rickgao/storetwin/internal/relay"
	"github.com/rickgao/storetwin/internal/router"
	"github.com/rickgao/storetwin/internal/sensors"
	"github.com/rickgao/storetwin/internal/status"
	"github.com/rickgao/storetwin/internal/version"
	"github.com/rickgao/storetwin/internal/writer"
)

const shutdownTimeout = 10 * time.Second

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the multi-client hub",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Usage: "override server.addr"},
		},
		Action: runServe,
	}
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	if addr := cmd.String("addr"); addr != "" {
		cfg.Server.Addr = addr
	}

	logger.Info("starting storetwin server",
		"version", version.Version,
		"commit", version.Commit,
		"addr", cfg.Server.Addr,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	// Token verification
	var verifier hub.TokenVerifier
	if cfg.Auth.Secret != "" {
		creds, err := auth.NewCredentials(cfg.Auth.Secret)
		if err != nil {
			return err
		}
		verifier = creds
	}

	// Router and in-process consumers
	rtr := router.New(router.Config{
		MailboxSize:  cfg.Router.MailboxSize,
		MailboxLimit: cfg.Router.MailboxLimit,
		OnError: func(env codec.Envelope, err error) {
			logger.Debug("frame rejected", "source", env.Source, "type", env.Type, "error", err)
		},
	}, logger.With("component", "router"))

	store := sensors.NewStore(logger.With("component", "sensors"))
	store.Attach(rtr)

	h := hub.New(hubConfig(cfg.Server), rtr, verifier, store, logger.With("component", "hub"))

	deps := api.ServerDeps{Hub: h, Router: rtr, Sensors: store, Verifier: verifier}

	// Database and sensor writer (optional)
	var sw *writer.SensorWriter
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err := database.Connect(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect database: %w", err)
		}
		defer pool.Close()
		deps.DB = pool

		sw = writer.NewSensorWriter(writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
			QueueLimit:    cfg.Writer.QueueLimit,
		}, pool, logger.With("component", "writer"))
		if err := sw.EnsureSchema(ctx); err != nil {
			return err
		}
		sw.Attach(rtr)
		// Inserts must survive the signal so the final flush can run.
		if err := sw.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		logger.Info("database connected")
	}

	// Redis relay (optional)
	var rl *relay.Relay
	if cfg.Redis.Enabled() {
		rl = relay.New(relay.Config{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channels: cfg.Redis.Channels,
		}, rtr, logger)
		defer rl.Close()
	}

	// Status snapshots: initial_data on connect, periodic status_update
	// unless disabled.
	sb := status.New(status.Config{Interval: cfg.Status.Interval}, h, status.Sources{
		Clients: h.Registry(),
		Sensors: store,
		Router:  rtr,
	}, logger.With("component", "status"))
	h.SetSnapshot(sb.InitialData)

	gin.SetMode(gin.ReleaseMode)
	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           api.NewServer(deps, logger.With("component", "http")),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := rtr.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("router: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.Server.Addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	if rl != nil {
		g.Go(func() error {
			if err := rl.Run(gctx); err != nil && gctx.Err() == nil {
				return fmt.Errorf("relay: %w", err)
			}
			return nil
		})
	}

	if !cfg.Status.Disabled {
		if err := sb.Start(gctx); err != nil {
			return err
		}
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()

		if !cfg.Status.Disabled {
			sb.Stop(shutdownCtx)
		}
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("http server shutdown", "error", err)
		}
		h.Shutdown()
		return nil
	})

	err = g.Wait()

	if sw != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		sw.Stop(shutdownCtx)
		shutdownCancel()
		logWriterStats(logger, sw.Stats())
	}

	logger.Info("storetwin server stopped")
	return err
}

// hubConfig maps server config onto the hub.
func hubConfig(s config.ServerConfig) hub.Config {
	cfg := hub.DefaultConfig()
	cfg.WriteTimeout = s.WriteTimeout
	cfg.PongTimeout = s.PongTimeout
	cfg.PingInterval = s.PingInterval
	cfg.SendBufferSize = s.SendBuffer
	cfg.ReadLimit = s.ReadLimit
	cfg.RateLimit = s.RateLimit
	cfg.RateBurst = s.RateBurst
	cfg.RequireAuth = s.RequireAuth
	return cfg
}

func logWriterStats(logger *slog.Logger, m writer.WriterMetrics) {
	logger.Info("sensor writer totals",
		"inserts", m.Inserts,
		"conflicts", m.Conflicts,
		"errors", m.Errors,
		"dropped", m.Dropped,
	)
}
