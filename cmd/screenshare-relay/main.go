package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/screenmesh/screenshare-relay/internal/config"
	"github.com/screenmesh/screenshare-relay/internal/httpserver"
	"github.com/screenmesh/screenshare-relay/internal/metrics"
	"github.com/screenmesh/screenshare-relay/internal/registry"
	"github.com/screenmesh/screenshare-relay/internal/signaling"
)

var (
	// Set via -ldflags at build time. Values may be empty in local/dev builds.
	buildCommit = ""
	buildTime   = ""
)

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger, err := config.NewLogger(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	logger.Info("starting screenshare-relay",
		"listen_addr", cfg.ListenAddr,
		"mode", cfg.Mode,
		"allowed_origins", cfg.AllowedOrigins,
		"ws_idle_timeout", cfg.WSIdleTimeout,
		"ws_ping_interval", cfg.WSPingInterval,
		"max_message_bytes", cfg.MaxMessageBytes,
	)

	reg := registry.New()
	met := metrics.New()

	sig := signaling.NewServer(signaling.Config{
		Logger:          logger.With("component", "signaling"),
		Registry:        reg,
		Metrics:         met,
		AllowedOrigins:  cfg.AllowedOrigins,
		IdleTimeout:     cfg.WSIdleTimeout,
		PingInterval:    cfg.WSPingInterval,
		WriteTimeout:    cfg.WSWriteTimeout,
		MaxMessageBytes: cfg.MaxMessageBytes,
		SendQueueSize:   cfg.SendQueueSize,
	})

	srv := httpserver.New(cfg, logger, resolveBuildInfo(), reg, met, sig)

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		logger.Error("failed to listen", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, httpserver.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("shutting down", "timeout", cfg.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown failed, closing", "err", err)
			return srv.Close()
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("relay exited", "err", err)
		os.Exit(1)
	}
	logger.Info("relay stopped")
}

func resolveBuildInfo() httpserver.BuildInfo {
	commit := buildCommit
	if commit == "" {
		if info, ok := debug.ReadBuildInfo(); ok {
			for _, setting := range info.Settings {
				if setting.Key == "vcs.revision" {
					commit = setting.Value
					break
				}
			}
		}
	}
	return httpserver.BuildInfo{Commit: commit, BuildTime: buildTime}
}
