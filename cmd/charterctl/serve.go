package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/alfredjeanlab/charters/internal/charter"
	"github.com/alfredjeanlab/charters/internal/config"
	"github.com/alfredjeanlab/charters/internal/events"
	"github.com/alfredjeanlab/charters/internal/metrics"
	"github.com/alfredjeanlab/charters/internal/presence"
	"github.com/alfredjeanlab/charters/internal/schema"
	"github.com/alfredjeanlab/charters/internal/server"
	"github.com/alfredjeanlab/charters/internal/store"
	"github.com/alfredjeanlab/charters/internal/store/postgres"
	"github.com/alfredjeanlab/charters/internal/store/sqlite"
	chartersync "github.com/alfredjeanlab/charters/internal/sync"
	"github.com/spf13/cobra"
)

// openStore connects to the backend selected by the database URL.
func openStore(cfg *config.Config) (store.Store, error) {
	backend, dsn, err := cfg.Backend()
	if err != nil {
		return nil, err
	}
	if backend == config.BackendSQLite {
		return sqlite.Open(dsn)
	}
	return postgres.New(dsn)
}

func loadSchema(path string) (*schema.Provider, error) {
	if path == "" {
		return schema.New()
	}
	return schema.Load(path)
}

// syncDestinations builds the configured export destinations. A destination
// that fails to initialize is logged and skipped.
func syncDestinations(ctx context.Context, cfg *config.Config, logger *slog.Logger) []chartersync.Destination {
	var dests []chartersync.Destination
	if cfg.SyncS3Bucket != "" {
		s3Dest, err := chartersync.NewS3Destination(ctx, chartersync.S3Options{
			Bucket:   cfg.SyncS3Bucket,
			Key:      cfg.SyncS3Key,
			Region:   cfg.SyncS3Region,
			Endpoint: cfg.SyncS3Endpoint,
		})
		if err != nil {
			logger.Error("failed to create S3 sync destination", "error", err)
		} else {
			dests = append(dests, s3Dest)
			logger.Info("sync S3 destination enabled", "bucket", cfg.SyncS3Bucket, "key", cfg.SyncS3Key)
		}
	}
	if cfg.SyncGitRepo != "" {
		dests = append(dests, chartersync.NewGitDestination(cfg.SyncGitRepo, cfg.SyncGitFile, cfg.SyncGitBranch))
		logger.Info("sync git destination enabled", "repo", cfg.SyncGitRepo, "file", cfg.SyncGitFile)
	}
	return dests
}

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Run the charters service",
	GroupID: "system",
	// The server does not need an HTTP client.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
		slog.SetDefault(logger)

		cfg, err := config.Load()
		if err != nil {
			return err
		}

		sch, err := loadSchema(cfg.SchemaFile)
		if err != nil {
			return err
		}

		st, err := openStore(cfg)
		if err != nil {
			return err
		}

		var publisher events.Publisher
		if cfg.NATSURL != "" {
			pub, err := events.NewNATSPublisher(cfg.NATSURL)
			if err != nil {
				st.Close()
				return err
			}
			publisher = pub
			logger.Info("events enabled", "nats_url", cfg.NATSURL)
		} else {
			publisher = events.NoopPublisher{}
			logger.Info("events disabled (CHARTERS_NATS_URL not set)")
		}

		m := metrics.New()
		coordinator := charter.New(st, sch,
			charter.WithMetrics(m),
			charter.WithLogger(logger),
			charter.WithTimeout(cfg.UpdateTimeout),
		)

		charterServer := server.NewCharterServer(st, coordinator, sch, publisher)
		charterServer.Metrics = m
		charterServer.PresenceWindow = cfg.PresenceWindow
		charterServer.Presence.StartReaper(&presence.ReaperConfig{EvictAfter: 6 * cfg.PresenceWindow})

		grpcServer, healthServer := server.NewGRPCServer(cfg.AuthToken)
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			charterServer.Presence.Stop()
			publisher.Close()
			st.Close()
			return err
		}
		go func() {
			logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
			if err := grpcServer.Serve(lis); err != nil {
				logger.Error("gRPC server error", "error", err)
			}
		}()

		httpServer := &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           charterServer.NewHTTPHandler(cfg.AuthToken),
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server error", "error", err)
			}
		}()

		var scheduler *chartersync.Scheduler
		if cfg.SyncInterval > 0 {
			if dests := syncDestinations(cmd.Context(), cfg, logger); len(dests) > 0 {
				scheduler = chartersync.NewScheduler(st, dests, cfg.SyncInterval, logger,
					chartersync.WithMetrics(m),
					chartersync.WithPublisher(publisher),
				)
				scheduler.Start()
				logger.Info("sync scheduler started", "interval", cfg.SyncInterval)
			}
		}

		logger.Info("charters server started",
			"grpc_addr", cfg.GRPCAddr,
			"http_addr", cfg.HTTPAddr,
			"update_timeout", cfg.UpdateTimeout,
		)

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig)

		// Probes see NOT_SERVING while in-flight work drains.
		healthServer.Shutdown()

		if scheduler != nil {
			scheduler.Stop()
			logger.Info("sync scheduler stopped")
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", "error", err)
		}
		logger.Info("HTTP server stopped")

		grpcServer.GracefulStop()
		logger.Info("gRPC server stopped")

		charterServer.Presence.Stop()
		if err := publisher.Close(); err != nil {
			logger.Error("error closing publisher", "error", err)
		}
		if err := st.Close(); err != nil {
			logger.Error("error closing store", "error", err)
		}

		logger.Info("shutdown complete")
		return nil
	},
}
