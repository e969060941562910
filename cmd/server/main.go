// Mistware file store server
//
// Features:
// - Directory-scoped file store over local, SMB, S3, MinIO or in-memory storage
// - Streamed multipart uploads with size and file-signature validation
// - Daily log objects in the store with 60-day retention
// - Prometheus metrics & structured logging (zap)
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/mistware/files/internal/api"
	"github.com/mistware/files/internal/config"
	"github.com/mistware/files/internal/logging"
	"github.com/mistware/files/internal/logstore"
	"github.com/mistware/files/internal/metrics"
	"github.com/mistware/files/internal/storage"
	"github.com/mistware/files/internal/storage/factory"
	"github.com/mistware/files/internal/upload"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// Can't use structured logging yet
		panic("configuration error: " + err.Error())
	}

	// Initialize structured logging
	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: cfg.LogOutput,
	}); err != nil {
		panic("logging init error: " + err.Error())
	}
	defer logging.Sync()

	logging.Info("Mistware file store starting...",
		zap.String("listen", cfg.ListenAddr),
		zap.String("metrics", cfg.MetricsAddr),
		zap.String("backend", cfg.StorageBackend))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize storage backend
	backendConfig, err := cfg.BackendConfig()
	if err != nil {
		logging.Fatal("storage config error", zap.Error(err))
	}
	backend, err := factory.NewBackend(ctx, cfg.StorageBackend, backendConfig)
	if err != nil {
		logging.Fatal("storage backend init failed", zap.Error(err))
	}
	defer backend.Close()
	logging.Info("storage backend ready",
		zap.String("type", backend.Type()),
		zap.String("location", backend.Location()))

	if err := ensureFolder(ctx, backend, cfg.UploadFolder); err != nil {
		logging.Fatal("upload folder init failed", zap.Error(err), zap.String("folder", cfg.UploadFolder))
	}

	// Initialize log store and retention sweep (optional)
	if cfg.LogStoreEnabled {
		scheduler, err := startLogStore(ctx, backend, cfg)
		if err != nil {
			logging.Fatal("log store init failed", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	// Create API server
	srv := api.NewServer(backend, api.UploadOptions{
		SizeLimit: cfg.MaxUploadSize,
		Permitted: cfg.PermittedExtensions,
		Registry:  upload.DefaultRegistry(),
	})

	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsServer := &http.Server{
		Addr:              cfg.MetricsAddr,
		Handler:           metrics.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logging.Info("metrics server listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		logging.Info("server listening (HTTP)", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		logging.Info("shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return errors.Join(
			httpServer.Shutdown(shutdownCtx),
			metricsServer.Shutdown(shutdownCtx),
		)
	})

	if err := g.Wait(); err != nil {
		logging.Error("server error", zap.Error(err))
		os.Exit(1)
	}
}

// ensureFolder creates dir on backend unless it already exists.
func ensureFolder(ctx context.Context, backend storage.Backend, dir string) error {
	sess := storage.NewSession(backend)
	err := sess.MakeDirectory(ctx, dir)
	if err == nil || errors.Is(err, storage.ErrAlreadyExists) {
		return nil
	}
	return err
}

func startLogStore(ctx context.Context, backend storage.Backend, cfg *config.Config) (*logstore.Scheduler, error) {
	writer, err := logstore.NewWriter(ctx, backend, logstore.Config{
		Dir:     cfg.LogStoreDir,
		LogFile: cfg.LogStoreFile,
	})
	if err != nil {
		return nil, err
	}

	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		level = zapcore.InfoLevel
	}
	logging.Tee(writer.Core(level))

	sweeper := logstore.NewSweeper(writer, logstore.Policy{
		Days:     cfg.LogRetentionDays,
		Calendar: cfg.LogRetentionCalendar,
	})
	scheduler, err := logstore.NewScheduler(cfg.LogRetentionSchedule, sweeper)
	if err != nil {
		return nil, err
	}
	scheduler.Start(ctx)

	logging.Info("log store enabled",
		zap.String("dir", cfg.LogStoreDir),
		zap.String("file", cfg.LogStoreFile),
		zap.Int("retention_days", cfg.LogRetentionDays),
		zap.Bool("calendar", cfg.LogRetentionCalendar),
		zap.String("schedule", cfg.LogRetentionSchedule))
	return scheduler, nil
}
