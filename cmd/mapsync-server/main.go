// Command mapsync-server serves the shared marker collection over HTTP and
// records every mutation to the configured audit sinks.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/OCAP2/mapsync/internal/audit"
	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/logging"
	intOtel "github.com/OCAP2/mapsync/internal/otel"
	"github.com/OCAP2/mapsync/internal/pipeline"
	"github.com/OCAP2/mapsync/internal/server"
)

// Version and BuildDate can be set at build time via ldflags
var (
	Version   = "0.0.1"
	BuildDate = "unknown"
)

const appName = "mapsync-server"

var (
	// SlogManager handles all slog-based logging
	SlogManager *logging.SlogManager

	// Logger is the slog logger (convenience reference)
	Logger = slog.Default()

	// OTelProvider handles OpenTelemetry
	OTelProvider *intOtel.Provider

	SessionStartTime = time.Now()
)

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	flag.Parse()

	if err := run(*configDir); err != nil {
		fmt.Fprintln(os.Stderr, "mapsync-server:", err)
		os.Exit(1)
	}
}

func run(configDir string) error {
	SlogManager = logging.NewSlogManager()
	SlogManager.Setup(nil, "info", nil)
	Logger = SlogManager.Logger()

	if err := config.Load(configDir); err != nil {
		Logger.Warn("Using default configuration", "error", err)
	}

	logFile, err := openLogFile(viper.GetString("logsDir"))
	if err != nil {
		return err
	}
	defer logFile.Close()
	logOut := io.MultiWriter(os.Stdout, logFile)

	OTelProvider, err = intOtel.New(intOtel.ConfigFrom(config.GetOTelConfig(), logFile))
	if err != nil {
		Logger.Warn("Failed to initialize OTel provider", "error", err)
		OTelProvider = nil
	}
	var otelLogProvider *sdklog.LoggerProvider
	if OTelProvider != nil {
		otelLogProvider = OTelProvider.LoggerProvider()
	}
	SlogManager.Setup(logOut, viper.GetString("logLevel"), otelLogProvider)
	Logger = SlogManager.Logger()
	Logger.Info("Starting mapsync server", "version", Version, "buildDate", BuildDate, "log", logFile.Name())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := createStore(config.GetStorageConfig(), logging.NewZerolog(logFile, viper.GetString("logLevel")))
	if err != nil {
		return err
	}
	if err := store.Init(); err != nil {
		return fmt.Errorf("init storage: %w", err)
	}

	auditCfg := config.GetAuditConfig()
	sinks, err := createAuditSinks(auditCfg, store)
	if err != nil {
		_ = store.Close()
		return err
	}
	auditQueue, err := audit.NewQueue(audit.Options{
		Size:       auditCfg.QueueSize,
		Workers:    auditCfg.Workers,
		MaxElapsed: auditCfg.MaxElapsed,
		Logger:     Logger.With("component", "audit"),
	}, sinks...)
	if err != nil {
		_ = store.Close()
		return err
	}

	pipe, err := pipeline.New(store, pipeline.Options{
		Logger: Logger.With("component", "pipeline"),
		Audit:  auditQueue,
	})
	if err != nil {
		_ = store.Close()
		return err
	}

	srv := server.New(config.GetServerConfig(), pipe, Logger, Version)
	runErr := srv.Run(ctx)

	shutdown(pipe, auditQueue, store.Close)
	return runErr
}

// shutdown stops accepting mutations, then drains the audit queue before the
// store and telemetry go away.
func shutdown(pipe *pipeline.Pipeline, auditQueue *audit.Queue, closeStore func() error) {
	Logger.Info("Shutting down")
	pipe.Close()

	ctx, cancel := context.WithTimeout(context.Background(), config.GetAuditConfig().MaxElapsed+5*time.Second)
	defer cancel()

	if err := auditQueue.Close(ctx); err != nil {
		Logger.Error("Audit queue did not drain", "error", err, "pending", auditQueue.Len())
	}
	if err := closeStore(); err != nil {
		Logger.Error("Failed to close storage", "error", err)
	}
	if err := SlogManager.Flush(ctx); err != nil {
		Logger.Warn("Failed to flush logs", "error", err)
	}
	if OTelProvider != nil {
		if err := OTelProvider.Shutdown(ctx); err != nil {
			Logger.Warn("Failed to shut down OTel provider", "error", err)
		}
	}
}

// openLogFile creates the session log, moving an existing file of the same
// name aside.
func openLogFile(logsDir string) (*os.File, error) {
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return nil, fmt.Errorf("create logs dir: %w", err)
	}
	path := logging.LogFilePath(logsDir, appName, SessionStartTime)
	if _, err := os.Stat(path); err == nil {
		_ = os.Rename(path, path+".old")
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Clean(path), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return f, nil
}
