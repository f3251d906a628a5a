// Command mapsync-client is a terminal client for a mapsync server. It polls
// the shared markers and lets the user add, move, rename and delete them.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/viper"

	"github.com/OCAP2/mapsync/internal/api"
	"github.com/OCAP2/mapsync/internal/config"
	"github.com/OCAP2/mapsync/internal/logging"
	"github.com/OCAP2/mapsync/internal/syncengine"
	"github.com/OCAP2/mapsync/internal/tui"
)

const appName = "mapsync-client"

func main() {
	configDir := flag.String("config", ".", "directory containing "+config.FileName)
	server := flag.String("server", "", "server URL, overrides client.serverUrl")
	actor := flag.String("actor", "", "name recorded as the author of your changes")
	flag.Parse()

	if err := run(*configDir, *server, *actor); err != nil {
		fmt.Fprintln(os.Stderr, "mapsync-client:", err)
		os.Exit(1)
	}
}

func run(configDir, server, actor string) error {
	configErr := config.Load(configDir)

	cfg := config.GetClientConfig()
	if server != "" {
		cfg.ServerURL = server
	}
	if actor != "" {
		cfg.Actor = actor
	}

	// the terminal belongs to the UI, so logs only go to the file
	logsDir := viper.GetString("logsDir")
	if err := os.MkdirAll(logsDir, 0o755); err != nil {
		return fmt.Errorf("create logs dir: %w", err)
	}
	logPath := logging.LogFilePath(logsDir, appName, time.Now())
	logFile, err := os.OpenFile(filepath.Clean(logPath), os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o666)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	zlog := logging.NewZerolog(logFile, viper.GetString("logLevel"))
	if configErr != nil {
		zlog.Warn().Err(configErr).Msg("Using default configuration")
	}
	zlog.Info().Str("server", cfg.ServerURL).Str("actor", cfg.Actor).Msg("Starting mapsync client")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := api.New(cfg.ServerURL, cfg.Actor, cfg.RequestTimeout).WithActorHeader(cfg.ActorHeader)
	if err := client.Healthcheck(ctx); err != nil {
		return fmt.Errorf("server %s unreachable: %w", cfg.ServerURL, err)
	}

	bridge := tui.NewBridge()
	engine := syncengine.New(client, bridge, syncengine.Options{
		PollInterval:      cfg.PollInterval,
		RollbackOnFailure: cfg.RollbackOnFailure,
		Logger:            logging.NewEngineLogger(zlog),
	})

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go engine.Run(ctx)

	err = tui.Run(ctx, engine, bridge)
	zlog.Info().Msg("Client stopped")
	return err
}
