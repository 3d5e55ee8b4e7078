// Command sendspin-player is the CLI entry point: it loads
// configuration, assembles a client.Player, and runs until an
// interrupt. Grounded on the teacher repository's root main.go
// (flag parsing, signal-driven shutdown), generalized from stdlib
// flag/log to pflag/zap per the ambient stack, and from a single
// --server flag to Sendspin's discovery-or-manual connect model.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sendspin-protocol/sendspin-go/internal/config"
	"github.com/sendspin-protocol/sendspin-go/internal/version"
	"github.com/sendspin-protocol/sendspin-go/pkg/client"
	"github.com/sendspin-protocol/sendspin-go/pkg/discovery"
	"github.com/sendspin-protocol/sendspin-go/pkg/session"
)

func main() {
	var (
		configFile = pflag.StringP("config", "c", "", "Path to a YAML config file.")
		serverAddr = pflag.StringP("server", "s", "", "Manual server host:port (discovered servers are not auto-connected).")
		name       = pflag.StringP("name", "n", "", "Client name shown to the server's controller.")
		bufferMS   = pflag.Int64P("buffer-ms", "b", 0, "Playout offset in milliseconds (0 uses the config/default value).")
		logFile    = pflag.StringP("log-file", "L", "", "Additionally write logs to this file.")
		debug      = pflag.BoolP("debug", "d", false, "Enable debug logging.")
		showVer    = pflag.BoolP("version", "V", false, "Print the version and exit.")
	)
	pflag.Parse()

	if *showVer {
		fmt.Printf("%s %s\n", version.Product, version.Version)
		return
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sendspin-player: %v\n", err)
		os.Exit(1)
	}
	if *serverAddr != "" {
		cfg.ServerAddr = *serverAddr
	}
	if *name != "" {
		cfg.ClientName = *name
	}
	if *bufferMS != 0 {
		cfg.PlayoutOffsetMS = *bufferMS
	}
	if *logFile != "" {
		cfg.LogFile = *logFile
	}
	if *debug {
		cfg.Debug = true
	}

	logger, err := buildLogger(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "sendspin-player: build logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync() //nolint:errcheck

	logger.Info("starting sendspin player",
		zap.String("version", version.Version),
		zap.String("client_name", cfg.ClientName),
	)

	player, err := client.New(client.Config{
		Session: session.Config{
			ClientID:   cfg.ClientID,
			ClientName: cfg.ClientName,
		},
		PlayoutOffsetMS: cfg.PlayoutOffsetMS,
		RecentsSize:     cfg.RecentsSize,
	}, client.WithLogger(logger))
	if err != nil {
		logger.Fatal("failed to assemble player", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("shutdown signal received")
		cancel()
	}()

	player.Start(ctx)

	if cfg.ServerAddr != "" {
		server := discovery.ServerInfo{Name: cfg.ClientName, Address: cfg.ServerAddr, Path: discovery.DefaultPath}
		if err := player.ConnectManually(ctx, server); err != nil {
			logger.Error("manual connect failed", zap.Error(err))
		}
	}

	<-ctx.Done()
	player.Stop()
	logger.Info("sendspin player stopped")
}

func buildLogger(cfg config.Config) (*zap.Logger, error) {
	level := zapcore.InfoLevel
	if cfg.Debug {
		level = zapcore.DebugLevel
	}

	zapCfg := zap.NewProductionConfig()
	zapCfg.Level = zap.NewAtomicLevelAt(level)
	zapCfg.Encoding = "console"
	zapCfg.EncoderConfig.TimeKey = "ts"
	zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	outputs := []string{"stdout"}
	if cfg.LogFile != "" {
		outputs = append(outputs, cfg.LogFile)
	}
	zapCfg.OutputPaths = outputs

	return zapCfg.Build()
}
