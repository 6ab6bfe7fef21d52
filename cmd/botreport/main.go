// botreport - OneBot event reporter: posts bot events, lifecycle and
// heartbeat reports to an HTTP endpoint and relays quick operations.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sureshkrishnan-v/botreport/internal/agent"
	"github.com/sureshkrishnan-v/botreport/internal/config"
	"github.com/sureshkrishnan-v/botreport/internal/constants"
)

func main() {
	configPath := flag.String("config", constants.DefaultConfigPath, "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := newLogger(cfg.Agent.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("botreport starting",
		zap.String("version", constants.Version),
		zap.String("config", *configPath),
		zap.Int64("bot_id", cfg.Bot.ID))

	// Context with signal-based cancellation for graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rt := agent.NewRuntime(cfg, logger)
	if err := rt.Run(ctx); err != nil {
		logger.Error("botreport exited with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

// newLogger builds the production JSON logger at the configured level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, err
	}
	logConfig := zap.NewProductionConfig()
	logConfig.Level = zap.NewAtomicLevelAt(lvl)
	logConfig.EncoderConfig.TimeKey = "ts"
	logConfig.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	return logConfig.Build()
}
