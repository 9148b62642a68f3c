package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"golang.org/x/sync/errgroup"

	"github.com/wfunc/pokerlobby/config"
	"github.com/wfunc/pokerlobby/logger"
	"github.com/wfunc/pokerlobby/monitor"
	"github.com/wfunc/pokerlobby/server"
)

type CLI struct {
	Config   string `short:"c" help:"Directory containing config.yaml" default:"." type:"path"`
	LogLevel string `help:"Override log.level from the config"`
}

func main() {
	var cli CLI
	kong.Parse(&cli, kong.Description("Poker lobby server"))

	// Load configuration
	cfg, err := config.LoadConfig(cli.Config)
	if err != nil {
		logger.Init()
		logger.Log.Fatalf("Failed to load configuration: %v", err)
	}
	if cli.LogLevel != "" {
		cfg.Log.Level = cli.LogLevel
	}

	// Initialize logger
	logger.InitLevel(cfg.Log.Level)
	defer logger.Sync()

	mon := monitor.NewMonitor("pokerlobby")
	gameServer := server.NewGameServer(cfg, mon)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(gameServer.Start)
	g.Go(func() error {
		<-ctx.Done()
		logger.Log.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return gameServer.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Log.Fatalf("Server stopped: %v", err)
	}
}
