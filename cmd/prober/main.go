package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"liuproxy_prober/internal/app"
	"liuproxy_prober/internal/core/engine"
	"liuproxy_prober/internal/service/web"
	"liuproxy_prober/internal/shared/config"
	"liuproxy_prober/internal/shared/logger"
	"liuproxy_prober/internal/shared/types"
)

func main() {
	configDir := flag.String("configdir", "configs", "Path to config directory")
	inPath := flag.String("in", "", "Node list (JSON array) to check")
	outPath := flag.String("out", "", "Where to write the annotated node list (default: stdout)")
	serve := flag.Bool("serve", false, "Run the HTTP service instead of a single batch")
	flag.Parse()

	iniPath := filepath.Join(*configDir, "prober.ini")

	// 1. 加载 .ini 配置
	cfg := types.DefaultConfig()
	if err := config.LoadIni(cfg, iniPath); err != nil {
		// Use standard fmt before logger is initialized.
		fmt.Fprintf(os.Stderr, "Fatal: Failed to load config file '%s': %v\n", iniPath, err)
		os.Exit(1)
	}

	// 1.1 初始化日志系统
	if err := logger.Init(cfg.LogConf); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal: Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to build prober")
	}

	if *serve {
		runService(ctx, cfg, a)
		return
	}

	if *inPath == "" {
		logger.Fatal().Msg("Either -in or -serve is required")
	}
	if err := runOnce(ctx, a, *inPath, *outPath); err != nil {
		logger.Fatal().Err(err).Msg("Batch failed")
	}
}

func runOnce(ctx context.Context, a *app.App, inPath, outPath string) error {
	nodes, err := config.LoadNodes(inPath)
	if err != nil {
		return err
	}

	out, err := a.RunBatch(ctx, nodes)
	if err != nil {
		if !errors.Is(err, engine.ErrNoTargets) {
			return err
		}
		// Configuration problems leave the list untouched; still write it out.
		logger.Warn().Err(err).Msg("Nodes returned unchanged.")
	}

	if outPath == "" {
		return config.WriteNodes(os.Stdout, out)
	}
	return config.SaveNodes(outPath, out)
}

func runService(ctx context.Context, cfg *types.Config, a *app.App) {
	var wg sync.WaitGroup

	hub := web.NewHub()
	go hub.Run()
	a.SetObserver(hub)

	srv, err := web.StartServer(&wg, cfg.WebConf, a, hub)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to start web service")
	}
	if srv == nil {
		return
	}

	<-ctx.Done()
	logger.Info().Msg("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("Web server shutdown error")
	}
	hub.Stop()
	wg.Wait()
}
