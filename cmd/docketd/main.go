package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"docket/internal/config"
	"docket/internal/daemon"
	"docket/internal/logging"
	"docket/internal/registry"
	"docket/internal/workflow"
)

func main() {
	configPath := flag.String("config", "", "configuration file path")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		log.Fatalf("prepare directories: %v", err)
	}

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	store, err := registry.Open(cfg)
	if err != nil {
		logger.Error("open document registry", logging.Error(err))
		return
	}

	manager := workflow.NewManager(cfg, store, logger)
	stages, err := buildStageSet(cfg, store, logger)
	if err != nil {
		logger.Error("build pipeline stages", logging.Error(err))
		return
	}
	manager.ConfigureStages(stages)

	d, err := daemon.New(cfg, store, logger, manager)
	if err != nil {
		logger.Error("create daemon", logging.Error(err))
		return
	}
	defer d.Close()

	if err := d.Start(ctx); err != nil {
		logger.Error("daemon start", logging.Error(err))
		return
	}

	<-ctx.Done()
	logger.Info("docketd shutting down")
}
