package main

import (
	"flag"
	"log"
	"os"

	"loadcast/pkg/config"
	"loadcast/pkg/logger"
	"loadcast/pkg/server"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	lgr, err := logger.New(&logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	})
	if err != nil {
		log.Fatalf("logger setup failed: %v", err)
	}

	lgr.Info("starting loadcast",
		logger.String("environment", cfg.Environment),
		logger.String("queue_backend", cfg.Queue.Backend))

	app, err := server.New(cfg, lgr)
	if err != nil {
		lgr.Error("app initialization failed", logger.Error(err))
		os.Exit(1)
	}

	if err := app.Run(); err != nil {
		lgr.Error("app error", logger.Error(err))
		os.Exit(1)
	}
}
