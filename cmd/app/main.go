package main

import (
	"flag"
	"log"
	"os"

	"SMCScan/internal/di"
	"SMCScan/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s symbols=%v timeframe=%s bars=%s ingest=%v/%s",
		cfg.Environment, cfg.Scanner.Symbols, cfg.Scanner.Timeframe,
		cfg.Bars.Source, cfg.Ingest.Enabled, cfg.Ingest.Backend)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	// Run application (blocks until signal)
	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
