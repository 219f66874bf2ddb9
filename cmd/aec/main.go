package main

import (
	"log"
	"os"

	"fdafaec/internal/config"
	"fdafaec/internal/processor"
)

func main() {
	cfg, err := config.ParseFlags(os.Args[1:], "aec", "Frequency-domain adaptive filter acoustic echo canceller")
	if err != nil {
		log.Fatalf("Configuration error: %v", err)
	}

	proc := processor.New(cfg)
	if err := proc.Run(); err != nil {
		log.Fatalf("Processing error: %v", err)
	}

	log.Printf("AEC processing completed (mode: %s)", cfg.Mode)
}
