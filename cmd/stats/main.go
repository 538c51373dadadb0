package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"

	"doorcam/internal/config"
	"doorcam/internal/logger"
	"doorcam/internal/store"
)

func main() {
	hours := flag.Int("hours", 24, "Trailing window in hours")
	flag.Parse()

	godotenv.Load()
	cfg := config.Load()
	logg := logger.NewLogger(cfg)

	recorder := store.NewRecorder(cfg.DetectionsDir, cfg.LogFile, logg)
	stats, err := recorder.Stats(*hours)
	if err != nil {
		log.Fatalf("Failed to read detection log: %v", err)
	}

	fmt.Printf("📊 Detection statistics (last %dh)\n", *hours)
	fmt.Printf("   Total detections: %d\n", stats.Total)
	fmt.Printf("   Allowed:          %d\n", stats.Allowed)
	fmt.Printf("   Intruders:        %d\n", stats.Intruders)
	fmt.Printf("   Unique persons:   %d\n", stats.UniquePersons)
	if stats.Total > 0 {
		fmt.Printf("   Mean confidence:  %.1f%%\n", stats.MeanConfidence*100)
	}
	if stats.ParseErrors > 0 {
		fmt.Printf("⚠️  Skipped %d malformed log rows\n", stats.ParseErrors)
	}
}
