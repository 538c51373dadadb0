package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/joho/godotenv"
	"gocv.io/x/gocv"

	"doorcam/internal/camera"
	"doorcam/internal/config"
	"doorcam/internal/logger"
)

func main() {
	frames := flag.Int("frames", 30, "Number of frames to grab")
	output := flag.String("output", "", "Save the last frame to this path")
	flag.Parse()

	godotenv.Load()
	cfg := config.Load()
	logg := logger.NewLogger(cfg)

	cam, err := camera.Open(cfg.CameraIndex, cfg.CameraWidth, cfg.CameraHeight, cfg.CameraFPS, logg)
	if err != nil {
		log.Fatalf("Failed to open camera: %v", err)
	}
	defer cam.Close()

	fmt.Printf("📷 Camera %d opened: %dx%d @ %.0ffps\n", cfg.CameraIndex, cam.Width(), cam.Height(), cam.FPS())

	frame := gocv.NewMat()
	defer frame.Close()

	grabbed := 0
	failed := 0
	for i := 0; i < *frames; i++ {
		if err := cam.Read(&frame); err != nil {
			failed++
			continue
		}
		grabbed++
	}

	fmt.Printf("✅ Grabbed %d/%d frames (%d failed)\n", grabbed, *frames, failed)

	if *output != "" && !frame.Empty() {
		if ok := gocv.IMWrite(*output, frame); !ok {
			log.Fatalf("Failed to write %s", *output)
		}
		fmt.Printf("💾 Last frame saved to %s\n", *output)
	}
}
