package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/joho/godotenv"

	"doorcam/internal/config"
	"doorcam/internal/face"
	"doorcam/internal/logger"
)

func main() {
	imagePath := flag.String("image", "", "Photo of the person to enroll")
	name := flag.String("name", "", "Identity label for the person")
	dir := flag.String("dir", "", "Known faces directory (default from config)")
	flag.Parse()

	if *imagePath == "" || *name == "" {
		fmt.Fprintln(os.Stderr, "Usage: enrollface -image photo.jpg -name alice [-dir known_faces]")
		os.Exit(1)
	}

	godotenv.Load()
	cfg := config.Load()
	if *dir == "" {
		*dir = cfg.KnownFacesDir
	}
	if err := os.MkdirAll(*dir, 0755); err != nil {
		log.Fatalf("Failed to create faces directory: %v", err)
	}

	logg := logger.NewLogger(cfg)

	embedder, err := face.NewOpenFaceEmbedder(cfg.FaceCascadePath, cfg.FaceModelPath)
	if err != nil {
		log.Fatalf("Failed to load face models: %v", err)
	}
	defer embedder.Close()

	if err := face.Enroll(embedder, *imagePath, *name, *dir, logg); err != nil {
		log.Fatalf("Enrollment failed: %v", err)
	}

	fmt.Printf("✅ Enrolled %s from %s\n", *name, *imagePath)
}
