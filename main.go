package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"doorcam/internal/camera"
	"doorcam/internal/config"
	"doorcam/internal/detect"
	"doorcam/internal/face"
	"doorcam/internal/liveview"
	"doorcam/internal/logger"
	"doorcam/internal/notify"
	"doorcam/internal/pipeline"
	"doorcam/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "doorcam: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %v", err)
	}

	log := logger.NewLogger(cfg)
	log.Info("🚀 Smart Door Camera starting")
	log.Info("📷 Camera: %s (index %d, %dx%d @ %dfps)", cfg.CameraName, cfg.CameraIndex, cfg.CameraWidth, cfg.CameraHeight, cfg.CameraFPS)
	log.Info("📁 Detections: %s", cfg.DetectionsDir)

	transport, err := notify.NewTelegramTransport(cfg.BotToken)
	if err != nil {
		return err
	}
	log.Info("🤖 Telegram bot authorized: @%s", transport.BotUsername())
	notifier := notify.NewNotifier(transport, cfg, log)

	detector, err := detect.NewDetector(cfg.ModelPath, cfg.ModelConfigPath, cfg.DetectionClasses, log)
	if err != nil {
		log.Error("Failed to load detection model: %v", err)
		notifier.Error(fmt.Sprintf("Failed to load detection model: %v", err))
		return err
	}
	defer detector.Close()

	recognizer, closeEmbedder := buildRecognizer(cfg, log)
	defer closeEmbedder()

	recorder := store.NewRecorder(cfg.DetectionsDir, cfg.LogFile, log)

	var live pipeline.Broadcaster
	var liveServer *liveview.Server
	if cfg.EnableLiveView {
		liveServer = liveview.NewServer(cfg, log)
		liveServer.Start()
		live = liveServer
	}

	ctrl, err := pipeline.New(cfg, log, detector, recognizer, notifier, recorder, live,
		func() (pipeline.FrameSource, error) {
			return camera.Open(cfg.CameraIndex, cfg.CameraWidth, cfg.CameraHeight, cfg.CameraFPS, log)
		})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := ctrl.Run(ctx)

	if liveServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := liveServer.Shutdown(shutdownCtx); err != nil {
			log.Error("Live view shutdown error: %v", err)
		}
		cancel()
	}

	if runErr != nil {
		return runErr
	}
	log.Info("👋 Smart Door Camera stopped")
	return nil
}

// buildRecognizer assembles the face classifier. Any failure here only
// degrades recognition: the pipeline still runs and every person
// classifies as unknown.
func buildRecognizer(cfg *config.Config, log *logger.Logger) (*face.Recognizer, func()) {
	noop := func() {}

	if !cfg.EnableFaceRecognition {
		log.Info("Face recognition disabled by configuration")
		return face.NewRecognizer(nil, nil, log), noop
	}

	embedder, err := face.NewOpenFaceEmbedder(cfg.FaceCascadePath, cfg.FaceModelPath)
	if err != nil {
		log.Warning("Face recognition unavailable: %v", err)
		return face.NewRecognizer(nil, nil, log), noop
	}

	faces := face.LoadStore(cfg.KnownFacesDir, log)
	return face.NewRecognizer(embedder, faces, log), embedder.Close
}
