package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"sync"
	"sync/atomic"
	"time"

	"gocv.io/x/gocv"

	"doorcam/internal/config"
	"doorcam/internal/detect"
	"doorcam/internal/face"
	"doorcam/internal/logger"
)

// Person classifications derived from the identity label.
const (
	ClassificationAllowed  = "ALLOWED"
	ClassificationIntruder = "INTRUDER"
)

const (
	captureRetryDelay = 100 * time.Millisecond
	fpsLogInterval    = 100  // frames between processing-rate debug logs
	purgeInterval     = 1000 // frames between retention sweeps
)

// State is the controller lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateRunning
	StateStopping
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// FrameSource yields frames from the capture device.
type FrameSource interface {
	Read(dst *gocv.Mat) error
	Close() error
}

// Detector finds persons in a frame.
type Detector interface {
	Detect(frame gocv.Mat, threshold float32) []detect.Detection
}

// Classifier resolves a person crop to an identity label.
type Classifier interface {
	Classify(crop gocv.Mat, tolerance float64) string
}

// Notifier pushes alerts and notices; it never blocks on rate limiting.
type Notifier interface {
	Detection(personType string, confidence float64, name, imagePath string)
	Startup()
	Error(msg string)
}

// Recorder persists detection images and the CSV log.
type Recorder interface {
	SaveImage(frame gocv.Mat, confidence float64, name string) string
	AppendLog(timestamp time.Time, personType, personName string, confidence float64, camera string) error
	PurgeOlderThan(days int) (int, error)
}

// Broadcaster publishes annotated frames for live viewers.
type Broadcaster interface {
	Publish(jpeg []byte)
}

// Controller owns the detection loop: it pulls frames from the source,
// runs detection and classification, records every detection, and pushes
// rate-limited alerts. All processing is sequential on one goroutine; the
// device handle belongs exclusively to the controller once Run opens it.
type Controller struct {
	cfg        *config.Config
	log        *logger.Logger
	detector   Detector
	classifier Classifier
	notifier   Notifier
	recorder   Recorder
	live       Broadcaster // nil when live view is disabled
	openSource func() (FrameSource, error)

	mu          sync.Mutex
	state       State
	source      FrameSource
	stopFlag    atomic.Bool
	cleanupOnce sync.Once
	frameCount  int
}

// New wires the pipeline components and validates that the mandatory ones
// are present. A controller that fails construction never leaves the
// uninitialized state; the caller must abort.
func New(cfg *config.Config, log *logger.Logger, detector Detector, classifier Classifier, notifier Notifier, recorder Recorder, live Broadcaster, openSource func() (FrameSource, error)) (*Controller, error) {
	if detector == nil {
		return nil, fmt.Errorf("detector is required")
	}
	if classifier == nil {
		return nil, fmt.Errorf("classifier is required")
	}
	if notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("recorder is required")
	}
	if openSource == nil {
		return nil, fmt.Errorf("frame source opener is required")
	}

	return &Controller{
		cfg:        cfg,
		log:        log,
		detector:   detector,
		classifier: classifier,
		notifier:   notifier,
		recorder:   recorder,
		live:       live,
		openSource: openSource,
		state:      StateReady,
	}, nil
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Stop requests a cooperative stop. The flag is checked once per loop
// iteration; a blocking frame read delays shutdown until it returns.
func (c *Controller) Stop() {
	c.stopFlag.Store(true)
}

// Run executes the detection loop until ctx is cancelled or Stop is
// called. It opens the frame source itself; an open failure is fatal and
// moves the controller to the failed state after a best-effort error
// notice. Cleanup runs exactly once on every exit path.
func (c *Controller) Run(ctx context.Context) error {
	if s := c.State(); s != StateReady {
		return fmt.Errorf("cannot run from state %s", s)
	}

	c.notifier.Startup()

	source, err := c.openSource()
	if err != nil {
		errMsg := fmt.Sprintf("Failed to open camera: %v", err)
		c.log.Error("%s", errMsg)
		c.notifier.Error(errMsg)
		c.setState(StateFailed)
		return fmt.Errorf("failed to open camera: %v", err)
	}

	c.mu.Lock()
	c.source = source
	c.state = StateRunning
	c.mu.Unlock()

	// Deferred so the device is released on every exit path out of
	// Running, including a panic inside frame processing.
	defer func() {
		c.setState(StateStopping)
		c.cleanup()
		c.setState(StateStopped)
	}()

	c.log.Info("🎥 Camera loop started")

	frame := gocv.NewMat()
	defer frame.Close()

	startTime := time.Now()

	for {
		if ctx.Err() != nil || c.stopFlag.Load() {
			break
		}

		if err := source.Read(&frame); err != nil {
			c.log.Error("Failed to grab frame: %v", err)
			time.Sleep(captureRetryDelay)
			continue
		}

		c.frameCount++
		c.processFrame(frame)

		if c.frameCount%fpsLogInterval == 0 {
			elapsed := time.Since(startTime).Seconds()
			if elapsed > 0 {
				c.log.Debug("Processing FPS: %.1f", float64(c.frameCount)/elapsed)
			}
		}
		if c.frameCount%purgeInterval == 0 {
			if _, err := c.recorder.PurgeOlderThan(c.cfg.RetentionDays); err != nil {
				c.log.Error("Error cleaning up images: %v", err)
			}
		}
	}

	return nil
}

// cleanup releases the device. Safe to reach from any exit path; only the
// first invocation does work.
func (c *Controller) cleanup() {
	c.cleanupOnce.Do(func() {
		c.log.Info("🔌 Cleaning up resources...")
		c.mu.Lock()
		source := c.source
		c.mu.Unlock()
		if source != nil {
			if err := source.Close(); err != nil {
				c.log.Error("Error releasing camera: %v", err)
			} else {
				c.log.Info("Camera released")
			}
		}
	})
}

// processFrame runs detection on one frame and handles every qualifying
// detection: classify, record, alert. Per-detection failures never stop
// the loop.
func (c *Controller) processFrame(frame gocv.Mat) {
	detections := c.detector.Detect(frame, float32(c.cfg.ConfidenceThreshold))
	if len(detections) == 0 {
		return
	}

	now := time.Now()
	for _, det := range detections {
		crop := frame.Region(det.Box)
		name := c.classifier.Classify(crop, c.cfg.FaceMatchTolerance)
		crop.Close()

		personType := ClassificationIntruder
		if name != face.Unknown {
			personType = ClassificationAllowed
		}

		imagePath := c.recorder.SaveImage(frame, float64(det.Confidence), name)

		c.notifier.Detection(personType, float64(det.Confidence), name, imagePath)

		if err := c.recorder.AppendLog(now, personType, name, float64(det.Confidence), c.cfg.CameraName); err != nil {
			c.log.Error("Error logging detection: %v", err)
		}

		emoji := "🚨"
		if personType == ClassificationAllowed {
			emoji = "👤"
		}
		c.log.Info("%s Detection: %s - %s (confidence: %.1f%%)", emoji, personType, name, det.Confidence*100)
	}

	if c.live != nil {
		if jpeg := annotateFrame(frame, detections); jpeg != nil {
			c.live.Publish(jpeg)
		}
	}
}

// annotateFrame draws detection boxes and labels on a copy of the frame
// and encodes it as JPEG for the live view. Returns nil on any failure.
func annotateFrame(frame gocv.Mat, detections []detect.Detection) []byte {
	annotated := frame.Clone()
	defer annotated.Close()

	red := color.RGBA{R: 255, G: 0, B: 0, A: 0}
	for _, det := range detections {
		if err := gocv.Rectangle(&annotated, det.Box, red, 2); err != nil {
			return nil
		}
		label := fmt.Sprintf("%s (%.2f)", det.Class, det.Confidence)
		pt := image.Pt(det.Box.Min.X, det.Box.Min.Y-5)
		if err := gocv.PutText(&annotated, label, pt, gocv.FontHersheySimplex, 0.5, red, 1); err != nil {
			return nil
		}
	}

	buf, err := gocv.IMEncode(".jpg", annotated)
	if err != nil {
		return nil
	}
	defer buf.Close()

	jpeg := make([]byte, len(buf.GetBytes()))
	copy(jpeg, buf.GetBytes())
	return jpeg
}
