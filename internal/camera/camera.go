package camera

import (
	"fmt"
	"sync"

	"gocv.io/x/gocv"

	"doorcam/internal/logger"
)

// Camera wraps a V4L/USB capture device and yields frames sequentially.
// Requested resolution and FPS are hints only: the driver may clamp them,
// so the negotiated values are read back after opening and exposed via
// Width/Height/FPS. Callers must never assume the requested values took.
type Camera struct {
	cap    *gocv.VideoCapture
	width  int
	height int
	fps    float64
	log    *logger.Logger
	mu     sync.Mutex
	closed bool
}

// Open opens the capture device at the given index. A failure here is not
// recoverable; the caller is expected to abort startup.
func Open(index, width, height, fps int, log *logger.Logger) (*Camera, error) {
	cap, err := gocv.OpenVideoCapture(index)
	if err != nil {
		return nil, fmt.Errorf("failed to open camera at index %d: %v", index, err)
	}
	if !cap.IsOpened() {
		cap.Close()
		return nil, fmt.Errorf("camera at index %d is not available", index)
	}

	cap.Set(gocv.VideoCaptureFrameWidth, float64(width))
	cap.Set(gocv.VideoCaptureFrameHeight, float64(height))
	cap.Set(gocv.VideoCaptureFPS, float64(fps))
	// Keep at most one buffered frame so detections run on fresh input.
	cap.Set(gocv.VideoCaptureBufferSize, 1)

	c := &Camera{
		cap:    cap,
		width:  int(cap.Get(gocv.VideoCaptureFrameWidth)),
		height: int(cap.Get(gocv.VideoCaptureFrameHeight)),
		fps:    cap.Get(gocv.VideoCaptureFPS),
		log:    log,
	}

	c.log.Info("Camera opened: %dx%d @ %.0ffps", c.width, c.height, c.fps)
	return c, nil
}

// Read fills dst with the next frame. Errors are transient: the caller
// should log, back off briefly and retry rather than abort.
func (c *Camera) Read(dst *gocv.Mat) error {
	if ok := c.cap.Read(dst); !ok {
		return fmt.Errorf("failed to grab frame")
	}
	if dst.Empty() {
		return fmt.Errorf("grabbed empty frame")
	}
	return nil
}

// Width returns the negotiated frame width.
func (c *Camera) Width() int { return c.width }

// Height returns the negotiated frame height.
func (c *Camera) Height() int { return c.height }

// FPS returns the negotiated capture rate.
func (c *Camera) FPS() float64 { return c.fps }

// Close releases the device. Safe to call more than once.
func (c *Camera) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.cap.Close()
}
