package detect

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"

	"doorcam/internal/logger"
)

// Detection is one qualifying bounding box from a single frame.
type Detection struct {
	Class      string
	Confidence float32
	Box        image.Rectangle
}

// Detector runs the SSD person-detection network over frames. Only boxes
// whose class is in the configured allow-list are returned; everything
// else the model reports is discarded before the caller sees it.
type Detector struct {
	net     gocv.Net
	allowed map[string]bool
	log     *logger.Logger
}

// NewDetector loads the detection network. A missing model is fatal for
// the appliance, so any error here must abort startup.
func NewDetector(modelPath, configPath string, classes []string, log *logger.Logger) (*Detector, error) {
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("model file not found: %s", modelPath)
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}

	net := gocv.ReadNet(modelPath, configPath)
	if net.Empty() {
		return nil, fmt.Errorf("failed to load network from %s", modelPath)
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return nil, fmt.Errorf("failed to set preferable backend or target")
	}

	allowed := make(map[string]bool, len(classes))
	for _, c := range classes {
		allowed[c] = true
	}

	log.Info("Detection network initialized: %s", modelPath)
	return &Detector{net: net, allowed: allowed, log: log}, nil
}

// Detect runs inference on a frame and returns detections with confidence
// at or above threshold, clipped to the frame bounds. The order of the
// returned detections is whatever the network yields.
func (d *Detector) Detect(frame gocv.Mat, threshold float32) []Detection {
	if d.net.Empty() || frame.Empty() {
		return nil
	}

	blob := gocv.BlobFromImage(frame, 1.0/127.5, image.Pt(300, 300), gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	d.net.SetInput(blob, "")
	output := d.net.Forward("")
	defer output.Close()

	cols := float32(frame.Cols())
	rows := float32(frame.Rows())

	// SSD output is a flat tensor of 7-value records:
	// [batch, classID, confidence, left, top, right, bottom]
	reshaped := output.Reshape(1, output.Total()/7)
	defer reshaped.Close()

	raw := make([]Detection, 0, reshaped.Rows())
	for i := 0; i < reshaped.Rows(); i++ {
		classID := int(reshaped.GetFloatAt(i, 1))
		raw = append(raw, Detection{
			Class:      cocoLabel(classID),
			Confidence: reshaped.GetFloatAt(i, 2),
			// Built without image.Rect so inverted coordinates are not
			// silently canonicalized; filterCandidates drops them instead.
			Box: image.Rectangle{
				Min: image.Pt(int(reshaped.GetFloatAt(i, 3)*cols), int(reshaped.GetFloatAt(i, 4)*rows)),
				Max: image.Pt(int(reshaped.GetFloatAt(i, 5)*cols), int(reshaped.GetFloatAt(i, 6)*rows)),
			},
		})
	}

	results := filterCandidates(raw, threshold, image.Rect(0, 0, frame.Cols(), frame.Rows()), d.allowed)
	for _, det := range results {
		d.log.Debug("Detected %s (%.2f) at %v", det.Class, det.Confidence, det.Box)
	}
	return results
}

// Close releases the network.
func (d *Detector) Close() {
	d.net.Close()
}

// filterCandidates applies the retention rules to raw network output:
// confidence at or above threshold, class in the allow-list, box clipped
// to the frame bounds, and zero-area boxes dropped.
func filterCandidates(raw []Detection, threshold float32, bounds image.Rectangle, allowed map[string]bool) []Detection {
	var kept []Detection
	for _, det := range raw {
		if det.Confidence < threshold {
			continue
		}
		if !allowed[det.Class] {
			continue
		}
		// Degenerate boxes (x1>=x2 or y1>=y2) are discarded outright.
		if det.Box.Dx() <= 0 || det.Box.Dy() <= 0 {
			continue
		}
		box := det.Box.Intersect(bounds)
		if box.Dx() <= 0 || box.Dy() <= 0 {
			continue
		}
		det.Box = box
		kept = append(kept, det)
	}
	return kept
}

// cocoLabel maps a COCO class ID from the MobileNet-SSD model to a name.
func cocoLabel(classID int) string {
	labels := map[int]string{
		1:  "person",
		2:  "bicycle",
		3:  "car",
		4:  "motorcycle",
		6:  "bus",
		7:  "train",
		8:  "truck",
		16: "bird",
		17: "cat",
		18: "dog",
	}

	if label, exists := labels[classID]; exists {
		return label
	}
	return fmt.Sprintf("class_%d", classID)
}
