package face

import (
	"fmt"
	"image"
	"os"

	"gocv.io/x/gocv"
)

// Embedder extracts a face embedding from an image. It returns the vector
// for the first face found along with the total number of faces located;
// a nil vector means no usable face.
type Embedder interface {
	Embed(img gocv.Mat) (vec []float64, faces int)
}

// OpenFaceEmbedder locates faces with a Haar cascade and embeds the first
// one with an OpenFace-style 128-d embedding network.
type OpenFaceEmbedder struct {
	cascade gocv.CascadeClassifier
	net     gocv.Net
}

// NewOpenFaceEmbedder loads the cascade and the embedding network. Errors
// here should degrade recognition, never abort the pipeline.
func NewOpenFaceEmbedder(cascadePath, modelPath string) (*OpenFaceEmbedder, error) {
	if _, err := os.Stat(cascadePath); os.IsNotExist(err) {
		return nil, fmt.Errorf("cascade file not found: %s", cascadePath)
	}
	if _, err := os.Stat(modelPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("embedding model not found: %s", modelPath)
	}

	cascade := gocv.NewCascadeClassifier()
	if !cascade.Load(cascadePath) {
		cascade.Close()
		return nil, fmt.Errorf("failed to load cascade from %s", cascadePath)
	}

	net := gocv.ReadNetFromTorch(modelPath)
	if net.Empty() {
		cascade.Close()
		return nil, fmt.Errorf("failed to load embedding network from %s", modelPath)
	}

	return &OpenFaceEmbedder{cascade: cascade, net: net}, nil
}

// Embed locates faces in img and embeds the first one.
func (e *OpenFaceEmbedder) Embed(img gocv.Mat) ([]float64, int) {
	if img.Empty() {
		return nil, 0
	}

	rects := e.cascade.DetectMultiScale(img)
	if len(rects) == 0 {
		return nil, 0
	}

	region := rects[0].Intersect(image.Rect(0, 0, img.Cols(), img.Rows()))
	if region.Dx() <= 0 || region.Dy() <= 0 {
		return nil, len(rects)
	}

	crop := img.Region(region)
	defer crop.Close()

	blob := gocv.BlobFromImage(crop, 1.0/255.0, image.Pt(96, 96), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	e.net.SetInput(blob, "")
	out := e.net.Forward("")
	defer out.Close()

	if out.Empty() || out.Total() == 0 {
		return nil, len(rects)
	}

	vec := make([]float64, out.Total())
	for i := range vec {
		vec[i] = float64(out.GetFloatAt(0, i))
	}
	return vec, len(rects)
}

// Close releases the cascade and the network.
func (e *OpenFaceEmbedder) Close() {
	e.cascade.Close()
	e.net.Close()
}
