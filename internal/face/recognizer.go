package face

import (
	"fmt"

	"gocv.io/x/gocv"

	"doorcam/internal/logger"
)

// Unknown is the sentinel identity for anyone who could not be matched.
const Unknown = "unknown"

// Recognizer classifies person crops against the enrolled identities.
// Whether recognition is possible at all is decided once at construction:
// without an embedder or with an empty store, Classify always answers
// Unknown and the pipeline proceeds normally.
type Recognizer struct {
	embedder Embedder
	store    *Store
	log      *logger.Logger
	enabled  bool
}

// NewRecognizer builds a Recognizer. embedder may be nil.
func NewRecognizer(embedder Embedder, store *Store, log *logger.Logger) *Recognizer {
	enabled := embedder != nil && store != nil && store.Len() > 0
	if !enabled {
		log.Warning("Face recognition degraded: all persons will classify as %q", Unknown)
	} else {
		log.Info("Face recognizer ready with %d known identities", store.Len())
	}
	return &Recognizer{embedder: embedder, store: store, log: log, enabled: enabled}
}

// Classify returns the enrolled label whose embedding is nearest to the
// face in crop, provided the distance is strictly below tolerance. Every
// failure path (no face, extraction failure, no match) returns Unknown.
func (r *Recognizer) Classify(crop gocv.Mat, tolerance float64) string {
	if !r.enabled {
		return Unknown
	}

	vec, faces := r.embedder.Embed(crop)
	if vec == nil {
		if faces == 0 {
			r.log.Debug("No face found in crop")
		}
		return Unknown
	}

	label, distance, ok := r.store.Nearest(vec)
	if !ok {
		return Unknown
	}

	if distance < tolerance {
		r.log.Debug("Face recognized: %s (distance %.3f)", label, distance)
		return label
	}
	r.log.Debug("Face not recognized (distance %.3f >= %g)", distance, tolerance)
	return Unknown
}

// Enroll extracts the first face embedding from the photo at imagePath and
// persists it under dir keyed by label. No face is an error; several faces
// only warn and the first is used.
func Enroll(embedder Embedder, imagePath, label, dir string, log *logger.Logger) error {
	if embedder == nil {
		return fmt.Errorf("no embedder available")
	}

	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return fmt.Errorf("failed to read image %s", imagePath)
	}
	defer img.Close()

	vec, faces := embedder.Embed(img)
	if faces == 0 {
		return fmt.Errorf("no face found in %s", imagePath)
	}
	if vec == nil {
		return fmt.Errorf("could not extract embedding from %s", imagePath)
	}
	if faces > 1 {
		log.Warning("Multiple faces found in %s, using the first", imagePath)
	}

	path, err := Save(dir, label, vec)
	if err != nil {
		return err
	}
	log.Info("Face embedding saved: %s", path)
	return nil
}
