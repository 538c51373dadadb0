package store

import (
	"encoding/csv"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"gocv.io/x/gocv"

	"doorcam/internal/logger"
)

var csvHeader = []string{"timestamp", "person_type", "person_name", "confidence", "camera"}

// Recorder owns the detection image directory and the CSV log. Images and
// log rows are best-effort: a write failure is logged and the pipeline
// carries on without them.
type Recorder struct {
	imagesDir string
	logFile   string
	log       *logger.Logger

	mu  sync.Mutex // guards CSV appends
	now func() time.Time
}

func NewRecorder(imagesDir, logFile string, log *logger.Logger) *Recorder {
	return &Recorder{
		imagesDir: imagesDir,
		logFile:   logFile,
		log:       log,
		now:       time.Now,
	}
}

// SaveImage writes an annotated copy of the frame to the image directory
// and returns its path. On any failure it returns "" and the caller
// proceeds without an image.
func (r *Recorder) SaveImage(frame gocv.Mat, confidence float64, name string) string {
	if frame.Empty() {
		return ""
	}

	annotated := frame.Clone()
	defer annotated.Close()

	green := color.RGBA{R: 0, G: 255, B: 0, A: 0}
	now := r.now()

	label := fmt.Sprintf("%s (%.0f%%)", name, confidence*100)
	if err := gocv.PutText(&annotated, label, image.Pt(10, 30), gocv.FontHersheySimplex, 1, green, 2); err != nil {
		r.log.Error("Error drawing label: %v", err)
		return ""
	}
	if err := gocv.PutText(&annotated, now.Format("2006-01-02 15:04:05"), image.Pt(10, 70), gocv.FontHersheySimplex, 0.7, green, 2); err != nil {
		r.log.Error("Error drawing timestamp: %v", err)
		return ""
	}

	if err := os.MkdirAll(r.imagesDir, 0755); err != nil {
		r.log.Error("Error creating image directory: %v", err)
		return ""
	}

	filename := fmt.Sprintf("detection_%s_%s.jpg", name, imageTimestamp(now))
	fullpath := filepath.Join(r.imagesDir, filename)

	buf, err := gocv.IMEncode(".jpg", annotated)
	if err != nil {
		r.log.Error("Error encoding image: %v", err)
		return ""
	}
	defer buf.Close()

	if err := os.WriteFile(fullpath, buf.GetBytes(), 0644); err != nil {
		r.log.Error("Error saving image %s: %v", filename, err)
		return ""
	}

	r.log.Debug("Image saved: %s", fullpath)
	return fullpath
}

// imageTimestamp formats the filename timestamp with millisecond
// precision so rapid detections for the same identity do not collide.
func imageTimestamp(t time.Time) string {
	return t.Format("20060102_150405") + fmt.Sprintf("_%03d", t.Nanosecond()/int(time.Millisecond))
}

// AppendLog appends one detection row to the CSV log, writing the header
// first iff the file did not previously exist. Rows record every
// detection regardless of alert rate limiting.
func (r *Recorder) AppendLog(timestamp time.Time, personType, personName string, confidence float64, camera string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, statErr := os.Stat(r.logFile)
	existed := statErr == nil

	file, err := os.OpenFile(r.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file: %v", err)
	}
	defer file.Close()

	w := csv.NewWriter(file)
	if !existed {
		if err := w.Write(csvHeader); err != nil {
			return fmt.Errorf("failed to write header: %v", err)
		}
	}

	row := []string{
		timestamp.Format(time.RFC3339),
		personType,
		personName,
		fmt.Sprintf("%.3f", confidence),
		camera,
	}
	if err := w.Write(row); err != nil {
		return fmt.Errorf("failed to write row: %v", err)
	}

	w.Flush()
	return w.Error()
}

// PurgeOlderThan deletes stored detection images whose modification time
// is strictly older than now minus the retention window. Returns the
// number of files removed.
func (r *Recorder) PurgeOlderThan(days int) (int, error) {
	cutoff := r.now().AddDate(0, 0, -days)

	matches, err := filepath.Glob(filepath.Join(r.imagesDir, "detection_*.jpg"))
	if err != nil {
		return 0, fmt.Errorf("failed to scan image directory: %v", err)
	}

	deleted := 0
	for _, path := range matches {
		info, err := os.Stat(path)
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				r.log.Error("Error deleting %s: %v", path, err)
				continue
			}
			deleted++
		}
	}

	if deleted > 0 {
		r.log.Info("🧹 Cleaned up %d old detection images", deleted)
	}
	return deleted, nil
}

// Stats aggregates the CSV log over the trailing window.
type Stats struct {
	Total          int
	Allowed        int
	Intruders      int
	UniquePersons  int
	MeanConfidence float64
	ParseErrors    int
}

// Stats computes detection statistics for the last windowHours hours.
// Rows that fail to parse are skipped and counted, never fatal.
func (r *Recorder) Stats(windowHours int) (Stats, error) {
	var stats Stats

	file, err := os.Open(r.logFile)
	if os.IsNotExist(err) {
		return stats, nil
	}
	if err != nil {
		return stats, fmt.Errorf("failed to open log file: %v", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1 // malformed rows are counted, not fatal
	rows, err := reader.ReadAll()
	if err != nil {
		return stats, fmt.Errorf("failed to read log file: %v", err)
	}
	if len(rows) == 0 {
		return stats, nil
	}

	cutoff := r.now().Add(-time.Duration(windowHours) * time.Hour)
	persons := make(map[string]bool)
	confidenceSum := 0.0

	for _, row := range rows[1:] { // skip header
		if len(row) < 5 {
			stats.ParseErrors++
			continue
		}
		timestamp, err := time.Parse(time.RFC3339, row[0])
		if err != nil {
			stats.ParseErrors++
			continue
		}
		if timestamp.Before(cutoff) {
			continue
		}
		confidence, err := strconv.ParseFloat(row[3], 64)
		if err != nil {
			stats.ParseErrors++
			continue
		}

		stats.Total++
		persons[row[2]] = true
		if row[1] == "ALLOWED" {
			stats.Allowed++
		} else {
			stats.Intruders++
		}
		confidenceSum += confidence
	}

	stats.UniquePersons = len(persons)
	if stats.Total > 0 {
		stats.MeanConfidence = confidenceSum / float64(stats.Total)
	}
	return stats, nil
}
