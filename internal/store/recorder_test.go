package store

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gocv.io/x/gocv"

	"doorcam/internal/config"
	"doorcam/internal/logger"
)

func newTestRecorder(t *testing.T) (*Recorder, string) {
	t.Helper()
	dir := t.TempDir()
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	return NewRecorder(dir, filepath.Join(dir, "detection_log.csv"), log), dir
}

func TestAppendLog_HeaderOnceAndRowOrder(t *testing.T) {
	r, dir := newTestRecorder(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	names := []string{"alice", "unknown", "bob"}
	for i, name := range names {
		if err := r.AppendLog(base.Add(time.Duration(i)*time.Second), "ALLOWED", name, 0.9, "front_door"); err != nil {
			t.Fatalf("AppendLog failed: %v", err)
		}
	}

	data, err := os.ReadFile(filepath.Join(dir, "detection_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")

	if len(lines) != 4 {
		t.Fatalf("expected header + 3 rows, got %d lines", len(lines))
	}
	if lines[0] != "timestamp,person_type,person_name,confidence,camera" {
		t.Errorf("unexpected header: %q", lines[0])
	}
	for i, name := range names {
		if !strings.Contains(lines[i+1], ","+name+",") {
			t.Errorf("row %d should be for %s: %q", i+1, name, lines[i+1])
		}
	}
}

func TestAppendLog_HeaderSurvivesRestart(t *testing.T) {
	r, dir := newTestRecorder(t)
	logFile := filepath.Join(dir, "detection_log.csv")

	if err := r.AppendLog(time.Now(), "INTRUDER", "unknown", 0.7, "front_door"); err != nil {
		t.Fatal(err)
	}

	// A fresh Recorder over the same file simulates a process restart.
	log := logger.NewLogger(&config.Config{LogDirectory: t.TempDir()})
	r2 := NewRecorder(dir, logFile, log)
	if err := r2.AppendLog(time.Now(), "ALLOWED", "alice", 0.8, "front_door"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatal(err)
	}
	if got := strings.Count(string(data), "timestamp,person_type"); got != 1 {
		t.Errorf("expected exactly 1 header row, got %d", got)
	}
}

func TestAppendLog_ConfidenceFormat(t *testing.T) {
	r, dir := newTestRecorder(t)

	if err := r.AppendLog(time.Now(), "ALLOWED", "alice", 0.87654, "front_door"); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(filepath.Join(dir, "detection_log.csv"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), ",0.877,") {
		t.Errorf("confidence should be rounded to 3 decimals: %q", string(data))
	}
}

func TestPurgeOlderThan(t *testing.T) {
	r, dir := newTestRecorder(t)

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	files := []struct {
		name  string
		mtime time.Time
		keep  bool
	}{
		{"detection_alice_20250601_120000_000.jpg", now.AddDate(0, 0, -8), false},
		{"detection_unknown_20250603_120000_000.jpg", now.AddDate(0, 0, -7), true}, // exactly at cutoff, not strictly older
		{"detection_bob_20250609_120000_000.jpg", now.AddDate(0, 0, -1), true},
		{"unrelated.jpg", now.AddDate(0, 0, -30), true}, // wrong prefix, never touched
	}

	for _, f := range files {
		path := filepath.Join(dir, f.name)
		if err := os.WriteFile(path, []byte("jpeg"), 0644); err != nil {
			t.Fatal(err)
		}
		if err := os.Chtimes(path, f.mtime, f.mtime); err != nil {
			t.Fatal(err)
		}
	}

	deleted, err := r.PurgeOlderThan(7)
	if err != nil {
		t.Fatalf("PurgeOlderThan failed: %v", err)
	}
	if deleted != 1 {
		t.Errorf("expected 1 deleted image, got %d", deleted)
	}

	for _, f := range files {
		_, err := os.Stat(filepath.Join(dir, f.name))
		if f.keep && err != nil {
			t.Errorf("%s should have been kept: %v", f.name, err)
		}
		if !f.keep && !os.IsNotExist(err) {
			t.Errorf("%s should have been deleted", f.name)
		}
	}
}

func TestStats_WindowAndParseErrors(t *testing.T) {
	r, dir := newTestRecorder(t)

	now := time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return now }

	inWindow := now.Add(-2 * time.Hour).Format(time.RFC3339)
	outOfWindow := now.Add(-30 * time.Hour).Format(time.RFC3339)

	rows := []string{
		"timestamp,person_type,person_name,confidence,camera",
		inWindow + ",ALLOWED,alice,0.900,front_door",
		inWindow + ",INTRUDER,unknown,0.700,front_door",
		inWindow + ",ALLOWED,alice,0.800,front_door",
		outOfWindow + ",INTRUDER,unknown,0.990,front_door",
		"not-a-timestamp,INTRUDER,unknown,0.500,front_door",
	}
	logFile := filepath.Join(dir, "detection_log.csv")
	if err := os.WriteFile(logFile, []byte(strings.Join(rows, "\n")+"\n"), 0644); err != nil {
		t.Fatal(err)
	}

	stats, err := r.Stats(24)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}

	if stats.Total != 3 {
		t.Errorf("Total = %d, expected 3", stats.Total)
	}
	if stats.Allowed != 2 || stats.Intruders != 1 {
		t.Errorf("Allowed/Intruders = %d/%d, expected 2/1", stats.Allowed, stats.Intruders)
	}
	if stats.UniquePersons != 2 {
		t.Errorf("UniquePersons = %d, expected 2", stats.UniquePersons)
	}
	if stats.ParseErrors != 1 {
		t.Errorf("ParseErrors = %d, expected 1", stats.ParseErrors)
	}
	want := (0.9 + 0.7 + 0.8) / 3
	if diff := stats.MeanConfidence - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("MeanConfidence = %f, expected %f", stats.MeanConfidence, want)
	}
}

func TestStats_MissingLogFile(t *testing.T) {
	r, _ := newTestRecorder(t)

	stats, err := r.Stats(24)
	if err != nil {
		t.Fatalf("Stats on a missing log must not fail: %v", err)
	}
	if stats.Total != 0 {
		t.Errorf("expected zero stats, got %+v", stats)
	}
}

func TestSaveImage_FilenameAndContent(t *testing.T) {
	r, dir := newTestRecorder(t)

	now := time.Date(2025, 6, 1, 9, 30, 15, 250*int(time.Millisecond), time.UTC)
	r.now = func() time.Time { return now }

	frame := gocv.NewMatWithSize(240, 320, gocv.MatTypeCV8UC3)
	defer frame.Close()

	path := r.SaveImage(frame, 0.93, "alice")
	if path == "" {
		t.Fatal("SaveImage returned empty path")
	}

	want := filepath.Join(dir, "detection_alice_20250601_093015_250.jpg")
	if path != want {
		t.Errorf("path = %q, expected %q", path, want)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stored image missing: %v", err)
	}
	if info.Size() == 0 {
		t.Error("stored image is empty")
	}
}

func TestSaveImage_EmptyFrame(t *testing.T) {
	r, _ := newTestRecorder(t)

	frame := gocv.NewMat()
	defer frame.Close()

	if path := r.SaveImage(frame, 0.9, "alice"); path != "" {
		t.Errorf("expected empty path for empty frame, got %q", path)
	}
}
