package notify

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"doorcam/internal/config"
	"doorcam/internal/logger"
)

type call struct {
	kind string // "text" or "photo"
	dest string
	path string
}

type fakeTransport struct {
	mu       sync.Mutex
	calls    []call
	textErr  error
	photoErr error
}

func (f *fakeTransport) SendText(dest, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "text", dest: dest})
	return f.textErr
}

func (f *fakeTransport) SendPhoto(dest, photoPath, caption string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{kind: "photo", dest: dest, path: photoPath})
	return f.photoErr
}

func (f *fakeTransport) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		UserID:             "12345",
		ChannelID:          config.ChannelUnset,
		MinAlertInterval:   2,
		SendImageWithAlert: true,
		SendStartupNotice:  true,
		SendErrorNotices:   true,
		CameraName:         "front_door",
		LogDirectory:       t.TempDir(),
	}
}

func newTestNotifier(t *testing.T, cfg *config.Config, transport Transport) *Notifier {
	t.Helper()
	return NewNotifier(transport, cfg, logger.NewLogger(cfg))
}

// fixed clock the tests can advance by hand
func withClock(n *Notifier, at time.Time) *time.Time {
	current := at
	n.now = func() time.Time { return current }
	return &current
}

func TestDetection_RateLimitWindow(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	clock := withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("INTRUDER", 0.9, "unknown", "")
	if transport.callCount() != 1 {
		t.Fatalf("first alert must go out, got %d calls", transport.callCount())
	}

	*clock = clock.Add(1 * time.Second)
	n.Detection("INTRUDER", 0.9, "unknown", "")
	if transport.callCount() != 1 {
		t.Fatalf("alert inside the window must be suppressed, got %d calls", transport.callCount())
	}

	*clock = clock.Add(1 * time.Second) // exactly minInterval after the first
	n.Detection("INTRUDER", 0.9, "unknown", "")
	if transport.callCount() != 2 {
		t.Fatalf("alert at the window boundary must go out, got %d calls", transport.callCount())
	}
}

func TestDetection_SuppressionDoesNotTouchTable(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	clock := withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("ALLOWED", 0.8, "alice", "")

	// Two suppressed attempts; if either updated the table, the alert at
	// t0+2s would still be inside the window.
	*clock = clock.Add(1 * time.Second)
	n.Detection("ALLOWED", 0.8, "alice", "")
	*clock = clock.Add(900 * time.Millisecond)
	n.Detection("ALLOWED", 0.8, "alice", "")

	*clock = clock.Add(100 * time.Millisecond)
	n.Detection("ALLOWED", 0.8, "alice", "")
	if transport.callCount() != 2 {
		t.Fatalf("expected 2 dispatched alerts, got %d", transport.callCount())
	}
}

func TestDetection_IndependentIdentities(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("ALLOWED", 0.8, "alice", "")
	n.Detection("INTRUDER", 0.7, "unknown", "")
	if transport.callCount() != 2 {
		t.Fatalf("different identities must not share a rate-limit slot, got %d calls", transport.callCount())
	}
}

func TestDetection_FailedAttemptConsumesSlot(t *testing.T) {
	transport := &fakeTransport{textErr: errors.New("network down")}
	n := newTestNotifier(t, testConfig(t), transport)
	clock := withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("INTRUDER", 0.9, "unknown", "")
	if transport.callCount() != 1 {
		t.Fatalf("expected 1 attempt, got %d", transport.callCount())
	}

	*clock = clock.Add(1 * time.Second)
	n.Detection("INTRUDER", 0.9, "unknown", "")
	if transport.callCount() != 1 {
		t.Fatalf("failed attempt must still consume the slot, got %d calls", transport.callCount())
	}
}

func TestDetection_PhotoFallbackToText(t *testing.T) {
	dir := t.TempDir()
	imagePath := filepath.Join(dir, "detection_unknown_20250601_120000_000.jpg")
	if err := os.WriteFile(imagePath, []byte("jpeg"), 0644); err != nil {
		t.Fatal(err)
	}

	transport := &fakeTransport{photoErr: errors.New("file too large")}
	n := newTestNotifier(t, testConfig(t), transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("INTRUDER", 0.9, "unknown", imagePath)

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.calls) != 2 {
		t.Fatalf("expected photo attempt then text fallback, got %d calls", len(transport.calls))
	}
	if transport.calls[0].kind != "photo" || transport.calls[1].kind != "text" {
		t.Errorf("wrong call order: %+v", transport.calls)
	}
}

func TestDetection_MissingImageSendsTextOnly(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("INTRUDER", 0.9, "unknown", filepath.Join(t.TempDir(), "gone.jpg"))

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.calls) != 1 || transport.calls[0].kind != "text" {
		t.Fatalf("expected a single text send, got %+v", transport.calls)
	}
}

func TestDetection_ChannelCopy(t *testing.T) {
	cfg := testConfig(t)
	cfg.ChannelID = "@mychannel"

	transport := &fakeTransport{}
	n := newTestNotifier(t, cfg, transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("ALLOWED", 0.8, "alice", "")

	transport.mu.Lock()
	defer transport.mu.Unlock()
	if len(transport.calls) != 2 {
		t.Fatalf("expected alerts to user and channel, got %d", len(transport.calls))
	}
	if transport.calls[0].dest != "12345" || transport.calls[1].dest != "@mychannel" {
		t.Errorf("wrong destinations: %+v", transport.calls)
	}
}

func TestDetection_SentinelChannelSkipped(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("ALLOWED", 0.8, "alice", "")
	if transport.callCount() != 1 {
		t.Fatalf("placeholder channel must not receive alerts, got %d calls", transport.callCount())
	}
}

func readInfoLog(t *testing.T, cfg *config.Config) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(cfg.LogDirectory, "info.log"))
	if err != nil {
		t.Fatalf("failed to read info log: %v", err)
	}
	return string(data)
}

func TestDetection_FailedSendNotLoggedAsSent(t *testing.T) {
	cfg := testConfig(t)
	transport := &fakeTransport{
		textErr:  errors.New("network down"),
		photoErr: errors.New("network down"),
	}
	n := newTestNotifier(t, cfg, transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("INTRUDER", 0.9, "unknown", "")

	if strings.Contains(readInfoLog(t, cfg), "Alert sent") {
		t.Error("a fully failed dispatch must not be logged as sent")
	}
}

func TestDetection_SuccessfulSendLogged(t *testing.T) {
	cfg := testConfig(t)
	transport := &fakeTransport{}
	n := newTestNotifier(t, cfg, transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Detection("ALLOWED", 0.8, "alice", "")

	if !strings.Contains(readInfoLog(t, cfg), "Alert sent") {
		t.Error("a successful dispatch must be logged as sent")
	}
}

func TestStartupAndErrorBypassRateLimit(t *testing.T) {
	transport := &fakeTransport{}
	n := newTestNotifier(t, testConfig(t), transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Startup()
	n.Error("camera exploded")
	n.Error("camera exploded again")
	if transport.callCount() != 3 {
		t.Fatalf("notices must bypass rate limiting, got %d calls", transport.callCount())
	}
}

func TestNoticesHonorConfigFlags(t *testing.T) {
	cfg := testConfig(t)
	cfg.SendStartupNotice = false
	cfg.SendErrorNotices = false

	transport := &fakeTransport{}
	n := newTestNotifier(t, cfg, transport)
	withClock(n, time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))

	n.Startup()
	n.Error("nope")
	if transport.callCount() != 0 {
		t.Fatalf("disabled notices must not send, got %d calls", transport.callCount())
	}
}
