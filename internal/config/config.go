package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// ChannelUnset is the default placeholder channel ID. A channel equal to
// this value is treated as not configured.
const ChannelUnset = "@rpi5doorcam"

type Config struct {
	// Telegram
	BotToken  string
	UserID    string // primary alert destination (numeric chat ID)
	ChannelID string // optional broadcast channel, ChannelUnset = disabled

	// Detection
	ModelPath           string
	ModelConfigPath     string
	ConfidenceThreshold float64
	DetectionClasses    []string // class allow-list, usually just "person"

	// Face recognition
	EnableFaceRecognition bool
	FaceMatchTolerance    float64
	KnownFacesDir         string
	FaceCascadePath       string
	FaceModelPath         string

	// Camera
	CameraIndex  int
	CameraWidth  int
	CameraHeight int
	CameraFPS    int
	CameraName   string

	// Storage
	DetectionsDir string
	LogFile       string
	LogDirectory  string

	// Alerts
	MinAlertInterval   int // seconds between alerts for the same person
	SendImageWithAlert bool
	RetentionDays      int
	SendStartupNotice  bool
	SendErrorNotices   bool

	// Live view
	EnableLiveView bool
	LiveViewAddr   string

	DebugMode bool
}

func Load() *Config {
	detectionsDir := getEnv("DETECTIONS_DIR", filepath.Join(".", "detections"))

	return &Config{
		BotToken:  getEnv("TELEGRAM_BOT_TOKEN", ""),
		UserID:    getEnv("TELEGRAM_USER_ID", ""),
		ChannelID: getEnv("TELEGRAM_CHANNEL_ID", ChannelUnset),

		ModelPath:           getEnv("MODEL_PATH", filepath.Join(".", "models", "frozen_inference_graph.pb")),
		ModelConfigPath:     getEnv("MODEL_CONFIG_PATH", filepath.Join(".", "models", "ssd_mobilenet_v1_coco_2017_11_17.pbtxt")),
		ConfidenceThreshold: getEnvAsFloat("CONFIDENCE_THRESHOLD", 0.5),
		DetectionClasses:    getEnvAsList("DETECTION_CLASSES", []string{"person"}),

		EnableFaceRecognition: getEnvAsBool("ENABLE_FACE_RECOGNITION", true),
		FaceMatchTolerance:    getEnvAsFloat("FACE_MATCH_TOLERANCE", 0.6),
		KnownFacesDir:         getEnv("KNOWN_FACES_DIR", filepath.Join(".", "known_faces")),
		FaceCascadePath:       getEnv("FACE_CASCADE_PATH", filepath.Join(".", "models", "haarcascade_frontalface_default.xml")),
		FaceModelPath:         getEnv("FACE_MODEL_PATH", filepath.Join(".", "models", "openface_nn4.small2.v1.t7")),

		CameraIndex:  getEnvAsInt("CAMERA_INDEX", 0),
		CameraWidth:  getEnvAsInt("CAMERA_WIDTH", 1280),
		CameraHeight: getEnvAsInt("CAMERA_HEIGHT", 720),
		CameraFPS:    getEnvAsInt("CAMERA_FPS", 15),
		CameraName:   getEnv("CAMERA_NAME", "front_door"),

		DetectionsDir: detectionsDir,
		LogFile:       getEnv("LOG_FILE", filepath.Join(detectionsDir, "detection_log.csv")),
		LogDirectory:  getEnv("LOG_DIR", filepath.Join(".", "logs")),

		MinAlertInterval:   getEnvAsInt("MIN_ALERT_INTERVAL", 2),
		SendImageWithAlert: getEnvAsBool("SEND_IMAGE_WITH_ALERT", true),
		RetentionDays:      getEnvAsInt("RETENTION_DAYS", 7),
		SendStartupNotice:  getEnvAsBool("SEND_STARTUP_NOTIFICATION", true),
		SendErrorNotices:   getEnvAsBool("SEND_ERROR_NOTIFICATIONS", true),

		EnableLiveView: getEnvAsBool("ENABLE_LIVE_VIEW", false),
		LiveViewAddr:   getEnv("LIVE_VIEW_ADDR", ":8080"),

		DebugMode: getEnvAsBool("DEBUG_MODE", false),
	}
}

// Validate checks credentials and thresholds and creates the storage
// directories. Returning an error here aborts startup.
func (c *Config) Validate() error {
	if c.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN not configured")
	}
	if c.UserID == "" {
		return fmt.Errorf("TELEGRAM_USER_ID not configured")
	}
	if c.ConfidenceThreshold <= 0 || c.ConfidenceThreshold > 1 {
		return fmt.Errorf("CONFIDENCE_THRESHOLD must be in (0,1], got %g", c.ConfidenceThreshold)
	}
	if c.FaceMatchTolerance <= 0 || c.FaceMatchTolerance > 1 {
		return fmt.Errorf("FACE_MATCH_TOLERANCE must be in (0,1], got %g", c.FaceMatchTolerance)
	}
	if c.MinAlertInterval < 0 {
		return fmt.Errorf("MIN_ALERT_INTERVAL must not be negative, got %d", c.MinAlertInterval)
	}
	if c.RetentionDays < 1 {
		return fmt.Errorf("RETENTION_DAYS must be at least 1, got %d", c.RetentionDays)
	}
	if len(c.DetectionClasses) == 0 {
		return fmt.Errorf("DETECTION_CLASSES must name at least one class")
	}

	if err := os.MkdirAll(c.DetectionsDir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %v", c.DetectionsDir, err)
	}
	if err := os.MkdirAll(c.KnownFacesDir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %v", c.KnownFacesDir, err)
	}
	return nil
}

// ChannelConfigured reports whether the broadcast channel should receive
// a copy of every alert.
func (c *Config) ChannelConfigured() bool {
	return c.ChannelID != "" && c.ChannelID != ChannelUnset
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
