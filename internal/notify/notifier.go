package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"doorcam/internal/config"
	"doorcam/internal/logger"
)

// Notifier dispatches detection alerts with per-identity rate limiting.
// Transport failures never propagate to the caller: a failed alert is a
// lost alert, logged and dropped. The rate-limit table records attempts,
// not confirmed deliveries, and lives only for the process lifetime.
type Notifier struct {
	transport Transport
	cfg       *config.Config
	log       *logger.Logger

	mu        sync.Mutex
	lastAlert map[string]time.Time
	now       func() time.Time
}

func NewNotifier(transport Transport, cfg *config.Config, log *logger.Logger) *Notifier {
	return &Notifier{
		transport: transport,
		cfg:       cfg,
		log:       log,
		lastAlert: make(map[string]time.Time),
		now:       time.Now,
	}
}

// allow consumes the rate-limit slot for name if the minimum interval has
// elapsed. Check and update happen under one lock so concurrent dispatch
// attempts for the same identity cannot both pass. A suppressed attempt
// leaves the table untouched.
func (n *Notifier) allow(name string) bool {
	n.mu.Lock()
	defer n.mu.Unlock()

	now := n.now()
	interval := time.Duration(n.cfg.MinAlertInterval) * time.Second
	if last, ok := n.lastAlert[name]; ok && now.Sub(last) < interval {
		return false
	}
	n.lastAlert[name] = now
	return true
}

// Detection sends a detection alert to the admin and, when configured, a
// copy to the broadcast channel. Suppressed alerts leave only a debug
// trace.
func (n *Notifier) Detection(personType string, confidence float64, name, imagePath string) {
	if !n.allow(name) {
		n.log.Debug("Rate limited alert for %s", name)
		return
	}

	alertLevel := "👤 Person Detected"
	emoji := "🟢"
	if personType == "INTRUDER" {
		alertLevel = "🚨 INTRUDER ALERT"
		emoji = "🔴"
	}

	message := fmt.Sprintf(`%s *%s*

*Status:* %s
*Confidence:* %.1f%%
*Person:* %s
*Time:* %s

_Smart Door Camera_`,
		emoji, alertLevel, personType, confidence*100, name,
		n.now().Format("2006-01-02 15:04:05"))

	if err := n.dispatch(n.cfg.UserID, message, imagePath); err == nil {
		n.log.Info("Alert sent: %s - %s", personType, name)
	}
	if n.cfg.ChannelConfigured() {
		if err := n.dispatch(n.cfg.ChannelID, message, imagePath); err == nil {
			n.log.Info("Alert sent to channel: %s - %s", personType, name)
		}
	}
}

// dispatch sends a single alert to one destination, attaching the image
// when enabled and present. A failed or impossible photo send falls back
// to text; a failed fallback is logged and returned but never propagates
// past Detection.
func (n *Notifier) dispatch(dest, message, imagePath string) error {
	if imagePath != "" && n.cfg.SendImageWithAlert {
		if _, err := os.Stat(imagePath); err != nil {
			n.log.Warning("Photo not found: %s", imagePath)
		} else if err := n.transport.SendPhoto(dest, imagePath, message); err == nil {
			return nil
		} else {
			n.log.Error("Error sending photo to %s: %v", dest, err)
		}
	}

	if err := n.transport.SendText(dest, message); err != nil {
		n.log.Error("Error sending alert to %s: %v", dest, err)
		return err
	}
	return nil
}

// Startup announces that the appliance is online. Fire-and-forget, no
// rate limiting.
func (n *Notifier) Startup() {
	if !n.cfg.SendStartupNotice {
		return
	}

	faceState := "Disabled"
	if n.cfg.EnableFaceRecognition {
		faceState = "Enabled"
	}
	message := fmt.Sprintf(`✅ *Door Camera Online*

*Camera:* %s
*Started:* %s
*Face Recognition:* %s
*Status:* Ready for detections

_Smart Door Security System_`,
		n.cfg.CameraName, n.now().Format("2006-01-02 15:04:05"), faceState)

	if err := n.transport.SendText(n.cfg.UserID, message); err != nil {
		n.log.Error("Error sending startup notification: %v", err)
	}
}

// Error sends a best-effort system error alert to the admin.
func (n *Notifier) Error(errMsg string) {
	if !n.cfg.SendErrorNotices {
		return
	}

	message := fmt.Sprintf(`⚠️ *System Error*

*Error:* %s
*Time:* %s

_Smart Door Camera Alert_`,
		errMsg, n.now().Format("2006-01-02 15:04:05"))

	if err := n.transport.SendText(n.cfg.UserID, message); err != nil {
		n.log.Error("Error sending error notification: %v", err)
	}
}
