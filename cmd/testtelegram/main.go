package main

import (
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/joho/godotenv"

	"doorcam/internal/config"
	"doorcam/internal/notify"
)

func main() {
	message := flag.String("message", "", "Custom message (default: a test notification)")
	photo := flag.String("photo", "", "Optional photo to attach")
	flag.Parse()

	godotenv.Load()
	cfg := config.Load()
	if cfg.BotToken == "" || cfg.UserID == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN and TELEGRAM_USER_ID must be configured")
	}

	transport, err := notify.NewTelegramTransport(cfg.BotToken)
	if err != nil {
		log.Fatalf("Failed to authorize bot: %v", err)
	}
	fmt.Printf("🤖 Bot authorized: @%s\n", transport.BotUsername())

	text := *message
	if text == "" {
		text = fmt.Sprintf(`🔔 *Test Notification*

*Camera:* %s
*Time:* %s

_Smart Door Camera_`, cfg.CameraName, time.Now().Format("2006-01-02 15:04:05"))
	}

	send := func(dest string) error {
		if *photo != "" {
			return transport.SendPhoto(dest, *photo, text)
		}
		return transport.SendText(dest, text)
	}

	if err := send(cfg.UserID); err != nil {
		log.Fatalf("Failed to send to user %s: %v", cfg.UserID, err)
	}
	fmt.Printf("✅ Message delivered to %s\n", cfg.UserID)

	if cfg.ChannelConfigured() {
		if err := send(cfg.ChannelID); err != nil {
			log.Fatalf("Failed to send to channel %s: %v", cfg.ChannelID, err)
		}
		fmt.Printf("✅ Message delivered to %s\n", cfg.ChannelID)
	}
}
