package notify

import (
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Transport delivers alert payloads to a chat destination. A destination
// is either a numeric chat ID or an @channel username.
type Transport interface {
	SendText(dest, text string) error
	SendPhoto(dest, photoPath, caption string) error
}

// TelegramTransport implements Transport over the Telegram Bot API.
type TelegramTransport struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramTransport authorizes the bot with the given token.
func NewTelegramTransport(token string) (*TelegramTransport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to authorize telegram bot: %v", err)
	}
	return &TelegramTransport{bot: bot}, nil
}

// BotUsername returns the authorized bot account name.
func (t *TelegramTransport) BotUsername() string {
	return t.bot.Self.UserName
}

func (t *TelegramTransport) SendText(dest, text string) error {
	var msg tgbotapi.MessageConfig
	if strings.HasPrefix(dest, "@") {
		msg = tgbotapi.NewMessageToChannel(dest, text)
	} else {
		chatID, err := strconv.ParseInt(dest, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat ID %q: %v", dest, err)
		}
		msg = tgbotapi.NewMessage(chatID, text)
	}
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := t.bot.Send(msg)
	return err
}

func (t *TelegramTransport) SendPhoto(dest, photoPath, caption string) error {
	file := tgbotapi.FilePath(photoPath)
	var photo tgbotapi.PhotoConfig
	if strings.HasPrefix(dest, "@") {
		photo = tgbotapi.NewPhotoToChannel(dest, file)
	} else {
		chatID, err := strconv.ParseInt(dest, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid chat ID %q: %v", dest, err)
		}
		photo = tgbotapi.NewPhoto(chatID, file)
	}
	photo.Caption = caption
	photo.ParseMode = tgbotapi.ModeMarkdown
	_, err := t.bot.Send(photo)
	return err
}
