package publisher

import (
	"context"
	"errors"
	"strconv"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// Telegram publishes posts as plain messages to a channel or group.
type Telegram struct {
	bot    *tele.Bot
	chatID int64
}

func NewTelegram(token string, chatID int64) (*Telegram, error) {
	if strings.TrimSpace(token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if chatID == 0 {
		return nil, errors.New("telegram chat id is required")
	}
	// Offline: sender only, no update polling and no startup getMe.
	bot, err := tele.NewBot(tele.Settings{Token: token, Offline: true})
	if err != nil {
		return nil, err
	}
	return &Telegram{bot: bot, chatID: chatID}, nil
}

// Publish sends the text and returns the message id. Telegram has no
// idempotency support, so the key is ignored.
func (t *Telegram) Publish(_ context.Context, text, _ string) (string, error) {
	msg, err := t.bot.Send(&tele.Chat{ID: t.chatID}, text, &tele.SendOptions{DisableWebPagePreview: true})
	if err != nil {
		return "", err
	}
	return strconv.Itoa(msg.ID), nil
}
