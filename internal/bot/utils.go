package bot

import (
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/models"
)

var errNoSender = errors.New("telegram API not initialized")

// sendMessage sends any chattable and logs failures
func (b *Bot) sendMessage(msg tgbotapi.Chattable) {
	if b.sender == nil {
		return // For testing
	}
	if _, err := b.sender.Send(msg); err != nil {
		b.logger.Warn("Failed to send message", zap.Error(err))
	}
}

func (b *Bot) sendText(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true
	b.sendMessage(msg)
}

// answerCallback removes the loading state of a button, optionally with a toast
func (b *Bot) answerCallback(queryID, text string) {
	if b.sender == nil {
		return
	}
	if _, err := b.sender.Request(tgbotapi.NewCallback(queryID, text)); err != nil {
		b.logger.Debug("Failed to answer callback", zap.Error(err))
	}
}

// NotifyConferences tells a subscriber about newly discovered conferences.
// Private chats share the user's ID, so chatID is the user ID.
func (b *Bot) NotifyConferences(chatID int64, conferences []models.Conference) error {
	if b.sender == nil {
		return errNoSender
	}
	if len(conferences) == 0 {
		return nil
	}

	text := formatConferenceList(
		fmt.Sprintf("🆕 New conferences matching your filters (%d)", len(conferences)),
		conferences,
		true,
	)
	msg := tgbotapi.NewMessage(chatID, text)
	msg.DisableWebPagePreview = true

	if _, err := b.sender.Send(msg); err != nil {
		return fmt.Errorf("sending notification: %w", err)
	}
	return nil
}
