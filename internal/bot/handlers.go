package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

// handleMessage processes a single message
func (b *Bot) handleMessage(message *tgbotapi.Message) {
	// Recover from panics to prevent bot crashes
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleMessage",
				zap.Any("panic", r),
				zap.Int64("chat_id", message.Chat.ID),
			)
			b.sendText(message.Chat.ID, "An error occurred while processing your request. Please try again.")
		}
	}()

	userID := message.From.ID
	ctx := context.Background()

	if !message.IsCommand() {
		if state, ok := b.getState(userID); ok {
			b.handleConversation(message, state)
		}
		return
	}

	// Any command interrupts an ongoing conversation
	hadConversation := b.clearState(userID)

	switch message.Command() {
	case "start":
		b.handleStart(ctx, message)
	case "help":
		b.handleHelp(message)
	case "filter", "filters":
		b.handleFilterStart(message)
	case "list", "search":
		b.handleList(ctx, message)
	case "upcoming":
		b.handleUpcoming(ctx, message)
	case "myfilters":
		b.handleMyFilters(ctx, message)
	case "subscribe":
		b.handleSubscription(ctx, message, true)
	case "unsubscribe":
		b.handleSubscription(ctx, message, false)
	case "cancel":
		b.handleCancel(message, hadConversation)
	default:
		b.sendText(message.Chat.ID, "Unknown command.\n\n"+helpText())
	}
}

// handleCallbackQuery processes inline keyboard button clicks
func (b *Bot) handleCallbackQuery(query *tgbotapi.CallbackQuery) {
	// Answer the callback query to remove loading state
	toast := ""
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("Recovered from panic in handleCallbackQuery",
				zap.Any("panic", r),
				zap.String("callback_data", query.Data),
			)
			toast = ""
		}
		b.answerCallback(query.ID, toast)
	}()

	state, ok := b.getState(query.From.ID)
	if !ok || state.Command != "filter" {
		return
	}

	// Handle callback based on prefix
	data := query.Data
	if strings.HasPrefix(data, countryPrefix) {
		toast = b.handleCountryCallback(query, state)
	} else if strings.HasPrefix(data, topicPrefix) {
		toast = b.handleTopicCallback(context.Background(), query, state)
	}
}
