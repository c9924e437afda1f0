package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/filter"
	"conferencebot/internal/models"
)

// menuCommands is the command menu shown in Telegram and in /help
var menuCommands = []tgbotapi.BotCommand{
	{Command: "filter", Description: "Set your country and direction preferences"},
	{Command: "list", Description: "View conferences matching your filters"},
	{Command: "upcoming", Description: "View upcoming conferences (next 3 months)"},
	{Command: "myfilters", Description: "View your current filter settings"},
	{Command: "subscribe", Description: "Enable notifications about new conferences"},
	{Command: "unsubscribe", Description: "Disable notifications"},
	{Command: "cancel", Description: "Cancel filter selection"},
	{Command: "help", Description: "Show this help message"},
}

func commandList() string {
	var sb strings.Builder
	for i, c := range menuCommands {
		if i > 0 {
			sb.WriteByte('\n')
		}
		fmt.Fprintf(&sb, "/%s - %s", c.Command, c.Description)
	}
	return sb.String()
}

// handleStart shows welcome message and available commands
func (b *Bot) handleStart(ctx context.Context, message *tgbotapi.Message) {
	// Make sure the user has a record
	if _, err := b.db.GetPreferences(ctx, message.From.ID); err != nil {
		b.logger.Error("Failed to load preferences", zap.Error(err), zap.Int64("user_id", message.From.ID))
	}

	text := fmt.Sprintf(`👋 Welcome to Conference Bot, %s!

I'll help you discover QA & IT conferences matching your interests.

Available commands:
%s

🎯 Get started by setting your filters: /filter`, message.From.FirstName, commandList())

	b.sendText(message.Chat.ID, text)
}

// handleHelp explains the commands and the available filter values
func (b *Bot) handleHelp(message *tgbotapi.Message) {
	b.sendText(message.Chat.ID, helpText())
}

func helpText() string {
	return fmt.Sprintf(`📚 How to use Conference Bot

%s

Available filters:
🌍 Countries: %s
🎯 Directions: %s

Tips:
• Pick "%s" or "%s" to see everything
• You can select multiple options
• Press Done with nothing selected to keep everything`,
		commandList(),
		optionLabels(catalog.Countries),
		optionLabels(catalog.Topics),
		catalog.AllCountriesLabel, catalog.AllTopicsLabel)
}

// handleFilterStart opens the country step of the filter conversation
func (b *Bot) handleFilterStart(message *tgbotapi.Message) {
	state := ConversationState{
		Command:   "filter",
		Step:      stepCountry,
		Countries: models.Specific(),
		Topics:    models.Specific(),
	}
	b.setState(message.From.ID, state)

	msg := tgbotapi.NewMessage(message.Chat.ID, countryPrompt)
	msg.ReplyMarkup = selectionKeyboard(countryPrefix, catalog.Countries, catalog.AllCountriesLabel, state.Countries)
	b.sendMessage(msg)
}

// handleList shows every conference matching the user's filters
func (b *Bot) handleList(ctx context.Context, message *tgbotapi.Message) {
	prefs, ok := b.loadPreferences(ctx, message)
	if !ok {
		return
	}

	matching := filter.Filter(prefs, b.catalog.List())
	if len(matching) == 0 {
		b.sendText(message.Chat.ID, "😔 No conferences found matching your filters.\n\nTry adjusting your filters with /filter")
		return
	}

	title := fmt.Sprintf("📅 Conferences Matching Your Filters (%d found)", len(matching))
	b.sendText(message.Chat.ID, formatConferenceList(title, matching, true))
}

// handleUpcoming shows matching conferences in the next three months
func (b *Bot) handleUpcoming(ctx context.Context, message *tgbotapi.Message) {
	prefs, ok := b.loadPreferences(ctx, message)
	if !ok {
		return
	}

	upcoming := filter.Upcoming(prefs, b.catalog.List(), b.clock(), filter.UpcomingWindow)
	if len(upcoming) == 0 {
		b.sendText(message.Chat.ID, "📅 No conferences scheduled in the next 3 months matching your filters.\n"+
			"Use /subscribe to get notified when new ones are added!")
		return
	}

	b.sendText(message.Chat.ID, formatConferenceList("📅 Upcoming Conferences (Next 3 Months)", upcoming, false))
}

// handleMyFilters shows the stored preferences
func (b *Bot) handleMyFilters(ctx context.Context, message *tgbotapi.Message) {
	prefs, ok := b.loadPreferences(ctx, message)
	if !ok {
		return
	}
	b.sendText(message.Chat.ID, formatPreferences(prefs))
}

// handleSubscription sets the subscribed flag
func (b *Bot) handleSubscription(ctx context.Context, message *tgbotapi.Message, subscribed bool) {
	prefs, ok := b.loadPreferences(ctx, message)
	if !ok {
		return
	}

	prefs.Subscribed = subscribed
	if err := b.db.SavePreferences(ctx, prefs); err != nil {
		b.logger.Error("Failed to save subscription",
			zap.Error(err),
			zap.Int64("user_id", prefs.UserID),
			zap.Bool("subscribed", subscribed),
		)
		b.sendText(message.Chat.ID, "Sorry, I couldn't save your settings. Please try again.")
		return
	}

	b.logger.Info("Subscription changed",
		zap.Int64("user_id", prefs.UserID),
		zap.Bool("subscribed", subscribed),
	)

	if subscribed {
		b.sendText(message.Chat.ID, "✅ You're now subscribed to conference notifications!\n"+
			"You'll receive updates about new conferences matching your filters.\n\n"+
			"Use /filter to customize your preferences.\n"+
			"Use /unsubscribe to stop notifications.")
		return
	}
	b.sendText(message.Chat.ID, "❌ You've been unsubscribed from notifications.\n"+
		"Use /subscribe anytime to enable them again.")
}

// handleCancel ends the filter conversation without saving
func (b *Bot) handleCancel(message *tgbotapi.Message, hadConversation bool) {
	if !hadConversation {
		b.sendText(message.Chat.ID, "Nothing to cancel.")
		return
	}
	b.sendText(message.Chat.ID, "❌ Filter selection cancelled.")
}

func (b *Bot) loadPreferences(ctx context.Context, message *tgbotapi.Message) (models.UserPreferences, bool) {
	prefs, err := b.db.GetPreferences(ctx, message.From.ID)
	if err != nil {
		b.logger.Error("Failed to load preferences",
			zap.Error(err),
			zap.Int64("user_id", message.From.ID),
		)
		b.sendText(message.Chat.ID, "Sorry, I couldn't load your settings. Please try again.")
		return models.UserPreferences{}, false
	}
	return prefs, true
}
