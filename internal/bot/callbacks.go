package bot

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/models"
)

// Callback data is "<prefix><value>", with "all" and "done" as reserved values
const (
	countryPrefix = "country:"
	topicPrefix   = "topic:"
	callbackAll   = models.AllValue
	callbackDone  = "done"
)

const (
	countryPrompt = "🌍 Select Countries (choose one or more), then press Done:"
	topicPrompt   = "🎯 Select Directions (choose one or more), then press Done:"
)

// selectionKeyboard lays options out in two columns followed by All and Done
func selectionKeyboard(prefix string, options []catalog.Option, allLabel string, selected models.Selection) tgbotapi.InlineKeyboardMarkup {
	var rows [][]tgbotapi.InlineKeyboardButton
	var currentRow []tgbotapi.InlineKeyboardButton
	for i, o := range options {
		label := o.Label
		if !selected.IsAny() && selected.Contains(o.Value) {
			label = "✔️ " + label
		}
		currentRow = append(currentRow, tgbotapi.NewInlineKeyboardButtonData(label, prefix+o.Value))

		if len(currentRow) == 2 || i == len(options)-1 {
			rows = append(rows, currentRow)
			currentRow = nil
		}
	}

	if selected.IsAny() {
		allLabel = "✔️ " + allLabel
	}
	rows = append(rows,
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData(allLabel, prefix+callbackAll)),
		tgbotapi.NewInlineKeyboardRow(tgbotapi.NewInlineKeyboardButtonData("✅ Done", prefix+callbackDone)),
	)
	return tgbotapi.NewInlineKeyboardMarkup(rows...)
}

// applyChoice updates a working selection for one button press
func applyChoice(sel models.Selection, options []catalog.Option, value string) (models.Selection, bool) {
	if value == callbackAll {
		return models.AnySelection(), true
	}
	o, ok := catalog.FindOption(options, value)
	if !ok {
		return sel, false
	}
	return sel.Toggle(o.Value), true
}

// handleCountryCallback processes the country step; returns the toast text
func (b *Bot) handleCountryCallback(query *tgbotapi.CallbackQuery, state ConversationState) string {
	if state.Step != stepCountry {
		return ""
	}
	value := strings.TrimPrefix(query.Data, countryPrefix)

	if value == callbackDone {
		if state.Countries.Empty() {
			state.Countries = models.AnySelection()
		}
		state.Step = stepTopic
		b.setState(query.From.ID, state)

		b.editMessageAndKeyboard(query, topicPrompt,
			selectionKeyboard(topicPrefix, catalog.Topics, catalog.AllTopicsLabel, state.Topics))
		return ""
	}

	countries, ok := applyChoice(state.Countries, catalog.Countries, value)
	if !ok {
		return ""
	}
	state.Countries = countries
	b.setState(query.From.ID, state)

	b.editKeyboard(query, selectionKeyboard(countryPrefix, catalog.Countries, catalog.AllCountriesLabel, countries))
	return "Selected: " + catalog.Labels(catalog.Countries, countries, catalog.AllCountriesLabel)
}

// handleTopicCallback processes the topic step and commits the filters on Done
func (b *Bot) handleTopicCallback(ctx context.Context, query *tgbotapi.CallbackQuery, state ConversationState) string {
	if state.Step != stepTopic {
		return ""
	}
	value := strings.TrimPrefix(query.Data, topicPrefix)

	if value == callbackDone {
		if state.Topics.Empty() {
			state.Topics = models.AnySelection()
		}
		state.Step = stepComplete
		b.setState(query.From.ID, state)

		b.commitFilters(ctx, query, state)
		return ""
	}

	topics, ok := applyChoice(state.Topics, catalog.Topics, value)
	if !ok {
		return ""
	}
	state.Topics = topics
	b.setState(query.From.ID, state)

	b.editKeyboard(query, selectionKeyboard(topicPrefix, catalog.Topics, catalog.AllTopicsLabel, topics))
	return "Selected: " + catalog.Labels(catalog.Topics, topics, catalog.AllTopicsLabel)
}

// commitFilters stores both dimensions, keeping the subscription flag
func (b *Bot) commitFilters(ctx context.Context, query *tgbotapi.CallbackQuery, state ConversationState) {
	userID := query.From.ID

	prefs, err := b.db.GetPreferences(ctx, userID)
	if err == nil {
		prefs.Countries = state.Countries
		prefs.Topics = state.Topics
		err = b.db.SavePreferences(ctx, prefs)
	}
	if err != nil {
		b.logger.Error("Failed to save filters",
			zap.Error(err),
			zap.Int64("user_id", userID),
		)
		b.editMessage(query, "Sorry, I couldn't save your filters. Please try /filter again.")
		return
	}

	b.logger.Info("Filters saved",
		zap.Int64("user_id", userID),
		zap.Stringer("countries", prefs.Countries),
		zap.Stringer("topics", prefs.Topics),
	)

	text := fmt.Sprintf("✅ Filters Saved!\n\n🌍 Countries: %s\n🎯 Directions: %s\n\nUse /list to see matching conferences!",
		catalog.Labels(catalog.Countries, prefs.Countries, catalog.AllCountriesLabel),
		catalog.Labels(catalog.Topics, prefs.Topics, catalog.AllTopicsLabel),
	)
	b.editMessage(query, text)
}

// editMessage replaces the text of the message the button belongs to, dropping its keyboard
func (b *Bot) editMessage(query *tgbotapi.CallbackQuery, text string) {
	if query.Message == nil {
		return
	}
	b.sendMessage(tgbotapi.NewEditMessageText(query.Message.Chat.ID, query.Message.MessageID, text))
}

func (b *Bot) editMessageAndKeyboard(query *tgbotapi.CallbackQuery, text string, markup tgbotapi.InlineKeyboardMarkup) {
	if query.Message == nil {
		return
	}
	b.sendMessage(tgbotapi.NewEditMessageTextAndMarkup(query.Message.Chat.ID, query.Message.MessageID, text, markup))
}

func (b *Bot) editKeyboard(query *tgbotapi.CallbackQuery, markup tgbotapi.InlineKeyboardMarkup) {
	if query.Message == nil {
		return
	}
	b.sendMessage(tgbotapi.NewEditMessageReplyMarkup(query.Message.Chat.ID, query.Message.MessageID, markup))
}
