package bot

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// handleConversation handles free text sent while a conversation is open.
// The filter conversation is driven by buttons only.
func (b *Bot) handleConversation(message *tgbotapi.Message, state ConversationState) {
	switch state.Command {
	case "filter":
		prompt := countryPrompt
		if state.Step == stepTopic {
			prompt = topicPrompt
		}
		b.sendText(message.Chat.ID, "Please use the buttons in the message above.\n\n"+prompt+"\n\nSend /cancel to stop.")
	}
}
