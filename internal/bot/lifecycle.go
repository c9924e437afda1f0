package bot

import (
	"errors"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
)

var errNoAPI = errors.New("bot API not initialized")

// allowedUpdates limits what Telegram delivers to the two update kinds we route
var allowedUpdates = []string{"message", "callback_query"}

// Start polls Telegram for updates and blocks until Stop is called
func (b *Bot) Start() error {
	if b.api == nil {
		return errNoAPI
	}
	b.logger.Info("Starting bot in polling mode")

	// A leftover webhook makes getUpdates fail
	if _, err := b.api.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
		b.logger.Warn("Failed to delete webhook", zap.Error(err))
	}
	b.registerCommands()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60
	u.AllowedUpdates = allowedUpdates

	b.logger.Info("Waiting for updates...")
	for update := range b.api.GetUpdatesChan(u) {
		b.HandleUpdate(update)
	}
	return nil
}

// Stop ends the polling loop
func (b *Bot) Stop() {
	if b.api != nil {
		b.api.StopReceivingUpdates()
	}
}

// StartWebhook points Telegram at <baseURL>/telegram-webhook
func (b *Bot) StartWebhook(baseURL string) error {
	if b.api == nil {
		return errNoAPI
	}

	wh, err := tgbotapi.NewWebhook(baseURL + "/telegram-webhook")
	if err != nil {
		return err
	}
	wh.MaxConnections = 40
	wh.AllowedUpdates = allowedUpdates

	if _, err := b.api.Request(wh); err != nil {
		b.logger.Error("Failed to set webhook", zap.Error(err), zap.String("webhook_url", baseURL))
		return err
	}
	b.registerCommands()

	if info, err := b.api.GetWebhookInfo(); err != nil {
		b.logger.Warn("Failed to get webhook info", zap.Error(err))
	} else {
		b.logger.Info("Webhook set",
			zap.String("url", info.URL),
			zap.Int("pending_updates", info.PendingUpdateCount),
			zap.String("last_error", info.LastErrorMessage),
		)
	}
	return nil
}

// registerCommands publishes the command menu. Failure only costs the menu.
func (b *Bot) registerCommands() {
	if _, err := b.api.Request(tgbotapi.NewSetMyCommands(menuCommands...)); err != nil {
		b.logger.Warn("Failed to register bot commands", zap.Error(err))
	}
}

// HandleUpdate routes one update from polling or the webhook endpoint
func (b *Bot) HandleUpdate(update tgbotapi.Update) {
	switch {
	case update.Message != nil && update.Message.From != nil:
		msg := update.Message
		if !b.isAllowed(msg.From.ID) {
			b.rejectUser(msg.From, zap.String("text", msg.Text))
			b.sendText(msg.Chat.ID, "Sorry, you are not authorized to use this bot.")
			return
		}
		defer b.lockUser(msg.From.ID)()
		b.handleMessage(msg)

	case update.CallbackQuery != nil && update.CallbackQuery.From != nil:
		query := update.CallbackQuery
		if !b.isAllowed(query.From.ID) {
			b.rejectUser(query.From, zap.String("callback_data", query.Data))
			// Stop the client's loading spinner
			b.answerCallback(query.ID, "")
			return
		}
		defer b.lockUser(query.From.ID)()
		b.handleCallbackQuery(query)
	}
}

func (b *Bot) rejectUser(user *tgbotapi.User, field zap.Field) {
	b.logger.Warn("Unauthorized access attempt",
		zap.Int64("user_id", user.ID),
		zap.String("username", user.UserName),
		field,
	)
}
