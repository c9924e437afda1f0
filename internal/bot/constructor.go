package bot

import (
	"fmt"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/storage"
)

// NewBot creates a new Telegram bot
func NewBot(token string, db storage.Storage, cat *catalog.Catalog, allowedUserIDs []int64, logger *zap.Logger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Failed to create bot API", zap.Error(err))
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	allowedUsers := make(map[int64]bool)
	for _, id := range allowedUserIDs {
		allowedUsers[id] = true
	}

	logger.Info("Bot created",
		zap.String("bot_username", api.Self.UserName),
		zap.Int("allowed_users", len(allowedUsers)),
	)

	return &Bot{
		api:          api,
		sender:       api,
		token:        token,
		db:           db,
		catalog:      cat,
		allowedUsers: allowedUsers,
		states:       make(map[int64]*ConversationState),
		logger:       logger,
		now:          time.Now,
	}, nil
}

// lockUser holds the user's lock until the returned func is called.
// Handlers read, modify and save a whole preference record, so two updates
// of one user must not interleave.
func (b *Bot) lockUser(userID int64) func() {
	v, _ := b.userLocks.LoadOrStore(userID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// isAllowed reports whether userID may talk to the bot
func (b *Bot) isAllowed(userID int64) bool {
	return len(b.allowedUsers) == 0 || b.allowedUsers[userID]
}

func (b *Bot) clock() time.Time {
	if b.now == nil {
		return time.Now()
	}
	return b.now()
}

// getState returns a copy of the user's conversation; handlers store changes back with setState
func (b *Bot) getState(userID int64) (ConversationState, bool) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	state, ok := b.states[userID]
	if !ok {
		return ConversationState{}, false
	}
	return *state, true
}

func (b *Bot) setState(userID int64, state ConversationState) {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	if state.Step == stepComplete {
		delete(b.states, userID)
		return
	}
	b.states[userID] = &state
}

// clearState drops the user's conversation and reports whether one was active
func (b *Bot) clearState(userID int64) bool {
	b.statesMu.Lock()
	defer b.statesMu.Unlock()
	state, ok := b.states[userID]
	delete(b.states, userID)
	return ok && state.Step != stepComplete
}
