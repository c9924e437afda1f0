package bot

import (
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"conferencebot/internal/catalog"
	"conferencebot/internal/models"
	"conferencebot/internal/storage"
)

// Conversation steps
const (
	stepCountry  = 1
	stepTopic    = 2
	stepComplete = -1
)

// messageSender is the part of the Telegram API the handlers use
type messageSender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// Bot represents the Telegram bot wrapper
type Bot struct {
	api          *tgbotapi.BotAPI
	sender       messageSender
	token        string
	db           storage.Storage
	catalog      *catalog.Catalog
	allowedUsers map[int64]bool // empty means everyone
	states       map[int64]*ConversationState
	statesMu     sync.Mutex
	userLocks    sync.Map // int64 -> *sync.Mutex, serializes updates of one user
	logger       *zap.Logger
	now          func() time.Time
}

// ConversationState tracks the /filter conversation of one user
type ConversationState struct {
	Command   string
	Step      int
	Countries models.Selection
	Topics    models.Selection
}
