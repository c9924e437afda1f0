package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"conferencebot/internal/bot"
	"conferencebot/internal/catalog"
	"conferencebot/internal/config"
	"conferencebot/internal/discovery"
	"conferencebot/internal/notify"
	"conferencebot/internal/storage"
	"conferencebot/internal/storage/ch"
	"conferencebot/internal/storage/jsonfile"
	"conferencebot/internal/storage/stubs"
)

// App represents the application
type App struct {
	config    *config.Config
	logger    *zap.Logger
	db        storage.Storage
	catalog   *catalog.Catalog
	bot       *bot.Bot
	scheduler *notify.Scheduler
	server    *http.Server
}

// LoadEnv loads .env if it exists and reads the configuration
func LoadEnv() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// New creates and initializes a new application instance
func New(cfg *config.Config) (*App, error) {
	logger, err := config.NewLogger(cfg.LogLevel, cfg.AppEnv)
	if err != nil {
		return nil, err
	}

	app := &App{config: cfg, logger: logger}

	logger.Info("Starting Conference Bot...",
		zap.String("env", cfg.AppEnv),
		zap.String("storage", cfg.StorageBackend),
		zap.Bool("webhook_mode", cfg.WebhookMode),
	)

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, err
	}

	if err := app.initCatalog(); err != nil {
		return nil, err
	}

	// Initialize bot
	if err := app.initBot(); err != nil {
		return nil, err
	}

	if err := app.initScheduler(); err != nil {
		return nil, err
	}

	// Initialize HTTP server
	app.initHTTPServer()

	return app, nil
}

// initDatabase opens the configured preference store and loads it
func (a *App) initDatabase() error {
	var db storage.Storage
	switch a.config.StorageBackend {
	case config.BackendMemory:
		a.logger.Info("Using in-memory preference store")
		db = stubs.NewMockDB()

	case config.BackendClickHouse:
		a.logger.Info("Connecting to ClickHouse",
			zap.String("host", a.config.ClickHouseHost),
			zap.Int("port", a.config.ClickHousePort),
			zap.String("database", a.config.ClickHouseDatabase),
			zap.String("user", a.config.ClickHouseUser),
			zap.Bool("tls", a.config.ClickHouseUseTLS),
		)
		clickhouseDB, err := ch.NewClickHouseDB(
			a.config.ClickHouseHost,
			a.config.ClickHousePort,
			a.config.ClickHouseDatabase,
			a.config.ClickHouseUser,
			a.config.ClickHousePassword,
			a.config.ClickHouseUseTLS,
		)
		if err != nil {
			return fmt.Errorf("failed to connect to ClickHouse: %w", err)
		}
		db = clickhouseDB

	default:
		a.logger.Info("Using JSON preference file", zap.String("path", a.config.PreferencesFile))
		db = jsonfile.NewFileDB(a.config.PreferencesFile)
	}

	// Load persisted preferences; a corrupt store stops startup
	if err := db.Initialize(context.Background()); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	a.logger.Info("Database initialized successfully")

	a.db = db
	return nil
}

func (a *App) initCatalog() error {
	cat, err := catalog.Load(a.config.ConferencesFile)
	if err != nil {
		return fmt.Errorf("failed to load conference catalog: %w", err)
	}
	a.logger.Info("Conference catalog loaded",
		zap.String("path", a.config.ConferencesFile),
		zap.Int("conferences", cat.Len()),
	)
	a.catalog = cat
	return nil
}

// initBot initializes the Telegram bot
func (a *App) initBot() error {
	telegramBot, err := bot.NewBot(a.config.TelegramToken, a.db, a.catalog, a.config.AllowedUserIDs, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create Telegram bot: %w", err)
	}

	a.bot = telegramBot
	return nil
}

// initScheduler wires discovery and notifications to the cron scheduler
func (a *App) initScheduler() error {
	if !a.config.NotifyEnabled {
		a.logger.Info("Notifications disabled")
		return nil
	}

	client := discovery.NewClient(a.config.DiscoveryURL, a.config.DiscoveryEarlyBird, a.logger)
	job := notify.NewJob(a.catalog, client, a.db, a.bot, a.logger)

	scheduler, err := notify.NewScheduler(a.config.NotifySchedule, job, a.logger)
	if err != nil {
		return fmt.Errorf("failed to create notification scheduler: %w", err)
	}
	a.scheduler = scheduler
	return nil
}

// routes builds the handler for health checks, webhook and Mini App API
func (a *App) routes() *http.ServeMux {
	mux := http.NewServeMux()

	// Health check endpoint
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		fmt.Fprintf(w, "OK")
	})

	// Root endpoint
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		mode := "polling"
		if a.config.WebhookMode {
			mode = "webhook"
		}
		fmt.Fprintf(w, "Conference Bot is running (mode: %s, conferences: %d)", mode, a.catalog.Len())
	})

	// Webhook endpoint (only used in webhook mode)
	mux.HandleFunc("/telegram-webhook", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}

		var update tgbotapi.Update
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			a.logger.Warn("Error decoding webhook update", zap.Error(err))
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		// Process update in background to respond quickly to Telegram
		go a.bot.HandleUpdate(update)

		w.WriteHeader(http.StatusOK)
	})

	bot.NewHTTPServer(a.bot).RegisterRoutes(mux)
	return mux
}

// initHTTPServer starts the HTTP server in the background
func (a *App) initHTTPServer() {
	a.server = &http.Server{
		Addr:         ":" + a.config.Port,
		Handler:      a.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Start HTTP server in background
	go func() {
		a.logger.Info("Starting HTTP server", zap.String("port", a.config.Port))
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("HTTP server error", zap.Error(err))
		}
	}()
}

// Run starts the application and blocks until shutdown
func (a *App) Run() error {
	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// Start bot in appropriate mode
	if a.config.WebhookMode {
		a.logger.Info("Starting bot in WEBHOOK mode", zap.String("webhook_url", a.config.WebhookURL))
		if err := a.bot.StartWebhook(a.config.WebhookURL); err != nil {
			return fmt.Errorf("failed to setup webhook: %w", err)
		}
	} else {
		// Polling mode: actively poll Telegram servers
		go func() {
			if err := a.bot.Start(); err != nil {
				a.logger.Fatal("Failed to start bot", zap.Error(err))
			}
		}()
	}

	if a.scheduler != nil {
		a.scheduler.Start()
	}

	// Wait for interrupt signal
	sig := <-sigChan

	a.logger.Info("Shutting down...", zap.String("signal", sig.String()))
	return a.Shutdown()
}

// Shutdown gracefully shuts down the application
func (a *App) Shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if a.scheduler != nil {
		a.scheduler.Stop(shutdownCtx)
	}
	if !a.config.WebhookMode {
		a.bot.Stop()
	}

	// Shutdown HTTP server gracefully
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Warn("HTTP server shutdown error", zap.Error(err))
	}

	// Close database
	if err := a.db.Close(); err != nil {
		a.logger.Error("Error closing database", zap.Error(err))
		return err
	}

	a.logger.Info("Shutdown complete")
	a.logger.Sync()
	return nil
}
