package ch

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"time"

	"conferencebot/internal/models"

	"github.com/ClickHouse/clickhouse-go/v2"
)

type ClickHouseDB struct {
	conn clickhouse.Conn
}

// Options builds the native protocol options shared by NewClickHouseDB and OpenSQL
func Options(host string, port int, database, user, password string, useTLS bool) *clickhouse.Options {
	addr := fmt.Sprintf("%s:%d", host, port)

	options := &clickhouse.Options{
		Addr:     []string{addr},
		Protocol: clickhouse.Native,
		Auth: clickhouse.Auth{
			Database: database,
			Username: user,
			Password: password,
		},
	}

	// Configure TLS if enabled
	if useTLS {
		options.TLS = &tls.Config{
			InsecureSkipVerify: false,
		}
	}
	return options
}

// OpenSQL returns a database/sql handle, used by goose migrations
func OpenSQL(options *clickhouse.Options) *sql.DB {
	return clickhouse.OpenDB(options)
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(host string, port int, database, user, password string, useTLS bool) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(Options(host, port, database, user, password, useTLS))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	// Test the connection
	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// Initialize is a no-op - tables are managed via migrations
func (db *ClickHouseDB) Initialize(ctx context.Context) error {
	return nil
}

// GetPreferences returns the latest stored record or the default one
func (db *ClickHouseDB) GetPreferences(ctx context.Context, userID int64) (models.UserPreferences, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT user_id, all_countries, countries, all_topics, topics, subscribed
		FROM user_preferences FINAL
		WHERE user_id = ?`, userID)
	if err != nil {
		return models.UserPreferences{}, fmt.Errorf("failed to get preferences: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return models.UserPreferences{}, fmt.Errorf("failed to get preferences: %w", err)
		}
		return models.DefaultPreferences(userID), nil
	}

	prefs, err := scanPreferences(rows)
	if err != nil {
		return models.UserPreferences{}, err
	}
	return prefs, nil
}

// SavePreferences inserts a new version of the user's row
func (db *ClickHouseDB) SavePreferences(ctx context.Context, prefs models.UserPreferences) error {
	countries := prefs.Countries.Values()
	if countries == nil {
		countries = []string{}
	}
	topics := prefs.Topics.Values()
	if topics == nil {
		topics = []string{}
	}

	err := db.conn.Exec(ctx, `
		INSERT INTO user_preferences (user_id, all_countries, countries, all_topics, topics, subscribed, version)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		prefs.UserID, prefs.Countries.IsAny(), countries, prefs.Topics.IsAny(), topics, prefs.Subscribed,
		uint64(time.Now().UnixNano()))
	if err != nil {
		return fmt.Errorf("failed to save preferences: %w", err)
	}
	return nil
}

// ListSubscribed returns subscribed users ordered by ID
func (db *ClickHouseDB) ListSubscribed(ctx context.Context) ([]models.UserPreferences, error) {
	rows, err := db.conn.Query(ctx, `
		SELECT user_id, all_countries, countries, all_topics, topics, subscribed
		FROM user_preferences FINAL
		WHERE subscribed = true
		ORDER BY user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscribed users: %w", err)
	}
	defer rows.Close()

	var subscribed []models.UserPreferences
	for rows.Next() {
		prefs, err := scanPreferences(rows)
		if err != nil {
			return nil, err
		}
		subscribed = append(subscribed, prefs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list subscribed users: %w", err)
	}
	return subscribed, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPreferences(row scanner) (models.UserPreferences, error) {
	var (
		prefs                   models.UserPreferences
		allCountries, allTopics bool
		countries, topics       []string
	)
	if err := row.Scan(&prefs.UserID, &allCountries, &countries, &allTopics, &topics, &prefs.Subscribed); err != nil {
		return models.UserPreferences{}, fmt.Errorf("failed to scan preferences: %w", err)
	}

	prefs.Countries = models.Specific(countries...)
	if allCountries {
		prefs.Countries = models.AnySelection()
	}
	prefs.Topics = models.Specific(topics...)
	if allTopics {
		prefs.Topics = models.AnySelection()
	}
	return prefs, nil
}

// Close closes the database connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}
