// Command conferencebot-dev runs the bot against a throwaway ClickHouse
// container with the schema already applied.
package main

import (
	"context"
	"fmt"
	"log"

	"github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"conferencebot/internal/app"
	"conferencebot/internal/config"
	"conferencebot/internal/storage/ch"
	"conferencebot/migrations"
)

const (
	image       = "clickhouse/clickhouse-server:24.3.3.102-alpine"
	devUser     = "default"
	devPassword = "devpassword"
	devDatabase = "default"
)

type devClickHouse struct {
	container *clickhouse.ClickHouseContainer
	host      string
	port      int
}

// startClickHouse runs the container and migrates it
func startClickHouse(ctx context.Context) (*devClickHouse, error) {
	container, err := clickhouse.Run(ctx, image,
		clickhouse.WithUsername(devUser),
		clickhouse.WithPassword(devPassword),
		clickhouse.WithDatabase(devDatabase),
	)
	if err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}
	dev := &devClickHouse{container: container}

	if dev.host, err = container.Host(ctx); err != nil {
		dev.stop(ctx)
		return nil, fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "9000/tcp")
	if err != nil {
		dev.stop(ctx)
		return nil, fmt.Errorf("container port: %w", err)
	}
	dev.port = port.Int()

	db := ch.OpenSQL(ch.Options(dev.host, dev.port, devDatabase, devUser, devPassword, false))
	defer db.Close()
	if err := migrations.Up(db); err != nil {
		dev.stop(ctx)
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return dev, nil
}

func (d *devClickHouse) stop(ctx context.Context) {
	log.Println("Stopping ClickHouse container...")
	if err := d.container.Terminate(ctx); err != nil {
		log.Printf("Failed to terminate container: %v", err)
	}
}

// apply points cfg at the container
func (d *devClickHouse) apply(cfg *config.Config) {
	cfg.StorageBackend = config.BackendClickHouse
	cfg.ClickHouseHost = d.host
	cfg.ClickHousePort = d.port
	cfg.ClickHouseDatabase = devDatabase
	cfg.ClickHouseUser = devUser
	cfg.ClickHousePassword = devPassword
	cfg.ClickHouseUseTLS = false
	cfg.WebhookMode = false
}

func main() {
	ctx := context.Background()

	// Read config first so a missing token fails before Docker work starts
	cfg, err := app.LoadEnv()
	if err != nil {
		log.Fatalf("%v (set TELEGRAM_BOT_TOKEN in .env or the environment)", err)
	}
	if cfg.LogLevel == "info" {
		cfg.LogLevel = "debug"
	}

	log.Println("Starting ClickHouse testcontainer...")
	dev, err := startClickHouse(ctx)
	if err != nil {
		log.Fatalf("Failed to prepare ClickHouse: %v", err)
	}
	defer dev.stop(ctx)
	log.Printf("ClickHouse ready at %s:%d", dev.host, dev.port)

	dev.apply(cfg)

	application, err := app.New(cfg)
	if err != nil {
		log.Printf("Failed to create application: %v", err)
		return
	}

	// Run blocks until SIGINT/SIGTERM
	if err := application.Run(); err != nil {
		log.Printf("Application error: %v", err)
	}
}
