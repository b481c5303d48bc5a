package infra

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"github.com/calmly-app/calmly/internal/config"
)

// NewMongoClient connects to MongoDB with the user store pool settings and
// verifies connectivity.
func NewMongoClient(ctx context.Context, cfg config.Config) (*mongo.Client, error) {
	if cfg.MongoURL == "" {
		return nil, fmt.Errorf("mongo url is required")
	}

	opts := options.Client().ApplyURI(cfg.MongoURL)
	if cfg.Database.MaxConns > 0 {
		opts.SetMaxPoolSize(uint64(cfg.Database.MaxConns))
	}
	if cfg.Database.ConnectTimeout > 0 {
		opts.SetConnectTimeout(cfg.Database.ConnectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	return client, nil
}
