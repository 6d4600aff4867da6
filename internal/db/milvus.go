package db

import (
	"context"
	"fmt"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
)

// MilvusConfig holds configuration for a Milvus connection
type MilvusConfig struct {
	Address  string
	Username string
	Password string
	Database string
	UseTLS   bool
	Timeout  time.Duration
}

// NewMilvusClient dials Milvus. The SDK connects eagerly, so an unreachable
// server surfaces here rather than on first use.
func NewMilvusClient(ctx context.Context, config MilvusConfig) (client.Client, error) {
	if config.Address == "" {
		config.Address = "localhost:19530"
	}
	if config.Database == "" {
		config.Database = "default"
	}
	if config.Timeout == 0 {
		config.Timeout = 10 * time.Second
	}

	dialCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	c, err := client.NewClient(dialCtx, client.Config{
		Address:       config.Address,
		DBName:        config.Database,
		Username:      config.Username,
		Password:      config.Password,
		EnableTLSAuth: config.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}
	return c, nil
}
