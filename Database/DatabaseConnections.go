package Database

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/meilisearch/meilisearch-go"
	log "github.com/sirupsen/logrus"
)

func ConnectMeilisearch(host string, apiKey string) (*meilisearch.Client, error) {
	client := meilisearch.NewClient(meilisearch.ClientConfig{
		Host:   host,
		APIKey: apiKey,
	})

	if !client.IsHealthy() {
		return nil, fmt.Errorf("meilisearch at %s is not healthy", host)
	}

	log.Debug("Meili client is healthy and initialized")
	return client, nil
}

func ConnectRedis(ctx context.Context, addr string, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis at %s is not healthy: %w", addr, err)
	}

	log.Debug("Redis client is healthy and initialized")
	return client, nil
}
