package stats

import (
	"fmt"

	"github.com/redis/go-redis/v9"
)

// NewRedis creates a new Redis-backed stats repository with default configuration
func NewRedis(client redis.UniversalClient) Repository {
	return NewRedisRepository(&RedisRepoConfig{
		Client:   client,
		LogLimit: defaultLogLimit,
	})
}

// NewRedisFromURL parses a redis:// URL and returns the client with a
// repository bound to it. The caller owns the client.
func NewRedisFromURL(url string, logLimit int64) (*redis.Client, Repository, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	return client, NewRedisRepository(&RedisRepoConfig{
		Client:   client,
		LogLimit: logLimit,
	}), nil
}
