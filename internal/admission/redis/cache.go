package redis

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

const codeKeyPrefix = "admission_code:"

// Cache maps scanned codes to ticket IDs so the hot door-scan path skips the
// OR-query against the tickets table. It only caches identity, never state;
// state is always re-read from the store.
type Cache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{
		Client: client,
		TTL:    cacheTTLFromEnv(),
	}
}

// cacheTTLFromEnv reads ADMISSION_CACHE_TTL_MINUTES, defaulting to 10 minutes.
func cacheTTLFromEnv() time.Duration {
	defaultTTL := 10 * time.Minute
	raw := os.Getenv("ADMISSION_CACHE_TTL_MINUTES")
	if raw == "" {
		return defaultTTL
	}
	minutes, err := strconv.Atoi(raw)
	if err != nil || minutes <= 0 {
		return defaultTTL
	}
	return time.Duration(minutes) * time.Minute
}

func (c *Cache) GetTicketID(ctx context.Context, code string) (string, error) {
	val, err := c.Client.Get(ctx, codeKeyPrefix+code).Result()
	if err == redis.Nil {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("code cache get: %w", err)
	}
	return val, nil
}

func (c *Cache) SetTicketID(ctx context.Context, code, ticketID string) error {
	return c.Client.Set(ctx, codeKeyPrefix+code, ticketID, c.TTL).Err()
}

func (c *Cache) Forget(ctx context.Context, code string) error {
	return c.Client.Del(ctx, codeKeyPrefix+code).Err()
}
