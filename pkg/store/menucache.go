package store

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tablevox/tablevox/pkg/core/menu"
)

// MenuSource loads a dish catalog; satisfied by *Store.
type MenuSource interface {
	LoadMenu(ctx context.Context, restaurantID string) ([]menu.Dish, error)
}

// MenuCache is a read-through Redis cache in front of a MenuSource. Every
// cache failure degrades to a source read with a log line; the cache can
// never make the menu unavailable.
type MenuCache struct {
	client *redis.Client
	source MenuSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewMenuCache(client *redis.Client, source MenuSource, ttl time.Duration, logger *slog.Logger) *MenuCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MenuCache{client: client, source: source, ttl: ttl, logger: logger}
}

func menuKey(restaurantID string) string {
	return "tablevox:menu:" + restaurantID
}

// LoadMenu returns the cached catalog when present, otherwise reads the
// source and fills the cache.
func (c *MenuCache) LoadMenu(ctx context.Context, restaurantID string) ([]menu.Dish, error) {
	key := menuKey(restaurantID)

	raw, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var dishes []menu.Dish
		if jsonErr := json.Unmarshal(raw, &dishes); jsonErr == nil {
			return dishes, nil
		}
		c.logger.Warn("menu cache entry unreadable, rereading source", "restaurant_id", restaurantID)
	} else if !errors.Is(err, redis.Nil) {
		c.logger.Warn("menu cache read failed", "restaurant_id", restaurantID, "error", err)
	}

	dishes, err := c.source.LoadMenu(ctx, restaurantID)
	if err != nil {
		return nil, err
	}

	if raw, err := json.Marshal(dishes); err == nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			c.logger.Warn("menu cache write failed", "restaurant_id", restaurantID, "error", err)
		}
	}
	return dishes, nil
}

// Invalidate drops a restaurant's cached catalog.
func (c *MenuCache) Invalidate(ctx context.Context, restaurantID string) error {
	return c.client.Del(ctx, menuKey(restaurantID)).Err()
}

// Ping reports whether Redis is reachable.
func (c *MenuCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *MenuCache) Close() error {
	return c.client.Close()
}
