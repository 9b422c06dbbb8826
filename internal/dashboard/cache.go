package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
)

const (
	cacheVersionKey = "diptrack:dashboard:version"
	// BumpChannel carries version bumps to other processes.
	BumpChannel = "diptrack.dashboard.bump"
)

// Cache stores dashboard read models in Redis under a versioned key. Writers
// call Bump to invalidate every cached entry at once.
type Cache struct {
	client  *redis.Client
	ttl     time.Duration
	lookups *prometheus.CounterVec
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Instrument registers a hit/miss counter for FetchJSON lookups.
func (c *Cache) Instrument(reg prometheus.Registerer) error {
	if c == nil {
		return nil
	}
	lookups := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "diptrack_dashboard_cache_lookups_total",
		Help: "Dashboard cache lookups by result.",
	}, []string{"result"})
	if err := reg.Register(lookups); err != nil {
		return err
	}
	c.lookups = lookups
	return nil
}

func (c *Cache) observe(result string) {
	if c != nil && c.lookups != nil {
		c.lookups.WithLabelValues(result).Inc()
	}
}

// Version returns the current cache version, initialising when missing.
func (c *Cache) Version(ctx context.Context) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, cacheVersionKey).Int64()
	if errors.Is(err, redis.Nil) {
		// SetNX so two first readers agree on the initial version.
		if err := c.client.SetNX(ctx, cacheVersionKey, 1, 0).Err(); err != nil {
			return 0, err
		}
		return c.client.Get(ctx, cacheVersionKey).Int64()
	}
	if err != nil {
		return 0, err
	}
	return ver, nil
}

// BuildKey composes the cache key with the current version.
func (c *Cache) BuildKey(ctx context.Context, parts ...string) (string, error) {
	joined := strings.Join(append([]string{"diptrack", "dashboard"}, parts...), ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value into dest or populates it using loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error {
	if loader == nil {
		return errors.New("dashboard cache: loader required")
	}
	if c != nil && c.client != nil {
		payload, err := c.client.Get(ctx, key).Bytes()
		if err == nil {
			c.observe("hit")
			return json.Unmarshal(payload, dest)
		}
		if !errors.Is(err, redis.Nil) {
			c.observe("error")
			return err
		}
		c.observe("miss")
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if c != nil && c.client != nil {
		if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
			return err
		}
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the cache by incrementing the version and publishing it.
func (c *Cache) Bump(ctx context.Context) error {
	if c == nil || c.client == nil {
		return nil
	}
	ver, err := c.client.Incr(ctx, cacheVersionKey).Result()
	if err != nil {
		return err
	}
	return c.client.Publish(ctx, BumpChannel, strconv.FormatInt(ver, 10)).Err()
}

// Subscribe calls onBump for every published version until ctx is done.
func (c *Cache) Subscribe(ctx context.Context, onBump func(version int64)) error {
	if c == nil || c.client == nil {
		return nil
	}
	pubsub := c.client.Subscribe(ctx, BumpChannel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return err
	}
	go func() {
		defer func() { _ = pubsub.Close() }()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				if ver, err := strconv.ParseInt(msg.Payload, 10, 64); err == nil {
					onBump(ver)
				}
			}
		}
	}()
	return nil
}
