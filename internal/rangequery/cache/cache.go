// Package cache adds an optional Redis-backed result cache in front
// of the Range Query Driver, keyed on (source, target, start, window).
// Range queries are the most expensive operation in spec.md section
// 4.5 and, per the ordering guarantees in section 5, the most
// cacheable: given an unchanged Store, a range query is deterministic.
// Grounded on drobiAlex-wabus-backend's internal/cache/redis.go
// (gzip+json blob get/set with TTL, slog logging of cache ops).
package cache

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/antigravity/transitraptor/internal/model"
)

// Cache wraps a redis client with the journey-set get/set operations
// the range query driver needs. A Store replacement (feed refresh)
// invalidates the cache by deleting every key under the cache's fixed
// prefix (InvalidateAll), since cached results are indexed only by
// query parameters, not by a feed generation id.
type Cache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	logger *slog.Logger
}

func New(addr, password string, db int, ttl time.Duration, logger *slog.Logger) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		client: client,
		prefix: "transitraptor:range:",
		ttl:    ttl,
		logger: logger.With("component", "rangequery_cache"),
	}, nil
}

func (c *Cache) Close() error {
	return c.client.Close()
}

func Key(source, target string, start, window model.Seconds) string {
	return fmt.Sprintf("%s:%s:%d:%d", source, target, start, window)
}

func (c *Cache) key(k string) string {
	return c.prefix + k
}

// Get returns a previously cached journey set, and whether it was
// found. A cache-layer error is logged and treated as a miss: a
// range query must still succeed when Redis is unavailable.
func (c *Cache) Get(ctx context.Context, key string) ([]model.Journey, bool) {
	start := time.Now()
	compressed, err := c.client.Get(ctx, c.key(key)).Bytes()
	if err == redis.Nil {
		c.logger.Debug("cache miss", "key", key)
		return nil, false
	}
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	data, err := gunzip(compressed)
	if err != nil {
		c.logger.Warn("cache decompress failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	var journeys []model.Journey
	if err := json.Unmarshal(data, &journeys); err != nil {
		c.logger.Warn("cache decode failed, treating as miss", "key", key, "error", err)
		return nil, false
	}

	c.logger.Debug("cache hit", "key", key, "journeys", len(journeys), "duration_ms", time.Since(start).Milliseconds())
	return journeys, true
}

// Set stores a journey set under key, compressed, with the cache's
// configured TTL.
func (c *Cache) Set(ctx context.Context, key string, journeys []model.Journey) {
	data, err := json.Marshal(journeys)
	if err != nil {
		c.logger.Error("cache encode failed", "key", key, "error", err)
		return
	}

	compressed, err := gzipCompress(data)
	if err != nil {
		c.logger.Error("cache compress failed", "key", key, "error", err)
		return
	}

	if err := c.client.Set(ctx, c.key(key), compressed, c.ttl).Err(); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
		return
	}
	c.logger.Debug("cache set", "key", key, "size_bytes", len(compressed), "ttl", c.ttl)
}

// InvalidateAll drops every cached range result, called after a feed
// refresh swaps the Store (see internal/feedrefresh).
func (c *Cache) InvalidateAll(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, c.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		if err := c.client.Del(ctx, iter.Val()).Err(); err != nil {
			return err
		}
	}
	return iter.Err()
}

func gzipCompress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(data); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzip(data []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	return io.ReadAll(gz)
}
