// Package cache holds the optional redis read-through cache for product
// detail reads. Every write that touches a product (catalog edit, checkout
// deduction, cancellation restock) invalidates its entry.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thalir/agrimarket/internal/models"
)

var ErrCacheMiss = errors.New("product not in cache")

type ProductCache struct {
	client  *redis.Client
	baseTTL time.Duration
}

// NewProductCache wraps client; a nil client yields a disabled cache whose
// methods are safe no-ops.
func NewProductCache(client *redis.Client) *ProductCache {
	if client == nil {
		return nil
	}
	return &ProductCache{
		client:  client,
		baseTTL: 15 * time.Minute,
	}
}

// Get returns the cached product for one marketplace's catalog. Keys are
// scoped per marketplace so an entry cached through one market's route can
// never answer for the other.
func (c *ProductCache) Get(ctx context.Context, mkt models.Marketplace, productID int64) (*models.Product, error) {
	if c == nil {
		return nil, ErrCacheMiss
	}

	data, err := c.client.Get(ctx, productKey(mkt, productID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var product models.Product
	if err := json.Unmarshal(data, &product); err != nil {
		return nil, fmt.Errorf("unmarshal cached product: %w", err)
	}

	return &product, nil
}

func (c *ProductCache) Set(ctx context.Context, product *models.Product) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(product)
	if err != nil {
		return fmt.Errorf("marshal product: %w", err)
	}

	// TTL jitter spreads out expiry so a popular page doesn't refill at once.
	ttl := c.baseTTL + time.Duration(rand.Intn(5))*time.Minute
	if err := c.client.Set(ctx, productKey(product.Marketplace, product.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}

	return nil
}

func (c *ProductCache) Invalidate(ctx context.Context, mkt models.Marketplace, productIDs ...int64) error {
	if c == nil || len(productIDs) == 0 {
		return nil
	}

	keys := make([]string, 0, len(productIDs))
	for _, id := range productIDs {
		keys = append(keys, productKey(mkt, id))
	}

	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis delete: %w", err)
	}

	return nil
}

func productKey(mkt models.Marketplace, id int64) string {
	return fmt.Sprintf("product:%s:%d", mkt, id)
}
