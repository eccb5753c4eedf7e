package cache

import (
	"context"
	"errors"
	"testing"

	"github.com/thalir/agrimarket/internal/models"
)

func TestProductKeyIsScopedPerMarketplace(t *testing.T) {
	fertilizer := productKey(models.MarketplaceFertilizer, 7)
	farm := productKey(models.MarketplaceFarm, 7)

	if fertilizer == farm {
		t.Fatalf("Expected distinct keys per marketplace, both are %q", fertilizer)
	}
	if fertilizer != "product:fertilizer:7" {
		t.Errorf("Expected key product:fertilizer:7, got %q", fertilizer)
	}
	if farm != "product:farm:7" {
		t.Errorf("Expected key product:farm:7, got %q", farm)
	}
}

func TestDisabledCacheIsSafe(t *testing.T) {
	ctx := context.Background()
	cache := NewProductCache(nil)

	if _, err := cache.Get(ctx, models.MarketplaceFarm, 1); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss from a disabled cache, got %v", err)
	}
	if err := cache.Set(ctx, &models.Product{ID: 1, Marketplace: models.MarketplaceFarm}); err != nil {
		t.Errorf("Expected Set to be a no-op, got %v", err)
	}
	if err := cache.Invalidate(ctx, models.MarketplaceFarm, 1); err != nil {
		t.Errorf("Expected Invalidate to be a no-op, got %v", err)
	}
}
