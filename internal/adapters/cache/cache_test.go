package cache

import (
	"context"
	"testing"
	"time"

	"github.com/skillforge/marketplace/internal/ports"
)

func TestNewNoopCacheSatisfiesCachePort(t *testing.T) {
	t.Parallel()

	var c ports.Cache = NewNoopCache()

	if err := c.Set(context.Background(), "k", "v", time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, err := c.Get(context.Background(), "k")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "" {
		t.Fatalf("noop cache must not retain values, got %q", val)
	}
	if err := c.Delete(context.Background(), "k"); err != nil {
		t.Fatalf("delete: %v", err)
	}
}
