package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniredisTier(t *testing.T) (*RedisTier, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTier(client, time.Minute), mr
}

func TestRedisTier_SetGetRoundTrip(t *testing.T) {
	t.Parallel()

	tier, _ := newMiniredisTier(t)
	ctx := context.Background()

	if _, hit := tier.Get(ctx, "k"); hit {
		t.Fatalf("expected miss before Set")
	}
	tier.Set(ctx, "k", LLMResponse{OutputText: "hello"})

	got, hit := tier.Get(ctx, "k")
	if !hit {
		t.Fatalf("expected hit after Set")
	}
	if got.OutputText != "hello" {
		t.Fatalf("unexpected response: %+v", got)
	}
}

func TestRedisTier_ExpiredEntryMisses(t *testing.T) {
	t.Parallel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("starting miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	tier := NewRedisTier(client, time.Millisecond)

	ctx := context.Background()
	tier.Set(ctx, "k", LLMResponse{OutputText: "stale"})
	mr.FastForward(10 * time.Millisecond)

	if _, hit := tier.Get(ctx, "k"); hit {
		t.Fatalf("expected expired entry to miss")
	}
}

func TestCache_GetWithContext_PromotesRedisHitToLocal(t *testing.T) {
	t.Parallel()

	tier, _ := newMiniredisTier(t)
	local := NewCache(10, time.Minute)
	local.WithRedisTier(tier)

	ctx := context.Background()
	key := "k"

	// Populate only the remote tier, bypassing the local Cache.
	tier.Set(ctx, key, LLMResponse{OutputText: "remote"})

	if _, hit := local.Get(key); hit {
		t.Fatalf("expected local miss before any GetWithContext call")
	}

	got, hit := local.GetWithContext(ctx, key)
	if !hit {
		t.Fatalf("expected GetWithContext to hit via the redis tier")
	}
	if got.OutputText != "remote" {
		t.Fatalf("unexpected response: %+v", got)
	}

	// The remote hit should have been promoted into the local LRU.
	if cached, hit := local.Get(key); !hit || cached.OutputText != "remote" {
		t.Fatalf("expected remote hit to be promoted to local cache, got hit=%v cached=%+v", hit, cached)
	}
}

func TestCache_SetWithContext_WritesThroughToRedis(t *testing.T) {
	t.Parallel()

	tier, _ := newMiniredisTier(t)
	local := NewCache(10, time.Minute)
	local.WithRedisTier(tier)

	ctx := context.Background()
	key := "k"
	local.SetWithContext(ctx, key, LLMResponse{OutputText: "both"})

	if got, hit := tier.Get(ctx, key); !hit || got.OutputText != "both" {
		t.Fatalf("expected SetWithContext to also write through to redis, got hit=%v got=%+v", hit, got)
	}
}

func TestCache_GetWithContext_NoRedisTierIsLocalOnly(t *testing.T) {
	t.Parallel()

	local := NewCache(10, time.Minute)
	ctx := context.Background()

	if _, hit := local.GetWithContext(ctx, "k"); hit {
		t.Fatalf("expected miss with no redis tier attached")
	}
}
