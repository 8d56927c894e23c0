package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisTier is an optional distributed second cache tier sitting behind
// the in-process LRU (§9 "Caching key" design note extends naturally to
// a shared tier across gateway replicas; the in-process Cache remains
// the authority for §4.2's bounded/LRU/TTL semantics within one
// process). A miss on the local Cache consults RedisTier before falling
// through to the provider; a local miss that turns into a RedisTier hit
// repopulates the local entry so subsequent lookups avoid the network
// hop, mirroring the teacher's MultiLevelCache promotion behavior.
type RedisTier struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

// NewRedisTier wraps an existing redis client. ttl <= 0 falls back to
// defaultCacheTTL, matching the local Cache's default.
func NewRedisTier(client *redis.Client, ttl time.Duration) *RedisTier {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisTier{client: client, ttl: ttl, prefix: "llmgateway:cache:"}
}

// Get reads a cached LLMResponse from Redis. Any error (including a
// miss, a connection fault, or malformed stored JSON) degrades to a
// miss per §4.2/§7's "cache reads never raise" rule — the router simply
// proceeds to invoke the provider.
func (r *RedisTier) Get(ctx context.Context, key string) (LLMResponse, bool) {
	if r == nil || r.client == nil {
		return LLMResponse{}, false
	}
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if err != nil {
		return LLMResponse{}, false
	}
	var resp LLMResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return LLMResponse{}, false
	}
	return resp, true
}

// Set stores response in Redis under key with the tier's TTL. Errors are
// swallowed: a failed remote write must never fail the caller's request,
// it only loses the distributed-cache benefit for that entry.
func (r *RedisTier) Set(ctx context.Context, key string, response LLMResponse) {
	if r == nil || r.client == nil {
		return
	}
	data, err := json.Marshal(response)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.prefix+key, data, r.ttl).Err()
}

// WithRedisTier attaches a distributed second tier to c. Passing nil
// detaches it (local-only behavior, the default).
func (c *Cache) WithRedisTier(tier *RedisTier) *Cache {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.redis = tier
	return c
}

// GetWithContext is Get extended to consult the Redis tier, when
// attached, on a local miss. A Redis hit is promoted into the local LRU
// before returning so the next Get for the same key is in-process.
func (c *Cache) GetWithContext(ctx context.Context, key string) (LLMResponse, bool) {
	if resp, hit := c.Get(key); hit {
		return resp, true
	}
	c.mu.Lock()
	tier := c.redis
	c.mu.Unlock()
	if tier == nil {
		return LLMResponse{}, false
	}
	resp, hit := tier.Get(ctx, key)
	if !hit {
		return LLMResponse{}, false
	}
	c.Set(key, resp)
	return resp, true
}

// SetWithContext is Set extended to also write through to the Redis
// tier, when attached.
func (c *Cache) SetWithContext(ctx context.Context, key string, response LLMResponse) {
	c.Set(key, response)
	c.mu.Lock()
	tier := c.redis
	c.mu.Unlock()
	if tier != nil {
		tier.Set(ctx, key, response)
	}
}
