package gateway

import (
	"testing"
	"time"

	"github.com/arclight/llmgateway/types"
)

func TestCache_SetGetHit(t *testing.T) {
	t.Parallel()

	c := NewCache(10, time.Minute)
	key := CacheKey("openai", "gpt-4o", []types.Message{types.NewUserMessage("hi")})

	if _, hit := c.Get(key); hit {
		t.Fatalf("expected miss before Set")
	}
	c.Set(key, LLMResponse{OutputText: "hello"})
	got, hit := c.Get(key)
	if !hit {
		t.Fatalf("expected hit after Set")
	}
	if got.OutputText != "hello" {
		t.Fatalf("unexpected cached response: %+v", got)
	}
}

func TestCache_ExpiredEntryIsEvictedOnRead(t *testing.T) {
	t.Parallel()

	c := NewCache(10, time.Millisecond)
	key := "k"
	c.Set(key, LLMResponse{OutputText: "stale"})
	time.Sleep(5 * time.Millisecond)

	if _, hit := c.Get(key); hit {
		t.Fatalf("expected expired entry to miss")
	}
	if c.Len() != 0 {
		t.Fatalf("expected expired entry to be removed from the map, len=%d", c.Len())
	}
}

func TestCache_EvictsLeastRecentlyUsed(t *testing.T) {
	t.Parallel()

	c := NewCache(2, time.Minute)
	c.Set("a", LLMResponse{OutputText: "a"})
	c.Set("b", LLMResponse{OutputText: "b"})
	c.Get("a") // refresh a's position
	c.Set("c", LLMResponse{OutputText: "c"}) // should evict b, not a

	if _, hit := c.Get("b"); hit {
		t.Fatalf("expected b to be evicted")
	}
	if _, hit := c.Get("a"); !hit {
		t.Fatalf("expected a to survive (recently accessed)")
	}
	if _, hit := c.Get("c"); !hit {
		t.Fatalf("expected c to be present")
	}
}

func TestCacheKey_StableForIdenticalRequests(t *testing.T) {
	t.Parallel()

	msgs := []types.Message{types.NewUserMessage("hello"), types.NewAssistantMessage("hi")}
	k1 := CacheKey("openai", "gpt-4o", msgs)
	k2 := CacheKey("openai", "gpt-4o", msgs)
	if k1 != k2 {
		t.Fatalf("expected identical key for identical input")
	}
}

func TestCacheKey_DiffersOnContentChange(t *testing.T) {
	t.Parallel()

	a := CacheKey("openai", "gpt-4o", []types.Message{types.NewUserMessage("hello")})
	b := CacheKey("openai", "gpt-4o", []types.Message{types.NewUserMessage("goodbye")})
	if a == b {
		t.Fatalf("expected different keys for different content")
	}
}

func TestCacheable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		req  *LLMRequest
		want bool
	}{
		{"cacheable, no tools", &LLMRequest{Metadata: RequestMetadata{Cacheable: true}}, true},
		{"not marked cacheable", &LLMRequest{Metadata: RequestMetadata{Cacheable: false}}, false},
		{"cacheable but has tools", &LLMRequest{Metadata: RequestMetadata{Cacheable: true}, Tools: []types.ToolSpec{{Name: "x"}}}, false},
	}
	for _, c := range cases {
		if got := Cacheable(c.req); got != c.want {
			t.Errorf("%s: got %v, want %v", c.name, got, c.want)
		}
	}
}
