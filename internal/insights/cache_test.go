package insights

import (
	"testing"
	"time"
)

func TestCacheSetGetRoundTrip(t *testing.T) {
	c := NewCache(time.Hour)
	result := Result{InsightType: "revenue-trends", Narrative: "revenue is up"}
	params := map[string]any{"start": "2024-01-01", "end": "2024-03-31"}

	c.Set("revenue-trends", params, result)
	got, ok := c.Get("revenue-trends", params)
	if !ok {
		t.Fatal("expected cache hit")
	}
	if got.Narrative != "revenue is up" {
		t.Errorf("Narrative = %q, want %q", got.Narrative, "revenue is up")
	}
}

func TestCacheKeyInsensitiveToMapOrder(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set("revenue-trends", map[string]any{"a": 1, "b": 2}, Result{Narrative: "x"})
	got, ok := c.Get("revenue-trends", map[string]any{"b": 2, "a": 1})
	if !ok {
		t.Fatal("expected cache hit regardless of map iteration order")
	}
	if got.Narrative != "x" {
		t.Errorf("Narrative = %q, want x", got.Narrative)
	}
}

func TestCacheMissOnDifferentParams(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set("revenue-trends", map[string]any{"start": "2024-01-01"}, Result{Narrative: "x"})
	if _, ok := c.Get("revenue-trends", map[string]any{"start": "2024-02-01"}); ok {
		t.Error("expected cache miss for different parameters")
	}
}

func TestCacheMissOnDifferentInsightType(t *testing.T) {
	c := NewCache(time.Hour)
	params := map[string]any{"start": "2024-01-01"}
	c.Set("revenue-trends", params, Result{Narrative: "x"})
	if _, ok := c.Get("expense-analysis", params); ok {
		t.Error("expected cache miss for a different insight_type")
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	c := NewCache(time.Minute)
	params := map[string]any{"start": "2024-01-01"}
	c.Set("revenue-trends", params, Result{Narrative: "x"})

	if _, ok := c.Get("revenue-trends", params); !ok {
		t.Fatal("expected cache hit before expiry")
	}

	removed := c.Sweep(time.Now().Add(2 * time.Minute))
	if removed != 1 {
		t.Errorf("Sweep removed = %d, want 1", removed)
	}
	if _, ok := c.Get("revenue-trends", params); ok {
		t.Error("expected cache miss after sweep past expiry")
	}
}

func TestCacheClear(t *testing.T) {
	c := NewCache(time.Hour)
	c.Set("revenue-trends", map[string]any{"start": "2024-01-01"}, Result{Narrative: "x"})
	c.Clear()
	if _, ok := c.Get("revenue-trends", map[string]any{"start": "2024-01-01"}); ok {
		t.Error("expected empty cache after Clear")
	}
}

func TestNewCacheDefaultsTTL(t *testing.T) {
	c := NewCache(0)
	if c.ttl != time.Hour {
		t.Errorf("default ttl = %v, want 1h", c.ttl)
	}
}
