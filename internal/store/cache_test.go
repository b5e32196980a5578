package store

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func bulkPayload(size int) json.RawMessage {
	return json.RawMessage(fmt.Sprintf(`{"blob":%q}`, strings.Repeat("x", size)))
}

func TestCacheSizeTracksPayloads(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	empty, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if empty != 0 {
		t.Errorf("empty cache size = %d, want 0", empty)
	}

	rec := &CachedRecord{ID: "1", Data: bulkPayload(1024)}
	if err := s.Put(ctx, CollectionTasks, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	size, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if size < 1024 {
		t.Errorf("cache size = %d, want at least the payload size", size)
	}
}

func TestOptimizeCacheBelowThresholdIsNoop(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Default budget is 100MB; a few KB is nowhere near 90% of it.
	for i := 0; i < 5; i++ {
		rec := &CachedRecord{ID: fmt.Sprintf("rec-%d", i), Data: bulkPayload(1024)}
		if err := s.Put(ctx, CollectionTasks, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	evicted, err := s.OptimizeCache(ctx)
	if err != nil {
		t.Fatalf("OptimizeCache: %v", err)
	}
	if evicted != 0 {
		t.Errorf("evicted = %d, want 0 below threshold", evicted)
	}
}

func TestOptimizeCacheEvictsLeastRecentlyUsed(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	prefs := DefaultPreferences()
	prefs.MaxCacheSizeMB = 1
	if err := s.UpdatePreferences(ctx, prefs); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	// 10 records around 150KB each blow past 90% of the 1MB budget.
	for i := 0; i < 10; i++ {
		rec := &CachedRecord{ID: fmt.Sprintf("rec-%d", i), Data: bulkPayload(150 * 1024)}
		if err := s.Put(ctx, CollectionTasks, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
		time.Sleep(2 * time.Millisecond) // distinct last_accessed ordering
	}

	// Reading rec-0 makes it the most recently used; rec-1 and rec-2
	// become the two oldest entries.
	if _, err := s.Get(ctx, CollectionTasks, "rec-0"); err != nil {
		t.Fatalf("Get: %v", err)
	}

	before, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}

	evicted, err := s.OptimizeCache(ctx)
	if err != nil {
		t.Fatalf("OptimizeCache: %v", err)
	}
	if evicted != 2 {
		t.Fatalf("evicted = %d, want 2 (20%% of 10 tracked entries)", evicted)
	}

	for _, id := range []string{"rec-1", "rec-2"} {
		got, err := s.Get(ctx, CollectionTasks, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got != nil {
			t.Errorf("%s survived eviction", id)
		}
	}
	for _, id := range []string{"rec-0", "rec-3", "rec-9"} {
		got, err := s.Get(ctx, CollectionTasks, id)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got == nil {
			t.Errorf("%s was evicted, want kept", id)
		}
	}

	after, err := s.CacheSize(ctx)
	if err != nil {
		t.Fatalf("CacheSize: %v", err)
	}
	if after >= before {
		t.Errorf("cache size did not shrink: %d -> %d", before, after)
	}
}

func TestCleanupExpiredCache(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	// Default retention is 30 days.
	old := &CachedRecord{
		ID:       "old",
		Data:     json.RawMessage(`{}`),
		CachedAt: time.Now().Add(-31 * 24 * time.Hour),
	}
	fresh := &CachedRecord{
		ID:       "fresh",
		Data:     json.RawMessage(`{}`),
		CachedAt: time.Now().Add(-29 * 24 * time.Hour),
	}
	for _, rec := range []*CachedRecord{old, fresh} {
		if err := s.Put(ctx, CollectionTasks, rec); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	removed, err := s.CleanupExpiredCache(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredCache: %v", err)
	}
	if removed != 1 {
		t.Fatalf("removed = %d, want 1", removed)
	}

	got, err := s.Get(ctx, CollectionTasks, "old")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != nil {
		t.Error("expired record survived cleanup")
	}

	got, err = s.Get(ctx, CollectionTasks, "fresh")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got == nil {
		t.Error("record inside the retention window was removed")
	}

	var n int
	if err := s.db.QueryRow(
		`SELECT COUNT(*) FROM cache_metadata WHERE key = ?`, "tasks:old").Scan(&n); err != nil {
		t.Fatalf("query metadata: %v", err)
	}
	if n != 0 {
		t.Error("cache metadata survived expiry cleanup")
	}
}

func TestCleanupDisabledWithoutRetention(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	prefs := DefaultPreferences()
	prefs.RetentionDays = 0
	if err := s.UpdatePreferences(ctx, prefs); err != nil {
		t.Fatalf("UpdatePreferences: %v", err)
	}

	rec := &CachedRecord{
		ID:       "ancient",
		Data:     json.RawMessage(`{}`),
		CachedAt: time.Now().Add(-365 * 24 * time.Hour),
	}
	if err := s.Put(ctx, CollectionTasks, rec); err != nil {
		t.Fatalf("Put: %v", err)
	}

	removed, err := s.CleanupExpiredCache(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredCache: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0 with retention disabled", removed)
	}
}
