package catalog

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestGetOrFetchCachesWithinTTL(t *testing.T) {
	now := time.Now()
	cache := NewWithClock[[]string](func() time.Time { return now })

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"ليزر", "فيلر"}, nil
	}

	for i := 0; i < 3; i++ {
		got, err := cache.GetOrFetch(context.Background(), "types", time.Minute, fetch)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("expected 2 items, got %d", len(got))
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}
}

func TestGetOrFetchRefreshesAfterTTL(t *testing.T) {
	now := time.Now()
	cache := NewWithClock[[]string](func() time.Time { return now })

	calls := 0
	fetch := func(context.Context) ([]string, error) {
		calls++
		return []string{"a"}, nil
	}

	if _, err := cache.GetOrFetch(context.Background(), "types", time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	now = now.Add(2 * time.Minute)
	if _, err := cache.GetOrFetch(context.Background(), "types", time.Minute, fetch); err != nil {
		t.Fatal(err)
	}
	if calls != 2 {
		t.Fatalf("expected refresh after ttl, got %d fetches", calls)
	}
}

func TestGetOrFetchErrorKeepsOldValue(t *testing.T) {
	now := time.Now()
	cache := NewWithClock[[]string](func() time.Time { return now })

	if _, err := cache.GetOrFetch(context.Background(), "types", time.Minute, func(context.Context) ([]string, error) {
		return []string{"a"}, nil
	}); err != nil {
		t.Fatal(err)
	}

	now = now.Add(2 * time.Minute)
	_, err := cache.GetOrFetch(context.Background(), "types", time.Minute, func(context.Context) ([]string, error) {
		return nil, errors.New("backend down")
	})
	if err == nil {
		t.Fatal("expected fetch error")
	}

	// The stale value survives the failed refresh and a later fetch works.
	got, err := cache.GetOrFetch(context.Background(), "types", 5*time.Minute, func(context.Context) ([]string, error) {
		t.Fatal("fetch should not run for fresh-enough entry")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0] != "a" {
		t.Fatalf("expected stale value preserved, got %v", got)
	}
}

func TestPutWarmsCache(t *testing.T) {
	cache := New[[]string]()
	cache.Put("types", []string{"x"})
	got, err := cache.GetOrFetch(context.Background(), "types", time.Minute, func(context.Context) ([]string, error) {
		t.Fatal("fetch should not run after warm")
		return nil, nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected warmed value, got %v", got)
	}
}
