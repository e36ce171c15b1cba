package services

import (
	"context"
	"testing"

	"watchlog/models"
	"watchlog/sources"
)

func jellyfinPartial(itemID string, tmdbID int64, watched bool, watchDate string) models.Partial {
	return models.Partial{
		JellyfinItemID: ptr(itemID),
		TmdbID:         ptr(tmdbID),
		Watched:        ptr(watched),
		WatchDate:      watchDate,
	}
}

func TestMediaCacheInitialRefresh(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	pager := &sources.SlicePager{Pages: [][]models.Partial{{
		jellyfinPartial("item-a", 100, true, "2024-05-01"),
		jellyfinPartial("item-b", 200, false, ""),
	}}}

	changed, err := cache.Refresh(context.Background(), 1, pager)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed != 2 {
		t.Errorf("expected 2 changed entries, got %d", changed)
	}

	entries, err := cache.Entries(1)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 cached entries, got %d", len(entries))
	}
	if !entries[0].Watched || entries[0].JellyfinItemID != "item-a" {
		t.Errorf("unexpected first entry %+v", entries[0])
	}
	if entries[0].LastWatchDate == nil || *entries[0].LastWatchDate != "2024-05-01" {
		t.Errorf("expected last watch date to be cached, got %+v", entries[0].LastWatchDate)
	}
}

func TestMediaCacheSkipsUnchangedWatchedItems(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	page := []models.Partial{jellyfinPartial("item-a", 100, true, "2024-05-01")}
	if _, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{page}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	changed, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{page}})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("expected unchanged watched item to be skipped, got %d changes", changed)
	}
}

func TestMediaCacheRewritesUnwatchedItems(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	// Unwatched items are rewritten even when unchanged; only the
	// watched-and-identical case is skipped.
	page := []models.Partial{jellyfinPartial("item-a", 100, false, "")}
	if _, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{page}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	changed, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{page}})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed != 1 {
		t.Errorf("expected unwatched item to be rewritten, got %d changes", changed)
	}
}

func TestMediaCacheDetectsWatchedFlip(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	before := []models.Partial{jellyfinPartial("item-a", 100, false, "")}
	if _, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{before}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	after := []models.Partial{jellyfinPartial("item-a", 100, true, "2024-05-02")}
	changed, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{after}})
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed != 1 {
		t.Errorf("expected flipped item to be rewritten, got %d changes", changed)
	}

	entries, err := cache.Entries(1)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || !entries[0].Watched {
		t.Fatalf("expected one watched entry, got %+v", entries)
	}
}

func TestMediaCachePrunesRemovedItems(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	both := []models.Partial{
		jellyfinPartial("item-a", 100, true, "2024-05-01"),
		jellyfinPartial("item-b", 200, true, "2024-05-01"),
	}
	if _, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{both}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	onlyA := []models.Partial{jellyfinPartial("item-a", 100, true, "2024-05-01")}
	if _, err := cache.Refresh(context.Background(), 1, &sources.SlicePager{Pages: [][]models.Partial{onlyA}}); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	entries, err := cache.Entries(1)
	if err != nil {
		t.Fatalf("Entries failed: %v", err)
	}
	if len(entries) != 1 || entries[0].JellyfinItemID != "item-a" {
		t.Fatalf("expected only item-a to survive, got %+v", entries)
	}
}

func TestMediaCacheIgnoresIncompleteItems(t *testing.T) {
	db := newTestDB(t)
	cache := NewMediaCache(db)

	pager := &sources.SlicePager{Pages: [][]models.Partial{{
		{JellyfinItemID: ptr("no-tmdb"), Watched: ptr(true)},
		{TmdbID: ptr(int64(100)), Watched: ptr(true)},
	}}}

	changed, err := cache.Refresh(context.Background(), 1, pager)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if changed != 0 {
		t.Errorf("expected incomplete items to be ignored, got %d changes", changed)
	}
}
