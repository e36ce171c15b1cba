package services

import (
	"context"
	"fmt"

	"watchlog/models"
	"watchlog/sources"

	"github.com/jmoiron/sqlx"
)

// MediaCache is the per-user materialized view of the media server's
// library. Refreshes diff against it so stable library contents are not
// re-imported.
type MediaCache struct {
	db *sqlx.DB
}

func NewMediaCache(db *sqlx.DB) *MediaCache {
	return &MediaCache{db: db}
}

// Refresh replaces the user's snapshot with the items the server currently
// reports, in one transaction. Items whose watched state and TMDB id are
// unchanged and already watched are skipped; everything else is rewritten so
// the reconciler sees the change. After a refresh the cached item set equals
// exactly what the source emitted.
func (c *MediaCache) Refresh(ctx context.Context, userID int64, pager sources.Pager) (int, error) {
	tx, err := c.db.Beginx()
	if err != nil {
		return 0, fmt.Errorf("failed to begin cache refresh: %w", err)
	}
	defer tx.Rollback()

	var cached []models.JellyfinCacheEntry
	query := tx.Rebind(`SELECT user_id, jellyfin_item_id, tmdb_id, watched, last_watch_date, cached_at
		FROM user_jellyfin_cache WHERE user_id = ?`)
	if err := tx.Select(&cached, query, userID); err != nil {
		return 0, fmt.Errorf("failed to load cache snapshot: %w", err)
	}
	snapshot := make(map[string]models.JellyfinCacheEntry, len(cached))
	for _, entry := range cached {
		snapshot[entry.JellyfinItemID] = entry
	}

	changed := 0
	seen := make(map[string]bool)

	for {
		page, err := pager.NextPage(ctx)
		if err != nil {
			return 0, err
		}
		if page == nil {
			break
		}

		for _, item := range page {
			if item.JellyfinItemID == nil || item.TmdbID == nil || item.Watched == nil {
				continue
			}
			itemID := *item.JellyfinItemID
			seen[itemID] = true

			if entry, ok := snapshot[itemID]; ok &&
				entry.Watched == *item.Watched &&
				entry.TmdbID != nil && *entry.TmdbID == *item.TmdbID &&
				entry.Watched {
				continue
			}

			deleteQuery := tx.Rebind(`DELETE FROM user_jellyfin_cache WHERE user_id = ? AND jellyfin_item_id = ?`)
			if _, err := tx.Exec(deleteQuery, userID, itemID); err != nil {
				return 0, fmt.Errorf("failed to delete cache entry: %w", err)
			}

			var lastWatchDate *string
			if item.WatchDate != "" {
				date := item.WatchDate
				lastWatchDate = &date
			}
			insertQuery := tx.Rebind(`
				INSERT INTO user_jellyfin_cache (user_id, jellyfin_item_id, tmdb_id, watched, last_watch_date, cached_at)
				VALUES (?, ?, ?, ?, ?, ?)`)
			if _, err := tx.Exec(insertQuery, userID, itemID, *item.TmdbID, *item.Watched, lastWatchDate, models.NowUTC()); err != nil {
				return 0, fmt.Errorf("failed to insert cache entry: %w", err)
			}
			changed++
		}
	}

	// Items gone from the library leave the cache with them
	for itemID := range snapshot {
		if seen[itemID] {
			continue
		}
		deleteQuery := tx.Rebind(`DELETE FROM user_jellyfin_cache WHERE user_id = ? AND jellyfin_item_id = ?`)
		if _, err := tx.Exec(deleteQuery, userID, itemID); err != nil {
			return 0, fmt.Errorf("failed to prune cache entry: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit cache refresh: %w", err)
	}
	return changed, nil
}

// Entries returns the user's current snapshot.
func (c *MediaCache) Entries(userID int64) ([]models.JellyfinCacheEntry, error) {
	var entries []models.JellyfinCacheEntry
	query := c.db.Rebind(`SELECT user_id, jellyfin_item_id, tmdb_id, watched, last_watch_date, cached_at
		FROM user_jellyfin_cache WHERE user_id = ? ORDER BY jellyfin_item_id`)
	if err := c.db.Select(&entries, query, userID); err != nil {
		return nil, fmt.Errorf("failed to load cache entries: %w", err)
	}
	return entries, nil
}
