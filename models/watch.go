package models

// WatchDate is one play unit: a user watched a movie on a calendar day,
// plays times. (user_id, movie_id, watched_at) is unique.
type WatchDate struct {
	UserID    int64  `db:"user_id" json:"user_id"`
	MovieID   int64  `db:"movie_id" json:"movie_id"`
	WatchedAt string `db:"watched_at" json:"watched_at"`
	Plays     int    `db:"plays" json:"plays"`
}

// Rating is a user's personal rating of a movie (1..10). Source records which
// provider wrote it so cross-source precedence can be enforced.
type Rating struct {
	UserID  int64  `db:"user_id" json:"user_id"`
	MovieID int64  `db:"movie_id" json:"movie_id"`
	Rating  int    `db:"rating" json:"rating"`
	Source  string `db:"source" json:"source"`
}

// JellyfinCacheEntry is the per-user snapshot of one media-server item, kept
// so refreshes can skip library contents that have not changed.
type JellyfinCacheEntry struct {
	UserID         int64   `db:"user_id" json:"user_id"`
	JellyfinItemID string  `db:"jellyfin_item_id" json:"jellyfin_item_id"`
	TmdbID         *int64  `db:"tmdb_id" json:"tmdb_id,omitempty"`
	Watched        bool    `db:"watched" json:"watched"`
	LastWatchDate  *string `db:"last_watch_date" json:"last_watch_date,omitempty"`
	CachedAt       string  `db:"cached_at" json:"cached_at"`
}
