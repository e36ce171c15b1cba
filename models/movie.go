package models

// Movie is the canonical record for one film across all sources. The TMDB id
// is required and unique; every other external id is optional and backfilled
// as sources report it.
type Movie struct {
	ID               int64    `db:"id" json:"id"`
	Title            string   `db:"title" json:"title"`
	Tagline          *string  `db:"tagline" json:"tagline,omitempty"`
	Overview         *string  `db:"overview" json:"overview,omitempty"`
	OriginalLanguage *string  `db:"original_language" json:"original_language,omitempty"`
	ReleaseDate      *string  `db:"release_date" json:"release_date,omitempty"`
	Runtime          *int     `db:"runtime" json:"runtime,omitempty"`
	TmdbVoteAverage  *float64 `db:"tmdb_vote_average" json:"tmdb_vote_average,omitempty"`
	TmdbVoteCount    *int     `db:"tmdb_vote_count" json:"tmdb_vote_count,omitempty"`
	TmdbPosterPath   *string  `db:"tmdb_poster_path" json:"tmdb_poster_path,omitempty"`
	TmdbID           int64    `db:"tmdb_id" json:"tmdb_id"`
	TraktID          *int64   `db:"trakt_id" json:"trakt_id,omitempty"`
	ImdbID           *string  `db:"imdb_id" json:"imdb_id,omitempty"`
	JellyfinItemID   *string  `db:"jellyfin_item_id" json:"jellyfin_item_id,omitempty"`
	CreatedAt        string   `db:"created_at" json:"created_at"`
	UpdatedAt        string   `db:"updated_at" json:"updated_at"`
	UpdatedAtTmdb    string   `db:"updated_at_tmdb" json:"updated_at_tmdb"`
}
