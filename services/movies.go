package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"watchlog/models"
	"watchlog/sources"

	"github.com/jmoiron/sqlx"
)

// MetadataFetcher is the slice of the metadata service the movie store and
// resolver need. Tests inject a fake.
type MetadataFetcher interface {
	MovieDetails(ctx context.Context, tmdbID int64) (*sources.TmdbMovie, error)
	SearchMovie(ctx context.Context, title string, year int) (*sources.TmdbMovie, error)
}

// MovieStore owns the canonical movie records. Movies are created when an
// unknown id is first encountered and mutated only by the metadata refresher;
// they are never deleted.
type MovieStore struct {
	db *sqlx.DB
}

func NewMovieStore(db *sqlx.DB) *MovieStore {
	return &MovieStore{db: db}
}

const movieColumns = `id, title, tagline, overview, original_language, release_date, runtime,
	tmdb_vote_average, tmdb_vote_count, tmdb_poster_path, tmdb_id, trakt_id, imdb_id,
	jellyfin_item_id, created_at, updated_at, updated_at_tmdb`

func (s *MovieStore) findOne(where string, arg any) (*models.Movie, error) {
	var movie models.Movie
	query := s.db.Rebind(`SELECT ` + movieColumns + ` FROM movie WHERE ` + where)
	err := s.db.Get(&movie, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch movie: %w", err)
	}
	return &movie, nil
}

func (s *MovieStore) FindByID(id int64) (*models.Movie, error) {
	return s.findOne("id = ?", id)
}

func (s *MovieStore) FindByTmdbID(tmdbID int64) (*models.Movie, error) {
	return s.findOne("tmdb_id = ?", tmdbID)
}

func (s *MovieStore) FindByImdbID(imdbID string) (*models.Movie, error) {
	return s.findOne("imdb_id = ?", imdbID)
}

func (s *MovieStore) FindByTraktID(traktID int64) (*models.Movie, error) {
	return s.findOne("trakt_id = ?", traktID)
}

func (s *MovieStore) FindByJellyfinItemID(itemID string) (*models.Movie, error) {
	return s.findOne("jellyfin_item_id = ?", itemID)
}

// CreateFromMetadata inserts a new canonical movie from a full metadata
// record and returns its id.
func (s *MovieStore) CreateFromMetadata(meta *sources.TmdbMovie) (int64, error) {
	now := models.NowUTC()
	query := s.db.Rebind(`
		INSERT INTO movie (title, tagline, overview, original_language, release_date, runtime,
			tmdb_vote_average, tmdb_vote_count, tmdb_poster_path, tmdb_id, imdb_id,
			created_at, updated_at, updated_at_tmdb)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING id`)

	var id int64
	err := s.db.Get(&id, query,
		meta.Title, nullString(meta.Tagline), nullString(meta.Overview),
		nullString(meta.OriginalLanguage), nullString(meta.ReleaseDate), nullInt(meta.Runtime),
		meta.VoteAverage, meta.VoteCount, nullString(meta.PosterPath),
		meta.ID, nullString(meta.ImdbID), now, now, now)
	if err != nil {
		return 0, fmt.Errorf("failed to create movie: %w", err)
	}
	return id, nil
}

// UpdateFromMetadata applies a field-by-field metadata update.
func (s *MovieStore) UpdateFromMetadata(id int64, meta *sources.TmdbMovie) error {
	query := s.db.Rebind(`
		UPDATE movie
		SET title = ?, tagline = ?, overview = ?, original_language = ?, release_date = ?,
			runtime = ?, tmdb_vote_average = ?, tmdb_vote_count = ?, tmdb_poster_path = ?,
			imdb_id = ?, updated_at = ?
		WHERE id = ?`)

	_, err := s.db.Exec(query,
		meta.Title, nullString(meta.Tagline), nullString(meta.Overview),
		nullString(meta.OriginalLanguage), nullString(meta.ReleaseDate), nullInt(meta.Runtime),
		meta.VoteAverage, meta.VoteCount, nullString(meta.PosterPath),
		nullString(meta.ImdbID), models.NowUTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update movie %d: %w", id, err)
	}
	return nil
}

// Touch records that the movie's metadata was just refreshed.
func (s *MovieStore) Touch(id int64) error {
	query := s.db.Rebind(`UPDATE movie SET updated_at_tmdb = ? WHERE id = ?`)
	if _, err := s.db.Exec(query, models.NowUTC(), id); err != nil {
		return fmt.Errorf("failed to touch movie %d: %w", id, err)
	}
	return nil
}

// BackfillIDs fills in external ids the partial carries but the existing row
// lacks. Populated columns are never overwritten.
func (s *MovieStore) BackfillIDs(id int64, partial models.Partial) error {
	type backfill struct {
		column string
		value  any
	}
	var updates []backfill
	if partial.TraktID != nil {
		updates = append(updates, backfill{"trakt_id", *partial.TraktID})
	}
	if partial.ImdbID != nil {
		updates = append(updates, backfill{"imdb_id", *partial.ImdbID})
	}
	if partial.JellyfinItemID != nil {
		updates = append(updates, backfill{"jellyfin_item_id", *partial.JellyfinItemID})
	}

	for _, u := range updates {
		query := s.db.Rebind(`UPDATE movie SET ` + u.column + ` = ? WHERE id = ? AND ` + u.column + ` IS NULL`)
		if _, err := s.db.Exec(query, u.value, id); err != nil {
			return fmt.Errorf("failed to backfill %s on movie %d: %w", u.column, id, err)
		}
	}
	return nil
}

// FetchLeastRecentlyRefreshed returns up to limit movies in ascending order
// of their last metadata refresh.
func (s *MovieStore) FetchLeastRecentlyRefreshed(limit int) ([]models.Movie, error) {
	var movies []models.Movie
	query := s.db.Rebind(`SELECT ` + movieColumns + ` FROM movie ORDER BY updated_at_tmdb ASC, id ASC LIMIT ?`)
	if err := s.db.Select(&movies, query, limit); err != nil {
		return nil, fmt.Errorf("failed to fetch stale movies: %w", err)
	}
	return movies, nil
}

// RefreshMetadata re-fetches the least-recently-updated movies, capped per
// run. Movies gone upstream are left untouched; transient failures are
// skipped and retried on the next cycle.
func (s *MovieStore) RefreshMetadata(ctx context.Context, fetcher MetadataFetcher, limit int) (*Summary, error) {
	movies, err := s.FetchLeastRecentlyRefreshed(limit)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, movie := range movies {
		meta, err := fetcher.MovieDetails(ctx, movie.TmdbID)
		if err != nil {
			switch sources.KindOf(err) {
			case sources.ErrorKindNotFound:
				slog.Warn("Movie no longer known upstream, leaving untouched", "movie_id", movie.ID, "tmdb_id", movie.TmdbID)
				summary.Skipped++
				continue
			case sources.ErrorKindTransientNetwork, sources.ErrorKindRateLimit:
				slog.Warn("Transient failure refreshing movie, will retry next cycle", "movie_id", movie.ID, "error", err)
				summary.Skipped++
				continue
			default:
				return summary, err
			}
		}

		if err := s.UpdateFromMetadata(movie.ID, meta); err != nil {
			return summary, err
		}
		if err := s.Touch(movie.ID); err != nil {
			return summary, err
		}
		summary.Applied++
	}

	slog.Info("Metadata refresh finished", "updated", summary.Applied, "skipped", summary.Skipped)
	return summary, nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}
