package services

import (
	"context"
	"errors"
	"testing"

	"watchlog/database"
	"watchlog/sources"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

// newTestDB opens an in-memory database with the real schema. A single
// connection keeps every statement on the same memory store.
func newTestDB(t *testing.T) *sqlx.DB {
	t.Helper()

	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	if err := database.RunMigrations(db); err != nil {
		t.Fatalf("failed to run migrations: %v", err)
	}
	return db
}

func ptr[T any](v T) *T {
	return &v
}

// fakeFetcher is an in-memory metadata service. Unknown ids come back as
// NotFoundError, matching the real client.
type fakeFetcher struct {
	movies map[int64]*sources.TmdbMovie
	search map[string]*sources.TmdbMovie

	detailsCalls int
	searchCalls  int
	detailsErr   error
}

func (f *fakeFetcher) MovieDetails(ctx context.Context, tmdbID int64) (*sources.TmdbMovie, error) {
	f.detailsCalls++
	if f.detailsErr != nil {
		return nil, f.detailsErr
	}
	movie, ok := f.movies[tmdbID]
	if !ok {
		return nil, &sources.Error{Kind: sources.ErrorKindNotFound, Source: "tmdb", Err: errors.New("movie not found")}
	}
	return movie, nil
}

func (f *fakeFetcher) SearchMovie(ctx context.Context, title string, year int) (*sources.TmdbMovie, error) {
	f.searchCalls++
	return f.search[title], nil
}

func tmdbMovie(id int64, title string) *sources.TmdbMovie {
	return &sources.TmdbMovie{
		ID:          id,
		Title:       title,
		ReleaseDate: "2020-01-01",
		Runtime:     100,
		VoteAverage: 7.5,
		VoteCount:   1000,
		PosterPath:  "/poster.jpg",
	}
}

func getPlays(t *testing.T, db *sqlx.DB, userID, movieID int64, date string) int {
	t.Helper()

	var plays int
	err := db.Get(&plays, db.Rebind(`SELECT plays FROM movie_user_watch_dates WHERE user_id = ? AND movie_id = ? AND watched_at = ?`),
		userID, movieID, date)
	if err != nil {
		t.Fatalf("failed to fetch plays: %v", err)
	}
	return plays
}

func countWatchRows(t *testing.T, db *sqlx.DB, userID int64) int {
	t.Helper()

	var count int
	if err := db.Get(&count, db.Rebind(`SELECT COUNT(*) FROM movie_user_watch_dates WHERE user_id = ?`), userID); err != nil {
		t.Fatalf("failed to count watch rows: %v", err)
	}
	return count
}
