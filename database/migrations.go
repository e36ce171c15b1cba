package database

import (
	"fmt"

	"github.com/jmoiron/sqlx"
)

// One schema, two engines. Table and column names are identical; only the
// id and float column types differ. Calendar days are stored as YYYY-MM-DD
// text and timestamps as RFC3339 UTC text so queries and ordering behave the
// same on both engines.

const postgresSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		name VARCHAR(255) UNIQUE NOT NULL,
		email VARCHAR(255) UNIQUE NOT NULL,
		password_hash VARCHAR(255) NOT NULL,
		trakt_user_name VARCHAR(255),
		trakt_client_id VARCHAR(255),
		jellyfin_server_url TEXT,
		jellyfin_user_id VARCHAR(255),
		jellyfin_access_token VARCHAR(255),
		credentials_invalid BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movie (
		id BIGSERIAL PRIMARY KEY,
		title VARCHAR(255) NOT NULL,
		tagline TEXT,
		overview TEXT,
		original_language VARCHAR(10),
		release_date TEXT,
		runtime INTEGER,
		tmdb_vote_average DOUBLE PRECISION,
		tmdb_vote_count INTEGER,
		tmdb_poster_path VARCHAR(255),
		tmdb_id BIGINT UNIQUE NOT NULL,
		trakt_id BIGINT UNIQUE,
		imdb_id VARCHAR(50) UNIQUE,
		jellyfin_item_id VARCHAR(255) UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_at_tmdb TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movie_user_watch_dates (
		user_id BIGINT NOT NULL,
		movie_id BIGINT NOT NULL,
		watched_at TEXT NOT NULL,
		plays INTEGER NOT NULL,
		PRIMARY KEY (user_id, movie_id, watched_at)
	);

	CREATE TABLE IF NOT EXISTS movie_user_rating (
		user_id BIGINT NOT NULL,
		movie_id BIGINT NOT NULL,
		rating INTEGER NOT NULL,
		source VARCHAR(50) NOT NULL,
		PRIMARY KEY (user_id, movie_id)
	);

	CREATE TABLE IF NOT EXISTS user_jellyfin_cache (
		user_id BIGINT NOT NULL,
		jellyfin_item_id VARCHAR(255) NOT NULL,
		tmdb_id BIGINT,
		watched BOOLEAN NOT NULL,
		last_watch_date TEXT,
		cached_at TEXT NOT NULL,
		PRIMARY KEY (user_id, jellyfin_item_id)
	);

	CREATE TABLE IF NOT EXISTS job (
		id VARCHAR(36) PRIMARY KEY,
		user_id BIGINT,
		type VARCHAR(50) NOT NULL,
		status VARCHAR(20) NOT NULL,
		parameters TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_job_status_created ON job (status, created_at);
`

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT UNIQUE NOT NULL,
		email TEXT UNIQUE NOT NULL,
		password_hash TEXT NOT NULL,
		trakt_user_name TEXT,
		trakt_client_id TEXT,
		jellyfin_server_url TEXT,
		jellyfin_user_id TEXT,
		jellyfin_access_token TEXT,
		credentials_invalid BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movie (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		title TEXT NOT NULL,
		tagline TEXT,
		overview TEXT,
		original_language TEXT,
		release_date TEXT,
		runtime INTEGER,
		tmdb_vote_average REAL,
		tmdb_vote_count INTEGER,
		tmdb_poster_path TEXT,
		tmdb_id INTEGER UNIQUE NOT NULL,
		trakt_id INTEGER UNIQUE,
		imdb_id TEXT UNIQUE,
		jellyfin_item_id TEXT UNIQUE,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		updated_at_tmdb TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS movie_user_watch_dates (
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		watched_at TEXT NOT NULL,
		plays INTEGER NOT NULL,
		PRIMARY KEY (user_id, movie_id, watched_at)
	);

	CREATE TABLE IF NOT EXISTS movie_user_rating (
		user_id INTEGER NOT NULL,
		movie_id INTEGER NOT NULL,
		rating INTEGER NOT NULL,
		source TEXT NOT NULL,
		PRIMARY KEY (user_id, movie_id)
	);

	CREATE TABLE IF NOT EXISTS user_jellyfin_cache (
		user_id INTEGER NOT NULL,
		jellyfin_item_id TEXT NOT NULL,
		tmdb_id INTEGER,
		watched BOOLEAN NOT NULL,
		last_watch_date TEXT,
		cached_at TEXT NOT NULL,
		PRIMARY KEY (user_id, jellyfin_item_id)
	);

	CREATE TABLE IF NOT EXISTS job (
		id TEXT PRIMARY KEY,
		user_id INTEGER,
		type TEXT NOT NULL,
		status TEXT NOT NULL,
		parameters TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_job_status_created ON job (status, created_at);
`

// RunMigrations creates any missing tables on the given connection. A
// forward-only migration runner owns schema evolution beyond this baseline.
func RunMigrations(db *sqlx.DB) error {
	schema := postgresSchema
	if db.DriverName() == "sqlite3" {
		schema = sqliteSchema
	}

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
