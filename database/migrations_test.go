package database

import (
	"testing"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
)

func TestRunMigrationsIsIdempotent(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("first migration run failed: %v", err)
	}
	if err := RunMigrations(db); err != nil {
		t.Fatalf("second migration run failed: %v", err)
	}

	for _, table := range []string{"users", "movie", "movie_user_watch_dates", "movie_user_rating", "user_jellyfin_cache", "job"} {
		var count int
		if err := db.Get(&count, `SELECT COUNT(*) FROM `+table); err != nil {
			t.Errorf("expected table %s to exist: %v", table, err)
		}
	}
}

func TestWatchDatePrimaryKey(t *testing.T) {
	db, err := sqlx.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	if err := RunMigrations(db); err != nil {
		t.Fatalf("migration failed: %v", err)
	}

	insert := `INSERT INTO movie_user_watch_dates (user_id, movie_id, watched_at, plays) VALUES (1, 1, '2024-05-01', 1)`
	if _, err := db.Exec(insert); err != nil {
		t.Fatalf("insert failed: %v", err)
	}
	if _, err := db.Exec(insert); err == nil {
		t.Error("expected duplicate (user, movie, date) to violate the primary key")
	}
}
