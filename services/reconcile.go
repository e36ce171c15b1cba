package services

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Summary counts what one batch did. It is stored under the job's
// parameters._summary key.
type Summary struct {
	Applied int `json:"applied"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

func (s *Summary) Add(other *Summary) {
	if other == nil {
		return
	}
	s.Applied += other.Applied
	s.Skipped += other.Skipped
	s.Failed += other.Failed
}

func (s *Summary) ToParams() map[string]any {
	return map[string]any{
		"applied": s.Applied,
		"skipped": s.Skipped,
		"failed":  s.Failed,
	}
}

// Rating precedence, highest wins. An incoming rating only lands when its
// source ranks at or above the one that wrote the stored value.
var defaultRatingPrecedence = map[string]int{
	"trakt":    3,
	"csv":      2,
	"jellyfin": 1,
}

// Reconciler merges canonicalized records into the per-user watch-history
// and rating stores. It runs on either the shared connection or a
// transaction, so each import page can commit as its own batch.
type Reconciler struct {
	db         sqlx.Ext
	precedence map[string]int
}

func NewReconciler(db sqlx.Ext) *Reconciler {
	return &Reconciler{db: db, precedence: defaultRatingPrecedence}
}

// WithPrecedence overrides the cross-source rating precedence, highest rank
// first.
func (r *Reconciler) WithPrecedence(order []string) *Reconciler {
	if len(order) == 0 {
		return r
	}
	precedence := make(map[string]int, len(order))
	for i, source := range order {
		precedence[source] = len(order) - i
	}
	r.precedence = precedence
	return r
}

// RecordWatch increments the play count for (user, movie, date) by one,
// inserting the row with plays=1 when absent.
func (r *Reconciler) RecordWatch(userID, movieID int64, date string) error {
	query := r.db.Rebind(`
		INSERT INTO movie_user_watch_dates (user_id, movie_id, watched_at, plays)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, movie_id, watched_at)
		DO UPDATE SET plays = movie_user_watch_dates.plays + 1`)

	if _, err := r.db.Exec(query, userID, movieID, date); err != nil {
		return fmt.Errorf("failed to record watch: %w", err)
	}
	return nil
}

// SetPlayCount upserts the exact play count for (user, movie, date). A count
// of zero or less removes the row.
func (r *Reconciler) SetPlayCount(userID, movieID int64, date string, plays int) error {
	if plays <= 0 {
		query := r.db.Rebind(`DELETE FROM movie_user_watch_dates WHERE user_id = ? AND movie_id = ? AND watched_at = ?`)
		if _, err := r.db.Exec(query, userID, movieID, date); err != nil {
			return fmt.Errorf("failed to delete watch: %w", err)
		}
		return nil
	}

	query := r.db.Rebind(`
		INSERT INTO movie_user_watch_dates (user_id, movie_id, watched_at, plays)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, movie_id, watched_at)
		DO UPDATE SET plays = excluded.plays`)

	if _, err := r.db.Exec(query, userID, movieID, date, plays); err != nil {
		return fmt.Errorf("failed to set play count: %w", err)
	}
	return nil
}

// EnsureWatched inserts a single play for (user, movie, date) only when no
// row exists yet. Sources that report just a watched flag contribute at most
// one play on the date they were last seen.
func (r *Reconciler) EnsureWatched(userID, movieID int64, date string) error {
	query := r.db.Rebind(`
		INSERT INTO movie_user_watch_dates (user_id, movie_id, watched_at, plays)
		VALUES (?, ?, ?, 1)
		ON CONFLICT (user_id, movie_id, watched_at) DO NOTHING`)

	if _, err := r.db.Exec(query, userID, movieID, date); err != nil {
		return fmt.Errorf("failed to ensure watch: %w", err)
	}
	return nil
}

// SetRating upserts the user's rating; a nil value removes it. The write is
// dropped (returning false) when a higher-precedence source already rated
// the movie.
func (r *Reconciler) SetRating(userID, movieID int64, value *int, source string) (bool, error) {
	var existingSource string
	query := r.db.Rebind(`SELECT source FROM movie_user_rating WHERE user_id = ? AND movie_id = ?`)
	err := sqlx.Get(r.db, &existingSource, query, userID, movieID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("failed to fetch existing rating: %w", err)
	}
	if err == nil && r.rank(existingSource) > r.rank(source) {
		return false, nil
	}

	if value == nil {
		query := r.db.Rebind(`DELETE FROM movie_user_rating WHERE user_id = ? AND movie_id = ?`)
		if _, err := r.db.Exec(query, userID, movieID); err != nil {
			return false, fmt.Errorf("failed to delete rating: %w", err)
		}
		return true, nil
	}

	query = r.db.Rebind(`
		INSERT INTO movie_user_rating (user_id, movie_id, rating, source)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (user_id, movie_id)
		DO UPDATE SET rating = excluded.rating, source = excluded.source`)

	if _, err := r.db.Exec(query, userID, movieID, *value, source); err != nil {
		return false, fmt.Errorf("failed to set rating: %w", err)
	}
	return true, nil
}

func (r *Reconciler) rank(source string) int {
	return r.precedence[source]
}
