package models

import (
	"fmt"
	"strconv"
)

// Partial is a per-source record awaiting resolution against the canonical
// movie store. Each source client fills in whatever identifiers and watch
// data it has; a partial without any identifier and without a title is
// useless and gets dropped by the consumer.
type Partial struct {
	TmdbID         *int64
	TraktID        *int64
	ImdbID         *string
	JellyfinItemID *string

	Title string
	Year  int

	WatchDate string // YYYY-MM-DD, empty when the source reported no date
	Rating    *int   // 1..10
	Watched   *bool  // media-server watched flag
}

func (p Partial) HasIdentifier() bool {
	return p.TmdbID != nil || p.ImdbID != nil || p.TraktID != nil || p.JellyfinItemID != nil
}

// Key returns a stable memoization key built from the strongest identifier
// present, falling back to title and year.
func (p Partial) Key() string {
	switch {
	case p.TmdbID != nil:
		return "tmdb:" + strconv.FormatInt(*p.TmdbID, 10)
	case p.ImdbID != nil:
		return "imdb:" + *p.ImdbID
	case p.TraktID != nil:
		return "trakt:" + strconv.FormatInt(*p.TraktID, 10)
	case p.JellyfinItemID != nil:
		return "jellyfin:" + *p.JellyfinItemID
	default:
		return fmt.Sprintf("title:%s:%d", p.Title, p.Year)
	}
}
