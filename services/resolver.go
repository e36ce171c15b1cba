package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"watchlog/models"
)

// ErrUnresolvable means no canonical movie could be found or created for a
// record. The record is skipped; the import continues.
var ErrUnresolvable = errors.New("no canonical movie for record")

// Resolver maps provider-native identifiers (or a bare title) to the
// canonical movie id, creating the movie from metadata-service data when no
// match exists. One resolver is built per job so resolution is memoized for
// the import's lifetime.
type Resolver struct {
	movies  *MovieStore
	fetcher MetadataFetcher
	memo    map[string]int64
}

func NewResolver(movies *MovieStore, fetcher MetadataFetcher) *Resolver {
	return &Resolver{
		movies:  movies,
		fetcher: fetcher,
		memo:    make(map[string]int64),
	}
}

// Resolve returns the canonical movie id for a partial record.
func (r *Resolver) Resolve(ctx context.Context, partial models.Partial) (int64, error) {
	key := partial.Key()
	if id, ok := r.memo[key]; ok {
		return id, nil
	}

	id, err := r.resolve(ctx, partial)
	if err != nil {
		return 0, err
	}
	r.memo[key] = id
	return id, nil
}

func (r *Resolver) resolve(ctx context.Context, partial models.Partial) (int64, error) {
	// Probe by the most authoritative id present
	movie, err := r.probe(partial)
	if err != nil {
		return 0, err
	}
	if movie != nil {
		if err := r.movies.BackfillIDs(movie.ID, partial); err != nil {
			return 0, err
		}
		return movie.ID, nil
	}

	tmdbID := partial.TmdbID
	if tmdbID == nil {
		if partial.Title == "" {
			return 0, fmt.Errorf("%w: record has no identifier and no title", ErrUnresolvable)
		}

		match, err := r.fetcher.SearchMovie(ctx, partial.Title, partial.Year)
		if err != nil {
			return 0, err
		}
		if match == nil {
			return 0, fmt.Errorf("%w: no search result for %q", ErrUnresolvable, partial.Title)
		}
		slog.Debug("Resolved title via metadata search", "title", partial.Title, "tmdb_id", match.ID)
		tmdbID = &match.ID

		// The search may have found a movie that is already cached
		if existing, err := r.movies.FindByTmdbID(*tmdbID); err != nil {
			return 0, err
		} else if existing != nil {
			if err := r.movies.BackfillIDs(existing.ID, partial); err != nil {
				return 0, err
			}
			return existing.ID, nil
		}
	}

	meta, err := r.fetcher.MovieDetails(ctx, *tmdbID)
	if err != nil {
		return 0, err
	}

	id, err := r.movies.CreateFromMetadata(meta)
	if err != nil {
		return 0, err
	}
	if err := r.movies.BackfillIDs(id, partial); err != nil {
		return 0, err
	}

	slog.Info("Created canonical movie", "movie_id", id, "tmdb_id", meta.ID, "title", meta.Title)
	return id, nil
}

func (r *Resolver) probe(partial models.Partial) (*models.Movie, error) {
	if partial.TmdbID != nil {
		if movie, err := r.movies.FindByTmdbID(*partial.TmdbID); movie != nil || err != nil {
			return movie, err
		}
	}
	if partial.ImdbID != nil {
		if movie, err := r.movies.FindByImdbID(*partial.ImdbID); movie != nil || err != nil {
			return movie, err
		}
	}
	if partial.TraktID != nil {
		if movie, err := r.movies.FindByTraktID(*partial.TraktID); movie != nil || err != nil {
			return movie, err
		}
	}
	if partial.JellyfinItemID != nil {
		if movie, err := r.movies.FindByJellyfinItemID(*partial.JellyfinItemID); movie != nil || err != nil {
			return movie, err
		}
	}
	return nil, nil
}
