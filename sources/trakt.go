package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"watchlog/models"
)

// TraktClient talks to the social movie-tracking service. Both sequences
// paginate transparently; credentials are per user.
type TraktClient struct {
	client  *Client
	baseURL string
}

type TraktCredentials struct {
	UserName string
	ClientID string
}

func NewTraktClient(baseURL string, timeout time.Duration) *TraktClient {
	return &TraktClient{
		client:  NewClient("trakt", timeout),
		baseURL: baseURL,
	}
}

type traktIDs struct {
	Trakt int64  `json:"trakt"`
	Tmdb  int64  `json:"tmdb"`
	Imdb  string `json:"imdb"`
}

type traktMovie struct {
	Title string   `json:"title"`
	Year  int      `json:"year"`
	IDs   traktIDs `json:"ids"`
}

type traktHistoryItem struct {
	WatchedAt string     `json:"watched_at"`
	Movie     traktMovie `json:"movie"`
}

type traktRatingItem struct {
	RatedAt string     `json:"rated_at"`
	Rating  int        `json:"rating"`
	Movie   traktMovie `json:"movie"`
}

func (t *TraktClient) headers(creds TraktCredentials) http.Header {
	h := http.Header{}
	h.Set("Content-Type", "application/json")
	h.Set("trakt-api-version", "2")
	h.Set("trakt-api-key", creds.ClientID)
	return h
}

// History returns the user's watched-movie events, one partial per play.
func (t *TraktClient) History(creds TraktCredentials) Pager {
	return &pagePager{fetch: func(ctx context.Context, page int) ([]models.Partial, error) {
		historyURL := BuildQueryURL(
			fmt.Sprintf("%s/users/%s/history/movies", t.baseURL, creds.UserName),
			map[string]string{"page": strconv.Itoa(page + 1), "limit": strconv.Itoa(pageSize)},
		)

		var items []traktHistoryItem
		if err := t.client.GetJSON(ctx, historyURL, t.headers(creds), &items); err != nil {
			return nil, err
		}

		records := make([]models.Partial, 0, len(items))
		for _, item := range items {
			partial := partialFromTraktMovie(item.Movie)
			partial.WatchDate = datePart(item.WatchedAt)
			records = append(records, partial)
		}
		return records, nil
	}}
}

// Ratings returns the user's movie ratings.
func (t *TraktClient) Ratings(creds TraktCredentials) Pager {
	return &pagePager{fetch: func(ctx context.Context, page int) ([]models.Partial, error) {
		ratingsURL := BuildQueryURL(
			fmt.Sprintf("%s/users/%s/ratings/movies", t.baseURL, creds.UserName),
			map[string]string{"page": strconv.Itoa(page + 1), "limit": strconv.Itoa(pageSize)},
		)

		var items []traktRatingItem
		if err := t.client.GetJSON(ctx, ratingsURL, t.headers(creds), &items); err != nil {
			return nil, err
		}

		records := make([]models.Partial, 0, len(items))
		for _, item := range items {
			partial := partialFromTraktMovie(item.Movie)
			if item.Rating >= 1 && item.Rating <= 10 {
				rating := item.Rating
				partial.Rating = &rating
			}
			records = append(records, partial)
		}
		return records, nil
	}}
}

func partialFromTraktMovie(movie traktMovie) models.Partial {
	partial := models.Partial{
		Title: movie.Title,
		Year:  movie.Year,
	}
	if movie.IDs.Trakt != 0 {
		traktID := movie.IDs.Trakt
		partial.TraktID = &traktID
	}
	if movie.IDs.Tmdb != 0 {
		tmdbID := movie.IDs.Tmdb
		partial.TmdbID = &tmdbID
	}
	if movie.IDs.Imdb != "" {
		imdbID := movie.IDs.Imdb
		partial.ImdbID = &imdbID
	}
	return partial
}

// datePart reduces a provider timestamp to its calendar day.
func datePart(timestamp string) string {
	if ts, err := time.Parse(time.RFC3339, timestamp); err == nil {
		return ts.UTC().Format(models.DateLayout)
	}
	if len(timestamp) >= len(models.DateLayout) {
		return timestamp[:len(models.DateLayout)]
	}
	return ""
}
