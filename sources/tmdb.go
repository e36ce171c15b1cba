package sources

import (
	"context"
	"fmt"
	"strconv"
	"time"
)

// TmdbClient talks to the movie metadata service. It is the sole source of
// canonical movie fields.
type TmdbClient struct {
	client  *Client
	apiKey  string
	baseURL string
}

func NewTmdbClient(apiKey, baseURL string, timeout time.Duration) *TmdbClient {
	return &TmdbClient{
		client:  NewClient("tmdb", timeout),
		apiKey:  apiKey,
		baseURL: baseURL,
	}
}

// TmdbMovie is the provider-native movie record.
type TmdbMovie struct {
	ID               int64   `json:"id"`
	Title            string  `json:"title"`
	Tagline          string  `json:"tagline"`
	Overview         string  `json:"overview"`
	OriginalLanguage string  `json:"original_language"`
	ReleaseDate      string  `json:"release_date"`
	Runtime          int     `json:"runtime"`
	VoteAverage      float64 `json:"vote_average"`
	VoteCount        int     `json:"vote_count"`
	PosterPath       string  `json:"poster_path"`
	ImdbID           string  `json:"imdb_id"`
}

// MovieDetails fetches the full record for one movie. A movie unknown
// upstream comes back as a NotFoundError.
func (t *TmdbClient) MovieDetails(ctx context.Context, tmdbID int64) (*TmdbMovie, error) {
	detailsURL := BuildQueryURL(
		fmt.Sprintf("%s/movie/%d", t.baseURL, tmdbID),
		map[string]string{"api_key": t.apiKey},
	)

	var movie TmdbMovie
	if err := t.client.GetJSON(ctx, detailsURL, nil, &movie); err != nil {
		return nil, err
	}
	return &movie, nil
}

// SearchMovie runs a title search, optionally narrowed by release year, and
// returns the first result or nil when nothing matched.
func (t *TmdbClient) SearchMovie(ctx context.Context, title string, year int) (*TmdbMovie, error) {
	params := map[string]string{
		"api_key": t.apiKey,
		"query":   title,
	}
	if year > 0 {
		params["year"] = strconv.Itoa(year)
	}
	searchURL := BuildQueryURL(t.baseURL+"/search/movie", params)

	var results struct {
		Results []TmdbMovie `json:"results"`
	}
	if err := t.client.GetJSON(ctx, searchURL, nil, &results); err != nil {
		return nil, err
	}
	if len(results.Results) == 0 {
		return nil, nil
	}
	return &results.Results[0], nil
}
