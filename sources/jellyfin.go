package sources

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"watchlog/models"
)

// JellyfinClient talks to the user's home-media server. It enumerates the
// library's movies together with the per-item watched flag.
type JellyfinClient struct {
	client *Client
}

type JellyfinCredentials struct {
	ServerURL   string
	UserID      string
	AccessToken string
}

func NewJellyfinClient(timeout time.Duration) *JellyfinClient {
	return &JellyfinClient{client: NewClient("jellyfin", timeout)}
}

type jellyfinItem struct {
	ID             string            `json:"Id"`
	Name           string            `json:"Name"`
	ProductionYear int               `json:"ProductionYear"`
	ProviderIDs    map[string]string `json:"ProviderIds"`
	UserData       struct {
		Played         bool   `json:"Played"`
		LastPlayedDate string `json:"LastPlayedDate"`
	} `json:"UserData"`
}

type jellyfinItemsPage struct {
	Items            []jellyfinItem `json:"Items"`
	TotalRecordCount int            `json:"TotalRecordCount"`
}

// Items returns the user's movie library, filtered server-side to movies
// carrying a TMDB id.
func (j *JellyfinClient) Items(creds JellyfinCredentials) Pager {
	return &pagePager{fetch: func(ctx context.Context, page int) ([]models.Partial, error) {
		itemsURL := BuildQueryURL(
			fmt.Sprintf("%s/Users/%s/Items", creds.ServerURL, creds.UserID),
			map[string]string{
				"Recursive":        "true",
				"IncludeItemTypes": "Movie",
				"hasTmdbId":        "true",
				"filters":          "IsNotFolder",
				"fields":           "ProviderIds",
				"limit":            strconv.Itoa(pageSize),
				"StartIndex":       strconv.Itoa(page * pageSize),
			},
		)

		header := http.Header{}
		header.Set("X-Emby-Token", creds.AccessToken)

		var result jellyfinItemsPage
		if err := j.client.GetJSON(ctx, itemsURL, header, &result); err != nil {
			return nil, err
		}

		records := make([]models.Partial, 0, len(result.Items))
		for _, item := range result.Items {
			itemID := item.ID
			watched := item.UserData.Played

			partial := models.Partial{
				JellyfinItemID: &itemID,
				Title:          item.Name,
				Year:           item.ProductionYear,
				Watched:        &watched,
			}
			if raw, ok := item.ProviderIDs["Tmdb"]; ok {
				if tmdbID, err := strconv.ParseInt(raw, 10, 64); err == nil && tmdbID > 0 {
					partial.TmdbID = &tmdbID
				}
			}
			if item.UserData.LastPlayedDate != "" {
				partial.WatchDate = datePart(item.UserData.LastPlayedDate)
			}
			records = append(records, partial)
		}
		return records, nil
	}}
}
