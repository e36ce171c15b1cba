package models

import "testing"

func TestPartialKeyPrefersStrongestIdentifier(t *testing.T) {
	tmdbID := int64(100)
	traktID := int64(1)
	imdbID := "tt0113277"
	itemID := "item-a"

	cases := []struct {
		name    string
		partial Partial
		want    string
	}{
		{"tmdb wins", Partial{TmdbID: &tmdbID, TraktID: &traktID, ImdbID: &imdbID}, "tmdb:100"},
		{"imdb over trakt", Partial{TraktID: &traktID, ImdbID: &imdbID}, "imdb:tt0113277"},
		{"trakt over jellyfin", Partial{TraktID: &traktID, JellyfinItemID: &itemID}, "trakt:1"},
		{"jellyfin", Partial{JellyfinItemID: &itemID}, "jellyfin:item-a"},
		{"title fallback", Partial{Title: "Heat", Year: 1995}, "title:Heat:1995"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.partial.Key(); got != tc.want {
				t.Errorf("Key() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestHasIdentifier(t *testing.T) {
	if (Partial{Title: "Heat"}).HasIdentifier() {
		t.Error("title alone is not an identifier")
	}
	id := int64(100)
	if !(Partial{TmdbID: &id}).HasIdentifier() {
		t.Error("expected tmdb id to count as an identifier")
	}
}
