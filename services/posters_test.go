package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"watchlog/sources"
)

func TestPosterCacheRefresh(t *testing.T) {
	db := newTestDB(t)
	movies := NewMovieStore(db)

	if _, err := movies.CreateFromMetadata(tmdbMovie(100, "Heat")); err != nil {
		t.Fatalf("CreateFromMetadata failed: %v", err)
	}
	noPoster := tmdbMovie(200, "Alien")
	noPoster.PosterPath = ""
	if _, err := movies.CreateFromMetadata(noPoster); err != nil {
		t.Fatalf("CreateFromMetadata failed: %v", err)
	}

	downloads := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		downloads++
		w.Write([]byte("jpeg-bytes"))
	}))
	defer server.Close()

	dir := filepath.Join(t.TempDir(), "posters")
	posters := NewPosterCache(db, sources.NewClient("posters", time.Second), server.URL, dir)

	summary, err := posters.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if summary.Applied != 1 || downloads != 1 {
		t.Errorf("expected one download, got %+v with %d requests", summary, downloads)
	}

	files, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("failed to read poster dir: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected one poster file, got %d", len(files))
	}
	data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
	if err != nil {
		t.Fatalf("failed to read poster: %v", err)
	}
	if string(data) != "jpeg-bytes" {
		t.Errorf("unexpected poster contents %q", data)
	}

	// Files already on disk are not fetched again
	summary, err = posters.Refresh(context.Background())
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if summary.Applied != 0 || summary.Skipped != 1 || downloads != 1 {
		t.Errorf("expected existing poster skipped, got %+v with %d requests", summary, downloads)
	}
}
