package services

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"watchlog/sources"

	"github.com/jmoiron/sqlx"
)

// PosterCache mirrors movie posters into a local directory so the web layer
// never hotlinks the metadata service.
type PosterCache struct {
	db           *sqlx.DB
	client       *sources.Client
	imageBaseURL string
	dir          string
}

func NewPosterCache(db *sqlx.DB, client *sources.Client, imageBaseURL, dir string) *PosterCache {
	return &PosterCache{
		db:           db,
		client:       client,
		imageBaseURL: imageBaseURL,
		dir:          dir,
	}
}

// Refresh downloads posters that are not on disk yet. Individual download
// failures are skipped; the rest of the run continues.
func (p *PosterCache) Refresh(ctx context.Context) (*Summary, error) {
	if err := os.MkdirAll(p.dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create poster directory: %w", err)
	}

	type posterRow struct {
		ID         int64  `db:"id"`
		PosterPath string `db:"tmdb_poster_path"`
	}
	var rows []posterRow
	query := p.db.Rebind(`SELECT id, tmdb_poster_path FROM movie WHERE tmdb_poster_path IS NOT NULL`)
	if err := p.db.Select(&rows, query); err != nil {
		return nil, fmt.Errorf("failed to list posters: %w", err)
	}

	summary := &Summary{}
	for _, row := range rows {
		target := filepath.Join(p.dir, fmt.Sprintf("%d.jpg", row.ID))
		if _, err := os.Stat(target); err == nil {
			summary.Skipped++
			continue
		}

		data, err := p.client.FetchBytes(ctx, p.imageBaseURL+row.PosterPath)
		if err != nil {
			slog.Warn("Failed to download poster", "movie_id", row.ID, "error", err)
			summary.Failed++
			continue
		}
		if err := os.WriteFile(target, data, 0o644); err != nil {
			return summary, fmt.Errorf("failed to write poster for movie %d: %w", row.ID, err)
		}
		summary.Applied++
	}

	slog.Info("Poster cache refreshed", "downloaded", summary.Applied, "existing", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}
