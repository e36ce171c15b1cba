package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"watchlog/models"
	"watchlog/sources"

	"github.com/jmoiron/sqlx"
)

// SocialSource is the slice of the social-tracking service the importer
// needs.
type SocialSource interface {
	History(creds sources.TraktCredentials) sources.Pager
	Ratings(creds sources.TraktCredentials) sources.Pager
}

// MediaSource is the slice of the media server the importer needs.
type MediaSource interface {
	Items(creds sources.JellyfinCredentials) sources.Pager
}

// Importer holds the per-source import routines the worker dispatches to.
// Every routine commits each source page as its own batch and re-checks the
// job's status between pages so external termination is observed.
type Importer struct {
	db      *sqlx.DB
	movies  *MovieStore
	users   *UserStore
	jobs    *JobStore
	cache   *MediaCache
	fetcher MetadataFetcher
	social  SocialSource
	media   MediaSource
	posters *PosterCache

	csvDateLayout        string
	metadataRefreshLimit int
}

func NewImporter(
	db *sqlx.DB,
	movies *MovieStore,
	users *UserStore,
	jobs *JobStore,
	cache *MediaCache,
	fetcher MetadataFetcher,
	social SocialSource,
	media MediaSource,
	posters *PosterCache,
	csvDateLayout string,
	metadataRefreshLimit int,
) *Importer {
	return &Importer{
		db:                   db,
		movies:               movies,
		users:                users,
		jobs:                 jobs,
		cache:                cache,
		fetcher:              fetcher,
		social:               social,
		media:                media,
		posters:              posters,
		csvDateLayout:        csvDateLayout,
		metadataRefreshLimit: metadataRefreshLimit,
	}
}

// RegisterAll wires every job type into the worker.
func (i *Importer) RegisterAll(w *Worker) {
	w.Register(models.JobTypeMediaServerRefresh, i.RefreshMediaServer)
	w.Register(models.JobTypeSocialImportHistory, i.ImportSocialHistory)
	w.Register(models.JobTypeSocialImportRatings, i.ImportSocialRatings)
	w.Register(models.JobTypeCsvImportHistory, i.ImportCsvHistory)
	w.Register(models.JobTypeCsvImportRatings, i.ImportCsvRatings)
	w.Register(models.JobTypeMetadataRefresh, i.RefreshMetadata)
	w.Register(models.JobTypePosterCacheRefresh, i.RefreshPosterCache)
}

// ImportSocialHistory pulls the user's watched-movie events from the social
// service.
func (i *Importer) ImportSocialHistory(ctx context.Context, job models.Job) (*Summary, error) {
	userID, err := requireUser(job)
	if err != nil {
		return nil, err
	}
	creds, err := i.users.TraktCredentials(userID)
	if err != nil {
		return nil, err
	}
	return i.importHistory(ctx, job, userID, i.social.History(*creds), "trakt")
}

// ImportSocialRatings pulls the user's ratings from the social service.
func (i *Importer) ImportSocialRatings(ctx context.Context, job models.Job) (*Summary, error) {
	userID, err := requireUser(job)
	if err != nil {
		return nil, err
	}
	creds, err := i.users.TraktCredentials(userID)
	if err != nil {
		return nil, err
	}
	return i.importRatings(ctx, job, userID, i.social.Ratings(*creds), "trakt")
}

// ImportCsvHistory imports watch history from an export file named in the
// job's "file" parameter.
func (i *Importer) ImportCsvHistory(ctx context.Context, job models.Job) (*Summary, error) {
	userID, err := requireUser(job)
	if err != nil {
		return nil, err
	}
	reader, err := i.openCsv(job)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return i.importHistory(ctx, job, userID, reader, "csv")
}

// ImportCsvRatings imports ratings from an export file.
func (i *Importer) ImportCsvRatings(ctx context.Context, job models.Job) (*Summary, error) {
	userID, err := requireUser(job)
	if err != nil {
		return nil, err
	}
	reader, err := i.openCsv(job)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	return i.importRatings(ctx, job, userID, reader, "csv")
}

// RefreshMediaServer refreshes the user's media-server cache, then
// reconciles the watched items into the watch history.
func (i *Importer) RefreshMediaServer(ctx context.Context, job models.Job) (*Summary, error) {
	userID, err := requireUser(job)
	if err != nil {
		return nil, err
	}
	creds, err := i.users.JellyfinCredentials(userID)
	if err != nil {
		return nil, err
	}

	changed, err := i.cache.Refresh(ctx, userID, i.media.Items(*creds))
	if err != nil {
		return nil, err
	}
	slog.Info("Media-server cache refreshed", "user_id", userID, "changed", changed)

	entries, err := i.cache.Entries(userID)
	if err != nil {
		return nil, err
	}

	summary := &Summary{}
	resolver := NewResolver(i.movies, i.fetcher)

	type watchedEntry struct {
		movieID int64
		date    string
	}
	watched := make([]watchedEntry, 0, len(entries))
	for _, entry := range entries {
		if !entry.Watched || entry.TmdbID == nil {
			continue
		}

		movieID, err := resolver.Resolve(ctx, models.Partial{
			TmdbID:         entry.TmdbID,
			JellyfinItemID: &entry.JellyfinItemID,
		})
		if err != nil {
			if errors.Is(err, ErrUnresolvable) {
				summary.Skipped++
				continue
			}
			return summary, err
		}

		date := entry.CachedAt[:len(models.DateLayout)]
		if entry.LastWatchDate != nil {
			date = *entry.LastWatchDate
		}
		watched = append(watched, watchedEntry{movieID: movieID, date: date})
	}

	tx, err := i.db.Beginx()
	if err != nil {
		return summary, fmt.Errorf("failed to begin reconciliation: %w", err)
	}
	defer tx.Rollback()

	rec := NewReconciler(tx)
	for _, entry := range watched {
		if err := rec.EnsureWatched(userID, entry.movieID, entry.date); err != nil {
			return summary, err
		}
		summary.Applied++
	}

	if err := tx.Commit(); err != nil {
		return summary, fmt.Errorf("failed to commit reconciliation: %w", err)
	}
	return summary, nil
}

// RefreshMetadata re-fetches the least recently refreshed movies.
func (i *Importer) RefreshMetadata(ctx context.Context, job models.Job) (*Summary, error) {
	limit := i.metadataRefreshLimit
	if raw, ok := job.Parameters["limit"].(float64); ok && int(raw) > 0 {
		limit = int(raw)
	}
	return i.movies.RefreshMetadata(ctx, i.fetcher, limit)
}

// RefreshPosterCache downloads missing poster files.
func (i *Importer) RefreshPosterCache(ctx context.Context, job models.Job) (*Summary, error) {
	return i.posters.Refresh(ctx)
}

func (i *Importer) openCsv(job models.Job) (*sources.CsvReader, error) {
	path, _ := job.Parameters["file"].(string)
	if path == "" {
		return nil, errors.New("csv job is missing the file parameter")
	}
	layout := i.csvDateLayout
	if custom, ok := job.Parameters["date_layout"].(string); ok && custom != "" {
		layout = custom
	}
	return sources.OpenCsv(path, layout)
}

// importHistory applies dated watch events. Play counts accumulate per
// (movie, date) across the whole job and are written as exact counts, so
// re-running the same import cannot inflate plays.
func (i *Importer) importHistory(ctx context.Context, job models.Job, userID int64, pager sources.Pager, sourceName string) (*Summary, error) {
	summary := &Summary{}
	resolver := NewResolver(i.movies, i.fetcher)
	playsSeen := make(map[string]int)

	for {
		terminated, err := i.terminated(job.ID)
		if err != nil {
			return summary, err
		}
		if terminated {
			slog.Warn("Job terminated externally, aborting import", "job_id", job.ID)
			return summary, ErrJobTerminated
		}

		page, err := pager.NextPage(ctx)
		if err != nil {
			return summary, err
		}
		if page == nil {
			return summary, nil
		}

		if err := i.applyHistoryPage(ctx, job, userID, resolver, playsSeen, page, sourceName, summary); err != nil {
			return summary, err
		}
	}
}

// resolvedRecord is a partial whose canonical movie is known; resolution
// happens before the batch transaction opens so the movie store never
// contends with it.
type resolvedRecord struct {
	movieID int64
	partial models.Partial
}

func (i *Importer) resolvePage(ctx context.Context, resolver *Resolver, page []models.Partial, sourceName string, summary *Summary, skip func(models.Partial) bool) ([]resolvedRecord, error) {
	records := make([]resolvedRecord, 0, len(page))
	pageFailed := 0

	for _, partial := range page {
		if !partial.HasIdentifier() && partial.Title == "" {
			slog.Warn("Dropping record without identifier", "source", sourceName)
			summary.Skipped++
			continue
		}
		if skip(partial) {
			summary.Skipped++
			continue
		}

		movieID, err := resolver.Resolve(ctx, partial)
		if err != nil {
			switch {
			case errors.Is(err, ErrUnresolvable):
				slog.Warn("Skipping unresolvable record", "source", sourceName, "title", partial.Title)
				summary.Skipped++
				continue
			case sources.IsKind(err, sources.ErrorKindProtocol), sources.IsKind(err, sources.ErrorKindNotFound):
				summary.Failed++
				pageFailed++
				continue
			default:
				return nil, err
			}
		}
		records = append(records, resolvedRecord{movieID: movieID, partial: partial})
	}

	if pageFailed*10 > len(page) {
		return nil, &sources.Error{
			Kind:   sources.ErrorKindProtocol,
			Source: sourceName,
			Err:    fmt.Errorf("%d of %d records in batch violated the provider contract", pageFailed, len(page)),
		}
	}
	return records, nil
}

func (i *Importer) applyHistoryPage(ctx context.Context, job models.Job, userID int64, resolver *Resolver, playsSeen map[string]int, page []models.Partial, sourceName string, summary *Summary) error {
	records, err := i.resolvePage(ctx, resolver, page, sourceName, summary, func(p models.Partial) bool {
		return p.WatchDate == ""
	})
	if err != nil {
		return err
	}

	tx, err := i.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	rec := NewReconciler(tx).WithPrecedence(precedenceFromParams(job.Parameters))
	for _, record := range records {
		key := fmt.Sprintf("%d|%s", record.movieID, record.partial.WatchDate)
		playsSeen[key]++
		if err := rec.SetPlayCount(userID, record.movieID, record.partial.WatchDate, playsSeen[key]); err != nil {
			return err
		}
		summary.Applied++

		if record.partial.Rating != nil {
			if _, err := rec.SetRating(userID, record.movieID, record.partial.Rating, sourceName); err != nil {
				return err
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

// importRatings applies rating records, last write wins within the batch.
func (i *Importer) importRatings(ctx context.Context, job models.Job, userID int64, pager sources.Pager, sourceName string) (*Summary, error) {
	summary := &Summary{}
	resolver := NewResolver(i.movies, i.fetcher)

	for {
		terminated, err := i.terminated(job.ID)
		if err != nil {
			return summary, err
		}
		if terminated {
			slog.Warn("Job terminated externally, aborting import", "job_id", job.ID)
			return summary, ErrJobTerminated
		}

		page, err := pager.NextPage(ctx)
		if err != nil {
			return summary, err
		}
		if page == nil {
			return summary, nil
		}

		if err := i.applyRatingPage(ctx, job, userID, resolver, page, sourceName, summary); err != nil {
			return summary, err
		}
	}
}

func (i *Importer) applyRatingPage(ctx context.Context, job models.Job, userID int64, resolver *Resolver, page []models.Partial, sourceName string, summary *Summary) error {
	records, err := i.resolvePage(ctx, resolver, page, sourceName, summary, func(p models.Partial) bool {
		return p.Rating == nil
	})
	if err != nil {
		return err
	}

	tx, err := i.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin batch: %w", err)
	}
	defer tx.Rollback()

	rec := NewReconciler(tx).WithPrecedence(precedenceFromParams(job.Parameters))
	for _, record := range records {
		applied, err := rec.SetRating(userID, record.movieID, record.partial.Rating, sourceName)
		if err != nil {
			return err
		}
		if applied {
			summary.Applied++
		} else {
			summary.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	return nil
}

func (i *Importer) terminated(jobID string) (bool, error) {
	status, err := i.jobs.Status(jobID)
	if err != nil {
		return false, err
	}
	return status != models.JobStatusInProgress, nil
}

func requireUser(job models.Job) (int64, error) {
	if job.UserID == nil {
		return 0, fmt.Errorf("job %s requires a user", job.Type)
	}
	return *job.UserID, nil
}

func precedenceFromParams(params models.JobParams) []string {
	raw, ok := params["rating_precedence"].([]any)
	if !ok {
		return nil
	}
	order := make([]string, 0, len(raw))
	for _, entry := range raw {
		if name, ok := entry.(string); ok {
			order = append(order, name)
		}
	}
	return order
}
