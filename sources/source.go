package sources

import (
	"context"

	"watchlog/models"
)

// Pager is a lazy finite sequence of canonical partials, one provider page at
// a time. NextPage returns nil once the sequence is exhausted. Import
// routines commit each page as its own batch and re-check their job's status
// between pages.
type Pager interface {
	NextPage(ctx context.Context) ([]models.Partial, error)
}

// pageSize is the provider page size; the clients paginate transparently.
const pageSize = 1000

// pagePager turns a page-number fetch function into a Pager. It stops when a
// fetch returns fewer records than a full page.
type pagePager struct {
	fetch func(ctx context.Context, page int) ([]models.Partial, error)
	page  int
	done  bool
}

func (p *pagePager) NextPage(ctx context.Context) ([]models.Partial, error) {
	if p.done {
		return nil, nil
	}

	records, err := p.fetch(ctx, p.page)
	if err != nil {
		return nil, err
	}
	p.page++
	if len(records) < pageSize {
		p.done = true
	}
	if len(records) == 0 {
		return nil, nil
	}
	return records, nil
}

// SlicePager wraps pre-built partials in a Pager, one page per call. Used by
// tests and small in-memory sequences.
type SlicePager struct {
	Pages [][]models.Partial
	next  int
}

func (s *SlicePager) NextPage(ctx context.Context) ([]models.Partial, error) {
	if s.next >= len(s.Pages) {
		return nil, nil
	}
	page := s.Pages[s.next]
	s.next++
	return page, nil
}
