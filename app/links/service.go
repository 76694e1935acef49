// Package links holds the caller-facing link operations: creation with
// duplicate rejection, edits, listing and queue status.
package links

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/linksift/app/database"
)

const (
	DefaultMaxRetries = 3
	DefaultPageSize   = 25
	MaxPageSize       = 100
)

type Service struct {
	links      database.LinkRepository
	queue      database.QueueRepository
	maxRetries int
}

func NewService(links database.LinkRepository, queue database.QueueRepository, maxRetries int) *Service {
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Service{
		links:      links,
		queue:      queue,
		maxRetries: maxRetries,
	}
}

// Create queues one link per URL for fetching. Every URL is validated and
// checked for duplicates, stored or within the batch, before anything is
// written.
func (s *Service) Create(ctx context.Context, urls ...string) ([]database.Link, error) {
	if len(urls) == 0 {
		return nil, fmt.Errorf("%w: no URLs given", database.ErrValidation)
	}

	batch, err := s.prepare(urls)
	if err != nil {
		return nil, err
	}

	existing, err := s.links.ExistingHrefs(ctx, hrefs(batch))
	if err != nil {
		return nil, err
	}
	for _, nl := range batch {
		if existing[nl.Href] {
			return nil, &database.DuplicateError{Href: nl.Href}
		}
	}

	created, err := s.links.Create(ctx, batch, s.maxRetries)
	if err != nil {
		return nil, err
	}

	slog.Info("Links created", "count", len(created))
	return created, nil
}

// CreateMissing queues the URLs that are not stored yet and skips the rest.
// Invalid URLs are skipped with a warning.
func (s *Service) CreateMissing(ctx context.Context, urls []string) ([]database.Link, error) {
	seen := make(map[string]bool, len(urls))
	var batch []database.NewLink

	for _, raw := range urls {
		href, hostname, err := NormalizeURL(raw)
		if err != nil {
			slog.Warn("Skipping invalid URL", "url", raw, "error", err)
			continue
		}
		if seen[href] {
			continue
		}
		seen[href] = true
		batch = append(batch, database.NewLink{Href: href, Title: hostname})
	}

	existing, err := s.links.ExistingHrefs(ctx, hrefs(batch))
	if err != nil {
		return nil, err
	}

	missing := batch[:0]
	for _, nl := range batch {
		if !existing[nl.Href] {
			missing = append(missing, nl)
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}

	return s.links.Create(ctx, missing, s.maxRetries)
}

func (s *Service) Get(ctx context.Context, id int64) (*database.Link, error) {
	return s.links.Get(ctx, id)
}

func (s *Service) Delete(ctx context.Context, id int64) error {
	if err := s.links.Delete(ctx, id); err != nil {
		return fmt.Errorf("unable to delete link %d: %w", id, err)
	}
	return nil
}

func (s *Service) Update(ctx context.Context, id int64, update database.LinkUpdate) error {
	if err := s.links.Update(ctx, id, update); err != nil {
		return fmt.Errorf("unable to update link %d: %w", id, err)
	}
	return nil
}

// Paginate lists links newest first. limit is clamped to 1..MaxPageSize and
// defaults to DefaultPageSize.
func (s *Service) Paginate(ctx context.Context, limit, offset int, titlePrefix string) ([]database.ListItem, error) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	limit = min(limit, MaxPageSize)
	if offset < 0 {
		return nil, fmt.Errorf("%w: offset must not be negative", database.ErrValidation)
	}

	return s.links.Paginate(ctx, limit, offset, titlePrefix)
}

func (s *Service) Statuses(ctx context.Context, ids []int64) ([]database.LinkStatus, error) {
	if len(ids) > MaxPageSize {
		return nil, fmt.Errorf("%w: at most %d ids per request", database.ErrValidation, MaxPageSize)
	}
	return s.links.Statuses(ctx, ids)
}

// Requeue restarts a link from the fetch step with a fresh retry budget.
func (s *Service) Requeue(ctx context.Context, id int64) error {
	if err := s.queue.Requeue(ctx, id); err != nil {
		return fmt.Errorf("unable to requeue link %d: %w", id, err)
	}
	return nil
}

func (s *Service) prepare(urls []string) ([]database.NewLink, error) {
	seen := make(map[string]bool, len(urls))
	batch := make([]database.NewLink, 0, len(urls))

	for _, raw := range urls {
		href, hostname, err := NormalizeURL(raw)
		if err != nil {
			return nil, err
		}
		if seen[href] {
			return nil, &database.DuplicateError{Href: href}
		}
		seen[href] = true
		batch = append(batch, database.NewLink{Href: href, Title: hostname})
	}

	return batch, nil
}

func hrefs(batch []database.NewLink) []string {
	out := make([]string, len(batch))
	for i, nl := range batch {
		out[i] = nl.Href
	}
	return out
}
