package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// LinkRepo handles caller-facing link operations
type LinkRepo struct {
	db *DB
}

func NewLinkRepository(db *DB) *LinkRepo {
	return &LinkRepo{db: db}
}

// Create inserts all links in one transaction. An href that already exists
// aborts the batch with a *DuplicateError.
func (r *LinkRepo) Create(ctx context.Context, links []NewLink, maxRetries int) ([]Link, error) {
	if len(links) == 0 {
		return nil, nil
	}
	if maxRetries <= 0 {
		return nil, fmt.Errorf("%w: max retries must be positive", ErrValidation)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().Unix()
	created := make([]Link, 0, len(links))

	for _, nl := range links {
		row := tx.QueryRowContext(ctx, `
			INSERT INTO links (href, title, status, max_retries, created_at)
			VALUES (?, ?, ?, ?, ?)
			RETURNING `+linkColumns,
			nl.Href, nl.Title, string(StatusPendingFetch), maxRetries, now)

		link, err := scanLink(row)
		if err != nil {
			if isUniqueViolation(err) {
				return nil, &DuplicateError{Href: nl.Href}
			}
			return nil, fmt.Errorf("failed to insert link %s: %w", nl.Href, err)
		}
		created = append(created, *link)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit links: %w", err)
	}

	return created, nil
}

func (r *LinkRepo) Get(ctx context.Context, id int64) (*Link, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ?`, id)

	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get link %d: %w", id, err)
	}

	return link, nil
}

// ExistingHrefs reports which of hrefs are already stored.
func (r *LinkRepo) ExistingHrefs(ctx context.Context, hrefs []string) (map[string]bool, error) {
	existing := make(map[string]bool)
	if len(hrefs) == 0 {
		return existing, nil
	}

	args := make([]any, len(hrefs))
	for i, h := range hrefs {
		args[i] = h
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT href FROM links WHERE href IN (`+placeholders(len(hrefs))+`)`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query hrefs: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var href string
		if err := rows.Scan(&href); err != nil {
			return nil, fmt.Errorf("failed to scan href: %w", err)
		}
		existing[href] = true
	}

	return existing, rows.Err()
}

// Delete removes a link; its chunks go with it through the foreign key.
func (r *LinkRepo) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM links WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete link %d: %w", id, err)
	}

	return expectAffected(result, id)
}

func (r *LinkRepo) Update(ctx context.Context, id int64, update LinkUpdate) error {
	if update.IsEmpty() {
		return fmt.Errorf("%w: no fields to update", ErrValidation)
	}

	var (
		sets []string
		args []any
	)
	set := func(column string, value any) {
		sets = append(sets, column+" = ?")
		args = append(args, value)
	}

	if update.Title != nil {
		if strings.TrimSpace(*update.Title) == "" {
			return fmt.Errorf("%w: title must not be empty", ErrValidation)
		}
		set("title", *update.Title)
	}
	if update.FaviconURL != nil {
		set("favicon_url", nullString(*update.FaviconURL))
	}
	if update.ImgURL != nil {
		set("img_url", nullString(*update.ImgURL))
	}
	if update.Status != nil {
		if !update.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrValidation, *update.Status)
		}
		set("status", string(*update.Status))
	}
	if update.StatusText != nil {
		set("status_text", nullString(*update.StatusText))
	}
	if update.RetryCount != nil {
		if *update.RetryCount < 0 {
			return fmt.Errorf("%w: retry count must not be negative", ErrValidation)
		}
		set("retry_count", *update.RetryCount)
	}
	if update.MaxRetries != nil {
		if *update.MaxRetries <= 0 {
			return fmt.Errorf("%w: max retries must be positive", ErrValidation)
		}
		set("max_retries", *update.MaxRetries)
	}

	args = append(args, id)
	result, err := r.db.ExecContext(ctx,
		`UPDATE links SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...)
	if err != nil {
		return fmt.Errorf("failed to update link %d: %w", id, err)
	}

	return expectAffected(result, id)
}

// Paginate lists links newest first. A non-empty titlePrefix restricts the
// page to titles starting with it.
func (r *LinkRepo) Paginate(ctx context.Context, limit, offset int, titlePrefix string) ([]ListItem, error) {
	query := `SELECT ` + listItemColumns + ` FROM links`
	var args []any

	if titlePrefix != "" {
		query += ` WHERE title LIKE ? ESCAPE '\'`
		args = append(args, escapeLike(titlePrefix)+"%")
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, limit, offset)

	return r.queryListItems(ctx, query, args...)
}

// ListItemsByIDs returns the links among ids that still exist, in id order.
func (r *LinkRepo) ListItemsByIDs(ctx context.Context, ids []int64) ([]ListItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	return r.queryListItems(ctx,
		`SELECT `+listItemColumns+` FROM links WHERE id IN (`+placeholders(len(ids))+`) ORDER BY id`,
		int64Args(ids)...)
}

func (r *LinkRepo) Statuses(ctx context.Context, ids []int64) ([]LinkStatus, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, status, COALESCE(status_text, ''), retry_count, max_retries
		FROM links
		WHERE id IN (`+placeholders(len(ids))+`)
		ORDER BY id`, int64Args(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query statuses: %w", err)
	}
	defer rows.Close()

	var statuses []LinkStatus
	for rows.Next() {
		var s LinkStatus
		var status string
		if err := rows.Scan(&s.ID, &status, &s.StatusText, &s.RetryCount, &s.MaxRetries); err != nil {
			return nil, fmt.Errorf("failed to scan status: %w", err)
		}
		s.Status = Status(status)
		statuses = append(statuses, s)
	}

	return statuses, rows.Err()
}

func (r *LinkRepo) queryListItems(ctx context.Context, query string, args ...any) ([]ListItem, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query links: %w", err)
	}
	defer rows.Close()

	var items []ListItem
	for rows.Next() {
		item, err := scanListItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan link: %w", err)
		}
		items = append(items, item)
	}

	return items, rows.Err()
}

func expectAffected(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows for link %d: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
