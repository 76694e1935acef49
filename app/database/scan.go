package database

import (
	"database/sql"
	"errors"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

const listItemColumns = `id, href, title, COALESCE(favicon_url, ''), COALESCE(img_url, ''),
	status, COALESCE(status_text, ''), retry_count, max_retries,
	created_at, fetched_at, embedded_at, claimed_at`

const linkColumns = listItemColumns + `, COALESCE(content, ''), COALESCE(content_hash, '')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListItem(row rowScanner, extra ...any) (ListItem, error) {
	var (
		item                             ListItem
		status                           string
		createdAt                        int64
		fetchedAt, embeddedAt, claimedAt sql.NullInt64
	)

	dest := []any{
		&item.ID, &item.Href, &item.Title, &item.FaviconURL, &item.ImgURL,
		&status, &item.StatusText, &item.RetryCount, &item.MaxRetries,
		&createdAt, &fetchedAt, &embeddedAt, &claimedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return ListItem{}, err
	}

	item.Status = Status(status)
	item.CreatedAt = time.Unix(createdAt, 0)
	item.FetchedAt = unixPtr(fetchedAt)
	item.EmbeddedAt = unixPtr(embeddedAt)
	item.ClaimedAt = unixPtr(claimedAt)

	return item, nil
}

func scanLink(row rowScanner) (*Link, error) {
	var link Link
	item, err := scanListItem(row, &link.Content, &link.ContentHash)
	if err != nil {
		return nil, err
	}
	link.ListItem = item
	return &link, nil
}

func unixPtr(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.Unix(v.Int64, 0)
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	switch sqliteErr.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		return strings.Contains(sqliteErr.Error(), "UNIQUE")
	}
	return false
}

// placeholders returns "?, ?, ?" for n parameters.
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?, ", n-1) + "?"
}

func int64Args(ids []int64) []any {
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
