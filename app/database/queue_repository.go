package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const (
	fetchedText   = "fetched"
	requeuedText  = "requeued"
	reclaimedText = "reclaimed stale claim"
)

// QueueRepo drives links through the fetch and embed steps. Claims are
// single statements so concurrent workers never receive the same link.
type QueueRepo struct {
	db *DB
}

func NewQueueRepository(db *DB) *QueueRepo {
	return &QueueRepo{db: db}
}

// ClaimNext moves the oldest eligible link for step into its in-progress
// state and returns it. It returns nil when nothing is eligible.
func (r *QueueRepo) ClaimNext(ctx context.Context, step Step) (*Link, error) {
	if !step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", ErrValidation, step)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE links
		SET status = ?, claimed_at = ?
		WHERE id = (
			SELECT id FROM links
			WHERE status = ? AND retry_count < max_retries
			ORDER BY created_at, id
			LIMIT 1
		)
		RETURNING `+linkColumns,
		string(step.ActiveStatus()), time.Now().Unix(), string(step.PendingStatus()))

	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim %s work: %w", step, err)
	}

	return link, nil
}

// ClaimByID claims a specific link for step whatever its current status.
func (r *QueueRepo) ClaimByID(ctx context.Context, step Step, id int64) (*Link, error) {
	if !step.Valid() {
		return nil, fmt.Errorf("%w: unknown step %q", ErrValidation, step)
	}

	row := r.db.QueryRowContext(ctx, `
		UPDATE links
		SET status = ?, claimed_at = ?
		WHERE id = ?
		RETURNING `+linkColumns,
		string(step.ActiveStatus()), time.Now().Unix(), id)

	link, err := scanLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to claim link %d for %s: %w", id, step, err)
	}

	return link, nil
}

// MarkFetchSuccess stores the fetched page and hands the link to the embed step.
func (r *QueueRepo) MarkFetchSuccess(ctx context.Context, id int64, page FetchedPage) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE links
		SET title = COALESCE(NULLIF(?, ''), title),
			favicon_url = ?,
			img_url = ?,
			content = ?,
			content_hash = ?,
			status = ?,
			status_text = ?,
			fetched_at = ?,
			claimed_at = NULL
		WHERE id = ?`,
		page.Title, nullString(page.FaviconURL), nullString(page.ImgURL),
		page.Content, page.ContentHash, string(StatusPendingEmbed), fetchedText,
		time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark link %d fetched: %w", id, err)
	}

	return expectAffected(result, id)
}

// MarkEmbedSuccess replaces the link's chunk set and marks it searchable in a
// single transaction.
func (r *QueueRepo) MarkEmbedSuccess(ctx context.Context, id int64, chunks []Chunk) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM links WHERE id = ?`, id).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to check link %d: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM link_embedding_chunks WHERE link_id = ?`, id); err != nil {
		return fmt.Errorf("failed to clear chunks of link %d: %w", id, err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO link_embedding_chunks (link_id, chunk_index, content, embedding)
		VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare chunk insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, id, i, c.Content, EncodeEmbedding(c.Embedding)); err != nil {
			return fmt.Errorf("failed to insert chunk %d of link %d: %w", i, id, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE links
		SET status = ?, status_text = ?, embedded_at = ?, claimed_at = NULL
		WHERE id = ?`,
		string(StatusSuccess), fmt.Sprintf("embedded %d chunks", len(chunks)), time.Now().Unix(), id)
	if err != nil {
		return fmt.Errorf("failed to mark link %d embedded: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit embeddings of link %d: %w", id, err)
	}

	return nil
}

// MarkFailure records a failed attempt at step and returns the resulting
// status: the step's pending status while retries remain, failed otherwise.
func (r *QueueRepo) MarkFailure(ctx context.Context, id int64, step Step, message string) (Status, error) {
	if !step.Valid() {
		return "", fmt.Errorf("%w: unknown step %q", ErrValidation, step)
	}

	var retryCount, maxRetries int
	err := r.db.QueryRowContext(ctx,
		`SELECT retry_count, max_retries FROM links WHERE id = ?`, id).Scan(&retryCount, &maxRetries)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to read retries of link %d: %w", id, err)
	}

	retryCount++
	status := step.PendingStatus()
	if retryCount >= maxRetries {
		status = StatusFailed
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE links
		SET status = ?, status_text = ?, retry_count = ?, claimed_at = NULL
		WHERE id = ?`,
		string(status), message, retryCount, id)
	if err != nil {
		return "", fmt.Errorf("failed to mark link %d failed: %w", id, err)
	}
	if err := expectAffected(result, id); err != nil {
		return "", err
	}

	return status, nil
}

// Release returns a claimed link to the pending status of step without
// consuming a retry.
func (r *QueueRepo) Release(ctx context.Context, id int64, step Step, message string) error {
	if !step.Valid() {
		return fmt.Errorf("%w: unknown step %q", ErrValidation, step)
	}

	result, err := r.db.ExecContext(ctx, `
		UPDATE links
		SET status = ?, status_text = ?, claimed_at = NULL
		WHERE id = ?`,
		string(step.PendingStatus()), message, id)
	if err != nil {
		return fmt.Errorf("failed to release link %d: %w", id, err)
	}

	return expectAffected(result, id)
}

// Requeue restarts a link from the fetch step with a fresh retry budget.
func (r *QueueRepo) Requeue(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE links
		SET status = ?, status_text = ?, retry_count = 0, claimed_at = NULL
		WHERE id = ?`,
		string(StatusPendingFetch), requeuedText, id)
	if err != nil {
		return fmt.Errorf("failed to requeue link %d: %w", id, err)
	}

	return expectAffected(result, id)
}

// ReclaimStale returns in-progress links claimed more than olderThan ago to
// their pending status. Reclaiming does not consume a retry.
func (r *QueueRepo) ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan).Unix()

	result, err := r.db.ExecContext(ctx, `
		UPDATE links
		SET status = CASE status WHEN ? THEN ? ELSE ? END,
			status_text = ?,
			claimed_at = NULL
		WHERE status IN (?, ?) AND claimed_at < ?`,
		string(StatusFetching), string(StatusPendingFetch), string(StatusPendingEmbed),
		reclaimedText,
		string(StatusFetching), string(StatusEmbedding), cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale claims: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read reclaimed rows: %w", err)
	}

	return n, nil
}

// CountByStatus returns the number of links in every status, zeros included.
func (r *QueueRepo) CountByStatus(ctx context.Context) (map[Status]int, error) {
	counts := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		counts[s] = 0
	}

	rows, err := r.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM links GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count links: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan count: %w", err)
		}
		counts[Status(status)] = n
	}

	return counts, rows.Err()
}
