package tasks

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/page"
)

type fakeRenderer struct {
	mu    sync.Mutex
	pages map[string]page.Page
	err   error
	calls []string
}

func (f *fakeRenderer) Render(_ context.Context, url string) (page.Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, url)
	if f.err != nil {
		return page.Page{}, f.err
	}
	return f.pages[url], nil
}

type fakeEmbedder struct {
	maxInput int
	err      error
	inputs   [][]string
}

func (f *fakeEmbedder) MaxInput() int {
	return f.maxInput
}

func (f *fakeEmbedder) GenerateMany(_ context.Context, texts ...string) ([][]float32, error) {
	f.inputs = append(f.inputs, texts)
	if f.err != nil {
		return nil, f.err
	}

	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}

// cancellingRenderer cancels the run's parent context while the page loads.
// With a zero page it reports the cancellation, otherwise the load finishes.
type cancellingRenderer struct {
	cancel context.CancelFunc
	page   page.Page
}

func (r *cancellingRenderer) Render(ctx context.Context, url string) (page.Page, error) {
	r.cancel()
	if r.page.Text == "" {
		return page.Page{}, fmt.Errorf("failed to fetch URL: %w", ctx.Err())
	}
	return r.page, nil
}

type cancellingEmbedder struct {
	cancel context.CancelFunc
}

func (e *cancellingEmbedder) MaxInput() int {
	return 100
}

func (e *cancellingEmbedder) GenerateMany(ctx context.Context, texts ...string) ([][]float32, error) {
	e.cancel()
	return nil, fmt.Errorf("embedding request failed: %w", ctx.Err())
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.NewConnection(filepath.Join(t.TempDir(), "links.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, _, err = database.RunMigrations(db)
	require.NoError(t, err)

	return db
}

func createLink(t *testing.T, db *database.DB, href string, maxRetries int) database.Link {
	t.Helper()

	links, err := database.NewLinkRepository(db).Create(t.Context(),
		[]database.NewLink{{Href: href, Title: "example.com"}}, maxRetries)
	require.NoError(t, err)
	return links[0]
}

func getLink(t *testing.T, db *database.DB, id int64) *database.Link {
	t.Helper()

	link, err := database.NewLinkRepository(db).Get(t.Context(), id)
	require.NoError(t, err)
	return link
}

func ptr[T any](v T) *T {
	return &v
}

func TestFetchWorker_Success(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	renderer := &fakeRenderer{pages: map[string]page.Page{
		"https://example.com/a": {
			Title:      "Example A",
			FaviconURL: "https://example.com/favicon.ico",
			Text:       "para one\r\n\r\n\r\npara two  ",
		},
	}}
	worker := NewFetchWorker(queue, renderer, nil)

	result, err := worker.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{LinkID: link.ID, Processed: true}, result)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingEmbed, got.Status)
	assert.Equal(t, "Example A", got.Title)
	assert.Equal(t, "https://example.com/favicon.ico", got.FaviconURL)
	assert.Equal(t, "para one\n\npara two", got.Content)
	assert.Len(t, got.ContentHash, 64)
	assert.NotNil(t, got.FetchedAt)
	assert.Nil(t, got.ClaimedAt)
}

func TestFetchWorker_NothingToDo(t *testing.T) {
	db := newTestDB(t)
	renderer := &fakeRenderer{}
	worker := NewFetchWorker(database.NewQueueRepository(db), renderer, nil)

	result, err := worker.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{}, result)
	assert.Empty(t, renderer.calls)
}

func TestFetchWorker_UnknownID(t *testing.T) {
	db := newTestDB(t)
	worker := NewFetchWorker(database.NewQueueRepository(db), &fakeRenderer{}, nil)

	_, err := worker.Run(t.Context(), ptr(int64(42)))
	assert.ErrorIs(t, err, database.ErrNotFound)
}

func TestFetchWorker_ByIDIgnoresStatus(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	status := database.StatusSuccess
	require.NoError(t, database.NewLinkRepository(db).Update(t.Context(), link.ID, database.LinkUpdate{Status: &status}))

	renderer := &fakeRenderer{pages: map[string]page.Page{"https://example.com/a": {Text: "again"}}}
	result, err := NewFetchWorker(queue, renderer, nil).Run(t.Context(), &link.ID)
	require.NoError(t, err)
	assert.True(t, result.Processed)
	assert.Equal(t, database.StatusPendingEmbed, getLink(t, db, link.ID).Status)
}

func TestFetchWorker_FailureRetriesThenFails(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	renderer := &fakeRenderer{err: errors.New("navigation timeout")}
	worker := NewFetchWorker(queue, renderer, nil)

	for attempt := 1; attempt <= 3; attempt++ {
		_, err := worker.Run(t.Context(), nil)

		var stepErr *StepError
		require.ErrorAs(t, err, &stepErr)
		assert.Equal(t, database.StepFetch, stepErr.Step)
		assert.Equal(t, link.ID, stepErr.LinkID)
		assert.Equal(t, attempt == 3, stepErr.Terminal)

		got := getLink(t, db, link.ID)
		assert.Equal(t, attempt, got.RetryCount)
		assert.Contains(t, got.StatusText, "navigation timeout")
		if attempt < 3 {
			assert.Equal(t, database.StatusPendingFetch, got.Status)
		} else {
			assert.Equal(t, database.StatusFailed, got.Status)
		}
	}

	result, err := worker.Run(t.Context(), nil)
	require.NoError(t, err)
	assert.False(t, result.Processed, "failed links are not claimed again")
	assert.Len(t, renderer.calls, 3)
}

func TestFetchWorker_CancelledRunKeepsRetries(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	for run := 1; run <= 3; run++ {
		ctx, cancel := context.WithCancel(t.Context())
		worker := NewFetchWorker(queue, &cancellingRenderer{cancel: cancel}, nil)

		_, err := worker.Run(ctx, nil)
		require.ErrorIs(t, err, context.Canceled)
		var stepErr *StepError
		assert.False(t, errors.As(err, &stepErr), "cancellation is not a step failure")

		got := getLink(t, db, link.ID)
		assert.Equal(t, database.StatusPendingFetch, got.Status, "run %d", run)
		assert.Equal(t, 0, got.RetryCount, "run %d", run)
		assert.Equal(t, interruptedText, got.StatusText)
		assert.Nil(t, got.ClaimedAt)
	}
}

func TestFetchWorker_TimeoutConsumesRetry(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	renderer := &fakeRenderer{err: fmt.Errorf("page load timed out: %w", context.DeadlineExceeded)}
	_, err := NewFetchWorker(queue, renderer, nil).Run(t.Context(), nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, 1, getLink(t, db, link.ID).RetryCount)
}

func TestFetchWorker_StoresResultAfterCancellation(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	ctx, cancel := context.WithCancel(t.Context())
	renderer := &cancellingRenderer{cancel: cancel, page: page.Page{Title: "A", Text: "loaded before the cancel"}}

	result, err := NewFetchWorker(queue, renderer, nil).Run(ctx, nil)
	require.NoError(t, err)
	assert.True(t, result.Processed)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingEmbed, got.Status)
	assert.Equal(t, "loaded before the cancel", got.Content)
}

func TestFetchWorker_EmptyTextIsFailure(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	renderer := &fakeRenderer{pages: map[string]page.Page{"https://example.com/a": {Text: " \n\n "}}}
	_, err := NewFetchWorker(queue, renderer, nil).Run(t.Context(), nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingFetch, got.Status)
	assert.Equal(t, 1, got.RetryCount)
}

func fetched(t *testing.T, db *database.DB, href, text string) database.Link {
	t.Helper()

	link := createLink(t, db, href, 3)
	queue := database.NewQueueRepository(db)

	_, err := queue.ClaimByID(t.Context(), database.StepFetch, link.ID)
	require.NoError(t, err)
	require.NoError(t, queue.MarkFetchSuccess(t.Context(), link.ID, database.FetchedPage{Content: text, ContentHash: "h"}))

	return link
}

func TestEmbedWorker_SingleChunk(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := fetched(t, db, "https://example.com/a", "para one\n\npara two")

	embedder := &fakeEmbedder{maxInput: 100}
	result, err := NewEmbedWorker(queue, embedder, nil).Run(t.Context(), nil)
	require.NoError(t, err)
	assert.Equal(t, Result{LinkID: link.ID, Processed: true}, result)

	require.Len(t, embedder.inputs, 1)
	assert.Equal(t, []string{"para one\n\npara two"}, embedder.inputs[0])

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusSuccess, got.Status)
	assert.NotNil(t, got.EmbeddedAt)

	chunks, err := database.NewChunkRepository(db).ForLink(t.Context(), link.ID)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, []float32{18, 1}, chunks[0].Embedding)
}

func TestEmbedWorker_HardSplitChunks(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := fetched(t, db, "https://example.com/a", "para one\n\npara two")

	embedder := &fakeEmbedder{maxInput: 5}
	_, err := NewEmbedWorker(queue, embedder, nil).Run(t.Context(), &link.ID)
	require.NoError(t, err)

	chunks, err := database.NewChunkRepository(db).ForLink(t.Context(), link.ID)
	require.NoError(t, err)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	assert.Equal(t, []string{"para ", "one", "para ", "two"}, texts)
}

func TestEmbedWorker_ReembedReplacesChunks(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := fetched(t, db, "https://example.com/a", strings.Repeat("word ", 10))

	worker := NewEmbedWorker(queue, &fakeEmbedder{maxInput: 10}, nil)
	_, err := worker.Run(t.Context(), nil)
	require.NoError(t, err)

	worker = NewEmbedWorker(queue, &fakeEmbedder{maxInput: 100}, nil)
	_, err = worker.Run(t.Context(), &link.ID)
	require.NoError(t, err)

	chunks, err := database.NewChunkRepository(db).ForLink(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestEmbedWorker_ProviderFailure(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := fetched(t, db, "https://example.com/a", "some text")

	_, err := NewEmbedWorker(queue, &fakeEmbedder{maxInput: 100, err: errors.New("rate limited")}, nil).Run(t.Context(), nil)

	var stepErr *StepError
	require.ErrorAs(t, err, &stepErr)
	assert.Equal(t, database.StepEmbed, stepErr.Step)
	assert.False(t, stepErr.Terminal)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingEmbed, got.Status)
	assert.Equal(t, 1, got.RetryCount)
	assert.Equal(t, "rate limited", got.StatusText)
}

func TestEmbedWorker_CancelledRunKeepsRetries(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := fetched(t, db, "https://example.com/a", "some text")

	ctx, cancel := context.WithCancel(t.Context())
	_, err := NewEmbedWorker(queue, &cancellingEmbedder{cancel: cancel}, nil).Run(ctx, nil)
	require.ErrorIs(t, err, context.Canceled)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingEmbed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
}

func TestEmbedWorker_NoContent(t *testing.T) {
	db := newTestDB(t)
	queue := database.NewQueueRepository(db)
	link := createLink(t, db, "https://example.com/a", 3)

	embedder := &fakeEmbedder{maxInput: 100}
	_, err := NewEmbedWorker(queue, embedder, nil).Run(t.Context(), &link.ID)
	assert.ErrorIs(t, err, ErrNoContent)
	assert.Empty(t, embedder.inputs)

	got := getLink(t, db, link.ID)
	assert.Equal(t, database.StatusPendingFetch, got.Status)
	assert.Equal(t, 0, got.RetryCount, "missing content does not consume a retry")
	assert.Equal(t, noContentText, got.StatusText)
}

func TestStepError(t *testing.T) {
	cause := errors.New("boom")
	err := &StepError{Step: database.StepFetch, LinkID: 7, Err: cause}

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "fetch of link 7 failed: boom", err.Error())

	err.Terminal = true
	assert.Equal(t, "fetch of link 7 failed permanently: boom", err.Error())
}
