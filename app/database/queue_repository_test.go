package database

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRepo_ClaimNext_FIFO(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	links := createLinks(t, db, 3, "https://a.example/", "https://b.example/")

	first, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, links[0].ID, first.ID)
	assert.Equal(t, StatusFetching, first.Status)
	assert.NotNil(t, first.ClaimedAt)

	second, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)
	require.NotNil(t, second)
	assert.Equal(t, links[1].ID, second.ID)

	none, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)
	assert.Nil(t, none)

	none, err = queue.ClaimNext(t.Context(), StepEmbed)
	require.NoError(t, err)
	assert.Nil(t, none, "nothing is pending embed")
}

func TestQueueRepo_ClaimNext_Concurrent(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	createLinks(t, db, 3, "https://a.example/", "https://b.example/", "https://c.example/")

	const workers = 8
	var (
		mu      sync.Mutex
		claimed = make(map[int64]int)
		wg      sync.WaitGroup
	)

	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			link, err := queue.ClaimNext(t.Context(), StepFetch)
			if !assert.NoError(t, err) || link == nil {
				return
			}
			mu.Lock()
			claimed[link.ID]++
			mu.Unlock()
		}()
	}
	wg.Wait()

	assert.Len(t, claimed, 3)
	for id, n := range claimed {
		assert.Equal(t, 1, n, "link %d claimed more than once", id)
	}
}

func TestQueueRepo_ClaimNext_SkipsExhausted(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	link := createLinks(t, db, 1, "https://a.example/")[0]

	_, err := db.Exec(`UPDATE links SET retry_count = 1 WHERE id = ?`, link.ID)
	require.NoError(t, err)

	got, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestQueueRepo_ClaimByID(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	link := createLinks(t, db, 3, "https://a.example/")[0]

	got, err := queue.ClaimByID(t.Context(), StepEmbed, link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusEmbedding, got.Status, "claim by id ignores the current status")

	_, err = queue.ClaimByID(t.Context(), StepFetch, link.ID+1)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueRepo_FullPipeline(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	chunks := NewChunkRepository(db)
	link := createLinks(t, db, 3, "https://a.example/")[0]

	_, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)

	require.NoError(t, queue.MarkFetchSuccess(t.Context(), link.ID, FetchedPage{
		Title:       "Example",
		FaviconURL:  "https://a.example/favicon.ico",
		Content:     "hello world",
		ContentHash: "abc",
	}))

	fetched, err := queue.ClaimNext(t.Context(), StepEmbed)
	require.NoError(t, err)
	require.NotNil(t, fetched)
	assert.Equal(t, "Example", fetched.Title)
	assert.Equal(t, "hello world", fetched.Content)
	assert.Equal(t, "abc", fetched.ContentHash)
	assert.Empty(t, fetched.ImgURL)
	assert.NotNil(t, fetched.FetchedAt)

	require.NoError(t, queue.MarkEmbedSuccess(t.Context(), link.ID, []Chunk{
		{Content: "hello", Embedding: []float32{1, 0, 0}},
		{Content: "world", Embedding: []float32{0, 1, 0}},
	}))

	done, err := NewLinkRepository(db).Get(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, done.Status)
	assert.NotNil(t, done.EmbeddedAt)
	assert.Nil(t, done.ClaimedAt)
	assert.Equal(t, 0, done.RetryCount)

	stored, err := chunks.ForLink(t.Context(), link.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "hello", stored[0].Content)
	assert.Equal(t, []float32{0, 1, 0}, stored[1].Embedding)
}

func TestQueueRepo_MarkEmbedSuccess_ReplacesChunks(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	chunks := NewChunkRepository(db)
	link := createLinks(t, db, 3, "https://a.example/")[0]

	first := []Chunk{
		{Content: "a", Embedding: []float32{1, 0}},
		{Content: "b", Embedding: []float32{0, 1}},
		{Content: "c", Embedding: []float32{1, 1}},
	}
	second := []Chunk{{Content: "z", Embedding: []float32{1, 0}}}

	require.NoError(t, queue.MarkEmbedSuccess(t.Context(), link.ID, first))
	require.NoError(t, queue.MarkEmbedSuccess(t.Context(), link.ID, first))

	stored, err := chunks.ForLink(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Len(t, stored, 3, "same input twice leaves one chunk set")

	require.NoError(t, queue.MarkEmbedSuccess(t.Context(), link.ID, second))
	stored, err = chunks.ForLink(t.Context(), link.ID)
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Equal(t, "z", stored[0].Content)

	assert.ErrorIs(t, queue.MarkEmbedSuccess(t.Context(), link.ID+1, second), ErrNotFound)
}

func TestQueueRepo_MarkFetchSuccess_Vanished(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)

	err := queue.MarkFetchSuccess(t.Context(), 42, FetchedPage{Content: "x"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueRepo_MarkFailure(t *testing.T) {
	tests := []struct {
		name       string
		step       Step
		retryCount int
		maxRetries int
		wantStatus Status
		wantRetry  int
	}{
		{"fetch retries remain", StepFetch, 0, 3, StatusPendingFetch, 1},
		{"fetch last retry", StepFetch, 2, 3, StatusFailed, 3},
		{"embed retries remain", StepEmbed, 1, 3, StatusPendingEmbed, 2},
		{"single attempt budget", StepEmbed, 0, 1, StatusFailed, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db := newTestDB(t)
			queue := NewQueueRepository(db)
			link := createLinks(t, db, tt.maxRetries, "https://a.example/")[0]

			_, err := db.Exec(`UPDATE links SET retry_count = ? WHERE id = ?`, tt.retryCount, link.ID)
			require.NoError(t, err)
			_, err = queue.ClaimByID(t.Context(), tt.step, link.ID)
			require.NoError(t, err)

			status, err := queue.MarkFailure(t.Context(), link.ID, tt.step, "boom")
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, status)

			got, err := NewLinkRepository(db).Get(t.Context(), link.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, got.Status)
			assert.Equal(t, tt.wantRetry, got.RetryCount)
			assert.Equal(t, "boom", got.StatusText)
			assert.Nil(t, got.ClaimedAt)
		})
	}
}

func TestQueueRepo_MarkFailure_Missing(t *testing.T) {
	db := newTestDB(t)
	_, err := NewQueueRepository(db).MarkFailure(t.Context(), 7, StepFetch, "boom")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestQueueRepo_ReleaseAndRequeue(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	links := NewLinkRepository(db)
	link := createLinks(t, db, 3, "https://a.example/")[0]

	_, err := queue.ClaimByID(t.Context(), StepEmbed, link.ID)
	require.NoError(t, err)
	require.NoError(t, queue.Release(t.Context(), link.ID, StepFetch, "no content"))

	got, err := links.Get(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingFetch, got.Status)
	assert.Equal(t, "no content", got.StatusText)
	assert.Equal(t, 0, got.RetryCount)

	_, err = queue.ClaimByID(t.Context(), StepEmbed, link.ID)
	require.NoError(t, err)
	require.NoError(t, queue.Release(t.Context(), link.ID, StepEmbed, "interrupted"))

	got, err = links.Get(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingEmbed, got.Status)
	assert.Equal(t, 0, got.RetryCount)
	assert.Nil(t, got.ClaimedAt)

	_, err = db.Exec(`UPDATE links SET status = 'failed', retry_count = 3 WHERE id = ?`, link.ID)
	require.NoError(t, err)
	require.NoError(t, queue.Requeue(t.Context(), link.ID))

	got, err = links.Get(t.Context(), link.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingFetch, got.Status)
	assert.Equal(t, 0, got.RetryCount)

	assert.ErrorIs(t, queue.Requeue(t.Context(), link.ID+1), ErrNotFound)
	assert.ErrorIs(t, queue.Release(t.Context(), link.ID+1, StepFetch, "x"), ErrNotFound)
	assert.ErrorIs(t, queue.Release(t.Context(), link.ID, Step("publish"), "x"), ErrValidation)
}

func TestQueueRepo_ReclaimStale(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	links := createLinks(t, db, 3, "https://a.example/", "https://b.example/", "https://c.example/")

	_, err := queue.ClaimByID(t.Context(), StepFetch, links[0].ID)
	require.NoError(t, err)
	_, err = queue.ClaimByID(t.Context(), StepEmbed, links[1].ID)
	require.NoError(t, err)
	_, err = queue.ClaimByID(t.Context(), StepFetch, links[2].ID)
	require.NoError(t, err)

	old := time.Now().Add(-time.Hour).Unix()
	_, err = db.Exec(`UPDATE links SET claimed_at = ? WHERE id IN (?, ?)`, old, links[0].ID, links[1].ID)
	require.NoError(t, err)

	n, err := queue.ReclaimStale(t.Context(), 10*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	repo := NewLinkRepository(db)
	want := map[int64]Status{
		links[0].ID: StatusPendingFetch,
		links[1].ID: StatusPendingEmbed,
		links[2].ID: StatusFetching,
	}
	for id, status := range want {
		got, err := repo.Get(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
		assert.Equal(t, 0, got.RetryCount)
	}

	got, err := repo.Get(t.Context(), links[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "reclaimed stale claim", got.StatusText)
}

func TestQueueRepo_CountByStatus(t *testing.T) {
	db := newTestDB(t)
	queue := NewQueueRepository(db)
	createLinks(t, db, 3, "https://a.example/", "https://b.example/")

	_, err := queue.ClaimNext(t.Context(), StepFetch)
	require.NoError(t, err)

	counts, err := queue.CountByStatus(t.Context())
	require.NoError(t, err)
	assert.Len(t, counts, len(Statuses))
	assert.Equal(t, 1, counts[StatusPendingFetch])
	assert.Equal(t, 1, counts[StatusFetching])
	assert.Equal(t, 0, counts[StatusSuccess])
}
