package database

import (
	"context"
	"time"
)

type LinkRepository interface {
	Create(ctx context.Context, links []NewLink, maxRetries int) ([]Link, error)
	Get(ctx context.Context, id int64) (*Link, error)
	Delete(ctx context.Context, id int64) error
	Update(ctx context.Context, id int64, update LinkUpdate) error
	Paginate(ctx context.Context, limit, offset int, titlePrefix string) ([]ListItem, error)
	ListItemsByIDs(ctx context.Context, ids []int64) ([]ListItem, error)
	Statuses(ctx context.Context, ids []int64) ([]LinkStatus, error)
	ExistingHrefs(ctx context.Context, hrefs []string) (map[string]bool, error)
}

type QueueRepository interface {
	ClaimNext(ctx context.Context, step Step) (*Link, error)
	ClaimByID(ctx context.Context, step Step, id int64) (*Link, error)
	MarkFetchSuccess(ctx context.Context, id int64, page FetchedPage) error
	MarkEmbedSuccess(ctx context.Context, id int64, chunks []Chunk) error
	MarkFailure(ctx context.Context, id int64, step Step, message string) (Status, error)
	Release(ctx context.Context, id int64, step Step, message string) error
	Requeue(ctx context.Context, id int64) error
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int64, error)
	CountByStatus(ctx context.Context) (map[Status]int, error)
}

type ChunkRepository interface {
	Nearest(ctx context.Context, query []float32, k int) ([]ChunkMatch, error)
	ForLink(ctx context.Context, linkID int64) ([]Chunk, error)
}

var (
	_ LinkRepository  = (*LinkRepo)(nil)
	_ QueueRepository = (*QueueRepo)(nil)
	_ ChunkRepository = (*ChunkRepo)(nil)
)
