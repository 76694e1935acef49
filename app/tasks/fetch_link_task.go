package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/lysyi3m/linksift/app/content"
	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/metrics"
)

// FetchWorker renders claimed links and stores their normalized text.
type FetchWorker struct {
	queue    database.QueueRepository
	renderer Renderer
	metrics  *metrics.Metrics
}

func NewFetchWorker(queue database.QueueRepository, renderer Renderer, m *metrics.Metrics) *FetchWorker {
	return &FetchWorker{
		queue:    queue,
		renderer: renderer,
		metrics:  m,
	}
}

func (w *FetchWorker) Type() TaskType {
	return TaskTypeFetchLink
}

// Run claims the next link waiting for fetch, or the link with the given id,
// and fetches it. Without an id an empty queue is not an error.
func (w *FetchWorker) Run(ctx context.Context, id *int64) (result Result, err error) {
	task := NewTask(TaskTypeFetchLink)
	task.Start()
	defer func() { task.finish(w.metrics, database.StepFetch, err) }()

	link, err := claim(ctx, w.queue, database.StepFetch, id)
	if err != nil {
		return Result{}, err
	}
	if link == nil {
		return Result{}, nil
	}
	task.LinkID = link.ID

	fetched, err := w.fetch(ctx, link)
	if err != nil {
		return Result{LinkID: link.ID}, fail(ctx, w.queue, database.StepFetch, link.ID, err)
	}

	if err := w.queue.MarkFetchSuccess(context.WithoutCancel(ctx), link.ID, fetched); err != nil {
		return Result{LinkID: link.ID}, fmt.Errorf("failed to store fetched link %d: %w", link.ID, err)
	}

	return Result{LinkID: link.ID, Processed: true}, nil
}

func (w *FetchWorker) fetch(ctx context.Context, link *database.Link) (database.FetchedPage, error) {
	p, err := w.renderer.Render(ctx, link.Href)
	if err != nil {
		return database.FetchedPage{}, fmt.Errorf("failed to render %s: %w", link.Href, err)
	}

	text := content.Normalize(p.Text)
	if text == "" {
		return database.FetchedPage{}, fmt.Errorf("no content extracted from %s", link.Href)
	}

	hash := content.Hash(text)
	if hash == link.ContentHash {
		slog.Debug("Content unchanged since last fetch", "link_id", link.ID, "hash", hash)
	}

	return database.FetchedPage{
		Title:       p.Title,
		FaviconURL:  p.FaviconURL,
		ImgURL:      p.ImgURL,
		Content:     text,
		ContentHash: hash,
	}, nil
}
