package tasks

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lysyi3m/linksift/app/content"
	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/metrics"
)

const noContentText = "no content to embed, fetching again"

// EmbedWorker chunks the content of claimed links and stores one embedding
// per chunk.
type EmbedWorker struct {
	queue    database.QueueRepository
	embedder Embedder
	metrics  *metrics.Metrics
}

func NewEmbedWorker(queue database.QueueRepository, embedder Embedder, m *metrics.Metrics) *EmbedWorker {
	return &EmbedWorker{
		queue:    queue,
		embedder: embedder,
		metrics:  m,
	}
}

func (w *EmbedWorker) Type() TaskType {
	return TaskTypeEmbedLink
}

// Run claims the next link waiting for embedding, or the link with the given
// id, and replaces its chunk set. A link without content is sent back to the
// fetch step with its retries untouched.
func (w *EmbedWorker) Run(ctx context.Context, id *int64) (result Result, err error) {
	task := NewTask(TaskTypeEmbedLink)
	task.Start()
	defer func() { task.finish(w.metrics, database.StepEmbed, err) }()

	link, err := claim(ctx, w.queue, database.StepEmbed, id)
	if err != nil {
		return Result{}, err
	}
	if link == nil {
		return Result{}, nil
	}
	task.LinkID = link.ID

	if strings.TrimSpace(link.Content) == "" {
		if markErr := w.queue.Release(context.WithoutCancel(ctx), link.ID, database.StepFetch, noContentText); markErr != nil {
			return Result{LinkID: link.ID}, fmt.Errorf("link %d: %w (%w)", link.ID, ErrNoContent, markErr)
		}
		return Result{LinkID: link.ID}, fmt.Errorf("link %d: %w", link.ID, ErrNoContent)
	}

	texts := content.Chunk(link.Content, w.embedder.MaxInput())

	vectors, err := w.embedder.GenerateMany(ctx, texts...)
	if err != nil {
		return Result{LinkID: link.ID}, fail(ctx, w.queue, database.StepEmbed, link.ID, err)
	}

	chunks := make([]database.Chunk, len(texts))
	for i, text := range texts {
		chunks[i] = database.Chunk{Content: text, Embedding: vectors[i]}
	}

	if err := w.queue.MarkEmbedSuccess(context.WithoutCancel(ctx), link.ID, chunks); err != nil {
		return Result{LinkID: link.ID}, fmt.Errorf("failed to store embeddings of link %d: %w", link.ID, err)
	}

	slog.Debug("Link embedded", "link_id", link.ID, "chunks", len(chunks))

	return Result{LinkID: link.ID, Processed: true}, nil
}
