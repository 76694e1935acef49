package tasks

import (
	"context"

	"github.com/lysyi3m/linksift/app/embedding"
	"github.com/lysyi3m/linksift/app/page"
)

// Renderer loads a URL and returns its readable text. Implementations bound
// the load with a timeout and release their resources on every path.
type Renderer interface {
	Render(ctx context.Context, url string) (page.Page, error)
}

// Embedder generates one vector per text, in input order.
type Embedder interface {
	GenerateMany(ctx context.Context, texts ...string) ([][]float32, error)
	MaxInput() int
}

// TaskSchedulerInterface runs the pipeline workers in the background.
//
//	scheduler := NewScheduler(queue, []Worker{fetchWorker, embedWorker}, opts)
//	scheduler.Start()
//	defer scheduler.Stop()
type TaskSchedulerInterface interface {
	Start()
	Stop()
}

var (
	_ Renderer = (*page.Browser)(nil)
	_ Embedder = (*embedding.Gateway)(nil)
)
