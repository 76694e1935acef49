package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/metrics"
)

const (
	DefaultTopK = 5
	MaxTopK     = 100
)

// QueryEmbedder turns the query text into a vector.
type QueryEmbedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// LinkLookup loads link metadata for matched chunks.
type LinkLookup interface {
	ListItemsByIDs(ctx context.Context, ids []int64) ([]database.ListItem, error)
}

// Result is one matched link and the snippets explaining the match. Links
// matched on meaning alone have no snippets.
type Result struct {
	Link     database.ListItem
	Snippets []string
}

type Engine struct {
	embedder QueryEmbedder
	chunks   database.ChunkRepository
	links    LinkLookup
	rng      int
	metrics  *metrics.Metrics
}

func NewEngine(embedder QueryEmbedder, chunks database.ChunkRepository, links LinkLookup, snippetRange int, m *metrics.Metrics) *Engine {
	if snippetRange <= 0 {
		snippetRange = DefaultRange
	}

	return &Engine{
		embedder: embedder,
		chunks:   chunks,
		links:    links,
		rng:      snippetRange,
		metrics:  m,
	}
}

type linkMatches struct {
	linkID   int64
	snippets []string
}

// Search returns the links owning the topK chunks nearest to query, best
// match first.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Result, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query must not be empty", database.ErrValidation)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	if topK > MaxTopK {
		return nil, fmt.Errorf("%w: top k must be at most %d", database.ErrValidation, MaxTopK)
	}

	started := time.Now()

	vector, err := e.embedder.Generate(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := e.chunks.Nearest(ctx, vector, topK)
	if err != nil {
		return nil, err
	}

	words := QueryWords(query)
	grouped := make([]*linkMatches, 0, len(matches))
	byLink := make(map[int64]*linkMatches, len(matches))

	for _, m := range matches {
		group, ok := byLink[m.LinkID]
		if !ok {
			group = &linkMatches{linkID: m.LinkID, snippets: []string{}}
			byLink[m.LinkID] = group
			grouped = append(grouped, group)
		}
		if snippet, ok := Snippet(words, m.Content, e.rng); ok {
			group.snippets = append(group.snippets, snippet)
		}
	}

	if len(grouped) == 0 {
		e.metrics.ObserveSearch(0, time.Since(started))
		return []Result{}, nil
	}

	ids := make([]int64, len(grouped))
	for i, g := range grouped {
		ids[i] = g.linkID
	}

	items, err := e.links.ListItemsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	itemsByID := make(map[int64]database.ListItem, len(items))
	for _, item := range items {
		itemsByID[item.ID] = item
	}

	results := make([]Result, 0, len(grouped))
	for _, g := range grouped {
		item, ok := itemsByID[g.linkID]
		if !ok {
			continue
		}
		results = append(results, Result{Link: item, Snippets: g.snippets})
	}

	e.metrics.ObserveSearch(len(results), time.Since(started))
	slog.Debug("Search completed",
		"query", query,
		"chunks", len(matches),
		"links", len(results),
		"duration", time.Since(started))

	return results, nil
}
