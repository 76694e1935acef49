package api

import (
	"context"
	"time"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/links"
	"github.com/lysyi3m/linksift/app/search"
	"github.com/lysyi3m/linksift/app/tasks"
)

type SearchInterface interface {
	Search(ctx context.Context, query string, topK int) ([]search.Result, error)
}

type ImporterInterface interface {
	Import(ctx context.Context, feedURL string) ([]database.Link, error)
}

type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[database.Status]int, error)
}

var (
	_ SearchInterface   = (*search.Engine)(nil)
	_ ImporterInterface = (*links.FeedImporter)(nil)
	_ StatusCounter     = (*database.QueueRepo)(nil)
)

type Handler struct {
	links    *links.Service
	importer ImporterInterface
	search   SearchInterface
	fetch    tasks.Worker
	embed    tasks.Worker
	counter  StatusCounter

	runTimeout time.Duration
}

type createLinksRequest struct {
	URL  string   `json:"url"`
	URLs []string `json:"urls"`
}

type updateLinkRequest struct {
	Title      *string `json:"title"`
	FaviconURL *string `json:"favicon_url"`
	ImgURL     *string `json:"img_url"`
	Status     *string `json:"status"`
	StatusText *string `json:"status_text"`
	RetryCount *int    `json:"retry_count"`
	MaxRetries *int    `json:"max_retries"`
}

type importFeedRequest struct {
	FeedURL string `json:"feed_url"`
}

type runWorkerRequest struct {
	ID *int64 `json:"id"`
}

type linkResponse struct {
	ID          int64      `json:"id"`
	Href        string     `json:"href"`
	Title       string     `json:"title"`
	FaviconURL  string     `json:"favicon_url,omitempty"`
	ImgURL      string     `json:"img_url,omitempty"`
	Status      string     `json:"status"`
	StatusText  string     `json:"status_text,omitempty"`
	RetryCount  int        `json:"retry_count"`
	MaxRetries  int        `json:"max_retries"`
	CreatedAt   time.Time  `json:"created_at"`
	FetchedAt   *time.Time `json:"fetched_at,omitempty"`
	EmbeddedAt  *time.Time `json:"embedded_at,omitempty"`
	Content     string     `json:"content,omitempty"`
	ContentHash string     `json:"content_hash,omitempty"`
}

type statusResponse struct {
	ID         int64  `json:"id"`
	Status     string `json:"status"`
	StatusText string `json:"status_text,omitempty"`
	RetryCount int    `json:"retry_count"`
	MaxRetries int    `json:"max_retries"`
}

type workerResponse struct {
	ID        *int64 `json:"id,omitempty"`
	Processed bool   `json:"processed"`
}

type searchResultResponse struct {
	Link     linkResponse `json:"link"`
	Snippets []string     `json:"snippets"`
}

func newListItemResponse(item database.ListItem) linkResponse {
	return linkResponse{
		ID:         item.ID,
		Href:       item.Href,
		Title:      item.Title,
		FaviconURL: item.FaviconURL,
		ImgURL:     item.ImgURL,
		Status:     string(item.Status),
		StatusText: item.StatusText,
		RetryCount: item.RetryCount,
		MaxRetries: item.MaxRetries,
		CreatedAt:  item.CreatedAt,
		FetchedAt:  item.FetchedAt,
		EmbeddedAt: item.EmbeddedAt,
	}
}

func newLinkResponse(link database.Link) linkResponse {
	resp := newListItemResponse(link.ListItem)
	resp.Content = link.Content
	resp.ContentHash = link.ContentHash
	return resp
}
