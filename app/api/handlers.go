package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/lysyi3m/linksift/app/database"
	"github.com/lysyi3m/linksift/app/links"
	"github.com/lysyi3m/linksift/app/tasks"
)

// NewHandler wires the route handlers. runTimeout bounds worker runs
// triggered over HTTP; zero means tasks.DefaultRunTimeout.
func NewHandler(linkService *links.Service, importer ImporterInterface, engine SearchInterface,
	fetch, embed tasks.Worker, counter StatusCounter, runTimeout time.Duration) *Handler {
	if runTimeout <= 0 {
		runTimeout = tasks.DefaultRunTimeout
	}

	return &Handler{
		links:      linkService,
		importer:   importer,
		search:     engine,
		fetch:      fetch,
		embed:      embed,
		counter:    counter,
		runTimeout: runTimeout,
	}
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
	}

	counts, err := h.counter.CountByStatus(c.Request.Context())
	if err != nil {
		slog.Error("Database error", "operation", "count_links", "error", err)
		health["status"] = "degraded"
		c.JSON(http.StatusServiceUnavailable, health)
		return
	}

	byStatus := make(map[string]int, len(counts))
	for status, n := range counts {
		byStatus[string(status)] = n
	}
	health["status"] = "ok"
	health["links"] = byStatus

	c.JSON(http.StatusOK, health)
}

func (h *Handler) CreateLinks(c *gin.Context) {
	var req createLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: invalid request body", database.ErrValidation))
		return
	}

	urls := req.URLs
	if req.URL != "" {
		urls = append([]string{req.URL}, urls...)
	}

	created, err := h.links.Create(c.Request.Context(), urls...)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]linkResponse, len(created))
	for i, link := range created {
		out[i] = newLinkResponse(link)
	}

	c.JSON(http.StatusCreated, gin.H{"links": out})
}

func (h *Handler) ListLinks(c *gin.Context) {
	limit, err := queryInt(c, "limit", 0)
	if err != nil {
		respondError(c, err)
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	items, err := h.links.Paginate(c.Request.Context(), limit, offset, c.Query("title"))
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]linkResponse, len(items))
	for i, item := range items {
		out[i] = newListItemResponse(item)
	}

	c.JSON(http.StatusOK, gin.H{"links": out, "limit": limit, "offset": offset})
}

func (h *Handler) GetLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	link, err := h.links.Get(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, newLinkResponse(*link))
}

func (h *Handler) UpdateLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	var req updateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, fmt.Errorf("%w: invalid request body", database.ErrValidation))
		return
	}

	update := database.LinkUpdate{
		Title:      req.Title,
		FaviconURL: req.FaviconURL,
		ImgURL:     req.ImgURL,
		StatusText: req.StatusText,
		RetryCount: req.RetryCount,
		MaxRetries: req.MaxRetries,
	}
	if req.Status != nil {
		status := database.Status(*req.Status)
		update.Status = &status
	}

	if err := h.links.Update(c.Request.Context(), id, update); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) DeleteLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.links.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *Handler) RequeueLink(c *gin.Context) {
	id, err := pathID(c)
	if err != nil {
		respondError(c, err)
		return
	}

	if err := h.links.Requeue(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}

	slog.Info("Link requeued", "link_id", id)
	c.JSON(http.StatusAccepted, gin.H{"id": id, "status": database.StatusPendingFetch})
}

func (h *Handler) GetStatuses(c *gin.Context) {
	var ids []int64
	for _, part := range strings.Split(c.Query("ids"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			respondError(c, fmt.Errorf("%w: invalid id %q", database.ErrValidation, part))
			return
		}
		ids = append(ids, id)
	}

	statuses, err := h.links.Statuses(c.Request.Context(), ids)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]statusResponse, len(statuses))
	for i, s := range statuses {
		out[i] = statusResponse{
			ID:         s.ID,
			Status:     string(s.Status),
			StatusText: s.StatusText,
			RetryCount: s.RetryCount,
			MaxRetries: s.MaxRetries,
		}
	}

	c.JSON(http.StatusOK, gin.H{"statuses": out})
}

func (h *Handler) ImportFeed(c *gin.Context) {
	var req importFeedRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.FeedURL == "" {
		respondError(c, fmt.Errorf("%w: feed_url is required", database.ErrValidation))
		return
	}

	created, err := h.importer.Import(c.Request.Context(), req.FeedURL)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]linkResponse, len(created))
	for i, link := range created {
		out[i] = newLinkResponse(link)
	}

	c.JSON(http.StatusOK, gin.H{"links": out})
}

func (h *Handler) RunFetchWorker(c *gin.Context) {
	h.runWorker(c, h.fetch)
}

func (h *Handler) RunEmbedWorker(c *gin.Context) {
	h.runWorker(c, h.embed)
}

func (h *Handler) runWorker(c *gin.Context, w tasks.Worker) {
	var req runWorkerRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			respondError(c, fmt.Errorf("%w: invalid request body", database.ErrValidation))
			return
		}
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.runTimeout)
	defer cancel()

	result, err := w.Run(ctx, req.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	resp := workerResponse{Processed: result.Processed}
	if result.Processed {
		resp.ID = &result.LinkID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Search(c *gin.Context) {
	topK, err := queryInt(c, "k", 0)
	if err != nil {
		respondError(c, err)
		return
	}

	results, err := h.search.Search(c.Request.Context(), c.Query("q"), topK)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]searchResultResponse, len(results))
	for i, r := range results {
		out[i] = searchResultResponse{Link: newListItemResponse(r.Link), Snippets: r.Snippets}
	}

	c.JSON(http.StatusOK, gin.H{"results": out})
}

// respondError maps the error taxonomy onto HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	var stepErr *tasks.StepError

	switch {
	case errors.Is(err, database.ErrValidation), errors.Is(err, database.ErrDuplicate):
		status = http.StatusBadRequest
	case errors.Is(err, database.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, tasks.ErrNoContent):
		status = http.StatusConflict
	case errors.As(err, &stepErr):
		status = http.StatusBadGateway
	}

	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
	}

	c.JSON(status, gin.H{"error": err.Error()})
}

func pathID(c *gin.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", database.ErrValidation, c.Param("id"))
	}
	return id, nil
}

func queryInt(c *gin.Context, key string, fallback int) (int, error) {
	v := c.Query(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%w: %s must be an integer", database.ErrValidation, key)
	}
	return n, nil
}
