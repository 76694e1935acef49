package links

import (
	"bytes"
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/lysyi3m/linksift/app/database"
)

const maxFeedSize = 5 << 20

// FeedImporter queues the item links of an RSS or Atom feed.
type FeedImporter struct {
	service    *Service
	httpClient *http.Client
	parser     *gofeed.Parser
	userAgent  string
}

func NewFeedImporter(service *Service, httpClient *http.Client, userAgent string) *FeedImporter {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	return &FeedImporter{
		service:    service,
		httpClient: httpClient,
		parser:     gofeed.NewParser(),
		userAgent:  userAgent,
	}
}

// Import fetches the feed at feedURL and creates links for items that are not
// stored yet. Known links are skipped, not reported as duplicates.
func (i *FeedImporter) Import(ctx context.Context, feedURL string) ([]database.Link, error) {
	href, _, err := NormalizeURL(feedURL)
	if err != nil {
		return nil, err
	}

	data, err := i.fetch(ctx, href)
	if err != nil {
		return nil, err
	}

	urls, err := i.Parse(data)
	if err != nil {
		return nil, err
	}

	created, err := i.service.CreateMissing(ctx, urls)
	if err != nil {
		return nil, err
	}

	slog.Info("Feed imported",
		"feed", href,
		"items", len(urls),
		"created", len(created))

	return created, nil
}

// Parse returns the item URLs of a feed document in feed order.
func (i *FeedImporter) Parse(data []byte) ([]string, error) {
	feed, err := i.parser.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to parse feed: %v", database.ErrValidation, err)
	}

	urls := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if link := cmp.Or(item.Link, linkFromGUID(item)); link != "" {
			urls = append(urls, link)
		}
	}

	return urls, nil
}

func linkFromGUID(item *gofeed.Item) string {
	if strings.HasPrefix(item.GUID, "http://") || strings.HasPrefix(item.GUID, "https://") {
		return item.GUID
	}
	return ""
}

func (i *FeedImporter) fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if i.userAgent != "" {
		req.Header.Set("User-Agent", i.userAgent)
	}

	resp, err := i.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP error: %s", resp.Status)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFeedSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	return data, nil
}
