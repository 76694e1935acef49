package page

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"
)

const (
	DefaultTimeout   = 15 * time.Second
	DefaultUserAgent = "linksift/1.0"

	maxBodySize = 10 << 20
)

type Options struct {
	UserAgent string
	Timeout   time.Duration
	Transport http.RoundTripper
}

// Browser is the owned rendering handle of the fetch step. The underlying
// connection pool is created on first use and recreated after Close.
type Browser struct {
	mu        sync.Mutex
	client    *http.Client
	transport http.RoundTripper
	userAgent string
	timeout   time.Duration
	connected bool
}

// Session is one page load. It must not be shared between fetches.
type Session struct {
	ctx       context.Context
	client    *http.Client
	userAgent string
	body      io.ReadCloser
}

func NewBrowser(opts Options) *Browser {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	return &Browser{
		transport: opts.Transport,
		userAgent: opts.UserAgent,
		timeout:   opts.Timeout,
	}
}

func (b *Browser) Timeout() time.Duration {
	return b.timeout
}

// Acquire opens a session bounded by the browser timeout. The returned
// release func must be called on every path.
func (b *Browser) Acquire(ctx context.Context) (*Session, func()) {
	client := b.connect()
	ctx, cancel := context.WithTimeout(ctx, b.timeout)

	s := &Session{ctx: ctx, client: client, userAgent: b.userAgent}
	release := func() {
		if s.body != nil {
			s.body.Close()
			s.body = nil
		}
		cancel()
	}

	return s, release
}

// Close drops idle connections. The next Acquire reconnects.
func (b *Browser) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.connected {
		return
	}
	b.client.CloseIdleConnections()
	b.connected = false

	slog.Debug("Browser disconnected")
}

func (b *Browser) connect() *http.Client {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.connected {
		return b.client
	}

	transport := b.transport
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   b.timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:          20,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   b.timeout,
			ResponseHeaderTimeout: b.timeout,
		}
	}

	b.client = &http.Client{Transport: transport}
	b.connected = true

	slog.Debug("Browser connected", "timeout", b.timeout)
	return b.client
}

// Render loads url and extracts its title, icons and readable text.
func (b *Browser) Render(ctx context.Context, url string) (Page, error) {
	session, release := b.Acquire(ctx)
	defer release()

	data, finalURL, err := session.Load(url)
	if err != nil {
		return Page{}, err
	}

	return Extract(data, finalURL)
}

// Load fetches an HTML document and returns its body and the URL it was
// served from after redirects.
func (s *Session) Load(url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml;q=0.9,*/*;q=0.8")

	resp, err := s.client.Do(req)
	if err != nil {
		if s.ctx.Err() != nil {
			return nil, "", fmt.Errorf("page load timed out: %w", s.ctx.Err())
		}
		return nil, "", fmt.Errorf("failed to fetch URL: %w", err)
	}
	s.body = resp.Body

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("HTTP error: %s", resp.Status)
	}

	contentType := strings.ToLower(resp.Header.Get("Content-Type"))
	if !strings.Contains(contentType, "text/html") && !strings.Contains(contentType, "application/xhtml") {
		return nil, "", fmt.Errorf("content type is not HTML: %s", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read response body: %w", err)
	}

	return data, resp.Request.URL.String(), nil
}
