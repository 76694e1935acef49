package page

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"

	"github.com/lysyi3m/linksift/app/content"
)

var ErrNoContent = errors.New("no content extracted")

// Page is what the fetch step keeps of a rendered document.
type Page struct {
	Title      string
	FaviconURL string
	ImgURL     string
	Text       string
}

var (
	blockTags = map[string]bool{
		"p": true, "div": true, "section": true, "article": true, "main": true,
		"header": true, "footer": true, "aside": true, "blockquote": true, "pre": true,
		"ul": true, "ol": true, "li": true, "table": true, "tr": true, "figure": true,
		"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
		"dl": true, "dt": true, "dd": true, "hr": true, "figcaption": true,
	}
	skipTags = map[string]bool{
		"script": true, "style": true, "noscript": true, "template": true,
		"svg": true, "iframe": true, "head": true,
	}
	inlineSpace = regexp.MustCompile(`[ \t\f\v\r\n]+`)
)

// Extract turns an HTML document served from pageURL into a Page. The
// readable article is preferred; the whole body is used when readability
// finds nothing.
func Extract(data []byte, pageURL string) (Page, error) {
	if len(data) == 0 {
		return Page{}, fmt.Errorf("HTML data is empty")
	}

	base, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, fmt.Errorf("invalid page URL: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return Page{}, fmt.Errorf("failed to parse HTML: %w", err)
	}

	p := Page{
		Title:      strings.TrimSpace(doc.Find("title").First().Text()),
		FaviconURL: favicon(doc, base),
		ImgURL:     metaImage(doc, base),
	}

	article, err := readability.FromReader(bytes.NewReader(data), base)
	if err != nil {
		slog.Debug("Readability failed, using page body", "url", pageURL, "error", err)
	} else {
		if p.Title == "" {
			p.Title = strings.TrimSpace(article.Title)
		}
		if p.ImgURL == "" {
			p.ImgURL = resolve(base, article.Image)
		}
		if p.FaviconURL == "" {
			p.FaviconURL = resolve(base, article.Favicon)
		}
		if article.Content != "" {
			if articleDoc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content)); err == nil {
				p.Text = Text(articleDoc.Selection)
			}
		}
	}

	if p.Text == "" {
		p.Text = Text(doc.Find("body"))
	}
	if p.Text == "" {
		return Page{}, ErrNoContent
	}

	slog.Debug("Content extracted successfully",
		"title", p.Title,
		"content_length", len(p.Text))

	return p, nil
}

// Text renders a selection as plain text with a blank line between blocks.
func Text(sel *goquery.Selection) string {
	var b strings.Builder

	var walk func(s *goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			name := goquery.NodeName(c)
			switch {
			case name == "#text":
				b.WriteString(inlineSpace.ReplaceAllString(c.Text(), " "))
			case skipTags[name]:
			case name == "br":
				b.WriteString("\n")
			case name == "li":
				b.WriteString("\n\n- ")
				walk(c)
				b.WriteString("\n\n")
			case blockTags[name]:
				b.WriteString("\n\n")
				walk(c)
				b.WriteString("\n\n")
			default:
				walk(c)
			}
		})
	}
	walk(sel)

	lines := strings.Split(b.String(), "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSpace(l)
	}

	return content.Normalize(strings.Join(lines, "\n"))
}

func favicon(doc *goquery.Document, base *url.URL) string {
	var href string
	doc.Find("link[rel]").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		rel := strings.ToLower(s.AttrOr("rel", ""))
		if !strings.Contains(rel, "icon") {
			return true
		}
		href = s.AttrOr("href", "")
		return href == ""
	})

	return resolve(base, href)
}

func metaImage(doc *goquery.Document, base *url.URL) string {
	for _, selector := range []string{`meta[property="og:image"]`, `meta[name="twitter:image"]`} {
		if v := doc.Find(selector).First().AttrOr("content", ""); v != "" {
			return resolve(base, v)
		}
	}
	return ""
}

func resolve(base *url.URL, ref string) string {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return ""
	}

	u, err := base.Parse(ref)
	if err != nil {
		return ""
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return ""
	}
	return u.String()
}
