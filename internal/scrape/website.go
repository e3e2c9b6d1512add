// Package scrape reads a company's own website to seed an analysis with the
// company name and description.
package scrape

import (
	"context"
	"html"
	"io"
	"net"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/model"
)

const maxBody = 512 * 1024

// Website fetches a company homepage over net/http and reads its title and
// meta tags.
type Website struct {
	client    *http.Client
	userAgent string
}

// Option configures a Website scraper.
type Option func(*Website)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(w *Website) {
		if c != nil {
			w.client = c
		}
	}
}

// NewWebsite creates a Website scraper with sensible defaults.
func NewWebsite(opts ...Option) *Website {
	w := &Website{
		client: &http.Client{
			Timeout: 15 * time.Second,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout: 10 * time.Second,
				}).DialContext,
				TLSHandshakeTimeout: 10 * time.Second,
			},
		},
		userAgent: "Mozilla/5.0 (compatible; VisibilityBot/1.0)",
	}
	for _, o := range opts {
		o(w)
	}
	return w
}

// Scrape fetches targetURL and builds the company from the page.
func (w *Website) Scrape(ctx context.Context, targetURL string) (*model.Company, error) {
	targetURL = strings.TrimSpace(targetURL)
	if !strings.Contains(targetURL, "://") {
		targetURL = "https://" + targetURL
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: create request")
	}
	req.Header.Set("User-Agent", w.userAgent)
	req.Header.Set("Accept", "text/html")

	start := time.Now()
	resp, err := w.client.Do(req)
	if err != nil {
		return nil, eris.Wrap(err, "scrape: fetch")
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, eris.Wrap(err, "scrape: read body")
	}

	if block := DetectBlock(resp, body); block != BlockNone {
		return nil, eris.Errorf("scrape: blocked (%s)", block)
	}
	if resp.StatusCode >= 400 {
		return nil, eris.Errorf("scrape: status %d", resp.StatusCode)
	}

	page := string(body)
	name := siteName(page, resp.Request.URL.Hostname())
	co := &model.Company{
		Name: name,
		URL:  targetURL,
		Facts: model.Facts{
			Description: firstNonEmpty(metaContent(page, "description"), metaContent(page, "og:description")),
		},
	}
	zap.L().Debug("scrape: company page read",
		zap.String("url", targetURL),
		zap.String("name", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
	return co, nil
}

var (
	titleRe = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	metaRe  = regexp.MustCompile(`(?is)<meta\s+[^>]*>`)
	attrRe  = regexp.MustCompile(`(?is)(name|property|content)\s*=\s*("[^"]*"|'[^']*')`)
)

// titleSeparators split "Acme | CRM for teams" style titles.
var titleSeparators = []string{" | ", " - ", " – ", " — ", ": ", " · "}

// siteName prefers og:site_name, then the leading title segment, then the
// host without www.
func siteName(page, host string) string {
	if n := metaContent(page, "og:site_name"); n != "" {
		return n
	}
	if m := titleRe.FindStringSubmatch(page); len(m) > 1 {
		title := strings.Join(strings.Fields(html.UnescapeString(m[1])), " ")
		for _, sep := range titleSeparators {
			if i := strings.Index(title, sep); i > 0 {
				title = title[:i]
				break
			}
		}
		if title = strings.TrimSpace(title); title != "" {
			return title
		}
	}
	return strings.TrimPrefix(host, "www.")
}

// metaContent returns the content of the first meta tag whose name or
// property equals key.
func metaContent(page, key string) string {
	for _, tag := range metaRe.FindAllString(page, -1) {
		var matched bool
		var content string
		for _, a := range attrRe.FindAllStringSubmatch(tag, -1) {
			val := strings.Trim(a[2], `"'`)
			switch strings.ToLower(a[1]) {
			case "name", "property":
				matched = matched || strings.EqualFold(val, key)
			case "content":
				content = val
			}
		}
		if matched {
			return strings.TrimSpace(html.UnescapeString(content))
		}
	}
	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
