// Package fetch downloads a web page and extracts its title,
// description, heading sections, links and readable text.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/folio-agent/folio/internal/httpkit"
)

// DefaultTimeout is the HTTP request timeout for fetching pages.
const DefaultTimeout = 15 * time.Second

// DefaultMaxBytes caps the response body read from a page (2 MB).
const DefaultMaxBytes int64 = 2 << 20

// DefaultMaxChars is the default character limit for extracted text.
const DefaultMaxChars = 20000

// ErrNoURL is returned when Fetch is called without a URL.
var ErrNoURL = errors.New("fetch: url is required")

// Result holds the fetched and extracted content from a URL.
type Result struct {
	URL         string    `json:"url"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections"`
	Links       []Link    `json:"links"`
	Content     string    `json:"content"`
	Truncated   bool      `json:"truncated,omitempty"`
	StatusCode  int       `json:"status_code"`
}

// Section is a heading and the text that follows it up to the next
// heading.
type Section struct {
	Heading string `json:"heading"`
	Level   int    `json:"level"`
	Text    string `json:"text"`
}

// Link is an absolute hyperlink found on the page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// Fetcher downloads and extracts content from web pages.
type Fetcher struct {
	client   *http.Client
	maxBytes int64
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) { f.client = c }
}

// WithMaxBytes sets the response body cap.
func WithMaxBytes(n int64) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// New creates a Fetcher. The default client retries transient dial
// failures and sends the folio User-Agent.
func New(opts ...Option) *Fetcher {
	f := &Fetcher{
		client: httpkit.NewClient(
			httpkit.WithTimeout(DefaultTimeout),
			httpkit.WithRetry(2, 500*time.Millisecond),
			httpkit.WithRetryOnServerError(),
		),
		maxBytes: DefaultMaxBytes,
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// NormalizeURL trims rawURL, adds https:// when no scheme is given and
// rejects schemes other than http and https.
func NormalizeURL(rawURL string) (string, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return "", ErrNoURL
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("fetch: invalid url %q: %w", rawURL, err)
	}
	u.Scheme = strings.ToLower(u.Scheme)
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("fetch: unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("fetch: invalid url %q: missing host", rawURL)
	}
	return u.String(), nil
}

// Fetch downloads the URL and extracts its content. maxChars limits the
// extracted text; 0 uses DefaultMaxChars. A non-2xx response is an
// error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string, maxChars int) (*Result, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, err
	}
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch: invalid url: %w", err)
	}
	req.Header.Set("Accept", "text/html,application/xhtml+xml,text/plain;q=0.8,*/*;q=0.5")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: request %s: %w", target, err)
	}
	defer httpkit.DrainAndClose(resp.Body, 4096)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("fetch: %s returned status %d", target, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("fetch: read %s: %w", target, err)
	}

	base := resp.Request.URL
	result := &Result{
		URL:        base.String(),
		Sections:   []Section{},
		Links:      []Link{},
		StatusCode: resp.StatusCode,
	}

	switch mediaType(resp.Header.Get("Content-Type")) {
	case "text/html", "application/xhtml+xml", "":
		page := extractHTML(string(body), base)
		result.Title = page.title
		result.Description = page.description
		result.Sections = page.sections
		result.Links = page.links
		result.Content = page.text
	case "text/plain", "text/markdown":
		result.Content = cleanWhitespace(string(body))
	default:
		if !utf8.Valid(body) {
			return nil, fmt.Errorf("fetch: %s returned non-text content (%s)", target, resp.Header.Get("Content-Type"))
		}
		result.Content = cleanWhitespace(string(body))
	}

	result.Content, result.Truncated = truncateRunes(result.Content, maxChars)
	return result, nil
}

func mediaType(ct string) string {
	if ct == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(ct)
	if err != nil {
		return strings.ToLower(strings.TrimSpace(strings.Split(ct, ";")[0]))
	}
	return mt
}

// truncateRunes cuts s to at most maxChars runes.
func truncateRunes(s string, maxChars int) (string, bool) {
	if utf8.RuneCountInString(s) <= maxChars {
		return s, false
	}
	count := 0
	for i := range s {
		if count == maxChars {
			return s[:i], true
		}
		count++
	}
	return s, false
}
