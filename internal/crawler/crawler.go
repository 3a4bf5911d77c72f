// Package crawler fetches a single web page and reduces it to plain text
// suitable for ingestion.
package crawler

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/andybalholm/brotli"
	"golang.org/x/net/html/charset"
)

const userAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0 Safari/537.36"

// maxBodySize caps how much of a response we read. Pages larger than this
// are truncated, not rejected.
const maxBodySize = 10 << 20

var httpTransport = &http.Transport{
	DisableCompression: false,
}

// Page is the extracted content of a fetched URL.
type Page struct {
	URL   string
	Title string
	Text  string
}

// NormalizeURL normalizes a URL to a canonical form: fragment stripped,
// scheme and host lowercased, default ports and non-root trailing slashes
// removed. A URL with no scheme gets https.
func NormalizeURL(rawURL string) (string, error) {
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme: %s", parsed.Scheme)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("URL has no host: %s", rawURL)
	}

	parsed.Fragment = ""
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	parsed.Host = strings.ToLower(parsed.Host)

	path := parsed.Path
	if path == "" {
		path = "/"
	} else if path != "/" {
		path = strings.TrimSuffix(path, "/")
		if path == "" {
			path = "/"
		}
	}
	parsed.Path = path

	if parsed.Port() == "80" && parsed.Scheme == "http" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}
	if parsed.Port() == "443" && parsed.Scheme == "https" {
		host, _, _ := strings.Cut(parsed.Host, ":")
		parsed.Host = host
	}

	return parsed.String(), nil
}

// Fetch downloads the page at rawURL and extracts its visible text. The URL
// is normalized first; the returned Page carries the normalized form.
func Fetch(ctx context.Context, rawURL string, timeout time.Duration) (*Page, error) {
	normalized, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL format: %w", err)
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, normalized, nil)
	if err != nil {
		return nil, err
	}
	// Browser-like headers avoid reflexive 403s from bot filters.
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	req.Header.Set("Accept-Encoding", "gzip, br")

	client := &http.Client{Transport: httpTransport}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", normalized, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("failed to fetch %s: HTTP %d", normalized, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.Contains(contentType, "text/html") &&
		!strings.Contains(contentType, "application/xhtml+xml") &&
		!strings.Contains(contentType, "text/plain") {
		return nil, fmt.Errorf("unsupported content type: %s", contentType)
	}

	// Setting Accept-Encoding ourselves disables the transport's transparent
	// gzip handling, so both encodings are decoded here.
	var bodyReader io.Reader = resp.Body
	switch encoding := resp.Header.Get("Content-Encoding"); {
	case strings.Contains(encoding, "br"):
		bodyReader = brotli.NewReader(bodyReader)
	case strings.Contains(encoding, "gzip"):
		gz, err := gzip.NewReader(bodyReader)
		if err != nil {
			return nil, fmt.Errorf("failed to decode response body: %w", err)
		}
		defer gz.Close()
		bodyReader = gz
	}

	body, err := io.ReadAll(io.LimitReader(bodyReader, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	// Decode to UTF-8; on charset detection failure keep the raw bytes.
	if utf8Reader, err := charset.NewReader(bytes.NewReader(body), contentType); err == nil {
		if decoded, err := io.ReadAll(utf8Reader); err == nil && len(decoded) > 0 {
			body = decoded
		}
	}

	if strings.Contains(contentType, "text/plain") {
		return &Page{URL: normalized, Text: collapseWhitespace(string(body))}, nil
	}

	title, text, err := htmlToText(bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Page{URL: normalized, Title: title, Text: text}, nil
}

// htmlToText strips non-content elements and returns the page title and the
// whitespace-collapsed visible text.
func htmlToText(r io.Reader) (title, text string, err error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", "", err
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	doc.Find("script, style, noscript, iframe, svg").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}
	return title, collapseWhitespace(body.Text()), nil
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
