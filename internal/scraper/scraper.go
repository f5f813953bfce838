package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const maxBody = 5 << 20

// Fetcher downloads article pages and extracts their paragraph text.
type Fetcher struct {
	client    *http.Client
	userAgent string
}

func New(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: "Mozilla/5.0",
	}
}

// Fetch returns the article body as newline-joined paragraphs.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("error building request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error loading page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP error: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return "", fmt.Errorf("error reading page: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("error parsing HTML: %w", err)
	}

	if content := extractContentBySource(doc, rawURL); content != "" {
		return content, nil
	}
	return extractReadable(body, rawURL)
}

// extractContentBySource tries known article containers for the default
// feeds before falling back to every paragraph on the page.
func extractContentBySource(doc *goquery.Document, rawURL string) string {
	var selectors []string
	switch {
	case strings.Contains(rawURL, "bbc.co.uk"), strings.Contains(rawURL, "bbc.com"):
		selectors = []string{`[data-component="text-block"] p`, "article p"}
	case strings.Contains(rawURL, "skysports.com"):
		selectors = []string{".sdc-article-body p", "article p"}
	case strings.Contains(rawURL, "espn.com"):
		selectors = []string{".article-body p", "article p"}
	case strings.Contains(rawURL, "fourfourtwo.com"):
		selectors = []string{"#article-body p", "article p"}
	}

	for _, selector := range selectors {
		if content := joinParagraphs(doc.Find(selector)); content != "" {
			return content
		}
	}
	return joinParagraphs(doc.Find("p"))
}

func joinParagraphs(sel *goquery.Selection) string {
	var paragraphs []string
	sel.Each(func(_ int, s *goquery.Selection) {
		text := strings.Join(strings.Fields(s.Text()), " ")
		if text != "" {
			paragraphs = append(paragraphs, text)
		}
	})
	return strings.Join(paragraphs, "\n")
}

// extractReadable runs the page through readability for sites that do not
// use <p> for body text.
func extractReadable(body []byte, rawURL string) (string, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid URL: %w", err)
	}
	article, err := readability.FromReader(bytes.NewReader(body), parsedURL)
	if err != nil {
		return "", fmt.Errorf("readability: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(article.Content))
	if err != nil {
		return "", fmt.Errorf("error parsing readable HTML: %w", err)
	}
	if content := joinParagraphs(doc.Find("p")); content != "" {
		return content, nil
	}
	return strings.Join(strings.Fields(doc.Text()), " "), nil
}
