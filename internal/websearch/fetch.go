package websearch

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/net/html"
)

// fetchBodyLimit caps how many bytes of a page are read before
// extraction; the extracted text is truncated separately.
const fetchBodyLimit = 1 << 20

// fetchPage retrieves one result page and returns its visible text,
// truncated to maxLen runes.
func (s *Searcher) fetchPage(ctx context.Context, pageURL string, maxLen int) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("create fetch request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch %s: HTTP %d", pageURL, resp.StatusCode)
	}

	ct := resp.Header.Get("Content-Type")
	if ct != "" && !strings.Contains(ct, "html") && !strings.Contains(ct, "text") {
		return "", fmt.Errorf("fetch %s: unsupported content type %q", pageURL, ct)
	}

	body, _, err := readBody(resp.Body, fetchBodyLimit)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", pageURL, err)
	}

	text := extractText(string(body))
	return truncateRunes(text, maxLen), nil
}

// extractText strips markup from an HTML document and returns the
// visible text with collapsed whitespace. Script, style, and other
// non-content elements are skipped.
func extractText(content string) string {
	doc, err := html.Parse(strings.NewReader(content))
	if err != nil {
		// Fall back to the raw bytes when the document does not parse.
		return strings.Join(strings.Fields(content), " ")
	}

	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "head", "iframe", "svg":
				return
			}
		}
		if n.Type == html.TextNode {
			trimmed := strings.TrimSpace(n.Data)
			if trimmed != "" {
				if b.Len() > 0 {
					b.WriteString(" ")
				}
				b.WriteString(trimmed)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return b.String()
}

// truncateRunes shortens s to at most max runes without splitting a
// multi-byte character.
func truncateRunes(s string, max int) string {
	if max <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max])
}
