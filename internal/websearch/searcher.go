// Package websearch implements the web_search capability: it queries a
// DuckDuckGo-compatible HTML endpoint, pulls the top result pages, and
// summarizes what it found with the chat model.
package websearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/maruhq/maru/internal/capability"
	"github.com/maruhq/maru/internal/llm"
)

// Defaults for the search pipeline. Each is overridable with an Option.
const (
	DefaultEndpoint     = "https://html.duckduckgo.com/html/"
	DefaultMaxResults   = 3
	DefaultFetchTimeout = 10 * time.Second
	DefaultMaxBodyLen   = 5000
)

const (
	summaryMaxTokens   = 500
	summaryTemperature = 0.3
)

const searchSystemPrompt = "당신은 친절한 AI 개인 비서입니다. 웹 검색 결과를 간결하고 명확한 한국어로 요약합니다."

// Searcher implements capability.Searcher. One Search call runs the
// whole pipeline: search, fetch the top pages, summarize.
type Searcher struct {
	llm          llm.Client
	model        string
	httpClient   *http.Client
	endpoint     string
	maxResults   int
	fetchTimeout time.Duration
	maxBodyLen   int
	logger       *slog.Logger
	group        singleflight.Group
}

// Option configures a Searcher.
type Option func(*Searcher)

// WithHTTPClient replaces the default SSRF-guarded HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Searcher) { s.httpClient = client }
}

// WithEndpoint points the searcher at a different HTML search endpoint.
func WithEndpoint(endpoint string) Option {
	return func(s *Searcher) {
		if endpoint != "" {
			s.endpoint = endpoint
		}
	}
}

// WithMaxResults caps how many result pages are fetched and cited.
func WithMaxResults(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxResults = n
		}
	}
}

// WithFetchTimeout bounds each individual page fetch.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Searcher) {
		if d > 0 {
			s.fetchTimeout = d
		}
	}
}

// WithMaxBodyLen caps the extracted text kept per fetched page.
func WithMaxBodyLen(n int) Option {
	return func(s *Searcher) {
		if n > 0 {
			s.maxBodyLen = n
		}
	}
}

// WithLogger sets the searcher's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Searcher) { s.logger = logger }
}

// NewSearcher creates a Searcher backed by the given chat client and
// model.
func NewSearcher(llmClient llm.Client, model string, opts ...Option) *Searcher {
	s := &Searcher{
		llm:          llmClient,
		model:        model,
		endpoint:     DefaultEndpoint,
		maxResults:   DefaultMaxResults,
		fetchTimeout: DefaultFetchTimeout,
		maxBodyLen:   DefaultMaxBodyLen,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.httpClient == nil {
		s.httpClient = &http.Client{
			Transport: newSafeTransport(),
			Timeout:   30 * time.Second,
		}
	}
	return s
}

// Search runs the query and returns a summarized result. Identical
// queries already in flight share a single execution.
func (s *Searcher) Search(ctx context.Context, query string) (*capability.SearchResult, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("websearch: empty query")
	}

	v, err, _ := s.group.Do(query, func() (interface{}, error) {
		return s.search(ctx, query)
	})
	if err != nil {
		return nil, err
	}
	return v.(*capability.SearchResult), nil
}

func (s *Searcher) search(ctx context.Context, query string) (*capability.SearchResult, error) {
	results, err := s.searchResults(ctx, query)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return &capability.SearchResult{
			Query:   query,
			Summary: fmt.Sprintf("%q에 대한 검색 결과를 찾지 못했습니다.", query),
		}, nil
	}

	pages := s.fetchAll(ctx, results)

	summary, err := s.summarize(ctx, query, results, pages)
	if err != nil {
		s.logger.Warn("search summarization failed, falling back to snippets",
			"query", query, "error", err)
		summary = fallbackSummary(results)
	}

	links := make([]capability.Link, 0, len(results))
	for _, r := range results {
		links = append(links, capability.Link{Title: r.Title, URL: r.URL})
	}
	return &capability.SearchResult{Query: query, Summary: summary, Links: links}, nil
}

// fetchAll retrieves the result pages concurrently. A failed fetch only
// empties its slot, so the summary leans on that result's snippet
// alone; Wait never returns an error.
func (s *Searcher) fetchAll(ctx context.Context, results []result) []string {
	pages := make([]string, len(results))
	eg, egCtx := errgroup.WithContext(ctx)
	for i, r := range results {
		eg.Go(func() error {
			text, err := s.fetchPage(egCtx, r.URL, s.maxBodyLen)
			if err != nil {
				s.logger.Debug("page fetch skipped", "url", r.URL, "error", err)
				return nil
			}
			pages[i] = text
			return nil
		})
	}
	_ = eg.Wait()
	return pages
}

func (s *Searcher) summarize(ctx context.Context, query string, results []result, pages []string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "검색어: %s\n\n검색 결과:\n", query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n[%d] %s\nURL: %s\n", i+1, r.Title, r.URL)
		if r.Snippet != "" {
			fmt.Fprintf(&b, "요약: %s\n", r.Snippet)
		}
		if pages[i] != "" {
			fmt.Fprintf(&b, "내용: %s\n", pages[i])
		}
	}
	b.WriteString("\n위 검색 결과를 바탕으로 검색어에 대한 핵심 정보를 한국어로 정리해주세요.\n")
	b.WriteString("지침:\n")
	b.WriteString("- 간결하고 명확하게 작성\n")
	b.WriteString("- 결과의 핵심 정보를 포함\n")
	b.WriteString("- 3~5문장 이내로 요약")

	temp := summaryTemperature
	resp, err := s.llm.Chat(ctx, llm.ChatRequest{
		Model:       s.model,
		Messages:    []llm.Message{{Role: llm.RoleUser, Content: b.String()}},
		System:      searchSystemPrompt,
		MaxTokens:   summaryMaxTokens,
		Temperature: &temp,
	})
	if err != nil {
		return "", fmt.Errorf("summarize search: %w", err)
	}
	summary := strings.TrimSpace(resp.Content)
	if summary == "" {
		return "", fmt.Errorf("summarize search: empty response")
	}
	return summary, nil
}

// fallbackSummary builds an extractive summary from result snippets
// when the model is unavailable.
func fallbackSummary(results []result) string {
	var parts []string
	for _, r := range results {
		snippet := strings.TrimSpace(r.Snippet)
		if snippet == "" {
			continue
		}
		parts = append(parts, snippet)
		if len(parts) == 2 {
			break
		}
	}
	if len(parts) == 0 {
		for _, r := range results {
			if r.Title != "" {
				parts = append(parts, r.Title)
				break
			}
		}
	}
	return strings.Join(parts, " ")
}
