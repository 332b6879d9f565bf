package capability

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/maruhq/maru/internal/intent"
)

// SearchHandler handles web_search. Its excerpt is the rendered summary
// plus source links, which later actions in the same request inherit.
type SearchHandler struct {
	searcher Searcher
}

// NewSearchHandler creates a web_search handler over the given searcher.
func NewSearchHandler(searcher Searcher) *SearchHandler {
	return &SearchHandler{searcher: searcher}
}

func (h *SearchHandler) Name() string { return "web_search" }

func (h *SearchHandler) ContextKeys() []string { return nil }

func (h *SearchHandler) Handle(ctx context.Context, in intent.Intent) (ActionResult, error) {
	query, _ := in.Arg("query")
	if strings.TrimSpace(query) == "" {
		return ActionResult{}, errors.New("search query is required")
	}

	res, err := h.searcher.Search(ctx, query)
	if err != nil {
		return ActionResult{}, fmt.Errorf("web search: %w", err)
	}

	rendered := renderSearch(res)
	return ActionResult{
		IntentKind: intent.KindWebSearch,
		Handler:    h.Name(),
		Status:     StatusOK,
		Payload: map[string]interface{}{
			"query":   res.Query,
			"summary": res.Summary,
			"links":   res.Links,
		},
		Fragment: rendered,
		Excerpt:  rendered,
	}, nil
}

func renderSearch(res *SearchResult) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(res.Summary))
	if len(res.Links) > 0 {
		b.WriteString("\n\n참고 링크:")
		for _, l := range res.Links {
			b.WriteString("\n- ")
			if l.Title != "" {
				b.WriteString(l.Title)
				b.WriteString(": ")
			}
			b.WriteString(l.URL)
		}
	}
	return b.String()
}
