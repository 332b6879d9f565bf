// Package notion implements the notes and calendar services on top of
// Notion databases, using the public REST API directly.
package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL = "https://api.notion.com"
	apiVersion     = "2022-06-28"

	// richTextLimit is Notion's per-block rich text content limit.
	richTextLimit = 2000
)

// Client is a minimal Notion API client covering page creation and
// database queries.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Client) { n.httpClient = c }
}

// WithBaseURL overrides the API endpoint.
func WithBaseURL(url string) Option {
	return func(n *Client) { n.baseURL = strings.TrimRight(url, "/") }
}

// NewClient creates a Notion API client.
func NewClient(apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// --- Notion API request/response types ---

type textContent struct {
	Content string `json:"content"`
}

type richText struct {
	Text      *textContent `json:"text,omitempty"`
	PlainText string       `json:"plain_text,omitempty"`
}

type selectName struct {
	Name string `json:"name"`
}

type dateValue struct {
	Start string `json:"start"`
	End   string `json:"end,omitempty"`
}

// property is the union of the property shapes this client touches.
// Notion serializes each property type under its own key.
type property struct {
	Type        string       `json:"type,omitempty"`
	Title       []richText   `json:"title,omitempty"`
	RichText    []richText   `json:"rich_text,omitempty"`
	MultiSelect []selectName `json:"multi_select,omitempty"`
	Date        *dateValue   `json:"date,omitempty"`
	CreatedTime string       `json:"created_time,omitempty"`
}

type pageParent struct {
	DatabaseID string `json:"database_id"`
}

type paragraph struct {
	RichText []richText `json:"rich_text"`
}

type block struct {
	Object    string     `json:"object"`
	Type      string     `json:"type"`
	Paragraph *paragraph `json:"paragraph,omitempty"`
}

type pageRequest struct {
	Parent     pageParent          `json:"parent"`
	Properties map[string]property `json:"properties"`
	Children   []block             `json:"children,omitempty"`
}

type page struct {
	ID          string              `json:"id"`
	URL         string              `json:"url"`
	CreatedTime time.Time           `json:"created_time"`
	Properties  map[string]property `json:"properties"`
}

type dateCondition struct {
	OnOrAfter  string `json:"on_or_after,omitempty"`
	OnOrBefore string `json:"on_or_before,omitempty"`
}

type queryFilter struct {
	And      []queryFilter  `json:"and,omitempty"`
	Property string         `json:"property,omitempty"`
	Date     *dateCondition `json:"date,omitempty"`
}

type querySort struct {
	Property  string `json:"property"`
	Direction string `json:"direction"`
}

type queryRequest struct {
	Filter   *queryFilter `json:"filter,omitempty"`
	Sorts    []querySort  `json:"sorts,omitempty"`
	PageSize int          `json:"page_size,omitempty"`
}

type queryResponse struct {
	Results    []page `json:"results"`
	HasMore    bool   `json:"has_more"`
	NextCursor string `json:"next_cursor"`
}

type database struct {
	ID         string              `json:"id"`
	Properties map[string]property `json:"properties"`
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (c *Client) createPage(ctx context.Context, req pageRequest) (*page, error) {
	var p page
	if err := c.do(ctx, http.MethodPost, "/v1/pages", req, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (c *Client) queryDatabase(ctx context.Context, databaseID string, req queryRequest) (*queryResponse, error) {
	path := "/v1/databases/" + normalizeDatabaseID(databaseID) + "/query"
	var resp queryResponse
	if err := c.do(ctx, http.MethodPost, path, req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) getDatabase(ctx context.Context, databaseID string) (*database, error) {
	path := "/v1/databases/" + normalizeDatabaseID(databaseID)
	var db database
	if err := c.do(ctx, http.MethodGet, path, nil, &db); err != nil {
		return nil, err
	}
	return &db, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("notion: marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("notion: create request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Notion-Version", apiVersion)
	if in != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("notion: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Message != "" {
			if resp.StatusCode == http.StatusNotFound {
				return fmt.Errorf("notion: database not found (check the database id and the integration's access): %s", apiErr.Message)
			}
			return fmt.Errorf("notion: HTTP %d: %s: %s", resp.StatusCode, apiErr.Code, apiErr.Message)
		}
		return fmt.Errorf("notion: HTTP %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("notion: decode response: %w", err)
		}
	}
	return nil
}

// normalizeDatabaseID rewrites a bare 32-hex database id into the
// hyphenated UUID form the API expects. Already-hyphenated or oddly
// shaped ids pass through untouched.
func normalizeDatabaseID(id string) string {
	bare := strings.ReplaceAll(id, "-", "")
	if len(bare) != 32 {
		return id
	}
	return strings.Join([]string{
		bare[:8], bare[8:12], bare[12:16], bare[16:20], bare[20:],
	}, "-")
}

// plainText flattens a rich text array. Responses carry plain_text;
// requests carry text.content. Both are handled so parsing helpers work
// on either side.
func plainText(parts []richText) string {
	var b strings.Builder
	for _, part := range parts {
		if part.PlainText != "" {
			b.WriteString(part.PlainText)
			continue
		}
		if part.Text != nil {
			b.WriteString(part.Text.Content)
		}
	}
	return b.String()
}

// chunkRichText splits content into blocks under the API's rich text
// limit, on rune boundaries.
func chunkRichText(content string, limit int) []richText {
	runes := []rune(content)
	var parts []richText
	for len(runes) > 0 {
		n := limit
		if n > len(runes) {
			n = len(runes)
		}
		parts = append(parts, richText{Text: &textContent{Content: string(runes[:n])}})
		runes = runes[n:]
	}
	return parts
}

// titleOf finds the page title under the common Korean and English
// property names.
func titleOf(props map[string]property) string {
	for _, name := range []string{"이름", "제목", "Title", "Name"} {
		if p, ok := props[name]; ok && len(p.Title) > 0 {
			return plainText(p.Title)
		}
	}
	for _, p := range props {
		if p.Type == "title" && len(p.Title) > 0 {
			return plainText(p.Title)
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
