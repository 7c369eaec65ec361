package modules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Abhracodec/osint-recon/internal/domain/model"
)

const (
	// DefaultTavilyBaseURL is the public Tavily API endpoint.
	DefaultTavilyBaseURL = "https://api.tavily.com"

	tavilyMaxResults   = 20
	maxTavilyBodyBytes = 1 << 20
	maxErrorBodyBytes  = 512
)

// WebSearchOptions configures the Tavily-backed web search module.
type WebSearchOptions struct {
	APIKey     string
	BaseURL    string
	HTTPClient *http.Client
	MaxResults int
}

// WebSearch queries the Tavily search API for pages about the target.
type WebSearch struct {
	apiKey     string
	baseURL    string
	http       *http.Client
	maxResults int
}

// NewWebSearch constructs the module. A missing API key is reported per run
// rather than here so the module stays listed in the registry.
func NewWebSearch(opts WebSearchOptions) *WebSearch {
	base := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if base == "" {
		base = DefaultTavilyBaseURL
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 60 * time.Second}
	}
	limit := opts.MaxResults
	if limit <= 0 {
		limit = tavilyMaxResults
	}
	return &WebSearch{apiKey: strings.TrimSpace(opts.APIKey), baseURL: base, http: hc, maxResults: limit}
}

// Name implements Module.
func (m *WebSearch) Name() string { return NameWebSearch }

// Blocking implements Module.
func (m *WebSearch) Blocking() bool { return false }

// Active implements Module.
func (m *WebSearch) Active() bool { return false }

type tavilyRequest struct {
	Query          string   `json:"query"`
	SearchDepth    string   `json:"search_depth"`
	IncludeDomains []string `json:"include_domains,omitempty"`
	MaxResults     int      `json:"max_results"`
}

type tavilyResult struct {
	Title         string  `json:"title"`
	URL           string  `json:"url"`
	Content       string  `json:"content"`
	Score         float64 `json:"score"`
	PublishedDate string  `json:"published_date"`
}

type tavilyResponse struct {
	Query   string         `json:"query"`
	Results []tavilyResult `json:"results"`
}

// Execute implements Module.
func (m *WebSearch) Execute(ctx context.Context, req model.JobRequest, progress ProgressFunc) ([]model.Finding, error) {
	if m.apiKey == "" {
		return nil, &Error{Kind: model.ErrorKindModule, Msg: "web search requires TAVILY_API_KEY"}
	}

	body, err := json.Marshal(m.buildQuery(req))
	if err != nil {
		return nil, fmt.Errorf("encode search request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/search", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Authorization", "Bearer "+m.apiKey)

	progress(0.1)
	resp, err := m.http.Do(hreq)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &Error{Kind: model.ErrorKindModule, Msg: "tavily request failed", Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, &Error{
			Kind: model.ErrorKindModule,
			Msg:  fmt.Sprintf("tavily returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet))),
		}
	}

	var out tavilyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTavilyBodyBytes)).Decode(&out); err != nil {
		return nil, &Error{Kind: model.ErrorKindModule, Msg: "decode tavily response", Err: err}
	}
	progress(1)
	return searchFindings(out.Results), nil
}

func (m *WebSearch) buildQuery(req model.JobRequest) tavilyRequest {
	q := tavilyRequest{SearchDepth: "basic", MaxResults: m.maxResults}
	switch req.TargetType {
	case model.TargetTypeDomain:
		q.Query = "site:" + req.Target
		q.IncludeDomains = []string{req.Target}
	default:
		q.Query = `"` + req.Target + `"`
	}
	return q
}

func searchFindings(results []tavilyResult) []model.Finding {
	out := make([]model.Finding, 0, len(results))
	for _, r := range results {
		title := r.Title
		if title == "" {
			title = r.URL
		}
		if title == "" {
			title = "tavily-result"
		}
		f := model.Finding{
			Type:        "web-result",
			Title:       title,
			Description: r.Content,
			Severity:    model.SeverityInfo,
			Confidence:  scoreToConfidence(r.Score),
			Source:      "tavily",
			Evidence:    map[string]any{"url": r.URL},
		}
		if r.URL != "" {
			f.References = []string{r.URL}
		}
		if ts, err := time.Parse(time.RFC3339, r.PublishedDate); err == nil {
			f.Timestamp = ts.UTC()
		}
		out = append(out, f)
	}
	return out
}

func scoreToConfidence(score float64) int {
	c := int(score*100 + 0.5)
	switch {
	case c < 0:
		return 0
	case c > 100:
		return 100
	default:
		return c
	}
}
