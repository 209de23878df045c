package places

import (
	"context"
	"fmt"
	"strings"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

// DefaultTavilyURL is the Tavily search endpoint.
const DefaultTavilyURL = "https://api.tavily.com/search"

// Tavily searches the web with Tavily and returns its synthesized answer.
type Tavily struct {
	apiKey   string
	baseURL  string
	upstream *travel.Upstream
}

// NewTavily creates the Tavily backend.
func NewTavily(apiKey, baseURL string, opts travel.Options) *Tavily {
	if baseURL == "" {
		baseURL = DefaultTavilyURL
	}
	return &Tavily{
		apiKey:   apiKey,
		baseURL:  baseURL,
		upstream: travel.NewUpstream("tavily", errors.CodePlacesLookupFailed, opts),
	}
}

func (t *Tavily) Name() string { return "tavily" }

// Configured reports whether a real key is set. The placeholder shipped in
// sample env files counts as missing.
func (t *Tavily) Configured() bool {
	return t.apiKey != "" && t.apiKey != "your_tavily_api_key_here"
}

type tavilyRequest struct {
	Query         string `json:"query"`
	Topic         string `json:"topic"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer string `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilyResponse struct {
	Answer  string `json:"answer"`
	Results []struct {
		Title   string `json:"title"`
		URL     string `json:"url"`
		Content string `json:"content"`
	} `json:"results"`
}

// Search implements Backend. The synthesized answer is preferred; raw results
// are listed when Tavily returns none.
func (t *Tavily) Search(ctx context.Context, place string, category Category) (string, error) {
	req := tavilyRequest{
		Query:         category.Query(place),
		Topic:         "general",
		SearchDepth:   "basic",
		IncludeAnswer: "advanced",
		MaxResults:    5,
	}
	headers := map[string]string{"Authorization": "Bearer " + t.apiKey}

	var resp tavilyResponse
	if err := t.upstream.PostJSON(ctx, t.baseURL, headers, req, &resp); err != nil {
		return "", err
	}

	if answer := strings.TrimSpace(resp.Answer); answer != "" {
		return answer, nil
	}

	var b strings.Builder
	for i, r := range resp.Results {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "- %s: %s (%s)", r.Title, strings.TrimSpace(r.Content), r.URL)
	}
	return b.String(), nil
}
