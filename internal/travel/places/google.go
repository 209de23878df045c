package places

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

// DefaultGoogleURL is the Places Text Search endpoint.
const DefaultGoogleURL = "https://maps.googleapis.com/maps/api/place/textsearch/json"

// googleMaxResults caps the places listed in one answer.
const googleMaxResults = 10

// Google searches with the Google Places Text Search API.
type Google struct {
	apiKey   string
	baseURL  string
	upstream *travel.Upstream
}

// NewGoogle creates the Google Places backend.
func NewGoogle(apiKey, baseURL string, opts travel.Options) *Google {
	if baseURL == "" {
		baseURL = DefaultGoogleURL
	}
	return &Google{
		apiKey:   apiKey,
		baseURL:  baseURL,
		upstream: travel.NewUpstream("google places", errors.CodePlacesLookupFailed, opts),
	}
}

func (g *Google) Name() string     { return "google" }
func (g *Google) Configured() bool { return g.apiKey != "" }

type googleResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name             string   `json:"name"`
		FormattedAddress string   `json:"formatted_address"`
		Rating           float64  `json:"rating"`
		UserRatingsTotal int      `json:"user_ratings_total"`
		Types            []string `json:"types"`
	} `json:"results"`
}

// Search implements Backend.
func (g *Google) Search(ctx context.Context, place string, category Category) (string, error) {
	q := url.Values{}
	q.Set("query", category.Query(place))
	q.Set("key", g.apiKey)

	var resp googleResponse
	if err := g.upstream.GetJSON(ctx, g.baseURL+"?"+q.Encode(), &resp); err != nil {
		return "", err
	}

	switch resp.Status {
	case "OK":
	case "ZERO_RESULTS":
		return "", nil
	case "OVER_QUERY_LIMIT":
		return "", errors.Permanent(errors.CodePlacesLookupFailed, "google places quota exceeded")
	default:
		msg := resp.Status
		if resp.ErrorMessage != "" {
			msg += ": " + resp.ErrorMessage
		}
		return "", errors.Permanent(errors.CodePlacesLookupFailed, "google places "+msg)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Top %s in %s:", category, place)
	for i, r := range resp.Results {
		if i == googleMaxResults {
			break
		}
		fmt.Fprintf(&b, "\n%d. %s", i+1, r.Name)
		if r.FormattedAddress != "" {
			fmt.Fprintf(&b, "\n   Address: %s", r.FormattedAddress)
		}
		if r.Rating > 0 {
			fmt.Fprintf(&b, "\n   Rating: %.1f (%d reviews)", r.Rating, r.UserRatingsTotal)
		}
	}
	return b.String(), nil
}
