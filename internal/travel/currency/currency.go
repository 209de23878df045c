// Package currency converts amounts between currencies using the AlphaVantage
// CURRENCY_EXCHANGE_RATE endpoint.
package currency

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

// DefaultURL is the AlphaVantage query endpoint.
const DefaultURL = "https://www.alphavantage.co/query"

// Conversion is the outcome of converting an amount.
type Conversion struct {
	Amount    float64
	From      string
	To        string
	Rate      float64
	Converted float64
}

// String renders the conversion for a tool observation.
func (c Conversion) String() string {
	return fmt.Sprintf("%s %s = %s %s (rate %s)",
		formatAmount(c.Amount), c.From, formatAmount(c.Converted), c.To, strconv.FormatFloat(c.Rate, 'f', -1, 64))
}

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Options travel.Options
}

// Client looks up exchange rates.
type Client struct {
	apiKey   string
	baseURL  string
	upstream *travel.Upstream
}

// New creates a currency client.
func New(cfg Config) *Client {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultURL
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		upstream: travel.NewUpstream("alphavantage", errors.CodeCurrencyLookupFailed, cfg.Options),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// Convert converts amount from one currency into another. Equal currencies
// convert at rate 1 without a lookup, whether or not the code is valid ISO.
func (c *Client) Convert(ctx context.Context, amount float64, from, to string) (*Conversion, error) {
	from, to = clean(from), clean(to)

	rate := 1.0
	if from == "" || from != to {
		var err error
		if rate, err = c.Rate(ctx, from, to); err != nil {
			return nil, err
		}
	}

	return &Conversion{
		Amount:    amount,
		From:      from,
		To:        to,
		Rate:      rate,
		Converted: amount * rate,
	}, nil
}

// exchangeResponse covers both the payload and the in-body error shapes.
type exchangeResponse struct {
	Rate *struct {
		ExchangeRate string `json:"5. Exchange Rate"`
	} `json:"Realtime Currency Exchange Rate"`
	Note         string `json:"Note"`
	Information  string `json:"Information"`
	ErrorMessage string `json:"Error Message"`
}

// Rate returns the current exchange rate from one currency to another.
func (c *Client) Rate(ctx context.Context, from, to string) (float64, error) {
	from, to = clean(from), clean(to)
	if from != "" && from == to {
		return 1, nil
	}
	if err := validate(from, to); err != nil {
		return 0, err
	}
	if !c.Configured() {
		return 0, errors.NewBuilder(errors.CodeServiceNotConfigured, "currency service is not configured").
			System().
			WithSuggestion("Set ALPHAVANTAGE_API_KEY or tools.alphavantage_api_key").
			Build()
	}

	q := url.Values{}
	q.Set("function", "CURRENCY_EXCHANGE_RATE")
	q.Set("from_currency", from)
	q.Set("to_currency", to)
	q.Set("apikey", c.apiKey)

	var resp exchangeResponse
	if err := c.upstream.GetJSON(ctx, c.baseURL+"?"+q.Encode(), &resp); err != nil {
		return 0, err
	}

	switch {
	case resp.ErrorMessage != "":
		return 0, errors.NewBuilder(errors.CodeCurrencyLookupFailed, "exchange rate lookup rejected").
			Permanent().
			WithContext("detail", resp.ErrorMessage).
			Build()
	case resp.Note != "" || resp.Information != "":
		return 0, errors.NewBuilder(errors.CodeCurrencyLookupFailed, "exchange rate service limit reached").
			Permanent().
			WithSuggestion("The AlphaVantage free tier allows a small number of calls per day").
			Build()
	case resp.Rate == nil || resp.Rate.ExchangeRate == "":
		return 0, errors.Permanent(errors.CodeCurrencyLookupFailed, "exchange rate missing from response")
	}

	rate, err := strconv.ParseFloat(strings.TrimSpace(resp.Rate.ExchangeRate), 64)
	if err != nil {
		return 0, errors.Wrap(err, errors.CodeCurrencyLookupFailed, "invalid exchange rate", errors.CategoryPermanent)
	}
	return rate, nil
}

func clean(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func validate(codes ...string) error {
	for _, code := range codes {
		if !validCode(code) {
			return errors.NewBuilder(errors.CodeInvalidInput, fmt.Sprintf("invalid currency code %q", code)).
				User().
				WithSuggestion("Use a three-letter ISO 4217 code such as USD or EUR").
				Build()
		}
	}
	return nil
}

func validCode(code string) bool {
	if len(code) != 3 {
		return false
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}
