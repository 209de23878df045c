// Package weather reads current conditions and short-range forecasts from
// OpenWeatherMap.
package weather

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel"
)

// DefaultURL is the OpenWeatherMap 2.5 API root.
const DefaultURL = "https://api.openweathermap.org/data/2.5"

// forecastSlots is the number of 3-hour slots requested for a forecast.
const forecastSlots = 10

// Config configures the client.
type Config struct {
	APIKey  string
	BaseURL string
	Options travel.Options
}

// Client calls OpenWeatherMap.
type Client struct {
	apiKey   string
	baseURL  string
	upstream *travel.Upstream
}

// New creates a weather client.
func New(cfg Config) *Client {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultURL
	}
	return &Client{
		apiKey:   cfg.APIKey,
		baseURL:  base,
		upstream: travel.NewUpstream("openweathermap", errors.CodeWeatherLookupFailed, cfg.Options),
	}
}

// Configured reports whether an API key is set.
func (c *Client) Configured() bool {
	return c.apiKey != ""
}

// ============================================================
// Types
// ============================================================

// Conditions is a single weather observation or forecast slot.
type Conditions struct {
	Time        time.Time
	TempC       float64
	FeelsLikeC  float64
	MinC        float64
	MaxC        float64
	Humidity    int
	WindMS      float64
	Description string
}

// Current is the current weather for a city.
type Current struct {
	City    string
	Country string
	Conditions
}

// Forecast is a list of upcoming 3-hour slots.
type Forecast struct {
	City    string
	Country string
	Slots   []Conditions
}

type mainBlock struct {
	Temp      float64 `json:"temp"`
	FeelsLike float64 `json:"feels_like"`
	TempMin   float64 `json:"temp_min"`
	TempMax   float64 `json:"temp_max"`
	Humidity  int     `json:"humidity"`
}

type weatherBlock struct {
	Main        string `json:"main"`
	Description string `json:"description"`
}

type slotPayload struct {
	Dt      int64          `json:"dt"`
	Main    mainBlock      `json:"main"`
	Weather []weatherBlock `json:"weather"`
	Wind    struct {
		Speed float64 `json:"speed"`
	} `json:"wind"`
}

type currentPayload struct {
	slotPayload
	Name string `json:"name"`
	Sys  struct {
		Country string `json:"country"`
	} `json:"sys"`
}

type forecastPayload struct {
	List []slotPayload `json:"list"`
	City struct {
		Name    string `json:"name"`
		Country string `json:"country"`
	} `json:"city"`
}

func (p slotPayload) conditions() Conditions {
	c := Conditions{
		TempC:      p.Main.Temp,
		FeelsLikeC: p.Main.FeelsLike,
		MinC:       p.Main.TempMin,
		MaxC:       p.Main.TempMax,
		Humidity:   p.Main.Humidity,
		WindMS:     p.Wind.Speed,
	}
	if p.Dt > 0 {
		c.Time = time.Unix(p.Dt, 0).UTC()
	}
	if len(p.Weather) > 0 {
		c.Description = p.Weather[0].Description
		if c.Description == "" {
			c.Description = strings.ToLower(p.Weather[0].Main)
		}
	}
	return c
}

// ============================================================
// Lookups
// ============================================================

// Current returns the current weather for a city.
func (c *Client) Current(ctx context.Context, city string) (*Current, error) {
	var p currentPayload
	if err := c.get(ctx, "/weather", city, nil, &p); err != nil {
		return nil, err
	}

	name := p.Name
	if name == "" {
		name = city
	}
	return &Current{City: name, Country: p.Sys.Country, Conditions: p.conditions()}, nil
}

// Forecast returns the next forecast slots for a city.
func (c *Client) Forecast(ctx context.Context, city string) (*Forecast, error) {
	var p forecastPayload
	extra := url.Values{}
	extra.Set("cnt", fmt.Sprint(forecastSlots))
	if err := c.get(ctx, "/forecast", city, extra, &p); err != nil {
		return nil, err
	}

	f := &Forecast{City: p.City.Name, Country: p.City.Country}
	if f.City == "" {
		f.City = city
	}
	for _, s := range p.List {
		f.Slots = append(f.Slots, s.conditions())
	}
	return f, nil
}

func (c *Client) get(ctx context.Context, path, city string, extra url.Values, out any) error {
	city = strings.TrimSpace(city)
	if city == "" {
		return errors.User(errors.CodeInvalidInput, "city is required")
	}
	if !c.Configured() {
		return errors.NewBuilder(errors.CodeServiceNotConfigured, "weather service is not configured").
			System().
			WithSuggestion("Set OPENWEATHERMAP_API_KEY or tools.openweathermap_api_key").
			Build()
	}

	q := url.Values{}
	q.Set("q", city)
	q.Set("appid", c.apiKey)
	q.Set("units", "metric")
	for k, v := range extra {
		q[k] = v
	}
	return c.upstream.GetJSON(ctx, c.baseURL+path+"?"+q.Encode(), out)
}

// ============================================================
// Formatting
// ============================================================

// String renders the current weather as a short report.
func (w *Current) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Current weather in %s", place(w.City, w.Country))
	if w.Description != "" {
		fmt.Fprintf(&b, ": %s", w.Description)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- Temperature: %.1f°C (feels like %.1f°C)\n", w.TempC, w.FeelsLikeC)
	fmt.Fprintf(&b, "- Range: %.1f°C to %.1f°C\n", w.MinC, w.MaxC)
	fmt.Fprintf(&b, "- Humidity: %d%%\n", w.Humidity)
	fmt.Fprintf(&b, "- Wind: %.1f m/s", w.WindMS)
	return b.String()
}

// String renders the forecast one slot per line.
func (f *Forecast) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Weather forecast for %s", place(f.City, f.Country))
	if len(f.Slots) == 0 {
		b.WriteString(": no forecast data available")
		return b.String()
	}
	for _, s := range f.Slots {
		fmt.Fprintf(&b, "\n- %s: %.1f°C, %s, humidity %d%%, wind %.1f m/s",
			s.Time.Format("Mon Jan 2 15:04 UTC"), s.TempC, s.Description, s.Humidity, s.WindMS)
	}
	return b.String()
}

func place(city, country string) string {
	if country == "" {
		return city
	}
	return city + ", " + country
}
