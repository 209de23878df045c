package tools

import (
	"fmt"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/config"
	"github.com/flynn-ai/tripwise/internal/travel"
	"github.com/flynn-ai/tripwise/internal/travel/currency"
	"github.com/flynn-ai/tripwise/internal/travel/itinerary"
	"github.com/flynn-ai/tripwise/internal/travel/places"
	"github.com/flynn-ai/tripwise/internal/travel/weather"
)

// Deps are the service clients the travel tools call.
type Deps struct {
	Currency *currency.Client
	Places   *places.Finder
	Weather  *weather.Client
	Saver    *itinerary.Saver
}

// NewDeps builds the service clients from configuration. Relative itinerary
// directories are resolved against dataDir.
func NewDeps(cfg config.ToolsConfig, dataDir string, logger *zap.SugaredLogger) (Deps, error) {
	opts := travel.Options{
		Timeout:          cfg.HTTPTimeout.Duration,
		Retries:          cfg.Retries,
		BreakerThreshold: cfg.BreakerThreshold,
	}

	backends := make([]places.Backend, 0, len(cfg.PlacesBackends))
	for _, name := range cfg.PlacesBackends {
		switch name {
		case "google":
			backends = append(backends, places.NewGoogle(cfg.GooglePlacesKey, cfg.GooglePlacesURL, opts))
		case "tavily":
			backends = append(backends, places.NewTavily(cfg.TavilyKey, cfg.TavilyURL, opts))
		case "wikivoyage":
			backends = append(backends, places.NewWikivoyage(cfg.WikivoyageURL, opts))
		default:
			return Deps{}, fmt.Errorf("unknown places backend %q", name)
		}
	}

	dir := cfg.ItineraryDir
	if dir == "" {
		dir = "itineraries"
	}
	if !filepath.IsAbs(dir) && dataDir != "" {
		dir = filepath.Join(dataDir, dir)
	}

	return Deps{
		Currency: currency.New(currency.Config{APIKey: cfg.AlphaVantageKey, BaseURL: cfg.AlphaVantageURL, Options: opts}),
		Places:   places.NewFinder(logger, backends...),
		Weather:  weather.New(weather.Config{APIKey: cfg.OpenWeatherKey, BaseURL: cfg.OpenWeatherURL, Options: opts}),
		Saver:    itinerary.NewSaver(dir),
	}, nil
}
