// Package places searches for attractions, restaurants, activities and
// transport options in a destination. Several backends are chained and the
// first one that answers wins.
package places

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
)

// Category is the kind of place being searched for.
type Category string

const (
	Attractions    Category = "attractions"
	Restaurants    Category = "restaurants"
	Activities     Category = "activities"
	Transportation Category = "transportation"
)

// Categories lists every category in tool order.
func Categories() []Category {
	return []Category{Attractions, Restaurants, Activities, Transportation}
}

// Query is the free-text search sent to search-style backends.
func (c Category) Query(place string) string {
	switch c {
	case Attractions:
		return "top attractive places in and around " + place
	case Restaurants:
		return "what are the top 10 restaurants and eateries in and around " + place
	case Activities:
		return "activities in and around " + place
	case Transportation:
		return "what are the different modes of transportation available in " + place
	}
	return string(c) + " in " + place
}

// Section is the Wikivoyage article section holding this category.
func (c Category) Section() string {
	switch c {
	case Attractions:
		return "See"
	case Restaurants:
		return "Eat"
	case Activities:
		return "Do"
	case Transportation:
		return "Get around"
	}
	return ""
}

// Backend is one search provider.
type Backend interface {
	Name() string
	Configured() bool
	Search(ctx context.Context, place string, category Category) (string, error)
}

// Result is a successful search.
type Result struct {
	Backend string
	Text    string
}

// Finder tries its backends in order.
type Finder struct {
	backends []Backend
	logger   *zap.SugaredLogger
}

// NewFinder creates a Finder over the given backends.
func NewFinder(logger *zap.SugaredLogger, backends ...Backend) *Finder {
	return &Finder{backends: backends, logger: logging.OrNop(logger)}
}

// Backends returns the names of the configured backends in order.
func (f *Finder) Backends() []string {
	var names []string
	for _, b := range f.backends {
		if b.Configured() {
			names = append(names, b.Name())
		}
	}
	return names
}

// Search returns the first non-empty answer. Unconfigured backends are skipped.
func (f *Finder) Search(ctx context.Context, place string, category Category) (*Result, error) {
	place = strings.TrimSpace(place)
	if place == "" {
		return nil, errors.User(errors.CodeInvalidInput, "place is required")
	}

	var failures []string
	var last error
	tried := 0

	for _, b := range f.backends {
		if !b.Configured() {
			continue
		}
		tried++

		text, err := b.Search(ctx, place, category)
		if err == nil && strings.TrimSpace(text) != "" {
			return &Result{Backend: b.Name(), Text: text}, nil
		}
		if err == nil {
			err = errors.Permanent(errors.CodePlacesLookupFailed, "no results")
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		f.logger.Warnw("places_backend_failed",
			"backend", b.Name(),
			"category", string(category),
			"place", place,
			"error", err,
		)
		failures = append(failures, b.Name()+": "+err.Error())
		last = err
	}

	if tried == 0 {
		return nil, ErrNotConfigured
	}
	return nil, errors.NewBuilder(errors.CodePlacesLookupFailed, strings.Join(failures, "; ")).
		Temporary().
		Wrap(last).
		Build()
}

// ErrNotConfigured is returned when no backend has credentials.
var ErrNotConfigured = errors.NewBuilder(errors.CodeServiceNotConfigured, "no places backend is configured").
	System().
	WithSuggestion("Set GPLACES_API_KEY or TAVILY_API_KEY, or enable the wikivoyage backend").
	Build()

// FallbackText is the observation returned to the model when a search fails.
func FallbackText(category Category, place string, err error) string {
	if errors.Is(err, ErrNotConfigured) {
		return fmt.Sprintf("Unable to search for %s in %s - API service unavailable. Please visit local tourism websites for information.", category, place)
	}
	return fmt.Sprintf("Unable to search for %s in %s - service error: %s. Please visit local tourism websites for information.", category, place, reason(err))
}

func reason(err error) string {
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
