// Package executor provides place search tool implementations.
package executor

import (
	"context"
	"time"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel/places"
)

// SearchPlaces searches one category of places in a destination.
type SearchPlaces struct {
	Finder   *places.Finder
	Category places.Category
}

func (t *SearchPlaces) Name() string { return "search_" + string(t.Category) }

func (t *SearchPlaces) Description() string {
	switch t.Category {
	case places.Attractions:
		return "Search for top attractions in and around a place"
	case places.Restaurants:
		return "Search for top restaurants and eateries in and around a place"
	case places.Activities:
		return "Search for popular activities in and around a place"
	case places.Transportation:
		return "Search for the modes of transportation available in a place"
	}
	return "Search for " + string(t.Category) + " in a place"
}

func (t *SearchPlaces) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	place, err := requireString(input, "place")
	if err != nil {
		return NewErrorResult(err), nil
	}

	res, err := t.Finder.Search(ctx, place, t.Category)
	if err != nil {
		if errors.GetCategory(err) == errors.CategoryUser {
			return TimedResult(NewErrorResult(err), start), nil
		}
		return TimedResult(NewFallbackResult(places.FallbackText(t.Category, place, err)), start), nil
	}
	return TimedResult(NewSuccessResult(res.Text), start), nil
}
