// Package executor provides itinerary planning tool implementations.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/tripwise/internal/travel/itinerary"
)

// DailyItinerary creates a day-by-day plan.
type DailyItinerary struct{}

func (t *DailyItinerary) Name() string        { return "create_daily_itinerary" }
func (t *DailyItinerary) Description() string { return "Create a detailed daily itinerary for a destination" }

func (t *DailyItinerary) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	plan, err := itinerary.NewPlan(
		stringArg(input, "destination"),
		listArg(input, "activities"),
		intArg(input, "duration_days", 0),
		stringArg(input, "budget_range"),
	)
	if err != nil {
		return NewErrorResult(err), nil
	}
	return TimedResult(NewSuccessResult(plan.String()), start), nil
}

// OptimizeItinerary groups attractions into zones of a city.
type OptimizeItinerary struct{}

func (t *OptimizeItinerary) Name() string { return "optimize_itinerary_by_location" }
func (t *OptimizeItinerary) Description() string {
	return "Optimize an itinerary by grouping attractions by area of the city"
}

func (t *OptimizeItinerary) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	z, err := itinerary.Optimize(listArg(input, "attractions"), stringArg(input, "city"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return TimedResult(NewSuccessResult(z.String()), start), nil
}

// BudgetBreakdown estimates the trip budget by category.
type BudgetBreakdown struct{}

func (t *BudgetBreakdown) Name() string        { return "create_budget_breakdown" }
func (t *BudgetBreakdown) Description() string { return "Create a detailed budget breakdown for the trip" }

func (t *BudgetBreakdown) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	b, err := itinerary.NewBreakdown(
		stringArg(input, "destination"),
		intArg(input, "duration_days", 0),
		intArg(input, "traveler_count", 1),
		stringArg(input, "budget_category"),
	)
	if err != nil {
		return NewErrorResult(err), nil
	}
	return TimedResult(NewSuccessResult(b.String()), start), nil
}

// TravelChecklist creates a preparation and packing checklist.
type TravelChecklist struct{}

func (t *TravelChecklist) Name() string        { return "create_travel_checklist" }
func (t *TravelChecklist) Description() string { return "Create a comprehensive travel checklist for the trip" }

func (t *TravelChecklist) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	c, err := itinerary.NewChecklist(
		stringArg(input, "destination"),
		intArg(input, "duration_days", 0),
		stringArg(input, "travel_season"),
	)
	if err != nil {
		return NewErrorResult(err), nil
	}
	return TimedResult(NewSuccessResult(c.String()), start), nil
}

// SaveItinerary writes a finished itinerary to a markdown file.
type SaveItinerary struct {
	Saver *itinerary.Saver
}

func (t *SaveItinerary) Name() string        { return "save_itinerary_to_file" }
func (t *SaveItinerary) Description() string { return "Save the created itinerary to a markdown file" }

func (t *SaveItinerary) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	content, _ := input["itinerary_content"].(string)
	path, err := t.Saver.Save(content, stringArg(input, "destination"))
	if err != nil {
		return NewErrorResult(err), nil
	}
	return TimedResult(NewSuccessResult(fmt.Sprintf("Itinerary successfully saved to: %s", path)), start), nil
}
