// Package itinerary generates the planning documents offered to the model:
// day-by-day plans, location zoning, budget breakdowns, checklists, and
// saving a finished itinerary to disk. Everything except Saver is pure.
package itinerary

import (
	"fmt"
	"strings"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// MaxDays bounds trip length for generated documents.
const MaxDays = 60

// Budget is a spending tier.
type Budget string

const (
	BudgetLow    Budget = "low"
	BudgetMedium Budget = "medium"
	BudgetHigh   Budget = "high"
)

// Rates are the daily per-tier costs in USD.
type Rates struct {
	Accommodation float64 // per night
	Food          float64 // per person per day
	Transport     float64 // per person per trip
	Activities    float64 // per person per day
}

var rates = map[Budget]Rates{
	BudgetLow:    {Accommodation: 50, Food: 30, Transport: 20, Activities: 25},
	BudgetMedium: {Accommodation: 100, Food: 60, Transport: 40, Activities: 50},
	BudgetHigh:   {Accommodation: 200, Food: 120, Transport: 80, Activities: 100},
}

// ParseBudget maps free text to a tier. Unknown values are medium.
func ParseBudget(s string) Budget {
	b := Budget(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := rates[b]; ok {
		return b
	}
	return BudgetMedium
}

// Rates returns the tier's rates.
func (b Budget) Rates() Rates {
	if r, ok := rates[b]; ok {
		return r
	}
	return rates[BudgetMedium]
}

// ============================================================
// Daily itinerary
// ============================================================

// Day is one day of a generated plan.
type Day struct {
	Number    int
	Morning   string
	Afternoon string
	Evening   string
	Budget    float64
}

// Plan is a day-by-day itinerary.
type Plan struct {
	Destination string
	Budget      Budget
	Activities  []string
	Days        []Day
}

// NewPlan spreads the preferred activities over the days, two per day, and
// estimates a per-traveler daily spend from the budget tier.
func NewPlan(destination string, activities []string, days int, budget string) (*Plan, error) {
	if err := checkTrip(destination, days); err != nil {
		return nil, err
	}

	p := &Plan{
		Destination: strings.TrimSpace(destination),
		Budget:      ParseBudget(budget),
		Activities:  activities,
	}
	r := p.Budget.Rates()
	daily := r.Accommodation + r.Food + r.Activities

	slot := 0
	next := func(fallback string) string {
		if len(activities) == 0 {
			return fallback
		}
		a := activities[slot%len(activities)]
		slot++
		return a
	}

	for d := 1; d <= days; d++ {
		day := Day{
			Number:    d,
			Morning:   next("Explore the neighbourhood around your accommodation"),
			Afternoon: next("Visit a landmark or museum"),
			Evening:   "Dinner at a local restaurant and an evening walk",
			Budget:    daily,
		}
		if d == 1 {
			day.Morning = "Arrive, check in and get oriented"
		}
		if d == days && days > 1 {
			day.Evening = "Pack and prepare for departure"
		}
		p.Days = append(p.Days, day)
	}
	return p, nil
}

// String renders the plan as markdown.
func (p *Plan) String() string {
	return render(dailyTemplate, p)
}

// ============================================================
// Location zoning
// ============================================================

// Zoning groups attractions into areas of a city.
type Zoning struct {
	City        string
	Attractions []string
}

// Optimize builds the zone-by-zone route suggestions for a city.
func Optimize(attractions []string, city string) (*Zoning, error) {
	city = strings.TrimSpace(city)
	if city == "" {
		return nil, errors.User(errors.CodeInvalidInput, "city is required")
	}
	if len(attractions) == 0 {
		return nil, errors.User(errors.CodeInvalidInput, "at least one attraction is required")
	}
	return &Zoning{City: city, Attractions: attractions}, nil
}

// String renders the zoning as markdown.
func (z *Zoning) String() string {
	return render(zoningTemplate, z)
}

// ============================================================
// Budget breakdown
// ============================================================

// Breakdown is an estimated trip budget.
type Breakdown struct {
	Destination string
	Days        int
	Travelers   int
	Category    Budget
	Rates       Rates

	Accommodation float64
	Food          float64
	Transport     float64
	Activities    float64
	Total         float64
}

// NewBreakdown computes the budget for a trip. Accommodation is per room,
// transport is per traveler for the whole trip, food and activities are per
// traveler per day.
func NewBreakdown(destination string, days, travelers int, category string) (*Breakdown, error) {
	if err := checkTrip(destination, days); err != nil {
		return nil, err
	}
	if travelers < 1 {
		return nil, errors.User(errors.CodeInvalidInput, "traveler_count must be at least 1")
	}

	b := &Breakdown{
		Destination: strings.TrimSpace(destination),
		Days:        days,
		Travelers:   travelers,
		Category:    ParseBudget(category),
	}
	b.Rates = b.Category.Rates()

	d, n := float64(days), float64(travelers)
	b.Accommodation = b.Rates.Accommodation * d
	b.Food = b.Rates.Food * d * n
	b.Transport = b.Rates.Transport * n
	b.Activities = b.Rates.Activities * d * n
	b.Total = b.Accommodation + b.Food + b.Transport + b.Activities
	return b, nil
}

// PerPerson is the total split evenly between travelers.
func (b *Breakdown) PerPerson() float64 {
	return b.Total / float64(b.Travelers)
}

// DailyAverage is the total spread over the trip days.
func (b *Breakdown) DailyAverage() float64 {
	return b.Total / float64(b.Days)
}

// String renders the breakdown as markdown.
func (b *Breakdown) String() string {
	return render(budgetTemplate, b)
}

// ============================================================
// Checklist
// ============================================================

// Checklist is a packing and preparation list.
type Checklist struct {
	Destination string
	Days        int
	Season      string
}

// NewChecklist creates a checklist for a trip. An empty season is "general".
func NewChecklist(destination string, days int, season string) (*Checklist, error) {
	if err := checkTrip(destination, days); err != nil {
		return nil, err
	}
	season = strings.ToLower(strings.TrimSpace(season))
	if season == "" {
		season = "general"
	}
	return &Checklist{Destination: strings.TrimSpace(destination), Days: days, Season: season}, nil
}

// SeasonItems are the extra clothing lines for the season.
func (c *Checklist) SeasonItems() []string {
	switch c.Season {
	case "summer":
		return []string{"Sun hat and sunglasses", "Breathable clothing", "Swimwear"}
	case "winter":
		return []string{"Warm coat", "Gloves, scarf and hat", "Thermal layers"}
	case "spring", "fall", "autumn":
		return []string{"Layers for changing temperatures", "Compact umbrella"}
	}
	return nil
}

// String renders the checklist as markdown.
func (c *Checklist) String() string {
	return render(checklistTemplate, c)
}

// ============================================================
// Helpers
// ============================================================

// SplitList splits a comma-separated list, dropping blanks.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func checkTrip(destination string, days int) error {
	if strings.TrimSpace(destination) == "" {
		return errors.User(errors.CodeInvalidInput, "destination is required")
	}
	if days < 1 || days > MaxDays {
		return errors.NewBuilder(errors.CodeInvalidInput, fmt.Sprintf("duration_days must be between 1 and %d", MaxDays)).
			User().
			WithContext("duration_days", days).
			Build()
	}
	return nil
}
