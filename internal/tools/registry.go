// Package tools provides a unified tool registry with schemas and executors.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/logging"
	"github.com/flynn-ai/tripwise/internal/model"
	"github.com/flynn-ai/tripwise/internal/tools/executor"
	"github.com/flynn-ai/tripwise/internal/tools/schemas"
	"github.com/flynn-ai/tripwise/internal/travel/places"
)

// DefaultTimeout bounds a single tool invocation.
const DefaultTimeout = 30 * time.Second

// Registry combines schemas and executors for complete tool management. It is
// populated at start-up and read-only afterwards.
type Registry struct {
	schemas   *schemas.Registry
	executors *executor.Registry
	timeout   time.Duration
	logger    *zap.SugaredLogger
}

// NewRegistry creates a new unified tool registry. timeout bounds each
// invocation (0 = DefaultTimeout).
func NewRegistry(logger *zap.SugaredLogger, timeout time.Duration) *Registry {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Registry{
		schemas:   schemas.NewRegistry(),
		executors: executor.NewRegistry(),
		timeout:   timeout,
		logger:    logging.OrNop(logger),
	}
}

// Schemas returns the schema registry.
func (r *Registry) Schemas() *schemas.Registry {
	return r.schemas
}

// Executors returns the executor registry.
func (r *Registry) Executors() *executor.Registry {
	return r.executors
}

// Register registers both a schema and executor for a tool.
func (r *Registry) Register(tool executor.Tool, schema *schemas.Schema) {
	if tool.Name() != schema.Name {
		panic(fmt.Sprintf("tools: executor %q registered with schema %q", tool.Name(), schema.Name))
	}
	r.executors.Register(tool)
	r.schemas.Register(schema)
}

// Specs returns the tool descriptors offered to the model, in registration order.
func (r *Registry) Specs() []model.Tool {
	all := r.schemas.All()
	specs := make([]model.Tool, 0, len(all))
	for _, s := range all {
		specs = append(specs, model.Tool{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.Parameters,
		})
	}
	return specs
}

// Execute validates input and runs a tool by name.
func (r *Registry) Execute(ctx context.Context, name string, input map[string]any) (*executor.Result, error) {
	tool, ok := r.executors.Get(name)
	if !ok {
		return nil, errors.Wrap(&executor.ToolNotFoundError{Name: name}, errors.CodeToolNotFound, "unknown tool "+name, errors.CategoryUser)
	}
	schema, _ := r.schemas.Get(name)

	if input == nil {
		input = map[string]any{}
	}
	if err := schema.Validate(input); err != nil {
		return nil, err
	}

	return errors.WithTimeoutResult(ctx, r.timeout, func(ctx context.Context) (result *executor.Result, err error) {
		defer func() {
			if p := recover(); p != nil {
				r.logger.Errorw("tool_panic", "tool", name, "panic", p, "stack", string(debug.Stack()))
				result = nil
				err = errors.System(errors.CodeToolExecutionFailed, fmt.Sprintf("tool %s crashed: %v", name, p))
			}
		}()

		result, err = tool.Execute(ctx, input)
		if err == nil && result == nil {
			err = errors.System(errors.CodeToolExecutionFailed, "tool "+name+" returned no result")
		}
		return result, err
	})
}

// Dispatch runs one model tool call and always returns a result. Unknown
// tools, malformed or invalid arguments, failures, timeouts and panics all
// become error results whose text starts with "Error: ".
func (r *Registry) Dispatch(ctx context.Context, call model.ToolCall) *executor.Result {
	start := time.Now()
	log := logging.WithTool(r.logger, call.Name, call.ID)

	input := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &input); err != nil {
			log.Warnw("tool_bad_arguments", "error", err)
			return executor.TimedResult(executor.NewErrorResult(fmt.Errorf("invalid arguments for %s: %v", call.Name, err)), start)
		}
		if input == nil {
			input = map[string]any{}
		}
	}

	result, err := r.Execute(ctx, call.Name, input)
	if err != nil {
		log.Warnw("tool_failed", "error", err, "duration_ms", time.Since(start).Milliseconds())
		return executor.TimedResult(&executor.Result{Error: dispatchError(call.Name, err)}, start)
	}

	result = executor.TimedResult(result, start)
	log.Debugw("tool_completed",
		"success", result.Success,
		"degraded", result.Degraded,
		"duration_ms", result.DurationMs,
	)
	return result
}

func dispatchError(name string, err error) string {
	switch errors.GetCode(err) {
	case errors.CodeToolNotFound:
		return fmt.Sprintf("unknown tool %q", name)
	case errors.CodeToolTimeout:
		var appErr *errors.AppError
		errors.As(err, &appErr)
		return fmt.Sprintf("%s: %s", name, appErr.Message)
	}
	return err.Error()
}

// Initialize registers the travel tool set with its schemas and executors.
func (r *Registry) Initialize(deps Deps) {
	// === BUDGET TOOLS (4) ===
	r.Register(&executor.ConvertCurrency{Client: deps.Currency}, schemas.NewSchema("convert_currency",
		"Convert an amount from one currency to another using live exchange rates").
		AddParam("amount", "number", "The amount to convert", true).
		AddParam("from_currency", "string", "The source currency code (e.g. USD, EUR)", true).
		AddParam("to_currency", "string", "The target currency code (e.g. USD, INR)", true).
		Build())

	r.Register(&executor.EstimateHotelCost{}, schemas.NewSchema("estimate_total_hotel_cost",
		"Calculate total hotel cost from price per night and number of days").
		AddParam("price_per_night", "number", "Hotel price per night", true).
		AddParam("total_days", "number", "Number of nights", true).
		WithMinimum("price_per_night", 0).
		WithMinimum("total_days", 0).
		Build())

	r.Register(&executor.TotalExpense{}, schemas.NewSchema("calculate_total_expense",
		"Calculate the total expense of the trip from a list of costs").
		AddArrayParam("costs", "number", "Individual costs to add up", true).
		Build())

	r.Register(&executor.DailyBudget{}, schemas.NewSchema("calculate_daily_expense_budget",
		"Calculate the daily budget from a total cost and number of days").
		AddParam("total_cost", "number", "Total trip cost", true).
		AddParam("days", "integer", "Number of days", true).
		WithExclusiveMinimum("days", 0).
		Build())

	// === PLACE TOOLS (4) ===
	for _, category := range places.Categories() {
		tool := &executor.SearchPlaces{Finder: deps.Places, Category: category}
		r.Register(tool, schemas.NewSchema(tool.Name(), tool.Description()).
			AddParam("place", "string", "City or region to search in", true).
			Build())
	}

	// === WEATHER TOOLS (2) ===
	r.Register(&executor.CurrentWeather{Client: deps.Weather}, schemas.NewSchema("get_current_weather",
		"Get the current weather for a city").
		AddParam("city", "string", "City name, optionally with country (e.g. Paris, FR)", true).
		Build())

	r.Register(&executor.WeatherForecast{Client: deps.Weather}, schemas.NewSchema("get_weather_forecast",
		"Get the weather forecast for a city").
		AddParam("city", "string", "City name, optionally with country (e.g. Paris, FR)", true).
		Build())

	// === ITINERARY TOOLS (5) ===
	budgets := []string{"low", "medium", "high"}

	r.Register(&executor.DailyItinerary{}, schemas.NewSchema("create_daily_itinerary",
		"Create a detailed daily itinerary for a destination").
		AddParam("destination", "string", "The travel destination", true).
		AddParam("activities", "string", "Comma-separated list of preferred activities", true).
		AddParam("duration_days", "integer", "Number of days for the trip", true).
		AddParamWithEnum("budget_range", "Budget range", budgets, false).
		WithMinimum("duration_days", 1).
		WithDefault("budget_range", "medium").
		Build())

	r.Register(&executor.OptimizeItinerary{}, schemas.NewSchema("optimize_itinerary_by_location",
		"Optimize an itinerary by grouping attractions by area of the city").
		AddParam("attractions", "string", "Comma-separated list of attractions to visit", true).
		AddParam("city", "string", "The city name", true).
		Build())

	r.Register(&executor.BudgetBreakdown{}, schemas.NewSchema("create_budget_breakdown",
		"Create a detailed budget breakdown for the trip").
		AddParam("destination", "string", "Travel destination", true).
		AddParam("duration_days", "integer", "Number of days", true).
		AddParam("traveler_count", "integer", "Number of travelers", false).
		AddParamWithEnum("budget_category", "Budget category", budgets, false).
		WithMinimum("duration_days", 1).
		WithMinimum("traveler_count", 1).
		WithDefault("traveler_count", 1).
		WithDefault("budget_category", "medium").
		Build())

	r.Register(&executor.TravelChecklist{}, schemas.NewSchema("create_travel_checklist",
		"Create a comprehensive travel checklist for the trip").
		AddParam("destination", "string", "Travel destination", true).
		AddParam("duration_days", "integer", "Number of days", true).
		AddParamWithEnum("travel_season", "Season of travel",
			[]string{"spring", "summer", "fall", "winter", "general"}, false).
		WithMinimum("duration_days", 1).
		WithDefault("travel_season", "general").
		Build())

	r.Register(&executor.SaveItinerary{Saver: deps.Saver}, schemas.NewSchema("save_itinerary_to_file",
		"Save the created itinerary to a markdown file").
		AddParam("itinerary_content", "string", "The itinerary content to save", true).
		AddParam("destination", "string", "Destination name for the filename", true).
		Build())
}
