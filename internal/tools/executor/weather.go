// Package executor provides weather tool implementations.
package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/flynn-ai/tripwise/internal/errors"
	"github.com/flynn-ai/tripwise/internal/travel/weather"
)

// CurrentWeather reports the current weather for a city.
type CurrentWeather struct {
	Client *weather.Client
}

func (t *CurrentWeather) Name() string        { return "get_current_weather" }
func (t *CurrentWeather) Description() string { return "Get the current weather for a city" }

func (t *CurrentWeather) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	city, err := requireString(input, "city")
	if err != nil {
		return NewErrorResult(err), nil
	}

	cur, err := t.Client.Current(ctx, city)
	if err != nil {
		return TimedResult(weatherFallback(city, err), start), nil
	}
	return TimedResult(NewSuccessResult(cur.String()), start), nil
}

// WeatherForecast reports the forecast for the coming hours and days.
type WeatherForecast struct {
	Client *weather.Client
}

func (t *WeatherForecast) Name() string        { return "get_weather_forecast" }
func (t *WeatherForecast) Description() string { return "Get the weather forecast for a city" }

func (t *WeatherForecast) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	city, err := requireString(input, "city")
	if err != nil {
		return NewErrorResult(err), nil
	}

	f, err := t.Client.Forecast(ctx, city)
	if err != nil {
		return TimedResult(weatherFallback(city, err), start), nil
	}
	return TimedResult(NewSuccessResult(f.String()), start), nil
}

func weatherFallback(city string, err error) *Result {
	if errors.GetCategory(err) == errors.CategoryUser {
		return NewErrorResult(err)
	}
	return NewFallbackResult(fmt.Sprintf(
		"Unable to fetch weather for %s - %s. Suggest checking a local weather service closer to the travel dates.",
		city, reason(err)))
}
