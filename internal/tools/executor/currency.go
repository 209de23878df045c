// Package executor provides currency and expense tool implementations.
package executor

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/flynn-ai/tripwise/internal/travel/currency"
)

// ConvertCurrency converts an amount between currencies.
type ConvertCurrency struct {
	Client *currency.Client
}

func (t *ConvertCurrency) Name() string { return "convert_currency" }
func (t *ConvertCurrency) Description() string {
	return "Convert an amount from one currency to another using live exchange rates"
}

func (t *ConvertCurrency) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()

	amount, ok := numberArg(input, "amount")
	if !ok {
		return NewErrorResult(fmt.Errorf("amount parameter required")), nil
	}
	from := strings.ToUpper(strings.TrimSpace(stringArg(input, "from_currency")))
	to := strings.ToUpper(strings.TrimSpace(stringArg(input, "to_currency")))

	conv, err := t.Client.Convert(ctx, amount, from, to)
	if err == nil {
		return TimedResult(NewSuccessResult(conv.String()), start), nil
	}

	// Unconverted amount keeps the conversation going, bad codes included
	text := fmt.Sprintf("Could not convert %s %s to %s (%s). The amount is left unconverted: %s %s.",
		formatMoney(amount), from, to, reason(err), formatMoney(amount), from)
	return TimedResult(NewFallbackResult(text), start), nil
}

// ============================================================
// Expense arithmetic
// ============================================================

// EstimateHotelCost multiplies a nightly price by the number of nights.
type EstimateHotelCost struct{}

func (t *EstimateHotelCost) Name() string        { return "estimate_total_hotel_cost" }
func (t *EstimateHotelCost) Description() string { return "Calculate total hotel cost from price per night and number of days" }

func (t *EstimateHotelCost) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()
	price, _ := numberArg(input, "price_per_night")
	days, _ := numberArg(input, "total_days")
	return TimedResult(NewSuccessResult(round2(price*days)), start), nil
}

// TotalExpense sums a list of costs.
type TotalExpense struct{}

func (t *TotalExpense) Name() string        { return "calculate_total_expense" }
func (t *TotalExpense) Description() string { return "Calculate the total expense of the trip from a list of costs" }

func (t *TotalExpense) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()
	costs, err := numbersArg(input, "costs")
	if err != nil {
		return NewErrorResult(err), nil
	}

	var total float64
	for _, c := range costs {
		total += c
	}
	return TimedResult(NewSuccessResult(round2(total)), start), nil
}

// DailyBudget divides a total cost over the trip days.
type DailyBudget struct{}

func (t *DailyBudget) Name() string        { return "calculate_daily_expense_budget" }
func (t *DailyBudget) Description() string { return "Calculate the daily budget from a total cost and number of days" }

func (t *DailyBudget) Execute(ctx context.Context, input map[string]any) (*Result, error) {
	start := time.Now()
	total, _ := numberArg(input, "total_cost")
	days := intArg(input, "days", 0)
	if days <= 0 {
		return NewErrorResult(fmt.Errorf("days must be greater than zero")), nil
	}
	return TimedResult(NewSuccessResult(round2(total/float64(days))), start), nil
}
