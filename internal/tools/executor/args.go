package executor

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/flynn-ai/tripwise/internal/errors"
)

// Arguments arrive schema-validated, so these helpers only convert JSON
// shapes; missing optional values fall back to the zero value.

func stringArg(input map[string]any, key string) string {
	s, _ := input[key].(string)
	return strings.TrimSpace(s)
}

func requireString(input map[string]any, key string) (string, error) {
	s := stringArg(input, key)
	if s == "" {
		return "", fmt.Errorf("%s parameter required", key)
	}
	return s, nil
}

func numberArg(input map[string]any, key string) (float64, bool) {
	switch v := input[key].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

func intArg(input map[string]any, key string, fallback int) int {
	if v, ok := numberArg(input, key); ok {
		return int(math.Round(v))
	}
	return fallback
}

// listArg accepts either a JSON array of strings or a comma-separated string.
func listArg(input map[string]any, key string) []string {
	var out []string
	switch v := input[key].(type) {
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(fmt.Sprint(item)); s != "" {
				out = append(out, s)
			}
		}
	case string:
		for _, part := range strings.Split(v, ",") {
			if s := strings.TrimSpace(part); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func numbersArg(input map[string]any, key string) ([]float64, error) {
	raw, ok := input[key].([]any)
	if !ok {
		return nil, fmt.Errorf("%s must be an array of numbers", key)
	}
	out := make([]float64, 0, len(raw))
	for i, item := range raw {
		f, ok := item.(float64)
		if !ok {
			return nil, fmt.Errorf("%s[%d] is not a number", key, i)
		}
		out = append(out, f)
	}
	return out, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

// reason is the short, user-facing cause of a failed lookup.
func reason(err error) string {
	if errors.IsTimeout(err) {
		return "service timed out"
	}
	var appErr *errors.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}
