package normalize

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var moneyStripper = strings.NewReplacer("$", "", ",", "", " ", "")

// ParseMoneyAmount parses a coverage or revenue amount. Numbers pass through
// unchanged. Strings accept "$5,000,000", "5M", "2.5 million", "750K" and
// "1B"; only the first matching suffix in M, K, B order is applied.
// NaN and infinite values are unparseable.
func ParseMoneyAmount(v any) (float64, bool) {
	if f, ok := numeric(v); ok {
		if !finite(f) {
			zap.L().Warn("normalize: non-finite money amount", zap.Float64("value", f))
			return 0, false
		}
		return f, true
	}
	if v == nil {
		return 0, false
	}
	raw := Stringify(v)
	if raw == "" {
		return 0, false
	}

	clean := moneyStripper.Replace(raw)
	upper := strings.ToUpper(clean)

	multiplier := 0.0
	switch {
	case strings.Contains(upper, "M"):
		multiplier = 1e6
	case strings.Contains(upper, "K") || strings.Contains(upper, "THOUSAND"):
		multiplier = 1e3
	case strings.Contains(upper, "B") || strings.Contains(upper, "BILLION"):
		multiplier = 1e9
	}

	if multiplier > 0 {
		f, err := strconv.ParseFloat(digitsAndDots(clean), 64)
		if err != nil || !finite(f*multiplier) {
			zap.L().Warn("normalize: could not parse money amount", zap.String("value", raw))
			return 0, false
		}
		return f * multiplier, true
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil || !finite(f) {
		zap.L().Warn("normalize: could not parse money amount", zap.String("value", raw))
		return 0, false
	}
	return f, true
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

// ParseEmployeeCount parses a head count. "1,500" is 1500, a range "50-100"
// resolves to its upper bound, "2K" is 2000 and "250 employees" is 250.
func ParseEmployeeCount(v any) (int, bool) {
	if f, ok := numeric(v); ok {
		return truncate(f)
	}
	if !Present(v) {
		return 0, false
	}
	raw := Stringify(v)

	clean := strings.NewReplacer(",", "", " ", "").Replace(raw)
	if strings.Contains(clean, "-") {
		parts := strings.Split(clean, "-")
		clean = parts[len(parts)-1]
	}
	clean = strings.ToLower(clean)
	clean = strings.ReplaceAll(clean, "employees", "")
	clean = strings.ReplaceAll(clean, "employee", "")
	clean = strings.TrimSpace(clean)

	multiplier := 1.0
	if strings.Contains(clean, "k") {
		multiplier = 1000
		clean = strings.ReplaceAll(clean, "k", "")
	}

	f, err := strconv.ParseFloat(clean, 64)
	if err != nil {
		zap.L().Warn("normalize: could not parse employee count", zap.String("value", raw))
		return 0, false
	}
	n, ok := truncate(f * multiplier)
	if !ok {
		zap.L().Warn("normalize: employee count out of range", zap.String("value", raw))
	}
	return n, ok
}

// ParseNumber parses a plain number with optional thousands separators.
// Absent values, including zero, are unknown.
func ParseNumber(v any) (float64, bool) {
	if !Present(v) {
		return 0, false
	}
	if f, ok := numeric(v); ok {
		return f, true
	}
	raw := Stringify(v)
	f, err := strconv.ParseFloat(strings.ReplaceAll(strings.TrimSpace(raw), ",", ""), 64)
	if err != nil || math.IsNaN(f) {
		zap.L().Warn("normalize: could not parse number", zap.String("value", raw))
		return 0, false
	}
	return f, true
}

func truncate(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || math.Abs(f) > math.MaxInt32*float64(1<<31) {
		return 0, false
	}
	return int(f), true
}

func digitsAndDots(s string) string {
	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
