package normalize

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var printer = message.NewPrinter(language.English)

// Grouped formats f with thousands separators and a fixed number of
// decimals: Grouped(1234.5, 2) is "1,234.50".
func Grouped(f float64, decimals int) string {
	return printer.Sprintf(fmt.Sprintf("%%.%df", decimals), f)
}

// GroupedInt formats n with thousands separators.
func GroupedInt(n int64) string {
	return printer.Sprintf("%d", n)
}

// GroupedShortest formats f with thousands separators and the shortest
// fractional part that round-trips, keeping at least one decimal place:
// 30000000 renders "30,000,000.0" and 1234.25 renders "1,234.25".
func GroupedShortest(f float64) string {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	decimals := 1
	s := strconv.FormatFloat(f, 'f', -1, 64)
	if i := strings.IndexByte(s, '.'); i >= 0 && len(s)-i-1 > decimals {
		decimals = len(s) - i - 1
	}
	return Grouped(f, decimals)
}
