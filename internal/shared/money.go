package shared

import "math"

// MoneyEpsilon bounds float comparison error for two-decimal monetary amounts.
const MoneyEpsilon = 0.005

// Round2 rounds a monetary amount to two decimal places.
func Round2(amount float64) float64 {
	return math.Round(amount*100) / 100
}

// MoneyGTE reports whether a >= b within monetary tolerance.
func MoneyGTE(a, b float64) bool {
	return a-b > -MoneyEpsilon
}
