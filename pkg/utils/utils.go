package utils

import (
	"fmt"
	"math"
)

func ToPointer[T any](value T) *T {
	return &value
}

func FormatPercentage(value float64) string {
	return fmt.Sprintf("%+.1f%%", value)
}

// FloorShares converts a dollar amount and price into whole shares.
func FloorShares(value, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(math.Floor(value / price))
}

// Round2 rounds to two decimal places, the precision used for prices and pnl.
func Round2(value float64) float64 {
	return math.Round(value*100) / 100
}
