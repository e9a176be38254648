package utils

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"
)

// SnapToTick snaps a price to the nearest multiple of the symbol's tick size,
// then rounds to the given display precision. Exchanges reject prices that
// are not tick-aligned, so every computed level must pass through here.
func SnapToTick(price, tickSize float64, precision int) float64 {
	if tickSize <= 0 {
		return RoundToDecimalPrecision(price, precision)
	}

	p := decimal.NewFromFloat(price)
	tick := decimal.NewFromFloat(tickSize)

	ticks := p.Div(tick).Round(0)
	snapped := ticks.Mul(tick).Round(int32(precision))

	return snapped.InexactFloat64()
}

// RoundToDecimalPrecision rounds a value to the given number of decimal places.
func RoundToDecimalPrecision(value float64, precision int) float64 {
	return decimal.NewFromFloat(value).Round(int32(precision)).InexactFloat64()
}

// FloorToDecimalPrecision truncates a quantity to the given number of decimal
// places. Quantities are floored rather than rounded so an order never
// requests more than the caller holds.
func FloorToDecimalPrecision(value float64, precision int) float64 {
	multiplier := math.Pow10(precision)

	return math.Floor(value*multiplier) / multiplier
}

// FormatPrice renders a price with the symbol's display precision.
func FormatPrice(price float64, precision int) string {
	return strconv.FormatFloat(price, 'f', precision, 64)
}

// FormatQuantity renders a quantity with the symbol's quantity precision.
func FormatQuantity(quantity float64, precision int) string {
	return strconv.FormatFloat(quantity, 'f', precision, 64)
}

// PrecisionFromTick derives the number of display decimals implied by a tick
// size, e.g. 0.1 -> 1, 0.001 -> 3. Tick sizes >= 1 imply zero decimals.
func PrecisionFromTick(tickSize float64) int {
	if tickSize <= 0 || tickSize >= 1 {
		return 0
	}

	return int(math.Ceil(-math.Log10(tickSize)))
}
