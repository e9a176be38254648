// Package grid implements range trading over a ladder of resting limit
// orders. Buy legs rest below market and sell legs above; fills are mirrored
// one level up or down so the ladder keeps working a range-bound market.
package grid

import (
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/internal/utils"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/shopspring/decimal"
)

// ComputeLevels computes the ladder for a price range. Levels are evenly
// spaced between lowerPrice and upperPrice inclusive, snapped to the symbol's
// tick size, and classified against the current market price: strictly below
// market is BUY, strictly above is SELL, and the level equal to market is
// AT_MARKET (the natural split point, no order placed). Indexes are 1-based.
func ComputeLevels(lowerPrice, upperPrice float64, gridCount int, currentPrice float64, filters types.SymbolFilters) ([]types.GridLevel, error) {
	if gridCount < 2 {
		return nil, errors.Newf(errors.ErrCodeInvalidRange, "grid count must be at least 2, got %d", gridCount)
	}

	if lowerPrice <= 0 || upperPrice <= lowerPrice {
		return nil, errors.Newf(errors.ErrCodeInvalidRange,
			"invalid price range: lower %.8f, upper %.8f", lowerPrice, upperPrice)
	}

	lower := decimal.NewFromFloat(lowerPrice)
	span := decimal.NewFromFloat(upperPrice).Sub(lower)
	step := span.Div(decimal.NewFromInt(int64(gridCount - 1)))
	market := utils.SnapToTick(currentPrice, filters.TickSize, filters.PricePrecision)

	levels := make([]types.GridLevel, 0, gridCount)
	for i := 0; i < gridCount; i++ {
		raw, _ := lower.Add(step.Mul(decimal.NewFromInt(int64(i)))).Float64()
		price := utils.SnapToTick(raw, filters.TickSize, filters.PricePrecision)

		role := types.GridRoleAtMarket
		switch {
		case price < market:
			role = types.GridRoleBuy
		case price > market:
			role = types.GridRoleSell
		}

		levels = append(levels, types.GridLevel{
			Index: i + 1,
			Price: price,
			Role:  role,
		})
	}

	return levels, nil
}
