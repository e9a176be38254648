// Package exchange adapts the Binance futures REST API to the primitive
// order operations the strategy engine consumes. The exchange offers no
// server-side strategy atomicity; everything above this package is
// synthesized client-side.
package exchange

import (
	"context"

	"github.com/rxtech-lab/argo-execution/internal/types"
)

// Gateway is the set of primitive exchange operations the engine consumes.
// All calls are blocking I/O and honor context cancellation.
type Gateway interface {
	// PlaceOrder places a single primitive order and returns the exchange's record of it.
	PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderRecord, error)
	// CancelOrder cancels an order by id. Cancelling an order that is already
	// gone is not an error.
	CancelOrder(ctx context.Context, symbol string, orderID int64) error
	// GetOrderStatus returns the exchange's current view of an order.
	GetOrderStatus(ctx context.Context, symbol string, orderID int64) (types.OrderRecord, error)
	// GetCurrentPrice returns the latest traded price for a symbol.
	GetCurrentPrice(ctx context.Context, symbol string) (float64, error)
	// GetSymbolFilters returns the symbol's trading rules (tick size, precisions).
	GetSymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error)
}

// DefaultSymbolFilters is the conservative fallback used when exchange info
// is unavailable. 0.1 is the BTCUSDT perpetual tick size.
var DefaultSymbolFilters = types.SymbolFilters{
	TickSize:          0.1,
	MinNotional:       0,
	PricePrecision:    2,
	QuantityPrecision: 3,
}
