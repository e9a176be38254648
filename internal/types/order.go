package types

import "time"

type Side string

type OrderType string

type OrderStatus string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

const (
	OrderTypeMarket     OrderType = "MARKET"
	OrderTypeLimit      OrderType = "LIMIT"
	OrderTypeStop       OrderType = "STOP"
	OrderTypeStopMarket OrderType = "STOP_MARKET"
)

const (
	OrderStatusNew             OrderStatus = "NEW"
	OrderStatusPartiallyFilled OrderStatus = "PARTIALLY_FILLED"
	OrderStatusFilled          OrderStatus = "FILLED"
	OrderStatusCanceled        OrderStatus = "CANCELED"
	OrderStatusRejected        OrderStatus = "REJECTED"
	OrderStatusExpired         OrderStatus = "EXPIRED"
)

// IsTerminal reports whether the status is a final state the exchange will
// never transition out of.
func (s OrderStatus) IsTerminal() bool {
	switch s {
	case OrderStatusFilled, OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	default:
		return false
	}
}

// Opposite returns the other trading side.
func (s Side) Opposite() Side {
	if s == SideBuy {
		return SideSell
	}

	return SideBuy
}

// OrderSpec describes a primitive order to be placed on the exchange.
type OrderSpec struct {
	Symbol   string    `json:"symbol"`
	Side     Side      `json:"side"`
	Type     OrderType `json:"type"`
	Quantity float64   `json:"quantity"`
	// Price is the limit price. Unused for market orders.
	Price float64 `json:"price"`
	// StopPrice is the trigger price. Stop orders only.
	StopPrice float64 `json:"stop_price"`
}

// OrderRecord is a client-side copy of the exchange's view of an order,
// refreshed by polling. The exchange owns the authoritative state.
type OrderRecord struct {
	OrderID     int64       `json:"order_id"`
	Symbol      string      `json:"symbol"`
	Side        Side        `json:"side"`
	Type        OrderType   `json:"type"`
	Status      OrderStatus `json:"status"`
	Price       float64     `json:"price"`
	ExecutedQty float64     `json:"executed_qty"`
	AvgPrice    float64     `json:"avg_price"`
	UpdateTime  time.Time   `json:"update_time"`
}

// SymbolFilters carries the per-symbol trading rules read from exchange info.
type SymbolFilters struct {
	TickSize          float64 `json:"tick_size"`
	MinNotional       float64 `json:"min_notional"`
	PricePrecision    int     `json:"price_precision"`
	QuantityPrecision int     `json:"quantity_precision"`
}
