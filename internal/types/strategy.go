package types

import "time"

// StrategyKind discriminates the strategy families the engine can run.
type StrategyKind string

const (
	StrategyKindOCO  StrategyKind = "OCO"
	StrategyKindGrid StrategyKind = "GRID"
	StrategyKindTWAP StrategyKind = "TWAP"
)

type OCOStatus string

const (
	OCOStatusActive           OCOStatus = "ACTIVE"
	OCOStatusTakeProfitFilled OCOStatus = "TAKE_PROFIT_FILLED"
	OCOStatusStopFilled       OCOStatus = "STOP_FILLED"
	OCOStatusCancelled        OCOStatus = "CANCELLED"
	OCOStatusError            OCOStatus = "ERROR"
)

type GridStatus string

const (
	GridStatusActive  GridStatus = "ACTIVE"
	GridStatusStopped GridStatus = "STOPPED"
	GridStatusError   GridStatus = "ERROR"
)

type TWAPStatus string

const (
	TWAPStatusActive    TWAPStatus = "ACTIVE"
	TWAPStatusCompleted TWAPStatus = "COMPLETED"
	TWAPStatusCancelled TWAPStatus = "CANCELLED"
	TWAPStatusError     TWAPStatus = "ERROR"
)

// GridRole classifies a grid level relative to the market price at start.
type GridRole string

const (
	GridRoleBuy  GridRole = "BUY"
	GridRoleSell GridRole = "SELL"
	// GridRoleAtMarket marks the natural split point of the ladder.
	// No order is placed for it.
	GridRoleAtMarket GridRole = "AT_MARKET"
)

// GridLevel is one rung of the ladder. Index is 1-based.
type GridLevel struct {
	Index int      `json:"index"`
	Price float64  `json:"price"`
	Role  GridRole `json:"role"`
}

// TradeRecord is an executed grid fill. Immutable once appended.
type TradeRecord struct {
	Level     int       `json:"level"`
	Side      Side      `json:"side"`
	Quantity  float64   `json:"quantity"`
	Price     float64   `json:"price"`
	Timestamp time.Time `json:"timestamp"`
	OrderID   int64     `json:"order_id"`
}

// ChunkExecution is one filled TWAP slice.
type ChunkExecution struct {
	ChunkIndex int       `json:"chunk_index"`
	Quantity   float64   `json:"quantity"`
	Price      float64   `json:"price"`
	Timestamp  time.Time `json:"timestamp"`
	OrderID    int64     `json:"order_id"`
}

// OCOSnapshot is a point-in-time copy of an OCO strategy's state.
type OCOSnapshot struct {
	ID              string      `json:"id"`
	Symbol          string      `json:"symbol"`
	Side            Side        `json:"side"`
	Quantity        float64     `json:"quantity"`
	TakeProfitOrder OrderRecord `json:"take_profit_order"`
	StopOrder       OrderRecord `json:"stop_order"`
	Status          OCOStatus   `json:"status"`
	CreatedAt       time.Time   `json:"created_at"`
}

// GridSnapshot is a point-in-time copy of a grid strategy's state.
type GridSnapshot struct {
	ID               string              `json:"id"`
	Symbol           string              `json:"symbol"`
	LowerPrice       float64             `json:"lower_price"`
	UpperPrice       float64             `json:"upper_price"`
	GridCount        int                 `json:"grid_count"`
	QuantityPerLevel float64             `json:"quantity_per_level"`
	Levels           []GridLevel         `json:"levels"`
	BuyOrders        map[int]OrderRecord `json:"buy_orders"`
	SellOrders       map[int]OrderRecord `json:"sell_orders"`
	ExecutedTrades   []TradeRecord       `json:"executed_trades"`
	TotalProfit      float64             `json:"total_profit"`
	Status           GridStatus          `json:"status"`
	CreatedAt        time.Time           `json:"created_at"`
}

// TWAPSnapshot is a point-in-time copy of a TWAP strategy's state.
type TWAPSnapshot struct {
	ID                string           `json:"id"`
	Symbol            string           `json:"symbol"`
	Side              Side             `json:"side"`
	TotalQuantity     float64          `json:"total_quantity"`
	RemainingQuantity float64          `json:"remaining_quantity"`
	ChunkSize         float64          `json:"chunk_size"`
	NumChunks         int              `json:"num_chunks"`
	ExecutedChunks    int              `json:"executed_chunks"`
	Interval          time.Duration    `json:"interval"`
	PriceLimit        float64          `json:"price_limit,omitempty"`
	Executions        []ChunkExecution `json:"executions"`
	TotalFilled       float64          `json:"total_filled"`
	AvgPrice          float64          `json:"avg_price"`
	Status            TWAPStatus       `json:"status"`
	CreatedAt         time.Time        `json:"created_at"`
}

// StrategySnapshot is the read-side view served by the registry. Exactly one
// of the kind-specific fields is populated, matching Kind.
type StrategySnapshot struct {
	ID     string        `json:"id"`
	Kind   StrategyKind  `json:"kind"`
	Symbol string        `json:"symbol"`
	Status string        `json:"status"`
	OCO    *OCOSnapshot  `json:"oco,omitempty"`
	Grid   *GridSnapshot `json:"grid,omitempty"`
	TWAP   *TWAPSnapshot `json:"twap,omitempty"`
}
