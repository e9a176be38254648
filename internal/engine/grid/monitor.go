package grid

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultPollInterval is how often the resting orders are polled.
	DefaultPollInterval = 10 * time.Second
	// DefaultSeedSpacing paces order placement while seeding the ladder so a
	// large grid does not burn the request-rate budget in one burst.
	DefaultSeedSpacing = 100 * time.Millisecond
	// DefaultErrorBackoffMin is the first retry delay after a failed poll.
	DefaultErrorBackoffMin = 30 * time.Second
	// DefaultErrorBackoffMax caps the retry delay.
	DefaultErrorBackoffMax = 5 * time.Minute

	// profitLookback bounds how far back the profit matcher scans. Older
	// trades stay in the history but can no longer be paired.
	profitLookback = 10
)

// Config tunes polling and seeding behavior.
type Config struct {
	PollInterval    time.Duration
	SeedSpacing     time.Duration
	ErrorBackoffMin time.Duration
	ErrorBackoffMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.SeedSpacing <= 0 {
		c.SeedSpacing = DefaultSeedSpacing
	}

	if c.ErrorBackoffMin <= 0 {
		c.ErrorBackoffMin = DefaultErrorBackoffMin
	}

	if c.ErrorBackoffMax <= 0 {
		c.ErrorBackoffMax = DefaultErrorBackoffMax
	}
}

// trade pairs a TradeRecord with its matching state. Each trade is credited
// to at most one buy/sell profit pair.
type trade struct {
	types.TradeRecord
	matched bool
}

// Monitor owns one grid ladder. The monitoring goroutine is the only writer
// of the order maps and trade history; mu guards snapshot reads and the
// cooperative stop.
type Monitor struct {
	id      string
	gateway exchange.Gateway
	log     *logger.Logger
	config  Config

	symbol           string
	lowerPrice       float64
	upperPrice       float64
	gridCount        int
	quantityPerLevel float64
	levels           []types.GridLevel

	mu          sync.RWMutex
	buyOrders   map[int]types.OrderRecord
	sellOrders  map[int]types.OrderRecord
	trades      []trade
	totalProfit decimal.Decimal
	status      types.GridStatus
	createdAt   time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start computes the ladder, seeds the resting orders, and launches
// monitoring. Individual seed failures are logged and skipped; the grid is
// allowed to run with fewer legs.
func Start(ctx context.Context, id string, gateway exchange.Gateway, log *logger.Logger, req types.GridRequest, config Config) (*Monitor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	config.applyDefaults()

	filters, err := gateway.GetSymbolFilters(ctx, req.Symbol)
	if err != nil {
		log.Warn("symbol filters unavailable, using defaults",
			zap.String("symbol", req.Symbol),
			zap.Error(err),
		)

		filters = exchange.DefaultSymbolFilters
	}

	currentPrice, err := gateway.GetCurrentPrice(ctx, req.Symbol)
	if err != nil {
		return nil, err
	}

	levels, err := ComputeLevels(req.LowerPrice, req.UpperPrice, req.GridCount, currentPrice, filters)
	if err != nil {
		return nil, err
	}

	m := &Monitor{
		id:               id,
		gateway:          gateway,
		log:              log,
		config:           config,
		symbol:           req.Symbol,
		lowerPrice:       req.LowerPrice,
		upperPrice:       req.UpperPrice,
		gridCount:        req.GridCount,
		quantityPerLevel: req.QuantityPerLevel,
		levels:           levels,
		buyOrders:        make(map[int]types.OrderRecord),
		sellOrders:       make(map[int]types.OrderRecord),
		trades:           []trade{},
		totalProfit:      decimal.Zero,
		status:           types.GridStatusActive,
		createdAt:        time.Now(),
		stopCh:           make(chan struct{}),
		done:             make(chan struct{}),
	}

	m.seed(ctx)

	placeable := 0
	for _, level := range levels {
		if level.Role != types.GridRoleAtMarket {
			placeable++
		}
	}

	if placeable > 0 && len(m.buyOrders)+len(m.sellOrders) == 0 {
		// Not a single leg reached the exchange: there is nothing to poll and
		// no fill can ever occur, so monitoring gives up rather than claiming
		// an active grid.
		m.status = types.GridStatusError
		close(m.done)

		log.Error("grid seeding placed no orders, giving up",
			zap.String("strategy_id", id),
			zap.String("symbol", req.Symbol),
			zap.Int("grid_count", req.GridCount),
		)

		return m, nil
	}

	log.Info("grid seeded",
		zap.String("strategy_id", id),
		zap.String("symbol", req.Symbol),
		zap.Int("grid_count", req.GridCount),
		zap.Int("buy_legs", len(m.buyOrders)),
		zap.Int("sell_legs", len(m.sellOrders)),
		zap.Float64("current_price", currentPrice),
	)

	go m.monitor()

	return m, nil
}

// seed places the initial resting orders, spaced by the rate limiter.
func (m *Monitor) seed(ctx context.Context) {
	limiter := rate.NewLimiter(rate.Every(m.config.SeedSpacing), 1)

	for _, level := range m.levels {
		var side types.Side

		switch level.Role {
		case types.GridRoleBuy:
			side = types.SideBuy
		case types.GridRoleSell:
			side = types.SideSell
		default:
			continue
		}

		if err := limiter.Wait(ctx); err != nil {
			return
		}

		order, err := m.gateway.PlaceOrder(ctx, types.OrderSpec{
			Symbol:   m.symbol,
			Side:     side,
			Type:     types.OrderTypeLimit,
			Quantity: m.quantityPerLevel,
			Price:    level.Price,
		})
		if err != nil {
			m.log.Warn("failed to seed grid level, continuing without it",
				zap.String("strategy_id", m.id),
				zap.Int("level", level.Index),
				zap.Float64("price", level.Price),
				zap.Error(err),
			)

			continue
		}

		m.mu.Lock()
		if side == types.SideBuy {
			m.buyOrders[level.Index] = order
		} else {
			m.sellOrders[level.Index] = order
		}
		m.mu.Unlock()
	}
}

func (m *Monitor) ID() string { return m.id }

func (m *Monitor) Kind() types.StrategyKind { return types.StrategyKindGrid }

// Done is closed when the monitoring goroutine exits.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Snapshot returns a point-in-time copy of the grid's state.
func (m *Monitor) Snapshot() types.StrategySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buyOrders := make(map[int]types.OrderRecord, len(m.buyOrders))
	for level, order := range m.buyOrders {
		buyOrders[level] = order
	}

	sellOrders := make(map[int]types.OrderRecord, len(m.sellOrders))
	for level, order := range m.sellOrders {
		sellOrders[level] = order
	}

	executed := make([]types.TradeRecord, 0, len(m.trades))
	for _, t := range m.trades {
		executed = append(executed, t.TradeRecord)
	}

	levels := make([]types.GridLevel, len(m.levels))
	copy(levels, m.levels)

	profit, _ := m.totalProfit.Float64()

	return types.StrategySnapshot{
		ID:     m.id,
		Kind:   types.StrategyKindGrid,
		Symbol: m.symbol,
		Status: string(m.status),
		Grid: &types.GridSnapshot{
			ID:               m.id,
			Symbol:           m.symbol,
			LowerPrice:       m.lowerPrice,
			UpperPrice:       m.upperPrice,
			GridCount:        m.gridCount,
			QuantityPerLevel: m.quantityPerLevel,
			Levels:           levels,
			BuyOrders:        buyOrders,
			SellOrders:       sellOrders,
			ExecutedTrades:   executed,
			TotalProfit:      profit,
			Status:           m.status,
			CreatedAt:        m.createdAt,
		},
	}
}

// Stop cancels every resting order best-effort and marks the grid STOPPED.
// Trade history and profit remain queryable. Safe to call more than once.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		if m.status == types.GridStatusActive {
			m.status = types.GridStatusStopped
		}
		resting := make([]types.OrderRecord, 0, len(m.buyOrders)+len(m.sellOrders))
		for _, order := range m.buyOrders {
			resting = append(resting, order)
		}
		for _, order := range m.sellOrders {
			resting = append(resting, order)
		}
		m.mu.Unlock()

		for _, order := range resting {
			if err := m.gateway.CancelOrder(ctx, m.symbol, order.OrderID); err != nil {
				m.log.Warn("failed to cancel grid order during stop",
					zap.String("strategy_id", m.id),
					zap.Int64("order_id", order.OrderID),
					zap.Error(errors.Wrap(errors.ErrCodeCleanupFailed, "grid order may be left resting", err)),
				)
			}
		}

		close(m.stopCh)
	})

	return nil
}

func (m *Monitor) monitor() {
	defer close(m.done)

	ctx := context.Background()
	retry := &backoff.Backoff{
		Min:    m.config.ErrorBackoffMin,
		Max:    m.config.ErrorBackoffMax,
		Factor: 2,
		Jitter: true,
	}
	delay := m.config.PollInterval

	for {
		select {
		case <-m.stopCh:
			return
		case <-time.After(delay):
		}

		if m.pollOnce(ctx) {
			retry.Reset()
			delay = m.config.PollInterval
		} else {
			delay = retry.Duration()
			m.log.Warn("grid poll failed, backing off",
				zap.String("strategy_id", m.id),
				zap.Duration("retry_in", delay),
			)
		}
	}
}

// restingOrder describes one leg captured outside the lock for polling.
type restingOrder struct {
	level int
	side  types.Side
	order types.OrderRecord
}

// pollOnce queries every resting leg and reacts to terminal transitions.
// Returns false when any query failed, which triggers backoff.
func (m *Monitor) pollOnce(ctx context.Context) bool {
	m.mu.RLock()
	resting := make([]restingOrder, 0, len(m.buyOrders)+len(m.sellOrders))
	for level, order := range m.buyOrders {
		resting = append(resting, restingOrder{level: level, side: types.SideBuy, order: order})
	}
	for level, order := range m.sellOrders {
		resting = append(resting, restingOrder{level: level, side: types.SideSell, order: order})
	}
	m.mu.RUnlock()

	healthy := true

	for _, leg := range resting {
		select {
		case <-m.stopCh:
			return true
		default:
		}

		current, err := m.gateway.GetOrderStatus(ctx, m.symbol, leg.order.OrderID)
		if err != nil {
			m.log.Warn("failed to query grid order",
				zap.String("strategy_id", m.id),
				zap.Int("level", leg.level),
				zap.Int64("order_id", leg.order.OrderID),
				zap.Error(err),
			)

			healthy = false

			continue
		}

		switch current.Status {
		case types.OrderStatusFilled:
			m.onFill(ctx, leg.level, leg.side, current)
		case types.OrderStatusCanceled, types.OrderStatusRejected, types.OrderStatusExpired:
			// The leg is gone without a fill; drop it so it is not polled
			// again. The level has no resting order until a counter-order
			// from a neighboring fill re-occupies it.
			m.removeOrder(leg.level, leg.side)
			m.log.Warn("grid order gone without fill",
				zap.String("strategy_id", m.id),
				zap.Int("level", leg.level),
				zap.Int64("order_id", leg.order.OrderID),
				zap.String("status", string(current.Status)),
			)
		}
	}

	return healthy
}

// onFill records the trade, credits profit, and mirrors the fill with a
// counter-order one level up (for buys) or down (for sells).
func (m *Monitor) onFill(ctx context.Context, level int, side types.Side, order types.OrderRecord) {
	fillPrice := order.AvgPrice
	if fillPrice == 0 {
		fillPrice = order.Price
	}

	record := types.TradeRecord{
		Level:     level,
		Side:      side,
		Quantity:  order.ExecutedQty,
		Price:     fillPrice,
		Timestamp: order.UpdateTime,
		OrderID:   order.OrderID,
	}

	m.mu.Lock()
	if side == types.SideBuy {
		delete(m.buyOrders, level)
	} else {
		delete(m.sellOrders, level)
	}
	m.trades = append(m.trades, trade{TradeRecord: record})
	m.matchProfitLocked()
	m.mu.Unlock()

	m.log.Info("grid level filled",
		zap.String("strategy_id", m.id),
		zap.Int("level", level),
		zap.String("side", string(side)),
		zap.Float64("price", fillPrice),
		zap.Float64("quantity", order.ExecutedQty),
	)

	m.placeCounterOrder(ctx, level, side)
}

// placeCounterOrder mirrors a fill: a buy at level L is countered by a sell
// at the next level up, a sell at L by a buy at the next level down. The
// AT_MARKET split point never holds an order, so it is skipped over. Edge
// levels have no counter target, and a level that already holds a resting
// order is left alone. Nothing is placed once the grid has stopped, so a
// fill observed while Stop was cancelling the resting orders cannot leak a
// live order onto a stopped grid.
func (m *Monitor) placeCounterOrder(ctx context.Context, level int, side types.Side) {
	counterSide := side.Opposite()

	step := 1
	if side == types.SideSell {
		step = -1
	}

	counterLevel := level + step
	for counterLevel >= 1 && counterLevel <= m.gridCount && m.levels[counterLevel-1].Role == types.GridRoleAtMarket {
		counterLevel += step
	}

	if counterLevel < 1 || counterLevel > m.gridCount {
		return
	}

	m.mu.RLock()
	active := m.status == types.GridStatusActive
	_, buyResting := m.buyOrders[counterLevel]
	_, sellResting := m.sellOrders[counterLevel]
	m.mu.RUnlock()

	if !active || buyResting || sellResting {
		return
	}

	price := m.levels[counterLevel-1].Price

	order, err := m.gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:   m.symbol,
		Side:     counterSide,
		Type:     types.OrderTypeLimit,
		Quantity: m.quantityPerLevel,
		Price:    price,
	})
	if err != nil {
		m.log.Warn("failed to place counter-order",
			zap.String("strategy_id", m.id),
			zap.Int("level", counterLevel),
			zap.String("side", string(counterSide)),
			zap.Float64("price", price),
			zap.Error(err),
		)

		return
	}

	m.mu.Lock()
	stopped := m.status != types.GridStatusActive
	if !stopped {
		if counterSide == types.SideBuy {
			m.buyOrders[counterLevel] = order
		} else {
			m.sellOrders[counterLevel] = order
		}
	}
	m.mu.Unlock()

	if stopped {
		// Stop ran while the order was in flight; it missed this one, so
		// undo the placement here.
		if err := m.gateway.CancelOrder(ctx, m.symbol, order.OrderID); err != nil {
			m.log.Warn("failed to cancel counter-order placed during stop",
				zap.String("strategy_id", m.id),
				zap.Int64("order_id", order.OrderID),
				zap.Error(errors.Wrap(errors.ErrCodeCleanupFailed, "counter-order may be left resting", err)),
			)
		}

		return
	}

	m.log.Info("counter-order placed",
		zap.String("strategy_id", m.id),
		zap.Int("level", counterLevel),
		zap.String("side", string(counterSide)),
		zap.Float64("price", price),
	)
}

// matchProfitLocked pairs the newest trade with the oldest unmatched
// opposite-side trade inside the lookback window: a sell at a higher level
// pairs with a buy at a lower level. Each trade is credited at most once.
// Callers must hold mu.
func (m *Monitor) matchProfitLocked() {
	newest := &m.trades[len(m.trades)-1]

	start := len(m.trades) - profitLookback
	if start < 0 {
		start = 0
	}

	for i := start; i < len(m.trades)-1; i++ {
		candidate := &m.trades[i]
		if candidate.matched {
			continue
		}

		var buy, sell *trade

		switch {
		case newest.Side == types.SideSell && candidate.Side == types.SideBuy && candidate.Level < newest.Level:
			buy, sell = candidate, newest
		case newest.Side == types.SideBuy && candidate.Side == types.SideSell && candidate.Level > newest.Level:
			buy, sell = newest, candidate
		default:
			continue
		}

		quantity := decimal.Min(decimal.NewFromFloat(buy.Quantity), decimal.NewFromFloat(sell.Quantity))
		profit := decimal.NewFromFloat(sell.Price).Sub(decimal.NewFromFloat(buy.Price)).Mul(quantity)

		m.totalProfit = m.totalProfit.Add(profit)
		buy.matched = true
		sell.matched = true

		realized, _ := profit.Float64()
		m.log.Info("grid profit realized",
			zap.String("strategy_id", m.id),
			zap.Int("buy_level", buy.Level),
			zap.Int("sell_level", sell.Level),
			zap.Float64("profit", realized),
		)

		return
	}
}

// removeOrder drops a leg from whichever map holds it.
func (m *Monitor) removeOrder(level int, side types.Side) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if side == types.SideBuy {
		delete(m.buyOrders, level)
	} else {
		delete(m.sellOrders, level)
	}
}
