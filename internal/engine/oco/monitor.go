// Package oco implements one-cancels-other bracket orders on top of
// primitive exchange orders. The exchange offers no server-side OCO, so two
// independent legs are placed and a background task polls them, cancelling
// the loser when the first leg fills.
package oco

import (
	"context"
	"sync"
	"time"

	"github.com/jpillora/backoff"
	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"go.uber.org/zap"
)

const (
	// DefaultPollInterval is how often both legs are polled.
	DefaultPollInterval = 5 * time.Second
	// DefaultErrorBackoffMin is the first retry delay after a failed poll.
	DefaultErrorBackoffMin = 10 * time.Second
	// DefaultErrorBackoffMax caps the retry delay.
	DefaultErrorBackoffMax = time.Minute
)

// Config tunes the monitor's polling behavior.
type Config struct {
	PollInterval    time.Duration
	ErrorBackoffMin time.Duration
	ErrorBackoffMax time.Duration
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}

	if c.ErrorBackoffMin <= 0 {
		c.ErrorBackoffMin = DefaultErrorBackoffMin
	}

	if c.ErrorBackoffMax <= 0 {
		c.ErrorBackoffMax = DefaultErrorBackoffMax
	}
}

// Monitor owns one bracket pair. All mutation happens on the monitoring
// goroutine or under mu; external callers only read snapshots and signal stop.
type Monitor struct {
	id      string
	gateway exchange.Gateway
	log     *logger.Logger
	config  Config

	mu              sync.RWMutex
	symbol          string
	side            types.Side
	quantity        float64
	takeProfitOrder types.OrderRecord
	stopOrder       types.OrderRecord
	status          types.OCOStatus
	createdAt       time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start places both legs and launches monitoring. The take-profit leg is a
// limit order; the stop leg is a stop-limit order, using the trigger price as
// its own limit price when no explicit stop-limit price is given. If the
// second leg fails to place, the first is cancelled before the error is
// returned so no orphaned leg survives a failed start.
func Start(ctx context.Context, id string, gateway exchange.Gateway, log *logger.Logger, req types.OCORequest, config Config) (*Monitor, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	config.applyDefaults()

	takeProfit, err := gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:   req.Symbol,
		Side:     req.Side,
		Type:     types.OrderTypeLimit,
		Quantity: req.Quantity,
		Price:    req.TakeProfitPrice,
	})
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodePlacementFailed, "failed to place take-profit leg", err)
	}

	stopLimitPrice := req.StopLimitPrice.TakeOr(req.StopPrice)

	stopOrder, err := gateway.PlaceOrder(ctx, types.OrderSpec{
		Symbol:    req.Symbol,
		Side:      req.Side,
		Type:      types.OrderTypeStop,
		Quantity:  req.Quantity,
		Price:     stopLimitPrice,
		StopPrice: req.StopPrice,
	})
	if err != nil {
		// Clean up the surviving take-profit leg. The cleanup failure is
		// logged only; the placement failure is what the caller needs.
		if cancelErr := gateway.CancelOrder(ctx, req.Symbol, takeProfit.OrderID); cancelErr != nil {
			log.Error("failed to cancel take-profit leg after stop leg placement failure",
				zap.String("strategy_id", id),
				zap.Int64("order_id", takeProfit.OrderID),
				zap.Error(errors.Wrap(errors.ErrCodeCleanupFailed, "take-profit leg may be orphaned", cancelErr)),
			)
		}

		return nil, errors.Wrap(errors.ErrCodePlacementFailed, "failed to place stop leg", err)
	}

	m := &Monitor{
		id:              id,
		gateway:         gateway,
		log:             log,
		config:          config,
		symbol:          req.Symbol,
		side:            req.Side,
		quantity:        req.Quantity,
		takeProfitOrder: takeProfit,
		stopOrder:       stopOrder,
		status:          types.OCOStatusActive,
		createdAt:       time.Now(),
		stopCh:          make(chan struct{}),
		done:            make(chan struct{}),
	}

	log.Info("OCO bracket placed",
		zap.String("strategy_id", id),
		zap.String("symbol", req.Symbol),
		zap.Int64("take_profit_order_id", takeProfit.OrderID),
		zap.Int64("stop_order_id", stopOrder.OrderID),
	)

	go m.monitor()

	return m, nil
}

func (m *Monitor) ID() string { return m.id }

func (m *Monitor) Kind() types.StrategyKind { return types.StrategyKindOCO }

// Done is closed when the monitoring goroutine exits.
func (m *Monitor) Done() <-chan struct{} { return m.done }

// Snapshot returns a point-in-time copy of the bracket's state.
func (m *Monitor) Snapshot() types.StrategySnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return types.StrategySnapshot{
		ID:     m.id,
		Kind:   types.StrategyKindOCO,
		Symbol: m.symbol,
		Status: string(m.status),
		OCO: &types.OCOSnapshot{
			ID:              m.id,
			Symbol:          m.symbol,
			Side:            m.side,
			Quantity:        m.quantity,
			TakeProfitOrder: m.takeProfitOrder,
			StopOrder:       m.stopOrder,
			Status:          m.status,
			CreatedAt:       m.createdAt,
		},
	}
}

// Stop cancels both legs regardless of their status and marks the bracket
// CANCELLED. Safe to call more than once.
func (m *Monitor) Stop(ctx context.Context) error {
	m.stopOnce.Do(func() {
		m.mu.Lock()
		active := m.status == types.OCOStatusActive
		if active {
			m.status = types.OCOStatusCancelled
		}
		takeProfitID := m.takeProfitOrder.OrderID
		stopID := m.stopOrder.OrderID
		m.mu.Unlock()

		if active {
			m.cancelLeg(ctx, takeProfitID)
			m.cancelLeg(ctx, stopID)
		}

		close(m.stopCh)
	})

	return nil
}

// cancelLeg cancels best-effort; the race with a fill means failures are
// expected and only logged.
func (m *Monitor) cancelLeg(ctx context.Context, orderID int64) {
	if err := m.gateway.CancelOrder(ctx, m.symbol, orderID); err != nil {
		m.log.Warn("failed to cancel OCO leg",
			zap.String("strategy_id", m.id),
			zap.Int64("order_id", orderID),
			zap.Error(err),
		)
	}
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

		takeProfit, err := m.gateway.GetOrderStatus(ctx, m.symbol, m.takeProfitOrder.OrderID)
		if err != nil {
			delay = retry.Duration()
			m.log.Warn("take-profit leg poll failed, backing off",
				zap.String("strategy_id", m.id),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)

			continue
		}

		stopOrder, err := m.gateway.GetOrderStatus(ctx, m.symbol, m.stopOrder.OrderID)
		if err != nil {
			delay = retry.Duration()
			m.log.Warn("stop leg poll failed, backing off",
				zap.String("strategy_id", m.id),
				zap.Duration("retry_in", delay),
				zap.Error(err),
			)

			continue
		}

		retry.Reset()
		delay = m.config.PollInterval

		m.mu.Lock()
		if m.status != types.OCOStatusActive {
			m.mu.Unlock()

			return
		}
		m.takeProfitOrder = takeProfit
		m.stopOrder = stopOrder
		m.mu.Unlock()

		switch {
		case takeProfit.Status == types.OrderStatusFilled:
			m.settle(ctx, types.OCOStatusTakeProfitFilled, stopOrder.OrderID, "take-profit")

			return
		case stopOrder.Status == types.OrderStatusFilled:
			m.settle(ctx, types.OCOStatusStopFilled, takeProfit.OrderID, "stop")

			return
		case takeProfit.Status == types.OrderStatusCanceled && stopOrder.Status == types.OrderStatusCanceled:
			m.setStatus(types.OCOStatusCancelled)
			m.log.Info("both OCO legs cancelled externally",
				zap.String("strategy_id", m.id),
			)

			return
		case takeProfit.Status == types.OrderStatusRejected || takeProfit.Status == types.OrderStatusExpired:
			m.abandon(ctx, takeProfit, stopOrder.OrderID)

			return
		case stopOrder.Status == types.OrderStatusRejected || stopOrder.Status == types.OrderStatusExpired:
			m.abandon(ctx, stopOrder, takeProfit.OrderID)

			return
		}
	}
}

// settle records the winning leg and cancels the loser.
func (m *Monitor) settle(ctx context.Context, status types.OCOStatus, loserOrderID int64, winner string) {
	m.cancelLeg(ctx, loserOrderID)
	m.setStatus(status)

	m.log.Info("OCO settled",
		zap.String("strategy_id", m.id),
		zap.String("winner", winner),
		zap.Int64("cancelled_order_id", loserOrderID),
	)
}

// abandon gives up on a bracket whose leg died without filling. The sibling
// is cancelled so it cannot fill outside a working bracket, and the status
// reflects that monitoring stopped abnormally.
func (m *Monitor) abandon(ctx context.Context, deadLeg types.OrderRecord, siblingOrderID int64) {
	m.cancelLeg(ctx, siblingOrderID)
	m.setStatus(types.OCOStatusError)

	m.log.Error("OCO leg gone without fill, giving up",
		zap.String("strategy_id", m.id),
		zap.Int64("order_id", deadLeg.OrderID),
		zap.String("leg_status", string(deadLeg.Status)),
	)
}

func (m *Monitor) setStatus(status types.OCOStatus) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.status = status
}
