// Package twap slices a large order into equal time-spaced chunks to reduce
// market impact. Chunks execute as market orders, or as limit orders when a
// price limit is set; any rounding remainder is absorbed into the final
// chunk so the requested sizes sum exactly to the total quantity.
package twap

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultLimitFillWait is how long a limit chunk may rest before it is
// counted as attempted and cancelled.
const DefaultLimitFillWait = 5 * time.Second

// Config tunes scheduling for tests. Zero values use the request's interval
// and the default fill wait.
type Config struct {
	// IntervalOverride replaces the request's interval between chunks.
	IntervalOverride time.Duration
	// LimitFillWait bounds how long a limit chunk may rest unfilled.
	LimitFillWait time.Duration
}

func (c *Config) applyDefaults() {
	if c.LimitFillWait <= 0 {
		c.LimitFillWait = DefaultLimitFillWait
	}
}

// Scheduler owns one TWAP execution. The execution goroutine is the only
// writer; mu guards snapshot reads and the cooperative cancel.
type Scheduler struct {
	id      string
	gateway exchange.Gateway
	log     *logger.Logger
	config  Config

	symbol        string
	side          types.Side
	totalQuantity float64
	chunkSize     decimal.Decimal
	numChunks     int
	interval      time.Duration
	priceLimit    float64
	hasPriceLimit bool

	mu             sync.RWMutex
	remaining      decimal.Decimal
	placedAny      bool
	executedChunks int
	executions     []types.ChunkExecution
	totalFilled    decimal.Decimal
	notional       decimal.Decimal
	status         types.TWAPStatus
	createdAt      time.Time

	stopCh   chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// Start validates the schedule and launches execution. numChunks is
// floor(duration/interval); a schedule yielding zero chunks is rejected.
// The first chunk executes immediately.
func Start(ctx context.Context, id string, gateway exchange.Gateway, log *logger.Logger, req types.TWAPRequest, config Config) (*Scheduler, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	config.applyDefaults()

	numChunks := req.DurationMinutes / req.IntervalMinutes
	if numChunks < 1 {
		return nil, errors.Newf(errors.ErrCodeInvalidSchedule,
			"duration %dm with interval %dm yields zero chunks", req.DurationMinutes, req.IntervalMinutes)
	}

	total := decimal.NewFromFloat(req.TotalQuantity)
	chunkSize := total.Div(decimal.NewFromInt(int64(numChunks)))

	interval := time.Duration(req.IntervalMinutes) * time.Minute
	if config.IntervalOverride > 0 {
		interval = config.IntervalOverride
	}

	s := &Scheduler{
		id:            id,
		gateway:       gateway,
		log:           log,
		config:        config,
		symbol:        req.Symbol,
		side:          req.Side,
		totalQuantity: req.TotalQuantity,
		chunkSize:     chunkSize,
		numChunks:     numChunks,
		interval:      interval,
		priceLimit:    req.PriceLimit.TakeOr(0),
		hasPriceLimit: req.PriceLimit.IsSome(),
		remaining:     total,
		executions:    []types.ChunkExecution{},
		totalFilled:   decimal.Zero,
		notional:      decimal.Zero,
		status:        types.TWAPStatusActive,
		createdAt:     time.Now(),
		stopCh:        make(chan struct{}),
		done:          make(chan struct{}),
	}

	log.Info("TWAP schedule started",
		zap.String("strategy_id", id),
		zap.String("symbol", req.Symbol),
		zap.Int("num_chunks", numChunks),
		zap.Float64("total_quantity", req.TotalQuantity),
		zap.Duration("interval", interval),
	)

	go s.run(ctx)

	return s, nil
}

func (s *Scheduler) ID() string { return s.id }

func (s *Scheduler) Kind() types.StrategyKind { return types.StrategyKindTWAP }

// Done is closed when the execution goroutine exits.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Snapshot returns a point-in-time copy of the schedule's state.
func (s *Scheduler) Snapshot() types.StrategySnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	executions := make([]types.ChunkExecution, len(s.executions))
	copy(executions, s.executions)

	remaining, _ := s.remaining.Float64()
	filled, _ := s.totalFilled.Float64()
	chunkSize, _ := s.chunkSize.Float64()

	avgPrice := 0.0
	if s.totalFilled.IsPositive() {
		avgPrice, _ = s.notional.Div(s.totalFilled).Float64()
	}

	return types.StrategySnapshot{
		ID:     s.id,
		Kind:   types.StrategyKindTWAP,
		Symbol: s.symbol,
		Status: string(s.status),
		TWAP: &types.TWAPSnapshot{
			ID:                s.id,
			Symbol:            s.symbol,
			Side:              s.side,
			TotalQuantity:     s.totalQuantity,
			RemainingQuantity: remaining,
			ChunkSize:         chunkSize,
			NumChunks:         s.numChunks,
			ExecutedChunks:    s.executedChunks,
			Interval:          s.interval,
			PriceLimit:        s.priceLimit,
			Executions:        executions,
			TotalFilled:       filled,
			AvgPrice:          avgPrice,
			Status:            s.status,
			CreatedAt:         s.createdAt,
		},
	}
}

// Stop cancels the schedule cooperatively. An in-flight chunk completes; no
// further chunk is placed. Safe to call more than once.
func (s *Scheduler) Stop(_ context.Context) error {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})

	return nil
}

func (s *Scheduler) run(ctx context.Context) {
	defer close(s.done)

	for c := 0; c < s.numChunks; c++ {
		if c > 0 {
			select {
			case <-s.stopCh:
				s.setStatus(types.TWAPStatusCancelled)
				s.log.Info("TWAP cancelled",
					zap.String("strategy_id", s.id),
					zap.Int("chunks_executed", c),
				)

				return
			case <-time.After(s.interval):
			}
		}

		select {
		case <-s.stopCh:
			s.setStatus(types.TWAPStatusCancelled)

			return
		default:
		}

		s.mu.RLock()
		remaining := s.remaining
		s.mu.RUnlock()

		if !remaining.IsPositive() {
			break
		}

		// The final chunk absorbs the rounding remainder so the requested
		// sizes sum exactly to the total quantity.
		requested := decimal.Min(s.chunkSize, remaining)
		if c == s.numChunks-1 {
			requested = remaining
		}

		s.executeChunk(ctx, c, requested)
	}

	s.mu.RLock()
	placedAny := s.placedAny
	filled, _ := s.totalFilled.Float64()
	chunks := s.executedChunks
	s.mu.RUnlock()

	if !placedAny {
		// Not a single chunk order reached the exchange. Reporting that as
		// COMPLETED would claim an execution that never happened.
		s.setStatus(types.TWAPStatusError)

		s.log.Error("TWAP gave up: every chunk placement failed",
			zap.String("strategy_id", s.id),
			zap.Int("num_chunks", s.numChunks),
		)

		return
	}

	s.setStatus(types.TWAPStatusCompleted)

	s.log.Info("TWAP completed",
		zap.String("strategy_id", s.id),
		zap.Int("chunks_filled", chunks),
		zap.Float64("total_filled", filled),
	)
}

// executeChunk places one chunk and records the fill. A failed or unfilled
// chunk is logged and skipped; the schedule proceeds to the next interval.
func (s *Scheduler) executeChunk(ctx context.Context, index int, requested decimal.Decimal) {
	quantity, _ := requested.Float64()

	spec := types.OrderSpec{
		Symbol:   s.symbol,
		Side:     s.side,
		Type:     types.OrderTypeMarket,
		Quantity: quantity,
	}
	if s.hasPriceLimit {
		spec.Type = types.OrderTypeLimit
		spec.Price = s.priceLimit
	}

	order, err := s.gateway.PlaceOrder(ctx, spec)
	if err != nil {
		s.log.Warn("chunk placement failed, skipping",
			zap.String("strategy_id", s.id),
			zap.Int("chunk", index),
			zap.Float64("quantity", quantity),
			zap.Error(err),
		)

		return
	}

	s.mu.Lock()
	s.placedAny = true
	s.mu.Unlock()

	if order.Status != types.OrderStatusFilled {
		order = s.awaitLimitFill(ctx, order)
	}

	if order.Status != types.OrderStatusFilled {
		// An unfilled limit chunk counts as attempted. Cancel it so the
		// resting order cannot fill later outside the schedule's accounting.
		if cancelErr := s.gateway.CancelOrder(ctx, s.symbol, order.OrderID); cancelErr != nil {
			s.log.Warn("failed to cancel unfilled chunk",
				zap.String("strategy_id", s.id),
				zap.Int64("order_id", order.OrderID),
				zap.Error(cancelErr),
			)
		}

		s.log.Warn("chunk not filled within wait window, skipping",
			zap.String("strategy_id", s.id),
			zap.Int("chunk", index),
			zap.Int64("order_id", order.OrderID),
		)

		return
	}

	executedQty := decimal.NewFromFloat(order.ExecutedQty)
	price := decimal.NewFromFloat(order.AvgPrice)

	s.mu.Lock()
	s.executions = append(s.executions, types.ChunkExecution{
		ChunkIndex: index,
		Quantity:   order.ExecutedQty,
		Price:      order.AvgPrice,
		Timestamp:  order.UpdateTime,
		OrderID:    order.OrderID,
	})
	s.executedChunks++
	s.totalFilled = s.totalFilled.Add(executedQty)
	s.notional = s.notional.Add(executedQty.Mul(price))
	s.remaining = s.remaining.Sub(executedQty)
	s.mu.Unlock()

	s.log.Info("chunk filled",
		zap.String("strategy_id", s.id),
		zap.Int("chunk", index),
		zap.Float64("quantity", order.ExecutedQty),
		zap.Float64("price", order.AvgPrice),
	)
}

// awaitLimitFill polls a resting limit chunk until it fills or the wait
// window elapses. The wait is interruptible by cancellation.
func (s *Scheduler) awaitLimitFill(ctx context.Context, order types.OrderRecord) types.OrderRecord {
	deadline := time.After(s.config.LimitFillWait)
	poll := s.config.LimitFillWait / 5
	if poll <= 0 {
		poll = time.Millisecond
	}

	for {
		select {
		case <-s.stopCh:
			return order
		case <-deadline:
			return order
		case <-time.After(poll):
		}

		current, err := s.gateway.GetOrderStatus(ctx, s.symbol, order.OrderID)
		if err != nil {
			s.log.Warn("failed to query chunk status",
				zap.String("strategy_id", s.id),
				zap.Int64("order_id", order.OrderID),
				zap.Error(err),
			)

			continue
		}

		if current.Status.IsTerminal() {
			return current
		}
	}
}

func (s *Scheduler) setStatus(status types.TWAPStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == types.TWAPStatusActive {
		s.status = status
	}
}
