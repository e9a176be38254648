// Package engine orchestrates execution strategies synthesized from
// primitive exchange orders: OCO brackets, grid ladders, and TWAP slicing.
// Each running strategy is owned by a single background goroutine and shared
// only through registry snapshots.
package engine

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rxtech-lab/argo-execution/internal/engine/grid"
	"github.com/rxtech-lab/argo-execution/internal/engine/oco"
	"github.com/rxtech-lab/argo-execution/internal/engine/twap"
	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"go.uber.org/zap"
)

// ConfirmFunc is asked to approve a strategy before any order is placed.
// Interactive front ends prompt the operator; non-interactive ones pass nil
// or always return true.
type ConfirmFunc func(summary string) bool

// Engine is the strategy orchestration facade. Start errors surface
// synchronously and leave nothing registered; background errors surface
// through strategy status.
type Engine struct {
	gateway  exchange.Gateway
	log      *logger.Logger
	registry *Registry
	confirm  ConfirmFunc

	ocoConfig  oco.Config
	gridConfig grid.Config
	twapConfig twap.Config
}

// Option configures an Engine.
type Option func(*Engine)

// WithConfirmation installs a confirmation callback consulted before any
// strategy places its first order.
func WithConfirmation(confirm ConfirmFunc) Option {
	return func(e *Engine) {
		e.confirm = confirm
	}
}

// WithOCOConfig overrides OCO polling behavior.
func WithOCOConfig(config oco.Config) Option {
	return func(e *Engine) {
		e.ocoConfig = config
	}
}

// WithGridConfig overrides grid polling and seeding behavior.
func WithGridConfig(config grid.Config) Option {
	return func(e *Engine) {
		e.gridConfig = config
	}
}

// WithTWAPConfig overrides TWAP scheduling behavior.
func WithTWAPConfig(config twap.Config) Option {
	return func(e *Engine) {
		e.twapConfig = config
	}
}

func NewEngine(gateway exchange.Gateway, log *logger.Logger, opts ...Option) *Engine {
	e := &Engine{
		gateway:  gateway,
		log:      log,
		registry: NewRegistry(),
		confirm:  nil,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// StartOCO places a take-profit/stop bracket and begins monitoring it.
func (e *Engine) StartOCO(ctx context.Context, req types.OCORequest) (types.StrategySnapshot, error) {
	if err := req.Validate(); err != nil {
		return types.StrategySnapshot{}, err
	}

	summary := fmt.Sprintf("OCO %s %s qty %.8f take-profit %.8f stop %.8f",
		req.Side, req.Symbol, req.Quantity, req.TakeProfitPrice, req.StopPrice)
	if err := e.confirmOrReject(summary); err != nil {
		return types.StrategySnapshot{}, err
	}

	id := uuid.NewString()

	m, err := oco.Start(ctx, id, e.gateway, e.log, req, e.ocoConfig)
	if err != nil {
		return types.StrategySnapshot{}, err
	}

	e.registry.Add(m)

	// Brackets are removed from the registry once terminal.
	go func() {
		<-m.Done()
		e.registry.Remove(id)
	}()

	e.log.Info("strategy registered",
		zap.String("strategy_id", id),
		zap.String("kind", string(types.StrategyKindOCO)),
	)

	return m.Snapshot(), nil
}

// StartGrid seeds a ladder of resting orders and begins monitoring it.
func (e *Engine) StartGrid(ctx context.Context, req types.GridRequest) (types.StrategySnapshot, error) {
	if err := req.Validate(); err != nil {
		return types.StrategySnapshot{}, err
	}

	summary := fmt.Sprintf("GRID %s %d levels %.8f..%.8f qty/level %.8f",
		req.Symbol, req.GridCount, req.LowerPrice, req.UpperPrice, req.QuantityPerLevel)
	if err := e.confirmOrReject(summary); err != nil {
		return types.StrategySnapshot{}, err
	}

	id := uuid.NewString()

	m, err := grid.Start(ctx, id, e.gateway, e.log, req, e.gridConfig)
	if err != nil {
		return types.StrategySnapshot{}, err
	}

	e.registry.Add(m)

	e.log.Info("strategy registered",
		zap.String("strategy_id", id),
		zap.String("kind", string(types.StrategyKindGrid)),
	)

	return m.Snapshot(), nil
}

// StartTWAP begins a sliced execution schedule.
func (e *Engine) StartTWAP(ctx context.Context, req types.TWAPRequest) (types.StrategySnapshot, error) {
	if err := req.Validate(); err != nil {
		return types.StrategySnapshot{}, err
	}

	summary := fmt.Sprintf("TWAP %s %s qty %.8f over %dm every %dm",
		req.Side, req.Symbol, req.TotalQuantity, req.DurationMinutes, req.IntervalMinutes)
	if err := e.confirmOrReject(summary); err != nil {
		return types.StrategySnapshot{}, err
	}

	id := uuid.NewString()

	s, err := twap.Start(ctx, id, e.gateway, e.log, req, e.twapConfig)
	if err != nil {
		return types.StrategySnapshot{}, err
	}

	e.registry.Add(s)

	e.log.Info("strategy registered",
		zap.String("strategy_id", id),
		zap.String("kind", string(types.StrategyKindTWAP)),
	)

	return s.Snapshot(), nil
}

// GetStrategy returns a snapshot of a running strategy.
func (e *Engine) GetStrategy(id string) (types.StrategySnapshot, error) {
	s, err := e.registry.Get(id)
	if err != nil {
		return types.StrategySnapshot{}, err
	}

	return s.Snapshot(), nil
}

// ListStrategies returns snapshots of all running strategies of the given
// kind; an empty kind lists everything.
func (e *Engine) ListStrategies(kind types.StrategyKind) []types.StrategySnapshot {
	return e.registry.List(kind)
}

// Stop stops a strategy and removes it from the registry. A second stop for
// the same id reports the strategy as not found.
func (e *Engine) Stop(ctx context.Context, id string) error {
	s, err := e.registry.Get(id)
	if err != nil {
		return err
	}

	if err := s.Stop(ctx); err != nil {
		return err
	}

	e.registry.Remove(id)

	e.log.Info("strategy stopped",
		zap.String("strategy_id", id),
		zap.String("kind", string(s.Kind())),
	)

	return nil
}

// StopAll stops every running strategy, best-effort. Used on shutdown.
func (e *Engine) StopAll(ctx context.Context) {
	for _, snapshot := range e.registry.List("") {
		if err := e.Stop(ctx, snapshot.ID); err != nil && !errors.HasCode(err, errors.ErrCodeStrategyNotFound) {
			e.log.Warn("failed to stop strategy during shutdown",
				zap.String("strategy_id", snapshot.ID),
				zap.Error(err),
			)
		}
	}
}

func (e *Engine) confirmOrReject(summary string) error {
	if e.confirm == nil {
		return nil
	}

	if !e.confirm(summary) {
		return errors.Newf(errors.ErrCodeConfirmationDeclined, "strategy declined by operator: %s", summary)
	}

	return nil
}
