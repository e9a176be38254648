// Package exchangetest provides an in-memory Gateway for tests. Orders rest
// until the test marks them filled or cancelled; market orders fill
// immediately at the configured price.
package exchangetest

import (
	"context"
	"sync"
	"time"

	"github.com/rxtech-lab/argo-execution/internal/exchange"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
)

type FakeGateway struct {
	mu sync.Mutex

	nextID  int64
	orders  map[int64]types.OrderRecord
	origQty map[int64]float64
	prices  map[string]float64
	filters map[string]types.SymbolFilters

	placed    []types.OrderSpec
	cancelled []int64

	placeErrs []error
	queryErrs int
	cancelErr error
}

func NewFakeGateway() *FakeGateway {
	return &FakeGateway{
		nextID:  1000,
		orders:  make(map[int64]types.OrderRecord),
		origQty: make(map[int64]float64),
		prices:  make(map[string]float64),
		filters: make(map[string]types.SymbolFilters),
	}
}

// SetPrice sets the ticker price used for GetCurrentPrice and for filling
// market orders.
func (g *FakeGateway) SetPrice(symbol string, price float64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prices[symbol] = price
}

func (g *FakeGateway) SetFilters(symbol string, filters types.SymbolFilters) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.filters[symbol] = filters
}

// FailNextPlace queues an error for an upcoming PlaceOrder call. Queued
// entries are consumed in order; a nil entry means that call succeeds.
func (g *FakeGateway) FailNextPlace(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.placeErrs = append(g.placeErrs, err)
}

// FailQueries makes the next n GetOrderStatus calls fail.
func (g *FakeGateway) FailQueries(n int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queryErrs = n
}

// FailCancels makes all subsequent CancelOrder calls fail with err.
func (g *FakeGateway) FailCancels(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.cancelErr = err
}

// MarkFilled transitions a resting order to FILLED with its full original
// quantity executed, even after an earlier MarkPartiallyFilled.
func (g *FakeGateway) MarkFilled(orderID int64, avgPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return
	}

	order.Status = types.OrderStatusFilled
	order.ExecutedQty = g.origQty[orderID]
	order.AvgPrice = avgPrice
	order.UpdateTime = time.Now()
	g.orders[orderID] = order
}

// MarkPartiallyFilled reports partial execution without terminating the order.
func (g *FakeGateway) MarkPartiallyFilled(orderID int64, executedQty, avgPrice float64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return
	}

	order.Status = types.OrderStatusPartiallyFilled
	order.ExecutedQty = executedQty
	order.AvgPrice = avgPrice
	order.UpdateTime = time.Now()
	g.orders[orderID] = order
}

// MarkRejected transitions a resting order to REJECTED.
func (g *FakeGateway) MarkRejected(orderID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return
	}

	order.Status = types.OrderStatusRejected
	order.UpdateTime = time.Now()
	g.orders[orderID] = order
}

// MarkCanceled transitions a resting order to CANCELED, as if cancelled
// externally.
func (g *FakeGateway) MarkCanceled(orderID int64) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]
	if !ok {
		return
	}

	order.Status = types.OrderStatusCanceled
	order.UpdateTime = time.Now()
	g.orders[orderID] = order
}

// Order returns a copy of the order's current state.
func (g *FakeGateway) Order(orderID int64) (types.OrderRecord, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	order, ok := g.orders[orderID]

	return order, ok
}

// PlacedOrders returns all specs passed to PlaceOrder, in call order.
func (g *FakeGateway) PlacedOrders() []types.OrderSpec {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]types.OrderSpec, len(g.placed))
	copy(out, g.placed)

	return out
}

// CancelledOrders returns the ids passed to CancelOrder, in call order.
func (g *FakeGateway) CancelledOrders() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make([]int64, len(g.cancelled))
	copy(out, g.cancelled)

	return out
}

// OpenOrderIDs returns the ids of all non-terminal orders.
func (g *FakeGateway) OpenOrderIDs() []int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	var out []int64
	for id, order := range g.orders {
		if !order.Status.IsTerminal() {
			out = append(out, id)
		}
	}

	return out
}

func (g *FakeGateway) PlaceOrder(_ context.Context, spec types.OrderSpec) (types.OrderRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(g.placeErrs) > 0 {
		err := g.placeErrs[0]
		g.placeErrs = g.placeErrs[1:]
		if err != nil {
			return types.OrderRecord{}, err
		}
	}

	g.placed = append(g.placed, spec)
	g.nextID++

	record := types.OrderRecord{
		OrderID:    g.nextID,
		Symbol:     spec.Symbol,
		Side:       spec.Side,
		Type:       spec.Type,
		Status:     types.OrderStatusNew,
		Price:      spec.Price,
		UpdateTime: time.Now(),
	}
	g.origQty[record.OrderID] = spec.Quantity

	if spec.Type == types.OrderTypeMarket {
		record.Status = types.OrderStatusFilled
		record.ExecutedQty = spec.Quantity
		record.AvgPrice = g.prices[spec.Symbol]
	}

	g.orders[record.OrderID] = record

	return record, nil
}

func (g *FakeGateway) CancelOrder(_ context.Context, _ string, orderID int64) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.cancelErr != nil {
		return g.cancelErr
	}

	g.cancelled = append(g.cancelled, orderID)

	order, ok := g.orders[orderID]
	if !ok || order.Status.IsTerminal() {
		// Mirrors the exchange treating unknown orders as already gone.
		return nil
	}

	order.Status = types.OrderStatusCanceled
	order.UpdateTime = time.Now()
	g.orders[orderID] = order

	return nil
}

func (g *FakeGateway) GetOrderStatus(_ context.Context, _ string, orderID int64) (types.OrderRecord, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.queryErrs > 0 {
		g.queryErrs--

		return types.OrderRecord{}, errors.New(errors.ErrCodeQueryFailed, "simulated query failure")
	}

	order, ok := g.orders[orderID]
	if !ok {
		return types.OrderRecord{}, errors.Newf(errors.ErrCodeOrderNotFound, "order %d not found", orderID)
	}

	return order, nil
}

func (g *FakeGateway) GetCurrentPrice(_ context.Context, symbol string) (float64, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	price, ok := g.prices[symbol]
	if !ok {
		return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no price for %s", symbol)
	}

	return price, nil
}

func (g *FakeGateway) GetSymbolFilters(_ context.Context, symbol string) (types.SymbolFilters, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if filters, ok := g.filters[symbol]; ok {
		return filters, nil
	}

	return exchange.DefaultSymbolFilters, nil
}

var _ exchange.Gateway = (*FakeGateway)(nil)
