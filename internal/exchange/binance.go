package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/internal/utils"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"go.uber.org/zap"
)

// binanceUnknownOrderCode is returned when cancelling an order that no longer
// exists. The race with a concurrent fill makes this a benign outcome.
const binanceUnknownOrderCode = -2011

// Service interfaces for mocking the Binance futures API

// CreateOrderService interface for creating orders.
type CreateOrderService interface {
	Symbol(symbol string) CreateOrderService
	Side(side futures.SideType) CreateOrderService
	Type(orderType futures.OrderType) CreateOrderService
	TimeInForce(tif futures.TimeInForceType) CreateOrderService
	Quantity(quantity string) CreateOrderService
	Price(price string) CreateOrderService
	StopPrice(stopPrice string) CreateOrderService
	Do(ctx context.Context) (*futures.CreateOrderResponse, error)
}

// CancelOrderService interface for canceling orders.
type CancelOrderService interface {
	Symbol(symbol string) CancelOrderService
	OrderID(orderID int64) CancelOrderService
	Do(ctx context.Context) (*futures.CancelOrderResponse, error)
}

// GetOrderService interface for querying a single order.
type GetOrderService interface {
	Symbol(symbol string) GetOrderService
	OrderID(orderID int64) GetOrderService
	Do(ctx context.Context) (*futures.Order, error)
}

// ListPricesService interface for reading the price ticker.
type ListPricesService interface {
	Symbol(symbol string) ListPricesService
	Do(ctx context.Context) ([]*futures.SymbolPrice, error)
}

// ExchangeInfoService interface for reading symbol trading rules.
type ExchangeInfoService interface {
	Do(ctx context.Context) (*futures.ExchangeInfo, error)
}

// FuturesClient interface abstracts the Binance futures client for testing.
type FuturesClient interface {
	NewCreateOrderService() CreateOrderService
	NewCancelOrderService() CancelOrderService
	NewGetOrderService() GetOrderService
	NewListPricesService() ListPricesService
	NewExchangeInfoService() ExchangeInfoService
}

// realFuturesClient wraps the actual futures.Client.
type realFuturesClient struct {
	client *futures.Client
}

func (r *realFuturesClient) NewCreateOrderService() CreateOrderService {
	return &realCreateOrderService{service: r.client.NewCreateOrderService()}
}

func (r *realFuturesClient) NewCancelOrderService() CancelOrderService {
	return &realCancelOrderService{service: r.client.NewCancelOrderService()}
}

func (r *realFuturesClient) NewGetOrderService() GetOrderService {
	return &realGetOrderService{service: r.client.NewGetOrderService()}
}

func (r *realFuturesClient) NewListPricesService() ListPricesService {
	return &realListPricesService{service: r.client.NewListPricesService()}
}

func (r *realFuturesClient) NewExchangeInfoService() ExchangeInfoService {
	return &realExchangeInfoService{service: r.client.NewExchangeInfoService()}
}

// Real service wrappers

type realCreateOrderService struct {
	service *futures.CreateOrderService
}

func (s *realCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCreateOrderService) Side(side futures.SideType) CreateOrderService {
	s.service = s.service.Side(side)

	return s
}

func (s *realCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	s.service = s.service.Type(orderType)

	return s
}

func (s *realCreateOrderService) TimeInForce(tif futures.TimeInForceType) CreateOrderService {
	s.service = s.service.TimeInForce(tif)

	return s
}

func (s *realCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.service = s.service.Quantity(quantity)

	return s
}

func (s *realCreateOrderService) Price(price string) CreateOrderService {
	s.service = s.service.Price(price)

	return s
}

func (s *realCreateOrderService) StopPrice(stopPrice string) CreateOrderService {
	s.service = s.service.StopPrice(stopPrice)

	return s
}

func (s *realCreateOrderService) Do(ctx context.Context) (*futures.CreateOrderResponse, error) {
	return s.service.Do(ctx)
}

type realCancelOrderService struct {
	service *futures.CancelOrderService
}

func (s *realCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realCancelOrderService) Do(ctx context.Context) (*futures.CancelOrderResponse, error) {
	return s.service.Do(ctx)
}

type realGetOrderService struct {
	service *futures.GetOrderService
}

func (s *realGetOrderService) Symbol(symbol string) GetOrderService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realGetOrderService) OrderID(orderID int64) GetOrderService {
	s.service = s.service.OrderID(orderID)

	return s
}

func (s *realGetOrderService) Do(ctx context.Context) (*futures.Order, error) {
	return s.service.Do(ctx)
}

type realListPricesService struct {
	service *futures.ListPricesService
}

func (s *realListPricesService) Symbol(symbol string) ListPricesService {
	s.service = s.service.Symbol(symbol)

	return s
}

func (s *realListPricesService) Do(ctx context.Context) ([]*futures.SymbolPrice, error) {
	return s.service.Do(ctx)
}

type realExchangeInfoService struct {
	service *futures.ExchangeInfoService
}

func (s *realExchangeInfoService) Do(ctx context.Context) (*futures.ExchangeInfo, error) {
	return s.service.Do(ctx)
}

// BinanceGateway implements Gateway against Binance USD-M futures.
// It holds no order state; monitors own their copies of order records.
type BinanceGateway struct {
	client  FuturesClient
	filters *filtersCache
	log     *logger.Logger
}

// NewBinanceGateway creates a gateway from configuration.
// If config.Testnet is true, connects to the Binance futures testnet.
func NewBinanceGateway(config Config, log *logger.Logger) (*BinanceGateway, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.Testnet {
		futures.UseTestnet = true
	}

	client := futures.NewClient(config.APIKey, config.SecretKey)
	if config.BaseURL != "" {
		client.BaseURL = config.BaseURL
	}

	return &BinanceGateway{
		client:  &realFuturesClient{client: client},
		filters: newFiltersCache(config.FiltersCacheTTL),
		log:     log,
	}, nil
}

// newBinanceGatewayWithClient creates a gateway with a custom client.
// This is used for testing with mock clients.
func newBinanceGatewayWithClient(client FuturesClient, log *logger.Logger) *BinanceGateway {
	return &BinanceGateway{
		client:  client,
		filters: newFiltersCache(DefaultFiltersCacheTTL),
		log:     log,
	}
}

// PlaceOrder places a single primitive order.
func (g *BinanceGateway) PlaceOrder(ctx context.Context, spec types.OrderSpec) (types.OrderRecord, error) {
	if spec.Quantity <= 0 {
		return types.OrderRecord{}, errors.New(errors.ErrCodeInvalidParameter, "order quantity must be greater than zero")
	}

	side, err := mapSide(spec.Side)
	if err != nil {
		return types.OrderRecord{}, err
	}

	orderType, err := mapOrderType(spec.Type)
	if err != nil {
		return types.OrderRecord{}, err
	}

	// Format price and quantity with the symbol's precision. Fall back to
	// conservative defaults when exchange info is unavailable; the order may
	// still pass the exchange's filters.
	filters, err := g.GetSymbolFilters(ctx, spec.Symbol)
	if err != nil {
		g.log.Warn("symbol filters unavailable, using defaults",
			zap.String("symbol", spec.Symbol),
			zap.Error(err),
		)

		filters = DefaultSymbolFilters
	}

	quantity := utils.FloorToDecimalPrecision(spec.Quantity, filters.QuantityPrecision)
	if quantity <= 0 {
		return types.OrderRecord{}, errors.Newf(errors.ErrCodeInvalidParameter,
			"order quantity %.8f is too small for %d decimal places", spec.Quantity, filters.QuantityPrecision)
	}

	service := g.client.NewCreateOrderService().
		Symbol(spec.Symbol).
		Side(side).
		Type(orderType).
		Quantity(utils.FormatQuantity(quantity, filters.QuantityPrecision))

	switch spec.Type {
	case types.OrderTypeLimit:
		service = service.
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatAligned(spec.Price, filters))
	case types.OrderTypeStop:
		service = service.
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatAligned(spec.Price, filters)).
			StopPrice(formatAligned(spec.StopPrice, filters))
	case types.OrderTypeStopMarket:
		service = service.StopPrice(formatAligned(spec.StopPrice, filters))
	case types.OrderTypeMarket:
		// Quantity only.
	}

	resp, err := service.Do(ctx)
	if err != nil {
		return types.OrderRecord{}, errors.Wrap(errors.ErrCodePlacementFailed, "failed to place order on Binance", err)
	}

	record := types.OrderRecord{
		OrderID:     resp.OrderID,
		Symbol:      resp.Symbol,
		Side:        spec.Side,
		Type:        spec.Type,
		Status:      mapOrderStatus(resp.Status),
		Price:       parseFloat(resp.Price),
		ExecutedQty: parseFloat(resp.ExecutedQuantity),
		AvgPrice:    parseFloat(resp.AvgPrice),
		UpdateTime:  time.UnixMilli(resp.UpdateTime),
	}

	g.log.Info("order placed",
		zap.Int64("order_id", record.OrderID),
		zap.String("symbol", record.Symbol),
		zap.String("side", string(record.Side)),
		zap.String("type", string(record.Type)),
		zap.Float64("quantity", quantity),
		zap.Float64("price", spec.Price),
	)

	return record, nil
}

// CancelOrder cancels an order by id. An order that is already gone
// (filled or previously cancelled) is treated as successfully cancelled.
func (g *BinanceGateway) CancelOrder(ctx context.Context, symbol string, orderID int64) error {
	_, err := g.client.NewCancelOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		var apiErr *common.APIError
		if errors.As(err, &apiErr) && apiErr.Code == binanceUnknownOrderCode {
			g.log.Debug("order already gone, skipping cancel",
				zap.Int64("order_id", orderID),
				zap.String("symbol", symbol),
			)

			return nil
		}

		return errors.Wrapf(errors.ErrCodeCancelFailed, err, "failed to cancel order %d on %s", orderID, symbol)
	}

	g.log.Info("order cancelled",
		zap.Int64("order_id", orderID),
		zap.String("symbol", symbol),
	)

	return nil
}

// GetOrderStatus returns the exchange's current view of an order.
func (g *BinanceGateway) GetOrderStatus(ctx context.Context, symbol string, orderID int64) (types.OrderRecord, error) {
	order, err := g.client.NewGetOrderService().
		Symbol(symbol).
		OrderID(orderID).
		Do(ctx)
	if err != nil {
		return types.OrderRecord{}, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to query order %d on %s", orderID, symbol)
	}

	return types.OrderRecord{
		OrderID:     order.OrderID,
		Symbol:      order.Symbol,
		Side:        types.Side(order.Side),
		Type:        types.OrderType(order.Type),
		Status:      mapOrderStatus(order.Status),
		Price:       parseFloat(order.Price),
		ExecutedQty: parseFloat(order.ExecutedQuantity),
		AvgPrice:    parseFloat(order.AvgPrice),
		UpdateTime:  time.UnixMilli(order.UpdateTime),
	}, nil
}

// GetCurrentPrice returns the latest traded price for a symbol.
func (g *BinanceGateway) GetCurrentPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := g.client.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return 0, errors.Wrapf(errors.ErrCodeQueryFailed, err, "failed to fetch price for %s", symbol)
	}

	for _, p := range prices {
		if p.Symbol == symbol {
			return parseFloat(p.Price), nil
		}
	}

	return 0, errors.Newf(errors.ErrCodePriceUnavailable, "no price returned for %s", symbol)
}

// GetSymbolFilters returns a symbol's trading rules, served from the TTL
// cache when fresh. A refresh replaces the whole table since exchange info is
// a single bulk endpoint.
func (g *BinanceGateway) GetSymbolFilters(ctx context.Context, symbol string) (types.SymbolFilters, error) {
	if filters, ok := g.filters.Get(symbol); ok {
		return filters, nil
	}

	info, err := g.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return types.SymbolFilters{}, errors.Wrap(errors.ErrCodeQueryFailed, "failed to fetch exchange info", err)
	}

	table := make(map[string]types.SymbolFilters, len(info.Symbols))
	for _, s := range info.Symbols {
		table[s.Symbol] = parseSymbolFilters(s)
	}

	g.filters.ReplaceAll(table)

	filters, ok := table[symbol]
	if !ok {
		return types.SymbolFilters{}, errors.Newf(errors.ErrCodeSymbolNotFound, "symbol not found in exchange info: %s", symbol)
	}

	return filters, nil
}

// InvalidateFilters drops the cached exchange info, forcing a refetch on the
// next filters lookup.
func (g *BinanceGateway) InvalidateFilters() {
	g.filters.Invalidate()
}

// Helper functions

func mapSide(side types.Side) (futures.SideType, error) {
	switch side {
	case types.SideBuy:
		return futures.SideTypeBuy, nil
	case types.SideSell:
		return futures.SideTypeSell, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order side: %s", side)
	}
}

func mapOrderType(orderType types.OrderType) (futures.OrderType, error) {
	switch orderType {
	case types.OrderTypeMarket:
		return futures.OrderTypeMarket, nil
	case types.OrderTypeLimit:
		return futures.OrderTypeLimit, nil
	case types.OrderTypeStop:
		return futures.OrderTypeStop, nil
	case types.OrderTypeStopMarket:
		return futures.OrderTypeStopMarket, nil
	default:
		return "", errors.Newf(errors.ErrCodeInvalidParameter, "unsupported order type: %s", orderType)
	}
}

// mapOrderStatus maps a Binance futures order status to our OrderStatus type.
func mapOrderStatus(status futures.OrderStatusType) types.OrderStatus {
	switch status {
	case futures.OrderStatusTypeNew:
		return types.OrderStatusNew
	case futures.OrderStatusTypePartiallyFilled:
		return types.OrderStatusPartiallyFilled
	case futures.OrderStatusTypeFilled:
		return types.OrderStatusFilled
	case futures.OrderStatusTypeCanceled:
		return types.OrderStatusCanceled
	case futures.OrderStatusTypeRejected:
		return types.OrderStatusRejected
	case futures.OrderStatusTypeExpired:
		return types.OrderStatusExpired
	default:
		return types.OrderStatus(status)
	}
}

// parseSymbolFilters extracts the trading rules we care about from a futures
// symbol definition.
func parseSymbolFilters(s futures.Symbol) types.SymbolFilters {
	filters := types.SymbolFilters{
		TickSize:          DefaultSymbolFilters.TickSize,
		MinNotional:       0,
		PricePrecision:    s.PricePrecision,
		QuantityPrecision: s.QuantityPrecision,
	}

	for _, f := range s.Filters {
		switch f["filterType"] {
		case "PRICE_FILTER":
			if tick, ok := f["tickSize"].(string); ok {
				filters.TickSize = parseFloat(tick)
			}
		case "MIN_NOTIONAL":
			if notional, ok := f["notional"].(string); ok {
				filters.MinNotional = parseFloat(notional)
			}
		}
	}

	if filters.PricePrecision <= 0 {
		// Exchange info omitted the display precision; the tick size still
		// implies how many decimals a price string may carry.
		filters.PricePrecision = utils.PrecisionFromTick(filters.TickSize)
	}

	return filters
}

func formatAligned(price float64, filters types.SymbolFilters) string {
	return utils.FormatPrice(utils.SnapToTick(price, filters.TickSize, filters.PricePrecision), filters.PricePrecision)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)

	return v
}

// Ensure BinanceGateway implements Gateway.
var _ Gateway = (*BinanceGateway)(nil)
