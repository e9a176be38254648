package exchange

import (
	"context"
	"testing"
	"time"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
	"github.com/rxtech-lab/argo-execution/internal/logger"
	"github.com/rxtech-lab/argo-execution/internal/types"
	"github.com/rxtech-lab/argo-execution/pkg/errors"
	"github.com/stretchr/testify/suite"
)

// Fake service implementations

type fakeCreateOrderService struct {
	symbol      string
	side        futures.SideType
	orderType   futures.OrderType
	timeInForce futures.TimeInForceType
	quantity    string
	price       string
	stopPrice   string

	response *futures.CreateOrderResponse
	err      error
}

func (s *fakeCreateOrderService) Symbol(symbol string) CreateOrderService {
	s.symbol = symbol

	return s
}

func (s *fakeCreateOrderService) Side(side futures.SideType) CreateOrderService {
	s.side = side

	return s
}

func (s *fakeCreateOrderService) Type(orderType futures.OrderType) CreateOrderService {
	s.orderType = orderType

	return s
}

func (s *fakeCreateOrderService) TimeInForce(tif futures.TimeInForceType) CreateOrderService {
	s.timeInForce = tif

	return s
}

func (s *fakeCreateOrderService) Quantity(quantity string) CreateOrderService {
	s.quantity = quantity

	return s
}

func (s *fakeCreateOrderService) Price(price string) CreateOrderService {
	s.price = price

	return s
}

func (s *fakeCreateOrderService) StopPrice(stopPrice string) CreateOrderService {
	s.stopPrice = stopPrice

	return s
}

func (s *fakeCreateOrderService) Do(_ context.Context) (*futures.CreateOrderResponse, error) {
	return s.response, s.err
}

type fakeCancelOrderService struct {
	symbol  string
	orderID int64
	err     error
}

func (s *fakeCancelOrderService) Symbol(symbol string) CancelOrderService {
	s.symbol = symbol

	return s
}

func (s *fakeCancelOrderService) OrderID(orderID int64) CancelOrderService {
	s.orderID = orderID

	return s
}

func (s *fakeCancelOrderService) Do(_ context.Context) (*futures.CancelOrderResponse, error) {
	if s.err != nil {
		return nil, s.err
	}

	return &futures.CancelOrderResponse{OrderID: s.orderID, Symbol: s.symbol}, nil
}

type fakeGetOrderService struct {
	order *futures.Order
	err   error
}

func (s *fakeGetOrderService) Symbol(_ string) GetOrderService { return s }

func (s *fakeGetOrderService) OrderID(_ int64) GetOrderService { return s }

func (s *fakeGetOrderService) Do(_ context.Context) (*futures.Order, error) {
	return s.order, s.err
}

type fakeListPricesService struct {
	prices []*futures.SymbolPrice
	err    error
}

func (s *fakeListPricesService) Symbol(_ string) ListPricesService { return s }

func (s *fakeListPricesService) Do(_ context.Context) ([]*futures.SymbolPrice, error) {
	return s.prices, s.err
}

type fakeExchangeInfoService struct {
	info  *futures.ExchangeInfo
	err   error
	calls int
}

func (s *fakeExchangeInfoService) Do(_ context.Context) (*futures.ExchangeInfo, error) {
	s.calls++

	return s.info, s.err
}

type fakeFuturesClient struct {
	createOrder  *fakeCreateOrderService
	cancelOrder  *fakeCancelOrderService
	getOrder     *fakeGetOrderService
	listPrices   *fakeListPricesService
	exchangeInfo *fakeExchangeInfoService
}

func (c *fakeFuturesClient) NewCreateOrderService() CreateOrderService { return c.createOrder }

func (c *fakeFuturesClient) NewCancelOrderService() CancelOrderService { return c.cancelOrder }

func (c *fakeFuturesClient) NewGetOrderService() GetOrderService { return c.getOrder }

func (c *fakeFuturesClient) NewListPricesService() ListPricesService { return c.listPrices }

func (c *fakeFuturesClient) NewExchangeInfoService() ExchangeInfoService { return c.exchangeInfo }

func btcExchangeInfo() *futures.ExchangeInfo {
	return &futures.ExchangeInfo{
		Symbols: []futures.Symbol{
			{
				Symbol:            "BTCUSDT",
				PricePrecision:    2,
				QuantityPrecision: 3,
				Filters: []map[string]interface{}{
					{"filterType": "PRICE_FILTER", "tickSize": "0.10"},
					{"filterType": "MIN_NOTIONAL", "notional": "100"},
				},
			},
		},
	}
}

type BinanceGatewayTestSuite struct {
	suite.Suite
	client  *fakeFuturesClient
	gateway *BinanceGateway
}

func (s *BinanceGatewayTestSuite) SetupTest() {
	s.client = &fakeFuturesClient{
		createOrder:  &fakeCreateOrderService{},
		cancelOrder:  &fakeCancelOrderService{},
		getOrder:     &fakeGetOrderService{},
		listPrices:   &fakeListPricesService{},
		exchangeInfo: &fakeExchangeInfoService{info: btcExchangeInfo()},
	}
	s.gateway = newBinanceGatewayWithClient(s.client, logger.NewNopLogger())
}

func (s *BinanceGatewayTestSuite) TestPlaceLimitOrderFormatsPriceAndQuantity() {
	s.client.createOrder.response = &futures.CreateOrderResponse{
		OrderID:          42,
		Symbol:           "BTCUSDT",
		Status:           futures.OrderStatusTypeNew,
		Price:            "50000.10",
		ExecutedQuantity: "0",
		AvgPrice:         "0",
		UpdateTime:       1700000000000,
	}

	record, err := s.gateway.PlaceOrder(context.Background(), types.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Type:     types.OrderTypeLimit,
		Quantity: 0.12349,
		Price:    50000.13,
	})

	s.Require().NoError(err)
	s.Equal(int64(42), record.OrderID)
	s.Equal(types.OrderStatusNew, record.Status)
	// Price snaps to the 0.10 tick, quantity floors to 3 decimals.
	s.Equal("50000.10", s.client.createOrder.price)
	s.Equal("0.123", s.client.createOrder.quantity)
	s.Equal(futures.TimeInForceTypeGTC, s.client.createOrder.timeInForce)
	s.Equal(futures.OrderTypeLimit, s.client.createOrder.orderType)
}

func (s *BinanceGatewayTestSuite) TestPlaceStopMarketOrderSetsStopPriceOnly() {
	s.client.createOrder.response = &futures.CreateOrderResponse{
		OrderID: 7,
		Symbol:  "BTCUSDT",
		Status:  futures.OrderStatusTypeNew,
	}

	_, err := s.gateway.PlaceOrder(context.Background(), types.OrderSpec{
		Symbol:    "BTCUSDT",
		Side:      types.SideSell,
		Type:      types.OrderTypeStopMarket,
		Quantity:  0.5,
		StopPrice: 48000.07,
	})

	s.Require().NoError(err)
	s.Equal("48000.10", s.client.createOrder.stopPrice)
	s.Empty(s.client.createOrder.price)
	s.Equal(futures.OrderTypeStopMarket, s.client.createOrder.orderType)
}

func (s *BinanceGatewayTestSuite) TestPlaceOrderRejectsZeroQuantity() {
	_, err := s.gateway.PlaceOrder(context.Background(), types.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 0,
	})

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (s *BinanceGatewayTestSuite) TestPlaceOrderWrapsExchangeError() {
	s.client.createOrder.err = &common.APIError{Code: -1013, Message: "Filter failure: PRICE_FILTER"}

	_, err := s.gateway.PlaceOrder(context.Background(), types.OrderSpec{
		Symbol:   "BTCUSDT",
		Side:     types.SideBuy,
		Type:     types.OrderTypeMarket,
		Quantity: 1,
	})

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodePlacementFailed))
}

func (s *BinanceGatewayTestSuite) TestCancelOrderTreatsUnknownOrderAsSuccess() {
	s.client.cancelOrder.err = &common.APIError{Code: -2011, Message: "Unknown order sent."}

	err := s.gateway.CancelOrder(context.Background(), "BTCUSDT", 42)

	s.NoError(err)
}

func (s *BinanceGatewayTestSuite) TestCancelOrderWrapsOtherErrors() {
	s.client.cancelOrder.err = &common.APIError{Code: -1021, Message: "Timestamp out of recv window."}

	err := s.gateway.CancelOrder(context.Background(), "BTCUSDT", 42)

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeCancelFailed))
}

func (s *BinanceGatewayTestSuite) TestGetOrderStatusMapsFields() {
	s.client.getOrder.order = &futures.Order{
		OrderID:          42,
		Symbol:           "BTCUSDT",
		Side:             futures.SideTypeBuy,
		Type:             futures.OrderTypeLimit,
		Status:           futures.OrderStatusTypeFilled,
		Price:            "50000.10",
		ExecutedQuantity: "0.123",
		AvgPrice:         "50000.05",
		UpdateTime:       1700000000000,
	}

	record, err := s.gateway.GetOrderStatus(context.Background(), "BTCUSDT", 42)

	s.Require().NoError(err)
	s.Equal(types.OrderStatusFilled, record.Status)
	s.True(record.Status.IsTerminal())
	s.InDelta(0.123, record.ExecutedQty, 1e-9)
	s.InDelta(50000.05, record.AvgPrice, 1e-9)
	s.Equal(time.UnixMilli(1700000000000), record.UpdateTime)
}

func (s *BinanceGatewayTestSuite) TestGetCurrentPrice() {
	s.client.listPrices.prices = []*futures.SymbolPrice{
		{Symbol: "ETHUSDT", Price: "3000.50"},
		{Symbol: "BTCUSDT", Price: "50123.40"},
	}

	price, err := s.gateway.GetCurrentPrice(context.Background(), "BTCUSDT")

	s.Require().NoError(err)
	s.InDelta(50123.40, price, 1e-9)
}

func (s *BinanceGatewayTestSuite) TestGetCurrentPriceMissingSymbol() {
	s.client.listPrices.prices = []*futures.SymbolPrice{}

	_, err := s.gateway.GetCurrentPrice(context.Background(), "BTCUSDT")

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodePriceUnavailable))
}

func (s *BinanceGatewayTestSuite) TestGetSymbolFiltersParsesAndCaches() {
	filters, err := s.gateway.GetSymbolFilters(context.Background(), "BTCUSDT")

	s.Require().NoError(err)
	s.InDelta(0.10, filters.TickSize, 1e-9)
	s.InDelta(100, filters.MinNotional, 1e-9)
	s.Equal(2, filters.PricePrecision)
	s.Equal(3, filters.QuantityPrecision)

	// Second lookup is served from cache.
	_, err = s.gateway.GetSymbolFilters(context.Background(), "BTCUSDT")
	s.Require().NoError(err)
	s.Equal(1, s.client.exchangeInfo.calls)
}

func (s *BinanceGatewayTestSuite) TestGetSymbolFiltersDerivesPrecisionFromTick() {
	s.client.exchangeInfo.info = &futures.ExchangeInfo{
		Symbols: []futures.Symbol{
			{
				Symbol:            "ETHUSDT",
				QuantityPrecision: 3,
				Filters: []map[string]interface{}{
					{"filterType": "PRICE_FILTER", "tickSize": "0.001"},
				},
			},
		},
	}

	filters, err := s.gateway.GetSymbolFilters(context.Background(), "ETHUSDT")

	s.Require().NoError(err)
	s.InDelta(0.001, filters.TickSize, 1e-12)
	s.Equal(3, filters.PricePrecision)
}

func (s *BinanceGatewayTestSuite) TestGetSymbolFiltersUnknownSymbol() {
	_, err := s.gateway.GetSymbolFilters(context.Background(), "DOGEUSDT")

	s.Require().Error(err)
	s.True(errors.HasCode(err, errors.ErrCodeSymbolNotFound))
}

func (s *BinanceGatewayTestSuite) TestInvalidateFiltersForcesRefetch() {
	_, err := s.gateway.GetSymbolFilters(context.Background(), "BTCUSDT")
	s.Require().NoError(err)

	s.gateway.InvalidateFilters()

	_, err = s.gateway.GetSymbolFilters(context.Background(), "BTCUSDT")
	s.Require().NoError(err)
	s.Equal(2, s.client.exchangeInfo.calls)
}

func TestBinanceGatewayTestSuite(t *testing.T) {
	suite.Run(t, new(BinanceGatewayTestSuite))
}
