// Package mockserver provides a mock Binance USD-M futures REST server for
// end-to-end tests. It implements the endpoints the gateway consumes and
// exposes direct state manipulation so tests can simulate fills and
// cancellations without a real exchange.
package mockserver

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// Order is the server's view of one order.
type Order struct {
	OrderID     int64
	Symbol      string
	Side        string
	Type        string
	Status      string
	Quantity    float64
	Price       float64
	StopPrice   float64
	ExecutedQty float64
	AvgPrice    float64
	UpdateTime  time.Time
}

// SymbolInfo carries the exchange info served for one symbol.
type SymbolInfo struct {
	Symbol            string
	PricePrecision    int
	QuantityPrecision int
	TickSize          string
	MinNotional       string
}

// MockFuturesServer serves the futures REST surface backed by in-memory
// state. Market orders fill immediately at the current price; limit and stop
// orders rest until a test fills them.
type MockFuturesServer struct {
	mu sync.RWMutex

	httpServer *http.Server
	listener   net.Listener

	orders     map[int64]*Order
	orderIDSeq int64
	prices     map[string]float64
	symbols    map[string]SymbolInfo

	// failNextOrder makes the next order placement fail with this Binance
	// error code. Zero means no failure is queued.
	failNextOrder int
}

func NewMockFuturesServer() *MockFuturesServer {
	return &MockFuturesServer{
		orders:     make(map[int64]*Order),
		orderIDSeq: 1000,
		prices:     make(map[string]float64),
		symbols:    make(map[string]SymbolInfo),
	}
}

// Start binds to an ephemeral port and begins serving.
func (s *MockFuturesServer) Start() error {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}

	router := mux.NewRouter()
	router.HandleFunc("/fapi/v1/order", s.handleCreateOrder).Methods(http.MethodPost)
	router.HandleFunc("/fapi/v1/order", s.handleCancelOrder).Methods(http.MethodDelete)
	router.HandleFunc("/fapi/v1/order", s.handleGetOrder).Methods(http.MethodGet)
	// Both ticker versions exist in the wild; serve the same data on each.
	router.HandleFunc("/fapi/v1/ticker/price", s.handleTickerPrice).Methods(http.MethodGet)
	router.HandleFunc("/fapi/v2/ticker/price", s.handleTickerPrice).Methods(http.MethodGet)
	router.HandleFunc("/fapi/v1/exchangeInfo", s.handleExchangeInfo).Methods(http.MethodGet)

	s.listener = listener
	s.httpServer = &http.Server{Handler: router}

	go func() {
		_ = s.httpServer.Serve(listener)
	}()

	return nil
}

// Stop shuts the server down.
func (s *MockFuturesServer) Stop() error {
	if s.httpServer != nil {
		return s.httpServer.Close()
	}

	return nil
}

// BaseURL returns the server's address for client configuration.
func (s *MockFuturesServer) BaseURL() string {
	return "http://" + s.listener.Addr().String()
}

// SetPrice sets the ticker price for a symbol.
func (s *MockFuturesServer) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// SetSymbolInfo registers exchange info for a symbol.
func (s *MockFuturesServer) SetSymbolInfo(info SymbolInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.symbols[info.Symbol] = info
}

// FailNextOrder makes the next placement fail with the given Binance error
// code.
func (s *MockFuturesServer) FailNextOrder(code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failNextOrder = code
}

// FillOrder transitions a resting order to FILLED at the given price.
func (s *MockFuturesServer) FillOrder(orderID int64, avgPrice float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || terminal(order.Status) {
		return
	}

	order.Status = "FILLED"
	order.ExecutedQty = order.Quantity
	order.AvgPrice = avgPrice
	order.UpdateTime = time.Now()
}

// Order returns a copy of the order's state.
func (s *MockFuturesServer) Order(orderID int64) (Order, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		return Order{}, false
	}

	return *order, true
}

// OpenOrderIDs returns the ids of all non-terminal orders.
func (s *MockFuturesServer) OpenOrderIDs() []int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []int64
	for id, order := range s.orders {
		if !terminal(order.Status) {
			out = append(out, id)
		}
	}

	return out
}

func terminal(status string) bool {
	switch status {
	case "FILLED", "CANCELED", "REJECTED", "EXPIRED":
		return true
	}

	return false
}

// orderJSON renders an order in the futures wire format.
func orderJSON(o *Order) map[string]any {
	return map[string]any{
		"orderId":     o.OrderID,
		"symbol":      o.Symbol,
		"status":      o.Status,
		"side":        o.Side,
		"type":        o.Type,
		"origQty":     strconv.FormatFloat(o.Quantity, 'f', -1, 64),
		"executedQty": strconv.FormatFloat(o.ExecutedQty, 'f', -1, 64),
		"price":       strconv.FormatFloat(o.Price, 'f', -1, 64),
		"stopPrice":   strconv.FormatFloat(o.StopPrice, 'f', -1, 64),
		"avgPrice":    strconv.FormatFloat(o.AvgPrice, 'f', -1, 64),
		"updateTime":  o.UpdateTime.UnixMilli(),
		"time":        o.UpdateTime.UnixMilli(),
	}
}

// requestParams merges URL query parameters with a form-encoded body. The
// futures client sends signed parameters in the body for POST and DELETE,
// which net/http's ParseForm ignores for DELETE.
func requestParams(r *http.Request) url.Values {
	params := r.URL.Query()

	body, err := io.ReadAll(r.Body)
	if err != nil {
		return params
	}

	fromBody, err := url.ParseQuery(string(body))
	if err != nil {
		return params
	}

	for key, values := range fromBody {
		for _, value := range values {
			params.Add(key, value)
		}
	}

	return params
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeAPIError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"code": code,
		"msg":  msg,
	})
}

func (s *MockFuturesServer) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	query := requestParams(r)

	symbol := query.Get("symbol")
	quantity, _ := strconv.ParseFloat(query.Get("quantity"), 64)
	price, _ := strconv.ParseFloat(query.Get("price"), 64)
	stopPrice, _ := strconv.ParseFloat(query.Get("stopPrice"), 64)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failNextOrder != 0 {
		code := s.failNextOrder
		s.failNextOrder = 0
		writeAPIError(w, code, fmt.Sprintf("simulated failure %d", code))

		return
	}

	s.orderIDSeq++
	order := &Order{
		OrderID:    s.orderIDSeq,
		Symbol:     symbol,
		Side:       query.Get("side"),
		Type:       query.Get("type"),
		Status:     "NEW",
		Quantity:   quantity,
		Price:      price,
		StopPrice:  stopPrice,
		UpdateTime: time.Now(),
	}

	if order.Type == "MARKET" {
		order.Status = "FILLED"
		order.ExecutedQty = quantity
		order.AvgPrice = s.prices[symbol]
	}

	s.orders[order.OrderID] = order

	writeJSON(w, http.StatusOK, orderJSON(order))
}

func (s *MockFuturesServer) handleCancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(requestParams(r).Get("orderId"), 10, 64)

	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.orders[orderID]
	if !ok || terminal(order.Status) {
		writeAPIError(w, -2011, "Unknown order sent.")

		return
	}

	order.Status = "CANCELED"
	order.UpdateTime = time.Now()

	writeJSON(w, http.StatusOK, orderJSON(order))
}

func (s *MockFuturesServer) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, _ := strconv.ParseInt(r.URL.Query().Get("orderId"), 10, 64)

	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[orderID]
	if !ok {
		writeAPIError(w, -2013, "Order does not exist.")

		return
	}

	writeJSON(w, http.StatusOK, orderJSON(order))
}

func (s *MockFuturesServer) handleTickerPrice(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")

	s.mu.RLock()
	defer s.mu.RUnlock()

	prices := make([]map[string]string, 0, len(s.prices))
	for sym, price := range s.prices {
		if symbol != "" && sym != symbol {
			continue
		}

		prices = append(prices, map[string]string{
			"symbol": sym,
			"price":  strconv.FormatFloat(price, 'f', -1, 64),
		})
	}

	writeJSON(w, http.StatusOK, prices)
}

func (s *MockFuturesServer) handleExchangeInfo(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	symbols := make([]map[string]any, 0, len(s.symbols))
	for _, info := range s.symbols {
		symbols = append(symbols, map[string]any{
			"symbol":            info.Symbol,
			"pricePrecision":    info.PricePrecision,
			"quantityPrecision": info.QuantityPrecision,
			"filters": []map[string]any{
				{"filterType": "PRICE_FILTER", "tickSize": info.TickSize},
				{"filterType": "MIN_NOTIONAL", "notional": info.MinNotional},
			},
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"timezone":   "UTC",
		"serverTime": time.Now().UnixMilli(),
		"symbols":    symbols,
	})
}
