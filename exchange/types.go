package exchange

import "context"

// 订单方向与类型，取值与 Bybit v5 接口字面量一致。
const (
	SideBuy  = "Buy"
	SideSell = "Sell"

	OrderTypeMarket = "Market"
	OrderTypeLimit  = "Limit"

	CategoryLinear = "linear"
	AccountUnified = "UNIFIED"
)

// InstrumentInfo 交易对精度与限制（来自 instruments-info）。
type InstrumentInfo struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinOrderQty float64
	MinNotional float64 // 计价币种单位
}

// Ticker 最新行情，MarkPrice 用于合约估值与下单数量换算。
type Ticker struct {
	Symbol    string
	LastPrice float64
	MarkPrice float64
}

// Position 交易所观察到的净仓位。无仓位时 Size=0、Side 为空。
type Position struct {
	Symbol     string
	Side       string // Buy / Sell / ""
	Size       float64
	EntryPrice float64
	Leverage   float64
}

// Order 挂单视图（order/realtime）。
type Order struct {
	OrderID     string
	OrderLinkID string
	Symbol      string
	Side        string
	Qty         float64
	Price       float64
	Status      string
}

// Kline 一根 K 线，时间戳毫秒。
type Kline struct {
	Start  int64
	Open   float64
	High   float64
	Low    float64
	Close  float64
	Volume float64
}

// CreateOrderRequest 下单请求。TakeProfit/StopLoss 为 0 表示不附带。
type CreateOrderRequest struct {
	Symbol      string
	Side        string
	OrderType   string
	Qty         float64
	Price       float64 // 市价单为 0
	ReduceOnly  bool
	TakeProfit  float64
	StopLoss    float64
	OrderLinkID string
}

// CreateOrderResult 下单回执。
type CreateOrderResult struct {
	OrderID     string
	OrderLinkID string
}

// Client 是守护进程对交易所的全部依赖，测试中以确定性假实现替换。
type Client interface {
	InstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error)
	Ticker(ctx context.Context, symbol string) (Ticker, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error)
	Positions(ctx context.Context, symbols []string) ([]Position, error)
	OpenOrders(ctx context.Context, symbol string) ([]Order, error)
	CancelOrder(ctx context.Context, symbol, orderID string) error
	WalletBalance(ctx context.Context, coin string) (float64, error)
	CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
