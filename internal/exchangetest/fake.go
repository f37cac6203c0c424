// Package exchangetest 提供确定性的交易所假实现，供目录/仓位/执行器/
// 守护循环测试共用。每个接口方法都可以脚本化返回错误序列，并记录调用。
package exchangetest

import (
	"context"
	"sync"

	"positions-guard-go/exchange"
)

// Fake 实现 exchange.Client。零值即可用：所有查询返回空结果。
type Fake struct {
	mu sync.Mutex

	Instruments map[string]exchange.InstrumentInfo
	Tickers     map[string]exchange.Ticker
	KlineBy     map[string][]exchange.Kline
	PositionBy  map[string]exchange.Position
	OrdersBy    map[string][]exchange.Order
	Equity      float64

	// 按方法名脚本化的错误队列：每次调用弹出一个。
	errQueue map[string][]error

	// Calls 按序记录方法名，断言 dry-run 等路径用。
	Calls []string

	NextOrderID string
	Canceled    []string
	Leverage    map[string]int
	Created     []exchange.CreateOrderRequest
}

func New() *Fake {
	return &Fake{
		Instruments: make(map[string]exchange.InstrumentInfo),
		Tickers:     make(map[string]exchange.Ticker),
		KlineBy:     make(map[string][]exchange.Kline),
		PositionBy:  make(map[string]exchange.Position),
		OrdersBy:    make(map[string][]exchange.Order),
		errQueue:    make(map[string][]error),
		Leverage:    make(map[string]int),
		NextOrderID: "order-1",
	}
}

// FailWith 给指定方法入队一个错误；同一方法可入队多个，先进先出。
func (f *Fake) FailWith(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errQueue[method] = append(f.errQueue[method], err)
}

func (f *Fake) record(method string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, method)
	q := f.errQueue[method]
	if len(q) == 0 {
		return nil
	}
	err := q[0]
	f.errQueue[method] = q[1:]
	return err
}

// CallCount 统计某方法被调用的次数。
func (f *Fake) CallCount(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.Calls {
		if c == method {
			n++
		}
	}
	return n
}

func (f *Fake) InstrumentInfo(ctx context.Context, symbol string) (exchange.InstrumentInfo, error) {
	if err := f.record("InstrumentInfo"); err != nil {
		return exchange.InstrumentInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.Instruments[symbol]
	if !ok {
		return exchange.InstrumentInfo{}, &exchange.APIError{Code: exchange.CodeInvalidRequest, Msg: "symbol not found: " + symbol}
	}
	return info, nil
}

func (f *Fake) Ticker(ctx context.Context, symbol string) (exchange.Ticker, error) {
	if err := f.record("Ticker"); err != nil {
		return exchange.Ticker{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Tickers[symbol], nil
}

func (f *Fake) Klines(ctx context.Context, symbol, interval string, limit int) ([]exchange.Kline, error) {
	if err := f.record("Klines"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.KlineBy[symbol], nil
}

func (f *Fake) Positions(ctx context.Context, symbols []string) ([]exchange.Position, error) {
	if err := f.record("Positions"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []exchange.Position
	for _, s := range symbols {
		if p, ok := f.PositionBy[s]; ok {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *Fake) OpenOrders(ctx context.Context, symbol string) ([]exchange.Order, error) {
	if err := f.record("OpenOrders"); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.OrdersBy[symbol], nil
}

func (f *Fake) CancelOrder(ctx context.Context, symbol, orderID string) error {
	if err := f.record("CancelOrder"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Canceled = append(f.Canceled, orderID)
	return nil
}

func (f *Fake) WalletBalance(ctx context.Context, coin string) (float64, error) {
	if err := f.record("WalletBalance"); err != nil {
		return 0, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Equity, nil
}

func (f *Fake) CreateOrder(ctx context.Context, req exchange.CreateOrderRequest) (exchange.CreateOrderResult, error) {
	if err := f.record("CreateOrder"); err != nil {
		return exchange.CreateOrderResult{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Created = append(f.Created, req)
	return exchange.CreateOrderResult{OrderID: f.NextOrderID, OrderLinkID: req.OrderLinkID}, nil
}

func (f *Fake) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if err := f.record("SetLeverage"); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Leverage[symbol] = leverage
	return nil
}
