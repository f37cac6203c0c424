package exchange

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// RESTClient 签名版 Bybit v5 客户端。HTTPClient 可注入 httptest，
// 默认不发起任何真实网络调用由调用方保证。
type RESTClient struct {
	BaseURL      string
	APIKey       string
	Secret       string
	RecvWindowMs int
	Category     string // 默认 linear
	HTTPClient   *http.Client
	Limiter      RateLimiter
}

// NewHTTPClient 构造带超时与可选代理的 http.Client。
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyURL != "" {
		u, err := url.Parse(proxyURL)
		if err != nil {
			return nil, fmt.Errorf("parse proxy url: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &http.Client{Timeout: timeout, Transport: transport}, nil
}

type envelope struct {
	RetCode int                 `json:"retCode"`
	RetMsg  string              `json:"retMsg"`
	Result  jsoniter.RawMessage `json:"result"`
}

func (c *RESTClient) category() string {
	if c.Category == "" {
		return CategoryLinear
	}
	return c.Category
}

func (c *RESTClient) recvWindow() int {
	if c.RecvWindowMs <= 0 {
		return 5000
	}
	return c.RecvWindowMs
}

// do 执行一次签名请求并解包 envelope。网络层失败、429、5xx 归为
// TransportError；retCode != 0 归为 APIError。分类交给 codes.go。
func (c *RESTClient) do(ctx context.Context, method, path string, params map[string]string, body any, out any) error {
	if c.HTTPClient == nil {
		return fmt.Errorf("http client not set")
	}
	if c.Limiter != nil {
		c.Limiter.Wait()
	}

	ts := nowMillis()
	var req *http.Request
	var err error
	switch method {
	case http.MethodGet:
		query := encodeQuery(params)
		endpoint := c.BaseURL + path
		if query != "" {
			endpoint += "?" + query
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return err
		}
		c.applyHeaders(req, ts, query)
	case http.MethodPost:
		raw, merr := json.Marshal(body)
		if merr != nil {
			return merr
		}
		req, err = http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(raw))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		c.applyHeaders(req, ts, string(raw))
	default:
		return fmt.Errorf("unsupported method %s", method)
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return &TransportError{Endpoint: path, Err: err}
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return &TransportError{Endpoint: path, Err: fmt.Errorf("http status %d", resp.StatusCode)}
	}
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &TransportError{Endpoint: path, Err: err}
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return &TransportError{Endpoint: path, Err: fmt.Errorf("decode envelope: %w", err)}
	}
	if env.RetCode != CodeOK {
		return &APIError{Code: env.RetCode, Msg: env.RetMsg, Endpoint: path}
	}
	if out != nil && len(env.Result) > 0 {
		if err := json.Unmarshal(env.Result, out); err != nil {
			return &TransportError{Endpoint: path, Err: fmt.Errorf("decode result: %w", err)}
		}
	}
	return nil
}

func (c *RESTClient) applyHeaders(req *http.Request, ts int64, payload string) {
	// 公共行情接口无密钥时也可调用，跳过签名头。
	if c.APIKey == "" {
		return
	}
	req.Header.Set("X-BAPI-API-KEY", c.APIKey)
	req.Header.Set("X-BAPI-TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("X-BAPI-RECV-WINDOW", strconv.Itoa(c.recvWindow()))
	req.Header.Set("X-BAPI-SIGN", signPayload(c.Secret, c.APIKey, ts, c.recvWindow(), payload))
}

// --- 行情 ---

type instrumentRow struct {
	Symbol      string `json:"symbol"`
	PriceFilter struct {
		TickSize string `json:"tickSize"`
	} `json:"priceFilter"`
	LotSizeFilter struct {
		QtyStep          string `json:"qtyStep"`
		MinOrderQty      string `json:"minOrderQty"`
		MinNotionalValue string `json:"minNotionalValue"`
	} `json:"lotSizeFilter"`
}

// InstrumentInfo 拉取 /v5/market/instruments-info 并换算为数值。
func (c *RESTClient) InstrumentInfo(ctx context.Context, symbol string) (InstrumentInfo, error) {
	var result struct {
		List []instrumentRow `json:"list"`
	}
	params := map[string]string{"category": c.category(), "symbol": symbol}
	if err := c.do(ctx, http.MethodGet, "/v5/market/instruments-info", params, nil, &result); err != nil {
		return InstrumentInfo{}, err
	}
	if len(result.List) == 0 {
		return InstrumentInfo{}, &APIError{Code: CodeInvalidRequest, Msg: "symbol not found: " + symbol, Endpoint: "/v5/market/instruments-info"}
	}
	row := result.List[0]
	info := InstrumentInfo{
		Symbol:      row.Symbol,
		TickSize:    parseFloat(row.PriceFilter.TickSize),
		StepSize:    parseFloat(row.LotSizeFilter.QtyStep),
		MinOrderQty: parseFloat(row.LotSizeFilter.MinOrderQty),
		MinNotional: parseFloat(row.LotSizeFilter.MinNotionalValue),
	}
	return info, nil
}

// Ticker 拉取 /v5/market/tickers 的单交易对行情。
func (c *RESTClient) Ticker(ctx context.Context, symbol string) (Ticker, error) {
	var result struct {
		List []struct {
			Symbol    string `json:"symbol"`
			LastPrice string `json:"lastPrice"`
			MarkPrice string `json:"markPrice"`
		} `json:"list"`
	}
	params := map[string]string{"category": c.category(), "symbol": symbol}
	if err := c.do(ctx, http.MethodGet, "/v5/market/tickers", params, nil, &result); err != nil {
		return Ticker{}, err
	}
	if len(result.List) == 0 {
		return Ticker{}, &APIError{Code: CodeInvalidRequest, Msg: "ticker not found: " + symbol, Endpoint: "/v5/market/tickers"}
	}
	row := result.List[0]
	return Ticker{
		Symbol:    row.Symbol,
		LastPrice: parseFloat(row.LastPrice),
		MarkPrice: parseFloat(row.MarkPrice),
	}, nil
}

// Klines 拉取 /v5/market/kline，返回按时间升序的 K 线。
func (c *RESTClient) Klines(ctx context.Context, symbol, interval string, limit int) ([]Kline, error) {
	var result struct {
		List [][]string `json:"list"`
	}
	params := map[string]string{
		"category": c.category(),
		"symbol":   symbol,
		"interval": interval,
		"limit":    strconv.Itoa(limit),
	}
	if err := c.do(ctx, http.MethodGet, "/v5/market/kline", params, nil, &result); err != nil {
		return nil, err
	}
	// 接口返回倒序（最新在前），反转为升序方便指标计算。
	klines := make([]Kline, 0, len(result.List))
	for i := len(result.List) - 1; i >= 0; i-- {
		row := result.List[i]
		if len(row) < 6 {
			continue
		}
		start, _ := strconv.ParseInt(row[0], 10, 64)
		klines = append(klines, Kline{
			Start:  start,
			Open:   parseFloat(row[1]),
			High:   parseFloat(row[2]),
			Low:    parseFloat(row[3]),
			Close:  parseFloat(row[4]),
			Volume: parseFloat(row[5]),
		})
	}
	return klines, nil
}

// --- 账户/仓位 ---

// Positions 拉取 /v5/position/list。symbols 为交易所符号（BTCUSDT）。
func (c *RESTClient) Positions(ctx context.Context, symbols []string) ([]Position, error) {
	var out []Position
	for _, symbol := range symbols {
		var result struct {
			List []struct {
				Symbol   string `json:"symbol"`
				Side     string `json:"side"`
				Size     string `json:"size"`
				AvgPrice string `json:"avgPrice"`
				Leverage string `json:"leverage"`
			} `json:"list"`
		}
		params := map[string]string{"category": c.category(), "symbol": symbol}
		if err := c.do(ctx, http.MethodGet, "/v5/position/list", params, nil, &result); err != nil {
			return out, err
		}
		for _, row := range result.List {
			out = append(out, Position{
				Symbol:     row.Symbol,
				Side:       row.Side,
				Size:       parseFloat(row.Size),
				EntryPrice: parseFloat(row.AvgPrice),
				Leverage:   parseFloat(row.Leverage),
			})
		}
	}
	return out, nil
}

// OpenOrders 拉取 /v5/order/realtime 的活动挂单。
func (c *RESTClient) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	var result struct {
		List []struct {
			OrderID     string `json:"orderId"`
			OrderLinkID string `json:"orderLinkId"`
			Symbol      string `json:"symbol"`
			Side        string `json:"side"`
			Qty         string `json:"qty"`
			Price       string `json:"price"`
			OrderStatus string `json:"orderStatus"`
		} `json:"list"`
	}
	params := map[string]string{"category": c.category(), "symbol": symbol}
	if err := c.do(ctx, http.MethodGet, "/v5/order/realtime", params, nil, &result); err != nil {
		return nil, err
	}
	orders := make([]Order, 0, len(result.List))
	for _, row := range result.List {
		orders = append(orders, Order{
			OrderID:     row.OrderID,
			OrderLinkID: row.OrderLinkID,
			Symbol:      row.Symbol,
			Side:        row.Side,
			Qty:         parseFloat(row.Qty),
			Price:       parseFloat(row.Price),
			Status:      row.OrderStatus,
		})
	}
	return orders, nil
}

// CancelOrder 撤销单个挂单。
func (c *RESTClient) CancelOrder(ctx context.Context, symbol, orderID string) error {
	body := map[string]string{
		"category": c.category(),
		"symbol":   symbol,
		"orderId":  orderID,
	}
	return c.do(ctx, http.MethodPost, "/v5/order/cancel", nil, body, nil)
}

// WalletBalance 返回 unified 账户指定币种的权益。
func (c *RESTClient) WalletBalance(ctx context.Context, coin string) (float64, error) {
	var result struct {
		List []struct {
			Coin []struct {
				Coin   string `json:"coin"`
				Equity string `json:"equity"`
			} `json:"coin"`
		} `json:"list"`
	}
	params := map[string]string{"accountType": AccountUnified, "coin": coin}
	if err := c.do(ctx, http.MethodGet, "/v5/account/wallet-balance", params, nil, &result); err != nil {
		return 0, err
	}
	for _, acct := range result.List {
		for _, c := range acct.Coin {
			if c.Coin == coin {
				return parseFloat(c.Equity), nil
			}
		}
	}
	return 0, nil
}

// --- 交易 ---

// CreateOrder 提交订单。数量/价格格式化交给调用方（已按步长对齐）。
func (c *RESTClient) CreateOrder(ctx context.Context, req CreateOrderRequest) (CreateOrderResult, error) {
	body := map[string]any{
		"category":  c.category(),
		"symbol":    req.Symbol,
		"side":      req.Side,
		"orderType": req.OrderType,
		"qty":       formatFloat(req.Qty),
	}
	if req.OrderType == OrderTypeLimit && req.Price > 0 {
		body["price"] = formatFloat(req.Price)
	}
	if req.ReduceOnly {
		body["reduceOnly"] = true
	}
	// trading-stop 参数必须以字符串传递，数值会触发 10001。
	if req.TakeProfit > 0 {
		body["takeProfit"] = formatFloat(req.TakeProfit)
	}
	if req.StopLoss > 0 {
		body["stopLoss"] = formatFloat(req.StopLoss)
	}
	if req.OrderLinkID != "" {
		body["orderLinkId"] = req.OrderLinkID
	}
	var result struct {
		OrderID     string `json:"orderId"`
		OrderLinkID string `json:"orderLinkId"`
	}
	if err := c.do(ctx, http.MethodPost, "/v5/order/create", nil, body, &result); err != nil {
		return CreateOrderResult{}, err
	}
	return CreateOrderResult{OrderID: result.OrderID, OrderLinkID: result.OrderLinkID}, nil
}

// SetLeverage 设置双向杠杆。110043（未变化）由调用方按成功处理。
func (c *RESTClient) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	lv := strconv.Itoa(leverage)
	body := map[string]string{
		"category":     c.category(),
		"symbol":       symbol,
		"buyLeverage":  lv,
		"sellLeverage": lv,
	}
	return c.do(ctx, http.MethodPost, "/v5/position/set-leverage", nil, body, nil)
}

func parseFloat(s string) float64 {
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
