package exchange

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// DefaultWSEndpoint 公共行情流（linear 合约）。
const DefaultWSEndpoint = "wss://stream.bybit.com/v5/public/linear"

// TickerFeed 订阅 tickers.{symbol} 公共流，缓存每个符号最近一次的
// 标记价格。守护循环优先用流内价格，价格过旧时回退 REST。
type TickerFeed struct {
	Endpoint string
	Dialer   *websocket.Dialer
	MaxAge   time.Duration // 超过该时长的缓存价格视为过期

	mu     sync.RWMutex
	prices map[string]feedPrice
	subs   []string
}

type feedPrice struct {
	mark float64
	at   time.Time
}

type wsSubscribe struct {
	Op   string   `json:"op"`
	Args []string `json:"args"`
}

type wsTickerMsg struct {
	Topic string `json:"topic"`
	Data  struct {
		Symbol    string `json:"symbol"`
		MarkPrice string `json:"markPrice"`
	} `json:"data"`
}

func NewTickerFeed(endpoint string, symbols []string) *TickerFeed {
	if endpoint == "" {
		endpoint = DefaultWSEndpoint
	}
	f := &TickerFeed{
		Endpoint: endpoint,
		Dialer:   websocket.DefaultDialer,
		MaxAge:   10 * time.Second,
		prices:   make(map[string]feedPrice),
	}
	for _, s := range symbols {
		f.subs = append(f.subs, "tickers."+s)
	}
	return f
}

// Run 维持连接并持续读取，断线后退避重连，直到 ctx 取消。
func (f *TickerFeed) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		if err := f.runOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		if backoff < 30*time.Second {
			backoff *= 2
		}
	}
}

func (f *TickerFeed) runOnce(ctx context.Context) error {
	conn, _, err := f.Dialer.DialContext(ctx, f.Endpoint, nil)
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := conn.WriteJSON(wsSubscribe{Op: "subscribe", Args: f.subs}); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		_ = conn.SetReadDeadline(time.Now().Add(30 * time.Second))
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		f.Ingest(raw)
	}
}

// Ingest 解析一条原始消息并更新缓存。拆出来便于测试。
func (f *TickerFeed) Ingest(raw []byte) {
	var msg wsTickerMsg
	if err := json.Unmarshal(raw, &msg); err != nil {
		return
	}
	if msg.Data.Symbol == "" {
		return
	}
	mark := parseFloat(msg.Data.MarkPrice)
	if mark <= 0 {
		return
	}
	f.mu.Lock()
	f.prices[msg.Data.Symbol] = feedPrice{mark: mark, at: time.Now()}
	f.mu.Unlock()
}

// MarkPrice 返回缓存的标记价格。过期或缺失时 ok=false。
func (f *TickerFeed) MarkPrice(symbol string) (float64, bool) {
	f.mu.RLock()
	p, ok := f.prices[symbol]
	f.mu.RUnlock()
	if !ok || p.mark <= 0 {
		return 0, false
	}
	if f.MaxAge > 0 && time.Since(p.at) > f.MaxAge {
		return 0, false
	}
	return p.mark, true
}
