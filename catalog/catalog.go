// Package catalog 缓存交易对的精度/限制元数据（tick、步长、最小名义）。
// 元数据缺失或过期时宁可拒绝下单，也不用猜测值提交可能非法的订单。
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"positions-guard-go/exchange"
)

var (
	ErrUnknownInstrument = errors.New("unknown instrument")
	ErrUnavailable       = errors.New("instrument metadata unavailable")
	ErrInvalidMetadata   = errors.New("invalid instrument metadata")
)

// Spec 单个交易对的下单约束。MinOrderValue 以计价币种计。
type Spec struct {
	Pair          string
	Symbol        string // 交易所符号（BTCUSDT）
	TickSize      float64
	StepSize      float64
	MinOrderQty   float64
	MinOrderValue float64
}

type entry struct {
	spec      Spec
	fetchedAt time.Time
}

// Catalog 按配置的交易对集合缓存 Spec，超龄条目在 Get 时强制刷新。
type Catalog struct {
	client exchange.Client
	maxAge time.Duration

	mu      sync.RWMutex
	symbols map[string]string // pair -> exchange symbol
	entries map[string]entry
}

// New 构建目录。pairs 必须已是 BASE/QUOTE:SETTLE 规范形式。
func New(client exchange.Client, pairs []string, maxAge time.Duration) (*Catalog, error) {
	if maxAge <= 0 {
		maxAge = time.Hour
	}
	c := &Catalog{
		client:  client,
		maxAge:  maxAge,
		symbols: make(map[string]string, len(pairs)),
		entries: make(map[string]entry),
	}
	for _, p := range pairs {
		sym, err := exchange.MarketSymbol(p)
		if err != nil {
			return nil, err
		}
		c.symbols[p] = sym
	}
	return c, nil
}

// SetPairs 替换配置的交易对集合（热更新入口）。保留下来的交易对
// 沿用已有缓存，被移除的交易对连同缓存一起剔除；新增交易对在
// 下一次 Get 或 WarmUp 时拉取元数据。
func (c *Catalog) SetPairs(pairs []string) error {
	symbols := make(map[string]string, len(pairs))
	for _, p := range pairs {
		sym, err := exchange.MarketSymbol(p)
		if err != nil {
			return err
		}
		symbols[p] = sym
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.symbols = symbols
	for p := range c.entries {
		if _, ok := symbols[p]; !ok {
			delete(c.entries, p)
		}
	}
	return nil
}

// Pairs 返回配置的交易对集合。
func (c *Catalog) Pairs() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	pairs := make([]string, 0, len(c.symbols))
	for p := range c.symbols {
		pairs = append(pairs, p)
	}
	return pairs
}

// Get 返回交易对的约束。未配置的交易对报 ErrUnknownInstrument，
// 缓存缺失或超龄时触发一次刷新。
func (c *Catalog) Get(ctx context.Context, pair string) (Spec, error) {
	c.mu.RLock()
	_, known := c.symbols[pair]
	e, cached := c.entries[pair]
	c.mu.RUnlock()
	if !known {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, pair)
	}
	if cached && time.Since(e.fetchedAt) < c.maxAge {
		return e.spec, nil
	}
	return c.Refresh(ctx, pair)
}

// Refresh 重新拉取 instruments-info 并校验。传输失败包装为
// ErrUnavailable，由调用方决定是否重试。
func (c *Catalog) Refresh(ctx context.Context, pair string) (Spec, error) {
	c.mu.RLock()
	sym, known := c.symbols[pair]
	c.mu.RUnlock()
	if !known {
		return Spec{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, pair)
	}

	info, err := c.client.InstrumentInfo(ctx, sym)
	if err != nil {
		if exchange.IsRetryable(err) {
			return Spec{}, fmt.Errorf("%w: %s: %v", ErrUnavailable, pair, err)
		}
		return Spec{}, err
	}
	if info.TickSize <= 0 || info.StepSize <= 0 {
		return Spec{}, fmt.Errorf("%w: %s tick=%v step=%v", ErrInvalidMetadata, pair, info.TickSize, info.StepSize)
	}
	spec := Spec{
		Pair:          pair,
		Symbol:        sym,
		TickSize:      info.TickSize,
		StepSize:      info.StepSize,
		MinOrderQty:   info.MinOrderQty,
		MinOrderValue: info.MinNotional,
	}
	c.mu.Lock()
	c.entries[pair] = entry{spec: spec, fetchedAt: time.Now()}
	c.mu.Unlock()
	return spec, nil
}

// Invalidate 作废缓存条目。交易所因精度拒单后调用，下次 Get 强制刷新。
func (c *Catalog) Invalidate(pair string) {
	c.mu.Lock()
	delete(c.entries, pair)
	c.mu.Unlock()
}

// WarmUp 启动期预加载全部交易对。任何一对失败立即返回错误。
func (c *Catalog) WarmUp(ctx context.Context) error {
	for _, p := range c.Pairs() {
		if _, err := c.Refresh(ctx, p); err != nil {
			return err
		}
	}
	return nil
}
