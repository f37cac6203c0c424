// Package position 读取配置交易对的当前仓位与挂单，产出规范化快照。
package position

import (
	"context"
	"errors"
	"fmt"

	"positions-guard-go/exchange"
)

var ErrUnavailable = errors.New("position state unavailable")

// Snapshot 某一时刻观察到的单交易对仓位。无仓位时 Size=0、Side 为空，
// 调用方不需要区分 "无记录" 与 "零仓位"。
type Snapshot struct {
	Pair       string
	Side       string // Buy / Sell / ""
	Size       float64
	EntryPrice float64
	Leverage   float64
	OpenOrders []exchange.Order
}

// HasPosition 报告是否存在净仓位。
func (s Snapshot) HasPosition() bool { return s.Size != 0 }

// Result 单交易对读取结果。Err 非空时 Snapshot 无效。
type Result struct {
	Snapshot Snapshot
	Err      error
}

// Reader 查询仓位与挂单。
type Reader struct {
	Client exchange.Client
}

// Read 逐对读取仓位与挂单。部分失败不拖垮整批：失败的交易对在
// 自己的 Result.Err 里报告，调用方对拿到数据的交易对继续推进。
func (r *Reader) Read(ctx context.Context, pairs []string) map[string]Result {
	out := make(map[string]Result, len(pairs))
	for _, pair := range pairs {
		out[pair] = r.readOne(ctx, pair)
	}
	return out
}

func (r *Reader) readOne(ctx context.Context, pair string) Result {
	sym, err := exchange.MarketSymbol(pair)
	if err != nil {
		return Result{Err: err}
	}

	snap := Snapshot{Pair: pair}
	positions, err := r.Client.Positions(ctx, []string{sym})
	if err != nil {
		return Result{Err: wrapUnavailable(pair, err)}
	}
	for _, p := range positions {
		if p.Symbol != sym || p.Size == 0 {
			continue
		}
		snap.Side = p.Side
		snap.Size = p.Size
		snap.EntryPrice = p.EntryPrice
		snap.Leverage = p.Leverage
	}

	orders, err := r.Client.OpenOrders(ctx, sym)
	if err != nil {
		return Result{Err: wrapUnavailable(pair, err)}
	}
	snap.OpenOrders = orders
	return Result{Snapshot: snap}
}

// CancelAll 撤掉某交易对全部挂单，返回成功撤销数。单笔撤销失败记入
// 返回错误但不中断其余撤销。
func (r *Reader) CancelAll(ctx context.Context, pair string) (int, error) {
	sym, err := exchange.MarketSymbol(pair)
	if err != nil {
		return 0, err
	}
	orders, err := r.Client.OpenOrders(ctx, sym)
	if err != nil {
		return 0, wrapUnavailable(pair, err)
	}
	var firstErr error
	n := 0
	for _, o := range orders {
		if err := r.Client.CancelOrder(ctx, sym, o.OrderID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		n++
	}
	return n, firstErr
}

func wrapUnavailable(pair string, err error) error {
	if exchange.IsRetryable(err) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, pair, err)
	}
	return err
}
