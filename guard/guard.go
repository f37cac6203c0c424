// Package guard 实现守护循环：每个周期读一次权益，对全部配置交易对
// 并发评估并提交意图，产出逐对结果。单对失败只影响自己，周期照常完成。
package guard

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"positions-guard-go/catalog"
	"positions-guard-go/exchange"
	"positions-guard-go/executor"
	"positions-guard-go/infrastructure/logger"
	"positions-guard-go/journal"
	"positions-guard-go/market"
	"positions-guard-go/monitor"
	"positions-guard-go/position"
	"positions-guard-go/risk"
)

// Loop 守护循环。Client/Catalog/Reader/Executor/Signals 必填，
// Feed/Journal/Metrics/Log 可空。参数字段只在周期之间修改（热更新）。
type Loop struct {
	Client   exchange.Client
	Catalog  *catalog.Catalog
	Reader   *position.Reader
	Executor *executor.Executor
	Signals  SignalSource

	Feed    *exchange.TickerFeed
	Journal *journal.Journal
	Metrics *monitor.Metrics
	Log     *logger.Logger

	RiskFraction  float64
	MinConfidence float64
	CycleTimeout  time.Duration
	AutoCancel    bool // 评估前撤掉遗留挂单，而不是跳过
	NoPyramid     bool // 已有持仓的交易对不再加仓

	ATRPeriod int
	Timeframe string
	SLATRMult float64
	TPATRMult float64

	// EquityRetryDelay 权益读取瞬时失败后重试一次前的等待，默认 1s。
	EquityRetryDelay time.Duration
}

// RunCycle 执行一个评估周期。权益读取失败或为非正数时中止整个周期；
// 之后的每个交易对各自推进，结果按 pairs 的输入顺序返回。
func (l *Loop) RunCycle(ctx context.Context, pairs []string, dryRun bool) ([]executor.Result, error) {
	start := time.Now()
	if l.CycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.CycleTimeout)
		defer cancel()
	}

	equity, err := l.readEquity(ctx)
	if err != nil {
		return nil, fmt.Errorf("read wallet balance: %w", err)
	}
	if equity <= 0 {
		return nil, fmt.Errorf("%w: equity=%v", risk.ErrInvalidAccountState, equity)
	}

	reserve := risk.NewEquityReserve(equity)
	sizer := &risk.Sizer{Reserve: reserve}
	snapshots := l.Reader.Read(ctx, pairs)

	results := make([]executor.Result, len(pairs))
	var wg sync.WaitGroup
	for i, pair := range pairs {
		wg.Add(1)
		go func(i int, pair string) {
			defer wg.Done()
			results[i] = l.evaluate(ctx, sizer, equity, pair, snapshots[pair], dryRun)
		}(i, pair)
	}
	wg.Wait()

	for _, r := range results {
		l.observe(r)
	}
	if l.Metrics != nil {
		l.Metrics.ObserveCycle(time.Since(start))
		l.Metrics.SetEquity(equity)
		l.Metrics.SetReserved(reserve.Reserved())
	}
	if l.Log != nil {
		l.Log.LogCycle(map[string]interface{}{
			"pairs":    len(pairs),
			"equity":   equity,
			"reserved": reserve.Reserved(),
			"elapsed":  time.Since(start).Seconds(),
			"dry_run":  dryRun,
		})
	}
	return results, nil
}

// readEquity 读取账户权益。传输类瞬时失败重试一次再放弃，
// 不让一次网络抖动白白流产整个周期。
func (l *Loop) readEquity(ctx context.Context) (float64, error) {
	equity, err := l.Client.WalletBalance(ctx, "USDT")
	if err == nil || !exchange.IsRetryable(err) {
		return equity, err
	}
	delay := l.EquityRetryDelay
	if delay <= 0 {
		delay = time.Second
	}
	select {
	case <-ctx.Done():
		return 0, err
	case <-time.After(delay):
	}
	return l.Client.WalletBalance(ctx, "USDT")
}

// evaluate 评估单个交易对并返回恰好一条结果。
func (l *Loop) evaluate(ctx context.Context, sizer *risk.Sizer, equity float64, pair string, snap position.Result, dryRun bool) executor.Result {
	res := executor.Result{Pair: pair, DryRun: dryRun}

	if err := ctx.Err(); err != nil {
		if l.Metrics != nil {
			l.Metrics.AddSkippedPairs(1)
		}
		res.Status, res.Kind = executor.StatusRetried, executor.KindExchangeUnavailable
		res.Message = "cycle deadline before evaluation"
		return res
	}

	if snap.Err != nil {
		if errors.Is(snap.Err, position.ErrUnavailable) {
			res.Status, res.Kind = executor.StatusRetried, executor.KindExchangeUnavailable
		} else {
			res.Status, res.Kind = executor.StatusRejected, executor.KindMalformedSymbol
		}
		res.Message = snap.Err.Error()
		return res
	}

	if len(snap.Snapshot.OpenOrders) > 0 {
		if !l.AutoCancel {
			res.Status = executor.StatusSkipped
			res.Message = fmt.Sprintf("%d open orders present", len(snap.Snapshot.OpenOrders))
			return res
		}
		if n, err := l.Reader.CancelAll(ctx, pair); err != nil {
			res.Status, res.Kind = executor.StatusRetried, executor.KindExchangeUnavailable
			res.Message = fmt.Sprintf("auto-cancel failed after %d: %v", n, err)
			return res
		}
	}

	if l.NoPyramid && snap.Snapshot.HasPosition() {
		res.Status = executor.StatusSkipped
		res.Message = fmt.Sprintf("position already open: %s %v", snap.Snapshot.Side, snap.Snapshot.Size)
		return res
	}

	spec, err := l.Catalog.Get(ctx, pair)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrUnknownInstrument), exchange.IsMalformed(err):
			res.Status, res.Kind = executor.StatusRejected, executor.KindUnknownInstrument
		case errors.Is(err, catalog.ErrUnavailable):
			res.Status, res.Kind = executor.StatusRetried, executor.KindExchangeUnavailable
		default:
			res.Status, res.Kind = executor.StatusRejected, executor.KindInvalidIntent
		}
		res.ExchangeCode = exchange.RetCode(err)
		if res.ExchangeCode < 0 {
			res.ExchangeCode = 0
		}
		res.Message = err.Error()
		return res
	}

	dir, conf, err := l.Signals.Signal(ctx, pair)
	if err != nil {
		res.Status = executor.StatusSkipped
		res.Message = "signal source failed: " + err.Error()
		return res
	}
	if conf < l.MinConfidence {
		dir = risk.DirectionHold
	}

	mark := l.markPrice(ctx, spec.Symbol)

	decision, err := sizer.Size(risk.Input{
		Pair:         pair,
		Equity:       equity,
		RiskFraction: l.RiskFraction,
		MarkPrice:    mark,
		Direction:    dir,
		Spec:         spec,
		Snapshot:     snap.Snapshot,
	})
	if err != nil {
		if errors.Is(err, risk.ErrNoMarkPrice) {
			res.Status, res.Kind = executor.StatusRetried, executor.KindExchangeUnavailable
		} else {
			res.Status, res.Kind = executor.StatusRejected, executor.KindInvalidIntent
		}
		res.Message = err.Error()
		return res
	}
	if decision.Skip != "" {
		res.Status = executor.StatusSkipped
		res.Message = decision.Skip
		return res
	}

	l.decorateStops(ctx, decision.Intent, spec)
	return l.Executor.Execute(ctx, decision.Intent, dryRun)
}

// markPrice 优先取行情流里的新鲜标记价，缺失或过期时回退 REST。
func (l *Loop) markPrice(ctx context.Context, symbol string) float64 {
	if l.Feed != nil {
		if mark, ok := l.Feed.MarkPrice(symbol); ok {
			return mark
		}
	}
	t, err := l.Client.Ticker(ctx, symbol)
	if err != nil {
		return 0
	}
	if t.MarkPrice > 0 {
		return t.MarkPrice
	}
	return t.LastPrice
}

// decorateStops 按 ATR 给意图附上止损/止盈价，对齐 tick。
// K 线拉取或 ATR 计算失败只是放弃保护单，绝不阻断入场。
func (l *Loop) decorateStops(ctx context.Context, intent *risk.Intent, spec catalog.Spec) {
	if l.ATRPeriod <= 0 || (l.SLATRMult <= 0 && l.TPATRMult <= 0) {
		return
	}
	klines, err := l.Client.Klines(ctx, intent.Symbol, l.Timeframe, l.ATRPeriod*3)
	if err != nil {
		return
	}
	atr := market.ATR(klines, l.ATRPeriod)
	stop, take := market.StopDistances(atr, l.SLATRMult, l.TPATRMult)
	if stop <= 0 && take <= 0 {
		return
	}
	if intent.Side == exchange.SideSell {
		stop, take = -stop, -take
	}
	if stop != 0 {
		if sl := roundToTick(intent.MarkPrice-stop, spec.TickSize); sl > 0 {
			intent.StopLoss = sl
		}
	}
	if take != 0 {
		if tp := roundToTick(intent.MarkPrice+take, spec.TickSize); tp > 0 {
			intent.TakeProfit = tp
		}
	}
}

func roundToTick(price, tick float64) float64 {
	if tick <= 0 {
		return price
	}
	return math.Round(price/tick) * tick
}

// observe 把一条结果写进 journal、指标与日志。
func (l *Loop) observe(r executor.Result) {
	if l.Metrics != nil {
		l.Metrics.ObserveResult(string(r.Status), r.Retries)
	}
	if l.Journal != nil {
		mode := "LIVE"
		if r.DryRun {
			mode = "DRY"
		}
		event := "order_rejected"
		switch r.Status {
		case executor.StatusFilled:
			event = "order_placed"
		case executor.StatusSkipped:
			event = "order_skipped"
		}
		err := l.Journal.Append(journal.Event{
			Event:   event,
			Mode:    mode,
			Pair:    r.Pair,
			Side:    r.Side,
			Qty:     r.Qty,
			OrderID: r.OrderID,
			LinkID:  r.LinkID,
			Code:    r.ExchangeCode,
			Message: r.Message,
		})
		if err != nil && l.Log != nil {
			l.Log.LogError(err, map[string]interface{}{"stage": "journal", "pair": r.Pair})
		}
	}
	if l.Log != nil {
		l.Log.LogOutcome(r.Pair, string(r.Status), map[string]interface{}{
			"kind":    string(r.Kind),
			"code":    r.ExchangeCode,
			"side":    r.Side,
			"qty":     r.Qty,
			"retries": r.Retries,
			"message": r.Message,
			"dry_run": r.DryRun,
		})
	}
}
