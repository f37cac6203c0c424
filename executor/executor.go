// Package executor 负责把下单意图提交到交易所：干跑校验、杠杆设置、
// 错误分类与有界退避重试。分类表是本核心对交易所边界的唯一契约。
package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"

	"positions-guard-go/catalog"
	"positions-guard-go/exchange"
	"positions-guard-go/risk"
)

// Status 执行结果状态。
type Status string

const (
	StatusFilled   Status = "Filled"
	StatusRejected Status = "Rejected"
	StatusRetried  Status = "Retried" // 重试预算耗尽
	StatusSkipped  Status = "Skipped" // 干跑或 sizer 跳过
)

// Kind Rejected/Retried 结果必须携带的错误分类。
type Kind string

const (
	KindNone                Kind = ""
	KindMalformedSymbol     Kind = "malformed_symbol"
	KindExchangeUnavailable Kind = "exchange_unavailable"
	KindInsufficientMargin  Kind = "insufficient_margin"
	KindExchangeReject      Kind = "exchange_reject"
	KindUnknownInstrument   Kind = "unknown_instrument"
	KindInvalidIntent       Kind = "invalid_intent"
)

// Result 一次意图提交的结果。每对每周期恰好产出一条，绝不静默丢弃。
type Result struct {
	Pair         string
	Status       Status
	Kind         Kind
	ExchangeCode int
	Message      string
	OrderID      string
	LinkID       string
	Side         string
	Qty          float64
	Notional     float64
	Retries      int
	DryRun       bool
}

// Fatal 报告该交易对是否遇到不可重试的配置/格式类错误。
func (r Result) Fatal() bool { return r.Kind == KindMalformedSymbol }

// Executor 提交订单并分类交易所响应。
type Executor struct {
	Client   exchange.Client
	Catalog  *catalog.Catalog
	Leverage int

	MaxRetries  int           // 传输类错误的重试上限，默认 3
	BackoffBase time.Duration // 首次退避时长，默认 500ms
	FillWait    time.Duration // 提交后等待离开挂单簿的时长，0 表示不等

	// NewLinkID 生成幂等的客户端订单号，默认 ULID。测试中可固定。
	NewLinkID func() string

	// OnWarn 非致命告警回调（杠杆设置失败等），由调用方接日志。
	OnWarn func(pair, msg string)
}

func (e *Executor) maxRetries() int {
	if e.MaxRetries <= 0 {
		return 3
	}
	return e.MaxRetries
}

func (e *Executor) backoffBase() time.Duration {
	if e.BackoffBase <= 0 {
		return 500 * time.Millisecond
	}
	return e.BackoffBase
}

func (e *Executor) newLinkID() string {
	if e.NewLinkID != nil {
		return e.NewLinkID()
	}
	return ulid.Make().String()
}

func (e *Executor) warn(pair, msg string) {
	if e.OnWarn != nil {
		e.OnWarn(pair, msg)
	}
}

// Execute 提交一个意图。干跑模式执行与实盘完全相同的校验，
// 但绝不触达下单端点。
func (e *Executor) Execute(ctx context.Context, intent *risk.Intent, dryRun bool) Result {
	res := Result{
		Pair:     intent.Pair,
		Side:     intent.Side,
		Qty:      intent.Qty,
		Notional: intent.Notional,
		DryRun:   dryRun,
	}

	spec, err := e.Catalog.Get(ctx, intent.Pair)
	if err != nil {
		switch {
		case errors.Is(err, catalog.ErrUnknownInstrument):
			res.Status, res.Kind = StatusRejected, KindUnknownInstrument
		case errors.Is(err, catalog.ErrUnavailable):
			res.Status, res.Kind = StatusRetried, KindExchangeUnavailable
		default:
			res.Status, res.Kind = StatusRejected, KindInvalidIntent
		}
		res.Message = err.Error()
		return res
	}
	if err := validateIntent(intent, spec); err != nil {
		res.Status, res.Kind = StatusRejected, KindInvalidIntent
		res.Message = err.Error()
		return res
	}

	if dryRun {
		res.Status = StatusSkipped
		res.Message = fmt.Sprintf("dry-run: validated %s %s qty=%v notional=%v", intent.Side, intent.Pair, intent.Qty, intent.Notional)
		return res
	}

	e.setLeverage(ctx, intent, &res)
	return e.submit(ctx, intent, res)
}

// setLeverage 实盘下单前对齐杠杆。110043（未变化）按成功处理；
// 其余失败只告警，不阻断入场（原有仓位杠杆仍然有效）。
func (e *Executor) setLeverage(ctx context.Context, intent *risk.Intent, res *Result) {
	if e.Leverage <= 0 {
		return
	}
	err := e.Client.SetLeverage(ctx, intent.Symbol, e.Leverage)
	if err == nil || exchange.IsNotModified(err) {
		return
	}
	e.warn(intent.Pair, fmt.Sprintf("set leverage: %v", err))
}

func (e *Executor) submit(ctx context.Context, intent *risk.Intent, res Result) Result {
	attempt := NewAttempt()
	linkID := e.newLinkID()
	res.LinkID = linkID

	// 提交本身剥离取消信号：请求一旦上线就让它走完（HTTP 客户端自身的
	// 超时仍然生效），否则取消会留下 "交易所已接受、本地当作失败" 的
	// 半提交订单。取消只在循环顶部与退避等待中生效。
	submitCtx := context.WithoutCancel(ctx)

	for {
		if err := ctx.Err(); err != nil {
			res.Status, res.Kind = StatusRetried, KindExchangeUnavailable
			res.Message = "cycle deadline: " + err.Error()
			res.Retries = attempt.Retries()
			return res
		}

		created, err := e.Client.CreateOrder(submitCtx, exchange.CreateOrderRequest{
			Symbol:      intent.Symbol,
			Side:        intent.Side,
			OrderType:   intent.OrderType,
			Qty:         intent.Qty,
			ReduceOnly:  intent.ReduceOnly,
			TakeProfit:  intent.TakeProfit,
			StopLoss:    intent.StopLoss,
			OrderLinkID: linkID,
		})
		if err == nil || exchange.IsNotModified(err) {
			_ = attempt.Advance(StateSubmitted)
			_ = attempt.Advance(StateFilled)
			res.Status = StatusFilled
			res.OrderID = created.OrderID
			res.Retries = attempt.Retries()
			res.Message = e.awaitFill(ctx, intent, linkID)
			return res
		}

		if exchange.IsMalformed(err) {
			// 同样的畸形请求重试不可能成功；作废元数据缓存，
			// 下个周期强制重新拉取精度信息。
			_ = attempt.Advance(StateFatal)
			e.Catalog.Invalidate(intent.Pair)
			res.Status, res.Kind = StatusRejected, KindMalformedSymbol
			res.ExchangeCode = exchange.RetCode(err)
			res.Message = err.Error()
			res.Retries = attempt.Retries()
			return res
		}

		if exchange.IsRetryable(err) {
			if attempt.Retries() >= e.maxRetries() {
				_ = attempt.Advance(StateFatal)
				res.Status, res.Kind = StatusRetried, KindExchangeUnavailable
				res.ExchangeCode = exchange.RetCode(err)
				res.Message = fmt.Sprintf("retries exhausted: %v", err)
				res.Retries = attempt.Retries()
				return res
			}
			_ = attempt.Advance(StateRetryWait)
			if !sleepBackoff(ctx, e.backoffBase(), attempt.Retries()) {
				res.Status, res.Kind = StatusRetried, KindExchangeUnavailable
				res.Message = "cycle deadline during backoff"
				res.Retries = attempt.Retries()
				return res
			}
			_ = attempt.Advance(StatePending)
			continue
		}

		// 其余交易所拒绝：保留原始错误码用于诊断，不自动重试。
		_ = attempt.Advance(StateSubmitted)
		_ = attempt.Advance(StateRejected)
		res.Status = StatusRejected
		if exchange.IsInsufficient(err) {
			res.Kind = KindInsufficientMargin
		} else {
			res.Kind = KindExchangeReject
		}
		res.ExchangeCode = exchange.RetCode(err)
		res.Message = err.Error()
		res.Retries = attempt.Retries()
		return res
	}
}

// awaitFill 市价单提交后短暂轮询挂单簿，确认订单已离开（成交）。
// 超时不算失败：订单已被交易所接受，只是回执慢。
func (e *Executor) awaitFill(ctx context.Context, intent *risk.Intent, linkID string) string {
	if e.FillWait <= 0 {
		return "submitted"
	}
	deadline := time.Now().Add(e.FillWait)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		orders, err := e.Client.OpenOrders(ctx, intent.Symbol)
		if err == nil {
			open := false
			for _, o := range orders {
				if o.OrderLinkID == linkID {
					open = true
					break
				}
			}
			if !open {
				return "filled"
			}
		}
		select {
		case <-ctx.Done():
			return "placed"
		case <-time.After(200 * time.Millisecond):
		}
	}
	return "placed"
}

// validateIntent 干跑与实盘共用的前置校验：步长对齐与最小名义。
func validateIntent(intent *risk.Intent, spec catalog.Spec) error {
	if intent.Qty <= 0 {
		return fmt.Errorf("qty must be positive: %v", intent.Qty)
	}
	if spec.StepSize > 0 {
		ratio := intent.Qty / spec.StepSize
		if math.Abs(ratio-math.Round(ratio)) > 1e-8 {
			return fmt.Errorf("qty %v not aligned to stepSize %v", intent.Qty, spec.StepSize)
		}
	}
	if spec.MinOrderQty > 0 && intent.Qty < spec.MinOrderQty {
		return fmt.Errorf("qty %v < minOrderQty %v", intent.Qty, spec.MinOrderQty)
	}
	if spec.MinOrderValue > 0 && intent.Notional < spec.MinOrderValue {
		return fmt.Errorf("notional %v < minOrderValue %v", intent.Notional, spec.MinOrderValue)
	}
	switch intent.Side {
	case exchange.SideBuy, exchange.SideSell:
	default:
		return fmt.Errorf("invalid side %q", intent.Side)
	}
	return nil
}

// sleepBackoff 指数退避加少量抖动；ctx 取消时返回 false。
func sleepBackoff(ctx context.Context, base time.Duration, retry int) bool {
	d := base * time.Duration(1<<uint(retry-1))
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	if jitter := int64(base) / 2; jitter > 0 {
		d += time.Duration(rand.Int63n(jitter))
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
