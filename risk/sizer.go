// Package risk 把账户权益、风险比例与交易对约束换算成下单意图。
// 数量只向下取整到步长，宁可少下也不超过意图中的风险敞口。
package risk

import (
	"fmt"
	"math"

	"positions-guard-go/catalog"
	"positions-guard-go/exchange"
	"positions-guard-go/position"
)

// Direction 外部信号源给出的方向判断。sizer 不关心信号来源。
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
	DirectionHold  Direction = "hold"
)

// Intent 一次周期内计算出的下单意图。数量已对齐步长并通过最小名义校验。
type Intent struct {
	Pair       string
	Symbol     string
	Side       string // exchange.SideBuy / SideSell
	Qty        float64
	OrderType  string
	ReduceOnly bool
	MarkPrice  float64
	Notional   float64
	TakeProfit float64
	StopLoss   float64
}

// Decision sizer 的产出：Intent 为空时 Skip 说明跳过原因。
// 跳过是合法的 "无动作" 结果，不是错误。
type Decision struct {
	Intent *Intent
	Skip   string
}

// Input 定size所需的全部输入。
type Input struct {
	Pair         string
	Equity       float64
	RiskFraction float64
	MarkPrice    float64
	Direction    Direction
	Spec         catalog.Spec
	Snapshot     position.Snapshot
}

// Sizer 计算下单数量。Reserve 为同周期共享的名义额度账本。
type Sizer struct {
	Reserve *EquityReserve
}

// Size 按 equity*riskFraction 计算目标名义，经共享额度封顶后换算数量。
func (s *Sizer) Size(in Input) (Decision, error) {
	if in.Equity <= 0 {
		return Decision{}, fmt.Errorf("%w: equity=%v", ErrInvalidAccountState, in.Equity)
	}
	if in.RiskFraction <= 0 {
		return Decision{Skip: "risk fraction <= 0"}, nil
	}
	switch in.Direction {
	case DirectionLong, DirectionShort:
	default:
		return Decision{Skip: "no directional signal"}, nil
	}
	if in.MarkPrice <= 0 {
		return Decision{}, fmt.Errorf("%w: %s", ErrNoMarkPrice, in.Pair)
	}
	if in.Spec.StepSize <= 0 {
		return Decision{}, fmt.Errorf("spec step size must be positive: %s", in.Pair)
	}

	target := in.Equity * in.RiskFraction
	granted := target
	if s.Reserve != nil {
		granted = s.Reserve.Reserve(target)
		if granted <= 0 {
			return Decision{Skip: "equity cap exhausted"}, nil
		}
	}

	qty := floorToStep(granted/in.MarkPrice, in.Spec.StepSize)
	notional := qty * in.MarkPrice
	if qty <= 0 || qty < in.Spec.MinOrderQty || notional < in.Spec.MinOrderValue {
		if s.Reserve != nil {
			s.Reserve.Release(granted)
		}
		return Decision{Skip: fmt.Sprintf("below instrument minimum: qty=%v notional=%v", qty, notional)}, nil
	}
	// 归还取整后未使用的额度，账本只保留实际意图名义。
	if s.Reserve != nil {
		s.Reserve.Release(granted - notional)
	}

	side := exchange.SideBuy
	if in.Direction == DirectionShort {
		side = exchange.SideSell
	}
	return Decision{Intent: &Intent{
		Pair:      in.Pair,
		Symbol:    in.Spec.Symbol,
		Side:      side,
		Qty:       qty,
		OrderType: exchange.OrderTypeMarket,
		MarkPrice: in.MarkPrice,
		Notional:  notional,
	}}, nil
}

// floorToStep 向下取整到步长倍数。1e-9 的容差吸收 float 除法噪声，
// 防止 0.04/0.001 = 39.9999... 被多砍一档。
func floorToStep(qty, step float64) float64 {
	if step <= 0 {
		return qty
	}
	steps := math.Floor(qty/step + 1e-9)
	if steps <= 0 {
		return 0
	}
	return steps * step
}
