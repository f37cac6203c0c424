package guard

import (
	"context"

	"positions-guard-go/risk"
)

// SignalSource 给出某交易对的方向判断与置信度（0~1）。
// 守护循环不做任何信号计算，只消费结论。
type SignalSource interface {
	Signal(ctx context.Context, pair string) (risk.Direction, float64, error)
}

// StaticSignals 固定方向表：配置哪个方向就一直给哪个方向，置信度恒为 1。
// 无表项的交易对视为 hold。
type StaticSignals map[string]risk.Direction

func (s StaticSignals) Signal(_ context.Context, pair string) (risk.Direction, float64, error) {
	d, ok := s[pair]
	if !ok {
		return risk.DirectionHold, 0, nil
	}
	return d, 1, nil
}
