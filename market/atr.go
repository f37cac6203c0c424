// Package market K 线序列上的指标计算。守护进程只用 ATR 推导保护性
// 止损/止盈距离，入场数量不依赖这里的任何值。
package market

import (
	"math"

	"positions-guard-go/exchange"
)

// ATR 计算最近 period 根 K 线的 Average True Range（简单均值口径）。
// True Range = max(high-low, |high-prevClose|, |low-prevClose|)。
// 数据不足（< period+1 根）时返回 0，调用方按 "无 ATR" 降级处理。
func ATR(klines []exchange.Kline, period int) float64 {
	if period <= 0 || len(klines) < period+1 {
		return 0
	}
	trs := make([]float64, 0, len(klines)-1)
	for i := 1; i < len(klines); i++ {
		cur := klines[i]
		prevClose := klines[i-1].Close
		tr := cur.High - cur.Low
		if v := math.Abs(cur.High - prevClose); v > tr {
			tr = v
		}
		if v := math.Abs(cur.Low - prevClose); v > tr {
			tr = v
		}
		trs = append(trs, tr)
	}
	if len(trs) < period {
		return 0
	}
	sum := 0.0
	for _, tr := range trs[len(trs)-period:] {
		sum += tr
	}
	return sum / float64(period)
}

// LastClose 返回最后一根 K 线的收盘价，空序列返回 0。
func LastClose(klines []exchange.Kline) float64 {
	if len(klines) == 0 {
		return 0
	}
	return klines[len(klines)-1].Close
}

// StopDistances 按 ATR 乘数推导止损/止盈的价格距离。
// atr 为 0 时两者皆为 0，表示不附带保护单。
func StopDistances(atr, slMult, tpMult float64) (stop, take float64) {
	if atr <= 0 {
		return 0, 0
	}
	if slMult > 0 {
		stop = atr * slMult
	}
	if tpMult > 0 {
		take = atr * tpMult
	}
	return stop, take
}
