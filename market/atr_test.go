package market

import (
	"math"
	"testing"

	"positions-guard-go/exchange"
)

func kl(high, low, close float64) exchange.Kline {
	return exchange.Kline{High: high, Low: low, Close: close}
}

func TestATRConstantRange(t *testing.T) {
	// 每根 K 线 high-low=10 且无跳空：ATR 必为 10
	var ks []exchange.Kline
	for i := 0; i < 20; i++ {
		ks = append(ks, kl(105, 95, 100))
	}
	got := ATR(ks, 14)
	if math.Abs(got-10) > 1e-9 {
		t.Fatalf("atr %v", got)
	}
}

func TestATRGapDominatesRange(t *testing.T) {
	// 第二根相对前收盘向上跳空，TR 取 |high-prevClose|
	ks := []exchange.Kline{
		kl(102, 98, 100),
		kl(115, 112, 114),
	}
	got := ATR(ks, 1)
	if math.Abs(got-15) > 1e-9 {
		t.Fatalf("atr %v, want 15", got)
	}
}

func TestATRInsufficientData(t *testing.T) {
	ks := []exchange.Kline{kl(10, 9, 9.5), kl(10, 9, 9.5)}
	if got := ATR(ks, 14); got != 0 {
		t.Fatalf("want 0 for short series, got %v", got)
	}
	if got := ATR(nil, 14); got != 0 {
		t.Fatalf("want 0 for empty series, got %v", got)
	}
}

func TestStopDistances(t *testing.T) {
	stop, take := StopDistances(10, 1.8, 2.2)
	if stop != 18 || take != 22 {
		t.Fatalf("got %v %v", stop, take)
	}
	stop, take = StopDistances(0, 1.8, 2.2)
	if stop != 0 || take != 0 {
		t.Fatalf("zero atr must disable protective stops")
	}
}
