package risk

import (
	"errors"
	"math"
	"sync"
	"testing"

	"positions-guard-go/catalog"
	"positions-guard-go/exchange"
)

func btcSpec() catalog.Spec {
	return catalog.Spec{
		Pair: "BTC/USDT:USDT", Symbol: "BTCUSDT",
		TickSize: 0.1, StepSize: 0.001, MinOrderQty: 0.001, MinOrderValue: 5,
	}
}

func TestSizeBasicScenario(t *testing.T) {
	// equity=10000 risk=0.2 mark=50000 step=0.001 -> qty=0.04 notional=2000
	s := &Sizer{Reserve: NewEquityReserve(10000)}
	dec, err := s.Size(Input{
		Pair: "BTC/USDT:USDT", Equity: 10000, RiskFraction: 0.2,
		MarkPrice: 50000, Direction: DirectionLong, Spec: btcSpec(),
	})
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if dec.Intent == nil {
		t.Fatalf("expected intent, skipped: %s", dec.Skip)
	}
	if math.Abs(dec.Intent.Qty-0.04) > 1e-12 {
		t.Fatalf("qty %v", dec.Intent.Qty)
	}
	if dec.Intent.Side != exchange.SideBuy || dec.Intent.OrderType != exchange.OrderTypeMarket {
		t.Fatalf("unexpected intent %+v", dec.Intent)
	}
	if math.Abs(dec.Intent.Notional-2000) > 1e-9 {
		t.Fatalf("notional %v", dec.Intent.Notional)
	}
}

func TestSizeRoundsDownToSkip(t *testing.T) {
	// equity=100 risk=0.2 mark=50000 -> raw qty=0.0004，步长 0.001 下取整为 0
	s := &Sizer{Reserve: NewEquityReserve(100)}
	dec, err := s.Size(Input{
		Pair: "BTC/USDT:USDT", Equity: 100, RiskFraction: 0.2,
		MarkPrice: 50000, Direction: DirectionLong, Spec: btcSpec(),
	})
	if err != nil {
		t.Fatalf("size: %v", err)
	}
	if dec.Intent != nil || dec.Skip == "" {
		t.Fatalf("expected skip, got %+v", dec)
	}
	// 跳过后额度必须完整归还
	if got := s.Reserve.Reserved(); got != 0 {
		t.Fatalf("reserve leak: %v", got)
	}
}

func TestSizeNonPositiveRiskFractionSkips(t *testing.T) {
	s := &Sizer{}
	for _, rf := range []float64{0, -0.1} {
		dec, err := s.Size(Input{
			Pair: "BTC/USDT:USDT", Equity: 1000, RiskFraction: rf,
			MarkPrice: 50000, Direction: DirectionLong, Spec: btcSpec(),
		})
		if err != nil {
			t.Fatalf("size: %v", err)
		}
		if dec.Intent != nil {
			t.Fatalf("riskFraction=%v must skip", rf)
		}
	}
}

func TestSizeInvalidEquityFatal(t *testing.T) {
	s := &Sizer{}
	_, err := s.Size(Input{Pair: "BTC/USDT:USDT", Equity: 0, RiskFraction: 0.2, MarkPrice: 50000, Direction: DirectionLong, Spec: btcSpec()})
	if !errors.Is(err, ErrInvalidAccountState) {
		t.Fatalf("want ErrInvalidAccountState, got %v", err)
	}
}

func TestSizeHoldSkips(t *testing.T) {
	s := &Sizer{}
	dec, err := s.Size(Input{Pair: "BTC/USDT:USDT", Equity: 1000, RiskFraction: 0.2, MarkPrice: 50000, Direction: DirectionHold, Spec: btcSpec()})
	if err != nil || dec.Intent != nil {
		t.Fatalf("hold must skip: %+v err=%v", dec, err)
	}
}

func TestSizeStepAlignment(t *testing.T) {
	s := &Sizer{}
	spec := btcSpec()
	spec.StepSize = 0.003
	dec, err := s.Size(Input{Pair: "BTC/USDT:USDT", Equity: 10000, RiskFraction: 0.2, MarkPrice: 50000, Direction: DirectionShort, Spec: spec})
	if err != nil || dec.Intent == nil {
		t.Fatalf("size: %+v err=%v", dec, err)
	}
	ratio := dec.Intent.Qty / spec.StepSize
	if math.Abs(ratio-math.Round(ratio)) > 1e-8 {
		t.Fatalf("qty %v not aligned to step %v", dec.Intent.Qty, spec.StepSize)
	}
	if dec.Intent.Qty*50000 > 2000+1e-9 {
		t.Fatalf("rounding must never exceed target notional")
	}
	if dec.Intent.Side != exchange.SideSell {
		t.Fatalf("short -> Sell")
	}
}

func TestConcurrentSizingRespectsEquityCap(t *testing.T) {
	// 10 个交易对并发定size，每个要 30% 权益；意图名义总和不得超过权益。
	equity := 10000.0
	reserve := NewEquityReserve(equity)
	s := &Sizer{Reserve: reserve}

	var wg sync.WaitGroup
	var mu sync.Mutex
	total := 0.0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			dec, err := s.Size(Input{
				Pair: "BTC/USDT:USDT", Equity: equity, RiskFraction: 0.3,
				MarkPrice: 50000, Direction: DirectionLong, Spec: btcSpec(),
			})
			if err != nil {
				t.Errorf("size: %v", err)
				return
			}
			if dec.Intent != nil {
				mu.Lock()
				total += dec.Intent.Notional
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if total > equity+1e-6 {
		t.Fatalf("combined notional %v exceeds equity %v", total, equity)
	}
	if total == 0 {
		t.Fatalf("expected at least one intent")
	}
}
