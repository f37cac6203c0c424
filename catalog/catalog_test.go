package catalog

import (
	"context"
	"errors"
	"testing"
	"time"

	"positions-guard-go/exchange"
	"positions-guard-go/internal/exchangetest"
)

func newFake() *exchangetest.Fake {
	f := exchangetest.New()
	f.Instruments["BTCUSDT"] = exchange.InstrumentInfo{
		Symbol: "BTCUSDT", TickSize: 0.1, StepSize: 0.001, MinOrderQty: 0.001, MinNotional: 5,
	}
	return f
}

func TestCatalogGet(t *testing.T) {
	f := newFake()
	c, err := New(f, []string{"BTC/USDT:USDT"}, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	spec, err := c.Get(context.Background(), "BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if spec.StepSize != 0.001 || spec.MinOrderValue != 5 || spec.Symbol != "BTCUSDT" {
		t.Fatalf("unexpected spec %+v", spec)
	}
	// 第二次命中缓存，不再请求交易所
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("cached get: %v", err)
	}
	if n := f.CallCount("InstrumentInfo"); n != 1 {
		t.Fatalf("expected single fetch, got %d", n)
	}
}

func TestCatalogUnknownInstrument(t *testing.T) {
	c, err := New(newFake(), []string{"BTC/USDT:USDT"}, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	_, err = c.Get(context.Background(), "ETH/USDT:USDT")
	if !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("want ErrUnknownInstrument, got %v", err)
	}
}

func TestCatalogRefreshTransportFailure(t *testing.T) {
	f := newFake()
	f.FailWith("InstrumentInfo", &exchange.TransportError{Endpoint: "/v5/market/instruments-info", Err: errors.New("timeout")})
	c, _ := New(f, []string{"BTC/USDT:USDT"}, time.Hour)
	_, err := c.Refresh(context.Background(), "BTC/USDT:USDT")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("want ErrUnavailable, got %v", err)
	}
	// 失败不得写入缓存：下一次 Get 重新拉取并成功
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("recovery get: %v", err)
	}
}

func TestCatalogRejectsInvalidMetadata(t *testing.T) {
	f := newFake()
	f.Instruments["BTCUSDT"] = exchange.InstrumentInfo{Symbol: "BTCUSDT", TickSize: 0, StepSize: 0.001}
	c, _ := New(f, []string{"BTC/USDT:USDT"}, time.Hour)
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); !errors.Is(err, ErrInvalidMetadata) {
		t.Fatalf("want ErrInvalidMetadata, got %v", err)
	}
}

func TestCatalogInvalidateForcesRefetch(t *testing.T) {
	f := newFake()
	c, _ := New(f, []string{"BTC/USDT:USDT"}, time.Hour)
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("get: %v", err)
	}
	c.Invalidate("BTC/USDT:USDT")
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("get after invalidate: %v", err)
	}
	if n := f.CallCount("InstrumentInfo"); n != 2 {
		t.Fatalf("expected refetch, got %d calls", n)
	}
}

func TestCatalogSetPairsExtendsAndPrunes(t *testing.T) {
	f := newFake()
	f.Instruments["ETHUSDT"] = exchange.InstrumentInfo{
		Symbol: "ETHUSDT", TickSize: 0.01, StepSize: 0.01, MinOrderQty: 0.01, MinNotional: 5,
	}
	c, err := New(f, []string{"BTC/USDT:USDT"}, time.Hour)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("get: %v", err)
	}

	// 热更新新增 ETH：立即可用，BTC 缓存保留
	if err := c.SetPairs([]string{"BTC/USDT:USDT", "ETH/USDT:USDT"}); err != nil {
		t.Fatalf("set pairs: %v", err)
	}
	if _, err := c.Get(context.Background(), "ETH/USDT:USDT"); err != nil {
		t.Fatalf("added pair must resolve after reload: %v", err)
	}
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("retained pair: %v", err)
	}
	if n := f.CallCount("InstrumentInfo"); n != 2 {
		t.Fatalf("retained pair must keep its cache, got %d fetches", n)
	}

	// 再次热更新移除 BTC：连缓存一起剔除
	if err := c.SetPairs([]string{"ETH/USDT:USDT"}); err != nil {
		t.Fatalf("set pairs: %v", err)
	}
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); !errors.Is(err, ErrUnknownInstrument) {
		t.Fatalf("removed pair must be unknown, got %v", err)
	}
}

func TestCatalogSetPairsRejectsMalformed(t *testing.T) {
	c, _ := New(newFake(), []string{"BTC/USDT:USDT"}, time.Hour)
	if err := c.SetPairs([]string{"BTCUSDT"}); err == nil {
		t.Fatal("malformed pair must be rejected")
	}
	// 失败的替换不得破坏原配置
	if _, err := c.Get(context.Background(), "BTC/USDT:USDT"); err != nil {
		t.Fatalf("original pair set must survive a failed reload: %v", err)
	}
}
