package exchange

import (
	"testing"
	"time"
)

func TestTickerFeedIngest(t *testing.T) {
	f := NewTickerFeed("", []string{"BTCUSDT"})
	if _, ok := f.MarkPrice("BTCUSDT"); ok {
		t.Fatalf("no price yet")
	}

	f.Ingest([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","markPrice":"50000.5"}}`))
	mark, ok := f.MarkPrice("BTCUSDT")
	if !ok || mark != 50000.5 {
		t.Fatalf("got %v ok=%v", mark, ok)
	}

	// 垃圾消息不得影响缓存
	f.Ingest([]byte(`not json`))
	f.Ingest([]byte(`{"topic":"tickers.BTCUSDT","data":{"symbol":"BTCUSDT","markPrice":"-1"}}`))
	if mark, _ := f.MarkPrice("BTCUSDT"); mark != 50000.5 {
		t.Fatalf("cache corrupted: %v", mark)
	}
}

func TestTickerFeedStale(t *testing.T) {
	f := NewTickerFeed("", nil)
	f.MaxAge = time.Millisecond
	f.Ingest([]byte(`{"topic":"tickers.ETHUSDT","data":{"symbol":"ETHUSDT","markPrice":"3000"}}`))
	time.Sleep(5 * time.Millisecond)
	if _, ok := f.MarkPrice("ETHUSDT"); ok {
		t.Fatalf("stale price must not be served")
	}
}
