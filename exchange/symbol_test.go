package exchange

import "testing"

func TestNormalizePair(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"BTC/USDT", "BTC/USDT:USDT"},
		{"btc/usdt", "BTC/USDT:USDT"},
		{"BTC/USDT:USDT", "BTC/USDT:USDT"},
		{" ton/usdt ", "TON/USDT:USDT"},
	}
	for _, c := range cases {
		got, err := NormalizePair(c.in)
		if err != nil {
			t.Fatalf("%s: %v", c.in, err)
		}
		if got != c.want {
			t.Fatalf("%s: got %s want %s", c.in, got, c.want)
		}
	}
}

func TestNormalizePairMalformed(t *testing.T) {
	for _, in := range []string{"", "BTCUSDT", "BTC/", "/USDT", "BTC/USDT:", "BTC/USDT/USDT"} {
		if _, err := NormalizePair(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestMarketSymbol(t *testing.T) {
	sym, err := MarketSymbol("BTC/USDT:USDT")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if sym != "BTCUSDT" {
		t.Fatalf("got %s", sym)
	}
	// 简写形式也应先规范化再转换
	sym, err = MarketSymbol("eth/usdt")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if sym != "ETHUSDT" {
		t.Fatalf("got %s", sym)
	}
}

func TestSplitPairs(t *testing.T) {
	pairs, err := SplitPairs("BTC/USDT, ETH/USDT:USDT ,")
	if err != nil {
		t.Fatalf("unexpected: %v", err)
	}
	if len(pairs) != 2 || pairs[0] != "BTC/USDT:USDT" || pairs[1] != "ETH/USDT:USDT" {
		t.Fatalf("got %v", pairs)
	}
	if _, err := SplitPairs("BTC/USDT,bogus"); err == nil {
		t.Fatalf("expected error")
	}
}
