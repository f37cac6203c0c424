package journal

import (
	"bufio"
	"os"
	"path/filepath"
	"sync"
	"testing"

	jsoniter "github.com/json-iterator/go"
)

func TestAppendAndReadBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "trades.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	if err := j.Append(Event{Event: "order_placed", Mode: "LIVE", Pair: "BTC/USDT:USDT", Qty: 0.04}); err != nil {
		t.Fatalf("append: %v", err)
	}
	if err := j.Append(Event{Event: "order_skipped", Mode: "DRY", Pair: "ETH/USDT:USDT"}); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer f.Close()
	var events []Event
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var ev Event
		if err := jsoniter.Unmarshal(sc.Bytes(), &ev); err != nil {
			t.Fatalf("line not valid json: %v", err)
		}
		events = append(events, ev)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(events))
	}
	if events[0].Event != "order_placed" || events[0].TS == "" {
		t.Fatalf("unexpected first event %+v", events[0])
	}
}

func TestConcurrentAppend(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trades.jsonl")
	j, err := Open(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer j.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = j.Append(Event{Event: "order_placed", Mode: "DRY"})
		}()
	}
	wg.Wait()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	lines := 0
	for _, b := range raw {
		if b == '\n' {
			lines++
		}
	}
	if lines != 20 {
		t.Fatalf("expected 20 intact lines, got %d", lines)
	}
}
