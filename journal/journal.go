// Package journal 追加式 JSONL 交易事件日志。每行一个事件，
// 外部分析工具直接逐行消费。这是外部落盘边界，不是核心状态。
package journal

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Event 单条交易事件。
type Event struct {
	TS      string  `json:"ts"`
	Event   string  `json:"event"` // order_placed / order_rejected / order_skipped / cycle_summary
	Mode    string  `json:"mode"`  // LIVE / DRY
	Pair    string  `json:"pair,omitempty"`
	Side    string  `json:"side,omitempty"`
	Qty     float64 `json:"qty,omitempty"`
	Price   float64 `json:"price,omitempty"`
	TP      float64 `json:"tp,omitempty"`
	SL      float64 `json:"sl,omitempty"`
	OrderID string  `json:"order_id,omitempty"`
	LinkID  string  `json:"link_id,omitempty"`
	Code    int     `json:"code,omitempty"`
	Message string  `json:"message,omitempty"`
}

// Journal 并发安全的追加写入器。
type Journal struct {
	mu   sync.Mutex
	file *os.File
}

// Open 打开（或创建）日志文件，目录不存在时一并创建。
func Open(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("journal dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{file: f}, nil
}

// Append 写入一条事件。TS 为空时自动填充 UTC 时间。
func (j *Journal) Append(ev Event) error {
	if ev.TS == "" {
		ev.TS = time.Now().UTC().Format(time.RFC3339Nano)
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	if _, err := j.file.Write(append(raw, '\n')); err != nil {
		return fmt.Errorf("append journal: %w", err)
	}
	return nil
}

// Close 关闭底层文件。
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.file.Close()
}
