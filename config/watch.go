package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Watcher 监听配置文件变化并在冷却时间之外触发重载。
// 新配置只在两个评估周期之间被取走，凭证字段不参与热更新。
type Watcher struct {
	Path     string
	Cooldown time.Duration // 两次重载的最小间隔，默认 2s
	OnError  func(error)

	mu         sync.Mutex
	lastReload time.Time
	pending    *Config
}

// Start 启动 fsnotify 监听，直到 ctx 结束。
func (w *Watcher) Start(ctx context.Context) error {
	if w.Cooldown <= 0 {
		w.Cooldown = 2 * time.Second
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	if err := fsw.Add(w.Path); err != nil {
		fsw.Close()
		return fmt.Errorf("watch config file: %w", err)
	}

	go func() {
		defer fsw.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-fsw.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
					w.reload()
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				if w.OnError != nil {
					w.OnError(err)
				}
			}
		}
	}()
	return nil
}

func (w *Watcher) reload() {
	w.mu.Lock()
	if time.Since(w.lastReload) < w.Cooldown {
		w.mu.Unlock()
		return
	}
	w.lastReload = time.Now()
	w.mu.Unlock()

	cfg, err := LoadWithEnvOverrides(w.Path)
	if err != nil {
		// 写入中途或内容非法，保留旧配置继续运行
		if w.OnError != nil {
			w.OnError(err)
		}
		return
	}
	w.mu.Lock()
	w.pending = &cfg
	w.mu.Unlock()
}

// Take 取走最近一次成功重载的配置，没有新配置时返回 nil。
// 凭证字段以 prev 为准，运行中不可更换。
func (w *Watcher) Take(prev Config) *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.pending == nil {
		return nil
	}
	cfg := *w.pending
	w.pending = nil
	cfg.Exchange.APIKey = prev.Exchange.APIKey
	cfg.Exchange.APISecret = prev.Exchange.APISecret
	return &cfg
}
