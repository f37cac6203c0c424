// guard 守护进程入口：按固定周期评估配置的交易对并提交入场意图。
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"
	"github.com/spf13/cobra"

	"positions-guard-go/catalog"
	"positions-guard-go/config"
	"positions-guard-go/exchange"
	"positions-guard-go/executor"
	"positions-guard-go/guard"
	"positions-guard-go/infrastructure/logger"
	"positions-guard-go/internal/lockfile"
	"positions-guard-go/journal"
	"positions-guard-go/monitor"
	"positions-guard-go/position"
	"positions-guard-go/risk"
)

var (
	flagConfig      string
	flagDryRun      bool
	flagPairs       []string
	flagOnce        bool
	flagInterval    time.Duration
	flagAutoCancel  bool
	flagNoPyramid   bool
	flagNoLock      bool
	flagMetricsAddr string
)

func main() {
	root := &cobra.Command{
		Use:           "guard",
		Short:         "永续合约仓位守护：无仓则按风险比例入场，有仓则跳过",
		RunE:          run,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.Flags().StringVarP(&flagConfig, "config", "c", "configs/guard.yaml", "配置文件路径")
	root.Flags().BoolVar(&flagDryRun, "dry-run", false, "只校验不下单")
	root.Flags().StringSliceVar(&flagPairs, "pair", nil, "覆盖配置的交易对（可多次）")
	root.Flags().BoolVar(&flagOnce, "once", false, "执行一个周期后退出")
	root.Flags().DurationVar(&flagInterval, "interval", 0, "周期间隔，覆盖配置")
	root.Flags().BoolVar(&flagAutoCancel, "auto-cancel", false, "评估前撤掉遗留挂单")
	root.Flags().BoolVar(&flagNoPyramid, "no-pyramid", false, "已有持仓的交易对不再加仓")
	root.Flags().BoolVar(&flagNoLock, "no-lock", false, "跳过单实例锁")
	root.Flags().StringVar(&flagMetricsAddr, "metrics-addr", "", "Prometheus 监听地址，留空关闭")

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, risk.ErrInvalidAccountState) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	config.LoadDotenv()
	cfg, err := config.LoadWithEnvOverrides(flagConfig)
	if err != nil {
		return err
	}
	applyFlags(cmd, &cfg)

	log, err := logger.New(cfg.Log)
	if err != nil {
		return err
	}
	defer log.Close()

	if !flagNoLock {
		release, err := lockfile.Acquire("positions-guard")
		if err != nil {
			return err
		}
		defer release()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	loop, feed, jnl, err := build(cfg, log)
	if err != nil {
		return err
	}
	defer jnl.Close()
	if flagMetricsAddr != "" {
		loop.Metrics.Serve(flagMetricsAddr)
	}

	pairs, err := cfg.NormalizedPairs()
	if err != nil {
		return err
	}

	warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = loop.Catalog.WarmUp(warmCtx)
	cancel()
	if err != nil {
		if exchange.IsAuth(err) {
			return fmt.Errorf("credentials rejected: %w", err)
		}
		log.LogError(err, map[string]interface{}{"stage": "warmup"})
	}

	go func() { _ = feed.Run(ctx) }()

	if flagOnce {
		_, err := loop.RunCycle(ctx, pairs, cfg.Guard.DryRun)
		return err
	}
	return runLoop(ctx, cfg, loop, pairs, log)
}

// runLoop 周期模式：systemd READY/WATCHDOG 通知，周期之间应用热更新。
func runLoop(ctx context.Context, cfg config.Config, loop *guard.Loop, pairs []string, log *logger.Logger) error {
	watcher := &config.Watcher{Path: flagConfig, OnError: func(err error) {
		log.LogError(err, map[string]interface{}{"stage": "hot_reload"})
	}}
	if err := watcher.Start(ctx); err != nil {
		log.LogError(err, map[string]interface{}{"stage": "hot_reload"})
	}

	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)
	if wd, err := daemon.SdWatchdogEnabled(false); err == nil && wd > 0 {
		go func() {
			t := time.NewTicker(wd / 2)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
				}
			}
		}()
	}

	interval := time.Duration(cfg.Guard.IntervalSec) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		_, err := loop.RunCycle(ctx, pairs, cfg.Guard.DryRun)
		if err != nil {
			if errors.Is(err, risk.ErrInvalidAccountState) {
				_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
				return err
			}
			log.LogError(err, map[string]interface{}{"stage": "cycle"})
		}

		select {
		case <-ctx.Done():
			_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
			return nil
		case <-ticker.C:
		}

		if next := watcher.Take(cfg); next != nil {
			if err := applyReload(&cfg, *next, loop); err != nil {
				log.LogError(err, map[string]interface{}{"stage": "hot_reload"})
			} else {
				if np, err := cfg.NormalizedPairs(); err == nil {
					pairs = np
				}
				// 新增交易对提前预热，失败留给周期内的惰性拉取
				warmCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
				if err := loop.Catalog.WarmUp(warmCtx); err != nil {
					log.LogError(err, map[string]interface{}{"stage": "hot_reload"})
				}
				cancel()
				ticker.Reset(time.Duration(cfg.Guard.IntervalSec) * time.Second)
				log.LogCycle(map[string]interface{}{
					"event":         "config_reloaded",
					"risk_fraction": cfg.Risk.Fraction,
					"pairs":         len(cfg.Guard.Pairs),
				})
			}
		}
	}
}

// applyFlags 命令行显式给出的值覆盖配置文件。
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("dry-run") {
		cfg.Guard.DryRun = flagDryRun
	}
	if len(flagPairs) > 0 {
		cfg.Guard.Pairs = flagPairs
	}
	if flagInterval > 0 {
		cfg.Guard.IntervalSec = int(flagInterval / time.Second)
	}
	if cmd.Flags().Changed("auto-cancel") {
		cfg.Guard.AutoCancel = flagAutoCancel
	}
	if cmd.Flags().Changed("no-pyramid") {
		cfg.Guard.NoPyramid = flagNoPyramid
	}
}

// applyReload 把热更新允许变更的字段灌进运行中的 loop。
func applyReload(cfg *config.Config, next config.Config, loop *guard.Loop) error {
	if err := config.Validate(next); err != nil {
		return err
	}
	pairs, err := next.NormalizedPairs()
	if err != nil {
		return err
	}
	if err := loop.Catalog.SetPairs(pairs); err != nil {
		return err
	}
	signals := guard.StaticSignals{}
	for _, p := range pairs {
		signals[p] = risk.Direction(next.Guard.Direction)
	}
	loop.Signals = signals
	*cfg = next
	loop.RiskFraction = next.Risk.Fraction
	loop.Executor.Leverage = next.Risk.Leverage
	loop.CycleTimeout = time.Duration(next.Guard.CycleTimeoutSec) * time.Second
	loop.AutoCancel = next.Guard.AutoCancel
	loop.NoPyramid = next.Guard.NoPyramid
	loop.ATRPeriod = next.Risk.ATRPeriod
	loop.Timeframe = next.Risk.Timeframe
	loop.SLATRMult = next.Risk.SLATRMult
	loop.TPATRMult = next.Risk.TPATRMult
	return nil
}

// build 组装守护循环的全部组件。
func build(cfg config.Config, log *logger.Logger) (*guard.Loop, *exchange.TickerFeed, *journal.Journal, error) {
	httpClient, err := exchange.NewHTTPClient(cfg.Exchange.ProxyURL, time.Duration(cfg.Exchange.TimeoutSec)*time.Second)
	if err != nil {
		return nil, nil, nil, err
	}
	client := &exchange.RESTClient{
		BaseURL:      cfg.Exchange.BaseURL,
		APIKey:       cfg.Exchange.APIKey,
		Secret:       cfg.Exchange.APISecret,
		RecvWindowMs: cfg.Exchange.RecvWindowMs,
		Category:     exchange.CategoryLinear,
		HTTPClient:   httpClient,
		Limiter:      exchange.NewTokenBucket(5, 10),
	}

	pairs, err := cfg.NormalizedPairs()
	if err != nil {
		return nil, nil, nil, err
	}
	cat, err := catalog.New(client, pairs, time.Hour)
	if err != nil {
		return nil, nil, nil, err
	}

	symbols := make([]string, 0, len(pairs))
	for _, p := range pairs {
		sym, err := exchange.MarketSymbol(p)
		if err != nil {
			return nil, nil, nil, err
		}
		symbols = append(symbols, sym)
	}
	feed := exchange.NewTickerFeed(cfg.Exchange.WSURL, symbols)

	jnl, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		return nil, nil, nil, err
	}

	signals := guard.StaticSignals{}
	for _, p := range pairs {
		signals[p] = risk.Direction(cfg.Guard.Direction)
	}

	loop := &guard.Loop{
		Client:  client,
		Catalog: cat,
		Reader:  &position.Reader{Client: client},
		Executor: &executor.Executor{
			Client:   client,
			Catalog:  cat,
			Leverage: cfg.Risk.Leverage,
			FillWait: 5 * time.Second,
			OnWarn: func(pair, msg string) {
				log.LogOutcome(pair, "warn", map[string]interface{}{"message": msg})
			},
		},
		Signals:       signals,
		Feed:          feed,
		Journal:       jnl,
		Metrics:       monitor.New(""),
		Log:           log,
		RiskFraction:  cfg.Risk.Fraction,
		MinConfidence: 0.5,
		CycleTimeout:  time.Duration(cfg.Guard.CycleTimeoutSec) * time.Second,
		AutoCancel:    cfg.Guard.AutoCancel,
		NoPyramid:     cfg.Guard.NoPyramid,
		ATRPeriod:     cfg.Risk.ATRPeriod,
		Timeframe:     cfg.Risk.Timeframe,
		SLATRMult:     cfg.Risk.SLATRMult,
		TPATRMult:     cfg.Risk.TPATRMult,
	}
	return loop, feed, jnl, nil
}
