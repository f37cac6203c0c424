// Package config 加载 YAML 配置，叠加 .env / 环境变量覆盖。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"positions-guard-go/exchange"
	"positions-guard-go/infrastructure/logger"
)

// Config 守护进程运行时配置。
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Risk     RiskConfig     `yaml:"risk"`
	Guard    GuardConfig    `yaml:"guard"`
	Log      logger.Config  `yaml:"log"`
	Journal  JournalConfig  `yaml:"journal"`
}

type ExchangeConfig struct {
	APIKey       string `yaml:"apiKey"`
	APISecret    string `yaml:"apiSecret"`
	BaseURL      string `yaml:"baseURL"`
	WSURL        string `yaml:"wsURL"`
	ProxyURL     string `yaml:"proxyURL"`
	RecvWindowMs int    `yaml:"recvWindowMs"`
	TimeoutSec   int    `yaml:"timeoutSec"`
}

type RiskConfig struct {
	Fraction  float64 `yaml:"fraction"`  // 单对目标名义 = 权益 * fraction
	Leverage  int     `yaml:"leverage"`  // 下单前设置的杠杆
	ATRPeriod int     `yaml:"atrPeriod"` // 保护性止损距离用的 ATR 周期
	Timeframe string  `yaml:"timeframe"` // kline 周期，如 "15"（分钟）
	SLATRMult float64 `yaml:"slAtrMult"` // 止损 = 标记价 ∓ ATR * 该倍数
	TPATRMult float64 `yaml:"tpAtrMult"` // 止盈 = 标记价 ± ATR * 该倍数
}

type GuardConfig struct {
	Pairs           []string `yaml:"pairs"`     // 统一格式 BASE/QUOTE 或 BASE/QUOTE:SETTLE
	Direction       string   `yaml:"direction"` // 所有对的入场方向：long / short / hold
	IntervalSec     int      `yaml:"intervalSec"`
	CycleTimeoutSec int      `yaml:"cycleTimeoutSec"`
	AutoCancel      bool     `yaml:"autoCancel"` // 评估前撤掉遗留挂单
	NoPyramid       bool     `yaml:"noPyramid"`  // 已有持仓的对直接跳过
	DryRun          bool     `yaml:"dryRun"`
}

type JournalConfig struct {
	Path string `yaml:"path"`
}

// Defaults 返回未配置项的默认值。
func Defaults() Config {
	return Config{
		Exchange: ExchangeConfig{
			BaseURL:      "https://api.bybit.com",
			WSURL:        exchange.DefaultWSEndpoint,
			RecvWindowMs: 5000,
			TimeoutSec:   10,
		},
		Risk: RiskConfig{
			Fraction:  0.1,
			Leverage:  3,
			ATRPeriod: 14,
			Timeframe: "15",
			SLATRMult: 2.0,
			TPATRMult: 3.0,
		},
		Guard: GuardConfig{
			Direction:       "long",
			IntervalSec:     60,
			CycleTimeoutSec: 45,
		},
		Log:     logger.DefaultConfig(),
		Journal: JournalConfig{Path: "logs/trades.jsonl"},
	}
}

// LoadDotenv 读取工作目录下的 .env（若存在），写入进程环境。
// 已设置的环境变量优先，不会被覆盖。
func LoadDotenv() {
	_ = godotenv.Load()
}

// Load 从 path 读取 YAML 并做校验。
func Load(path string) (Config, error) {
	cfg := Defaults()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides 加载配置后应用环境变量覆盖，环境变量优先于文件。
func LoadWithEnvOverrides(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, Validate(cfg)
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("BYBIT_API_KEY"); v != "" {
		cfg.Exchange.APIKey = v
	}
	if v := os.Getenv("BYBIT_API_SECRET"); v != "" {
		cfg.Exchange.APISecret = v
	}
	if v := os.Getenv("PROXY_URL"); v != "" {
		cfg.Exchange.ProxyURL = v
	}
	if v := os.Getenv("RECV_WINDOW"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("RECV_WINDOW must be a positive integer, got %q", v)
		}
		cfg.Exchange.RecvWindowMs = n
	}
	if v := os.Getenv("RISK_FRACTION"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("RISK_FRACTION must be a number, got %q", v)
		}
		cfg.Risk.Fraction = f
	}
	if v := os.Getenv("LEVERAGE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("LEVERAGE must be a positive integer, got %q", v)
		}
		cfg.Risk.Leverage = n
	}
	if v := os.Getenv("PAIRS"); v != "" {
		pairs, err := exchange.SplitPairs(v)
		if err != nil {
			return fmt.Errorf("PAIRS: %w", err)
		}
		cfg.Guard.Pairs = pairs
	}
	if v := os.Getenv("DRY_RUN"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DRY_RUN must be a boolean, got %q", v)
		}
		cfg.Guard.DryRun = b
	}
	return nil
}

// Validate 校验必填项，凭证缺失或参数越界直接失败。
func Validate(cfg Config) error {
	if cfg.Exchange.APIKey == "" || cfg.Exchange.APISecret == "" {
		return errors.New("exchange.apiKey/apiSecret is required (or BYBIT_API_KEY/BYBIT_API_SECRET)")
	}
	if cfg.Exchange.BaseURL == "" {
		return errors.New("exchange.baseURL is required")
	}
	if cfg.Exchange.RecvWindowMs <= 0 {
		return errors.New("exchange.recvWindowMs must be > 0")
	}
	if cfg.Risk.Fraction <= 0 || cfg.Risk.Fraction > 1 {
		return fmt.Errorf("risk.fraction must be in (0, 1], got %g", cfg.Risk.Fraction)
	}
	if cfg.Risk.Leverage <= 0 {
		return errors.New("risk.leverage must be > 0")
	}
	if cfg.Risk.ATRPeriod <= 0 {
		return errors.New("risk.atrPeriod must be > 0")
	}
	if cfg.Risk.SLATRMult < 0 || cfg.Risk.TPATRMult < 0 {
		return errors.New("risk atr multipliers must be >= 0")
	}
	if len(cfg.Guard.Pairs) == 0 {
		return errors.New("guard.pairs is required (or PAIRS)")
	}
	for _, p := range cfg.Guard.Pairs {
		if _, err := exchange.NormalizePair(p); err != nil {
			return fmt.Errorf("guard.pairs: %w", err)
		}
	}
	switch cfg.Guard.Direction {
	case "long", "short", "hold":
	default:
		return fmt.Errorf("guard.direction must be long/short/hold, got %q", cfg.Guard.Direction)
	}
	if cfg.Guard.IntervalSec <= 0 {
		return errors.New("guard.intervalSec must be > 0")
	}
	if cfg.Guard.CycleTimeoutSec <= 0 {
		return errors.New("guard.cycleTimeoutSec must be > 0")
	}
	return nil
}

// NormalizedPairs 返回统一格式（带结算币后缀）的交易对列表。
func (c Config) NormalizedPairs() ([]string, error) {
	out := make([]string, 0, len(c.Guard.Pairs))
	for _, p := range c.Guard.Pairs {
		np, err := exchange.NormalizePair(p)
		if err != nil {
			return nil, err
		}
		out = append(out, np)
	}
	return out, nil
}
