// Package monitor 守护循环的 Prometheus 指标。
package monitor

import (
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 持有全部指标。独立 registry，避免与默认注册表互相污染。
type Metrics struct {
	registry *prometheus.Registry

	cyclesTotal   prometheus.Counter
	cycleDuration prometheus.Histogram
	results       *prometheus.CounterVec
	retriesTotal  prometheus.Counter
	equity        prometheus.Gauge
	reserved      prometheus.Gauge
	pairsSkipped  prometheus.Counter
}

func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "positions_guard"
	}
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		cyclesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "cycles_total", Help: "已完成的评估周期数",
		}),
		cycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "cycle_duration_seconds", Help: "单周期耗时",
			Buckets: prometheus.DefBuckets,
		}),
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "results_total", Help: "按状态统计的执行结果",
		}, []string{"status"}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "order_retries_total", Help: "传输类错误触发的重试次数",
		}),
		equity: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "equity", Help: "最近一次读取的账户权益",
		}),
		reserved: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "reserved_notional", Help: "本周期已预留名义",
		}),
		pairsSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pairs_skipped_total", Help: "因超时被放弃的交易对数",
		}),
	}
	reg.MustRegister(m.cyclesTotal, m.cycleDuration, m.results, m.retriesTotal, m.equity, m.reserved, m.pairsSkipped)
	return m
}

func (m *Metrics) ObserveCycle(d time.Duration) {
	m.cyclesTotal.Inc()
	m.cycleDuration.Observe(d.Seconds())
}

func (m *Metrics) ObserveResult(status string, retries int) {
	m.results.WithLabelValues(strings.ToLower(status)).Inc()
	if retries > 0 {
		m.retriesTotal.Add(float64(retries))
	}
}

func (m *Metrics) SetEquity(v float64)   { m.equity.Set(v) }
func (m *Metrics) SetReserved(v float64) { m.reserved.Set(v) }
func (m *Metrics) AddSkippedPairs(n int) { m.pairsSkipped.Add(float64(n)) }

// Handler 返回 /metrics 的 HTTP handler。
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve 在 addr 上暴露 /metrics，addr 为空则不启动。
func (m *Metrics) Serve(addr string) {
	if addr == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	go func() {
		_ = http.ListenAndServe(addr, mux)
	}()
}
