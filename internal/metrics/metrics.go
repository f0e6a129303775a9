package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// EngineMetrics 计费引擎指标
type EngineMetrics struct {
	// 话单计费
	RatingTotal    *prometheus.CounterVec // 按结果：billed/zero/duplicate/unbilled/error
	RatingDuration prometheus.Histogram

	// 账本
	LedgerPostTotal   *prometheus.CounterVec // 按类型、结果
	LedgerPostAmount  *prometheus.CounterVec // 按类型
	ReconcileMismatch prometheus.Counter

	// 并发准入
	AdmissionTotal *prometheus.CounterVec // 按结果：admitted/rejected/released/underflow
	ActiveCalls    prometheus.Gauge

	// 分布式锁
	LockAcquireTotal    *prometheus.CounterVec
	LockAcquireDuration prometheus.Histogram

	// Outbox
	OutboxSendTotal *prometheus.CounterVec // 按 topic、结果

	// HTTP 接口
	HTTPRequestTotal    *prometheus.CounterVec // 按路由、方法、状态码
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPPanicTotal      prometheus.Counter
}

func NewEngineMetrics() *EngineMetrics {
	return &EngineMetrics{
		RatingTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_rating_total",
				Help: "Total number of rated call records",
			},
			[]string{"result"},
		),
		RatingDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voipbilling_rating_duration_seconds",
				Help:    "Duration of rating a terminated call",
				Buckets: prometheus.DefBuckets,
			},
		),

		LedgerPostTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_ledger_post_total",
				Help: "Total number of ledger posts",
			},
			[]string{"type", "result"}, // result: posted/replayed/refused/error
		),
		LedgerPostAmount: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_ledger_post_amount_total",
				Help: "Total amount posted to the ledger",
			},
			[]string{"type"},
		),
		ReconcileMismatch: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voipbilling_reconcile_mismatch_total",
				Help: "Accounts whose replayed balance differs from the stored balance",
			},
		),

		AdmissionTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_admission_total",
				Help: "Total number of admission decisions",
			},
			[]string{"result"},
		),
		ActiveCalls: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "voipbilling_active_calls",
				Help: "Admitted calls not yet released by this instance",
			},
		),

		LockAcquireTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_lock_acquire_total",
				Help: "Total number of lock acquisition attempts",
			},
			[]string{"scope", "result"}, // scope: account/campaign
		),
		LockAcquireDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "voipbilling_lock_acquire_duration_seconds",
				Help:    "Duration of lock acquisition",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
		),

		OutboxSendTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_outbox_send_total",
				Help: "Total number of outbox publish attempts",
			},
			[]string{"topic", "result"},
		),

		HTTPRequestTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "voipbilling_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "voipbilling_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
			},
			[]string{"route"},
		),
		HTTPPanicTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "voipbilling_http_panics_total",
				Help: "Handler panics recovered by the HTTP middleware",
			},
		),
	}
}

var (
	defaultMetrics *EngineMetrics
	once           sync.Once
)

// GetMetrics 全局指标实例，promauto 注册到默认 Registry，只能创建一次
func GetMetrics() *EngineMetrics {
	once.Do(func() {
		defaultMetrics = NewEngineMetrics()
	})
	return defaultMetrics
}
