package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the collectors exported on /metrics.
type Metrics struct {
	// Pricing resolution.
	PricingResolutionTotal    *prometheus.CounterVec   // by service_type, tier
	PricingResolutionDuration *prometheus.HistogramVec // by service_type
	PricingDegradedTotal      prometheus.Counter       // 1:1 conversions without a currency rate

	// Ledger.
	LedgerOperationTotal *prometheus.CounterVec // by operation, result
	LedgerCreditsTotal   *prometheus.CounterVec // by transaction type

	// Workflow.
	WorkflowStepTotal       *prometheus.CounterVec   // by model_type, result
	WorkflowStepDuration    *prometheus.HistogramVec // by model_type
	WorkflowEstimateTotal   *prometheus.CounterVec   // by model_type
	WorkflowChargeFailTotal prometheus.Counter       // generated but not charged
	LockAcquireTotal        *prometheus.CounterVec   // by backend, result

	// Single-shot generations.
	GenerationTotal *prometheus.CounterVec // by kind, result
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		PricingResolutionTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_pricing_resolution_total",
				Help: "Total number of price resolutions by matched tier",
			},
			[]string{"service_type", "tier"}, // tier: exact/partial/default/fallback/error
		),
		PricingResolutionDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditstudio_pricing_resolution_duration_seconds",
				Help:    "Duration of price resolutions",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"service_type"},
		),
		PricingDegradedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "creditstudio_pricing_degraded_total",
				Help: "Price conversions that fell back to 1:1 because no currency rate was valid",
			},
		),
		LedgerOperationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_ledger_operation_total",
				Help: "Total number of ledger operations",
			},
			[]string{"operation", "result"}, // result: ok/insufficient/error
		),
		LedgerCreditsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_ledger_credits_total",
				Help: "Credits moved by the ledger",
			},
			[]string{"type"},
		),
		WorkflowStepTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_workflow_step_total",
				Help: "Total number of workflow step executions",
			},
			[]string{"model_type", "result"},
		),
		WorkflowStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "creditstudio_workflow_step_duration_seconds",
				Help:    "Duration of workflow step executions",
				Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
			},
			[]string{"model_type"},
		),
		WorkflowEstimateTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_workflow_estimate_total",
				Help: "Step costs that used the flat estimate because pricing could not be resolved",
			},
			[]string{"model_type"},
		),
		WorkflowChargeFailTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "creditstudio_workflow_charge_failure_total",
				Help: "Steps whose content was generated but could not be charged",
			},
		),
		LockAcquireTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_chat_lock_acquire_total",
				Help: "Chat lock acquisitions",
			},
			[]string{"backend", "result"},
		),
		GenerationTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "creditstudio_generation_total",
				Help: "Total number of single-shot generations",
			},
			[]string{"kind", "result"},
		),
	}
}

var (
	defaultOnce    sync.Once
	defaultMetrics *Metrics
)

// Get returns the process-wide metrics registered on the default registry.
func Get() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// NewWithRegistry registers a fresh set of collectors on reg.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	return newMetrics(reg)
}
