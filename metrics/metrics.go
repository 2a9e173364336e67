// Package metrics registers Prometheus collectors for the billing service.
// All observe functions are no-ops until Init has been called.
package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "hostel_billing_"

	ResultOK            = "ok"
	ResultNotApplicable = "not_applicable"
	ResultConfigError   = "config_error"
)

var (
	registerOnce sync.Once

	reconcileTotal     *prometheus.CounterVec
	statementLatency   *prometheus.HistogramVec
	unclassifiedTotal  *prometheus.CounterVec
	tenantsInArrears   *prometheus.GaugeVec
	paymentsRecorded   *prometheus.CounterVec
	arrearsSweepLatest prometheus.Gauge
)

// Init registers collectors with the default registerer. Safe to call more
// than once.
func Init() {
	InitWith(prometheus.DefaultRegisterer)
}

// InitWith registers collectors with reg. Only the first call has effect.
func InitWith(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reconcileTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "reconciliations_total",
				Help: "Charge reconciliations by result",
			},
			[]string{"result"},
		)
		statementLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "statement_duration_seconds",
				Help:    "Tenant statement latency including ledger reads",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)
		unclassifiedTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "unclassified_payments_total",
				Help: "Successful payments that could not be mapped to a period, by rule",
			},
			[]string{"rule"},
		)
		tenantsInArrears = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "tenants_in_arrears",
				Help: "Tenants with more than one unpaid period, by building",
			},
			[]string{"building"},
		)
		paymentsRecorded = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "payments_recorded_total",
				Help: "Payment attempts written to the ledger by outcome",
			},
			[]string{"outcome"},
		)
		arrearsSweepLatest = prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: metricPrefix + "arrears_sweep_last_run_timestamp_seconds",
				Help: "Unix time of the last completed arrears sweep",
			},
		)

		reg.MustRegister(
			reconcileTotal,
			statementLatency,
			unclassifiedTotal,
			tenantsInArrears,
			paymentsRecorded,
			arrearsSweepLatest,
		)
	})
}

// IncReconcile counts one charge reconciliation.
func IncReconcile(result string) {
	if result == "" {
		result = ResultOK
	}
	if reconcileTotal != nil {
		reconcileTotal.WithLabelValues(result).Inc()
	}
}

// ObserveStatement records statement duration.
func ObserveStatement(result string, duration time.Duration) {
	if result == "" {
		result = ResultOK
	}
	if statementLatency != nil {
		statementLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncUnclassified counts a payment rejected by the classifier.
func IncUnclassified(rule string) {
	if rule == "" {
		rule = "unknown"
	}
	if unclassifiedTotal != nil {
		unclassifiedTotal.WithLabelValues(rule).Inc()
	}
}

// SetTenantsInArrears publishes the latest arrears count for a building.
func SetTenantsInArrears(building string, count int) {
	if count < 0 {
		count = 0
	}
	if tenantsInArrears != nil {
		tenantsInArrears.WithLabelValues(building).Set(float64(count))
	}
}

// IncPaymentRecorded counts a ledger write.
func IncPaymentRecorded(outcome string) {
	if paymentsRecorded != nil {
		paymentsRecorded.WithLabelValues(outcome).Inc()
	}
}

// MarkArrearsSweep records the completion time of a sweep.
func MarkArrearsSweep(at time.Time) {
	if arrearsSweepLatest != nil {
		arrearsSweepLatest.Set(float64(at.Unix()))
	}
}
