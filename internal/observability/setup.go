package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap"
)

var (
	// Logger is the high-throughput engine logger used on the message
	// evaluation path, where logrus entry allocation is too chatty. It is
	// a no-op until Init replaces it.
	Logger = zap.NewNop()

	violationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_violations_total",
			Help: "Total number of detected violations",
		},
		[]string{"type"},
	)

	actionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "moderation_actions_total",
			Help: "Total number of applied moderation actions",
		},
		[]string{"action"},
	)

	restrictionsLifted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_restrictions_lifted_total",
			Help: "Total number of expired restrictions lifted by the sweeper",
		},
	)

	evaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "moderation_evaluation_duration_seconds",
			Help:    "Time spent evaluating messages",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"status"},
	)
)

func Init(metricsAddr string) error {
	var err error
	Logger, err = zap.NewProduction()
	if err != nil {
		return err
	}

	prometheus.MustRegister(violationsTotal, actionsTotal, restrictionsLifted, evaluationDuration)

	tp := trace.NewTracerProvider()
	otel.SetTracerProvider(tp)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(metricsAddr, mux); err != nil {
			log.WithError(err).Error("metrics server failed")
		}
	}()

	return nil
}

func RecordViolation(violationType string) {
	violationsTotal.WithLabelValues(violationType).Inc()
}

func RecordAction(action string) {
	actionsTotal.WithLabelValues(action).Inc()
}

func RecordLiftedRestriction() {
	restrictionsLifted.Inc()
}

// StartEvaluation returns a closer recording the evaluation duration.
func StartEvaluation() func(status string) {
	timer := prometheus.NewTimer(nil)
	return func(status string) {
		evaluationDuration.WithLabelValues(status).Observe(timer.ObserveDuration().Seconds())
	}
}
