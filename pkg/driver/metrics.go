package driver

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
)

const pushJob = "insurance_model_train"

// Metrics records the outcome of a training run.
type Metrics struct {
	registry *prometheus.Registry

	TestR2          prometheus.Gauge
	Rows            *prometheus.GaugeVec
	TrainDuration   prometheus.Gauge
	TreeLeaves      prometheus.Gauge
	TreeDepth       prometheus.Gauge
	PublishOutcomes *prometheus.CounterVec
}

// NewMetrics registers the training metrics on a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		registry: reg,
		TestR2: f.NewGauge(prometheus.GaugeOpts{
			Name: "insurance_model_test_r2", Help: "Coefficient of determination on the held-out partition.",
		}),
		Rows: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "insurance_model_rows", Help: "Dataset rows by partition.",
		}, []string{"partition"}),
		TrainDuration: f.NewGauge(prometheus.GaugeOpts{
			Name: "insurance_model_train_duration_seconds", Help: "Wall time of the last training run.",
		}),
		TreeLeaves: f.NewGauge(prometheus.GaugeOpts{
			Name: "insurance_model_tree_leaves", Help: "Leaves of the fitted decision tree.",
		}),
		TreeDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "insurance_model_tree_depth", Help: "Depth of the fitted decision tree.",
		}),
		PublishOutcomes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "insurance_model_publish_total", Help: "Artifact publication outcomes.",
		}, []string{"result"}),
	}
}

// Push sends the metrics to a Prometheus Pushgateway.
func (m *Metrics) Push(url string) error {
	return push.New(url, pushJob).Gatherer(m.registry).Push()
}
