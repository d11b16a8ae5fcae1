package monitoring

import "time"

const (
	MetricPredictions      = "predictions_total"
	MetricPredictionErrors = "prediction_errors_total"
	MetricLatency          = "prediction_latency_ms"
	MetricArtifactChanges  = "artifact_changes_total"
	MetricLiveClients      = "live_form_clients"
)

// InferenceMetrics records prediction traffic on top of a MetricsCollector
type InferenceMetrics struct {
	collector *MetricsCollector
}

// NewInferenceMetrics creates inference metrics backed by collector
func NewInferenceMetrics(collector *MetricsCollector) *InferenceMetrics {
	if collector == nil {
		collector = NewMetricsCollector()
	}
	return &InferenceMetrics{collector: collector}
}

func (im *InferenceMetrics) Collector() *MetricsCollector {
	return im.collector
}

// RecordPrediction counts one served prediction
func (im *InferenceMetrics) RecordPrediction(label string, took time.Duration) {
	im.collector.RecordMetric(&Metric{
		Name:   MetricPredictions,
		Type:   MetricTypeCounter,
		Value:  1,
		Labels: map[string]string{"label": label},
		Help:   "Predictions served by label",
	})
	im.collector.RecordMetric(&Metric{
		Name:  MetricLatency,
		Type:  MetricTypeHistogram,
		Value: float64(took) / float64(time.Millisecond),
		Help:  "Prediction latency in milliseconds",
	})
}

// RecordError counts one failed prediction request
func (im *InferenceMetrics) RecordError(kind string) {
	im.collector.RecordMetric(&Metric{
		Name:   MetricPredictionErrors,
		Type:   MetricTypeCounter,
		Value:  1,
		Labels: map[string]string{"kind": kind},
		Help:   "Failed prediction requests by kind",
	})
}

// RecordArtifactChange counts an on-disk change to a loaded artifact
func (im *InferenceMetrics) RecordArtifactChange(artifact string) {
	im.collector.RecordMetric(&Metric{
		Name:   MetricArtifactChanges,
		Type:   MetricTypeCounter,
		Value:  1,
		Labels: map[string]string{"artifact": artifact},
		Help:   "Artifact file changes seen since startup (not applied until restart)",
	})
}

// SetLiveClients publishes the number of open live form connections
func (im *InferenceMetrics) SetLiveClients(n int) {
	im.collector.SetGauge(MetricLiveClients, float64(n), nil)
}

// Stats a JSON-friendly snapshot
func (im *InferenceMetrics) Stats() map[string]interface{} {
	stats := map[string]interface{}{
		"uptime":   im.collector.GetUptime().String(),
		"counters": im.collector.Counters(),
		"system":   im.collector.GetSystemStats(),
	}
	if latency, err := im.collector.GetMetricSummary(MetricLatency); err == nil {
		stats["latency_ms"] = latency
	}
	if clients, err := im.collector.GetMetricSummary(MetricLiveClients); err == nil {
		stats["live_clients"] = clients.Latest
	}
	return stats
}
