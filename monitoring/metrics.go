package monitoring

import (
	"fmt"
	"runtime"
	"sort"
	"strings"
	"sync"
	"time"
)

// MetricType metric type
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

const historyLimit = 1000

// Metric a single observation
type Metric struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Help      string            `json:"help,omitempty"`
}

// MetricsCollector keeps counters as running totals and a bounded history for
// histograms and gauges.
type MetricsCollector struct {
	metrics     map[string][]*Metric
	counters    map[string]float64
	help        map[string]string
	types       map[string]MetricType
	metricsLock sync.RWMutex

	startTime time.Time
}

// NewMetricsCollector creates a collector
func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		metrics:   make(map[string][]*Metric),
		counters:  make(map[string]float64),
		help:      make(map[string]string),
		types:     make(map[string]MetricType),
		startTime: time.Now(),
	}
}

// RecordMetric records a metric
func (mc *MetricsCollector) RecordMetric(metric *Metric) {
	mc.metricsLock.Lock()
	defer mc.metricsLock.Unlock()

	metric.Timestamp = time.Now()
	mc.types[metric.Name] = metric.Type
	if metric.Help != "" {
		mc.help[metric.Name] = metric.Help
	}

	if metric.Type == MetricTypeCounter {
		mc.counters[seriesKey(metric.Name, metric.Labels)] += metric.Value
		return
	}

	history := append(mc.metrics[metric.Name], metric)
	// keep the most recent observations
	if len(history) > historyLimit {
		history = history[len(history)-historyLimit:]
	}
	mc.metrics[metric.Name] = history
}

// IncrCounter adds value to a counter series
func (mc *MetricsCollector) IncrCounter(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeCounter, Value: value, Labels: labels})
}

// SetGauge records a gauge value
func (mc *MetricsCollector) SetGauge(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeGauge, Value: value, Labels: labels})
}

// RecordHistogram records a histogram observation
func (mc *MetricsCollector) RecordHistogram(name string, value float64, labels map[string]string) {
	mc.RecordMetric(&Metric{Name: name, Type: MetricTypeHistogram, Value: value, Labels: labels})
}

// Counter returns the running total of one series
func (mc *MetricsCollector) Counter(name string, labels map[string]string) float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()
	return mc.counters[seriesKey(name, labels)]
}

// Counters returns every counter series keyed by name{labels}
func (mc *MetricsCollector) Counters() map[string]float64 {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	result := make(map[string]float64, len(mc.counters))
	for key, value := range mc.counters {
		result[key] = value
	}
	return result
}

// GetMetric returns a copy of the history for name
func (mc *MetricsCollector) GetMetric(name string) ([]*Metric, error) {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	metrics, ok := mc.metrics[name]
	if !ok {
		return nil, fmt.Errorf("metric %s not found", name)
	}

	result := make([]*Metric, len(metrics))
	for i, m := range metrics {
		metricCopy := *m
		result[i] = &metricCopy
	}
	return result, nil
}

// Summary aggregates a metric history
type Summary struct {
	Name    string    `json:"name"`
	Count   int       `json:"count"`
	Latest  float64   `json:"latest"`
	Min     float64   `json:"min"`
	Max     float64   `json:"max"`
	Average float64   `json:"average"`
	At      time.Time `json:"timestamp"`
}

// GetMetricSummary summarizes the history for name
func (mc *MetricsCollector) GetMetricSummary(name string) (Summary, error) {
	metrics, err := mc.GetMetric(name)
	if err != nil {
		return Summary{Name: name}, err
	}
	summary := Summary{Name: name, Count: len(metrics)}
	if len(metrics) == 0 {
		return summary, nil
	}

	summary.Latest = metrics[len(metrics)-1].Value
	summary.At = metrics[len(metrics)-1].Timestamp
	summary.Min = metrics[0].Value
	summary.Max = metrics[0].Value
	sum := 0.0
	for _, m := range metrics {
		sum += m.Value
		if m.Value < summary.Min {
			summary.Min = m.Value
		}
		if m.Value > summary.Max {
			summary.Max = m.Value
		}
	}
	summary.Average = sum / float64(len(metrics))
	return summary, nil
}

// ExportPrometheus renders counters and the latest gauge/histogram values in text format
func (mc *MetricsCollector) ExportPrometheus() string {
	mc.metricsLock.RLock()
	defer mc.metricsLock.RUnlock()

	var b strings.Builder
	names := make([]string, 0, len(mc.types))
	for name := range mc.types {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		help := mc.help[name]
		if help == "" {
			help = fmt.Sprintf("Metric %s", name)
		}
		typ := mc.types[name]
		fmt.Fprintf(&b, "# HELP %s %s\n", name, help)
		if typ == MetricTypeHistogram {
			// only the latest sample is exported
			fmt.Fprintf(&b, "# TYPE %s gauge\n", name)
		} else {
			fmt.Fprintf(&b, "# TYPE %s %s\n", name, typ)
		}

		if typ == MetricTypeCounter {
			keys := make([]string, 0)
			for key := range mc.counters {
				if key == name || strings.HasPrefix(key, name+"{") {
					keys = append(keys, key)
				}
			}
			sort.Strings(keys)
			for _, key := range keys {
				fmt.Fprintf(&b, "%s %g\n", key, mc.counters[key])
			}
			continue
		}
		if history := mc.metrics[name]; len(history) > 0 {
			latest := history[len(history)-1]
			fmt.Fprintf(&b, "%s %g\n", seriesKey(name, latest.Labels), latest.Value)
		}
	}
	return b.String()
}

// GetUptime time since the collector was created
func (mc *MetricsCollector) GetUptime() time.Duration {
	return time.Since(mc.startTime)
}

// GetSystemStats runtime statistics
func (mc *MetricsCollector) GetSystemStats() map[string]interface{} {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return map[string]interface{}{
		"uptime":     mc.GetUptime().String(),
		"goroutines": runtime.NumGoroutine(),
		"memory": map[string]interface{}{
			"alloc":      m.Alloc,
			"sys":        m.Sys,
			"heap_alloc": m.HeapAlloc,
			"gc_count":   m.NumGC,
		},
		"num_cpu": runtime.NumCPU(),
	}
}

func seriesKey(name string, labels map[string]string) string {
	if len(labels) == 0 {
		return name
	}
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf(`%s="%s"`, k, labels[k])
	}
	return name + "{" + strings.Join(parts, ",") + "}"
}
