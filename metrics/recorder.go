package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder records coordinator activity. A nil *Recorder is valid and records nothing.
type Recorder struct {
	providers      prometheus.Gauge
	bytesWritten   *prometheus.CounterVec
	bytesRead      *prometheus.CounterVec
	providerErrors *prometheus.CounterVec
	writes         *prometheus.CounterVec
	writeDuration  *prometheus.HistogramVec
}

// NewRecorder creates the coordinator collectors and registers them with reg.
func NewRecorder(namespace string, reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		providers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "providers",
			Help:      "Number of admitted storage providers.",
		}),
		bytesWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_bytes_written_total",
			Help:      "Bytes successfully written per provider.",
		}, []string{"provider"}),
		bytesRead: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_bytes_read_total",
			Help:      "Bytes read per provider.",
		}, []string{"provider"}),
		providerErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "provider_errors_total",
			Help:      "Failed provider operations.",
		}, []string{"provider", "op"}),
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "writes_total",
			Help:      "Fan-out writes by outcome.",
		}, []string{"op", "outcome"}),
		writeDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Duration of fan-out writes until every provider settled.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
	}

	for _, c := range []prometheus.Collector{r.providers, r.bytesWritten, r.bytesRead, r.providerErrors, r.writes, r.writeDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// SetProviders records the number of admitted providers.
func (r *Recorder) SetProviders(n int) {
	if r == nil {
		return
	}
	r.providers.Set(float64(n))
}

// BytesWritten records n bytes committed to provider.
func (r *Recorder) BytesWritten(provider string, n int64) {
	if r == nil {
		return
	}
	r.bytesWritten.WithLabelValues(provider).Add(float64(n))
}

// BytesRead records n bytes read from provider.
func (r *Recorder) BytesRead(provider string, n int64) {
	if r == nil {
		return
	}
	r.bytesRead.WithLabelValues(provider).Add(float64(n))
}

// ProviderError counts a failed op on provider.
func (r *Recorder) ProviderError(provider, op string) {
	if r == nil {
		return
	}
	r.providerErrors.WithLabelValues(provider, op).Inc()
}

// WriteSettled records a finished fan-out write started at start.
func (r *Recorder) WriteSettled(op string, start time.Time, err error) {
	if r == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	r.writes.WithLabelValues(op, outcome).Inc()
	r.writeDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}
