package prometheus

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-wsrm/core"
	prom "github.com/prometheus/client_golang/prometheus"
)

// DefaultLabels are the tags core.Observer attaches to operation metrics.
var DefaultLabels = []string{"operation", "status", "version", "outcome", "fault_code"}

// DefaultBuckets cover operation durations in milliseconds.
var DefaultBuckets = []float64{0.5, 1, 2.5, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

type Options struct {
	Registerer prom.Registerer
	// Namespace is prepended to every metric name.
	Namespace string
	Labels    []string
	Buckets   []float64
}

// Recorder implements core.MetricsRecorder on Prometheus vectors created on
// first use. Tags outside the configured label set are dropped.
type Recorder struct {
	registerer prom.Registerer
	namespace  string
	labels     []string
	buckets    []float64

	mu         sync.Mutex
	counters   map[string]*prom.CounterVec
	histograms map[string]*prom.HistogramVec
}

func NewRecorder(opts Options) *Recorder {
	registerer := opts.Registerer
	if registerer == nil {
		registerer = prom.DefaultRegisterer
	}
	labels := opts.Labels
	if len(labels) == 0 {
		labels = DefaultLabels
	}
	buckets := opts.Buckets
	if len(buckets) == 0 {
		buckets = DefaultBuckets
	}
	return &Recorder{
		registerer: registerer,
		namespace:  MetricName(opts.Namespace),
		labels:     append([]string(nil), labels...),
		buckets:    append([]float64(nil), buckets...),
		counters:   map[string]*prom.CounterVec{},
		histograms: map[string]*prom.HistogramVec{},
	}
}

func (r *Recorder) IncCounter(_ context.Context, name string, value int64, tags map[string]string) {
	if r == nil || value < 0 {
		return
	}
	vec, err := r.counter(name)
	if err != nil {
		return
	}
	vec.WithLabelValues(r.values(tags)...).Add(float64(value))
}

func (r *Recorder) ObserveHistogram(_ context.Context, name string, value float64, tags map[string]string) {
	if r == nil {
		return
	}
	vec, err := r.histogram(name)
	if err != nil {
		return
	}
	vec.WithLabelValues(r.values(tags)...).Observe(value)
}

func (r *Recorder) counter(name string) (*prom.CounterVec, error) {
	metric := r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.counters[metric]; ok {
		return vec, nil
	}
	vec := prom.NewCounterVec(prom.CounterOpts{
		Name: metric,
		Help: fmt.Sprintf("Count of %s.", strings.TrimSpace(name)),
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prom.CounterVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.counters[metric] = vec
	return vec, nil
}

func (r *Recorder) histogram(name string) (*prom.HistogramVec, error) {
	metric := r.fullName(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if vec, ok := r.histograms[metric]; ok {
		return vec, nil
	}
	vec := prom.NewHistogramVec(prom.HistogramOpts{
		Name:    metric,
		Help:    fmt.Sprintf("Distribution of %s.", strings.TrimSpace(name)),
		Buckets: r.buckets,
	}, r.labels)
	if err := r.registerer.Register(vec); err != nil {
		var already prom.AlreadyRegisteredError
		if !errors.As(err, &already) {
			return nil, err
		}
		existing, ok := already.ExistingCollector.(*prom.HistogramVec)
		if !ok {
			return nil, err
		}
		vec = existing
	}
	r.histograms[metric] = vec
	return vec, nil
}

func (r *Recorder) fullName(name string) string {
	metric := MetricName(name)
	if r.namespace == "" {
		return metric
	}
	return r.namespace + "_" + metric
}

func (r *Recorder) values(tags map[string]string) []string {
	out := make([]string, len(r.labels))
	for i, label := range r.labels {
		out[i] = strings.TrimSpace(tags[label])
	}
	return out
}

// MetricName maps dotted recorder names such as "wsrm.session.receive.total"
// to valid Prometheus names.
func MetricName(name string) string {
	var b strings.Builder
	b.Grow(len(name))
	for _, r := range strings.TrimSpace(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == ':':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_")
	if out != "" && out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

var _ core.MetricsRecorder = (*Recorder)(nil)
