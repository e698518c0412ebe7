// Package metrics instruments the recorder with Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	promhttp "github.com/prometheus/client_golang/prometheus/promhttp"
)

type EpochResult string

const (
	EpochAppended     EpochResult = "appended"
	EpochTypeError    EpochResult = "type_error"
	EpochStorageError EpochResult = "storage_error"
)

type GuardAction string

const (
	GuardDropped GuardAction = "dropped"
	GuardCoerced GuardAction = "coerced"
)

// Recorder is safe to use as a nil pointer, in which case it records nothing.
type Recorder struct {
	epochs   *prom.CounterVec
	guarded  *prom.CounterVec
	storeOps *prom.HistogramVec
}

// NewRecorder registers the collectors on reg, reusing collectors that a
// previous Recorder already registered there.
func NewRecorder(reg prom.Registerer) *Recorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	r := &Recorder{
		epochs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "runlog",
			Name:      "epochs_appended_total",
			Help:      "Epoch append attempts by result",
		}, []string{"result"}),
		guarded: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "runlog",
			Name:      "leaves_guarded_total",
			Help:      "Unknown-typed metric leaves dropped or coerced",
		}, []string{"action"}),
		storeOps: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "runlog",
			Name:      "store_operation_duration_seconds",
			Help:      "Duration of document store operations",
			Buckets:   prom.DefBuckets,
		}, []string{"op"}),
	}
	r.epochs = register(reg, r.epochs)
	r.guarded = register(reg, r.guarded)
	r.storeOps = register(reg, r.storeOps)
	return r
}

func register[C prom.Collector](reg prom.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		if already, ok := err.(prom.AlreadyRegisteredError); ok {
			if existing, ok := already.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (r *Recorder) IncEpoch(result EpochResult) {
	if r == nil || r.epochs == nil {
		return
	}
	r.epochs.WithLabelValues(string(result)).Inc()
}

func (r *Recorder) AddGuarded(action GuardAction, n int) {
	if r == nil || r.guarded == nil || n <= 0 {
		return
	}
	r.guarded.WithLabelValues(string(action)).Add(float64(n))
}

func (r *Recorder) ObserveStoreOp(op string, d time.Duration) {
	if r == nil || r.storeOps == nil {
		return
	}
	r.storeOps.WithLabelValues(op).Observe(d.Seconds())
}

// HTTPHandler serves the metrics gathered by reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	if reg == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
