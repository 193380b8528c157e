// Package metrics exposes ledger activity to Prometheus: operation outcomes
// and latency from the endpoint layer, value movements from the event log.
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazyhaar/proofledger/internal/ledger"
	"github.com/hazyhaar/proofledger/pkg/kit"
)

type Collector struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	value      *prometheus.CounterVec
	events     *prometheus.CounterVec
	height     prometheus.Gauge
}

func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proofledger_operations_total",
				Help: "Ledger operations by name and outcome",
			},
			[]string{"op", "outcome"},
		),
		duration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "proofledger_operation_duration_seconds",
				Help:    "Ledger operation latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		value: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proofledger_value_total",
				Help: "Value moved by the ledger: verification fees and reward mints",
			},
			[]string{"kind"},
		),
		events: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "proofledger_events_total",
				Help: "Events appended to the ledger log",
			},
			[]string{"kind"},
		),
		height: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "proofledger_block_height",
			Help: "Logical time of the most recent call",
		}),
	}
	c.registry.MustRegister(c.operations, c.duration, c.value, c.events, c.height)
	c.registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return c
}

// Notify implements ledger.Notifier.
func (c *Collector) Notify(_ context.Context, events []ledger.Event) {
	for _, e := range events {
		c.events.WithLabelValues(string(e.Kind)).Inc()
		c.value.WithLabelValues(string(e.Kind)).Add(float64(e.Amount))
		c.height.Set(float64(e.Height))
	}
}

// Middleware counts each call of op by outcome: ok, rejected (a ledger
// kind) or error.
func (c *Collector) Middleware(op string) kit.Middleware {
	return func(next kit.Endpoint) kit.Endpoint {
		return func(ctx context.Context, request any) (any, error) {
			timer := prometheus.NewTimer(c.duration.WithLabelValues(op))
			resp, err := next(ctx, request)
			timer.ObserveDuration()
			c.operations.WithLabelValues(op, outcome(err)).Inc()
			return resp, err
		}
	}
}

// ObserveHeight records the logical time a call ran at.
func (c *Collector) ObserveHeight(h uint64) {
	c.height.Set(float64(h))
}

func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Timeout: 10 * time.Second})
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if _, ok := ledger.KindOf(err); ok {
		return "rejected"
	}
	return "error"
}
