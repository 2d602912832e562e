package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/models"
	"github.com/tm-acme-shop/acme-shop-orderlines-service/internal/recalc"
)

// Recalculation outcomes.
const (
	OutcomeApplied = "applied"
	OutcomeNoop    = "noop"
	OutcomeFailed  = "failed"
)

type Registry struct {
	reg               *prometheus.Registry
	Recalculations    *prometheus.CounterVec
	RecalcLatencySec  prometheus.Histogram
	ChildFetches      prometheus.Counter
	ChildFetchErrors  prometheus.Counter
	TotalsCalculated  prometheus.Counter
	EventsPublished   *prometheus.CounterVec
	CommandsProcessed *prometheus.CounterVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	recalcs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "orderlines_recalculations_total",
		Help: "Line-change recalculations by outcome.",
	}, []string{"outcome"})
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "orderlines_recalculation_seconds",
		Buckets: prometheus.DefBuckets,
	})
	fetches := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlines_child_fetches_total"})
	fetchErrors := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlines_child_fetch_errors_total"})
	totals := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderlines_totals_calculated_total"})
	published := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderlines_events_published_total"}, []string{"type"})
	commands := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "orderlines_commands_processed_total"}, []string{"outcome"})

	r.MustRegister(recalcs, latency, fetches, fetchErrors, totals, published, commands)
	return &Registry{
		reg:               r,
		Recalculations:    recalcs,
		RecalcLatencySec:  latency,
		ChildFetches:      fetches,
		ChildFetchErrors:  fetchErrors,
		TotalsCalculated:  totals,
		EventsPublished:   published,
		CommandsProcessed: commands,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }

// ObserveRecalculation records one engine run that started at start.
func (r *Registry) ObserveRecalculation(start time.Time, outcome string) {
	r.Recalculations.WithLabelValues(outcome).Inc()
	r.RecalcLatencySec.Observe(time.Since(start).Seconds())
}

// WrapFetcher counts the stored-subtree reads made through f.
func (r *Registry) WrapFetcher(f recalc.ChildFetcher) recalc.ChildFetcher {
	return recalc.ChildFetcherFunc(func(ctx context.Context, lineID int64) ([]*models.OrderLine, error) {
		r.ChildFetches.Inc()
		children, err := f.FetchChildren(ctx, lineID)
		if err != nil {
			r.ChildFetchErrors.Inc()
		}
		return children, err
	})
}
