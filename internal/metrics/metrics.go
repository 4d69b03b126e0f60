// Package metrics exports reminder lifecycle counters to Prometheus.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sandeepkv93/medremind/internal/logging"
	"github.com/sandeepkv93/medremind/internal/scheduler"
)

const namespace = "medremind"

// Collector implements scheduler.Observer.
type Collector struct {
	transitions *prometheus.CounterVec
	reports     *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	dropped     prometheus.Counter
	queueDepth  prometheus.Gauge
	ledgerSize  prometheus.Gauge
}

var _ scheduler.Observer = (*Collector)(nil)

func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "reminder_transitions_total",
			Help:      "Reminder lifecycle transitions by event type and reason.",
		}, []string{"event", "reason"}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "status_reports_total",
			Help:      "Terminal status reports emitted.",
		}, []string{"status"}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prescriptions_rejected_total",
			Help:      "Prescription records skipped at the boundary.",
		}, []string{"reason"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_dropped_total",
			Help:      "Lifecycle events dropped because the consumer was slow.",
		}),
		queueDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_depth",
			Help:      "Live reminders in the queue.",
		}),
		ledgerSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ledger_entries",
			Help:      "Fingerprints held by the dedup ledger.",
		}),
	}
	reg.MustRegister(c.transitions, c.reports, c.rejections, c.dropped, c.queueDepth, c.ledgerSize)
	return c
}

func (c *Collector) ObserveEvent(ev scheduler.Event) {
	c.transitions.WithLabelValues(string(ev.Type), ev.Reason).Inc()
	if ev.Report != nil {
		c.reports.WithLabelValues(string(ev.Report.Status)).Inc()
	}
}

func (c *Collector) ObserveState(queued, ledger int) {
	c.queueDepth.Set(float64(queued))
	c.ledgerSize.Set(float64(ledger))
}

func (c *Collector) ObserveDropped() {
	c.dropped.Inc()
}

// ObserveRejection counts a prescription skipped as incomplete or invalid.
func (c *Collector) ObserveRejection(incomplete bool) {
	reason := "invalid"
	if incomplete {
		reason = "incomplete"
	}
	c.rejections.WithLabelValues(reason).Inc()
}

// Serve exposes gatherer on addr under /metrics until ctx is cancelled.
func Serve(ctx context.Context, addr string, gatherer prometheus.Gatherer, log logging.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		log.Info("metrics listening", logging.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
