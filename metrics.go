package sshkex

import (
	"net/http"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Metrics are the Prometheus collectors exported on --prometheus.
type Metrics struct {
	Handshakes        *prometheus.CounterVec
	NegotiatedKex     *prometheus.CounterVec
	IgnoredPackets    prometheus.Counter
	HandshakeDuration prometheus.Histogram
	ActiveConnections prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		Handshakes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sshkex",
			Name:      "handshakes_total",
			Help:      "Connections handled, by final status.",
		}, []string{"status"}),
		NegotiatedKex: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "sshkex",
			Name:      "negotiated_kex_total",
			Help:      "Successful negotiations, by key exchange algorithm.",
		}, []string{"algorithm"}),
		IgnoredPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "sshkex",
			Name:      "ignored_packets_total",
			Help:      "Packets skipped while waiting for the client's KEXINIT.",
		}),
		HandshakeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "sshkex",
			Name:      "handshake_duration_seconds",
			Help:      "Time from accept to the end of negotiation.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "sshkex",
			Name:      "active_connections",
			Help:      "Connections currently being handled.",
		}),
	}
	var err error
	for _, c := range []prometheus.Collector{m.Handshakes, m.NegotiatedKex, m.IgnoredPackets, m.HandshakeDuration, m.ActiveConnections} {
		err = multierr.Append(err, reg.Register(c))
	}
	if err != nil {
		return nil, errors.Wrap(err, "could not register metrics")
	}
	return m, nil
}

func (m *Metrics) observe(r *HandshakeResult) {
	if m == nil {
		return
	}
	m.Handshakes.WithLabelValues(string(r.Status)).Inc()
	m.HandshakeDuration.Observe(r.duration.Seconds())
	if r.Handshake == nil {
		return
	}
	m.IgnoredPackets.Add(float64(len(r.Handshake.IgnoredPackets)))
	if algs := r.Handshake.AlgorithmSelection; algs != nil {
		m.NegotiatedKex.WithLabelValues(algs.Kex).Inc()
	}
}

func (m *Metrics) connectionOpened() {
	if m != nil {
		m.ActiveConnections.Inc()
	}
}

func (m *Metrics) connectionClosed() {
	if m != nil {
		m.ActiveConnections.Dec()
	}
}

// StartPrometheus serves the metrics in gatherer on addr in the background.
func StartPrometheus(addr string, gatherer prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("could not run prometheus server: %s", err.Error())
		}
	}()
	return srv
}
