package chiredact

import (
	"errors"

	"github.com/nhalm/chiredact/redact"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	labelKind   = "kind"
	labelResult = "result"
)

// metrics counts unhandled failures and how their messages were redacted.
type metrics struct {
	failures   *prometheus.CounterVec
	redactions *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chiredact",
			Name:      "failures_total",
			Help:      "Unhandled request failures answered with an error envelope, by kind (panic or error)",
		}, []string{labelKind}),
		redactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "chiredact",
			Name:      "redactions_total",
			Help:      "Failure messages by redaction outcome (none, literal or pattern)",
		}, []string{labelResult}),
	}

	m.failures = registerCounterVec(reg, m.failures)
	m.redactions = registerCounterVec(reg, m.redactions)
	return m
}

// registerCounterVec registers c, reusing an identical collector when several
// Handlers share one registry.
func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) *prometheus.CounterVec {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) observe(kind failureKind, result redact.MatchKind) {
	if m == nil {
		return
	}
	m.failures.WithLabelValues(string(kind)).Inc()
	m.redactions.WithLabelValues(result.String()).Inc()
}
