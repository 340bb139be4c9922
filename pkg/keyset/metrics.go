package keyset

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics records key set lookups and fetches. A nil *Metrics is valid and
// records nothing.
//
// Collected series, all labelled with the key endpoint url:
//
//	firebase_jwt_keyset_lookups_total{result="hit"|"miss"}
//	firebase_jwt_keyset_fetches_total{result="ok"|"not_found"|"error"}
//	firebase_jwt_keyset_fetch_duration_seconds
type Metrics struct {
	// lookups counts FindKeyByID calls by cache outcome.
	lookups *prometheus.CounterVec

	// fetches counts HTTP downloads of the key document by outcome.
	fetches *prometheus.CounterVec

	// fetchDuration observes the wall time of each download.
	fetchDuration *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. Collectors
// already registered by another key set are reused, so the ID token and
// session cookie key sets can share one registry.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firebase_jwt",
			Subsystem: "keyset",
			Name:      "lookups_total",
			Help:      "Key lookups by cache result.",
		}, []string{"url", "result"}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "firebase_jwt",
			Subsystem: "keyset",
			Name:      "fetches_total",
			Help:      "Key set fetches by outcome.",
		}, []string{"url", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "firebase_jwt",
			Subsystem: "keyset",
			Name:      "fetch_duration_seconds",
			Help:      "Duration of key set HTTP fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"url"}),
	}
	if reg == nil {
		return m, nil
	}

	var err error
	if m.lookups, err = register(reg, m.lookups); err != nil {
		return nil, err
	}
	if m.fetches, err = register(reg, m.fetches); err != nil {
		return nil, err
	}
	if m.fetchDuration, err = register(reg, m.fetchDuration); err != nil {
		return nil, err
	}
	return m, nil
}

// register registers c on reg. When an identical collector is already
// registered, the existing one is returned so both users share its series.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

// lookup records one FindKeyByID outcome. It is a no-op on nil.
func (m *Metrics) lookup(url, result string) {
	if m == nil {
		return
	}
	m.lookups.WithLabelValues(url, result).Inc()
}

// fetched records one download and its duration. It is a no-op on nil.
func (m *Metrics) fetched(url, result string, seconds float64) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(url, result).Inc()
	m.fetchDuration.WithLabelValues(url).Observe(seconds)
}
