// Package metrics provides Prometheus metrics for advisorhub.
package metrics

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/kalambet/advisorhub/internal/contactlog"
	"github.com/kalambet/advisorhub/internal/portfolio"
)

var (
	// ContactAppendsTotal tracks contact log appends by backend and outcome
	ContactAppendsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisorhub",
			Subsystem: "contactlog",
			Name:      "appends_total",
			Help:      "Total number of contact log appends by backend and outcome",
		},
		[]string{"backend", "outcome"},
	)

	// ValidationRejectionsTotal tracks rejected entries by offending field
	ValidationRejectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisorhub",
			Subsystem: "contactlog",
			Name:      "validation_rejections_total",
			Help:      "Total number of contact entries rejected by validation",
		},
		[]string{"field"},
	)

	// HTTPRequestsTotal tracks API requests
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "advisorhub",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status",
		},
		[]string{"method", "route", "status_code"},
	)

	// MerchantsByStatus is the portfolio size per health status
	MerchantsByStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "advisorhub",
			Subsystem: "portfolio",
			Name:      "merchants",
			Help:      "Number of merchants in the portfolio by health status",
		},
		[]string{"status"},
	)
)

// Outcome labels for ContactAppendsTotal.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeIOError  = "io_error"
)

// OutcomeOf classifies an append error.
func OutcomeOf(err error) string {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, contactlog.ErrValidation):
		return OutcomeRejected
	}
	return OutcomeIOError
}

// RecordAppend records one append attempt against backend.
func RecordAppend(backend string, err error) {
	ContactAppendsTotal.WithLabelValues(backend, OutcomeOf(err)).Inc()
	var ve *contactlog.ValidationError
	if errors.As(err, &ve) {
		ValidationRejectionsTotal.WithLabelValues(ve.Field).Inc()
	}
}

// InstrumentedStore counts appends going through the wrapped store.
type InstrumentedStore struct {
	contactlog.Store
	backend string
}

// Instrument wraps store so every append is recorded under backend.
func Instrument(store contactlog.Store, backend string) *InstrumentedStore {
	return &InstrumentedStore{Store: store, backend: backend}
}

func (s *InstrumentedStore) Append(e contactlog.Entry) (contactlog.Entry, error) {
	out, err := s.Store.Append(e)
	RecordAppend(s.backend, err)
	return out, err
}

// RecordPortfolio publishes the merchant count per status.
func RecordPortfolio(s portfolio.Summary) {
	for _, st := range []portfolio.Status{portfolio.StatusStable, portfolio.StatusAtRisk, portfolio.StatusPotential} {
		MerchantsByStatus.WithLabelValues(string(st)).Set(float64(s.ByStatus[st]))
	}
}
