package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	animalMutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdbook_animals_mutations_total",
		Help: "Successful animal record mutations by operation.",
	}, []string{"op"})

	assetCleanupFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "herdbook_asset_cleanup_failures_total",
		Help: "Image files that could not be removed after a replace or delete.",
	})

	mailEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "herdbook_mail_events_total",
		Help: "Verification mail events by result (queued, publish_failed, sent, rejected, failed).",
	}, []string{"result"})
)

// RecordMailResult counts a verification mail outcome.  The consumer uses it
// as its per-delivery callback.
func RecordMailResult(result string) { mailEvents.WithLabelValues(result).Inc() }
