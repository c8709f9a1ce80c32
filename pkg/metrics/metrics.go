// Package metrics exposes prometheus collectors for the settlement engine and
// the transaction poller.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all prometheus collectors used by the bot.
type Metrics struct {
	OffersAccepted       *prometheus.CounterVec
	OffersDeclined       *prometheus.CounterVec
	TransactionsCredited prometheus.Counter
	TransactionsSkipped  *prometheus.CounterVec
	PollTicksDropped     prometheus.Counter
	PollBatchesAborted   prometheus.Counter
	OperatorAlerts       *prometheus.CounterVec
}

// New registers and returns the bot's collectors on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		OffersAccepted: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "offers_accepted_total",
			Help:      "Offers accepted, by kind (deposit or withdraw).",
		}, []string{"kind"}),
		OffersDeclined: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "offers_declined_total",
			Help:      "Offers declined, by reason category.",
		}, []string{"reason"}),
		TransactionsCredited: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "transactions_credited_total",
			Help:      "Incoming transfers credited to a customer balance.",
		}),
		TransactionsSkipped: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "transactions_skipped_total",
			Help:      "Incoming transfers skipped, by cause (no_payment_id, unknown_address).",
		}, []string{"cause"}),
		PollTicksDropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "poll_ticks_dropped_total",
			Help:      "Poll ticks dropped because a previous poll was still running.",
		}),
		PollBatchesAborted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "poll_batches_aborted_total",
			Help:      "Poll batches aborted mid-way by a transport error.",
		}),
		OperatorAlerts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "keyvault",
			Name:      "operator_alerts_total",
			Help:      "Operator alert emails sent, by incident type.",
		}, []string{"incident"}),
	}
}
