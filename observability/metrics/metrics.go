// Package metrics registers the connector's Prometheus instrumentation.
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is the lazily-initialised set of counters/gauges the connector
// updates as accounts move through the claim and settlement lifecycle.
type Metrics struct {
	ClaimsAccepted        *prometheus.CounterVec
	ClaimsRejected        *prometheus.CounterVec
	SettlementsSent       *prometheus.CounterVec
	SettlementsFailed     *prometheus.CounterVec
	OwedBalance           *prometheus.GaugeVec
	PreparedAmount        *prometheus.GaugeVec
	AutoClaimFailures     *prometheus.CounterVec
	AccountsClaimFailures *prometheus.GaugeVec
	ChannelClosures       prometheus.Counter
}

var (
	once     sync.Once
	registry *Metrics
)

// Default returns the process-wide metrics registry, registering it with the
// default Prometheus registerer on first use.
func Default() *Metrics {
	once.Do(func() {
		registry = &Metrics{
			ClaimsAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "claim",
				Name:      "accepted_total",
				Help:      "Incoming claims accepted as a new high-water mark, by account.",
			}, []string{"account"}),
			ClaimsRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "claim",
				Name:      "rejected_total",
				Help:      "Incoming claims rejected, by account and reason.",
			}, []string{"account", "reason"}),
			SettlementsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "settlement",
				Name:      "sent_total",
				Help:      "Outgoing settlement claims successfully signed and sent, by account.",
			}, []string{"account"}),
			SettlementsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "settlement",
				Name:      "failed_total",
				Help:      "Outgoing settlements that failed to sign and were folded into owed balance, by account and reason.",
			}, []string{"account", "reason"}),
			OwedBalance: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "xrpchan",
				Subsystem: "settlement",
				Name:      "owed_balance",
				Help:      "Current owedBalance per account, base units.",
			}, []string{"account"}),
			PreparedAmount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "xrpchan",
				Subsystem: "admission",
				Name:      "prepared_amount",
				Help:      "Current in-flight prepared amount per account, base units.",
			}, []string{"account"}),
			AutoClaimFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "autoclaim",
				Name:      "failures_total",
				Help:      "Claim submissions the auto-claim loop saw fail on the ledger, by account.",
			}, []string{"account"}),
			AccountsClaimFailures: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Namespace: "xrpchan",
				Subsystem: "autoclaim",
				Name:      "consecutive_failures",
				Help:      "Current consecutive ledger failure count for the auto-claim loop, by account. Resets to 0 on the next success.",
			}, []string{"account"}),
			ChannelClosures: prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "xrpchan",
				Subsystem: "watcher",
				Name:      "channel_closures_total",
				Help:      "Channel closures detected by the watcher and acted on.",
			}),
		}
		prometheus.MustRegister(
			registry.ClaimsAccepted,
			registry.ClaimsRejected,
			registry.SettlementsSent,
			registry.SettlementsFailed,
			registry.OwedBalance,
			registry.PreparedAmount,
			registry.AutoClaimFailures,
			registry.AccountsClaimFailures,
			registry.ChannelClosures,
		)
	})
	return registry
}
