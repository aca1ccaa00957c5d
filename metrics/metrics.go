package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TransfersTotal counts transfers reaching a terminal state.
	TransfersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorn_transfers_total",
			Help: "Transfers finished, by terminal state and failure kind.",
		},
		[]string{"state", "kind"},
	)

	// RecordsClassified counts history records by classified direction.
	RecordsClassified = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorn_records_classified_total",
			Help: "Ledger records classified, by direction.",
		},
		[]string{"direction"},
	)

	// RecordsDropped counts unparseable history records.
	RecordsDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "acorn_records_dropped_total",
			Help: "Ledger records without metadata or instructions.",
		},
	)

	// RPCErrors counts failed ledger calls.
	RPCErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorn_rpc_errors_total",
			Help: "Failed ledger rpc calls, by method.",
		},
		[]string{"method"},
	)

	// RelayErrors counts failed relay submissions.
	RelayErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "acorn_relay_errors_total",
			Help: "Failed relay submissions, by failure kind.",
		},
		[]string{"kind"},
	)
)

// Register adds all collectors to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		TransfersTotal,
		RecordsClassified,
		RecordsDropped,
		RPCErrors,
		RelayErrors,
	)
}
