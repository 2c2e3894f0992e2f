package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Business metrics
	ConnectedStations = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_connected_stations",
		Help: "Charge points currently connected over WebSocket",
	})

	ActiveTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "ocpp_active_transactions",
		Help: "Charging transactions currently open",
	})

	EnergyDeliveredTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_energy_delivered_wh_total",
		Help: "Total energy delivered across completed transactions in Wh",
	})

	WalletCutoffsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "ocpp_wallet_cutoffs_total",
		Help: "Transactions stopped because the wallet balance was exhausted",
	})

	// Infrastructure metrics
	OCPPMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ocpp_messages_total",
		Help: "OCPP frames by action and direction",
	}, []string{"action", "direction"})

	OCPPCallDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "ocpp_call_duration_seconds",
		Help:    "Round trip latency of central initiated calls",
		Buckets: prometheus.DefBuckets,
	})
)
